package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"qmd/internal/domain"
	applog "qmd/internal/log"
	"qmd/internal/qmdapi"
	"qmd/internal/session"
	"qmd/internal/validate"
)

// AdminService runs the admin area calls. Every call needs a usable token; a
// 401/403 answer clears it from the session and is never retried.
type AdminService struct {
	API      *qmdapi.Client
	Sessions *session.Manager
	now      func() time.Time
}

func NewAdminService(api *qmdapi.Client, sessions *session.Manager) *AdminService {
	return &AdminService{API: api, Sessions: sessions, now: time.Now}
}

func (s *AdminService) token(ctx context.Context, sc session.Context) (string, error) {
	if !s.Sessions.AdminTokenUsable(sc.AdminToken) {
		if sc.AdminToken != "" {
			_ = s.Sessions.ClearAdminToken(ctx, sc.SessionID)
		}
		return "", qmdapi.ErrUnauthorized
	}
	return sc.AdminToken, nil
}

// guard drops the token when the API refused it.
func (s *AdminService) guard(ctx context.Context, sc session.Context, err error) error {
	if errors.Is(err, qmdapi.ErrUnauthorized) {
		_ = s.Sessions.ClearAdminToken(ctx, sc.SessionID)
		applog.Security(nil, "admin.token.rejected", map[string]any{"sid": sc.SessionID})
	}
	return err
}

func (s *AdminService) Citizens(ctx context.Context, sc session.Context) ([]domain.Citizen, error) {
	if _, err := s.token(ctx, sc); err != nil {
		return nil, err
	}
	out, err := s.API.ListCitizens(ctx)
	return out, s.guard(ctx, sc, err)
}

func (s *AdminService) Citizen(ctx context.Context, sc session.Context, id string) (*domain.Citizen, error) {
	if _, err := s.token(ctx, sc); err != nil {
		return nil, err
	}
	out, err := s.API.GetCitizen(ctx, id)
	return out, s.guard(ctx, sc, err)
}

// CitizenForm is the create/edit form. Validate reports errors per field.
type CitizenForm struct {
	Cedula          string
	Nombre          string
	Apellido        string
	Direccion       string
	Telefono        string
	Email           string
	FechaNacimiento string
	Genero          string
	Estado          string
}

func FormFromCitizen(c domain.Citizen) CitizenForm {
	return CitizenForm{
		Cedula: c.Cedula, Nombre: c.Nombre, Apellido: c.Apellido, Direccion: c.Direccion,
		Telefono: c.Telefono, Email: c.Email, FechaNacimiento: c.FechaNacimiento,
		Genero: c.Genero, Estado: c.Estado,
	}
}

type FieldErrors map[string]string

func (f FieldErrors) Error() string { return "formulario inválido" }

// Validate normalizes the form and returns the citizen to send. Nombre,
// apellido and cedula are required; estado defaults to activo.
func (f CitizenForm) Validate(now time.Time) (domain.Citizen, error) {
	errs := FieldErrors{}
	var c domain.Citizen
	var ok bool

	if c.Nombre, ok = validate.Name(f.Nombre); !ok {
		errs["nombre"] = "El nombre es obligatorio"
	}
	if c.Apellido, ok = validate.Name(f.Apellido); !ok {
		errs["apellido"] = "El apellido es obligatorio"
	}
	if c.Cedula, ok = validate.Cedula(f.Cedula); !ok {
		errs["cedula"] = "La cédula es obligatoria y solo admite números"
	}
	if f.Email != "" {
		if c.Email, ok = validate.Email(f.Email); !ok {
			errs["email"] = "Correo inválido"
		}
	}
	if f.Telefono != "" {
		if c.Telefono, ok = validate.Phone(f.Telefono); !ok {
			errs["telefono"] = "Teléfono inválido"
		}
	}
	if c.Direccion, ok = validate.Text(f.Direccion, 120); !ok {
		errs["direccion"] = "Dirección demasiado larga"
	}
	if c.FechaNacimiento, ok = validate.Fecha(f.FechaNacimiento, now); !ok {
		errs["fechaNacimiento"] = "Fecha inválida"
	}
	if c.Genero, ok = validate.Genero(f.Genero); !ok {
		errs["genero"] = "Género inválido"
	}
	if c.Estado, ok = validate.Estado(f.Estado); !ok {
		errs["estado"] = "Estado inválido"
	}
	if len(errs) > 0 {
		return domain.Citizen{}, errs
	}
	return c, nil
}

func (s *AdminService) CreateCitizen(ctx context.Context, sc session.Context, f CitizenForm) (*domain.Citizen, error) {
	token, err := s.token(ctx, sc)
	if err != nil {
		return nil, err
	}
	c, err := f.Validate(s.now())
	if err != nil {
		return nil, err
	}
	out, err := s.API.CreateCitizen(ctx, token, c)
	return out, s.guard(ctx, sc, err)
}

func (s *AdminService) UpdateCitizen(ctx context.Context, sc session.Context, id string, f CitizenForm) error {
	token, err := s.token(ctx, sc)
	if err != nil {
		return err
	}
	c, err := f.Validate(s.now())
	if err != nil {
		return err
	}
	c.ID = domain.ID(id)
	return s.guard(ctx, sc, s.API.UpdateCitizen(ctx, token, id, c))
}

func (s *AdminService) DeleteCitizen(ctx context.Context, sc session.Context, id string) error {
	token, err := s.token(ctx, sc)
	if err != nil {
		return err
	}
	return s.guard(ctx, sc, s.API.DeleteCitizen(ctx, token, id))
}

type CitizenPage struct {
	Citizen   domain.Citizen
	Carts     []domain.CartSummary
	Submitted []domain.CartSummary
	Spent     decimal.Decimal
}

// CitizenPage loads the citizen, all carts and the submitted history at once.
func (s *AdminService) CitizenPage(ctx context.Context, sc session.Context, id string) (CitizenPage, error) {
	token, err := s.token(ctx, sc)
	if err != nil {
		return CitizenPage{}, err
	}
	var (
		page CitizenPage
		cit  *domain.Citizen
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cit, err = s.API.GetCitizen(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		page.Carts, err = s.API.ListCarts(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		page.Submitted, err = s.API.ListSubmittedCarts(gctx, token, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return CitizenPage{}, s.guard(ctx, sc, err)
	}
	page.Citizen = *cit
	page.Spent = decimal.Zero
	for _, c := range page.Submitted {
		page.Spent = page.Spent.Add(c.Amount())
	}
	return page, nil
}

// Cart returns a cart with subtotals and total recomputed from its lines.
func (s *AdminService) Cart(ctx context.Context, sc session.Context, cartID string) (*domain.Cart, error) {
	if _, err := s.token(ctx, sc); err != nil {
		return nil, err
	}
	c, err := s.API.GetCart(ctx, cartID)
	if err != nil {
		return nil, s.guard(ctx, sc, err)
	}
	c.Total = decimal.Zero
	for i := range c.Detalles {
		c.Detalles[i].Subtotal = c.Detalles[i].ExpectedSubtotal()
		c.Total = c.Total.Add(c.Detalles[i].Subtotal)
	}
	return c, nil
}

// CartMetaForm carries the editable descriptive fields of a cart.
type CartMetaForm struct {
	Descripcion   string
	Observaciones string
	Concepto      string
}

func (s *AdminService) UpdateCartMeta(ctx context.Context, sc session.Context, cartID string, f CartMetaForm) (*domain.Cart, error) {
	token, err := s.token(ctx, sc)
	if err != nil {
		return nil, err
	}
	errs := FieldErrors{}
	var meta qmdapi.CartMeta
	for field, in := range map[string]struct {
		val string
		dst **string
	}{
		"descripcion":   {f.Descripcion, &meta.Descripcion},
		"observaciones": {f.Observaciones, &meta.Observaciones},
		"concepto":      {f.Concepto, &meta.Concepto},
	} {
		v, ok := validate.Text(in.val, 500)
		if !ok {
			errs[field] = "Texto demasiado largo"
			continue
		}
		*in.dst = &v
	}
	if len(errs) > 0 {
		return nil, errs
	}
	out, err := s.API.UpdateCartMeta(ctx, token, cartID, meta)
	if err != nil {
		return nil, s.guard(ctx, sc, err)
	}
	applog.Info(nil, "admin.cart.meta", map[string]any{"cart_id": cartID})
	return out, nil
}
