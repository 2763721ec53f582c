package services_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qmd/internal/qmdapi"
	"qmd/internal/services"
)

func (e *env) adminLogin(t *testing.T, sid string) {
	t.Helper()
	require.NoError(t, e.auth.AdminLogin(e.ctx, sid, e.srv.AdminEmail, e.srv.AdminPassword))
}

func TestAuth_CitizenLoginLogout(t *testing.T) {
	e := newEnv(t)
	cid := e.srv.AddCitizen("Ana", "Pérez", "10010001")

	c, err := e.auth.Login(e.ctx, "s", cid)
	require.NoError(t, err)
	assert.Equal(t, "Ana Pérez", c.FullName())
	require.NoError(t, e.sessions.BindCart(e.ctx, "s", "55"))

	cur, err := e.auth.CurrentCitizen(e.ctx, e.sc(t, "s"))
	require.NoError(t, err)
	assert.Equal(t, cid, cur.ID.String())

	require.NoError(t, e.auth.Logout(e.ctx, "s"))
	sc := e.sc(t, "s")
	assert.False(t, sc.HasCitizen())
	assert.False(t, sc.HasCart())
	cur, err = e.auth.CurrentCitizen(e.ctx, sc)
	require.NoError(t, err)
	assert.Nil(t, cur)

	_, err = e.auth.Login(e.ctx, "s", "999")
	require.Error(t, err)
}

func TestAuth_AdminLogin(t *testing.T) {
	e := newEnv(t)
	require.ErrorIs(t, e.auth.AdminLogin(e.ctx, "s", e.srv.AdminEmail, "wrong-pass"), services.ErrBadCreds)
	require.ErrorIs(t, e.auth.AdminLogin(e.ctx, "s", "no-email", "whatever1"), services.ErrBadCreds)
	assert.False(t, e.auth.AdminAuthorized(e.sc(t, "s")))

	e.adminLogin(t, "s")
	assert.True(t, e.auth.AdminAuthorized(e.sc(t, "s")))

	require.NoError(t, e.auth.AdminLogout(e.ctx, "s"))
	assert.False(t, e.auth.AdminAuthorized(e.sc(t, "s")))
}

func TestAdmin_CreateCitizenValidatesAndDefaultsEstado(t *testing.T) {
	e := newEnv(t)
	e.adminLogin(t, "s")

	_, err := e.admin.CreateCitizen(e.ctx, e.sc(t, "s"), services.CitizenForm{Nombre: "Luis"})
	var fe services.FieldErrors
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe, "apellido")
	assert.Contains(t, fe, "cedula")
	assert.NotContains(t, fe, "nombre")

	c, err := e.admin.CreateCitizen(e.ctx, e.sc(t, "s"), services.CitizenForm{
		Nombre: "Luis", Apellido: "Gómez", Cedula: "20020002", Email: "luis@qmd.test",
	})
	require.NoError(t, err)
	assert.Equal(t, "activo", c.Estado)

	stored, ok := e.srv.Citizen(c.ID.String())
	require.True(t, ok)
	assert.Equal(t, "activo", stored.Estado)
}

func TestAdmin_UpdateAndDeleteCitizen(t *testing.T) {
	e := newEnv(t)
	cid := e.srv.AddCitizen("Ana", "Pérez", "10010001")
	e.adminLogin(t, "s")

	c, _ := e.srv.Citizen(cid)
	form := services.FormFromCitizen(c)
	form.Telefono = "3001234567"
	form.Estado = "inactivo"
	require.NoError(t, e.admin.UpdateCitizen(e.ctx, e.sc(t, "s"), cid, form))
	c, _ = e.srv.Citizen(cid)
	assert.Equal(t, "3001234567", c.Telefono)
	assert.Equal(t, "inactivo", c.Estado)

	require.NoError(t, e.admin.DeleteCitizen(e.ctx, e.sc(t, "s"), cid))
	_, ok := e.srv.Citizen(cid)
	assert.False(t, ok)
}

func TestAdmin_CitizenPageLoadsConcurrently(t *testing.T) {
	e := newEnv(t)
	cid := e.srv.AddCitizen("Ana", "Pérez", "10010001")
	a := e.srv.AddProduct("Cuaderno", 1000, 10)
	done := e.srv.AddCart(cid, a, 2)
	e.srv.AddCart(cid, a, 1)
	_, err := e.api.Submit(e.ctx, done)
	require.NoError(t, err)
	e.adminLogin(t, "s")

	page, err := e.admin.CitizenPage(e.ctx, e.sc(t, "s"), cid)
	require.NoError(t, err)
	assert.Equal(t, "Ana", page.Citizen.Nombre)
	assert.Len(t, page.Carts, 2)
	require.Len(t, page.Submitted, 1)
	assert.True(t, decimal.NewFromInt(2000).Equal(page.Spent))
}

func TestAdmin_UnauthorizedClearsToken(t *testing.T) {
	e := newEnv(t)
	cid := e.srv.AddCitizen("Ana", "Pérez", "10010001")
	e.adminLogin(t, "s")
	e.srv.Fail("GET /carro/tramitados/{ciudadanoId}", http.StatusUnauthorized)

	_, err := e.admin.CitizenPage(e.ctx, e.sc(t, "s"), cid)
	require.ErrorIs(t, err, qmdapi.ErrUnauthorized)
	assert.Empty(t, e.sc(t, "s").AdminToken)
	assert.Equal(t, 1, e.srv.Calls("GET /carro/tramitados/{ciudadanoId}"))

	// without a token nothing reaches the API
	_, err = e.admin.Citizens(e.ctx, e.sc(t, "s"))
	require.ErrorIs(t, err, qmdapi.ErrUnauthorized)
	assert.Zero(t, e.srv.Calls("GET /ciudadanos"))
}

func TestAdmin_ExpiredJWTIsRejectedLocally(t *testing.T) {
	e := newEnv(t)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	require.NoError(t, e.sessions.SetAdminToken(e.ctx, "s", expired))

	_, err = e.admin.Citizens(e.ctx, e.sc(t, "s"))
	require.ErrorIs(t, err, qmdapi.ErrUnauthorized)
	assert.Empty(t, e.sc(t, "s").AdminToken)
	assert.Zero(t, e.srv.Calls("GET /ciudadanos"))
}

func TestAdmin_CartDetailAndMeta(t *testing.T) {
	e := newEnv(t)
	cid := e.srv.AddCitizen("Ana", "Pérez", "10010001")
	a := e.srv.AddProduct("Cuaderno", 1000, 10)
	cart := e.srv.AddCart(cid, a, 3)
	e.adminLogin(t, "s")

	c, err := e.admin.Cart(e.ctx, e.sc(t, "s"), cart)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3000).Equal(c.Total))

	out, err := e.admin.UpdateCartMeta(e.ctx, e.sc(t, "s"), cart, services.CartMetaForm{
		Descripcion: "Compra", Observaciones: "  urgente ", Concepto: "Útiles",
	})
	require.NoError(t, err)
	assert.Equal(t, "urgente", out.Observaciones)
	stored, _ := e.srv.Cart(cart)
	assert.Equal(t, "Útiles", stored.Concepto)
}
