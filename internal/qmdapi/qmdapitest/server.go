// Package qmdapitest runs an in-memory QMD API over httptest for tests of the
// client, the services and the portal handlers.
package qmdapitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"qmd/internal/domain"
)

type Server struct {
	*httptest.Server

	AdminEmail    string
	AdminPassword string
	AdminToken    string
	AdminHeader   string

	mu            sync.Mutex
	next          int
	products      []domain.Product
	stock         map[string]int
	citizens      []domain.Citizen
	carts         map[string]*domain.Cart
	order         []string
	notifications map[string][]map[string]any
	fail          map[string]int
	calls         map[string]int
}

// New starts the server; callers Close it.
func New() *Server {
	s := &Server{
		AdminEmail:    "admin@qmd.test",
		AdminPassword: "Secreta1!",
		AdminToken:    "admin-token",
		AdminHeader:   "X-Admin-Token",
		next:          100,
		stock:         map[string]int{},
		carts:         map[string]*domain.Cart{},
		notifications: map[string][]map[string]any{},
		fail:          map[string]int{},
		calls:         map[string]int{},
	}
	mux := http.NewServeMux()
	s.route(mux, "GET /productos", s.listProducts)
	s.route(mux, "GET /productos/{id}/detalles", s.productSales)
	s.route(mux, "GET /carro/{ciudadanoId}", s.fetchOrCreate)
	s.route(mux, "GET /carro/detalle/{carroId}", s.cartDetail)
	s.route(mux, "GET /carro/lista/{ciudadanoId}", s.listCarts)
	s.route(mux, "POST /carro/{carroId}/producto", s.addProduct)
	s.route(mux, "PUT /carro/{carroId}/detalle/{detalleId}", s.setQuantity)
	s.route(mux, "DELETE /carro/{carroId}/detalle/{detalleId}", s.removeLine)
	s.route(mux, "POST /carro/{carroId}/tramitar", s.submit)
	s.route(mux, "PUT /carro/{carroId}", s.admin(s.updateMeta))
	s.route(mux, "GET /carro/tramitados/{ciudadanoId}", s.admin(s.submitted))
	s.route(mux, "GET /ciudadanos", s.listCitizens)
	s.route(mux, "GET /ciudadanos/{id}", s.getCitizen)
	s.route(mux, "POST /ciudadanos", s.admin(s.createCitizen))
	s.route(mux, "PUT /ciudadanos/{id}", s.admin(s.updateCitizen))
	s.route(mux, "DELETE /ciudadanos/{id}", s.admin(s.deleteCitizen))
	s.route(mux, "POST /admin/login", s.login)
	s.route(mux, "GET /notificaciones/{ciudadanoId}", s.listNotifications)
	s.Server = httptest.NewServer(mux)
	return s
}

// Fail makes every request matching pattern answer status until Recover.
func (s *Server) Fail(pattern string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[pattern] = status
}

func (s *Server) Recover(pattern string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fail, pattern)
}

// Calls counts the requests served for pattern.
func (s *Server) Calls(pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[pattern]
}

func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[pattern]++
		status := s.fail[pattern]
		s.mu.Unlock()
		if status != 0 {
			writeJSON(w, status, map[string]any{"ok": false, "error": http.StatusText(status)})
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		h(w, r)
	})
}

func (s *Server) admin(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(s.AdminHeader) != s.AdminToken {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Token inválido"})
			return
		}
		h(w, r)
	}
}

func (s *Server) id() string {
	s.next++
	return strconv.Itoa(s.next)
}

// AddProduct registers a product and returns its id.
func (s *Server) AddProduct(nombre string, precio int64, stock int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	st := stock
	s.products = append(s.products, domain.Product{
		ID: domain.ID(id), Nombre: nombre, Precio: decimal.NewFromInt(precio),
		Codigo: "P-" + id, CategoriaPrincipal: "General", Stock: &st, Estado: "activo",
	})
	s.stock[id] = stock
	return id
}

func (s *Server) AddProductFull(p domain.Product, stock int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = domain.ID(s.id())
	}
	st := stock
	p.Stock = &st
	s.products = append(s.products, p)
	s.stock[p.ID.String()] = stock
	return p.ID.String()
}

// AddCitizen registers a citizen and returns its id.
func (s *Server) AddCitizen(nombre, apellido, cedula string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	s.citizens = append(s.citizens, domain.Citizen{
		ID: domain.ID(id), Nombre: nombre, Apellido: apellido, Cedula: cedula,
		Email: cedula + "@qmd.test", Estado: "activo",
	})
	return id
}

// AddCart creates an open cart for citizen with the given (productID, qty) pairs.
func (s *Server) AddCart(citizenID string, lines ...any) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.newCart(citizenID)
	for i := 0; i+1 < len(lines); i += 2 {
		p, _ := s.product(lines[i].(string))
		c.Detalles = append(c.Detalles, domain.LineItem{
			ID: domain.ID(s.id()), CarroID: c.ID, Producto: p, Cantidad: lines[i+1].(int),
		})
	}
	return c.ID.String()
}

// AddNotification stores a raw notification object for citizen.
func (s *Server) AddNotification(citizenID string, n map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[citizenID] = append(s.notifications[citizenID], n)
}

func (s *Server) Stock(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock[productID]
}

func (s *Server) SetStock(productID string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[productID] = n
}

// Cart returns a copy of the stored cart.
func (s *Server) Cart(id string) (domain.Cart, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[id]
	if !ok {
		return domain.Cart{}, false
	}
	out := *c
	out.Detalles = append([]domain.LineItem(nil), c.Detalles...)
	return out, true
}

func (s *Server) Citizen(id string) (domain.Citizen, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.citizenIndex(id)
	if i < 0 {
		return domain.Citizen{}, false
	}
	return s.citizens[i], true
}

func (s *Server) newCart(citizenID string) *domain.Cart {
	id := s.id()
	c := &domain.Cart{
		ID: domain.ID(id), CiudadanoID: domain.ID(citizenID),
		Codigo: "CAR-" + id, Estado: domain.CartOpen,
	}
	s.carts[id] = c
	s.order = append(s.order, id)
	return c
}

func (s *Server) product(id string) (domain.Product, bool) {
	for _, p := range s.products {
		if p.ID.String() == id {
			return p, true
		}
	}
	return domain.Product{}, false
}

func (s *Server) citizenIndex(id string) int {
	for i, c := range s.citizens {
		if c.ID.String() == id {
			return i
		}
	}
	return -1
}

func total(c *domain.Cart) decimal.Decimal {
	t := decimal.Zero
	for _, d := range c.Detalles {
		t = t.Add(d.ExpectedSubtotal())
	}
	return t
}

func withSubtotals(c *domain.Cart) domain.Cart {
	out := *c
	out.Detalles = make([]domain.LineItem, len(c.Detalles))
	for i, d := range c.Detalles {
		d.Subtotal = d.ExpectedSubtotal()
		out.Detalles[i] = d
	}
	out.Total = total(c)
	return out
}

func summary(c *domain.Cart) domain.CartSummary {
	n := 0
	for _, d := range c.Detalles {
		n += d.Cantidad
	}
	t := total(c)
	return domain.CartSummary{
		ID: c.ID, Codigo: c.Codigo, Estado: c.Estado, Fecha: c.Fecha,
		CantidadProductos: n, Subtotal: t, Total: t,
	}
}

func (s *Server) conflict(w http.ResponseWriter, p domain.Product, want int, detalleID string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"ok":              false,
		"error":           "Stock insuficiente",
		"producto":        p.Nombre,
		"stockDisponible": s.stock[p.ID.String()],
		"solicitado":      want,
		"detalleId":       detalleID,
		"productoId":      p.ID.String(),
	})
}

func (s *Server) listProducts(w http.ResponseWriter, _ *http.Request) {
	out := make([]domain.Product, len(s.products))
	for i, p := range s.products {
		st := s.stock[p.ID.String()]
		p.Stock = &st
		out[i] = p
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) productSales(w http.ResponseWriter, r *http.Request) {
	pid := r.PathValue("id")
	sales := []domain.ProductSale{}
	for _, id := range s.order {
		c := s.carts[id]
		var cit domain.Citizen
		if i := s.citizenIndex(c.CiudadanoID.String()); i >= 0 {
			cit = s.citizens[i]
		}
		for _, d := range c.Detalles {
			if d.Producto.ID.String() != pid {
				continue
			}
			sales = append(sales, domain.ProductSale{
				ID: d.ID, CarroCodigo: c.Codigo, CarroEstado: c.Estado, CarroFecha: c.Fecha,
				CiudadanoNombre: cit.Nombre, CiudadanoApellido: cit.Apellido,
				CiudadanoCedula: cit.Cedula, CiudadanoEmail: cit.Email,
				Cantidad: d.Cantidad, Monto: d.Producto.Precio, Subtotal: d.ExpectedSubtotal(),
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"detalles": sales})
}

func (s *Server) fetchOrCreate(w http.ResponseWriter, r *http.Request) {
	cid := r.PathValue("ciudadanoId")
	for _, id := range s.order {
		if c := s.carts[id]; c.CiudadanoID.String() == cid && !c.Submitted() {
			writeJSON(w, http.StatusOK, withSubtotals(c))
			return
		}
	}
	writeJSON(w, http.StatusOK, withSubtotals(s.newCart(cid)))
}

func (s *Server) cartDetail(w http.ResponseWriter, r *http.Request) {
	c, ok := s.carts[r.PathValue("carroId")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Carro no encontrado"})
		return
	}
	full := withSubtotals(c)
	meta := full
	meta.Detalles = nil
	writeJSON(w, http.StatusOK, map[string]any{"carro": meta, "detalles": full.Detalles, "total": full.Total})
}

func (s *Server) listCarts(w http.ResponseWriter, r *http.Request) {
	cid := r.PathValue("ciudadanoId")
	out := []domain.CartSummary{}
	for _, id := range s.order {
		if c := s.carts[id]; c.CiudadanoID.String() == cid {
			out = append(out, summary(c))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) openCart(w http.ResponseWriter, id string) *domain.Cart {
	c, ok := s.carts[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Carro no encontrado"})
		return nil
	}
	if c.Submitted() {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "El carro ya fue tramitado"})
		return nil
	}
	return c
}

func (s *Server) addProduct(w http.ResponseWriter, r *http.Request) {
	c := s.openCart(w, r.PathValue("carroId"))
	if c == nil {
		return
	}
	var in struct {
		ProductoID domain.ID `json:"productoId"`
		Cantidad   int       `json:"cantidad"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Cantidad < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Solicitud inválida"})
		return
	}
	p, ok := s.product(in.ProductoID.String())
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Producto no encontrado"})
		return
	}
	for i := range c.Detalles {
		if c.Detalles[i].Producto.ID == p.ID {
			want := c.Detalles[i].Cantidad + in.Cantidad
			if want > s.stock[p.ID.String()] {
				s.conflict(w, p, want, c.Detalles[i].ID.String())
				return
			}
			c.Detalles[i].Cantidad = want
			d := c.Detalles[i]
			d.Subtotal = d.ExpectedSubtotal()
			writeJSON(w, http.StatusOK, d)
			return
		}
	}
	if in.Cantidad > s.stock[p.ID.String()] {
		s.conflict(w, p, in.Cantidad, "")
		return
	}
	d := domain.LineItem{ID: domain.ID(s.id()), CarroID: c.ID, Producto: p, Cantidad: in.Cantidad}
	c.Detalles = append(c.Detalles, d)
	d.Subtotal = d.ExpectedSubtotal()
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) setQuantity(w http.ResponseWriter, r *http.Request) {
	c := s.openCart(w, r.PathValue("carroId"))
	if c == nil {
		return
	}
	var in struct {
		Cantidad int `json:"cantidad"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Cantidad < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Cantidad inválida"})
		return
	}
	did := r.PathValue("detalleId")
	for i := range c.Detalles {
		if c.Detalles[i].ID.String() != did {
			continue
		}
		p := c.Detalles[i].Producto
		if in.Cantidad > s.stock[p.ID.String()] {
			s.conflict(w, p, in.Cantidad, did)
			return
		}
		c.Detalles[i].Cantidad = in.Cantidad
		d := c.Detalles[i]
		d.Subtotal = d.ExpectedSubtotal()
		writeJSON(w, http.StatusOK, d)
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"error": "Detalle no encontrado"})
}

func (s *Server) removeLine(w http.ResponseWriter, r *http.Request) {
	c := s.openCart(w, r.PathValue("carroId"))
	if c == nil {
		return
	}
	did := r.PathValue("detalleId")
	for i := range c.Detalles {
		if c.Detalles[i].ID.String() == did {
			c.Detalles = append(c.Detalles[:i], c.Detalles[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"error": "Detalle no encontrado"})
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	c := s.openCart(w, r.PathValue("carroId"))
	if c == nil {
		return
	}
	for _, d := range c.Detalles {
		if d.Cantidad > s.stock[d.Producto.ID.String()] {
			s.conflict(w, d.Producto, d.Cantidad, d.ID.String())
			return
		}
	}
	for _, d := range c.Detalles {
		s.stock[d.Producto.ID.String()] -= d.Cantidad
	}
	c.Estado = domain.CartSubmitted
	c.Fecha = "2024-05-02T10:00:00Z"
	writeJSON(w, http.StatusOK, withSubtotals(c))
}

func (s *Server) updateMeta(w http.ResponseWriter, r *http.Request) {
	c, ok := s.carts[r.PathValue("carroId")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Carro no encontrado"})
		return
	}
	var in struct {
		Descripcion   *string `json:"descripcion"`
		Observaciones *string `json:"observaciones"`
		Concepto      *string `json:"concepto"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Solicitud inválida"})
		return
	}
	if in.Descripcion != nil {
		c.Descripcion = *in.Descripcion
	}
	if in.Observaciones != nil {
		c.Observaciones = *in.Observaciones
	}
	if in.Concepto != nil {
		c.Concepto = *in.Concepto
	}
	writeJSON(w, http.StatusOK, withSubtotals(c))
}

func (s *Server) submitted(w http.ResponseWriter, r *http.Request) {
	cid := r.PathValue("ciudadanoId")
	out := []domain.CartSummary{}
	for _, id := range s.order {
		if c := s.carts[id]; c.CiudadanoID.String() == cid && c.Submitted() {
			out = append(out, summary(c))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listCitizens(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, append([]domain.Citizen{}, s.citizens...))
}

func (s *Server) getCitizen(w http.ResponseWriter, r *http.Request) {
	i := s.citizenIndex(r.PathValue("id"))
	if i < 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Ciudadano no encontrado"})
		return
	}
	writeJSON(w, http.StatusOK, s.citizens[i])
}

func (s *Server) createCitizen(w http.ResponseWriter, r *http.Request) {
	var c domain.Citizen
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil || c.Cedula == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Datos inválidos"})
		return
	}
	for _, x := range s.citizens {
		if x.Cedula == c.Cedula {
			writeJSON(w, http.StatusConflict, map[string]any{"error": "La cédula ya existe"})
			return
		}
	}
	c.ID = domain.ID(s.id())
	s.citizens = append(s.citizens, c)
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) updateCitizen(w http.ResponseWriter, r *http.Request) {
	i := s.citizenIndex(r.PathValue("id"))
	if i < 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Ciudadano no encontrado"})
		return
	}
	var c domain.Citizen
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Datos inválidos"})
		return
	}
	c.ID = s.citizens[i].ID
	s.citizens[i] = c
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteCitizen(w http.ResponseWriter, r *http.Request) {
	i := s.citizenIndex(r.PathValue("id"))
	if i < 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Ciudadano no encontrado"})
		return
	}
	s.citizens = append(s.citizens[:i], s.citizens[i+1:]...)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil ||
		in.Email != s.AdminEmail || in.Password != s.AdminPassword {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Credenciales inválidas"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": s.AdminToken})
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	list := s.notifications[r.PathValue("ciudadanoId")]
	if list == nil {
		list = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notificaciones": list})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
