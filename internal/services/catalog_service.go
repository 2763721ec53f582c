package services

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"qmd/internal/domain"
	"qmd/internal/qmdapi"
)

var ErrProductNotFound = errors.New("product not found")

type CatalogService struct {
	API *qmdapi.Client
}

func NewCatalogService(api *qmdapi.Client) *CatalogService { return &CatalogService{API: api} }

func (s *CatalogService) List(ctx context.Context) ([]domain.Product, error) {
	return s.API.ListProducts(ctx)
}

// Search filters the catalog by q over nombre, descripcion and category,
// ignoring case and accents. An empty q returns everything.
func (s *CatalogService) Search(ctx context.Context, q, category string) ([]domain.Product, error) {
	ps, err := s.API.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return FilterProducts(ps, q, category), nil
}

// Categories lists the distinct main categories in catalog order.
func Categories(ps []domain.Product) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range ps {
		c := strings.TrimSpace(p.CategoriaPrincipal)
		if c == "" || seen[fold(c)] {
			continue
		}
		seen[fold(c)] = true
		out = append(out, c)
	}
	return out
}

func FilterProducts(ps []domain.Product, q, category string) []domain.Product {
	q, category = fold(strings.TrimSpace(q)), fold(strings.TrimSpace(category))
	if q == "" && category == "" {
		return ps
	}
	out := make([]domain.Product, 0, len(ps))
	for _, p := range ps {
		if category != "" && fold(p.CategoriaPrincipal) != category {
			continue
		}
		if q != "" &&
			!strings.Contains(fold(p.Nombre), q) &&
			!strings.Contains(fold(p.Descripcion), q) &&
			!strings.Contains(fold(p.CategoriaPrincipal), q) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// fold lowercases and strips diacritics: "Lápiz" and "LAPIZ" both give "lapiz".
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(out)
}

type ProductDetail struct {
	Product domain.Product
	Sales   []domain.ProductSale
	Units   int
	Revenue decimal.Decimal
}

// Detail loads a product and its purchase lines concurrently.
func (s *CatalogService) Detail(ctx context.Context, id string) (ProductDetail, error) {
	var (
		products []domain.Product
		sales    []domain.ProductSale
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = s.API.ListProducts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		sales, err = s.API.ListProductSales(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return ProductDetail{}, err
	}

	out := ProductDetail{Sales: sales, Revenue: decimal.Zero}
	found := false
	for _, p := range products {
		if p.ID.String() == id {
			out.Product, found = p, true
			break
		}
	}
	if !found {
		return ProductDetail{}, ErrProductNotFound
	}
	for _, sale := range sales {
		out.Units += sale.Cantidad
		sub := sale.Subtotal
		if sub.IsZero() {
			sub = out.Product.Precio.Mul(decimal.NewFromInt(int64(sale.Cantidad)))
		}
		out.Revenue = out.Revenue.Add(sub)
	}
	return out, nil
}
