package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

var (
	//go:embed data/products.json
	productsRaw []byte

	//go:embed data/projects.json
	projectsRaw []byte

	//go:embed data/trends.json
	trendsRaw []byte
)

// MemoryGateway serves the catalog from memory. Used for local runs and
// tests; the embedded seed mirrors the production table shapes.
type MemoryGateway struct {
	products []Product
	projects []Project
	trends   []Trend
}

var _ Gateway = (*MemoryGateway)(nil)

// NewMemoryGateway loads the embedded seed data.
func NewMemoryGateway() (*MemoryGateway, error) {
	g := &MemoryGateway{}
	if err := json.Unmarshal(productsRaw, &g.products); err != nil {
		return nil, fmt.Errorf("decode embedded products: %w", err)
	}
	if err := json.Unmarshal(projectsRaw, &g.projects); err != nil {
		return nil, fmt.Errorf("decode embedded projects: %w", err)
	}
	if err := json.Unmarshal(trendsRaw, &g.trends); err != nil {
		return nil, fmt.Errorf("decode embedded trends: %w", err)
	}
	return g, nil
}

// NewStaticGateway builds a gateway over caller-provided data. Handy in
// tests that need full control over the candidate set.
func NewStaticGateway(products []Product, projects []Project, trends []Trend) *MemoryGateway {
	return &MemoryGateway{
		products: append([]Product(nil), products...),
		projects: append([]Project(nil), projects...),
		trends:   append([]Trend(nil), trends...),
	}
}

func (g *MemoryGateway) Products(ctx context.Context, category string) ([]Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	category = strings.TrimSpace(strings.ToLower(category))
	out := make([]Product, 0, 4)
	for _, p := range g.products {
		if strings.ToLower(p.Category) == category {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (g *MemoryGateway) Product(ctx context.Context, sku string) (Product, error) {
	if err := ctx.Err(); err != nil {
		return Product{}, err
	}
	sku = strings.TrimSpace(sku)
	for _, p := range g.products {
		if p.SKU == sku {
			return p, nil
		}
	}
	return Product{}, fmt.Errorf("%w: sku=%s", ErrProductNotFound, sku)
}

func (g *MemoryGateway) Project(ctx context.Context, id string) (Project, error) {
	if err := ctx.Err(); err != nil {
		return Project{}, err
	}
	id = strings.TrimSpace(id)
	for _, p := range g.projects {
		if p.ID == id {
			return p, nil
		}
	}
	return Project{}, fmt.Errorf("%w: id=%s", ErrProjectNotFound, id)
}

// SearchProjects matches the keyword against project titles and trend
// names, case-insensitively.
func (g *MemoryGateway) SearchProjects(ctx context.Context, keyword string) ([]Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keyword = strings.TrimSpace(strings.ToLower(keyword))
	if keyword == "" {
		return nil, nil
	}
	out := make([]Project, 0, 4)
	for _, p := range g.projects {
		if strings.Contains(strings.ToLower(p.Title), keyword) ||
			strings.EqualFold(p.Trend, keyword) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// TrendFor scans the query for trend keywords. First trend with a hit wins.
func (g *MemoryGateway) TrendFor(ctx context.Context, query string) (Trend, error) {
	if err := ctx.Err(); err != nil {
		return Trend{}, err
	}
	query = strings.ToLower(query)
	for _, t := range g.trends {
		for _, kw := range t.Keywords {
			if kw != "" && strings.Contains(query, strings.ToLower(kw)) {
				return t, nil
			}
		}
	}
	return Trend{}, ErrTrendNotFound
}
