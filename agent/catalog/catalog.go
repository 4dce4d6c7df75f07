package catalog

import (
	"context"
	"errors"

	"github.com/uptrace/bun"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrProjectNotFound = errors.New("project not found")
	ErrTrendNotFound   = errors.New("no trend matched")
)

// Product is a catalog item. Velocity is a continuous score; lower means
// slower-moving stock. Read-only to the agent core.
type Product struct {
	bun.BaseModel `bun:"table:products" json:"-"`

	SKU       string  `bun:"sku,pk" json:"sku"`
	Name      string  `bun:"name,notnull" json:"name"`
	Category  string  `bun:"category,notnull" json:"category"`
	UnitPrice float64 `bun:"unit_price,notnull" json:"unit_price"`
	Stock     int     `bun:"stock,notnull" json:"stock"`
	Velocity  float64 `bun:"velocity,notnull" json:"velocity"`
}

func (p Product) InStock() bool {
	return p.Stock > 0
}

// Requirement is one product category a project needs, with how many units.
type Requirement struct {
	Category string `json:"category"`
	Quantity int    `json:"quantity,omitempty"`
}

func (r Requirement) Units() int {
	if r.Quantity < 1 {
		return 1
	}
	return r.Quantity
}

// Project is a predefined DIY project. Immutable once loaded.
type Project struct {
	bun.BaseModel `bun:"table:projects" json:"-"`

	ID           string        `bun:"id,pk" json:"id"`
	Title        string        `bun:"title,notnull" json:"title"`
	Trend        string        `bun:"trend" json:"trend,omitempty"`
	Steps        []string      `bun:"steps,array" json:"steps"`
	Requirements []Requirement `bun:"requirements,type:jsonb" json:"requirements"`
}

// Trend maps free-form user language onto a merchandising theme.
type Trend struct {
	bun.BaseModel `bun:"table:trends" json:"-"`

	Name     string   `bun:"name,pk" json:"name"`
	Keywords []string `bun:"keywords,array" json:"keywords"`
}

// Gateway is the read-only query surface over the product/project store.
// Implementations must be safe for concurrent readers and read-consistent
// within a single orchestration turn.
type Gateway interface {
	Products(ctx context.Context, category string) ([]Product, error)
	Product(ctx context.Context, sku string) (Product, error)
	Project(ctx context.Context, id string) (Project, error)
	SearchProjects(ctx context.Context, keyword string) ([]Project, error)
	TrendFor(ctx context.Context, query string) (Trend, error)
}
