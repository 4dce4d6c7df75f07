package bundle

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	catalogx "github.com/nattcha/bundlecraft/agent/catalog"
)

// Item is one chosen product in a bundle. PromoCopy is only set on
// promoted items and never written back to the catalog.
type Item struct {
	Product   catalogx.Product `json:"product"`
	Quantity  int              `json:"quantity"`
	Promoted  bool             `json:"promoted"`
	PromoCopy string           `json:"promo_copy,omitempty"`
}

// Bundle is the finalized selection for one project. Immutable after
// creation; rebuild requests produce a new Bundle.
type Bundle struct {
	ID           string   `json:"id"`
	ProjectID    string   `json:"project_id"`
	Items        []Item   `json:"items"`
	Unfulfilled  []string `json:"unfulfilled,omitempty"`
	Total        float64  `json:"total"`
	RefinedSteps []string `json:"refined_steps,omitempty"`
}

func (b *Bundle) PromotedItems() []Item {
	if b == nil {
		return nil
	}
	out := make([]Item, 0, 2)
	for _, it := range b.Items {
		if it.Promoted {
			out = append(out, it)
		}
	}
	return out
}

// Copywriter decorates a built bundle with generated copy. Both methods
// must degrade instead of failing; see the content package.
type Copywriter interface {
	Describe(ctx context.Context, product catalogx.Product, projectTitle string) string
	RefineSteps(ctx context.Context, project catalogx.Project, items []Item) []string
}

type Config struct {
	PromotionThreshold float64 `envconfig:"PROMOTION_THRESHOLD" split_words:"true" default:"0.3"`
	PromoteProbability float64 `envconfig:"PROMOTE_PROBABILITY" split_words:"true" default:"0.8"`
}

func (c Config) Validate() error {
	if c.PromotionThreshold <= 0 {
		return fmt.Errorf("promotion threshold must be > 0, got %v", c.PromotionThreshold)
	}
	if c.PromoteProbability < 0 || c.PromoteProbability > 1 {
		return fmt.Errorf("promote probability must be in [0,1], got %v", c.PromoteProbability)
	}
	return nil
}

// Engine assembles bundles from a project's required categories, biasing
// in-stock low-velocity items into the selection.
type Engine struct {
	gateway catalogx.Gateway
	copy    Copywriter
	cfg     Config
	rng     *rand.Rand
}

// New builds an Engine. src seeds the promotion coin flip; pass a fixed
// seed in tests and entropy in production. copywriter may be nil.
func New(gateway catalogx.Gateway, copywriter Copywriter, cfg Config, src rand.Source) (*Engine, error) {
	if gateway == nil {
		return nil, fmt.Errorf("catalog gateway is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Engine{
		gateway: gateway,
		copy:    copywriter,
		cfg:     cfg,
		rng:     rand.New(src),
	}, nil
}

// Build resolves every required category of the project into a concrete
// product. A category with no in-stock candidates is flagged unfulfilled
// rather than aborting the build.
func (e *Engine) Build(ctx context.Context, project catalogx.Project) (*Bundle, error) {
	return e.build(ctx, project, nil)
}

// Rebuild runs the same selection excluding previously rejected SKUs.
func (e *Engine) Rebuild(ctx context.Context, project catalogx.Project, excludeSKUs []string) (*Bundle, error) {
	return e.build(ctx, project, excludeSKUs)
}

func (e *Engine) build(ctx context.Context, project catalogx.Project, excludeSKUs []string) (*Bundle, error) {
	if len(project.Requirements) == 0 {
		return nil, fmt.Errorf("project %s has no required categories", project.ID)
	}

	excluded := make(map[string]struct{}, len(excludeSKUs))
	for _, sku := range excludeSKUs {
		if sku = strings.TrimSpace(sku); sku != "" {
			excluded[sku] = struct{}{}
		}
	}

	b := &Bundle{
		ID:        uuid.NewString(),
		ProjectID: project.ID,
		Items:     make([]Item, 0, len(project.Requirements)),
	}

	for _, req := range project.Requirements {
		candidates, err := e.candidates(ctx, req.Category, excluded)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			b.Unfulfilled = append(b.Unfulfilled, req.Category)
			log.Debug().
				Str("project_id", project.ID).
				Str("category", req.Category).
				Msg("no in-stock candidate, category unfulfilled")
			continue
		}

		chosen, promoted := e.pick(candidates)
		item := Item{
			Product:  chosen,
			Quantity: req.Units(),
			Promoted: promoted,
		}
		if promoted && e.copy != nil {
			item.PromoCopy = e.copy.Describe(ctx, chosen, project.Title)
		}
		b.Items = append(b.Items, item)
		b.Total += chosen.UnitPrice * float64(item.Quantity)
	}

	if e.copy != nil && len(b.Items) > 0 {
		b.RefinedSteps = e.copy.RefineSteps(ctx, project, b.Items)
	}

	log.Info().
		Str("project_id", project.ID).
		Str("bundle_id", b.ID).
		Int("items", len(b.Items)).
		Int("unfulfilled", len(b.Unfulfilled)).
		Float64("total", b.Total).
		Msg("bundle built")
	return b, nil
}

func (e *Engine) candidates(ctx context.Context, category string, excluded map[string]struct{}) ([]catalogx.Product, error) {
	products, err := e.gateway.Products(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("load candidates for category=%s: %w", category, err)
	}
	out := make([]catalogx.Product, 0, len(products))
	for _, p := range products {
		if !p.InStock() {
			continue
		}
		if _, rejected := excluded[p.SKU]; rejected {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// pick applies the promotion policy: when a sub-threshold candidate
// exists, the slowest mover wins with probability PromoteProbability;
// otherwise the best seller wins. Ties break on lowest SKU.
func (e *Engine) pick(candidates []catalogx.Product) (catalogx.Product, bool) {
	slow := lowestVelocity(candidates)
	if slow.Velocity < e.cfg.PromotionThreshold && e.rng.Float64() < e.cfg.PromoteProbability {
		return slow, true
	}
	return highestVelocity(candidates), false
}

func lowestVelocity(candidates []catalogx.Product) catalogx.Product {
	return extreme(candidates, func(a, b catalogx.Product) bool {
		if a.Velocity != b.Velocity {
			return a.Velocity < b.Velocity
		}
		return a.SKU < b.SKU
	})
}

func highestVelocity(candidates []catalogx.Product) catalogx.Product {
	return extreme(candidates, func(a, b catalogx.Product) bool {
		if a.Velocity != b.Velocity {
			return a.Velocity > b.Velocity
		}
		return a.SKU < b.SKU
	})
}

func extreme(candidates []catalogx.Product, less func(a, b catalogx.Product) bool) catalogx.Product {
	sorted := append([]catalogx.Product(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	return sorted[0]
}
