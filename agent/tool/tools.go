package tool

import (
	"context"
	"fmt"

	bundlex "github.com/nattcha/bundlecraft/agent/bundle"
	catalogx "github.com/nattcha/bundlecraft/agent/catalog"
)

// Tool names, as declared to the model.
const (
	ToolGetTrend             = "get_trend"
	ToolSearchProjects       = "search_projects"
	ToolGetProjectDetails    = "get_project_details"
	ToolListRequiredProducts = "list_required_products"
	ToolCheckSubstitutes     = "check_substitutes"
	ToolBuildBundle          = "build_bundle"
	ToolRebuildBundle        = "rebuild_bundle"
	ToolGeneratePromo        = "generate_promo_description"
	ToolCloseSession         = "close_session"
)

const (
	OutcomeAccepted  = "accepted"
	OutcomeAbandoned = "abandoned"
)

// CategoryCandidates is one required category with its in-stock options.
type CategoryCandidates struct {
	Category string             `json:"category"`
	Quantity int                `json:"quantity"`
	Products []catalogx.Product `json:"products"`
}

type PromoOutput struct {
	SKU         string `json:"sku"`
	Description string `json:"description"`
}

type CloseOutput struct {
	Outcome string `json:"outcome"`
}

// Copywriter is the slice of the content generator the promo tool needs.
type Copywriter interface {
	Describe(ctx context.Context, product catalogx.Product, projectTitle string) string
}

// Deps are the collaborators the default toolset executes against.
type Deps struct {
	Gateway catalogx.Gateway
	Engine  *bundlex.Engine
	Copy    Copywriter
}

// NewDefaultRegistry declares the agent's toolset and binds it to the
// catalog gateway, bundling engine, and content generator.
func NewDefaultRegistry(deps Deps) (*Registry, error) {
	if deps.Gateway == nil {
		return nil, fmt.Errorf("catalog gateway is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("bundling engine is required")
	}

	r := NewRegistry()

	specs := []struct {
		spec    Spec
		handler Handler
	}{
		{
			Spec{
				Name: ToolGetTrend,
				Desc: "Identify a merchandising trend from the customer's own words.",
				Params: []Param{
					{Name: "query", Type: ParamString, Desc: "The customer's request, verbatim", Required: true, NonEmpty: true},
				},
			},
			func(ctx context.Context, args map[string]any) (any, error) {
				return deps.Gateway.TrendFor(ctx, StringArg(args, "query"))
			},
		},
		{
			Spec{
				Name: ToolSearchProjects,
				Desc: "Find predefined DIY projects matching a keyword or trend name.",
				Params: []Param{
					{Name: "keyword", Type: ParamString, Desc: "Search keyword or trend name", Required: true, NonEmpty: true},
				},
			},
			func(ctx context.Context, args map[string]any) (any, error) {
				return deps.Gateway.SearchProjects(ctx, StringArg(args, "keyword"))
			},
		},
		{
			Spec{
				Name: ToolGetProjectDetails,
				Desc: "Load one project's title, steps, and required product categories.",
				Params: []Param{
					{Name: "project_id", Type: ParamString, Desc: "Project identifier", Required: true, NonEmpty: true},
				},
			},
			func(ctx context.Context, args map[string]any) (any, error) {
				return deps.Gateway.Project(ctx, StringArg(args, "project_id"))
			},
		},
		{
			Spec{
				Name: ToolListRequiredProducts,
				Desc: "List the in-stock product options for each category a project needs.",
				Params: []Param{
					{Name: "project_id", Type: ParamString, Desc: "Project identifier", Required: true, NonEmpty: true},
				},
			},
			func(ctx context.Context, args map[string]any) (any, error) {
				return listRequiredProducts(ctx, deps.Gateway, StringArg(args, "project_id"))
			},
		},
		{
			Spec{
				Name: ToolCheckSubstitutes,
				Desc: "List in-stock substitutes for a category, excluding given SKUs.",
				Params: []Param{
					{Name: "category", Type: ParamString, Desc: "Product category", Required: true, NonEmpty: true},
					{Name: "exclude_ids", Type: ParamStringArray, Desc: "SKUs to exclude", Required: false},
				},
			},
			func(ctx context.Context, args map[string]any) (any, error) {
				excluded, _ := StringSlice(args["exclude_ids"])
				return checkSubstitutes(ctx, deps.Gateway, StringArg(args, "category"), excluded)
			},
		},
		{
			Spec{
				Name: ToolBuildBundle,
				Desc: "Assemble the product bundle for a chosen project.",
				Params: []Param{
					{Name: "project_id", Type: ParamString, Desc: "Project identifier", Required: true, NonEmpty: true},
				},
			},
			func(ctx context.Context, args map[string]any) (any, error) {
				project, err := deps.Gateway.Project(ctx, StringArg(args, "project_id"))
				if err != nil {
					return nil, err
				}
				return deps.Engine.Build(ctx, project)
			},
		},
		{
			Spec{
				Name: ToolRebuildBundle,
				Desc: "Build an alternative bundle, never re-selecting the rejected SKUs.",
				Params: []Param{
					{Name: "project_id", Type: ParamString, Desc: "Project identifier", Required: true, NonEmpty: true},
					{Name: "exclude_ids", Type: ParamStringArray, Desc: "SKUs the customer rejected", Required: true},
				},
			},
			func(ctx context.Context, args map[string]any) (any, error) {
				project, err := deps.Gateway.Project(ctx, StringArg(args, "project_id"))
				if err != nil {
					return nil, err
				}
				excluded, _ := StringSlice(args["exclude_ids"])
				return deps.Engine.Rebuild(ctx, project, excluded)
			},
		},
		{
			Spec{
				Name: ToolGeneratePromo,
				Desc: "Write promotional copy for one product in the project's context.",
				Params: []Param{
					{Name: "product_id", Type: ParamString, Desc: "Product SKU", Required: true, NonEmpty: true},
					{Name: "project_title", Type: ParamString, Desc: "Project the copy should reference", Required: false},
				},
			},
			func(ctx context.Context, args map[string]any) (any, error) {
				product, err := deps.Gateway.Product(ctx, StringArg(args, "product_id"))
				if err != nil {
					return nil, err
				}
				title := StringArg(args, "project_title")
				if title == "" {
					title = "craft"
				}
				if deps.Copy == nil {
					return PromoOutput{SKU: product.SKU, Description: fmt.Sprintf("A versatile %s pick for your %s project.", product.Category, title)}, nil
				}
				return PromoOutput{SKU: product.SKU, Description: deps.Copy.Describe(ctx, product, title)}, nil
			},
		},
		{
			Spec{
				Name: ToolCloseSession,
				Desc: "End the conversation once the customer accepts or abandons the bundle.",
				Params: []Param{
					{Name: "outcome", Type: ParamString, Desc: `"accepted" or "abandoned"`, Required: true, NonEmpty: true},
				},
			},
			func(ctx context.Context, args map[string]any) (any, error) {
				outcome := StringArg(args, "outcome")
				if outcome != OutcomeAccepted && outcome != OutcomeAbandoned {
					return nil, fmt.Errorf("outcome must be %q or %q", OutcomeAccepted, OutcomeAbandoned)
				}
				return CloseOutput{Outcome: outcome}, nil
			},
		},
	}

	for _, t := range specs {
		if err := r.Register(t.spec, t.handler); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func listRequiredProducts(ctx context.Context, gateway catalogx.Gateway, projectID string) ([]CategoryCandidates, error) {
	project, err := gateway.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}

	out := make([]CategoryCandidates, 0, len(project.Requirements))
	for _, req := range project.Requirements {
		products, err := gateway.Products(ctx, req.Category)
		if err != nil {
			return nil, err
		}
		inStock := make([]catalogx.Product, 0, len(products))
		for _, p := range products {
			if p.InStock() {
				inStock = append(inStock, p)
			}
		}
		out = append(out, CategoryCandidates{
			Category: req.Category,
			Quantity: req.Units(),
			Products: inStock,
		})
	}
	return out, nil
}

func checkSubstitutes(ctx context.Context, gateway catalogx.Gateway, category string, excludeSKUs []string) ([]catalogx.Product, error) {
	products, err := gateway.Products(ctx, category)
	if err != nil {
		return nil, err
	}
	excluded := make(map[string]struct{}, len(excludeSKUs))
	for _, sku := range excludeSKUs {
		excluded[sku] = struct{}{}
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
