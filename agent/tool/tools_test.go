package tool

import (
	"context"
	"math/rand"
	"testing"

	bundlex "github.com/nattcha/bundlecraft/agent/bundle"
	catalogx "github.com/nattcha/bundlecraft/agent/catalog"
	contractx "github.com/nattcha/bundlecraft/agent/contract"
)

func newToolset(t *testing.T) *Registry {
	t.Helper()

	products := []catalogx.Product{
		{SKU: "RIB-001", Name: "Velvet Ribbon", Category: "ribbon", UnitPrice: 4.50, Stock: 40, Velocity: 0.12},
		{SKU: "RIB-002", Name: "Satin Ribbon", Category: "ribbon", UnitPrice: 3.25, Stock: 120, Velocity: 0.91},
		{SKU: "RIB-003", Name: "Grosgrain Ribbon", Category: "ribbon", UnitPrice: 2.75, Stock: 0, Velocity: 0.44},
	}
	projects := []catalogx.Project{{
		ID:           "proj-wreath",
		Title:        "Holiday Wreath",
		Trend:        "Winter Wonderland",
		Steps:        []string{"Shape the base", "Attach the ribbon"},
		Requirements: []catalogx.Requirement{{Category: "ribbon", Quantity: 1}},
	}}
	trends := []catalogx.Trend{{
		Name:     "Winter Wonderland",
		Keywords: []string{"wreath", "holiday", "winter"},
	}}

	gw := catalogx.NewStaticGateway(products, projects, trends)
	engine, err := bundlex.New(gw, nil, bundlex.Config{PromotionThreshold: 0.3, PromoteProbability: 1.0}, rand.NewSource(1))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	r, err := NewDefaultRegistry(Deps{Gateway: gw, Engine: engine})
	if err != nil {
		t.Fatalf("NewDefaultRegistry: %v", err)
	}
	return r
}

func dispatchOK(t *testing.T, r *Registry, name string, args map[string]any) contractx.ToolResult {
	t.Helper()
	res := r.Dispatch(context.Background(), contractx.ToolCall{ID: "c-" + name, Name: name, Args: args})
	if !res.OK() {
		t.Fatalf("%s: kind=%s err=%s", name, res.Kind, res.Error)
	}
	return res
}

func TestDefaultRegistryDeclaresFullToolset(t *testing.T) {
	t.Parallel()

	r := newToolset(t)
	decls := r.Declarations()
	if len(decls) != 9 {
		t.Fatalf("got %d tool declarations, want 9", len(decls))
	}
}

func TestGetTrendMatchesKeyword(t *testing.T) {
	t.Parallel()

	r := newToolset(t)
	res := dispatchOK(t, r, ToolGetTrend, map[string]any{"query": "I want to make a holiday wreath"})
	trend, ok := res.Result.(catalogx.Trend)
	if !ok {
		t.Fatalf("unexpected result type %T", res.Result)
	}
	if trend.Name != "Winter Wonderland" {
		t.Fatalf("got trend %q", trend.Name)
	}
}

func TestGetTrendMissReturnsExecutionError(t *testing.T) {
	t.Parallel()

	r := newToolset(t)
	res := r.Dispatch(context.Background(), contractx.ToolCall{
		Name: ToolGetTrend,
		Args: map[string]any{"query": "submarine repair"},
	})
	if res.Kind != contractx.ResultExecutionError {
		t.Fatalf("got kind %s, want %s", res.Kind, contractx.ResultExecutionError)
	}
}

func TestSearchAndLoadProject(t *testing.T) {
	t.Parallel()

	r := newToolset(t)
	res := dispatchOK(t, r, ToolSearchProjects, map[string]any{"keyword": "wreath"})
	found, ok := res.Result.([]catalogx.Project)
	if !ok || len(found) != 1 {
		t.Fatalf("unexpected search result %#v", res.Result)
	}

	res = dispatchOK(t, r, ToolGetProjectDetails, map[string]any{"project_id": found[0].ID})
	project, ok := res.Result.(catalogx.Project)
	if !ok || project.ID != "proj-wreath" {
		t.Fatalf("unexpected project result %#v", res.Result)
	}
}

func TestListRequiredProductsFiltersOutOfStock(t *testing.T) {
	t.Parallel()

	r := newToolset(t)
	res := dispatchOK(t, r, ToolListRequiredProducts, map[string]any{"project_id": "proj-wreath"})
	cats, ok := res.Result.([]CategoryCandidates)
	if !ok || len(cats) != 1 {
		t.Fatalf("unexpected result %#v", res.Result)
	}
	for _, p := range cats[0].Products {
		if p.SKU == "RIB-003" {
			t.Fatal("out-of-stock RIB-003 listed as candidate")
		}
	}
	if len(cats[0].Products) != 2 {
		t.Fatalf("got %d candidates, want 2", len(cats[0].Products))
	}
}

func TestCheckSubstitutesHonorsExclusions(t *testing.T) {
	t.Parallel()

	r := newToolset(t)
	res := dispatchOK(t, r, ToolCheckSubstitutes, map[string]any{
		"category":    "ribbon",
		"exclude_ids": []any{"RIB-001"},
	})
	subs, ok := res.Result.([]catalogx.Product)
	if !ok || len(subs) != 1 || subs[0].SKU != "RIB-002" {
		t.Fatalf("unexpected substitutes %#v", res.Result)
	}
}

func TestBuildAndRebuildBundle(t *testing.T) {
	t.Parallel()

	r := newToolset(t)
	res := dispatchOK(t, r, ToolBuildBundle, map[string]any{"project_id": "proj-wreath"})
	b, ok := res.Result.(*bundlex.Bundle)
	if !ok {
		t.Fatalf("unexpected result type %T", res.Result)
	}
	if b.Items[0].Product.SKU != "RIB-001" {
		t.Fatalf("expected promoted RIB-001, got %s", b.Items[0].Product.SKU)
	}

	res = dispatchOK(t, r, ToolRebuildBundle, map[string]any{
		"project_id":  "proj-wreath",
		"exclude_ids": []any{"RIB-001"},
	})
	rebuilt := res.Result.(*bundlex.Bundle)
	if rebuilt.Items[0].Product.SKU != "RIB-002" {
		t.Fatalf("rebuild ignored exclusion, got %s", rebuilt.Items[0].Product.SKU)
	}
	if rebuilt.ID == b.ID {
		t.Fatal("rebuild must mint a new bundle id")
	}
}

func TestGeneratePromoFallsBackWithoutCopywriter(t *testing.T) {
	t.Parallel()

	r := newToolset(t)
	res := dispatchOK(t, r, ToolGeneratePromo, map[string]any{
		"product_id":    "RIB-001",
		"project_title": "Holiday Wreath",
	})
	promo, ok := res.Result.(PromoOutput)
	if !ok || promo.SKU != "RIB-001" || promo.Description == "" {
		t.Fatalf("unexpected promo %#v", res.Result)
	}
}

func TestCloseSessionValidatesOutcome(t *testing.T) {
	t.Parallel()

	r := newToolset(t)
	res := dispatchOK(t, r, ToolCloseSession, map[string]any{"outcome": OutcomeAccepted})
	out, ok := res.Result.(CloseOutput)
	if !ok || out.Outcome != OutcomeAccepted {
		t.Fatalf("unexpected close output %#v", res.Result)
	}

	res = r.Dispatch(context.Background(), contractx.ToolCall{
		Name: ToolCloseSession,
		Args: map[string]any{"outcome": "maybe"},
	})
	if res.Kind != contractx.ResultExecutionError {
		t.Fatalf("bad outcome must fail execution, got %s", res.Kind)
	}
}
