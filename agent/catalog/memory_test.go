package catalog

import (
	"context"
	"errors"
	"testing"
)

func TestEmbeddedSeedLoads(t *testing.T) {
	t.Parallel()

	g, err := NewMemoryGateway()
	if err != nil {
		t.Fatalf("NewMemoryGateway: %v", err)
	}
	if len(g.products) == 0 || len(g.projects) == 0 || len(g.trends) == 0 {
		t.Fatalf("seed incomplete: %d products, %d projects, %d trends",
			len(g.products), len(g.projects), len(g.trends))
	}

	project, err := g.Project(context.Background(), "proj-wreath")
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if len(project.Requirements) == 0 || len(project.Steps) == 0 {
		t.Fatalf("seed project missing requirements or steps: %+v", project)
	}
}

func TestProductsFiltersByCategoryAndSortsBySKU(t *testing.T) {
	t.Parallel()

	g := NewStaticGateway([]Product{
		{SKU: "B-2", Category: "Ribbon"},
		{SKU: "A-1", Category: "ribbon"},
		{SKU: "C-3", Category: "twine"},
	}, nil, nil)

	out, err := g.Products(context.Background(), "RIBBON")
	if err != nil {
		t.Fatalf("Products: %v", err)
	}
	if len(out) != 2 || out[0].SKU != "A-1" || out[1].SKU != "B-2" {
		t.Fatalf("unexpected result %v", out)
	}
}

func TestLookupsReturnSentinelErrors(t *testing.T) {
	t.Parallel()

	g := NewStaticGateway(nil, nil, nil)
	ctx := context.Background()

	if _, err := g.Product(ctx, "nope"); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("Product: got %v", err)
	}
	if _, err := g.Project(ctx, "nope"); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("Project: got %v", err)
	}
	if _, err := g.TrendFor(ctx, "nothing matches"); !errors.Is(err, ErrTrendNotFound) {
		t.Fatalf("TrendFor: got %v", err)
	}
}

func TestSearchProjectsMatchesTitleAndTrend(t *testing.T) {
	t.Parallel()

	projects := []Project{
		{ID: "p1", Title: "Holiday Wreath", Trend: "Winter Wonderland"},
		{ID: "p2", Title: "Burlap Banner", Trend: "Rustic Charm"},
	}
	g := NewStaticGateway(nil, projects, nil)
	ctx := context.Background()

	byTitle, err := g.SearchProjects(ctx, "wreath")
	if err != nil || len(byTitle) != 1 || byTitle[0].ID != "p1" {
		t.Fatalf("title search: %v %v", byTitle, err)
	}

	byTrend, err := g.SearchProjects(ctx, "Rustic Charm")
	if err != nil || len(byTrend) != 1 || byTrend[0].ID != "p2" {
		t.Fatalf("trend search: %v %v", byTrend, err)
	}

	none, err := g.SearchProjects(ctx, "   ")
	if err != nil || none != nil {
		t.Fatalf("blank keyword: %v %v", none, err)
	}
}

func TestTrendForScansKeywords(t *testing.T) {
	t.Parallel()

	g := NewStaticGateway(nil, nil, []Trend{
		{Name: "Winter Wonderland", Keywords: []string{"wreath", "snow"}},
		{Name: "Rustic Charm", Keywords: []string{"burlap"}},
	})

	trend, err := g.TrendFor(context.Background(), "I'd love a BURLAP banner")
	if err != nil {
		t.Fatalf("TrendFor: %v", err)
	}
	if trend.Name != "Rustic Charm" {
		t.Fatalf("got %q", trend.Name)
	}
}

func TestRequirementUnitsDefaultsToOne(t *testing.T) {
	t.Parallel()

	if got := (Requirement{Category: "glue"}).Units(); got != 1 {
		t.Fatalf("got %d", got)
	}
	if got := (Requirement{Category: "twine", Quantity: 3}).Units(); got != 3 {
		t.Fatalf("got %d", got)
	}
}
