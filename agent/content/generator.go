package content

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	bundlex "github.com/nattcha/bundlecraft/agent/bundle"
	catalogx "github.com/nattcha/bundlecraft/agent/catalog"
	contractx "github.com/nattcha/bundlecraft/agent/contract"
)

// Generator produces marketing copy for promoted products and rewrites
// project steps for engagement. Every method degrades to a deterministic
// fallback on generator failure; a bundle build is never blocked by copy.
type Generator struct {
	gen         contractx.TextGenerator
	describeSys string
	refineSys   string
}

var _ bundlex.Copywriter = (*Generator)(nil)

func New(gen contractx.TextGenerator, describePrompt, refinePrompt string) (*Generator, error) {
	if gen == nil {
		return nil, fmt.Errorf("%w: text generator is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(describePrompt) == "" || strings.TrimSpace(refinePrompt) == "" {
		return nil, contractx.ErrPromptMissing
	}
	return &Generator{
		gen:         gen,
		describeSys: describePrompt,
		refineSys:   refinePrompt,
	}, nil
}

// Describe returns promo copy for one product in the context of a project.
func (g *Generator) Describe(ctx context.Context, product catalogx.Product, projectTitle string) string {
	payload := fmt.Sprintf("Project: %q. Product: %q (category: %s).",
		projectTitle, product.Name, product.Category)

	turn, err := g.gen.Generate(ctx, []contractx.Message{
		{Role: contractx.RoleSystem, Content: g.describeSys},
		{Role: contractx.RoleUser, Content: payload},
	}, nil)
	if err != nil {
		log.Warn().Err(err).Str("sku", product.SKU).Msg("promo copy generation failed, using template")
		return fallbackDescription(product.Category, projectTitle)
	}

	text := strings.Trim(strings.TrimSpace(turn.Text), `"`)
	if text == "" || turn.WantsTools() {
		return fallbackDescription(product.Category, projectTitle)
	}
	return text
}

// RefineSteps rewrites the project steps around the chosen products. On
// any failure the original steps come back unchanged.
func (g *Generator) RefineSteps(ctx context.Context, project catalogx.Project, items []bundlex.Item) []string {
	if len(project.Steps) == 0 {
		return nil
	}

	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.Product.Name)
	}
	payload := fmt.Sprintf("Project: %q.\nBundle items: %s.\nOriginal steps:\n%s",
		project.Title, strings.Join(names, ", "), numberSteps(project.Steps))

	turn, err := g.gen.Generate(ctx, []contractx.Message{
		{Role: contractx.RoleSystem, Content: g.refineSys},
		{Role: contractx.RoleUser, Content: payload},
	}, nil)
	if err != nil {
		log.Warn().Err(err).Str("project_id", project.ID).Msg("step refinement failed, keeping originals")
		return project.Steps
	}

	refined := parseSteps(turn.Text)
	if len(refined) == 0 {
		return project.Steps
	}
	return refined
}

func fallbackDescription(category, projectTitle string) string {
	return fmt.Sprintf("A versatile %s pick for your %s project.", category, projectTitle)
}

func numberSteps(steps []string) string {
	var sb strings.Builder
	for i, s := range steps {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s)
	}
	return sb.String()
}

// parseSteps cleans the model's numbered list: markdown bolding and
// leading "N." prefixes are stripped, blank lines dropped.
func parseSteps(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.ReplaceAll(line, "**", ""))
		if line == "" {
			continue
		}
		if dot := strings.Index(line, "."); dot > 0 && isDigits(line[:dot]) {
			line = strings.TrimSpace(line[dot+1:])
		}
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
