package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/assistant.txt
	assistantRaw string

	//go:embed template/describe.txt
	describeRaw string

	//go:embed template/refine_steps.txt
	refineStepsRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Assistant   string
	Describe    string
	RefineSteps string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// Safe to call concurrently; the embed is compile-time.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Assistant:   strings.TrimSpace(assistantRaw),
		Describe:    strings.TrimSpace(describeRaw),
		RefineSteps: strings.TrimSpace(refineStepsRaw),
	}
}
