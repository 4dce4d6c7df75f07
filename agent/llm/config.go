package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/nattcha/bundlecraft/agent/contract"
	openrouterx "github.com/nattcha/bundlecraft/pkg/openrouter"
)

// Role selects which model profile a client is built for: the conversation
// loop and the copywriting pipeline may run on different models.
type Role string

const (
	RoleConversation Role = "conversation"
	RoleCopywriting  Role = "copywriting"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	ConversationModel       string  `envconfig:"CONVERSATION_MODEL" split_words:"true"`
	CopywritingModel        string  `envconfig:"COPYWRITING_MODEL" split_words:"true"`
	ConversationTemperature float32 `envconfig:"CONVERSATION_TEMPERATURE" split_words:"true" default:"-1"`
	CopywritingTemperature  float32 `envconfig:"COPYWRITING_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

// OpenRouterFor resolves the per-role model and temperature overrides.
func (c Config) OpenRouterFor(role Role) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	switch role {
	case RoleConversation:
		if v := strings.TrimSpace(c.ConversationModel); v != "" {
			modelName = v
		}
		if c.ConversationTemperature >= 0 {
			temp = c.ConversationTemperature
		}
	case RoleCopywriting:
		if v := strings.TrimSpace(c.CopywritingModel); v != "" {
			modelName = v
		}
		if c.CopywritingTemperature >= 0 {
			temp = c.CopywritingTemperature
		}
	}

	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: c.MaxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
