package main

import (
	"bufio"
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	orchestratorx "github.com/nattcha/bundlecraft/agent/agents/orchestrator"
	bundlex "github.com/nattcha/bundlecraft/agent/bundle"
	catalogx "github.com/nattcha/bundlecraft/agent/catalog"
	contentx "github.com/nattcha/bundlecraft/agent/content"
	llmx "github.com/nattcha/bundlecraft/agent/llm"
	promptx "github.com/nattcha/bundlecraft/agent/prompt"
	statex "github.com/nattcha/bundlecraft/agent/state"
	toolx "github.com/nattcha/bundlecraft/agent/tool"
	configx "github.com/nattcha/bundlecraft/pkg/config"
	_ "github.com/nattcha/bundlecraft/pkg/logger/autoload"
)

type AppConfig struct {
	// memory | postgres
	CatalogBackend string `envconfig:"CATALOG_BACKEND" split_words:"true" default:"memory"`
	// memory | redis | upstash
	SessionStore string `envconfig:"SESSION_STORE" split_words:"true" default:"memory"`
}

func main() {
	appCfg := configx.MustNew[AppConfig]("")

	gateway, err := newGateway(appCfg.CatalogBackend)
	if err != nil {
		log.Fatal().Err(err).Msg("catalog gateway init failed")
	}
	store, err := newStore(appCfg.SessionStore)
	if err != nil {
		log.Fatal().Err(err).Msg("session store init failed")
	}

	llmCfg := configx.MustNew[llmx.Config]("LLM")
	if err := llmCfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("llm config invalid")
	}
	convModel, err := llmx.NewClient(llmCfg.OpenRouterFor(llmx.RoleConversation))
	if err != nil {
		log.Fatal().Err(err).Msg("conversation model init failed")
	}
	copyModel, err := llmx.NewClient(llmCfg.OpenRouterFor(llmx.RoleCopywriting))
	if err != nil {
		log.Fatal().Err(err).Msg("copywriting model init failed")
	}

	prompts := promptx.LoadPromptSet()
	copywriter, err := contentx.New(copyModel, prompts.Describe, prompts.RefineSteps)
	if err != nil {
		log.Fatal().Err(err).Msg("content generator init failed")
	}

	bundleCfg := configx.MustNew[bundlex.Config]("BUNDLE")
	engine, err := bundlex.New(gateway, copywriter, *bundleCfg, rand.NewSource(time.Now().UnixNano()))
	if err != nil {
		log.Fatal().Err(err).Msg("bundling engine init failed")
	}

	registry, err := toolx.NewDefaultRegistry(toolx.Deps{
		Gateway: gateway,
		Engine:  engine,
		Copy:    copywriter,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("tool registry init failed")
	}

	agentCfg := configx.MustNew[orchestratorx.Config]("AGENT")
	agent, err := orchestratorx.New(store, convModel, registry, prompts.Assistant, *agentCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("orchestrator init failed")
	}

	runChat(agent)
}

func newGateway(backend string) (catalogx.Gateway, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "memory":
		return catalogx.NewMemoryGateway()
	case "postgres":
		cfg := configx.MustNew[catalogx.PostgresConfig]("CATALOG_PG")
		return catalogx.NewPostgresGateway(*cfg)
	default:
		return nil, fmt.Errorf("unknown catalog backend %q", backend)
	}
}

func newStore(kind string) (statex.Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "memory":
		return statex.NewMemoryStore(), nil
	case "redis":
		cfg := configx.MustNew[statex.RedisConfig]("SESSION_REDIS")
		return statex.NewRedisStore(*cfg)
	case "upstash":
		cfg := configx.MustNew[statex.UpstashRESTConfig]("SESSION_UPSTASH")
		return statex.NewUpstashRESTStore(*cfg)
	default:
		return nil, fmt.Errorf("unknown session store %q", kind)
	}
}

// runChat is a minimal terminal front end: one session per process, one
// orchestrator turn per line of input.
func runChat(agent *orchestratorx.Orchestrator) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionID := uuid.NewString()
	fmt.Println("BundleCraft assistant ready. Type your request, or \"exit\" to quit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}

		result, err := agent.HandleMessage(ctx, sessionID, line)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Str("session_id", sessionID).Msg("turn failed")
			fmt.Println("agent> Something went wrong on my end. Please try again.")
			continue
		}
		fmt.Printf("agent> %s\n", result.Reply)
	}
}
