package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/graphdesk/server/internal/agent/model"
	logx "github.com/graphdesk/server/pkg/logger"
)

// Generator is the text-completion capability the conversation core
// depends on. There is no structured-output guarantee; callers must
// defensively extract JSON from the returned text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config holds the settings for the Gemini-backed generators.
type Config struct {
	APIKey   string
	BaseURL  string
	Planner  *model.PlannerModelConfig
	Composer *model.ComposerModelConfig
}

// Models bundles the two generators the core uses: a low-temperature one
// for planning/classification and a warmer one for user-facing prose.
type Models struct {
	Planner  Generator
	Composer Generator
}

// NewModels creates both Gemini chat models from one client.
func NewModels(ctx context.Context, cfg Config) (*Models, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	planner, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.Planner.Model,
		Temperature: &cfg.Planner.Temperature,
		MaxTokens:   &cfg.Planner.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating planner model")
		return nil, fmt.Errorf("error creating planner model: %w", err)
	}

	composer, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.Composer.Model,
		Temperature: &cfg.Composer.Temperature,
		MaxTokens:   &cfg.Composer.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating composer model")
		return nil, fmt.Errorf("error creating composer model: %w", err)
	}

	return &Models{
		Planner:  &chatGenerator{model: planner, name: cfg.Planner.Model},
		Composer: &chatGenerator{model: composer, name: cfg.Composer.Model},
	}, nil
}

// chatGenerator adapts an Eino chat model to the single-prompt Generator
// contract used throughout the core.
type chatGenerator struct {
	model *gemini.ChatModel
	name  string
}

func (g *chatGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := g.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("generate with %s: %w", g.name, err)
	}
	if out == nil {
		return "", fmt.Errorf("generate with %s: empty response", g.name)
	}

	if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		logx.Debug().
			Str("model", g.name).
			Int("prompt_tokens", out.ResponseMeta.Usage.PromptTokens).
			Int("completion_tokens", out.ResponseMeta.Usage.CompletionTokens).
			Int("total_tokens", out.ResponseMeta.Usage.TotalTokens).
			Msg("LLM usage")
	}

	return out.Content, nil
}

var _ Generator = (*chatGenerator)(nil)
