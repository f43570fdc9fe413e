// Package briefing turns a prediction into a short plain-language briefing
// for a launch team.
package briefing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/lox/balloonpredict/internal/logging"
	"github.com/lox/balloonpredict/internal/metrics"
	"github.com/lox/balloonpredict/internal/models"
)

const DefaultModel = "gpt-4o-mini"

// Generator writes briefings using OpenAI chat completions.
type Generator struct {
	client openai.Client
	model  string
	log    logging.Logger
}

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewGenerator creates a briefing generator. An empty API key falls back to
// the OPENAI_API_KEY environment variable.
func NewGenerator(cfg Config, log logging.Logger) (*Generator, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if log == nil {
		log = logging.Noop()
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL), option.WithMaxRetries(0))
	}

	return &Generator{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		log:    log,
	}, nil
}

// Generate returns a briefing for res.
func (g *Generator) Generate(ctx context.Context, res *models.PredictionResult) (string, error) {
	g.log.Debug(ctx, "briefing: generating", logging.String("id", res.ID), logging.String("model", g.model))

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(BuildPrompt(res)),
		},
		MaxCompletionTokens: openai.Int(300),
	})
	if err != nil {
		metrics.BriefingsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("briefing generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		metrics.BriefingsTotal.WithLabelValues("error").Inc()
		return "", errors.New("no briefing returned")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		metrics.BriefingsTotal.WithLabelValues("error").Inc()
		return "", errors.New("empty briefing returned")
	}
	metrics.BriefingsTotal.WithLabelValues("ok").Inc()
	return text, nil
}
