package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"
)

// anthropicCompleter calls the Anthropic Messages API through the official SDK.
type anthropicCompleter struct {
	cfg     Provider
	client  anthropic.Client
	limiter *rate.Limiter
	log     Logger
	hasKey  bool
}

// NewAnthropicCompleter builds a completer for an anthropic provider.
func NewAnthropicCompleter(cfg Provider, log Logger) (Completer, error) {
	key := cfg.APIKey()
	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithRequestTimeout(cfg.Timeout()),
		option.WithMaxRetries(1),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &anthropicCompleter{
		cfg:     cfg,
		client:  anthropic.NewClient(opts...),
		limiter: newLimiter(cfg),
		log:     ensureLogger(log),
		hasKey:  key != "",
	}, nil
}

func (a *anthropicCompleter) ID() string { return a.cfg.ID }

// Complete sends one message and concatenates the text blocks of the reply.
func (a *anthropicCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if !a.hasKey {
		return "", fmt.Errorf("%w: %s: env %s is not set", ErrProviderUnavailable, a.cfg.ID, a.cfg.APIKeyEnv)
	}
	if err := waitTurn(ctx, a.limiter, a.cfg.ID); err != nil {
		return "", err
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.cfg.Model),
		MaxTokens:   int64(a.cfg.MaxTokens),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt))},
		Temperature: anthropic.Float(a.cfg.TemperatureValue()),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: %s: %v", ErrRateLimited, a.cfg.ID, err)
		}
		return "", fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, a.cfg.ID, err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	content := strings.TrimSpace(sb.String())
	if content == "" {
		return "", fmt.Errorf("%w: %s: reply has no text", ErrProviderUnavailable, a.cfg.ID)
	}

	a.log.DebugObj("anthropic completion received", "provider_completion", map[string]any{
		"provider_id": a.cfg.ID,
		"model":       a.cfg.Model,
		"chars":       len(content),
	})
	return content, nil
}
