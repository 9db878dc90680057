package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/mcroberts-scholars/scholarship-harvester/pkg/httpclient"
	"golang.org/x/time/rate"
)

const defaultChatPath = "/chat/completions"

// openAIChatCompleter talks to any OpenAI-compatible chat completions API
// (OpenAI, Groq, Mistral).
type openAIChatCompleter struct {
	cfg     Provider
	client  *resty.Client
	limiter *rate.Limiter
	log     Logger
}

// NewOpenAIChatCompleter builds a completer for an openai_chat provider.
func NewOpenAIChatCompleter(cfg Provider, log Logger) (Completer, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider %q missing base_url", cfg.ID)
	}
	return &openAIChatCompleter{
		cfg:     cfg,
		client:  httpclient.NewRestyHTTPClient(cfg.Timeout(), httpclient.WithHeaders(Headers(cfg))),
		limiter: newLimiter(cfg),
		log:     ensureLogger(log),
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string              `json:"model"`
	Messages       []chatMessage       `json:"messages"`
	Temperature    float64             `json:"temperature"`
	MaxTokens      int                 `json:"max_tokens,omitempty"`
	ResponseFormat *chatResponseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (o *openAIChatCompleter) ID() string { return o.cfg.ID }

// Complete sends one chat completion request and returns the first choice.
func (o *openAIChatCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	key := o.cfg.APIKey()
	if key == "" {
		return "", fmt.Errorf("%w: %s: env %s is not set", ErrProviderUnavailable, o.cfg.ID, o.cfg.APIKeyEnv)
	}
	if err := waitTurn(ctx, o.limiter, o.cfg.ID); err != nil {
		return "", err
	}

	body := chatRequest{
		Model:       o.cfg.Model,
		Temperature: o.cfg.TemperatureValue(),
		MaxTokens:   o.cfg.MaxTokens,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})
	if ConfigBool(o.cfg, ConfigJSONModeKey, false) {
		body.ResponseFormat = &chatResponseFormat{Type: "json_object"}
	}

	url := o.cfg.BaseURL + ConfigString(o.cfg, ConfigChatPathKey, defaultChatPath)
	resp, err := o.client.R().
		SetContext(ctx).
		SetAuthToken(key).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(url)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, o.cfg.ID, err)
	}
	if resp.IsError() {
		return "", classifyStatus(o.cfg.ID, resp.StatusCode(), resp.Body())
	}

	var parsed chatResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return "", fmt.Errorf("%w: %s: decode response: %v", ErrProviderUnavailable, o.cfg.ID, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: %s: response has no choices", ErrProviderUnavailable, o.cfg.ID)
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	o.log.DebugObj("chat completion received", "provider_completion", map[string]any{
		"provider_id": o.cfg.ID,
		"model":       o.cfg.Model,
		"chars":       len(content),
	})
	return content, nil
}
