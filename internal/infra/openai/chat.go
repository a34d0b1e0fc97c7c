package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"audiotextbot/internal/domain"
)

const (
	DefaultChatURL   = "https://openrouter.ai/api/v1/chat/completions"
	DefaultChatModel = "deepseek/deepseek-chat"
	DefaultProvider  = "OpenRouter"
)

type ChatConfig struct {
	APIKey string
	// URL is the full chat completions endpoint.
	URL   string
	Model string
	// Provider names the service in error messages.
	Provider string
	// Timeout of zero leaves the HTTP client without a deadline.
	Timeout time.Duration
}

// ChatClient sends single-turn prompts to an OpenAI-compatible chat
// completions endpoint.
type ChatClient struct {
	client   *goopenai.Client
	model    string
	provider string
}

func NewChatClient(cfg ChatConfig) (*ChatClient, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultChatURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultChatModel
	}
	if cfg.Provider == "" {
		cfg.Provider = DefaultProvider
	}

	endpoint, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing chat url: %w", err)
	}
	if endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("chat url %q must be absolute", cfg.URL)
	}

	config := goopenai.DefaultConfig(cfg.APIKey)
	config.BaseURL = cfg.URL
	config.HTTPClient = &endpointDoer{
		client:   &http.Client{Timeout: cfg.Timeout},
		endpoint: endpoint,
	}

	return &ChatClient{
		client:   goopenai.NewClientWithConfig(config),
		model:    cfg.Model,
		provider: cfg.Provider,
	}, nil
}

// endpointDoer sends every request to one fixed URL. go-openai appends
// its own route to BaseURL, which would change a configured endpoint.
type endpointDoer struct {
	client   *http.Client
	endpoint *url.URL
}

func (d *endpointDoer) Do(req *http.Request) (*http.Response, error) {
	target := *d.endpoint
	req = req.Clone(req.Context())
	req.URL = &target
	req.Host = target.Host
	return d.client.Do(req)
}

func (c *ChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", c.classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %s response has no choices", domain.ErrAPIFormat, c.provider)
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("%w: %s response has empty content", domain.ErrAPIFormat, c.provider)
	}

	return content, nil
}

// classify maps a client error onto the domain taxonomy: an undecodable
// success body is a format problem, everything else is a network problem.
func (c *ChatClient) classify(err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError

	switch {
	case errors.As(err, &apiErr), errors.As(err, &reqErr):
		return fmt.Errorf("%w: %s API error: %v", domain.ErrNetwork, c.provider, err)
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return fmt.Errorf("%w: %s returned malformed JSON: %v", domain.ErrAPIFormat, c.provider, err)
	default:
		return fmt.Errorf("%w: %s API error: %v", domain.ErrNetwork, c.provider, err)
	}
}
