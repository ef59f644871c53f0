package generation

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// OpenAI generates text through the OpenAI chat completions API or any
// server speaking the same protocol.
type OpenAI struct {
	client oai.Client
	model  string
}

type openAIConfig struct {
	baseURL string
	timeout time.Duration
}

// OpenAIOption configures an OpenAI backend.
type OpenAIOption func(*openAIConfig)

// WithOpenAIBaseURL points the client at a compatible server.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) {
		c.baseURL = url
	}
}

// WithOpenAITimeout sets a per-request HTTP timeout.
func WithOpenAITimeout(d time.Duration) OpenAIOption {
	return func(c *openAIConfig) {
		c.timeout = d
	}
}

// NewOpenAI builds a backend. model is used when a request does not name one.
func NewOpenAI(apiKey, model string, opts ...OpenAIOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &openAIConfig{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &OpenAI{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Generate implements Generator.
func (p *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return "", fmt.Errorf("openai: build params: %w", err)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: %w", ErrEmptyResponse)
	}
	return clean(resp.Choices[0].Message.Content), nil
}

func (p *OpenAI) buildParams(req Request) (oai.ChatCompletionNewParams, error) {
	system, user, err := messages(req)
	if err != nil {
		return oai.ChatCompletionNewParams{}, err
	}

	model := p.model
	if req.Metadata.Model != "" {
		model = req.Metadata.Model
	}

	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(system),
			oai.UserMessage(user),
		},
	}
	if req.Metadata.WordLimit > 0 {
		// Two tokens per word leaves headroom over the word limit.
		params.MaxCompletionTokens = param.NewOpt(int64(req.Metadata.WordLimit * 2))
	}
	return params, nil
}
