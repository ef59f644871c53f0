package generation

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"
)

// AnyLLM generates text through any provider supported by any-llm-go.
type AnyLLM struct {
	source  string
	backend anyllmlib.Provider
	model   string
}

// NewAnyLLM builds a backend for source, one of openai, anthropic, ollama,
// deepseek, mistral, groq or llamacpp. Without an API key option the
// provider falls back to its usual environment variable.
func NewAnyLLM(source, model string, opts ...anyllmlib.Option) (*AnyLLM, error) {
	if source == "" {
		return nil, fmt.Errorf("anyllm: source must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(source, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", source, err)
	}
	return &AnyLLM{source: source, backend: backend, model: model}, nil
}

func createBackend(source string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(source) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	default:
		return nil, fmt.Errorf("%w %q; supported: openai, anthropic, ollama, deepseek, mistral, groq, llamacpp", ErrUnknownSource, source)
	}
}

// Generate implements Generator.
func (p *AnyLLM) Generate(ctx context.Context, req Request) (string, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return "", fmt.Errorf("anyllm: build params: %w", err)
	}

	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("anyllm: %w", ErrEmptyResponse)
	}
	return clean(resp.Choices[0].Message.ContentString()), nil
}

func (p *AnyLLM) buildParams(req Request) (anyllmlib.CompletionParams, error) {
	system, user, err := messages(req)
	if err != nil {
		return anyllmlib.CompletionParams{}, err
	}

	model := p.model
	if req.Metadata.Model != "" {
		model = req.Metadata.Model
	}

	params := anyllmlib.CompletionParams{
		Model: model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: system},
			{Role: "user", Content: user},
		},
	}
	if req.Metadata.WordLimit > 0 {
		mt := req.Metadata.WordLimit * 2
		params.MaxTokens = &mt
	}
	return params, nil
}
