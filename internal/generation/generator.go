package generation

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrEmptyResponse is returned when a backend answers without choices.
	ErrEmptyResponse = errors.New("generation: empty response")
	// ErrUnknownSource is returned when no backend is registered for a source.
	ErrUnknownSource = errors.New("generation: unknown source")
)

// Generator produces suggestion text for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// messages renders the system and user message pair shared by all backends.
func messages(req Request) (system, user string, err error) {
	req.Metadata = req.Metadata.WithDefaults(DefaultMetadata())
	user, err = BuildPrompt(req)
	if err != nil {
		return "", "", err
	}
	return req.Mode.SystemPrompt(), user, nil
}

func clean(s string) string {
	return strings.TrimSpace(s)
}
