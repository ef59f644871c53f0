package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
)

// BackendConfig describes how to reach one source.
type BackendConfig struct {
	Source  string `yaml:"source"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Timeout time.Duration
}

// envPrefix maps a source to the variable prefix its overrides use, such as
// OLLAMA_BASE_URL or ANTHROPIC_API_KEY.
func envPrefix(source string) string {
	return strings.ToUpper(source) + "_"
}

// WithEnv returns a copy of c with API key, base URL and model overridden
// from env. Only keys belonging to the source are considered.
func (c BackendConfig) WithEnv(env map[string]string) BackendConfig {
	prefix := envPrefix(c.Source)
	if v := env[prefix+"API_KEY"]; v != "" {
		c.APIKey = v
	}
	if v := env[prefix+"BASE_URL"]; v != "" {
		c.BaseURL = v
	}
	if v := env[prefix+"MODEL"]; v != "" {
		c.Model = v
	}
	return c
}

// NewBackend builds a Generator for cfg. OpenAI with an API key uses the
// native client; every other source goes through any-llm-go.
func NewBackend(cfg BackendConfig) (Generator, error) {
	source := strings.ToLower(cfg.Source)
	if source == "openai" && cfg.APIKey != "" {
		var opts []OpenAIOption
		if cfg.BaseURL != "" {
			opts = append(opts, WithOpenAIBaseURL(cfg.BaseURL))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, WithOpenAITimeout(cfg.Timeout))
		}
		return NewOpenAI(cfg.APIKey, cfg.Model, opts...)
	}

	var opts []anyllmlib.Option
	if cfg.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
	}
	return NewAnyLLM(source, cfg.Model, opts...)
}

// Router dispatches requests to a backend chosen by Metadata.Source.
type Router struct {
	fallback string
	allowEnv bool
	build    func(BackendConfig) (Generator, error)
	logger   *slog.Logger

	mu       sync.RWMutex
	backends map[string]Generator
	configs  map[string]BackendConfig
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithCustomEnv lets requests override provider settings through Request.Env.
func WithCustomEnv(allow bool) RouterOption {
	return func(r *Router) { r.allowEnv = allow }
}

// WithBackendFactory replaces NewBackend, mostly for tests.
func WithBackendFactory(fn func(BackendConfig) (Generator, error)) RouterOption {
	return func(r *Router) { r.build = fn }
}

// WithRouterLogger sets the logger.
func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

// NewRouter returns a router that sends requests without a source to fallback.
func NewRouter(fallback string, opts ...RouterOption) *Router {
	r := &Router{
		fallback: strings.ToLower(fallback),
		build:    NewBackend,
		logger:   slog.Default(),
		backends: make(map[string]Generator),
		configs:  make(map[string]BackendConfig),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register builds and stores a backend for cfg.Source.
func (r *Router) Register(cfg BackendConfig) error {
	cfg.Source = strings.ToLower(cfg.Source)
	g, err := r.build(cfg)
	if err != nil {
		return fmt.Errorf("register %s: %w", cfg.Source, err)
	}
	r.mu.Lock()
	r.backends[cfg.Source] = g
	r.configs[cfg.Source] = cfg
	r.mu.Unlock()
	return nil
}

// Add stores a prebuilt backend. Requests with env overrides for this source
// cannot rebuild it and use it unchanged.
func (r *Router) Add(source string, g Generator) {
	r.mu.Lock()
	r.backends[strings.ToLower(source)] = g
	r.mu.Unlock()
}

// Sources lists the registered source names.
func (r *Router) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.backends))
	for s := range r.backends {
		out = append(out, s)
	}
	return out
}

// AllowsCustomEnv reports whether request env overrides are honoured.
func (r *Router) AllowsCustomEnv() bool {
	return r.allowEnv
}

// Generate implements Generator.
func (r *Router) Generate(ctx context.Context, req Request) (string, error) {
	g, err := r.resolve(req)
	if err != nil {
		return "", err
	}
	return g.Generate(ctx, req)
}

func (r *Router) resolve(req Request) (Generator, error) {
	source := strings.ToLower(req.Metadata.Source)
	if source == "" {
		source = r.fallback
	}

	r.mu.RLock()
	g, ok := r.backends[source]
	cfg, hasCfg := r.configs[source]
	r.mu.RUnlock()

	if r.allowEnv && len(req.Env) > 0 {
		if !hasCfg {
			cfg = BackendConfig{Source: source, Model: req.Metadata.Model}
		}
		override := cfg.WithEnv(req.Env)
		if override != cfg || !ok {
			r.logger.Debug("building request scoped backend", "source", source)
			built, err := r.build(override)
			if err != nil {
				return nil, fmt.Errorf("build %s backend: %w", source, err)
			}
			return built, nil
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownSource, source)
	}
	return g, nil
}
