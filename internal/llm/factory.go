package llm

import (
	"context"
	"fmt"
)

// NewProvider creates a Provider from configuration.
// It returns the provider wrapped with retry and logging middleware.
// A nil eventRepo disables request logging.
func NewProvider(ctx context.Context, cfg Config, eventRepo EventSink) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var base Provider
	var err error

	switch cfg.Provider {
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "openrouter":
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	// Wrap with middleware: caller → retry → logging → base
	p := base
	if eventRepo != nil {
		p = WithLogging(p, cfg.Provider, eventRepo)
	}
	return WithRetry(p, cfg.Retry), nil
}

// NewProviderFromEnv builds a provider from environment configuration.
func NewProviderFromEnv(ctx context.Context, eventRepo EventSink) (Provider, error) {
	return NewProvider(ctx, ConfigFromEnv(), eventRepo)
}

// NewProviderOrUnconfigured is NewProvider, except that a missing
// credential yields a provider whose every call fails with
// *ErrNotConfigured. The application stays usable for sessions that were
// already analysed.
func NewProviderOrUnconfigured(ctx context.Context, cfg Config, eventRepo EventSink) (Provider, error) {
	p, err := NewProvider(ctx, cfg, eventRepo)
	if nc, ok := asNotConfigured(err); ok {
		return &unconfiguredProvider{err: nc}, nil
	}
	return p, err
}
