package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

const (
	defaultMaxTokens   = 2048
	defaultTemperature = 0.0
)

// Gateway is the model boundary used by the analysis pipeline: one system
// prompt, one user prompt, one named model, raw text back.
type Gateway struct {
	provider    Provider
	maxTokens   int
	temperature float64
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithMaxTokens sets the response token limit. Non-positive values are ignored.
func WithMaxTokens(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) GatewayOption {
	return func(g *Gateway) { g.temperature = t }
}

// NewGateway wraps a provider.
func NewGateway(p Provider, opts ...GatewayOption) *Gateway {
	g := &Gateway{provider: p, maxTokens: defaultMaxTokens, temperature: defaultTemperature}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Complete sends system and user prompts to model and returns the text of
// the reply. Errors are gateway errors (see IsGatewayError); the text is
// never interpreted here.
func (g *Gateway) Complete(ctx context.Context, model, system, user string) (string, error) {
	return g.complete(ctx, model, system, user, nil)
}

// CompleteJSON is Complete with native structured output requested. A
// reply the provider rejected against schema (or cut off at the token
// limit) is still returned as text with a nil error; the caller's parser
// decides what it holds.
func (g *Gateway) CompleteJSON(ctx context.Context, model, system, user string, schema *Schema) (string, error) {
	out, err := g.complete(ctx, model, system, user, schema)
	if raw, ok := rejectedContent(err); ok {
		slog.Warn("structured reply failed validation, keeping raw text",
			"purpose", PurposeFrom(ctx), "model", model, "schema", schema.Name, "error", err)
		return raw, nil
	}
	return out, err
}

func rejectedContent(err error) (string, bool) {
	var (
		inv *ErrInvalidResponse
		mt  *ErrMaxTokensExceeded
	)
	switch {
	case errors.As(err, &inv) && len(inv.Content) > 0:
		return string(inv.Content), true
	case errors.As(err, &mt) && len(mt.Content) > 0:
		return string(mt.Content), true
	}
	return "", false
}

func (g *Gateway) complete(ctx context.Context, model, system, user string, schema *Schema) (string, error) {
	if g == nil || g.provider == nil {
		return "", &ErrNotConfigured{Provider: "none"}
	}
	resp, err := g.provider.Generate(ctx, Request{
		Model:       model,
		System:      system,
		Messages:    []Message{{Role: RoleUser, Content: user}},
		Schema:      schema,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("complete with %s: %w", displayModel(model, g.provider), err)
	}
	return resp.Text(), nil
}

func displayModel(model string, p Provider) string {
	if model != "" {
		return model
	}
	return p.ModelID()
}
