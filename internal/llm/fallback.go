package llm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// FallbackProvider chains providers for plan analysis: when the
// configured default cannot answer, the next provider gets the same
// request. Order follows the config's fallback list.
type FallbackProvider struct {
	providers []Provider
	logger    *slog.Logger
}

// NewFallbackProvider creates the chain. At least one provider is
// required; a nil logger discards.
func NewFallbackProvider(providers []Provider, logger *slog.Logger) *FallbackProvider {
	if len(providers) == 0 {
		panic("llm: fallback chain needs at least one provider")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FallbackProvider{providers: providers, logger: logger}
}

// Complete asks each provider in turn and returns the first answer.
// Every failure short of the last is logged and swallowed; the last
// error comes back wrapped when the whole chain fails.
func (f *FallbackProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	var lastErr error
	for attempt, p := range f.providers {
		resp, err := p.Complete(ctx, req)
		if err == nil {
			if attempt > 0 {
				f.logger.InfoContext(ctx, "fallback provider answered",
					slog.String("provider", p.Name()),
					slog.Int("attempt", attempt+1))
			}
			return resp, nil
		}
		lastErr = err
		f.logger.WarnContext(ctx, "plan analysis provider failed",
			slog.String("provider", p.Name()),
			slog.String("error", err.Error()),
			slog.Int("remaining", len(f.providers)-attempt-1))
	}
	return nil, fmt.Errorf("all %d providers failed: %w", len(f.providers), lastErr)
}

// Name reports the primary provider plus a fallback marker.
func (f *FallbackProvider) Name() string {
	return f.providers[0].Name() + "+fallback"
}
