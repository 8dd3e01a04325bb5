package secrets

import (
	"context"
	"fmt"
)

// Chain tries each provider in order; the first successful resolution
// wins.
type Chain struct {
	providers []Provider
}

// NewChain creates a provider that delegates to providers in order.
func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

func (c *Chain) Name() string { return "chain" }

func (c *Chain) Resolve(ctx context.Context, ref string) (*Secret, error) {
	var lastErr error
	for _, p := range c.providers {
		s, err := p.Resolve(ctx, ref)
		if err == nil {
			return s, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: no provider for %q", ErrNotFound, ref)
}
