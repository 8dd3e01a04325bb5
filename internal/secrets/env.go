package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvProvider resolves "env://VARIABLE_NAME" references from the
// process environment.
type EnvProvider struct{}

// NewEnvProvider creates an environment-variable secret provider.
func NewEnvProvider() *EnvProvider { return &EnvProvider{} }

func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) Resolve(_ context.Context, ref string) (*Secret, error) {
	const prefix = "env://"
	if !strings.HasPrefix(ref, prefix) {
		return nil, fmt.Errorf("%w: env provider cannot resolve %q", ErrNotFound, ref)
	}
	name := strings.TrimPrefix(ref, prefix)
	if name == "" {
		return nil, fmt.Errorf("%w: empty environment variable name", ErrNotFound)
	}
	value := os.Getenv(name)
	if value == "" {
		return nil, fmt.Errorf("%w: environment variable %q is not set", ErrNotFound, name)
	}
	return &Secret{
		Value:    value,
		Metadata: map[string]string{"source": "env", "variable": name},
	}, nil
}
