// Package secrets resolves opaque secret references into their values.
// Config fields that carry sensitive material (LLM provider API keys,
// OAuth client secrets, database DSNs) accept a reference such as
// "env://GEMINI_API_KEY" or "vault://secret/data/blimp/oauth#google"
// instead of the plaintext value, so config files stay safe to commit.
package secrets

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when a reference cannot be resolved.
var ErrNotFound = errors.New("secret not found")

// Secret holds resolved secret material. Never serialize it.
type Secret struct {
	Value    string
	Metadata map[string]string // backend detail for logging (lease, version)
}

// Provider resolves secret references. Implementations must be safe
// for concurrent use.
type Provider interface {
	// Resolve turns a reference ("env://NAME", "vault://path#field")
	// into secret material. Unresolvable references return ErrNotFound.
	Resolve(ctx context.Context, ref string) (*Secret, error)

	// Name identifies the provider in logs. Never includes secrets.
	Name() string
}

// refSchemes are the prefixes treated as secret references. Anything
// else is a literal value; a postgres:// DSN must not be mistaken for
// a reference.
var refSchemes = []string{"env://", "vault://"}

// IsRef reports whether value is a secret reference.
func IsRef(value string) bool {
	for _, scheme := range refSchemes {
		if strings.HasPrefix(value, scheme) {
			return true
		}
	}
	return false
}

// Resolve returns value unchanged when it is not a reference, and the
// resolved secret otherwise.
func Resolve(ctx context.Context, p Provider, value string) (string, error) {
	if !IsRef(value) {
		return value, nil
	}
	s, err := p.Resolve(ctx, value)
	if err != nil {
		return "", err
	}
	return s.Value, nil
}
