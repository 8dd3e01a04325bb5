package secrets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEnvProvider(t *testing.T) {
	t.Setenv("BLIMP_TEST_SECRET", "s3cret")

	s, err := NewEnvProvider().Resolve(context.Background(), "env://BLIMP_TEST_SECRET")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.Value != "s3cret" {
		t.Errorf("Value = %q", s.Value)
	}
}

func TestEnvProvider_Unset(t *testing.T) {
	t.Setenv("BLIMP_TEST_UNSET", "")

	_, err := NewEnvProvider().Resolve(context.Background(), "env://BLIMP_TEST_UNSET")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestResolve_LiteralPassthrough(t *testing.T) {
	for _, literal := range []string{"plain-api-key", "postgres://u:p@host/db", ""} {
		got, err := Resolve(context.Background(), NewEnvProvider(), literal)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", literal, err)
		}
		if got != literal {
			t.Errorf("Resolve(%q) = %q, literals must pass through", literal, got)
		}
	}
}

func TestResolve_Reference(t *testing.T) {
	t.Setenv("BLIMP_TEST_REF", "resolved")

	got, err := Resolve(context.Background(), NewEnvProvider(), "env://BLIMP_TEST_REF")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "resolved" {
		t.Errorf("got %q", got)
	}
}

type staticProvider struct {
	value string
	err   error
}

func (p *staticProvider) Name() string { return "static" }

func (p *staticProvider) Resolve(context.Context, string) (*Secret, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &Secret{Value: p.value}, nil
}

func TestChain_FirstSuccessWins(t *testing.T) {
	chain := NewChain(
		&staticProvider{err: ErrNotFound},
		&staticProvider{value: "from-second"},
		&staticProvider{value: "never-reached"},
	)

	s, err := chain.Resolve(context.Background(), "env://X")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.Value != "from-second" {
		t.Errorf("Value = %q", s.Value)
	}
}

func TestChain_AllFail(t *testing.T) {
	chain := NewChain(&staticProvider{err: ErrNotFound})
	if _, err := chain.Resolve(context.Background(), "vault://x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func newVaultTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != "test-token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		switch r.URL.Path {
		case "/v1/secret/data/blimp/oauth":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"data":{"data":{"google_client_secret":"gsec","slack_client_secret":"ssec"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestVaultProvider_FieldSelector(t *testing.T) {
	srv := newVaultTestServer(t)
	defer srv.Close()

	p, err := NewVaultProvider(VaultConfig{Address: srv.URL, Token: "test-token"})
	if err != nil {
		t.Fatalf("NewVaultProvider: %v", err)
	}

	s, err := p.Resolve(context.Background(), "vault://secret/data/blimp/oauth#google_client_secret")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.Value != "gsec" {
		t.Errorf("Value = %q", s.Value)
	}

	if _, err := p.Resolve(context.Background(), "vault://secret/data/blimp/oauth#missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing field err = %v, want ErrNotFound", err)
	}
}

func TestVaultProvider_UnknownPath(t *testing.T) {
	srv := newVaultTestServer(t)
	defer srv.Close()

	p, err := NewVaultProvider(VaultConfig{Address: srv.URL, Token: "test-token"})
	if err != nil {
		t.Fatalf("NewVaultProvider: %v", err)
	}
	if _, err := p.Resolve(context.Background(), "vault://secret/data/nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestNewVaultProvider_RequiresAddress(t *testing.T) {
	t.Setenv("VAULT_ADDR", "")
	t.Setenv("VAULT_TOKEN", "")
	if _, err := NewVaultProvider(VaultConfig{}); err == nil {
		t.Fatal("NewVaultProvider succeeded without an address")
	}
}
