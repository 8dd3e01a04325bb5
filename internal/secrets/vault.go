package secrets

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// VaultConfig configures the Vault KV v2 provider. Address and token
// fall back to the VAULT_ADDR / VAULT_TOKEN / VAULT_NAMESPACE env vars.
type VaultConfig struct {
	Address        string `json:"address" yaml:"address"`
	Token          string `json:"token" yaml:"token"`
	Namespace      string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"` // Default: 5.
	TLSSkipVerify  bool   `json:"tls_skip_verify" yaml:"tls_skip_verify"`
}

// VaultProvider resolves "vault://secret/data/path#field" references
// against HashiCorp Vault KV v2 over plain HTTP with token auth. The
// optional #field selects one value; without it the whole data map is
// returned as JSON.
type VaultProvider struct {
	address   string
	token     string
	namespace string
	client    *http.Client
}

// NewVaultProvider creates a Vault KV v2 secret provider.
func NewVaultProvider(cfg VaultConfig) (*VaultProvider, error) {
	address := cfg.Address
	if env := os.Getenv("VAULT_ADDR"); env != "" {
		address = env
	}
	if address == "" {
		return nil, fmt.Errorf("vault address is required (secrets.vault.address or VAULT_ADDR)")
	}

	token := cfg.Token
	if env := os.Getenv("VAULT_TOKEN"); env != "" {
		token = env
	}
	if token == "" {
		return nil, fmt.Errorf("vault token is required (secrets.vault.token or VAULT_TOKEN)")
	}

	namespace := cfg.Namespace
	if env := os.Getenv("VAULT_NAMESPACE"); env != "" {
		namespace = env
	}

	timeout := 5 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.TLSSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &VaultProvider{
		address:   strings.TrimRight(address, "/"),
		token:     token,
		namespace: namespace,
		client:    &http.Client{Timeout: timeout, Transport: transport},
	}, nil
}

func (p *VaultProvider) Name() string { return "vault" }

func (p *VaultProvider) Resolve(ctx context.Context, ref string) (*Secret, error) {
	const prefix = "vault://"
	if !strings.HasPrefix(ref, prefix) {
		return nil, fmt.Errorf("%w: vault provider cannot resolve %q", ErrNotFound, ref)
	}
	path, field, _ := strings.Cut(strings.TrimPrefix(ref, prefix), "#")
	if path == "" {
		return nil, fmt.Errorf("%w: empty vault path", ErrNotFound)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.address+"/v1/"+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building vault request: %w", err)
	}
	req.Header.Set("X-Vault-Token", p.token)
	if p.namespace != "" {
		req.Header.Set("X-Vault-Namespace", p.namespace)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vault request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading vault response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: vault path %q", ErrNotFound, path)
	case resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("vault access denied for path %q", path)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("vault returned status %d for path %q", resp.StatusCode, path)
	}

	// KV v2 envelope: { "data": { "data": { ... } } }.
	var envelope struct {
		Data struct {
			Data map[string]any `json:"data"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("parsing vault response: %w", err)
	}
	data := envelope.Data.Data
	if data == nil {
		return nil, fmt.Errorf("%w: vault path %q returned no data", ErrNotFound, path)
	}

	meta := map[string]string{"source": "vault", "path": path}
	if field == "" {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encoding vault data: %w", err)
		}
		return &Secret{Value: string(b), Metadata: meta}, nil
	}

	meta["field"] = field
	val, ok := data[field]
	if !ok {
		return nil, fmt.Errorf("%w: field %q in vault path %q", ErrNotFound, field, path)
	}
	str, ok := val.(string)
	if !ok {
		return nil, fmt.Errorf("vault field %q in path %q is not a string", field, path)
	}
	return &Secret{Value: str, Metadata: meta}, nil
}
