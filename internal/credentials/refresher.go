package credentials

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// OAuthApp holds the server-side client configuration for one app,
// used when a stored record does not carry its own client id/secret.
type OAuthApp struct {
	ClientID     string `json:"client_id" yaml:"client_id"`
	ClientSecret string `json:"client_secret" yaml:"client_secret"`
}

// appEndpoints maps app names to their OAuth2 token endpoints.
// Google and Slack come from x/oauth2; Notion and Discord are not in
// the endpoints package and are declared here.
var appEndpoints = map[string]oauth2.Endpoint{
	"gmail":    endpoints.Google,
	"calendar": endpoints.Google,
	"gdrive":   endpoints.Google,
	"slack":    endpoints.Slack,
	"notion": {
		AuthURL:  "https://api.notion.com/v1/oauth/authorize",
		TokenURL: "https://api.notion.com/v1/oauth/token",
	},
	"discord": {
		AuthURL:  "https://discord.com/oauth2/authorize",
		TokenURL: "https://discord.com/api/oauth2/token",
	},
}

// Refresher exchanges refresh tokens for new access tokens and writes
// the refreshed record back to the store. Refreshes for the same
// (user, app) pair are serialized; the token endpoint response is
// authoritative and the last write wins.
type Refresher struct {
	store     Store
	apps      map[string]OAuthApp
	endpoints map[string]oauth2.Endpoint
	client    *http.Client
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithHTTPClient sets the HTTP client used for token endpoint calls.
func WithHTTPClient(c *http.Client) RefresherOption {
	return func(r *Refresher) { r.client = c }
}

// WithEndpoints replaces the app endpoint table.
func WithEndpoints(eps map[string]oauth2.Endpoint) RefresherOption {
	return func(r *Refresher) { r.endpoints = eps }
}

// NewRefresher creates a Refresher. apps supplies fallback client
// credentials per app; records carrying their own take precedence.
func NewRefresher(store Store, apps map[string]OAuthApp, logger *slog.Logger, opts ...RefresherOption) *Refresher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if apps == nil {
		apps = map[string]OAuthApp{}
	}
	r := &Refresher{
		store:     store,
		apps:      apps,
		endpoints: appEndpoints,
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    logger,
		locks:     map[string]*sync.Mutex{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh exchanges rec's refresh token for a new access token,
// persists the refreshed record, and returns it. Grant problems
// (missing refresh token, unknown app, rejected exchange) come back as
// ReconnectError; store failures are wrapped plain errors.
func (r *Refresher) Refresh(ctx context.Context, userID, app string, rec *Record) (*Record, error) {
	lock := r.keyLock(userID + "\x00" + app)
	lock.Lock()
	defer lock.Unlock()

	if rec == nil || rec.RefreshToken == "" {
		return nil, &ReconnectError{App: app, Reason: "no refresh token on record"}
	}
	ep, ok := r.endpoints[app]
	if !ok {
		return nil, &ReconnectError{App: app, Reason: "no oauth endpoint configured"}
	}
	clientID, clientSecret := rec.ClientID, rec.ClientSecret
	if clientID == "" {
		clientID, clientSecret = r.apps[app].ClientID, r.apps[app].ClientSecret
	}
	if clientID == "" {
		return nil, &ReconnectError{App: app, Reason: "no oauth client configured"}
	}

	conf := &oauth2.Config{ClientID: clientID, ClientSecret: clientSecret, Endpoint: ep}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: rec.RefreshToken}).Token()
	if err != nil {
		r.logger.Warn("token refresh rejected",
			slog.String("user_id", userID),
			slog.String("app", app),
			slog.String("error", err.Error()))
		return nil, &ReconnectError{App: app, Reason: fmt.Sprintf("token exchange failed: %v", err)}
	}

	next := Normalize(r.mergeToken(rec, tok))
	if err := r.store.Put(ctx, userID, app, next); err != nil {
		return nil, fmt.Errorf("persist refreshed credential: %w", err)
	}
	r.logger.Info("token refreshed",
		slog.String("user_id", userID),
		slog.String("app", app),
		slog.Bool("rotated", tok.RefreshToken != "" && tok.RefreshToken != rec.RefreshToken))
	return next, nil
}

// mergeToken produces a new raw payload: a copy of the old one with the
// canonical token fields rewritten at the top level. Fields this
// package does not interpret survive untouched.
func (r *Refresher) mergeToken(rec *Record, tok *oauth2.Token) map[string]any {
	raw := make(map[string]any, len(rec.Raw)+3)
	for k, v := range rec.Raw {
		raw[k] = v
	}
	raw["access_token"] = tok.AccessToken
	if tok.RefreshToken != "" {
		raw["refresh_token"] = tok.RefreshToken
	} else {
		raw["refresh_token"] = rec.RefreshToken
	}
	if !tok.Expiry.IsZero() {
		raw["expires_at"] = tok.Expiry.UTC().Format(time.RFC3339)
	} else {
		delete(raw, "expires_at")
	}
	// The top level is authoritative after a refresh. A stale expiry
	// left under "credentials" or "metadata" would win normalization
	// when the endpoint returns no lifetime and force a refresh on
	// every authorize.
	for _, key := range []string{"credentials", "metadata"} {
		nested, ok := raw[key].(map[string]any)
		if !ok {
			continue
		}
		if _, has := nested["expires_at"]; !has {
			continue
		}
		cp := make(map[string]any, len(nested))
		for k, v := range nested {
			if k != "expires_at" {
				cp[k] = v
			}
		}
		raw[key] = cp
	}
	return raw
}

func (r *Refresher) keyLock(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}
