// Package credentials manages per-user OAuth credential records for
// connected apps: normalization of stored payloads, expiry checks, and
// refresh-token exchange.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned by stores when no credential record exists
// for a (user, app) pair.
var ErrNotFound = errors.New("credential not found")

// Store persists credential records keyed by (user, app).
type Store interface {
	Get(ctx context.Context, userID, app string) (*Record, error)
	Put(ctx context.Context, userID, app string, rec *Record) error
	Delete(ctx context.Context, userID, app string) error
	// ConnectedApps lists the apps the user has stored credentials for.
	ConnectedApps(ctx context.Context, userID string) ([]string, error)
}

// ExpirySkew is how far before the recorded expiry a token is already
// treated as expired. Refreshing early avoids racing the provider clock.
const ExpirySkew = 5 * time.Minute

// Record is the canonical in-memory form of a stored credential.
// Payloads arrive from OAuth callbacks in several shapes; Normalize
// flattens them once so nothing downstream inspects raw maps.
type Record struct {
	AccessToken  string
	RefreshToken string
	ClientID     string
	ClientSecret string

	// ExpiresAt is valid only when HasExpiry is set. InvalidExpiry
	// records that an expiry was present but unparsable; such records
	// count as expired so the refresh path decides what to do.
	ExpiresAt     time.Time
	HasExpiry     bool
	InvalidExpiry bool

	// Raw is the full original payload. Kept so refresh write-back
	// preserves fields this package does not interpret.
	Raw map[string]any
}

// Normalize builds a Record from a stored payload. Access and refresh
// tokens are searched at the top level, then under "credentials", then
// under "data". Expiry is searched at the top level, then under
// "credentials", then under "metadata". Missing fields stay zero.
func Normalize(raw map[string]any) *Record {
	rec := &Record{Raw: raw}
	if raw == nil {
		return rec
	}

	creds, _ := raw["credentials"].(map[string]any)
	data, _ := raw["data"].(map[string]any)
	meta, _ := raw["metadata"].(map[string]any)

	rec.AccessToken = firstString("access_token", raw, creds, data)
	rec.RefreshToken = firstString("refresh_token", raw, creds, data)
	rec.ClientID = firstString("client_id", raw, creds)
	rec.ClientSecret = firstString("client_secret", raw, creds)

	for _, m := range []map[string]any{raw, creds, meta} {
		if m == nil {
			continue
		}
		v, ok := m["expires_at"]
		if !ok || v == nil {
			continue
		}
		if t, ok := parseExpiry(v); ok {
			rec.ExpiresAt = t
			rec.HasExpiry = true
		} else {
			rec.InvalidExpiry = true
		}
		break
	}
	return rec
}

// Expired reports whether the record's token needs refreshing as of now.
// The skew boundary is inclusive: a token expiring exactly ExpirySkew
// from now is already expired. A record with no expiry never expires
// here; a record with an unparsable expiry always does.
func (r *Record) Expired(now time.Time) bool {
	if r.InvalidExpiry {
		return true
	}
	if !r.HasExpiry {
		return false
	}
	return !now.Before(r.ExpiresAt.Add(-ExpirySkew))
}

// firstString returns the first non-empty string value of key across maps.
func firstString(key string, maps ...map[string]any) string {
	for _, m := range maps {
		if m == nil {
			continue
		}
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// parseExpiry accepts RFC 3339 timestamps (with or without sub-second
// precision or zone) and Unix epoch seconds, the two shapes providers
// actually send.
func parseExpiry(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
		if sec, err := strconv.ParseFloat(s, 64); err == nil {
			return epochTime(sec), true
		}
		return time.Time{}, false
	case float64:
		return epochTime(t), true
	case int64:
		return time.Unix(t, 0).UTC(), true
	case int:
		return time.Unix(int64(t), 0).UTC(), true
	default:
		return time.Time{}, false
	}
}

func epochTime(sec float64) time.Time {
	return time.Unix(int64(sec), 0).UTC()
}

// ReconnectError signals that the stored grant cannot produce a usable
// token and the user must reauthorize the app.
type ReconnectError struct {
	App    string
	Reason string
}

func (e *ReconnectError) Error() string {
	return fmt.Sprintf("app %s requires reconnection: %s", e.App, e.Reason)
}

// IsReconnect reports whether err (or anything it wraps) is a ReconnectError.
func IsReconnect(err error) bool {
	var re *ReconnectError
	return errors.As(err, &re)
}
