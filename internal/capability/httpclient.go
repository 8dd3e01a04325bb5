package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// NewHTTPClient builds the client shared by all capabilities: 30s total
// request timeout, 10s connect timeout.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext:         (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// InvokeJSON performs one authenticated JSON API call and maps the
// response to a Result. 401 responses are tagged RequiresReconnect;
// other non-2xx statuses become plain failures carrying the body.
// Transport errors are returned as errors. There are no retries; the
// wrapped operations are not idempotent.
func InvokeJSON(ctx context.Context, hc *http.Client, method, url, token string, headers map[string]string, body any) (*Result, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return &Result{
			Success:           false,
			Error:             fmt.Sprintf("unauthorized (status 401): %s", truncate(raw, 300)),
			RequiresReconnect: true,
		}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Fail("api error (status %d): %s", resp.StatusCode, truncate(raw, 300)), nil
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return OK(map[string]any{"status": resp.StatusCode}), nil
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return OK(map[string]any{"body": string(raw)}), nil
	}
	return OK(data), nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
