package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type fakeProvider struct {
	name  string
	text  string
	err   error
	calls int
}

func (p *fakeProvider) Complete(context.Context, *Request) (*Response, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &Response{Text: p.text}, nil
}

func (p *fakeProvider) Name() string { return p.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFallback_PrimarySucceeds(t *testing.T) {
	primary := &fakeProvider{name: "a", text: "ok"}
	secondary := &fakeProvider{name: "b", text: "never"}
	f := NewFallbackProvider([]Provider{primary, secondary}, discardLogger())

	resp, err := f.Complete(context.Background(), &Request{Prompt: "x"})
	if err != nil || resp.Text != "ok" {
		t.Fatalf("resp = %+v, err = %v", resp, err)
	}
	if secondary.calls != 0 {
		t.Error("secondary must not be called when primary succeeds")
	}
}

func TestFallback_SecondaryUsed(t *testing.T) {
	primary := &fakeProvider{name: "a", err: errors.New("down")}
	secondary := &fakeProvider{name: "b", text: "recovered"}
	f := NewFallbackProvider([]Provider{primary, secondary}, discardLogger())

	resp, err := f.Complete(context.Background(), &Request{Prompt: "x"})
	if err != nil || resp.Text != "recovered" {
		t.Fatalf("resp = %+v, err = %v", resp, err)
	}
}

func TestFallback_AllFail(t *testing.T) {
	f := NewFallbackProvider([]Provider{
		&fakeProvider{name: "a", err: errors.New("down")},
		&fakeProvider{name: "b", err: errors.New("also down")},
	}, discardLogger())

	if _, err := f.Complete(context.Background(), &Request{Prompt: "x"}); err == nil {
		t.Fatal("expected error when every provider fails")
	}
}
