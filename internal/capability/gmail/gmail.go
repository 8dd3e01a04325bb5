// Package gmail exposes Gmail operations as capabilities.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jkaninda/blimp/internal/capability"
)

const app = "gmail"

// BaseURL is a variable so tests can point the package at a local server.
var BaseURL = "https://gmail.googleapis.com/gmail/v1/users/me"

// Register adds all Gmail capabilities to the registry.
func Register(r *capability.Registry, hc *http.Client) {
	r.Register(capability.Func(app, "list_messages",
		"List Gmail messages matching a search query.",
		capability.Schema(map[string]any{
			"query":       capability.StrProp("Gmail search query, e.g. \"is:unread from:boss\". Defaults to is:unread."),
			"max_results": capability.IntProp("Maximum number of messages to return. Defaults to 10."),
		}),
		func(ctx context.Context, token string, params map[string]any) (*capability.Result, error) {
			q := url.Values{}
			q.Set("q", capability.Str(params, "query", "is:unread"))
			q.Set("maxResults", strconv.Itoa(capability.Int(params, "max_results", 10)))
			return capability.InvokeJSON(ctx, hc, http.MethodGet, BaseURL+"/messages?"+q.Encode(), token, nil, nil)
		}))

	r.Register(capability.Func(app, "get_message",
		"Fetch the full content of a single Gmail message by ID.",
		capability.Schema(map[string]any{
			"message_id": capability.StrProp("The Gmail message ID."),
		}, "message_id"),
		func(ctx context.Context, token string, params map[string]any) (*capability.Result, error) {
			id := capability.Str(params, "message_id", "")
			if id == "" {
				return capability.Fail("message_id is required"), nil
			}
			return capability.InvokeJSON(ctx, hc, http.MethodGet, BaseURL+"/messages/"+url.PathEscape(id), token, nil, nil)
		}))

	r.Register(capability.Func(app, "send_message",
		"Send an email from the user's Gmail account.",
		capability.Schema(map[string]any{
			"to":      capability.StrProp("Recipient email address."),
			"subject": capability.StrProp("Email subject line."),
			"body":    capability.StrProp("Plain-text email body."),
		}, "to", "subject", "body"),
		func(ctx context.Context, token string, params map[string]any) (*capability.Result, error) {
			to := capability.Str(params, "to", "")
			if to == "" {
				return capability.Fail("to is required"), nil
			}
			raw := encodeMessage(to, capability.Str(params, "subject", ""), capability.Str(params, "body", ""))
			return capability.InvokeJSON(ctx, hc, http.MethodPost, BaseURL+"/messages/send", token, nil,
				map[string]any{"raw": raw})
		}))

	r.Register(capability.Func(app, "create_draft",
		"Create a draft email in the user's Gmail account without sending it.",
		capability.Schema(map[string]any{
			"to":      capability.StrProp("Recipient email address."),
			"subject": capability.StrProp("Email subject line."),
			"body":    capability.StrProp("Plain-text email body."),
		}, "to", "subject", "body"),
		func(ctx context.Context, token string, params map[string]any) (*capability.Result, error) {
			raw := encodeMessage(
				capability.Str(params, "to", ""),
				capability.Str(params, "subject", ""),
				capability.Str(params, "body", ""))
			return capability.InvokeJSON(ctx, hc, http.MethodPost, BaseURL+"/drafts", token, nil,
				map[string]any{"message": map[string]any{"raw": raw}})
		}))

	r.Register(capability.Func(app, "delete_message",
		"Move a Gmail message to the trash.",
		capability.Schema(map[string]any{
			"message_id": capability.StrProp("The Gmail message ID."),
		}, "message_id"),
		func(ctx context.Context, token string, params map[string]any) (*capability.Result, error) {
			id := capability.Str(params, "message_id", "")
			if id == "" {
				return capability.Fail("message_id is required"), nil
			}
			// Trash, not a permanent delete. Recoverable from the Gmail UI.
			return capability.InvokeJSON(ctx, hc, http.MethodPost, BaseURL+"/messages/"+url.PathEscape(id)+"/trash", token, nil, nil)
		}))

	r.Register(capability.Func(app, "modify_message",
		"Add or remove labels on a Gmail message (archive, mark read, star).",
		capability.Schema(map[string]any{
			"message_id":    capability.StrProp("The Gmail message ID."),
			"add_labels":    capability.StrListProp("Label IDs to add, e.g. STARRED."),
			"remove_labels": capability.StrListProp("Label IDs to remove, e.g. UNREAD, INBOX."),
		}, "message_id"),
		func(ctx context.Context, token string, params map[string]any) (*capability.Result, error) {
			id := capability.Str(params, "message_id", "")
			if id == "" {
				return capability.Fail("message_id is required"), nil
			}
			body := map[string]any{}
			if add := capability.Strings(params, "add_labels"); len(add) > 0 {
				body["addLabelIds"] = add
			}
			if rem := capability.Strings(params, "remove_labels"); len(rem) > 0 {
				body["removeLabelIds"] = rem
			}
			return capability.InvokeJSON(ctx, hc, http.MethodPost, BaseURL+"/messages/"+url.PathEscape(id)+"/modify", token, nil, body)
		}))
}

// encodeMessage builds the base64url RFC 2822 payload the Gmail API expects.
func encodeMessage(to, subject, body string) string {
	msg := fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=\"utf-8\"\r\n\r\n%s", to, subject, body)
	return base64.URLEncoding.EncodeToString([]byte(msg))
}
