// Package slack exposes Slack operations as capabilities.
package slack

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jkaninda/blimp/internal/capability"
)

const app = "slack"

var BaseURL = "https://slack.com/api"

// Register adds all Slack capabilities to the registry.
func Register(r *capability.Registry, hc *http.Client) {
	r.Register(capability.Func(app, "post_message",
		"Post a message to a Slack channel.",
		capability.Schema(map[string]any{
			"channel": capability.StrProp("Channel name or ID. Defaults to #general."),
			"text":    capability.StrProp("Message text."),
		}, "text"),
		func(ctx context.Context, token string, params map[string]any) (*capability.Result, error) {
			text := capability.Str(params, "text", capability.Str(params, "message", ""))
			if text == "" {
				return capability.Fail("text is required"), nil
			}
			body := map[string]any{
				"channel": capability.Str(params, "channel", "#general"),
				"text":    text,
			}
			res, err := capability.InvokeJSON(ctx, hc, http.MethodPost, BaseURL+"/chat.postMessage", token, nil, body)
			return checkOK(res), err
		}))

	r.Register(capability.Func(app, "list_channels",
		"List the channels in the user's Slack workspace.",
		capability.Schema(map[string]any{
			"limit": capability.IntProp("Maximum number of channels. Defaults to 100."),
		}),
		func(ctx context.Context, token string, params map[string]any) (*capability.Result, error) {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(capability.Int(params, "limit", 100)))
			res, err := capability.InvokeJSON(ctx, hc, http.MethodGet, BaseURL+"/conversations.list?"+q.Encode(), token, nil, nil)
			return checkOK(res), err
		}))

	r.Register(capability.Func(app, "get_channel_history",
		"Fetch recent messages from a Slack channel.",
		capability.Schema(map[string]any{
			"channel": capability.StrProp("Channel ID."),
			"limit":   capability.IntProp("Maximum number of messages. Defaults to 20."),
		}, "channel"),
		func(ctx context.Context, token string, params map[string]any) (*capability.Result, error) {
			channel := capability.Str(params, "channel", "")
			if channel == "" {
				return capability.Fail("channel is required"), nil
			}
			q := url.Values{}
			q.Set("channel", channel)
			q.Set("limit", strconv.Itoa(capability.Int(params, "limit", 20)))
			res, err := capability.InvokeJSON(ctx, hc, http.MethodGet, BaseURL+"/conversations.history?"+q.Encode(), token, nil, nil)
			return checkOK(res), err
		}))
}

// checkOK demotes Slack's in-band failures. The web API answers 200 with
// {"ok":false,"error":"..."} instead of an HTTP error status.
func checkOK(res *capability.Result) *capability.Result {
	if res == nil || !res.Success {
		return res
	}
	data, ok := res.Data.(map[string]any)
	if !ok {
		return res
	}
	if okFlag, present := data["ok"].(bool); present && !okFlag {
		msg, _ := data["error"].(string)
		if msg == "" {
			msg = "slack api returned ok=false"
		}
		out := capability.Fail("slack: %s", msg)
		out.RequiresReconnect = msg == "invalid_auth" || msg == "token_revoked" || msg == "token_expired"
		return out
	}
	return res
}
