// Package discord exposes Discord operations as capabilities.
package discord

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jkaninda/blimp/internal/capability"
)

const app = "discord"

var BaseURL = "https://discord.com/api/v10"

// Register adds all Discord capabilities to the registry.
func Register(r *capability.Registry, hc *http.Client) {
	r.Register(capability.Func(app, "send_message",
		"Send a message to a Discord channel.",
		capability.Schema(map[string]any{
			"channel_id": capability.StrProp("The Discord channel ID."),
			"content":    capability.StrProp("Message text."),
		}, "channel_id", "content"),
		func(ctx context.Context, token string, params map[string]any) (*capability.Result, error) {
			channel := capability.Str(params, "channel_id", "")
			content := capability.Str(params, "content", "")
			if channel == "" || content == "" {
				return capability.Fail("channel_id and content are required"), nil
			}
			return capability.InvokeJSON(ctx, hc, http.MethodPost,
				BaseURL+"/channels/"+url.PathEscape(channel)+"/messages", token, nil,
				map[string]any{"content": content})
		}))

	r.Register(capability.Func(app, "list_channels",
		"List the channels of a Discord server.",
		capability.Schema(map[string]any{
			"guild_id": capability.StrProp("The Discord server (guild) ID."),
		}, "guild_id"),
		func(ctx context.Context, token string, params map[string]any) (*capability.Result, error) {
			guild := capability.Str(params, "guild_id", "")
			if guild == "" {
				return capability.Fail("guild_id is required"), nil
			}
			return capability.InvokeJSON(ctx, hc, http.MethodGet,
				BaseURL+"/guilds/"+url.PathEscape(guild)+"/channels", token, nil, nil)
		}))
}
