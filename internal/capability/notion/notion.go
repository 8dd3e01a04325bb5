// Package notion exposes Notion operations as capabilities.
package notion

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jkaninda/blimp/internal/capability"
)

const app = "notion"

var BaseURL = "https://api.notion.com/v1"

// apiVersion is required on every Notion API call.
const apiVersion = "2022-06-28"

func headers() map[string]string {
	return map[string]string{"Notion-Version": apiVersion}
}

// Register adds all Notion capabilities to the registry.
func Register(r *capability.Registry, hc *http.Client) {
	r.Register(capability.Func(app, "create_page",
		"Create a Notion page with a title and paragraph content.",
		capability.Schema(map[string]any{
			"title":     capability.StrProp("Page title."),
			"content":   capability.StrProp("Paragraph text for the page body."),
			"parent_id": capability.StrProp("Parent page ID. Omit to create at the workspace root."),
		}, "title"),
		func(ctx context.Context, token string, params map[string]any) (*capability.Result, error) {
			var parent map[string]any
			if pid := capability.Str(params, "parent_id", ""); pid != "" {
				parent = map[string]any{"page_id": pid}
			} else {
				parent = map[string]any{"type": "workspace"}
			}
			body := map[string]any{
				"parent": parent,
				"properties": map[string]any{
					"title": map[string]any{
						"title": []map[string]any{
							{"text": map[string]any{"content": capability.Str(params, "title", "New Page")}},
						},
					},
				},
				"children": []map[string]any{
					{
						"object": "block",
						"type":   "paragraph",
						"paragraph": map[string]any{
							"rich_text": []map[string]any{
								{"type": "text", "text": map[string]any{"content": capability.Str(params, "content", "")}},
							},
						},
					},
				},
			}
			return capability.InvokeJSON(ctx, hc, http.MethodPost, BaseURL+"/pages", token, headers(), body)
		}))

	r.Register(capability.Func(app, "search_pages",
		"Search the user's Notion workspace for pages and databases.",
		capability.Schema(map[string]any{
			"query": capability.StrProp("Search text. Empty returns everything shared with the integration."),
		}),
		func(ctx context.Context, token string, params map[string]any) (*capability.Result, error) {
			body := map[string]any{"query": capability.Str(params, "query", "")}
			return capability.InvokeJSON(ctx, hc, http.MethodPost, BaseURL+"/search", token, headers(), body)
		}))

	r.Register(capability.Func(app, "query_database",
		"Query rows of a Notion database, optionally filtered and sorted.",
		capability.Schema(map[string]any{
			"database_id": capability.StrProp("The Notion database ID."),
			"filter":      map[string]any{"type": "object", "description": "Notion filter object. Optional."},
			"sorts":       map[string]any{"type": "array", "description": "Notion sorts array. Optional."},
		}, "database_id"),
		func(ctx context.Context, token string, params map[string]any) (*capability.Result, error) {
			id := capability.Str(params, "database_id", "")
			if id == "" {
				return capability.Fail("database_id is required"), nil
			}
			body := map[string]any{}
			if f, ok := params["filter"].(map[string]any); ok {
				body["filter"] = f
			}
			if s, ok := params["sorts"].([]any); ok {
				body["sorts"] = s
			}
			return capability.InvokeJSON(ctx, hc, http.MethodPost,
				BaseURL+"/databases/"+url.PathEscape(id)+"/query", token, headers(), body)
		}))
}
