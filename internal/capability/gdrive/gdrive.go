// Package gdrive exposes Google Drive operations as capabilities.
package gdrive

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jkaninda/blimp/internal/capability"
)

const app = "gdrive"

var BaseURL = "https://www.googleapis.com/drive/v3"

// Register adds all Drive capabilities to the registry.
func Register(r *capability.Registry, hc *http.Client) {
	r.Register(capability.Func(app, "list_files",
		"List files in the user's Google Drive, optionally filtered by a query.",
		capability.Schema(map[string]any{
			"query":     capability.StrProp("Drive search query, e.g. name contains 'report'. Optional."),
			"page_size": capability.IntProp("Maximum number of files. Defaults to 10."),
		}),
		func(ctx context.Context, token string, params map[string]any) (*capability.Result, error) {
			q := url.Values{}
			q.Set("pageSize", strconv.Itoa(capability.Int(params, "page_size", 10)))
			q.Set("fields", "files(id, name, mimeType, createdTime, modifiedTime)")
			if query := capability.Str(params, "query", ""); query != "" {
				q.Set("q", query)
			}
			return capability.InvokeJSON(ctx, hc, http.MethodGet, BaseURL+"/files?"+q.Encode(), token, nil, nil)
		}))

	r.Register(capability.Func(app, "create_file",
		"Create an empty file entry in the user's Google Drive.",
		capability.Schema(map[string]any{
			"file_name": capability.StrProp("Name of the new file."),
			"mime_type": capability.StrProp("MIME type. Defaults to text/plain."),
		}, "file_name"),
		func(ctx context.Context, token string, params map[string]any) (*capability.Result, error) {
			name := capability.Str(params, "file_name", "")
			if name == "" {
				return capability.Fail("file_name is required"), nil
			}
			body := map[string]any{
				"name":     name,
				"mimeType": capability.Str(params, "mime_type", "text/plain"),
			}
			return capability.InvokeJSON(ctx, hc, http.MethodPost, BaseURL+"/files", token, nil, body)
		}))
}
