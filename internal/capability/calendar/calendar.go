// Package calendar exposes Google Calendar operations as capabilities.
package calendar

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jkaninda/blimp/internal/capability"
)

const app = "calendar"

var BaseURL = "https://www.googleapis.com/calendar/v3"

// Register adds all Calendar capabilities to the registry.
func Register(r *capability.Registry, hc *http.Client) {
	r.Register(capability.Func(app, "create_event",
		"Create an event on the user's Google Calendar.",
		capability.Schema(map[string]any{
			"summary":     capability.StrProp("Event title."),
			"description": capability.StrProp("Event description."),
			"location":    capability.StrProp("Event location."),
			"start":       capability.StrProp("Start time, RFC 3339 (e.g. 2026-09-02T10:00:00Z)."),
			"end":         capability.StrProp("End time, RFC 3339."),
			"attendees":   capability.StrListProp("Attendee email addresses."),
			"calendar_id": capability.StrProp("Calendar ID. Defaults to primary."),
		}, "summary", "start", "end"),
		func(ctx context.Context, token string, params map[string]any) (*capability.Result, error) {
			start := capability.Str(params, "start", "")
			end := capability.Str(params, "end", "")
			if start == "" || end == "" {
				return capability.Fail("start and end are required"), nil
			}
			body := map[string]any{
				"summary": capability.Str(params, "summary", ""),
				"start":   map[string]any{"dateTime": start},
				"end":     map[string]any{"dateTime": end},
			}
			if d := capability.Str(params, "description", ""); d != "" {
				body["description"] = d
			}
			if l := capability.Str(params, "location", ""); l != "" {
				body["location"] = l
			}
			if emails := capability.Strings(params, "attendees"); len(emails) > 0 {
				attendees := make([]map[string]any, len(emails))
				for i, e := range emails {
					attendees[i] = map[string]any{"email": e}
				}
				body["attendees"] = attendees
			}
			return capability.InvokeJSON(ctx, hc, http.MethodPost, eventsURL(params), token, nil, body)
		}))

	r.Register(capability.Func(app, "list_events",
		"List upcoming events on the user's Google Calendar.",
		capability.Schema(map[string]any{
			"time_min":    capability.StrProp("Lower bound, RFC 3339. Optional."),
			"time_max":    capability.StrProp("Upper bound, RFC 3339. Optional."),
			"max_results": capability.IntProp("Maximum number of events. Defaults to 10."),
			"calendar_id": capability.StrProp("Calendar ID. Defaults to primary."),
		}),
		func(ctx context.Context, token string, params map[string]any) (*capability.Result, error) {
			q := url.Values{}
			q.Set("maxResults", strconv.Itoa(capability.Int(params, "max_results", 10)))
			q.Set("singleEvents", "true")
			q.Set("orderBy", "startTime")
			if v := capability.Str(params, "time_min", ""); v != "" {
				q.Set("timeMin", v)
			}
			if v := capability.Str(params, "time_max", ""); v != "" {
				q.Set("timeMax", v)
			}
			return capability.InvokeJSON(ctx, hc, http.MethodGet, eventsURL(params)+"?"+q.Encode(), token, nil, nil)
		}))

	r.Register(capability.Func(app, "update_event",
		"Update fields of an existing calendar event.",
		capability.Schema(map[string]any{
			"event_id":    capability.StrProp("The event ID."),
			"summary":     capability.StrProp("New title. Optional."),
			"description": capability.StrProp("New description. Optional."),
			"location":    capability.StrProp("New location. Optional."),
			"start":       capability.StrProp("New start time, RFC 3339. Optional."),
			"end":         capability.StrProp("New end time, RFC 3339. Optional."),
			"calendar_id": capability.StrProp("Calendar ID. Defaults to primary."),
		}, "event_id"),
		func(ctx context.Context, token string, params map[string]any) (*capability.Result, error) {
			id := capability.Str(params, "event_id", "")
			if id == "" {
				return capability.Fail("event_id is required"), nil
			}
			body := map[string]any{}
			for _, k := range []string{"summary", "description", "location"} {
				if v := capability.Str(params, k, ""); v != "" {
					body[k] = v
				}
			}
			if v := capability.Str(params, "start", ""); v != "" {
				body["start"] = map[string]any{"dateTime": v}
			}
			if v := capability.Str(params, "end", ""); v != "" {
				body["end"] = map[string]any{"dateTime": v}
			}
			return capability.InvokeJSON(ctx, hc, http.MethodPatch, eventsURL(params)+"/"+url.PathEscape(id), token, nil, body)
		}))

	r.Register(capability.Func(app, "delete_event",
		"Delete an event from the user's Google Calendar.",
		capability.Schema(map[string]any{
			"event_id":    capability.StrProp("The event ID."),
			"calendar_id": capability.StrProp("Calendar ID. Defaults to primary."),
		}, "event_id"),
		func(ctx context.Context, token string, params map[string]any) (*capability.Result, error) {
			id := capability.Str(params, "event_id", "")
			if id == "" {
				return capability.Fail("event_id is required"), nil
			}
			return capability.InvokeJSON(ctx, hc, http.MethodDelete, eventsURL(params)+"/"+url.PathEscape(id), token, nil, nil)
		}))
}

func eventsURL(params map[string]any) string {
	calID := capability.Str(params, "calendar_id", "primary")
	return BaseURL + "/calendars/" + url.PathEscape(calID) + "/events"
}
