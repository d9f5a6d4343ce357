package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/me/webpanel/internal/backend"
	"github.com/me/webpanel/internal/panel"
	"github.com/me/webpanel/internal/permission"
	"github.com/me/webpanel/internal/router"
	"github.com/me/webpanel/pkg/model"
)

// Messages shown after a gated action is refused.
const (
	msgInsufficientPermissions = "Insufficient permissions"
	msgSelectServer            = "Select a server first"
)

// mutation is one write against the backend, issued on behalf of a form post.
type mutation struct {
	Name     string
	Requires permission.Capability
	Method   string
	// Path builds the backend path for the selected server.
	Path func(r *http.Request, serverID string) string
	// Body builds the JSON payload; nil sends no body.
	Body        func(r *http.Request, st *panel.State) (map[string]any, error)
	Success     string
	Invalidates []string // resource keys refetched on success
}

var musicActions = []string{"play", "pause", "skip", "stop", "shuffle"}

var (
	moderationAction = mutation{
		Name:     "moderation action",
		Requires: permission.Moderator,
		Method:   http.MethodPost,
		Path:     serverPath("moderation", "action"),
		Body: func(r *http.Request, st *panel.State) (map[string]any, error) {
			action := strings.TrimSpace(r.FormValue("action"))
			userID := strings.TrimSpace(r.FormValue("user_id"))
			if action == "" || userID == "" {
				return nil, fmt.Errorf("action and user are required")
			}
			body := map[string]any{
				"action":       action,
				"user_id":      userID,
				"reason":       r.FormValue("reason"),
				"duration":     nil,
				"moderator_id": profileID(st),
			}
			if d := strings.TrimSpace(r.FormValue("duration")); d != "" {
				n, err := strconv.Atoi(d)
				if err != nil {
					return nil, fmt.Errorf("duration must be a number")
				}
				body["duration"] = n
			}
			return body, nil
		},
		Success:     "Action executed successfully",
		Invalidates: []string{resourceKey(router.Moderation, "logs"), resourceKey(router.Moderation, "warnings")},
	}

	gamingXP = mutation{
		Name:     "give xp",
		Requires: permission.Admin,
		Method:   http.MethodPost,
		Path:     serverPath("gaming", "xp"),
		Body: func(r *http.Request, st *panel.State) (map[string]any, error) {
			amount, err := strconv.Atoi(strings.TrimSpace(r.FormValue("amount")))
			if err != nil {
				return nil, fmt.Errorf("amount must be a number")
			}
			return map[string]any{
				"user_id":  strings.TrimSpace(r.FormValue("user_id")),
				"amount":   amount,
				"reason":   r.FormValue("reason"),
				"given_by": profileID(st),
			}, nil
		},
		Success:     "XP granted",
		Invalidates: []string{resourceKey(router.Gaming, "levels")},
	}

	gamingAddReward = mutation{
		Name:     "add reward",
		Requires: permission.Admin,
		Method:   http.MethodPost,
		Path:     serverPath("gaming", "rewards"),
		Body: func(r *http.Request, st *panel.State) (map[string]any, error) {
			level, err := strconv.Atoi(strings.TrimSpace(r.FormValue("level")))
			if err != nil {
				return nil, fmt.Errorf("level must be a number")
			}
			return map[string]any{
				"level":        level,
				"reward_type":  r.FormValue("reward_type"),
				"reward_value": r.FormValue("reward_value"),
			}, nil
		},
		Success:     "Reward added",
		Invalidates: []string{resourceKey(router.Gaming, "rewards")},
	}

	gamingDeleteReward = mutation{
		Name:     "delete reward",
		Requires: permission.Admin,
		Method:   http.MethodDelete,
		Path: func(r *http.Request, serverID string) string {
			return backend.Endpoint("gaming", "rewards", serverID, chi.URLParam(r, "id"))
		},
		Success:     "Reward deleted",
		Invalidates: []string{resourceKey(router.Gaming, "rewards")},
	}

	musicControl = mutation{
		Name:     "music control",
		Requires: permission.Member,
		Method:   http.MethodPost,
		Path:     serverPath("music", "control"),
		Body: func(r *http.Request, st *panel.State) (map[string]any, error) {
			action := r.FormValue("action")
			if !slices.Contains(musicActions, action) {
				return nil, fmt.Errorf("unknown music action %q", action)
			}
			return map[string]any{"action": action}, nil
		},
		Success:     "Playback updated",
		Invalidates: []string{resourceKey(router.Music, "status"), resourceKey(router.Music, "queue")},
	}

	musicAdd = mutation{
		Name:     "queue track",
		Requires: permission.Member,
		Method:   http.MethodPost,
		Path:     serverPath("music", "add"),
		Body: func(r *http.Request, st *panel.State) (map[string]any, error) {
			q := strings.TrimSpace(r.FormValue("query"))
			if q == "" {
				return nil, fmt.Errorf("a track is required")
			}
			return map[string]any{"query": q, "requested_by": profileID(st)}, nil
		},
		Success:     "Track queued",
		Invalidates: []string{resourceKey(router.Music, "queue")},
	}

	analyticsReport = mutation{
		Name:     "generate report",
		Requires: permission.Admin,
		Method:   http.MethodPost,
		Path:     serverPath("analytics", "report"),
		Body: func(r *http.Request, st *panel.State) (map[string]any, error) {
			return map[string]any{
				"type":         r.FormValue("type"),
				"period":       r.FormValue("period"),
				"generated_by": profileID(st),
			}, nil
		},
		Success: "Report generated",
	}
)

func serverPath(domain, action string) func(*http.Request, string) string {
	return func(_ *http.Request, serverID string) string {
		return backend.Endpoint(domain, action, serverID)
	}
}

func profileID(st *panel.State) any {
	if p := st.Profile(); p != nil {
		return p.ID
	}
	return nil
}

// handleMutation returns the handler for m. The capability is checked again
// here; the rendered forms are only a convenience.
func (ui *UI) handleMutation(m mutation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := StateFromContext(r.Context())
		defer http.Redirect(w, r, "/", http.StatusSeeOther)

		if err := r.ParseForm(); err != nil {
			st.Notify("Invalid request", model.NotifyError)
			return
		}
		if !ui.allowed(r.Context(), st, m.Requires) {
			ui.logger.Info("mutation refused", "mutation", m.Name, "requires", m.Requires)
			st.Notify(msgInsufficientPermissions, model.NotifyInfo)
			return
		}
		serverID := st.Navigation().SelectedServerID()
		if serverID == "" {
			st.Notify(msgSelectServer, model.NotifyWarning)
			return
		}

		var body any
		if m.Body != nil {
			b, err := m.Body(r, st)
			if err != nil {
				st.Notify(err.Error(), model.NotifyError)
				return
			}
			body = b
		}

		if _, err := ui.send(r.Context(), st, m.Method, m.Path(r, serverID), body); err != nil {
			ui.logger.Warn("mutation failed", "mutation", m.Name, "server", serverID, "error", err)
			st.Notify(fmt.Sprintf("Failed to %s", m.Name), model.NotifyError)
			return
		}
		st.Invalidate(r.Context(), m.Invalidates...)
		st.Notify(m.Success, model.NotifySuccess)
	}
}

// HandleConfigSave posts the config form of a view to the backend.
func (ui *UI) HandleConfigSave(w http.ResponseWriter, r *http.Request) {
	st := StateFromContext(r.Context())
	view := chi.URLParam(r, "view")
	defer http.Redirect(w, r, "/", http.StatusSeeOther)

	vd, ok := viewTable[view]
	if !ok || vd.ConfigRequires == "" {
		st.Notify("This view has no configuration", model.NotifyWarning)
		return
	}
	if err := r.ParseForm(); err != nil {
		st.Notify("Invalid request", model.NotifyError)
		return
	}
	if !ui.allowed(r.Context(), st, vd.ConfigRequires) {
		st.Notify(msgInsufficientPermissions, model.NotifyInfo)
		return
	}
	serverID := st.Navigation().SelectedServerID()
	if serverID == "" {
		st.Notify(msgSelectServer, model.NotifyWarning)
		return
	}

	cfg := formConfig(r)
	if _, err := ui.send(r.Context(), st, http.MethodPost, backend.Endpoint(view, "config", serverID), cfg); err != nil {
		ui.logger.Warn("config save failed", "view", view, "server", serverID, "error", err)
		st.Notify("Failed to save configuration", model.NotifyError)
		return
	}
	st.Invalidate(r.Context(), configKeys(view)...)
	st.Notify("Configuration saved", model.NotifySuccess)
}

// allowed waits for the permissions fetch before deciding, so a post that
// races the bootstrap is not refused spuriously.
func (ui *UI) allowed(ctx context.Context, st *panel.State, c permission.Capability) bool {
	waitCtx, cancel := context.WithTimeout(ctx, ui.renderWait)
	defer cancel()
	st.WaitBootstrap(waitCtx)
	return st.Has(c)
}

func (ui *UI) send(ctx context.Context, st *panel.State, method, path string, body any) (json.RawMessage, error) {
	conn := st.Conn()
	switch method {
	case http.MethodDelete:
		return conn.Delete(ctx, path)
	default:
		return conn.Post(ctx, path, body)
	}
}

// formBoolFields lists the checkbox names of a config form.
const formBoolFields = "_bool"

// formConfig converts a config form into a JSON object. Numbers and booleans
// keep their types; fields listed in _bool are checkboxes, which browsers
// omit when unchecked.
func formConfig(r *http.Request) map[string]any {
	cfg := make(map[string]any)
	for key, vals := range r.PostForm {
		if key == formBoolFields || len(vals) == 0 {
			continue
		}
		cfg[key] = coerce(vals[len(vals)-1])
	}
	for _, name := range r.PostForm[formBoolFields] {
		cfg[name] = r.PostForm.Has(name) && r.PostForm.Get(name) != "false"
	}
	return cfg
}

func coerce(v string) any {
	switch v {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}
