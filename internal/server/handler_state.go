package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/me/webpanel/internal/panel"
	"github.com/me/webpanel/internal/permission"
	"github.com/me/webpanel/internal/router"
	"github.com/me/webpanel/internal/ui"
	"github.com/me/webpanel/pkg/model"
)

type stateResponse struct {
	SessionID       string                `json:"session_id"`
	Loading         bool                  `json:"loading"`
	Navigation      model.NavigationState `json:"navigation"`
	ResolvedView    string                `json:"resolved_view"`
	Preferences     model.Preferences     `json:"preferences"`
	Session         *model.Session        `json:"session"`
	Profile         *model.Profile        `json:"profile"`
	Role            string                `json:"role"`
	Badges          []model.Badge         `json:"badges"`
	Notifications   []model.Notification  `json:"notifications"`
	Menu            []menuEntry           `json:"menu"`
	BootstrapErrors map[string]string     `json:"bootstrap_errors,omitempty"`
}

type menuEntry struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Icon   string `json:"icon"`
	Active bool   `json:"active"`
}

// waitBootstrap waits for the bootstrap fetches, bounded by the configured
// bootstrap timeout.
func (s *Server) waitBootstrap(ctx context.Context, st *panel.State) {
	timeout := s.config.BootstrapTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	st.WaitBootstrap(waitCtx)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	st := ui.StateFromContext(r.Context())
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		s.waitBootstrap(r.Context(), st)
	}
	respondOK(w, reqID, s.snapshot(r.Context(), st))
}

func (s *Server) snapshot(ctx context.Context, st *panel.State) stateResponse {
	nav := st.Navigation()
	resp := stateResponse{
		SessionID:     st.ID(),
		Loading:       st.IsLoading(),
		Navigation:    nav,
		Preferences:   st.Preferences(ctx),
		Notifications: st.Notifications(),
		Badges:        []model.Badge{},
		Menu:          []menuEntry{},
	}
	// Nothing derived from permissions is reported until bootstrap settles.
	if resp.Loading {
		resp.ResolvedView = panel.DefaultView
		return resp
	}

	authenticated := st.IsAuthenticated()
	resp.ResolvedView = router.Resolve(nav.CurrentView, st).Key
	resp.Session = st.Session()
	resp.Profile = st.Profile()
	resp.Role = st.RoleDisplay()
	resp.Badges = st.Badges()
	resp.BootstrapErrors = st.BootstrapErrors()
	for _, e := range router.Menu(st, authenticated, nav.CurrentView) {
		resp.Menu = append(resp.Menu, menuEntry{Key: e.Key, Label: e.Label, Icon: e.Icon, Active: e.Active})
	}
	return resp
}

type navigateRequest struct {
	View   string           `json:"view"`
	Server *model.ServerRef `json:"server"`
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	st := ui.StateFromContext(r.Context())

	var req navigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid JSON body"))
		return
	}
	req.View = strings.TrimSpace(req.View)
	if req.View == "" {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("view is required",
			model.FieldError{Field: "view", Message: "must not be empty"}))
		return
	}
	if req.Server != nil && req.Server.ID == "" {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("server id is required",
			model.FieldError{Field: "server.id", Message: "must not be empty"}))
		return
	}

	// Unknown or forbidden views are accepted; rendering falls back.
	st.NavigateTo(req.View, req.Server)
	respondOK(w, reqID, map[string]any{
		"navigation":    st.Navigation(),
		"resolved_view": router.Resolve(req.View, st).Key,
	})
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	st := ui.StateFromContext(r.Context())
	respondOK(w, reqID, st.Notifications())
}

type addNotificationRequest struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	// DurationMS of nil uses the default; 0 keeps the notification until dismissed.
	DurationMS *int64 `json:"duration_ms"`
}

func (s *Server) handleAddNotification(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	st := ui.StateFromContext(r.Context())

	var req addNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid JSON body"))
		return
	}

	var fields []model.FieldError
	if strings.TrimSpace(req.Message) == "" {
		fields = append(fields, model.FieldError{Field: "message", Message: "must not be empty"})
	}
	typ, err := model.ParseNotificationType(req.Type)
	if err != nil {
		fields = append(fields, model.FieldError{Field: "type", Message: err.Error()})
	}
	if req.DurationMS != nil && *req.DurationMS < 0 {
		fields = append(fields, model.FieldError{Field: "duration_ms", Message: "must not be negative"})
	}
	if len(fields) > 0 {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid notification", fields...))
		return
	}

	var id int64
	if req.DurationMS == nil {
		id = st.Notify(req.Message, typ)
	} else {
		id = st.AddNotification(req.Message, typ, time.Duration(*req.DurationMS)*time.Millisecond)
	}
	respondCreated(w, reqID, map[string]int64{"id": id})
}

func (s *Server) handleRemoveNotification(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	st := ui.StateFromContext(r.Context())

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid notification id",
			model.FieldError{Field: "id", Message: "must be an integer"}))
		return
	}
	// Removing an unknown id is not an error.
	st.RemoveNotification(id)
	respondOK(w, reqID, map[string]int64{"removed": id})
}

type permissionCheckResponse struct {
	Capability string `json:"capability"`
	Allowed    bool   `json:"allowed"`
	Threshold  int    `json:"threshold"`
	Level      *int   `json:"level"`
}

func (s *Server) handleCheckPermission(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	st := ui.StateFromContext(r.Context())

	name := r.URL.Query().Get("capability")
	c, ok := permission.ParseCapability(name)
	if !ok {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("unknown capability",
			model.FieldError{Field: "capability", Message: "must be one of member, moderator, admin, founder, creator"}))
		return
	}

	s.waitBootstrap(r.Context(), st)
	threshold, _ := permission.Threshold(c)
	resp := permissionCheckResponse{Capability: string(c), Allowed: st.Has(c), Threshold: threshold}
	if p := st.Permissions(); p != nil {
		level := p.NumericLevel
		resp.Level = &level
	}
	respondOK(w, reqID, resp)
}
