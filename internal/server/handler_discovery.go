package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "WebPanel API",
		Version:     "v1",
		Description: "Session-scoped panel state for the bot dashboard",
		Endpoints: []endpointInfo{
			{"/api/v1/state", []string{"GET"}, "Navigation, preferences, session, badges, notifications and menu. ?wait=true waits for bootstrap"},
			{"/api/v1/navigate", []string{"POST"}, "Set the current view and optionally the selected server"},
			{"/api/v1/notifications", []string{"GET", "POST"}, "List or add notifications"},
			{"/api/v1/notifications/{id}", []string{"DELETE"}, "Dismiss a notification"},
			{"/api/v1/permissions/check", []string{"GET"}, "Check a capability: ?capability=member|moderator|admin|founder|creator"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}
