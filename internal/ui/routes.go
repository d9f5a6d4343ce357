package ui

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all UI routes on the given router.
func (ui *UI) RegisterRoutes(r chi.Router) {
	// Login is a redirect and needs no local state.
	r.Get("/login", ui.HandleLogin)
	r.Get("/logout", ui.HandleLogout)

	r.Group(func(r chi.Router) {
		r.Use(ui.SessionMiddleware)
		r.Use(ui.StateMiddleware)

		r.Get("/", ui.HandleIndex)
		r.Get("/view/{view}", ui.HandleNavigate)
		r.Post("/view/{view}/config", ui.HandleConfigSave)
		r.Post("/servers/select", ui.HandleSelectServer)

		// Domain mutations
		r.Post("/moderation/action", ui.handleMutation(moderationAction))
		r.Route("/gaming", func(r chi.Router) {
			r.Post("/xp", ui.handleMutation(gamingXP))
			r.Post("/rewards", ui.handleMutation(gamingAddReward))
			r.Post("/rewards/{id}/delete", ui.handleMutation(gamingDeleteReward))
		})
		r.Route("/music", func(r chi.Router) {
			r.Post("/control", ui.handleMutation(musicControl))
			r.Post("/add", ui.handleMutation(musicAdd))
		})
		r.Post("/analytics/report", ui.handleMutation(analyticsReport))

		r.Post("/notifications/{id}/dismiss", ui.HandleDismissNotification)

		r.Route("/preferences", func(r chi.Router) {
			r.Post("/theme", ui.HandleTheme)
			r.Post("/sidebar", ui.HandleSidebar)
		})
	})
}

// StaticHandler returns an http.Handler that serves static files from the given directory.
func StaticHandler(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.StripPrefix("/static/", fs)
}
