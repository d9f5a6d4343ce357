// Package router decides which view to render for the symbolic current view.
package router

import "github.com/me/webpanel/internal/permission"

// View keys.
const (
	Dashboard  = "dashboard"
	Servers    = "servers"
	Economy    = "economy"
	Moderation = "moderation"
	Music      = "music"
	Gaming     = "gaming"
	Analytics  = "analytics"
	Admin      = "admin"
	Founder    = "founder"
	Creator    = "creator"
	Settings   = "settings"
)

// Checker answers capability questions. *panel.State implements it.
type Checker interface {
	Has(permission.Capability) bool
}

// Authenticator is implemented by checkers that know whether the user is
// logged in. A checker reporting false is denied every gated view, whatever
// permissions it still holds.
type Authenticator interface {
	IsAuthenticated() bool
}

// anonymous denies every capability.
type anonymous struct{}

func (anonymous) Has(permission.Capability) bool { return false }

// View is one renderable view. An empty Requires means the view is ungated.
type View struct {
	Key      string
	Label    string
	Icon     string
	Requires permission.Capability
}

// Allowed reports whether c may see v.
func (v View) Allowed(c Checker) bool {
	if v.Requires == "" {
		return true
	}
	if c == nil {
		return false
	}
	if a, ok := c.(Authenticator); ok && !a.IsAuthenticated() {
		return false
	}
	return c.Has(v.Requires)
}

// views is the single table of views in menu order. Each key appears once.
var views = []View{
	{Key: Dashboard, Label: "Dashboard", Icon: "📊"},
	{Key: Servers, Label: "Servers", Icon: "🖥️", Requires: permission.Member},
	{Key: Economy, Label: "Economy", Icon: "💰", Requires: permission.Member},
	{Key: Moderation, Label: "Moderation", Icon: "🛡️", Requires: permission.Moderator},
	{Key: Music, Label: "Music", Icon: "🎵", Requires: permission.Member},
	{Key: Gaming, Label: "Gaming", Icon: "🎮", Requires: permission.Member},
	{Key: Analytics, Label: "Analytics", Icon: "📈", Requires: permission.Admin},
	{Key: Admin, Label: "Admin", Icon: "⚡", Requires: permission.Admin},
	{Key: Founder, Label: "Founder", Icon: "👑", Requires: permission.Founder},
	{Key: Creator, Label: "Creator", Icon: "🔧", Requires: permission.Creator},
	{Key: Settings, Label: "Settings", Icon: "⚙️"},
}

var byKey = func() map[string]View {
	m := make(map[string]View, len(views))
	for _, v := range views {
		m[v.Key] = v
	}
	return m
}()

// Lookup returns the view for key.
func Lookup(key string) (View, bool) {
	v, ok := byKey[key]
	return v, ok
}

// Known reports whether key names a view.
func Known(key string) bool {
	_, ok := byKey[key]
	return ok
}

// All returns every view in menu order.
func All() []View {
	out := make([]View, len(views))
	copy(out, views)
	return out
}

// Resolve maps the current view key to the view to render. Unknown keys and
// views whose capability c lacks fall back to the dashboard. When c is an
// Authenticator that is logged out, only ungated views resolve.
func Resolve(key string, c Checker) View {
	if v, ok := byKey[key]; ok && v.Allowed(c) {
		return v
	}
	return byKey[Dashboard]
}

// Entry is one sidebar item.
type Entry struct {
	View
	Active bool
}

// Menu lists the views c may open, marking current as active. Unauthenticated
// users only see ungated views.
func Menu(c Checker, authenticated bool, current string) []Entry {
	if !authenticated {
		c = anonymous{}
	}
	active := Resolve(current, c).Key
	var out []Entry
	for _, v := range views {
		if !v.Allowed(c) {
			continue
		}
		out = append(out, Entry{View: v, Active: v.Key == active})
	}
	return out
}
