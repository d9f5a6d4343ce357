package model

// NavigationState holds the current view and the server the user is working on.
// CurrentView is opaque here; the view router decides what it renders.
type NavigationState struct {
	CurrentView    string     `json:"current_view"`
	SelectedServer *ServerRef `json:"selected_server,omitempty"`
}

// SelectedServerID returns the selected server's ID, or "" if none.
func (n NavigationState) SelectedServerID() string {
	if n.SelectedServer == nil {
		return ""
	}
	return n.SelectedServer.ID
}

// Preference keys. They are fixed for the lifetime of a deployment.
const (
	PrefTheme            = "theme"
	PrefSidebarCollapsed = "sidebar_collapsed"
)

// DefaultTheme is used when no theme is stored or the stored one is unknown.
const DefaultTheme = "cyber"

// Themes lists the palettes the panel knows about.
var Themes = []string{"cyber", "neon", "matrix", "synthwave"}

// IsKnownTheme reports whether name is one of Themes.
func IsKnownTheme(name string) bool {
	for _, t := range Themes {
		if t == name {
			return true
		}
	}
	return false
}

// Preferences are the per-browser display settings.
type Preferences struct {
	Theme            string `json:"theme"`
	SidebarCollapsed bool   `json:"sidebar_collapsed"`
}

// DefaultPreferences returns the palette and layout used when nothing is stored.
func DefaultPreferences() Preferences {
	return Preferences{Theme: DefaultTheme}
}
