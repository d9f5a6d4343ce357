package model

import "time"

// PanelSession is the WebPanel's own browser session. It identifies which
// application state a browser owns; backend credentials are never stored here.
type PanelSession struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// IsExpired reports whether the panel session has expired.
func (s *PanelSession) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Session is the backend's view of who is logged in, as returned by /auth/user.
type Session struct {
	Authenticated bool         `json:"authenticated"`
	User          *UserSummary `json:"user,omitempty"`
}

// Username returns the user's name, or "" when unauthenticated.
func (s *Session) Username() string {
	if s == nil || !s.Authenticated || s.User == nil {
		return ""
	}
	return s.User.Username
}
