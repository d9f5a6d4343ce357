package model

import (
	"encoding/json"
	"time"
)

// UserSummary is the short user record embedded in the auth response.
type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// Profile is the user's profile as served by /user/profile. Read-only.
type Profile struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"display_name"`
	AvatarURL    string    `json:"avatar_url"`
	NumericLevel int       `json:"numeric_level"`
	RoleDisplay  string    `json:"role_display"`
	CreatedAt    time.Time `json:"created_at"`
	LastSeen     time.Time `json:"last_seen"`
}

// UnmarshalJSON accepts the backend's timestamps with or without a zone
// offset.
func (p *Profile) UnmarshalJSON(b []byte) error {
	type plain Profile
	aux := struct {
		*plain
		CreatedAt Timestamp `json:"created_at"`
		LastSeen  Timestamp `json:"last_seen"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	p.CreatedAt = aux.CreatedAt.Time
	p.LastSeen = aux.LastSeen.Time
	return nil
}

// Permissions is the sole authority for capability checks.
type Permissions struct {
	NumericLevel int `json:"numeric_level"`
}

// Badge is a derived display artifact for a capability tier or tenure milestone.
type Badge struct {
	Name     string `json:"name"`
	Icon     string `json:"icon"`
	Color    string `json:"color"`
	Priority int    `json:"priority"`
}

// ServerRef identifies a Discord server (guild) the user can manage.
type ServerRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
}
