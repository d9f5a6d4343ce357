// Package permission maps the backend's numeric permission level onto named
// capabilities and derives the user's badges. Everything here is pure.
package permission

import (
	"sort"
	"time"

	"github.com/me/webpanel/pkg/model"
)

// Capability is a named permission tier.
type Capability string

const (
	Member    Capability = "member"
	Moderator Capability = "moderator"
	Admin     Capability = "admin"
	Founder   Capability = "founder"
	Creator   Capability = "creator"
)

// tier is one row of the threshold table.
type tier struct {
	cap     Capability
	min     int
	display string
	badge   *model.Badge
}

// tiers is the single threshold table, highest first. Any code deriving a
// role or badge from a numeric level must go through it.
var tiers = []tier{
	{Creator, 1000, "Creator", &model.Badge{Name: "Bot Creator", Icon: "🔧", Color: "#ff6b6b", Priority: 1000}},
	{Founder, 800, "Founder", &model.Badge{Name: "Server Founder", Icon: "👑", Color: "#ffd93d", Priority: 800}},
	{Admin, 600, "Administrator", &model.Badge{Name: "Administrator", Icon: "⚡", Color: "#74c0fc", Priority: 600}},
	{Moderator, 400, "Moderator", &model.Badge{Name: "Moderator", Icon: "🛡️", Color: "#51cf66", Priority: 400}},
	{Member, 200, "Member", nil},
}

// Tenure badges.
var (
	veteranBadge     = model.Badge{Name: "Veteran User", Icon: "🏆", Color: "#e599f7", Priority: 300}
	experiencedBadge = model.Badge{Name: "Experienced User", Icon: "⭐", Color: "#91a7ff", Priority: 250}
)

const (
	veteranMonths     = 12
	experiencedMonths = 6
	monthLength       = 30 * 24 * time.Hour
)

// Threshold returns the minimum numeric level for c.
func Threshold(c Capability) (int, bool) {
	for _, t := range tiers {
		if t.cap == c {
			return t.min, true
		}
	}
	return 0, false
}

// ParseCapability converts a string to a known Capability.
func ParseCapability(s string) (Capability, bool) {
	c := Capability(s)
	_, ok := Threshold(c)
	return c, ok
}

// All returns the capabilities from lowest to highest.
func All() []Capability {
	out := make([]Capability, 0, len(tiers))
	for i := len(tiers) - 1; i >= 0; i-- {
		out = append(out, tiers[i].cap)
	}
	return out
}

// HasCapability reports whether p's level reaches c's threshold.
// Nil permissions and unknown capabilities are false, not errors.
func HasCapability(p *model.Permissions, c Capability) bool {
	if p == nil {
		return false
	}
	min, ok := Threshold(c)
	if !ok {
		return false
	}
	return p.NumericLevel >= min
}

// Highest returns the highest capability satisfied by level.
func Highest(level int) (Capability, bool) {
	for _, t := range tiers {
		if level >= t.min {
			return t.cap, true
		}
	}
	return "", false
}

// RoleDisplay names the highest tier satisfied by level.
func RoleDisplay(level int) string {
	for _, t := range tiers {
		if level >= t.min {
			return t.display
		}
	}
	return "Visitor"
}

// TenureMonths counts whole 30-day periods between createdAt and now.
// A zero or future createdAt yields 0.
func TenureMonths(createdAt, now time.Time) int {
	if createdAt.IsZero() || now.Before(createdAt) {
		return 0
	}
	return int(now.Sub(createdAt) / monthLength)
}

// ComputeBadges returns one badge per satisfied capability tier plus at most
// one tenure badge, sorted by descending priority. Ties keep the order in
// which they were produced, capability badges first.
func ComputeBadges(p *model.Permissions, profile *model.Profile, now time.Time) []model.Badge {
	if p == nil {
		return []model.Badge{}
	}

	badges := make([]model.Badge, 0, len(tiers)+1)
	for _, t := range tiers {
		if t.badge != nil && p.NumericLevel >= t.min {
			badges = append(badges, *t.badge)
		}
	}

	if profile != nil {
		switch months := TenureMonths(profile.CreatedAt, now); {
		case months >= veteranMonths:
			badges = append(badges, veteranBadge)
		case months >= experiencedMonths:
			badges = append(badges, experiencedBadge)
		}
	}

	sort.SliceStable(badges, func(i, j int) bool {
		return badges[i].Priority > badges[j].Priority
	})
	return badges
}
