package router

import (
	"testing"

	"github.com/me/webpanel/internal/permission"
	"github.com/me/webpanel/pkg/model"
)

type level int

func (l level) Has(c permission.Capability) bool {
	return permission.HasCapability(&model.Permissions{NumericLevel: int(l)}, c)
}

type nobody struct{}

func (nobody) Has(permission.Capability) bool { return false }

// session is a checker that also knows whether the user is logged in.
type session struct {
	level
	loggedIn bool
}

func (s session) IsAuthenticated() bool { return s.loggedIn }

func TestResolve_LoggedOutSeesOnlyUngatedViews(t *testing.T) {
	// Permissions can outlive the login they came from.
	out := session{level: 1000, loggedIn: false}
	for _, v := range All() {
		got := Resolve(v.Key, out).Key
		want := v.Key
		if v.Requires != "" {
			want = Dashboard
		}
		if got != want {
			t.Errorf("Resolve(%q) logged out = %q, want %q", v.Key, got, want)
		}
	}

	in := session{level: 1000, loggedIn: true}
	if got := Resolve(Admin, in).Key; got != Admin {
		t.Errorf("Resolve(admin) logged in = %q, want admin", got)
	}

	menu := Menu(out, out.IsAuthenticated(), Admin)
	for _, e := range menu {
		if e.Requires != "" {
			t.Errorf("logged-out menu lists gated view %q", e.Key)
		}
		if e.Active != (e.Key == Dashboard) {
			t.Errorf("%q active = %v", e.Key, e.Active)
		}
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		view string
		c    Checker
		want string
	}{
		{"nonexistent-view", level(1000), Dashboard},
		{"", level(1000), Dashboard},
		{Dashboard, nobody{}, Dashboard},
		{Settings, nobody{}, Settings},
		{Economy, nobody{}, Dashboard},
		{Economy, level(200), Economy},
		{Moderation, level(399), Dashboard},
		{Moderation, level(400), Moderation},
		{Analytics, level(650), Analytics},
		{Admin, level(650), Admin},
		{Founder, level(650), Dashboard},
		{Founder, level(800), Founder},
		{Creator, level(999), Dashboard},
		{Creator, level(1000), Creator},
		{Creator, nil, Dashboard},
	}
	for _, tt := range tests {
		t.Run(tt.view, func(t *testing.T) {
			if got := Resolve(tt.view, tt.c).Key; got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.view, got, tt.want)
			}
		})
	}
}

func TestResolveNeverRendersGatedViewWithoutCapability(t *testing.T) {
	for _, lvl := range []int{0, 199, 200, 400, 600, 800, 1000} {
		c := level(lvl)
		for _, v := range All() {
			got := Resolve(v.Key, c)
			if got.Requires != "" && !c.Has(got.Requires) {
				t.Errorf("level %d: %q rendered without %q", lvl, got.Key, got.Requires)
			}
		}
	}
}

func TestViewKeysAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, v := range All() {
		if seen[v.Key] {
			t.Errorf("duplicate view %q", v.Key)
		}
		seen[v.Key] = true
		if !Known(v.Key) {
			t.Errorf("Known(%q) = false", v.Key)
		}
	}
	if len(seen) != 11 {
		t.Errorf("got %d views, want 11", len(seen))
	}
}

func TestMenu(t *testing.T) {
	keys := func(es []Entry) []string {
		var out []string
		for _, e := range es {
			out = append(out, e.Key)
		}
		return out
	}

	anon := keys(Menu(level(1000), false, Dashboard))
	if len(anon) != 2 || anon[0] != Dashboard || anon[1] != Settings {
		t.Errorf("unauthenticated menu = %v", anon)
	}
	for _, e := range Menu(level(1000), false, Admin) {
		if e.Active != (e.Key == Dashboard) {
			t.Errorf("unauthenticated %q active = %v", e.Key, e.Active)
		}
	}

	mod := Menu(level(450), true, Moderation)
	got := keys(mod)
	want := []string{Dashboard, Servers, Economy, Moderation, Music, Gaming, Settings}
	if len(got) != len(want) {
		t.Fatalf("menu = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("menu[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	for _, e := range mod {
		if e.Active != (e.Key == Moderation) {
			t.Errorf("%q active = %v", e.Key, e.Active)
		}
	}

	// A forbidden current view highlights the dashboard it falls back to.
	for _, e := range Menu(level(200), true, Creator) {
		if e.Active != (e.Key == Dashboard) {
			t.Errorf("%q active = %v", e.Key, e.Active)
		}
	}
}
