package ui

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/me/webpanel/internal/backend"
	"github.com/me/webpanel/internal/fetch"
	"github.com/me/webpanel/internal/panel"
	"github.com/me/webpanel/internal/permission"
	"github.com/me/webpanel/internal/router"
	"github.com/me/webpanel/pkg/model"
)

// scope carries what a view's endpoints depend on.
type scope struct {
	ServerID  string
	ProfileID string
}

// resource is one backend read a view renders.
type resource struct {
	Name     string
	Endpoint func(scope) string
}

func fixed(path string) func(scope) string {
	return func(scope) string { return path }
}

// perServer is the sentinel until a server is selected.
func perServer(domain, kind string) func(scope) string {
	return func(s scope) string {
		if s.ServerID == "" {
			return fetch.NoEndpoint
		}
		return backend.Endpoint(domain, kind, s.ServerID)
	}
}

func perProfile(domain, kind string) func(scope) string {
	return func(s scope) string {
		if s.ProfileID == "" {
			return fetch.NoEndpoint
		}
		return backend.Endpoint(domain, kind, s.ProfileID)
	}
}

// viewData describes the backend reads behind a view.
type viewData struct {
	Resources []resource
	// ConfigRequires gates the view's config form; empty means the view has
	// no backend config.
	ConfigRequires permission.Capability
	NeedsServer    bool
}

var viewTable = map[string]viewData{
	router.Dashboard: {
		Resources: []resource{{"leaderboard", fixed("/economy/leaderboard")}},
	},
	router.Servers: {
		Resources: []resource{{"servers", fixed(endpointServers)}},
	},
	router.Economy: {
		Resources: []resource{
			{"config", perServer("economy", "config")},
			{"leaderboard", fixed("/economy/leaderboard")},
			{"user", perProfile("economy", "user")},
		},
		ConfigRequires: permission.Founder,
		NeedsServer:    true,
	},
	router.Moderation: {
		Resources: []resource{
			{"logs", perServer("moderation", "logs")},
			{"warnings", perServer("moderation", "warnings")},
			{"config", perServer("moderation", "config")},
		},
		ConfigRequires: permission.Admin,
		NeedsServer:    true,
	},
	router.Music: {
		Resources: []resource{
			{"queue", perServer("music", "queue")},
			{"status", perServer("music", "status")},
			{"config", perServer("music", "config")},
		},
		ConfigRequires: permission.Admin,
		NeedsServer:    true,
	},
	router.Gaming: {
		Resources: []resource{
			{"levels", perServer("gaming", "levels")},
			{"config", perServer("gaming", "config")},
			{"minigames", perServer("gaming", "minigames")},
			{"rewards", perServer("gaming", "rewards")},
		},
		ConfigRequires: permission.Admin,
		NeedsServer:    true,
	},
	router.Analytics: {
		Resources: []resource{
			{"metrics", perServer("analytics", "metrics")},
			{"users", perServer("analytics", "users")},
			{"events", perServer("analytics", "events")},
			{"config", perServer("analytics", "config")},
		},
		ConfigRequires: permission.Admin,
		NeedsServer:    true,
	},
}

const endpointServers = "/servers/list"

// resourceKey names a view's hook inside the panel state.
func resourceKey(view, name string) string {
	return view + "." + name
}

// ResourceView is a decoded snapshot ready for a template.
type ResourceView struct {
	Name     string
	Endpoint string
	Data     any
	Loading  bool
	Error    string
}

// Idle reports whether the resource was never requested, e.g. while no
// server is selected.
func (r ResourceView) Idle() bool {
	return r.Endpoint == "" && !r.Loading && r.Error == ""
}

// loadView binds every resource of view to the current scope and waits up to
// wait for them to settle. Resources that are still loading render as such.
func loadView(ctx context.Context, st *panel.State, view string, wait time.Duration) map[string]ResourceView {
	vd, ok := viewTable[view]
	if !ok {
		return nil
	}
	sc := currentScope(st)

	hooks := make(map[string]*fetch.Hook, len(vd.Resources))
	for _, res := range vd.Resources {
		key := resourceKey(view, res.Name)
		st.Use(ctx, key, res.Endpoint(sc), sc.ServerID, sc.ProfileID)
		hooks[res.Name] = st.Resource(key)
	}

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	for _, h := range hooks {
		h.Wait(waitCtx)
	}

	out := make(map[string]ResourceView, len(hooks))
	for name, h := range hooks {
		out[name] = toResourceView(name, h.Snapshot())
	}
	return out
}

func currentScope(st *panel.State) scope {
	sc := scope{ServerID: st.Navigation().SelectedServerID()}
	if p := st.Profile(); p != nil {
		sc.ProfileID = p.ID
	}
	return sc
}

func toResourceView(name string, snap fetch.Snapshot) ResourceView {
	rv := ResourceView{Name: name, Endpoint: snap.Endpoint, Loading: snap.Loading, Error: snap.Error}
	if snap.HasData() {
		dec := json.NewDecoder(bytes.NewReader(snap.Data))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err == nil {
			rv.Data = v
		}
	}
	return rv
}

// configKeys lists the hooks to refetch after a config save on view.
func configKeys(view string) []string {
	return []string{resourceKey(view, "config")}
}

// knownServers decodes the servers list if the servers view loaded it. The
// backend returns either a bare array or {"servers": [...]}.
func knownServers(st *panel.State) []model.ServerRef {
	snap := st.Resource(resourceKey(router.Servers, "servers")).Snapshot()
	if !snap.HasData() {
		return nil
	}
	var list []model.ServerRef
	if err := snap.Decode(&list); err == nil {
		return list
	}
	var wrapped struct {
		Servers []model.ServerRef `json:"servers"`
	}
	if err := snap.Decode(&wrapped); err == nil {
		return wrapped.Servers
	}
	return nil
}

// serverRef resolves id against the known servers, falling back to a bare
// reference.
func serverRef(st *panel.State, id string) *model.ServerRef {
	for _, s := range knownServers(st) {
		if s.ID == id {
			return &s
		}
	}
	return &model.ServerRef{ID: id, Name: id}
}

// Table is a list of JSON objects laid out for rendering.
type Table struct {
	Columns []string
	Rows    []map[string]any
}

// asTable lays out v as a table when it is a list of objects, or an object
// whose only list-of-objects member is such a list. Otherwise it returns nil.
func asTable(v any) *Table {
	switch x := v.(type) {
	case []any:
		return tableFromList(x)
	case map[string]any:
		var keys []string
		for k, val := range x {
			if list, ok := val.([]any); ok && tableFromList(list) != nil {
				keys = append(keys, k)
			}
		}
		if len(keys) == 1 {
			return tableFromList(x[keys[0]].([]any))
		}
	}
	return nil
}

func tableFromList(list []any) *Table {
	if len(list) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	t := &Table{}
	for _, item := range list {
		row, ok := item.(map[string]any)
		if !ok {
			return nil
		}
		for k := range row {
			if !seen[k] {
				seen[k] = true
				t.Columns = append(t.Columns, k)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	sort.Strings(t.Columns)
	return t
}

// ConfigField is one editable scalar of a config object.
type ConfigField struct {
	Name  string
	Value any
	Bool  bool
}

// configFields lists the top-level scalar members of a config object.
// Nested values are not editable from the form.
func configFields(v any) []ConfigField {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	var out []ConfigField
	for k, val := range m {
		switch x := val.(type) {
		case bool:
			out = append(out, ConfigField{Name: k, Value: x, Bool: true})
		case string, json.Number, nil:
			out = append(out, ConfigField{Name: k, Value: x})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
