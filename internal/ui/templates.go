package ui

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/me/webpanel/pkg/model"
)

// Template functions available in all templates.
var templateFuncs = template.FuncMap{
	"formatDate": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format("2006-01-02")
	},
	"timeAgo": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return humanize.Time(t)
	},
	"number": formatNumber,
	"cell": func(row map[string]any, col string) string {
		return formatValue(row[col])
	},
	"value":        formatValue,
	"raw":          rawValue,
	"toJSON":       toJSON,
	"table":        asTable,
	"configFields": configFields,
	"musicActions": func() []string { return musicActions },
	"notifClass": func(t model.NotificationType) string {
		switch t {
		case model.NotifySuccess:
			return "notif-success"
		case model.NotifyWarning:
			return "notif-warning"
		case model.NotifyError:
			return "notif-error"
		default:
			return "notif-info"
		}
	},
	"dict": func(kv ...any) (map[string]any, error) {
		if len(kv)%2 != 0 {
			return nil, errors.New("dict: odd number of arguments")
		}
		m := make(map[string]any, len(kv)/2)
		for i := 0; i < len(kv); i += 2 {
			k, ok := kv[i].(string)
			if !ok {
				return nil, fmt.Errorf("dict: key %v is not a string", kv[i])
			}
			m[k] = kv[i+1]
		}
		return m, nil
	},
	"title": title,
}

// title turns a snake_case key into a label with its first rune upper-cased.
func title(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// formatNumber groups thousands for integers and leaves anything else as is.
func formatNumber(v any) string {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return humanize.Comma(i)
		}
		if f, err := n.Float64(); err == nil {
			return humanize.CommafWithDigits(f, 2)
		}
		return n.String()
	case float64:
		if n == float64(int64(n)) {
			return humanize.Comma(int64(n))
		}
		return humanize.CommafWithDigits(n, 2)
	case int:
		return humanize.Comma(int64(n))
	case int64:
		return humanize.Comma(n)
	}
	return formatValue(v)
}

// formatValue renders a decoded JSON value for a table cell.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case string:
		if t, err := time.Parse(time.RFC3339, x); err == nil {
			return humanize.Time(t)
		}
		return x
	case json.Number, float64, int, int64:
		return formatNumber(x)
	case bool:
		if x {
			return "yes"
		}
		return "no"
	default:
		return toJSON(x)
	}
}

// rawValue renders a value verbatim, for form fields and URLs.
func rawValue(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func toJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// renderTemplate renders a template with the given data.
func renderTemplate(w io.Writer, name string, data map[string]any) error {
	// Get the template content.
	content, ok := templates[name]
	if !ok {
		return fmt.Errorf("template not found: %s", name)
	}

	// Get the layout template.
	layout, ok := templates["layout"]
	if !ok {
		return fmt.Errorf("layout template not found")
	}

	// Parse templates.
	tmpl, err := template.New("layout").Funcs(templateFuncs).Parse(layout)
	if err != nil {
		return fmt.Errorf("parse layout: %w", err)
	}

	_, err = tmpl.New("content").Parse(content)
	if err != nil {
		return fmt.Errorf("parse content: %w", err)
	}

	// Add shared components.
	for compName, compContent := range templates {
		if strings.HasPrefix(compName, "components/") {
			_, err = tmpl.New(filepath.Base(compName)).Parse(compContent)
			if err != nil {
				return fmt.Errorf("parse component %s: %w", compName, err)
			}
		}
	}

	return tmpl.Execute(w, data)
}

// templates holds all template content.
var templates = map[string]string{
	"layout": `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    {{if not .View}}<meta http-equiv="refresh" content="1">{{end}}
    <style>
        :root { --bg:#0b0f1a; --panel:#141a2b; --fg:#e6f1ff; --accent:#00e5ff; --muted:#7d8aa5; }
        body.theme-neon { --bg:#12001f; --panel:#1f0433; --accent:#ff2bd6; }
        body.theme-matrix { --bg:#000; --panel:#031a07; --fg:#b6ffb6; --accent:#00ff41; }
        body.theme-synthwave { --bg:#1a1033; --panel:#2b1b4d; --accent:#ff8a00; }
        body { margin:0; font-family:system-ui,sans-serif; background:var(--bg); color:var(--fg); display:flex; min-height:100vh; }
        a { color:var(--accent); }
        nav.sidebar { width:14rem; background:var(--panel); padding:1rem; }
        nav.sidebar.collapsed { width:4rem; }
        nav.sidebar.collapsed .label { display:none; }
        nav.sidebar a { display:block; padding:.4rem .6rem; border-radius:.4rem; text-decoration:none; color:var(--fg); }
        nav.sidebar a.active { background:var(--accent); color:var(--bg); }
        main { flex:1; padding:1.5rem; }
        .card { background:var(--panel); border-radius:.6rem; padding:1rem; margin-bottom:1rem; }
        .badge { display:inline-block; padding:.15rem .5rem; border-radius:1rem; margin-right:.3rem; color:#111; }
        .muted { color:var(--muted); }
        table { width:100%; border-collapse:collapse; }
        th, td { text-align:left; padding:.3rem .5rem; border-bottom:1px solid #ffffff1a; }
        .notifications { position:fixed; top:1rem; right:1rem; width:20rem; }
        .notif-info { border-left:4px solid #74c0fc; }
        .notif-success { border-left:4px solid #51cf66; }
        .notif-warning { border-left:4px solid #ffd93d; }
        .notif-error { border-left:4px solid #ff6b6b; }
        pre { white-space:pre-wrap; }
    </style>
</head>
<body class="theme-{{.Theme}}">
    {{if .View}}{{template "sidebar.html" .}}{{end}}
    <main>
        {{if .View}}
        <header class="card">
            <strong>{{.View.Icon}} {{.View.Label}}</strong>
            {{if .Server}}<span class="muted">· {{.Server.Name}}</span>{{end}}
            <span style="float:right">
                {{if .Authenticated}}
                    {{.Session.Username}} <span class="muted">({{.Role}})</span> · <a href="/logout">Logout</a>
                {{else}}
                    <a href="/login">Login with Discord</a>
                {{end}}
            </span>
        </header>
        {{end}}
        {{template "content" .}}
    </main>
    {{if .View}}{{template "notifications.html" .}}{{end}}
</body>
</html>`,

	"loading": `<div class="card">
    <h2>🤖 WebPanel</h2>
    <p class="muted">Loading...</p>
</div>`,

	"dashboard": `{{if .Authenticated}}
<div class="card">
    <h2>Welcome{{with .Profile}}, {{.DisplayName}}{{end}}</h2>
    {{with .Profile}}<p class="muted">Member since {{formatDate .CreatedAt}} · last seen {{timeAgo .LastSeen}}</p>{{end}}
    {{template "badges.html" .Badges}}
</div>
{{else}}
<div class="card">
    <h2>WebPanel</h2>
    <p>Log in with Discord to manage your servers.</p>
    <a href="/login">Login with Discord</a>
</div>
{{end}}
{{with .Stats}}
<div class="card">
    <h3>Statistics</h3>
    <table>
    {{range $k, $v := .}}<tr><th>{{title $k}}</th><td>{{number $v}}</td></tr>{{end}}
    </table>
</div>
{{end}}
{{template "resource.html" (dict "Title" "Leaderboard" "R" (index .Resources "leaderboard"))}}`,

	"servers": `<div class="card">
    <h2>Servers</h2>
    {{with index .Resources "servers"}}
        {{if .Error}}<p class="notif-error">Failed to load servers: {{.Error}}</p>
        {{else if .Loading}}<p class="muted">Loading...</p>{{end}}
    {{end}}
    {{if .Servers}}
    <table>
        <tr><th></th><th>Name</th><th>ID</th><th></th></tr>
        {{range .Servers}}
        <tr>
            <td>{{if .Icon}}<img src="{{.Icon}}" alt="" width="24" height="24">{{end}}</td>
            <td>{{.Name}}</td>
            <td class="muted">{{.ID}}</td>
            <td>
                <form method="post" action="/servers/select">
                    <input type="hidden" name="server_id" value="{{.ID}}">
                    <button type="submit">Select</button>
                </form>
            </td>
        </tr>
        {{end}}
    </table>
    {{else}}
    <p class="muted">No servers.</p>
    {{end}}
</div>`,

	"domain": `{{if .NeedsServer}}
<div class="card">
    <p>Select a server to manage {{.View.Label}}.</p>
    <a href="/view/servers">Choose a server</a>
</div>
{{else}}
{{$res := .Resources}}
{{range $name, $r := .Resources}}
    {{if ne $name "config"}}{{template "resource.html" (dict "Title" (title $name) "R" $r)}}{{end}}
{{end}}

{{if eq .View.Key "moderation"}}
<div class="card">
    <h3>Moderation action</h3>
    <form method="post" action="/moderation/action">
        <select name="action">
            <option value="warn">Warn</option>
            <option value="mute">Mute</option>
            <option value="kick">Kick</option>
            <option value="ban">Ban</option>
        </select>
        <input name="user_id" placeholder="User ID" required>
        <input name="reason" placeholder="Reason">
        <input name="duration" placeholder="Duration (minutes)">
        <button type="submit">Execute</button>
    </form>
</div>
{{end}}

{{if eq .View.Key "music"}}
<div class="card">
    <h3>Playback</h3>
    {{range $action := musicActions}}
    <form method="post" action="/music/control" style="display:inline">
        <input type="hidden" name="action" value="{{$action}}">
        <button type="submit">{{title $action}}</button>
    </form>
    {{end}}
    <form method="post" action="/music/add">
        <input name="query" placeholder="Track or URL" required>
        <button type="submit">Add to queue</button>
    </form>
</div>
{{end}}

{{if eq .View.Key "gaming"}}
<div class="card">
    <h3>Give XP</h3>
    <form method="post" action="/gaming/xp">
        <input name="user_id" placeholder="User ID" required>
        <input name="amount" placeholder="Amount" required>
        <input name="reason" placeholder="Reason">
        <button type="submit">Give</button>
    </form>
    <h3>Level rewards</h3>
    {{with table (index $res "rewards").Data}}
    <table>
        {{range .Rows}}
        <tr>
            <td>{{cell . "level"}}</td><td>{{cell . "reward_type"}}</td><td>{{cell . "reward_value"}}</td>
            <td>{{with index . "id"}}<form method="post" action="/gaming/rewards/{{raw .}}/delete"><button type="submit">Delete</button></form>{{end}}</td>
        </tr>
        {{end}}
    </table>
    {{end}}
    <form method="post" action="/gaming/rewards">
        <input name="level" placeholder="Level" required>
        <select name="reward_type"><option value="role">Role</option><option value="coins">Coins</option></select>
        <input name="reward_value" placeholder="Value" required>
        <button type="submit">Add reward</button>
    </form>
</div>
{{end}}

{{if eq .View.Key "analytics"}}
<div class="card">
    <h3>Report</h3>
    <form method="post" action="/analytics/report">
        <select name="type"><option value="activity">Activity</option><option value="members">Members</option><option value="moderation">Moderation</option></select>
        <select name="period"><option value="7d">7 days</option><option value="30d">30 days</option><option value="90d">90 days</option></select>
        <button type="submit">Generate</button>
    </form>
</div>
{{end}}

{{with index $res "config"}}
<div class="card">
    <h3>Configuration</h3>
    {{if .Error}}<p class="notif-error">{{.Error}}</p>
    {{else if .Loading}}<p class="muted">Loading...</p>
    {{else if $.CanConfig}}
    <form method="post" action="/view/{{$.View.Key}}/config">
        {{range configFields .Data}}
        <label>{{title .Name}}
        {{if .Bool}}
            <input type="hidden" name="_bool" value="{{.Name}}">
            <input type="checkbox" name="{{.Name}}" value="true" {{if .Value}}checked{{end}}>
        {{else}}
            <input name="{{.Name}}" value="{{raw .Value}}">
        {{end}}
        </label><br>
        {{end}}
        <button type="submit">Save</button>
    </form>
    {{else}}
    <pre>{{toJSON .Data}}</pre>
    {{end}}
</div>
{{end}}
{{end}}`,

	"admin": `<div class="card">
    <h2>⚡ Administration</h2>
    <p>Signed in as {{.Session.Username}} ({{.Role}}).</p>
    {{if .BootstrapErrors}}
    <h3>Backend errors</h3>
    <table>{{range $ep, $err := .BootstrapErrors}}<tr><th>{{$ep}}</th><td>{{$err}}</td></tr>{{end}}</table>
    {{else}}
    <p class="muted">All backend endpoints responded.</p>
    {{end}}
</div>`,

	"founder": `<div class="card">
    <h2>👑 Founder tools</h2>
    <p>Server-wide settings such as the economy configuration are available to founders from each view.</p>
    {{template "badges.html" .Badges}}
</div>`,

	"creator": `<div class="card">
    <h2>🔧 Creator tools</h2>
    {{with .Stats}}<pre>{{toJSON .}}</pre>{{end}}
</div>`,

	"settings": `<div class="card">
    <h2>⚙️ Settings</h2>
    {{if not .Authenticated}}<p>Log in to sync your account. <a href="/login">Login with Discord</a></p>{{end}}
    <form method="post" action="/preferences/theme">
        <label>Theme
        <select name="theme">
            {{range .Themes}}<option value="{{.}}" {{if eq . $.Theme}}selected{{end}}>{{title .}}</option>{{end}}
        </select>
        </label>
        <button type="submit">Apply</button>
    </form>
    <form method="post" action="/preferences/sidebar">
        <button type="submit">{{if .SidebarCollapsed}}Expand{{else}}Collapse{{end}} sidebar</button>
    </form>
</div>`,

	"components/sidebar.html": `<nav class="sidebar{{if .SidebarCollapsed}} collapsed{{end}}">
    <h3><span class="label">WebPanel</span></h3>
    {{range .Menu}}
    <a href="/view/{{.Key}}" class="{{if .Active}}active{{end}}" title="{{.Label}}">{{.Icon}} <span class="label">{{.Label}}</span></a>
    {{end}}
</nav>`,

	"components/notifications.html": `<div class="notifications">
    {{range .Notifications}}
    <div class="card {{notifClass .Type}}">
        {{.Message}}
        <form method="post" action="/notifications/{{.ID}}/dismiss" style="display:inline; float:right">
            <button type="submit" aria-label="Dismiss">×</button>
        </form>
    </div>
    {{end}}
</div>`,

	"components/badges.html": `{{if .}}<div>{{range .}}<span class="badge" style="background:{{.Color}}" title="{{.Name}}">{{.Icon}} {{.Name}}</span>{{end}}</div>{{end}}`,

	"components/resource.html": `{{with .R}}{{if not .Idle}}
<div class="card">
    <h3>{{$.Title}}</h3>
    {{if .Error}}<p class="notif-error">Failed to load: {{.Error}}</p>
    {{else if .Loading}}<p class="muted">Loading...</p>
    {{else}}
        {{with table .Data}}
        <table>
            <tr>{{range .Columns}}<th>{{title .}}</th>{{end}}</tr>
            {{$cols := .Columns}}
            {{range $row := .Rows}}<tr>{{range $cols}}<td>{{cell $row .}}</td>{{end}}</tr>{{end}}
        </table>
        {{else}}
        <pre>{{toJSON .Data}}</pre>
        {{end}}
    {{end}}
</div>
{{end}}{{end}}`,
}
