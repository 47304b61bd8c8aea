package webui

import (
	"html/template"
)

// Templates holds the status dashboard served at /
var Templates = template.Must(template.New("").Funcs(template.FuncMap{
	"levelClass": func(level string) string {
		switch level {
		case "error", "fatal", "panic":
			return "log-error"
		case "warn":
			return "log-warn"
		case "debug", "trace":
			return "log-debug"
		default:
			return "log-info"
		}
	},
}).Parse(`
{{define "base"}}
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>StormGuard Status</title>
    <style>
        :root {
            --bg: #0f1419;
            --panel: #171d25;
            --panel-edge: #252e3a;
            --text: #e4e9f0;
            --muted: #7d8a9c;
            --blue: #4aa3ff;
            --green: #3fc98a;
            --amber: #f2b33d;
            --red: #f0575a;
        }
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
            background: var(--bg);
            color: var(--text);
            line-height: 1.5;
        }
        .container { max-width: 1280px; margin: 0 auto; padding: 1.5rem; }
        header {
            display: flex;
            justify-content: space-between;
            align-items: center;
            margin-bottom: 1.5rem;
            padding-bottom: 1rem;
            border-bottom: 1px solid var(--panel-edge);
        }
        .logo { display: flex; align-items: center; gap: 0.75rem; }
        .logo-mark {
            width: 40px; height: 40px; border-radius: 10px;
            display: flex; align-items: center; justify-content: center;
            background: linear-gradient(135deg, var(--blue), #7b5cff);
            font-weight: 700; font-size: 1.25rem;
        }
        h1 { font-size: 1.4rem; }
        .sub { font-size: 0.75rem; color: var(--muted); }
        .actions { display: flex; gap: 0.75rem; align-items: center; }
        .badge {
            display: inline-flex; align-items: center; gap: 0.4rem;
            padding: 0.3rem 0.75rem; border-radius: 999px;
            background: rgba(63, 201, 138, 0.12); color: var(--green);
            font-size: 0.8rem; font-weight: 600;
        }
        .badge.warn { background: rgba(242, 179, 61, 0.12); color: var(--amber); }
        .dot { width: 8px; height: 8px; border-radius: 50%; background: currentColor; }
        .btn {
            border: 1px solid var(--panel-edge); background: var(--panel); color: var(--text);
            padding: 0.45rem 0.9rem; border-radius: 8px; cursor: pointer; font-size: 0.85rem;
        }
        .btn:hover { border-color: var(--blue); }
        .btn:disabled { opacity: 0.5; cursor: default; }
        .stats { display: grid; grid-template-columns: repeat(auto-fit, minmax(180px, 1fr)); gap: 1rem; margin-bottom: 1.5rem; }
        .stat { background: var(--panel); border: 1px solid var(--panel-edge); border-radius: 10px; padding: 1rem 1.25rem; }
        .stat-label { font-size: 0.75rem; text-transform: uppercase; letter-spacing: 0.05em; color: var(--muted); }
        .stat-value { font-size: 1.8rem; font-weight: 700; }
        .blue { color: var(--blue); } .green { color: var(--green); } .amber { color: var(--amber); } .red { color: var(--red); }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(420px, 1fr)); gap: 1rem; margin-bottom: 1rem; }
        .card { background: var(--panel); border: 1px solid var(--panel-edge); border-radius: 10px; overflow: hidden; }
        .card-header {
            display: flex; justify-content: space-between; align-items: center;
            padding: 0.75rem 1.25rem; border-bottom: 1px solid var(--panel-edge); font-weight: 600;
        }
        .card-body { padding: 1rem 1.25rem; }
        .card-body.flush { padding: 0; }
        table { width: 100%; border-collapse: collapse; font-size: 0.85rem; }
        th, td { text-align: left; padding: 0.55rem 1.25rem; border-bottom: 1px solid var(--panel-edge); }
        th { color: var(--muted); font-weight: 500; font-size: 0.75rem; text-transform: uppercase; }
        tr:last-child td { border-bottom: none; }
        .mono { font-family: "SF Mono", Menlo, Consolas, monospace; font-size: 0.8rem; }
        .empty { padding: 2rem; text-align: center; color: var(--muted); }
        .kv { display: flex; justify-content: space-between; padding: 0.35rem 0; border-bottom: 1px dashed var(--panel-edge); font-size: 0.85rem; }
        .kv:last-child { border-bottom: none; }
        .kv span:first-child { color: var(--muted); }
        .announcement { display: flex; gap: 0.75rem; align-items: flex-start; }
        .announcement img { width: 40px; height: 40px; border-radius: 50%; }
        .log-container { max-height: 380px; overflow-y: auto; font-family: "SF Mono", Menlo, Consolas, monospace; font-size: 0.78rem; }
        .log-entry { display: flex; gap: 0.75rem; padding: 0.3rem 1.25rem; border-bottom: 1px solid rgba(255, 255, 255, 0.03); }
        .log-time { color: var(--muted); flex-shrink: 0; }
        .log-level { width: 3.5rem; flex-shrink: 0; text-transform: uppercase; font-weight: 600; }
        .log-info .log-level { color: var(--blue); }
        .log-warn .log-level { color: var(--amber); }
        .log-error .log-level { color: var(--red); }
        .log-debug .log-level { color: var(--muted); }
        .log-message { word-break: break-word; }
        .toast {
            position: fixed; bottom: 1.5rem; right: 1.5rem; padding: 0.75rem 1.25rem;
            border-radius: 8px; background: var(--green); color: #06140d; opacity: 0;
            transition: opacity 0.2s; pointer-events: none;
        }
        .toast.show { opacity: 1; }
        .toast.error { background: var(--red); color: #fff; }
    </style>
</head>
<body>
    <div class="container">
        {{template "content" .}}
    </div>
    <div id="toast" class="toast"></div>
    <script>
        function showToast(message, isError) {
            const toast = document.getElementById('toast');
            toast.textContent = message;
            toast.className = 'toast show' + (isError ? ' error' : '');
            setTimeout(() => toast.className = 'toast', 3000);
        }

        async function reloadState(btn) {
            btn.disabled = true;
            try {
                const res = await fetch('/api/reload', { method: 'POST' });
                const data = await res.json();
                if (res.ok) {
                    showToast('State reloaded: ' + data.entity_count + ' entities');
                    setTimeout(() => location.reload(), 1000);
                } else {
                    showToast(data.error || 'Reload failed', true);
                }
            } catch (e) {
                showToast('Reload failed: ' + e.message, true);
            }
            btn.disabled = false;
        }

        function escapeHtml(text) {
            const div = document.createElement('div');
            div.textContent = text;
            return div.innerHTML;
        }

        function levelClass(level) {
            if (level === 'error' || level === 'fatal' || level === 'panic') return 'log-error';
            if (level === 'warn') return 'log-warn';
            if (level === 'debug' || level === 'trace') return 'log-debug';
            return 'log-info';
        }

        setInterval(() => {
            fetch('/api/logs?n=100')
                .then(r => r.json())
                .then(entries => {
                    const container = document.querySelector('.log-container');
                    if (!container || !Array.isArray(entries)) return;
                    const atBottom = container.scrollHeight - container.scrollTop <= container.clientHeight + 50;
                    container.innerHTML = entries.map(e =>
                        '<div class="log-entry ' + levelClass(e.level) + '">' +
                        '<span class="log-time">' + new Date(e.timestamp).toLocaleTimeString() + '</span>' +
                        '<span class="log-level">' + escapeHtml(e.level) + '</span>' +
                        '<span class="log-message">' + escapeHtml(e.message) + '</span>' +
                        '</div>'
                    ).join('');
                    if (atBottom) container.scrollTop = container.scrollHeight;
                })
                .catch(() => {});
        }, 5000);
    </script>
</body>
</html>
{{end}}

{{define "content"}}
        <header>
            <div class="logo">
                <div class="logo-mark">S</div>
                <div>
                    <h1>StormGuard</h1>
                    <div class="sub">
                        {{if .Version}}{{.Version}}{{if ne .Commit "unknown"}} ({{.Commit | printf "%.7s"}}){{end}}{{else}}dev{{end}}
                    </div>
                </div>
            </div>
            <div class="actions">
                {{if gt .PendingCount 0}}
                <span class="badge warn"><span class="dot"></span>Shutdown pending</span>
                {{else}}
                <span class="badge"><span class="dot"></span>Watching</span>
                {{end}}
                <button class="btn" onclick="reloadState(this)">Reload state</button>
            </div>
        </header>

        <div class="stats">
            <div class="stat">
                <div class="stat-label">Entities</div>
                <div class="stat-value blue">{{.EntityCount}}</div>
            </div>
            <div class="stat">
                <div class="stat-label">Monitoring</div>
                <div class="stat-value green">{{.EnabledCount}}</div>
            </div>
            <div class="stat">
                <div class="stat-label">Pending Shutdowns</div>
                <div class="stat-value {{if gt .PendingCount 0}}red{{else}}green{{end}}">{{.PendingCount}}</div>
            </div>
            <div class="stat">
                <div class="stat-label">Uptime</div>
                <div class="stat-value green">{{.Uptime}}</div>
            </div>
        </div>

        <div class="grid">
            <div class="card">
                <div class="card-header">Monitored Entities</div>
                <div class="card-body flush">
                    {{if .Entities}}
                    <table>
                        <tr><th>Entity</th><th>Location</th><th>Interval</th><th>Admins</th><th>Alerts</th><th>State</th></tr>
                        {{range .Entities}}
                        <tr>
                            <td class="mono">{{.ID}}</td>
                            <td>{{if .Location}}{{.Location}}{{else}}<span class="amber">not set</span>{{end}}</td>
                            <td>{{.Interval}}</td>
                            <td>{{.Admins}}</td>
                            <td>{{.Alerts}}</td>
                            <td>{{if .Pending}}<span class="red">pending</span>{{else if .Enabled}}<span class="green">on</span>{{else}}<span class="sub">off</span>{{end}}</td>
                        </tr>
                        {{end}}
                    </table>
                    {{else}}
                    <div class="empty">No entities configured</div>
                    {{end}}
                </div>
            </div>

            <div class="card">
                <div class="card-header">Shutdown Sequences</div>
                <div class="card-body flush">
                    {{if .Sequences}}
                    <table>
                        <tr><th>Entity</th><th>Event</th><th>Round</th><th>Started</th><th>Run</th></tr>
                        {{range .Sequences}}
                        <tr>
                            <td class="mono">{{.EntityID}}</td>
                            <td>{{.EventType}}</td>
                            <td>{{if .Committed}}<span class="red">shutting down</span>{{else}}{{.Round}} / {{$.Rounds}}{{end}}</td>
                            <td>{{.StartedAt}}</td>
                            <td class="mono">{{.RunID | printf "%.8s"}}</td>
                        </tr>
                        {{end}}
                    </table>
                    {{else}}
                    <div class="empty">No shutdown in progress</div>
                    {{end}}
                </div>
            </div>
        </div>

        <div class="grid">
            <div class="card">
                <div class="card-header">
                    <span>Announcement</span>
                    <span class="sub">{{.Subscribers}} live subscriber(s)</span>
                </div>
                <div class="card-body">
                    <div class="announcement">
                        {{if .Announcement.Avatar}}<img src="{{.Announcement.Avatar}}" alt="">{{end}}
                        <div>
                            <div><strong>{{.Announcement.Username}}</strong> <span class="sub">{{.AnnouncedAt}}</span></div>
                            <div>{{.Announcement.Message}}</div>
                        </div>
                    </div>
                </div>
            </div>

            <div class="card">
                <div class="card-header">Configuration</div>
                <div class="card-body">
                    <div class="kv"><span>Config Path</span><span class="mono">{{.Config.ConfigPath}}</span></div>
                    <div class="kv"><span>State File</span><span class="mono">{{.Config.StatePath}}</span></div>
                    <div class="kv"><span>Poll Interval</span><span>{{.Config.PollInterval}}</span></div>
                    <div class="kv"><span>Countdown</span><span>{{.Rounds}} x {{.Config.RoundInterval}}, then {{.Config.Cooldown}}</span></div>
                    {{if and .BuildDate (ne .BuildDate "unknown")}}
                    <div class="kv"><span>Build Date</span><span>{{.BuildDate}}</span></div>
                    {{end}}
                </div>
            </div>
        </div>

        <div class="card">
            <div class="card-header">
                <span>Recent Logs</span>
                <button class="btn" onclick="const c = document.querySelector('.log-container'); c.scrollTop = c.scrollHeight">Latest</button>
            </div>
            <div class="card-body flush">
                <div class="log-container">
                    {{range .Logs}}
                    <div class="log-entry {{levelClass .Level}}">
                        <span class="log-time">{{.Timestamp.Format "15:04:05"}}</span>
                        <span class="log-level">{{.Level}}</span>
                        <span class="log-message">{{.Message}}</span>
                    </div>
                    {{end}}
                </div>
            </div>
        </div>
{{end}}
`))
