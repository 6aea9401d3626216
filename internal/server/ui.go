package server

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/caevv/testrecorder/internal/query"
	"github.com/caevv/testrecorder/internal/record"
	"github.com/caevv/testrecorder/internal/store"
)

const dashboardLimit = 20

var (
	dashboardTmpl = template.Must(template.New("dashboard").Funcs(templateFuncs).Parse(dashboardTemplate))
	detailTmpl    = template.Must(template.New("detail").Funcs(templateFuncs).Parse(detailTemplate))
)

// handleDashboard serves the main dashboard HTML page
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	var invocations []InvocationSummary

	if s.store != nil {
		invs, err := s.store.ListInvocations(r.Context(), dashboardLimit)
		if err != nil {
			s.logger.Error("failed to get invocations for dashboard", "error", err)
		}
		for _, inv := range invs {
			invocations = append(invocations, Summarize(inv))
		}
	}

	stats, err := s.stats(r)
	if err != nil {
		s.logger.Error("failed to get stats for dashboard", "error", err)
	}

	data := DashboardData{
		Title:       "Test Recorder",
		Invocations: invocations,
		Stats:       stats,
		Version:     version,
		Uptime:      s.Uptime(),
	}

	s.render(w, dashboardTmpl, data)
}

// handleInvocationDetail serves the record tree of one invocation
func (s *Server) handleInvocationDetail(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "Store not available", http.StatusServiceUnavailable)
		return
	}

	id := r.PathValue("id")
	inv, err := s.store.GetInvocation(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Invocation not found", http.StatusNotFound)
			return
		}
		s.logger.Error("failed to get invocation for detail page", "record_id", id, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	data := DetailData{
		Title:   "Invocation " + id,
		Summary: Summarize(inv),
		Rows:    treeRows(inv),
		Failed:  query.FilterStatus(query.TestCases(inv), record.StatusFail, record.StatusAssumptionFailure),
	}

	s.render(w, detailTmpl, data)
}

func (s *Server) render(w http.ResponseWriter, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		s.logger.Error("failed to render template", "template", tmpl.Name(), "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// DashboardData holds data for the dashboard template
type DashboardData struct {
	Title       string
	Invocations []InvocationSummary
	Stats       *StatsResponse
	Version     string
	Uptime      string
}

// DetailData holds data for the invocation detail template
type DetailData struct {
	Title   string
	Summary InvocationSummary
	Rows    []TreeRow
	Failed  []query.TestCase
}

// TreeRow is one record of the tree, flattened for display.
type TreeRow struct {
	Depth    int
	ID       string
	Status   string
	Duration time.Duration
	Children int
	Error    string
}

func treeRows(inv *record.Record) []TreeRow {
	var rows []TreeRow
	_ = record.Walk(inv, func(rec *record.Record, depth int) error {
		row := TreeRow{
			Depth:    depth,
			ID:       rec.ID,
			Duration: rec.Duration(),
			Children: len(rec.Children),
		}
		if rec.IsTestCase() {
			row.Status = rec.Status.String()
		}
		if rec.DebugInfo != nil {
			row.Error = rec.DebugInfo.ErrorMessage
		}
		rows = append(rows, row)
		return nil
	})
	return rows
}

// templateFuncs provides custom template functions
var templateFuncs = template.FuncMap{
	"formatTime": func(t any) string {
		switch v := t.(type) {
		case time.Time:
			return v.Local().Format("2006-01-02 15:04:05")
		case *time.Time:
			if v != nil {
				return v.Local().Format("2006-01-02 15:04:05")
			}
		}
		return "N/A"
	},
	"formatDuration": func(d any) string {
		var duration time.Duration
		switch v := d.(type) {
		case time.Duration:
			duration = v
		case int64:
			duration = time.Duration(v) * time.Millisecond
		}
		if duration < time.Second {
			return duration.String()
		}
		return duration.Round(time.Millisecond).String()
	},
	"statusBadge": func(status string) template.HTML {
		class := "badge-secondary"
		switch status {
		case StatusPassed, "PASS":
			class = "badge-success"
		case StatusFailed, "FAIL", "ASSUMPTION_FAILURE":
			class = "badge-danger"
		case StatusRunning:
			class = "badge-info"
		case "":
			return ""
		}
		return template.HTML(`<span class="badge ` + class + `">` + template.HTMLEscapeString(status) + `</span>`)
	},
	"indent": func(depth int) template.HTML {
		return template.HTML(strings.Repeat("&nbsp;&nbsp;&nbsp;&nbsp;", depth))
	},
	"passRate": func(st *StatsResponse) string {
		if st == nil || st.Tests == 0 {
			return "N/A"
		}
		return fmt.Sprintf("%.1f%%", float64(st.TestsPassed)/float64(st.Tests)*100)
	},
	"truncate": func(s string, max int) string {
		if len(s) <= max {
			return s
		}
		return s[:max] + "..."
	},
}

// dashboardTemplate is the main dashboard HTML template
const dashboardTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; background: #f5f5f5; color: #333; line-height: 1.6; }
        .container { max-width: 1200px; margin: 0 auto; padding: 20px; }
        header { background: #2c3e50; color: white; padding: 20px 0; margin-bottom: 30px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        header h1 { font-size: 28px; margin-bottom: 5px; }
        header .meta { font-size: 14px; opacity: 0.8; }
        .stats { display: grid; grid-template-columns: repeat(auto-fit, minmax(200px, 1fr)); gap: 20px; margin-bottom: 30px; }
        .stat-card { background: white; padding: 20px; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .stat-card h3 { font-size: 14px; color: #7f8c8d; margin-bottom: 8px; text-transform: uppercase; }
        .stat-card .value { font-size: 32px; font-weight: bold; color: #2c3e50; }
        .section { background: white; padding: 25px; border-radius: 8px; margin-bottom: 30px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .section h2 { font-size: 20px; margin-bottom: 20px; color: #2c3e50; border-bottom: 2px solid #3498db; padding-bottom: 10px; }
        table { width: 100%; border-collapse: collapse; }
        th { background: #f8f9fa; text-align: left; padding: 12px; font-weight: 600; border-bottom: 2px solid #dee2e6; }
        td { padding: 12px; border-bottom: 1px solid #dee2e6; }
        tr:hover { background: #f8f9fa; }
        .badge { display: inline-block; padding: 4px 8px; border-radius: 4px; font-size: 12px; font-weight: 600; text-transform: uppercase; }
        .badge-success { background: #d4edda; color: #155724; }
        .badge-danger { background: #f8d7da; color: #721c24; }
        .badge-info { background: #d1ecf1; color: #0c5460; }
        .badge-secondary { background: #e2e3e5; color: #383d41; }
        .empty { text-align: center; padding: 40px; color: #7f8c8d; }
        a { color: #3498db; text-decoration: none; }
        a:hover { text-decoration: underline; }
        .tree td:first-child { font-family: monospace; font-size: 13px; }
        code { background: #f8f9fa; padding: 2px 6px; border-radius: 3px; font-family: monospace; font-size: 13px; }
    </style>
</head>
<body>
    <header>
        <div class="container">
            <h1>{{.Title}}</h1>
            <div class="meta">Version: {{.Version}} | Uptime: {{.Uptime}}</div>
        </div>
    </header>

    <div class="container">
        {{if .Stats}}
        <div class="stats">
            <div class="stat-card">
                <h3>Invocations</h3>
                <div class="value">{{.Stats.Invocations}}</div>
            </div>
            <div class="stat-card">
                <h3>Failed Invocations</h3>
                <div class="value">{{.Stats.Failed}}</div>
            </div>
            <div class="stat-card">
                <h3>Tests</h3>
                <div class="value">{{.Stats.Tests}}</div>
            </div>
            <div class="stat-card">
                <h3>Pass Rate</h3>
                <div class="value">{{passRate .Stats}}</div>
            </div>
        </div>
        {{end}}

        <div class="section">
            <h2>Recent Invocations ({{len .Invocations}})</h2>
            {{if .Invocations}}
            <table>
                <thead>
                    <tr>
                        <th>ID</th>
                        <th>Started</th>
                        <th>Duration</th>
                        <th>Modules</th>
                        <th>Passed / Failed / Ignored</th>
                        <th>Status</th>
                    </tr>
                </thead>
                <tbody>
                    {{range .Invocations}}
                    <tr>
                        <td><a href="/invocations/{{.ID}}"><code>{{truncate .ID 16}}</code></a></td>
                        <td>{{formatTime .StartTime}}</td>
                        <td>{{formatDuration .DurationMs}}</td>
                        <td>{{.Modules}}</td>
                        <td>{{.Summary.Passed}} / {{.Summary.Failed}} / {{.Summary.Ignored}}</td>
                        <td>{{statusBadge .Status}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
            {{else}}
            <div class="empty">No invocations recorded yet</div>
            {{end}}
        </div>
    </div>
</body>
</html>
`

// detailTemplate renders a single invocation
const detailTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; background: #f5f5f5; color: #333; line-height: 1.6; }
        .container { max-width: 1200px; margin: 0 auto; padding: 20px; }
        header { background: #2c3e50; color: white; padding: 20px 0; margin-bottom: 30px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        header h1 { font-size: 28px; margin-bottom: 5px; }
        header .meta { font-size: 14px; opacity: 0.8; }
        .stats { display: grid; grid-template-columns: repeat(auto-fit, minmax(200px, 1fr)); gap: 20px; margin-bottom: 30px; }
        .stat-card { background: white; padding: 20px; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .stat-card h3 { font-size: 14px; color: #7f8c8d; margin-bottom: 8px; text-transform: uppercase; }
        .stat-card .value { font-size: 32px; font-weight: bold; color: #2c3e50; }
        .section { background: white; padding: 25px; border-radius: 8px; margin-bottom: 30px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .section h2 { font-size: 20px; margin-bottom: 20px; color: #2c3e50; border-bottom: 2px solid #3498db; padding-bottom: 10px; }
        table { width: 100%; border-collapse: collapse; }
        th { background: #f8f9fa; text-align: left; padding: 12px; font-weight: 600; border-bottom: 2px solid #dee2e6; }
        td { padding: 12px; border-bottom: 1px solid #dee2e6; }
        tr:hover { background: #f8f9fa; }
        .badge { display: inline-block; padding: 4px 8px; border-radius: 4px; font-size: 12px; font-weight: 600; text-transform: uppercase; }
        .badge-success { background: #d4edda; color: #155724; }
        .badge-danger { background: #f8d7da; color: #721c24; }
        .badge-info { background: #d1ecf1; color: #0c5460; }
        .badge-secondary { background: #e2e3e5; color: #383d41; }
        .empty { text-align: center; padding: 40px; color: #7f8c8d; }
        a { color: #3498db; text-decoration: none; }
        a:hover { text-decoration: underline; }
        .tree td:first-child { font-family: monospace; font-size: 13px; }
        code { background: #f8f9fa; padding: 2px 6px; border-radius: 3px; font-family: monospace; font-size: 13px; }
    </style>
</head>
<body>
    <header>
        <div class="container">
            <h1>{{.Title}}</h1>
            <div class="meta"><a href="/" style="color: white;">&larr; Dashboard</a> | {{statusBadge .Summary.Status}} | {{formatTime .Summary.StartTime}} | {{formatDuration .Summary.DurationMs}}</div>
        </div>
    </header>

    <div class="container">
        {{if .Failed}}
        <div class="section">
            <h2>Failures ({{len .Failed}})</h2>
            <table>
                <thead><tr><th>Test</th><th>Run</th><th>Status</th><th>Message</th></tr></thead>
                <tbody>
                    {{range .Failed}}
                    <tr>
                        <td><code>{{.ID}}</code></td>
                        <td>{{.Run}}</td>
                        <td>{{statusBadge .Status.String}}</td>
                        <td>{{truncate .ErrorMessage 120}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>
        {{end}}

        <div class="section">
            <h2>Records ({{len .Rows}})</h2>
            <table class="tree">
                <thead><tr><th>Record</th><th>Status</th><th>Duration</th><th>Children</th><th>Error</th></tr></thead>
                <tbody>
                    {{range .Rows}}
                    <tr>
                        <td>{{indent .Depth}}{{.ID}}</td>
                        <td>{{statusBadge .Status}}</td>
                        <td>{{formatDuration .Duration}}</td>
                        <td>{{.Children}}</td>
                        <td>{{truncate .Error 80}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>
    </div>
</body>
</html>
`
