package report

// htmlTemplate is the single-page report.
const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Name}} - Load Test Report</title>
    <style>
        :root {
            --bg-primary: #ffffff;
            --bg-secondary: #f8fafc;
            --bg-card: #ffffff;
            --text-primary: #1e293b;
            --text-secondary: #64748b;
            --text-muted: #94a3b8;
            --border-color: #e2e8f0;
            --accent-primary: #3b82f6;
            --accent-success: #22c55e;
            --accent-error: #ef4444;
            --shadow: 0 1px 3px rgba(0, 0, 0, 0.1);
        }

        * { margin: 0; padding: 0; box-sizing: border-box; }

        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background-color: var(--bg-secondary);
            color: var(--text-primary);
            line-height: 1.6;
        }

        .container { max-width: 1200px; margin: 0 auto; padding: 2rem; }

        .header {
            background: var(--bg-card);
            border-radius: 12px;
            padding: 2rem;
            margin-bottom: 2rem;
            box-shadow: var(--shadow);
            display: flex;
            justify-content: space-between;
            align-items: center;
            flex-wrap: wrap;
            gap: 1rem;
        }
        .header h1 { font-size: 1.75rem; font-weight: 700; }
        .header .description { color: var(--text-secondary); }
        .header .meta { display: flex; gap: 2rem; margin-top: 0.75rem; font-size: 0.875rem; color: var(--text-muted); }

        .status { padding: 0.75rem 1.5rem; border-radius: 8px; font-weight: 600; }
        .status.pass { background-color: rgba(34, 197, 94, 0.1); color: var(--accent-success); border: 1px solid rgba(34, 197, 94, 0.2); }
        .status.fail { background-color: rgba(239, 68, 68, 0.1); color: var(--accent-error); border: 1px solid rgba(239, 68, 68, 0.2); }

        .metrics-grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(200px, 1fr)); gap: 1rem; margin-bottom: 2rem; }
        .metric-card { background: var(--bg-card); border-radius: 12px; padding: 1.5rem; box-shadow: var(--shadow); }
        .metric-card .label { font-size: 0.875rem; color: var(--text-secondary); text-transform: uppercase; letter-spacing: 0.05em; }
        .metric-card .value { font-size: 1.75rem; font-weight: 700; }

        .section { background: var(--bg-card); border-radius: 12px; padding: 1.5rem; margin-bottom: 2rem; box-shadow: var(--shadow); }
        .section-title { font-size: 1.125rem; font-weight: 600; margin-bottom: 1rem; }

        .latency-grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(120px, 1fr)); gap: 1rem; }
        .latency-item { text-align: center; padding: 1rem; background: var(--bg-secondary); border-radius: 8px; }
        .latency-item .percentile { font-size: 0.75rem; color: var(--text-muted); text-transform: uppercase; }
        .latency-item .time { font-size: 1.25rem; font-weight: 600; }

        .stats-table { width: 100%; border-collapse: collapse; font-size: 0.875rem; }
        .stats-table th, .stats-table td { padding: 0.75rem 1rem; text-align: left; border-bottom: 1px solid var(--border-color); }
        .stats-table th { color: var(--text-secondary); font-weight: 600; text-transform: uppercase; font-size: 0.75rem; }

        .threshold-list { display: flex; flex-direction: column; gap: 0.75rem; }
        .threshold-item { display: flex; align-items: center; gap: 1rem; padding: 1rem; background: var(--bg-secondary); border-radius: 8px; }
        .threshold-icon.pass { color: var(--accent-success); }
        .threshold-icon.fail { color: var(--accent-error); }
        .threshold-info { flex: 1; }
        .threshold-metric { font-weight: 600; }
        .threshold-expression { font-family: monospace; color: var(--text-secondary); }
        .threshold-value { font-size: 0.875rem; color: var(--text-muted); }
        .threshold-message { color: var(--accent-error); font-size: 0.75rem; }

        .footer { text-align: center; color: var(--text-muted); font-size: 0.875rem; padding: 2rem 0; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <div>
                <h1>{{.Name}}</h1>
                {{if .Description}}<p class="description">{{.Description}}</p>{{end}}
                <div class="meta">
                    <span>{{.Start}}</span>
                    <span>{{.Duration}}{{if .Interrupted}} (interrupted){{end}}</span>
                    {{if .BaseURL}}<span>{{.BaseURL}}</span>{{end}}
                    <span>run {{.RunID}}</span>
                </div>
            </div>
            <div class="status {{if .Passed}}pass{{else}}fail{{end}}">
                {{if .Passed}}✓ PASSED{{else}}✗ FAILED{{end}}
            </div>
        </div>

        <div class="metrics-grid">
            {{with .Requests}}
            <div class="metric-card" id="total-requests">
                <div class="label">Total Requests</div>
                <div class="value">{{.Total}}</div>
            </div>
            <div class="metric-card">
                <div class="label">Throughput</div>
                <div class="value">{{.Rate}}</div>
            </div>
            <div class="metric-card" id="error-rate">
                <div class="label">Error Rate</div>
                <div class="value">{{.Failed}}</div>
            </div>
            {{end}}
            {{with .Latency}}
            <div class="metric-card" id="p95">
                <div class="label">P95 Response Time</div>
                <div class="value">{{.P95}}</div>
            </div>
            {{end}}
            {{with .VUs}}
            <div class="metric-card">
                <div class="label">Peak VUs</div>
                <div class="value">{{.Max}}</div>
            </div>
            {{end}}
        </div>

        {{with .Latency}}
        <div class="section">
            <h2 class="section-title">Response Time</h2>
            <div class="latency-grid">
                <div class="latency-item"><div class="percentile">Min</div><div class="time">{{.Min}}</div></div>
                <div class="latency-item"><div class="percentile">Avg</div><div class="time">{{.Avg}}</div></div>
                <div class="latency-item"><div class="percentile">P50</div><div class="time">{{.Med}}</div></div>
                <div class="latency-item"><div class="percentile">P90</div><div class="time">{{.P90}}</div></div>
                <div class="latency-item"><div class="percentile">P95</div><div class="time">{{.P95}}</div></div>
                <div class="latency-item"><div class="percentile">P99</div><div class="time">{{.P99}}</div></div>
                <div class="latency-item"><div class="percentile">Max</div><div class="time">{{.Max}}</div></div>
            </div>
        </div>
        {{end}}

        {{if .Checks}}
        <div class="section">
            <h2 class="section-title">Checks</h2>
            <table class="stats-table">
                <thead><tr><th></th><th>Check</th><th>Pass rate</th><th>Passed</th><th>Failed</th></tr></thead>
                <tbody>
                {{range .Checks}}
                    <tr>
                        <td class="threshold-icon {{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}✓{{else}}✗{{end}}</td>
                        <td>{{.Name}}</td>
                        <td>{{.Rate}}</td>
                        <td>{{.Passes}}</td>
                        <td>{{.Fails}}</td>
                    </tr>
                {{end}}
                </tbody>
            </table>
        </div>
        {{end}}

        {{if .Scenarios}}
        <div class="section">
            <h2 class="section-title">Scenarios</h2>
            <table class="stats-table">
                <thead><tr><th>Scenario</th><th>Executor</th><th>Start</th><th>Duration</th><th>Iterations</th><th>Peak VUs</th><th>State</th></tr></thead>
                <tbody>
                {{range .Scenarios}}
                    <tr>
                        <td>{{.Name}}</td>
                        <td>{{.Executor}}</td>
                        <td>{{.Start}}</td>
                        <td>{{.Duration}}</td>
                        <td>{{.Iterations}}</td>
                        <td>{{.PeakVUs}}</td>
                        <td>{{.State}}</td>
                    </tr>
                {{end}}
                </tbody>
            </table>
        </div>
        {{end}}

        {{if .Thresholds}}
        <div class="section">
            <h2 class="section-title">Thresholds</h2>
            <div class="threshold-list">
                {{range .Thresholds}}
                <div class="threshold-item">
                    <span class="threshold-icon {{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}✓{{else}}✗{{end}}</span>
                    <div class="threshold-info">
                        <div class="threshold-metric">{{.Metric}}</div>
                        <div class="threshold-expression">{{.Expression}}</div>
                    </div>
                    <div class="threshold-value">
                        Actual: {{.Actual}}
                        {{if .Message}}<br><span class="threshold-message">{{.Message}}</span>{{end}}
                    </div>
                </div>
                {{end}}
            </div>
        </div>
        {{end}}

        <div class="footer">
            <p>Generated by surge • {{.End}}</p>
        </div>
    </div>
</body>
</html>
`
