package report

import (
	"fmt"
	"strings"
)

const indent = "  "

func renderText(v *view, c *ColorScheme) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(c.Title.Sprint("Load Test Summary") + "\n")
	b.WriteString(c.Title.Sprint("================") + "\n\n")

	line := func(label, value string) {
		fmt.Fprintf(&b, "%s%s %s\n", indent, c.Label.Sprint(label+":"), c.Value.Sprint(value))
	}
	section := func(name string) {
		b.WriteString(c.Section.Sprint(name+":") + "\n")
	}

	line("Name", v.Name)
	if v.BaseURL != "" {
		line("Target", v.BaseURL)
	}
	line("Run", v.RunID)
	line("Duration", elapsedLabel(v))
	b.WriteString("\n")

	if r := v.Requests; r != nil {
		section("Requests")
		line("Total", r.Total)
		line("Rate", r.Rate)
		line("Failed", r.Failed)
		line("Successful", r.Successful)
		b.WriteString("\n")
	}

	if l := v.Latency; l != nil {
		section("Response Time")
		line("Min", l.Min)
		line("Avg", l.Avg)
		line("Med", l.Med)
		line("P90", l.P90)
		line("P95", l.P95)
		line("P99", l.P99)
		line("Max", l.Max)
		b.WriteString("\n")
	}

	if u := v.VUs; u != nil {
		section("Virtual Users")
		line("Max", u.Max)
		line("Avg", u.Avg)
		b.WriteString("\n")
	}

	if len(v.Checks) > 0 {
		section("Checks")
		for _, ch := range v.Checks {
			fmt.Fprintf(&b, "%s%s %s %s\n", indent, c.icon(ch.Passed), ch.Name,
				c.Muted.Sprintf("%s (%s passed, %s failed)", ch.Rate, ch.Passes, ch.Fails))
		}
		b.WriteString("\n")
	}

	if len(v.Scenarios) > 0 {
		section("Scenarios")
		for _, s := range v.Scenarios {
			fmt.Fprintf(&b, "%s%-12s %-12s start %-6s ran %-8s iterations %-8s peak VUs %-5s %s\n",
				indent, s.Name, s.Executor, s.Start, s.Duration, s.Iterations, s.PeakVUs, c.Muted.Sprint(s.State))
		}
		b.WriteString("\n")
	}

	section("Thresholds")
	if len(v.Thresholds) == 0 {
		b.WriteString(indent + c.Muted.Sprint("none defined") + "\n")
	}
	for _, t := range v.Thresholds {
		fmt.Fprintf(&b, "%s%s %s %s", indent, c.icon(t.Passed), t.Metric, t.Expression)
		if !t.Passed && t.Message != "" {
			b.WriteString(" " + c.Fail.Sprint(t.Message))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if v.Passed {
		b.WriteString(c.Pass.Sprint("✓ PASSED") + "\n")
	} else {
		b.WriteString(c.Fail.Sprint("✗ FAILED") + "\n")
	}

	return b.String()
}
