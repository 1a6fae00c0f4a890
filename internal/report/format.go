package report

import (
	"fmt"
	"strconv"
	"time"
)

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		if secs == 0 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	if mins == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh %dm", hours, mins)
}

// formatNumber formats a count with thousands separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	str := strconv.FormatInt(n, 10)
	if n < 1000 {
		return str
	}

	result := make([]byte, 0, len(str)+len(str)/3)
	for i := range len(str) {
		if i > 0 && (len(str)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, str[i])
	}
	return string(result)
}

// formatLatency formats a latency given in milliseconds.
func formatLatency(ms float64) string {
	return fmt.Sprintf("%.2fms", ms)
}

// formatPercent formats a 0..1 fraction as a percentage.
func formatPercent(fraction float64) string {
	return fmt.Sprintf("%.2f%%", fraction*100)
}

// formatRate formats a per-second throughput.
func formatRate(perSec float64) string {
	return fmt.Sprintf("%.2f req/s", perSec)
}

// formatFloat formats a plain value with two decimals.
func formatFloat(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// formatActual formats a threshold's observed value without trailing zeros.
func formatActual(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
