package engine

import (
	"fmt"
	"strings"

	"github.com/ioc-labs/surge/internal/threshold"
)

// SetupError reports that the target failed the pre-flight probe. No worker
// was started.
type SetupError struct {
	URL      string
	Status   int
	Expected int
	Err      error
}

func (e *SetupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("setup probe %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("setup probe %s returned status %d, expected %d", e.URL, e.Status, e.Expected)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// ThresholdError is returned together with a complete summary when at least
// one threshold failed.
type ThresholdError struct {
	Failed []threshold.Result
}

func (e *ThresholdError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, r := range e.Failed {
		parts = append(parts, r.Metric+" "+r.Expression)
	}
	return fmt.Sprintf("%d threshold(s) failed: %s", len(e.Failed), strings.Join(parts, ", "))
}
