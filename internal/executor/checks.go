package executor

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"github.com/ioc-labs/surge/internal/config"
)

// Fixed check names.
const (
	CheckValidJSON    = "has valid JSON"
	CheckSuccessField = "success field is true"
	CheckSchema       = "matches schema"
)

// CheckResult is the outcome of one check against one response.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// CheckSet is the fixed, ordered sequence of checks applied to every response:
// status, one latency bound per configured value, valid JSON, success field,
// and an optional JSON schema.
type CheckSet struct {
	ExpectStatus  int
	LatencyBounds []time.Duration
	JSON          bool
	SuccessField  string

	schema *jsonschema.Schema
}

// NewCheckSet builds the check sequence from config. A nil config yields the defaults.
func NewCheckSet(cfg *config.ChecksConfig) (*CheckSet, error) {
	cs := &CheckSet{
		ExpectStatus: config.DefaultExpectStatus,
		JSON:         true,
		SuccessField: config.DefaultSuccessField,
	}
	bounds := config.DefaultLatencyBounds

	if cfg != nil {
		if cfg.ExpectStatus != 0 {
			cs.ExpectStatus = cfg.ExpectStatus
		}
		if cfg.LatencyBounds != nil {
			bounds = cfg.LatencyBounds
		}
		if cfg.JSON != nil {
			cs.JSON = *cfg.JSON
		}
		if cfg.SuccessField != "" {
			cs.SuccessField = cfg.SuccessField
		}
		if cfg.Schema != "" {
			compiler := jsonschema.NewCompiler()
			if err := compiler.AddResource("schema.json", strings.NewReader(cfg.Schema)); err != nil {
				return nil, fmt.Errorf("invalid schema: %w", err)
			}
			schema, err := compiler.Compile("schema.json")
			if err != nil {
				return nil, fmt.Errorf("invalid schema: %w", err)
			}
			cs.schema = schema
		}
	}

	for _, b := range bounds {
		d, err := config.ParseDurationString(b)
		if err != nil {
			return nil, fmt.Errorf("invalid latency bound %q: %w", b, err)
		}
		cs.LatencyBounds = append(cs.LatencyBounds, d)
	}
	return cs, nil
}

// Names returns the check names in evaluation order.
func (cs *CheckSet) Names() []string {
	names := []string{fmt.Sprintf("status is %d", cs.ExpectStatus)}
	for _, b := range cs.LatencyBounds {
		names = append(names, latencyCheckName(b))
	}
	if cs.JSON {
		names = append(names, CheckValidJSON)
		if cs.SuccessField != "" {
			names = append(names, CheckSuccessField)
		}
	}
	if cs.schema != nil {
		names = append(names, CheckSchema)
	}
	return names
}

// Run evaluates every check. A transport error fails all of them.
func (cs *CheckSet) Run(status int, duration time.Duration, body []byte, transportErr error) []CheckResult {
	names := cs.Names()
	results := make([]CheckResult, 0, len(names))
	if transportErr != nil {
		for _, n := range names {
			results = append(results, CheckResult{Name: n})
		}
		return results
	}

	results = append(results, CheckResult{Name: names[0], Passed: status == cs.ExpectStatus})
	for _, b := range cs.LatencyBounds {
		results = append(results, CheckResult{Name: latencyCheckName(b), Passed: duration < b})
	}

	validJSON := len(body) > 0 && gjson.ValidBytes(body)
	if cs.JSON {
		results = append(results, CheckResult{Name: CheckValidJSON, Passed: validJSON})
		if cs.SuccessField != "" {
			ok := validJSON && gjson.GetBytes(body, cs.SuccessField).Type == gjson.True
			results = append(results, CheckResult{Name: CheckSuccessField, Passed: ok})
		}
	}
	if cs.schema != nil {
		results = append(results, CheckResult{Name: CheckSchema, Passed: validJSON && cs.matchesSchema(body)})
	}
	return results
}

func (cs *CheckSet) matchesSchema(body []byte) bool {
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return false
	}
	return cs.schema.Validate(v) == nil
}

// latencyCheckName renders "response time < 500ms".
func latencyCheckName(d time.Duration) string {
	if d%time.Millisecond == 0 {
		return fmt.Sprintf("response time < %dms", d.Milliseconds())
	}
	return "response time < " + d.String()
}
