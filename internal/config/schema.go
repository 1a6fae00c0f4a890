// Package config provides configuration parsing and validation for surge runs.
package config

import (
	"time"
)

// Executor kinds understood by the scheduler.
const (
	ExecutorConstantVUs = "constant-vus"
	ExecutorRampingVUs  = "ramping-vus"
)

// Request choice kinds understood by the traffic selector.
const (
	ChoiceStatic = "static"
	ChoiceID     = "id"
	ChoiceTerm   = "term"
)

// TestConfig is the root configuration for a run.
//
// Example YAML:
//
//	name: "Stage 3 auto-scaling"
//	settings:
//	  baseUrl: "http://localhost:8080"
//	  thinkTime: {min: 500ms, max: 2500ms}
//	setup:
//	  healthPath: /api/products
//	scenarios:
//	  baseline:
//	    executor: constant-vus
//	    vus: 10
//	    duration: 2m
//	    tags: {test_type: baseline}
//	thresholds:
//	  http_req_duration: ["p(95)<500", "p(99)<1000"]
//	  http_req_failed: ["rate<0.05"]
type TestConfig struct {
	// Name of the run (for reporting)
	Name string `json:"name" yaml:"name"`

	// Description of the run (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Settings contains global settings for all scenarios
	Settings GlobalSettings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Setup configures the reachability probe issued before any scenario starts
	Setup *SetupConfig `json:"setup,omitempty" yaml:"setup,omitempty"`

	// Traffic is the weighted distribution of request shapes
	Traffic *TrafficConfig `json:"traffic,omitempty" yaml:"traffic,omitempty"`

	// Checks configures the per-request assertions
	Checks *ChecksConfig `json:"checks,omitempty" yaml:"checks,omitempty"`

	// Scenarios defines the load profiles to run.
	// Each scenario runs independently, starting at its own offset.
	Scenarios map[string]*ScenarioConfig `json:"scenarios" yaml:"scenarios"`

	// Thresholds maps a metric name to its pass/fail expressions
	Thresholds map[string][]string `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// GlobalSettings contains global HTTP and execution settings.
type GlobalSettings struct {
	// BaseURL is prepended to every request path
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`

	// Timeout is the HTTP request timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// MaxConnectionsPerHost limits connections per host
	MaxConnectionsPerHost int `json:"maxConnectionsPerHost,omitempty" yaml:"maxConnectionsPerHost,omitempty"`

	// MaxIdleConnsPerHost limits idle connections per host
	MaxIdleConnsPerHost int `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	// UserAgent is the User-Agent header sent with every request
	UserAgent string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`

	// Headers are default headers applied to all requests
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// ThinkTime is the default pause between a worker's requests
	ThinkTime *ThinkTimeConfig `json:"thinkTime,omitempty" yaml:"thinkTime,omitempty"`

	// ControlInterval is how often scenarios reconcile their worker count
	ControlInterval string `json:"controlInterval,omitempty" yaml:"controlInterval,omitempty"`

	// MaxRPS caps the request rate across all scenarios (0 = unlimited)
	MaxRPS float64 `json:"maxRps,omitempty" yaml:"maxRps,omitempty"`

	// Auth enables bearer tokens on every request
	Auth *AuthConfig `json:"auth,omitempty" yaml:"auth,omitempty"`
}

// ThinkTimeConfig bounds the uniformly random pause between requests.
type ThinkTimeConfig struct {
	Min string `json:"min" yaml:"min"`
	Max string `json:"max" yaml:"max"`
}

// AuthConfig describes how bearer tokens are minted.
//
// The signing secret is read from SecretEnv (default SURGE_JWT_SECRET)
// unless Secret is set inline.
type AuthConfig struct {
	Secret    string `json:"secret,omitempty" yaml:"secret,omitempty"`
	SecretEnv string `json:"secretEnv,omitempty" yaml:"secretEnv,omitempty"`
	UserID    int    `json:"userId,omitempty" yaml:"userId,omitempty"`
	Issuer    string `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	TTL       string `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// SetupConfig configures the pre-flight reachability probe.
type SetupConfig struct {
	// Skip disables the probe entirely
	Skip bool `json:"skip,omitempty" yaml:"skip,omitempty"`

	// HealthPath is requested relative to the base URL
	HealthPath string `json:"healthPath,omitempty" yaml:"healthPath,omitempty"`

	// ExpectStatus is the status code the probe must return
	ExpectStatus int `json:"expectStatus,omitempty" yaml:"expectStatus,omitempty"`

	// Timeout bounds the probe request
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// TrafficConfig is the weighted request-shape distribution.
type TrafficConfig struct {
	Choices []ChoiceConfig `json:"choices" yaml:"choices"`
}

// ChoiceConfig is one weighted request shape.
//
// Kind selects how the path is produced:
//   - static: Path is used as-is
//   - id:     "{id}" in Path is replaced by a random integer in [IDMin, IDMax]
//   - term:   "{term}" in Path is replaced by a random entry of Terms
type ChoiceConfig struct {
	Name   string            `json:"name,omitempty" yaml:"name,omitempty"`
	Kind   string            `json:"kind,omitempty" yaml:"kind,omitempty"`
	Weight float64           `json:"weight" yaml:"weight"`
	Method string            `json:"method,omitempty" yaml:"method,omitempty"`
	Path   string            `json:"path" yaml:"path"`
	IDMin  int               `json:"idMin,omitempty" yaml:"idMin,omitempty"`
	IDMax  int               `json:"idMax,omitempty" yaml:"idMax,omitempty"`
	Terms  []string          `json:"terms,omitempty" yaml:"terms,omitempty"`
	Tags   map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// ChecksConfig configures the fixed per-request check sequence.
type ChecksConfig struct {
	// ExpectStatus is the status code that passes the status check
	ExpectStatus int `json:"expectStatus,omitempty" yaml:"expectStatus,omitempty"`

	// LatencyBounds produce one "response time < X" check each
	LatencyBounds []string `json:"latencyBounds,omitempty" yaml:"latencyBounds,omitempty"`

	// JSON enables the body checks (valid JSON, success field)
	JSON *bool `json:"json,omitempty" yaml:"json,omitempty"`

	// SuccessField is the gjson path that must be boolean true
	SuccessField string `json:"successField,omitempty" yaml:"successField,omitempty"`

	// Schema is an optional JSON schema the body must satisfy
	Schema string `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// ScenarioConfig defines a single load profile.
type ScenarioConfig struct {
	// Executor specifies the load generation strategy: "constant-vus" or "ramping-vus"
	Executor string `json:"executor" yaml:"executor"`

	// VUs is the number of virtual users (constant-vus)
	VUs int `json:"vus,omitempty" yaml:"vus,omitempty"`

	// Duration is how long to run (constant-vus)
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`

	// StartVUs is the level the first ramping stage starts from
	StartVUs int `json:"startVUs,omitempty" yaml:"startVUs,omitempty"`

	// Stages defines ramping stages (ramping-vus)
	Stages []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`

	// MaxVUs caps the concurrency of this scenario (0 = no cap)
	MaxVUs int `json:"maxVUs,omitempty" yaml:"maxVUs,omitempty"`

	// StartTime is when this scenario starts, relative to run start
	StartTime string `json:"startTime,omitempty" yaml:"startTime,omitempty"`

	// GracefulStop is how long to wait for in-flight requests at the end
	GracefulStop string `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// ThinkTime overrides the global think time for this scenario
	ThinkTime *ThinkTimeConfig `json:"thinkTime,omitempty" yaml:"thinkTime,omitempty"`

	// Tags are attached to every request this scenario issues
	Tags map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// StageConfig defines a single stage in a ramping scenario.
type StageConfig struct {
	// Duration of this stage (e.g., "30s", "2m")
	Duration string `json:"duration" yaml:"duration"`

	// Target VU count reached at the end of the stage
	Target int `json:"target" yaml:"target"`

	// Name is an optional name for this stage (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "" || s == "null" {
		*d = 0
		return nil
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
