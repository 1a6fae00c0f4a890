package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ioc-labs/surge/internal/threshold"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate validates the entire test configuration.
//
// Returns nil if valid, or a *ValidationErrors containing all validation errors.
func (c *TestConfig) Validate() error {
	errs := &ValidationErrors{}

	if len(c.Scenarios) == 0 {
		errs.Add("scenarios", "at least one scenario is required")
	}

	for _, name := range c.ScenarioNames() {
		sc := c.Scenarios[name]
		if sc == nil {
			errs.Add("scenarios."+name, "scenario is empty")
			continue
		}
		validateScenario(name, sc, errs)
	}

	if c.Traffic != nil {
		validateTraffic(c.Traffic, errs)
	}
	if c.Checks != nil {
		validateChecks(c.Checks, errs)
	}
	if c.Setup != nil {
		validateSetup(c.Setup, errs)
	}

	for _, metric := range c.ThresholdMetrics() {
		for i, expr := range c.Thresholds[metric] {
			if _, err := threshold.ParseExpression(expr); err != nil {
				errs.Add(fmt.Sprintf("thresholds.%s[%d]", metric, i), err.Error())
			}
		}
	}

	validateSettings(&c.Settings, errs)

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateScenario(name string, sc *ScenarioConfig, errs *ValidationErrors) {
	prefix := fmt.Sprintf("scenarios.%s", name)

	switch sc.Executor {
	case "":
		errs.Add(prefix+".executor", "executor type is required")
	case ExecutorConstantVUs:
		if sc.VUs < 0 {
			errs.Add(prefix+".vus", "vus cannot be negative")
		}
		if sc.Duration == "" {
			errs.Add(prefix+".duration", "duration is required for constant-vus executor")
		} else if d, err := ParseDurationString(sc.Duration); err != nil {
			errs.Add(prefix+".duration", fmt.Sprintf("invalid duration: %v", err))
		} else if d < 0 {
			errs.Add(prefix+".duration", "duration cannot be negative")
		}
	case ExecutorRampingVUs:
		if len(sc.Stages) == 0 {
			errs.Add(prefix+".stages", "at least one stage is required for ramping-vus executor")
		}
		if sc.StartVUs < 0 {
			errs.Add(prefix+".startVUs", "startVUs cannot be negative")
		}
	default:
		errs.Add(prefix+".executor", fmt.Sprintf("unknown executor type: %s", sc.Executor))
	}

	for i, stage := range sc.Stages {
		validateStage(fmt.Sprintf("%s.stages[%d]", prefix, i), &stage, errs)
	}

	if sc.MaxVUs < 0 {
		errs.Add(prefix+".maxVUs", "maxVUs cannot be negative")
	}
	validateOptionalDuration(prefix+".startTime", sc.StartTime, errs)
	validateOptionalDuration(prefix+".gracefulStop", sc.GracefulStop, errs)
	if sc.ThinkTime != nil {
		validateThinkTime(prefix+".thinkTime", sc.ThinkTime, errs)
	}
}

func validateStage(prefix string, stage *StageConfig, errs *ValidationErrors) {
	if stage.Duration == "" {
		errs.Add(prefix+".duration", "duration is required")
	} else if d, err := ParseDurationString(stage.Duration); err != nil {
		errs.Add(prefix+".duration", fmt.Sprintf("invalid duration: %v", err))
	} else if d < 0 {
		errs.Add(prefix+".duration", "duration cannot be negative")
	}

	if stage.Target < 0 {
		errs.Add(prefix+".target", "target cannot be negative")
	}
}

func validateThinkTime(prefix string, tt *ThinkTimeConfig, errs *ValidationErrors) {
	minDur, minErr := ParseDurationString(tt.Min)
	if minErr != nil {
		errs.Add(prefix+".min", fmt.Sprintf("invalid min: %v", minErr))
	}
	maxDur, maxErr := ParseDurationString(tt.Max)
	if maxErr != nil {
		errs.Add(prefix+".max", fmt.Sprintf("invalid max: %v", maxErr))
	}
	if minErr == nil && maxErr == nil {
		if minDur < 0 || maxDur < 0 {
			errs.Add(prefix, "think time cannot be negative")
		} else if minDur > maxDur {
			errs.Add(prefix, "min must be less than or equal to max")
		}
	}
}

func validateTraffic(t *TrafficConfig, errs *ValidationErrors) {
	var total float64
	for i, c := range t.Choices {
		prefix := fmt.Sprintf("traffic.choices[%d]", i)
		if c.Weight < 0 {
			errs.Add(prefix+".weight", "weight cannot be negative")
		}
		total += c.Weight

		if c.Path == "" {
			errs.Add(prefix+".path", "path is required")
		}

		switch c.Kind {
		case "", ChoiceStatic:
		case ChoiceID:
			if !strings.Contains(c.Path, "{id}") {
				errs.Add(prefix+".path", "id choice path must contain {id}")
			}
			if c.IDMax < c.IDMin {
				errs.Add(prefix+".idMax", "idMax must be greater than or equal to idMin")
			}
		case ChoiceTerm:
			if !strings.Contains(c.Path, "{term}") {
				errs.Add(prefix+".path", "term choice path must contain {term}")
			}
			if len(c.Terms) == 0 {
				errs.Add(prefix+".terms", "at least one term is required")
			}
		default:
			errs.Add(prefix+".kind", fmt.Sprintf("unknown choice kind: %s", c.Kind))
		}
	}
	if len(t.Choices) > 0 && total <= 0 {
		errs.Add("traffic.choices", "total weight must be greater than 0")
	}
}

func validateChecks(c *ChecksConfig, errs *ValidationErrors) {
	if c.ExpectStatus < 0 || c.ExpectStatus > 599 {
		errs.Add("checks.expectStatus", fmt.Sprintf("invalid status code: %d", c.ExpectStatus))
	}
	for i, bound := range c.LatencyBounds {
		d, err := ParseDurationString(bound)
		if err != nil {
			errs.Add(fmt.Sprintf("checks.latencyBounds[%d]", i), fmt.Sprintf("invalid duration: %v", err))
		} else if d <= 0 {
			errs.Add(fmt.Sprintf("checks.latencyBounds[%d]", i), "latency bound must be greater than 0")
		}
	}
}

func validateSetup(s *SetupConfig, errs *ValidationErrors) {
	if s.HealthPath != "" && !strings.HasPrefix(s.HealthPath, "/") {
		errs.Add("setup.healthPath", "must start with /")
	}
	validateOptionalDuration("setup.timeout", s.Timeout, errs)
}

func validateSettings(s *GlobalSettings, errs *ValidationErrors) {
	if s.BaseURL != "" {
		u, err := url.Parse(s.BaseURL)
		if err != nil {
			errs.Add("settings.baseUrl", fmt.Sprintf("invalid URL: %v", err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs.Add("settings.baseUrl", "scheme must be http or https")
		}
	}

	if s.MaxConnectionsPerHost < 0 {
		errs.Add("settings.maxConnectionsPerHost", "cannot be negative")
	}
	if s.MaxIdleConnsPerHost < 0 {
		errs.Add("settings.maxIdleConnsPerHost", "cannot be negative")
	}
	if s.MaxRPS < 0 {
		errs.Add("settings.maxRps", "cannot be negative")
	}
	if s.ThinkTime != nil {
		validateThinkTime("settings.thinkTime", s.ThinkTime, errs)
	}
	if s.ControlInterval != "" {
		if d, err := ParseDurationString(s.ControlInterval); err != nil {
			errs.Add("settings.controlInterval", fmt.Sprintf("invalid duration: %v", err))
		} else if d <= 0 {
			errs.Add("settings.controlInterval", "must be greater than 0")
		}
	}
	if s.Auth != nil {
		validateOptionalDuration("settings.auth.ttl", s.Auth.TTL, errs)
	}
}

func validateOptionalDuration(field, value string, errs *ValidationErrors) {
	if value == "" {
		return
	}
	d, err := ParseDurationString(value)
	if err != nil {
		errs.Add(field, fmt.Sprintf("invalid duration: %v", err))
		return
	}
	if d < 0 {
		errs.Add(field, "cannot be negative")
	}
}
