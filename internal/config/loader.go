package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultHealthPath      = "/api/products"
	DefaultExpectStatus    = 200
	DefaultUserAgent       = "surge/1.0"
	DefaultThinkTimeMin    = "500ms"
	DefaultThinkTimeMax    = "2500ms"
	DefaultControlInterval = "1s"
	DefaultSuccessField    = "success"
	DefaultSecretEnv       = "SURGE_JWT_SECRET"
	DefaultIssuer          = "ioc-labs-ecommerce"
	DefaultTokenTTL        = "24h"
)

// DefaultLatencyBounds are the response time checks applied when none are configured.
var DefaultLatencyBounds = []string{"500ms", "1000ms"}

// LoadConfig loads a test configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
func LoadConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data, path)
}

// ParseConfig parses configuration data.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string) (*TestConfig, error) {
	var config TestConfig

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)
		}
	}

	return &config, nil
}

// Marshal encodes a config as YAML or JSON depending on the extension of path.
func Marshal(config *TestConfig, path string) ([]byte, error) {
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		return json.MarshalIndent(config, "", "  ")
	}
	return yaml.Marshal(config)
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	var seconds int
	if _, err := fmt.Sscanf(s, "%d", &seconds); err == nil && fmt.Sprint(seconds) == strings.TrimSpace(s) {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// ApplyDefaults applies default values to a TestConfig.
func ApplyDefaults(config *TestConfig) {
	s := &config.Settings
	if s.Timeout == 0 {
		s.Timeout = Duration(30 * time.Second)
	}
	if s.MaxConnectionsPerHost == 0 {
		s.MaxConnectionsPerHost = 100
	}
	if s.MaxIdleConnsPerHost == 0 {
		s.MaxIdleConnsPerHost = 100
	}
	if s.UserAgent == "" {
		s.UserAgent = DefaultUserAgent
	}
	if s.ThinkTime == nil {
		s.ThinkTime = &ThinkTimeConfig{Min: DefaultThinkTimeMin, Max: DefaultThinkTimeMax}
	}
	if s.ControlInterval == "" {
		s.ControlInterval = DefaultControlInterval
	}
	if s.Auth != nil {
		if s.Auth.SecretEnv == "" {
			s.Auth.SecretEnv = DefaultSecretEnv
		}
		if s.Auth.Issuer == "" {
			s.Auth.Issuer = DefaultIssuer
		}
		if s.Auth.TTL == "" {
			s.Auth.TTL = DefaultTokenTTL
		}
		if s.Auth.UserID == 0 {
			s.Auth.UserID = 1
		}
	}

	if config.Setup == nil {
		config.Setup = &SetupConfig{}
	}
	if config.Setup.HealthPath == "" {
		config.Setup.HealthPath = DefaultHealthPath
	}
	if config.Setup.ExpectStatus == 0 {
		config.Setup.ExpectStatus = DefaultExpectStatus
	}

	if config.Traffic == nil || len(config.Traffic.Choices) == 0 {
		config.Traffic = DefaultTraffic()
	}
	for i := range config.Traffic.Choices {
		c := &config.Traffic.Choices[i]
		if c.Kind == "" {
			c.Kind = ChoiceStatic
		}
		if c.Method == "" {
			c.Method = "GET"
		}
		if c.Name == "" {
			c.Name = c.Path
		}
	}

	if config.Checks == nil {
		config.Checks = &ChecksConfig{}
	}
	if config.Checks.ExpectStatus == 0 {
		config.Checks.ExpectStatus = DefaultExpectStatus
	}
	if config.Checks.LatencyBounds == nil {
		config.Checks.LatencyBounds = append([]string(nil), DefaultLatencyBounds...)
	}
	if config.Checks.JSON == nil {
		enabled := true
		config.Checks.JSON = &enabled
	}
	if config.Checks.SuccessField == "" {
		config.Checks.SuccessField = DefaultSuccessField
	}

	for _, sc := range config.Scenarios {
		if sc != nil && sc.Executor == "" {
			sc.Executor = ExecutorConstantVUs
		}
	}
}

// ScenarioNames returns the scenario names in a stable order.
func (c *TestConfig) ScenarioNames() []string {
	names := make([]string, 0, len(c.Scenarios))
	for name := range c.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ThresholdMetrics returns the metric names that carry thresholds, sorted.
func (c *TestConfig) ThresholdMetrics() []string {
	names := make([]string, 0, len(c.Thresholds))
	for name := range c.Thresholds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TotalDuration returns the sum of stage durations, or Duration for constant scenarios.
func (sc *ScenarioConfig) TotalDuration() (time.Duration, error) {
	if sc.Executor == ExecutorRampingVUs || (sc.Duration == "" && len(sc.Stages) > 0) {
		var total time.Duration
		for _, stage := range sc.Stages {
			d, err := ParseDurationString(stage.Duration)
			if err != nil {
				return 0, fmt.Errorf("invalid stage duration: %w", err)
			}
			total += d
		}
		return total, nil
	}
	return ParseDurationString(sc.Duration)
}

// EndOffset returns startTime + total duration.
func (sc *ScenarioConfig) EndOffset() (time.Duration, error) {
	start, err := ParseDurationString(sc.StartTime)
	if err != nil {
		return 0, fmt.Errorf("invalid startTime: %w", err)
	}
	total, err := sc.TotalDuration()
	if err != nil {
		return 0, err
	}
	return start + total, nil
}

// ThinkTimeRange resolves the think time bounds, scenario override first.
func ThinkTimeRange(scenario *ThinkTimeConfig, global *ThinkTimeConfig) (time.Duration, time.Duration, error) {
	tt := global
	if scenario != nil {
		tt = scenario
	}
	if tt == nil {
		return 0, 0, nil
	}
	minDur, err := ParseDurationString(tt.Min)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid thinkTime.min: %w", err)
	}
	maxDur, err := ParseDurationString(tt.Max)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid thinkTime.max: %w", err)
	}
	if maxDur < minDur {
		maxDur = minDur
	}
	return minDur, maxDur, nil
}
