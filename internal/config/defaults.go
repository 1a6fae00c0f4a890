package config

// DefaultTraffic reproduces the product-catalogue mix the auto-scaling runs
// were tuned against: list, detail by id, search, and a list fallback.
func DefaultTraffic() *TrafficConfig {
	return &TrafficConfig{
		Choices: []ChoiceConfig{
			{Name: "list_products", Kind: ChoiceStatic, Weight: 40, Method: "GET", Path: "/api/products"},
			{Name: "get_product", Kind: ChoiceID, Weight: 30, Method: "GET", Path: "/api/products/{id}", IDMin: 1, IDMax: 50},
			{Name: "search_products", Kind: ChoiceTerm, Weight: 15, Method: "GET", Path: "/api/products/search?q={term}",
				Terms: []string{"electronics", "clothing", "home"}},
			{Name: "list_products_fallback", Kind: ChoiceStatic, Weight: 15, Method: "GET", Path: "/api/products"},
		},
	}
}

// Default returns the four-scenario auto-scaling verification run:
// a baseline, a gradual ramp, a spike and a stress ramp, staggered so
// they do not overlap.
func Default(baseURL string) *TestConfig {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	cfg := &TestConfig{
		Name:        "auto-scaling verification",
		Description: "Baseline, ramp-up, spike and stress scenarios against the product API",
		Settings: GlobalSettings{
			BaseURL:   baseURL,
			UserAgent: "surge-load-test",
			Headers:   map[string]string{"Accept": "application/json"},
			ThinkTime: &ThinkTimeConfig{Min: DefaultThinkTimeMin, Max: DefaultThinkTimeMax},
		},
		Setup:   &SetupConfig{HealthPath: DefaultHealthPath, ExpectStatus: DefaultExpectStatus},
		Traffic: DefaultTraffic(),
		Scenarios: map[string]*ScenarioConfig{
			"baseline": {
				Executor: ExecutorConstantVUs,
				VUs:      10,
				Duration: "2m",
				Tags:     map[string]string{"test_type": "baseline"},
			},
			"ramp_up": {
				Executor:  ExecutorRampingVUs,
				StartVUs:  10,
				StartTime: "2m",
				Stages: []StageConfig{
					{Duration: "2m", Target: 50},
					{Duration: "3m", Target: 100},
					{Duration: "2m", Target: 200},
					{Duration: "3m", Target: 200},
					{Duration: "2m", Target: 0},
				},
				Tags: map[string]string{"test_type": "ramp_up"},
			},
			"spike": {
				Executor:  ExecutorRampingVUs,
				StartTime: "14m",
				Stages: []StageConfig{
					{Duration: "10s", Target: 500},
					{Duration: "1m", Target: 500},
					{Duration: "10s", Target: 0},
				},
				Tags: map[string]string{"test_type": "spike"},
			},
			"stress": {
				Executor:  ExecutorRampingVUs,
				StartTime: "16m",
				Stages: []StageConfig{
					{Duration: "2m", Target: 100},
					{Duration: "2m", Target: 300},
					{Duration: "2m", Target: 500},
					{Duration: "2m", Target: 700},
					{Duration: "2m", Target: 1000},
					{Duration: "3m", Target: 1000},
					{Duration: "2m", Target: 0},
				},
				Tags: map[string]string{"test_type": "stress"},
			},
		},
		Thresholds: map[string][]string{
			"http_req_duration": {"p(95)<500", "p(99)<1000"},
			"http_req_failed":   {"rate<0.05"},
			"errors":            {"rate<0.05"},
			"http_reqs":         {"rate>100"},
		},
	}
	return cfg
}
