package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ioc-labs/surge/internal/config"
	"github.com/ioc-labs/surge/internal/engine"
	"github.com/ioc-labs/surge/internal/history"
	"github.com/ioc-labs/surge/internal/logging"
	"github.com/ioc-labs/surge/internal/publish"
	"github.com/ioc-labs/surge/internal/report"
	"github.com/ioc-labs/surge/internal/telemetry"
)

type runOptions struct {
	configFile string
	url        string

	executor string
	vus      int
	duration string
	stages   string
	maxRPS   float64
	seed     uint64

	outJSON string
	outHTML string
	noColor bool

	metricsAddr string

	upload     string
	uploadGzip bool
	s3Region   string
	s3Endpoint string
	historyDSN string
	logLevel   string
	logFormat  string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test",
		Long: `Run a load test from a configuration file or from flags.

Config file mode:
  surge run --config surge.yaml

Quick mode (single scenario against the default traffic mix):
  surge run --url http://localhost:8080 --vus 20 --duration 1m
  surge run --url http://localhost:8080 --executor ramping-vus --stages "30s:10,1m:50,30s:0"

Exit codes: 0 all thresholds passed, 1 threshold failure or run error,
2 the target failed the setup probe.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoadTest(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configFile, "config", "c", "", "Path to a YAML or JSON test configuration")
	f.StringVarP(&opts.url, "url", "u", "", "Base URL of the target (overrides settings.baseUrl)")
	f.StringVar(&opts.executor, "executor", "", "Quick mode executor: constant-vus or ramping-vus")
	f.IntVar(&opts.vus, "vus", 0, "Quick mode virtual users for constant-vus")
	f.StringVar(&opts.duration, "duration", "", "Quick mode duration for constant-vus")
	f.StringVar(&opts.stages, "stages", "", `Quick mode stages for ramping-vus, e.g. "30s:10,1m:50,30s:0"`)
	f.Float64Var(&opts.maxRPS, "max-rps", 0, "Cap on requests per second across all scenarios (0 = unlimited)")
	f.Uint64Var(&opts.seed, "seed", 0, "Seed for request selection and think time (0 = random)")
	f.StringVar(&opts.outJSON, "out-json", "summary.json", "Path for the JSON summary (empty to skip)")
	f.StringVar(&opts.outHTML, "out-html", "summary.html", "Path for the HTML report (empty to skip)")
	f.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve live Prometheus metrics on this address, e.g. :9090")
	f.StringVar(&opts.upload, "upload", "", "Upload artifacts to s3://bucket/prefix")
	f.BoolVar(&opts.uploadGzip, "upload-gzip", false, "Gzip artifacts before uploading")
	f.StringVar(&opts.s3Region, "s3-region", "", "Region for --upload")
	f.StringVar(&opts.s3Endpoint, "s3-endpoint", "", "Endpoint for S3-compatible storage")
	f.StringVar(&opts.historyDSN, "history-dsn", "", "PostgreSQL DSN to record the run in")
	f.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	f.StringVar(&opts.logFormat, "log-format", logging.FormatConsole, "Log format: console or json")

	return cmd
}

func runLoadTest(cmd *cobra.Command, opts *runOptions) error {
	cfg, err := loadRunConfig(opts)
	if err != nil {
		return &ExitError{Code: ExitFailure, Err: err}
	}

	logger, err := logging.New(opts.logLevel, opts.logFormat)
	if err != nil {
		return &ExitError{Code: ExitFailure, Err: err}
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engineOpts := []engine.Option{engine.WithLogger(logger), engine.WithSeed(opts.seed)}
	if opts.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		srv, err := telemetry.Start(opts.metricsAddr, reg, logger)
		if err != nil {
			return &ExitError{Code: ExitFailure, Err: err}
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		engineOpts = append(engineOpts, engine.WithRegistry(reg))
	}

	eng, err := engine.New(cfg, engineOpts...)
	if err != nil {
		return &ExitError{Code: ExitFailure, Err: err}
	}

	summary, runErr := eng.Run(ctx)
	if summary == nil {
		if engine.IsSetupError(runErr) {
			return &ExitError{Code: ExitSetupFailure, Err: runErr}
		}
		return &ExitError{Code: ExitFailure, Err: runErr}
	}

	color := !opts.noColor && cmd.OutOrStdout() == os.Stdout && report.IsTerminal(os.Stdout)
	artifacts := report.Render(summary, report.Options{Color: color})
	for _, o := range artifacts.Omitted {
		logger.Warn("report section omitted", zap.String("section", o.Section), zap.Error(o.Err))
	}
	fmt.Fprint(cmd.OutOrStdout(), artifacts.Text)

	if err := artifacts.Write(opts.outJSON, opts.outHTML); err != nil {
		logger.Error("failed to write artifacts", zap.Error(err))
	}
	// uploads and history still run after an interrupt
	postCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()
	if opts.upload != "" {
		if err := uploadArtifacts(postCtx, opts, summary, artifacts, logger); err != nil {
			logger.Error("artifact upload failed", zap.Error(err))
		}
	}
	if opts.historyDSN != "" {
		if err := recordHistory(postCtx, opts.historyDSN, summary); err != nil {
			logger.Error("failed to record run history", zap.Error(err))
		}
	}

	if runErr != nil {
		var te *engine.ThresholdError
		if errors.As(runErr, &te) {
			return &ExitError{Code: ExitFailure}
		}
		return &ExitError{Code: ExitFailure, Err: runErr}
	}
	return nil
}

func loadRunConfig(opts *runOptions) (*config.TestConfig, error) {
	var cfg *config.TestConfig
	var err error

	switch {
	case opts.configFile != "":
		cfg, err = config.LoadConfig(opts.configFile)
		if err != nil {
			return nil, err
		}
	case opts.url != "":
		cfg, err = buildConfigFromCLI(opts.url, opts.executor, opts.duration, opts.vus, opts.stages)
		if err != nil {
			return nil, fmt.Errorf("invalid flags: %w", err)
		}
	default:
		return nil, fmt.Errorf("either --config or --url is required")
	}

	if opts.url != "" {
		cfg.Settings.BaseURL = opts.url
	}
	if opts.maxRPS > 0 {
		cfg.Settings.MaxRPS = opts.maxRPS
	}
	return cfg, nil
}

// buildConfigFromCLI builds a single-scenario config for quick mode.
func buildConfigFromCLI(url, executorType, duration string, vus int, stages string) (*config.TestConfig, error) {
	if executorType == "" {
		executorType = config.ExecutorConstantVUs
		if stages != "" {
			executorType = config.ExecutorRampingVUs
		}
	}

	scenario := &config.ScenarioConfig{
		Executor: executorType,
		Tags:     map[string]string{"test_type": "cli"},
	}

	switch executorType {
	case config.ExecutorConstantVUs:
		if vus == 0 {
			vus = 10
		}
		if duration == "" {
			duration = "30s"
		}
		scenario.VUs = vus
		scenario.Duration = duration
	case config.ExecutorRampingVUs:
		if stages == "" {
			return nil, fmt.Errorf("--stages is required for %s", config.ExecutorRampingVUs)
		}
		parsed, err := parseStages(stages)
		if err != nil {
			return nil, fmt.Errorf("invalid stages format: %w", err)
		}
		scenario.Stages = parsed
		scenario.StartVUs = vus
	default:
		return nil, fmt.Errorf("unknown executor %q", executorType)
	}

	return &config.TestConfig{
		Name:        "CLI Test",
		Description: fmt.Sprintf("Test generated from CLI flags for %s", url),
		Settings:    config.GlobalSettings{BaseURL: url},
		Scenarios:   map[string]*config.ScenarioConfig{"cli": scenario},
		Thresholds: map[string][]string{
			"http_req_failed": {"rate<0.05"},
		},
	}, nil
}

// parseStages parses stages from CLI format "30s:10,2m:10,30s:0".
func parseStages(stagesStr string) ([]config.StageConfig, error) {
	var stages []config.StageConfig

	for i, part := range strings.Split(stagesStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		colonIdx := strings.LastIndex(part, ":")
		if colonIdx == -1 {
			return nil, fmt.Errorf("stage %d: expected 'duration:target' format, got '%s'", i+1, part)
		}
		durationStr := part[:colonIdx]
		targetStr := part[colonIdx+1:]

		if _, err := config.ParseDurationString(durationStr); err != nil {
			return nil, fmt.Errorf("stage %d: invalid duration '%s': %w", i+1, durationStr, err)
		}
		target, err := strconv.Atoi(targetStr)
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid target '%s': %w", i+1, targetStr, err)
		}

		stages = append(stages, config.StageConfig{
			Duration: durationStr,
			Target:   target,
			Name:     fmt.Sprintf("stage-%d", i+1),
		})
	}

	if len(stages) == 0 {
		return nil, fmt.Errorf("at least one stage is required")
	}
	return stages, nil
}

func uploadArtifacts(ctx context.Context, opts *runOptions, summary *engine.RunSummary, a *report.Artifacts, logger *zap.Logger) error {
	target, err := publish.ParseTarget(opts.upload)
	if err != nil {
		return err
	}
	client, err := publish.NewClient(ctx, publish.ClientOptions{Region: opts.s3Region, Endpoint: opts.s3Endpoint})
	if err != nil {
		return err
	}

	files := []publish.Artifact{
		{Name: "summary.txt", ContentType: "text/plain; charset=utf-8", Data: []byte(report.Render(summary, report.Options{}).Text)},
	}
	if a.JSON != nil {
		files = append(files, publish.Artifact{Name: "summary.json", ContentType: "application/json", Data: a.JSON})
	}
	if a.HTML != nil {
		files = append(files, publish.Artifact{Name: "summary.html", ContentType: "text/html; charset=utf-8", Data: a.HTML})
	}

	_, err = publish.NewUploader(client, target, opts.uploadGzip, logger).Upload(ctx, summary.RunID, files)
	return err
}

func recordHistory(ctx context.Context, dsn string, summary *engine.RunSummary) error {
	store, err := history.Open(dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	return store.Save(ctx, summary)
}
