// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/onellm/proxycheck/internal/chatcheck"
	"github.com/onellm/proxycheck/internal/config"
	"github.com/onellm/proxycheck/internal/history"
	"github.com/onellm/proxycheck/internal/testproxy"
	"github.com/onellm/proxycheck/internal/version"
)

type (
	// cmd corresponds to the top-level `proxycheck` command.
	cmd struct {
		// Version is the sub-command to show the version.
		Version struct{} `cmd:"" help:"Show version."`
		// Run is the sub-command parsed by the `cmdRun` struct.
		Run cmdRun `cmd:"" help:"Run a suite of chat completion checks against a proxy."`
		// Models lists the models served by a proxy.
		Models cmdModels `cmd:"" help:"List the model IDs served by a proxy."`
		// Serve runs the fake proxy.
		Serve cmdServe `cmd:"" help:"Serve recorded chat completions as a fake proxy."`
		// Watch runs a suite periodically.
		Watch cmdWatch `cmd:"" help:"Run a suite on a schedule, serving /metrics and /health."`
		// History prints stored results.
		History cmdHistory `cmd:"" help:"Show results of past runs."`
		// Healthcheck is the sub-command to check if a watcher is healthy.
		Healthcheck cmdHealthcheck `cmd:"" help:"Docker HEALTHCHECK command."`
	}

	// TargetFlags select the proxy under test.
	TargetFlags struct {
		Profile string        `help:"Target profile: proxy or mocked. Defaults to the suite's profile, then proxy."`
		BaseURL string        `name:"base-url" help:"OpenAI base URL of the proxy, overriding the profile's environment."`
		APIKey  string        `name:"api-key" help:"Bearer key of the proxy, overriding the profile's environment."`
		Timeout time.Duration `help:"Timeout of each scenario, streams included." default:"60s"`
		Debug   bool          `help:"Enable debug logging emitted to stderr."`
	}

	// SuiteFlags select what to run and how.
	SuiteFlags struct {
		Suite       string `help:"Name of the suite to run." default:"proxy"`
		SuitesFile  string `name:"suites-file" help:"YAML file with additional suites." type:"existingfile"`
		Parallelism int    `help:"Number of scenarios in flight. 1 runs them in order." default:"1"`
		TargetFlags `embed:""`
	}

	// cmdRun corresponds to `proxycheck run` command.
	cmdRun struct {
		SuiteFlags  `embed:""`
		Format      string `help:"Report format." enum:"text,json" default:"text"`
		MetricsFile string `name:"metrics-file" help:"Write metrics in the Prometheus textfile format to this path."`
		History     string `help:"SQLite database to append results to."`
		Advisory    bool   `help:"Exit 0 even when scenarios fail."`
	}
	// cmdModels corresponds to `proxycheck models` command.
	cmdModels struct {
		TargetFlags `embed:""`
		Method      string `help:"HTTP method of the /models request. The proxy worker only routes POST." enum:"GET,POST" default:"POST"`
	}
	// cmdServe corresponds to `proxycheck serve` command.
	cmdServe struct {
		Port           int    `help:"Port to listen on." default:"8787"`
		APIKey         string `name:"api-key" help:"Bearer key clients must send. Empty disables auth." env:"ONELLM_API_KEY" default:"${defaultServeKey}"`
		Upstream       string `help:"Base URL to forward and record unmatched requests to, e.g. https://api.openai.com/v1."`
		UpstreamAPIKey string `name:"upstream-api-key" help:"Bearer key for the upstream." env:"PROXYCHECK_UPSTREAM_API_KEY"`
		CassettesDir   string `name:"cassettes-dir" help:"Directory recordings are loaded from and written to." type:"path" default:"cassettes"`
	}
	// cmdWatch corresponds to `proxycheck watch` command.
	cmdWatch struct {
		SuiteFlags `embed:""`
		Schedule   string `help:"Five-field cron spec or descriptor such as '@every 5m'." required:""`
		AdminPort  int    `help:"HTTP port for the admin server (serves /metrics and /health endpoints)." default:"1064"`
		PprofPort  int    `help:"HTTP port serving /debug/pprof/. 0 disables it."`
		History    string `help:"SQLite database to append results to." default:"${defaultHistory}"`
	}
	// cmdHistory corresponds to `proxycheck history` command.
	cmdHistory struct {
		History string `help:"SQLite database to read." default:"${defaultHistory}"`
		Limit   int    `help:"Number of rows to show." default:"20"`
		Format  string `help:"Output format." enum:"text,json" default:"text"`
	}
	// cmdHealthcheck corresponds to `proxycheck healthcheck` command.
	cmdHealthcheck struct {
		AdminPort int `help:"HTTP port of the watcher admin server." default:"1064"`
	}
)

// Validate is called by Kong after parsing to validate the cmdWatch arguments.
func (c *cmdWatch) Validate() error {
	if c.Parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1")
	}
	return nil
}

// Validate is called by Kong after parsing to validate the cmdRun arguments.
func (c *cmdRun) Validate() error {
	if c.Parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1")
	}
	return nil
}

// errScenariosFailed is returned by run when the report has failures.
var errScenariosFailed = errors.New("scenarios failed")

type (
	runFn         func(context.Context, cmdRun, io.Writer, io.Writer) error
	modelsFn      func(context.Context, cmdModels, io.Writer, io.Writer) error
	serveFn       func(context.Context, cmdServe, io.Writer, io.Writer) error
	watchFn       func(context.Context, cmdWatch, io.Writer, io.Writer) error
	historyFn     func(context.Context, cmdHistory, io.Writer, io.Writer) error
	healthcheckFn func(context.Context, int, io.Writer, io.Writer) error
)

// handlers are the sub-command implementations, swapped in tests.
type handlers struct {
	run         runFn
	models      modelsFn
	serve       serveFn
	watch       watchFn
	history     historyFn
	healthcheck healthcheckFn
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Error loading .env: %v", err)
	}
	doMain(ctx, os.Stdout, os.Stderr, os.Args[1:], os.Exit, handlers{
		run:         run,
		models:      models,
		serve:       serve,
		watch:       watch,
		history:     showHistory,
		healthcheck: healthcheck,
	})
}

// doMain is the main entry point for the CLI. It parses the command line arguments and executes the appropriate command.
//
//   - stdout is the writer to use for standard output. Mainly for testing.
//   - stderr is the writer to use for standard error. Mainly for testing.
//   - `args` are the command line arguments without the program name.
//   - exitFn is the function to call to exit the program, during parsing and when scenarios fail. Mainly for testing.
//   - h holds the sub-command implementations. Mainly for testing.
func doMain(ctx context.Context, stdout, stderr io.Writer, args []string, exitFn func(int), h handlers) {
	var c cmd
	parser, err := kong.New(&c,
		kong.Name("proxycheck"),
		kong.Description("Black-box checks for OpenAI-compatible chat completion proxies"),
		kong.Writers(stdout, stderr),
		kong.Exit(exitFn),
		kong.Vars{
			"defaultHistory":  history.DefaultPath,
			"defaultServeKey": testproxy.DefaultAPIKey,
		},
	)
	if err != nil {
		log.Fatalf("Error creating parser: %v", err)
	}
	parsed, err := parser.Parse(args)
	parser.FatalIfErrorf(err)
	switch parsed.Command() {
	case "version":
		_, _ = fmt.Fprintf(stdout, "proxycheck: %s\n", version.Current())
	case "run":
		err = h.run(ctx, c.Run, stdout, stderr)
		if errors.Is(err, errScenariosFailed) {
			exitFn(1)
			return
		}
		if err != nil {
			log.Fatalf("Error running: %v", err)
		}
	case "models":
		if err = h.models(ctx, c.Models, stdout, stderr); err != nil {
			log.Fatalf("Error listing models: %v", err)
		}
	case "serve":
		if err = h.serve(ctx, c.Serve, stdout, stderr); err != nil {
			log.Fatalf("Error serving: %v", err)
		}
	case "watch":
		if err = h.watch(ctx, c.Watch, stdout, stderr); err != nil {
			log.Fatalf("Error watching: %v", err)
		}
	case "history":
		if err = h.history(ctx, c.History, stdout, stderr); err != nil {
			log.Fatalf("Error reading history: %v", err)
		}
	case "healthcheck":
		if err = h.healthcheck(ctx, c.Healthcheck.AdminPort, stdout, stderr); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
	default:
		panic("unreachable")
	}
}

// newLogger writes text logs to stderr, at debug level when requested.
func newLogger(stderr io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
}

// resolveTarget picks the profile (flag, then suite, then proxy), reads its
// environment and applies the flag overrides.
func resolveTarget(f TargetFlags, suiteProfile string) (config.Target, error) {
	profile := f.Profile
	if profile == "" {
		profile = suiteProfile
	}
	if profile == "" {
		profile = config.ProfileProxy
	}
	t, err := config.TargetFromEnv(profile)
	if err != nil {
		return config.Target{}, err
	}
	return t.WithOverrides(f.BaseURL, f.APIKey), nil
}

// loadSuite finds the named suite among the built-in ones and those of the
// suites file. File suites shadow built-in ones with the same name.
func loadSuite(f SuiteFlags) (chatcheck.Suite, error) {
	suites := chatcheck.BuiltinSuites()
	if f.SuitesFile != "" {
		fromFile, err := chatcheck.LoadSuites(f.SuitesFile)
		if err != nil {
			return chatcheck.Suite{}, err
		}
		suites = append(fromFile, suites...)
	}
	return chatcheck.LookupSuite(suites, f.Suite)
}
