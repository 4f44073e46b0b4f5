// Loanagent answers banking questions about accounts and loans.
//
// A language model decides, turn by turn, whether to answer directly or
// call one of the banking tools (account and loan lookups, market rates,
// prepayment advice and refinance analysis). Configuration is loaded
// from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	loanagent serve                        Start the API server
//	loanagent init [dir]                   Write a default config and seed a demo database
//	loanagent ask -user <id> <question>    Ask a single question
//	loanagent tool <name> [input]          Run one tool directly
//	loanagent version                      Print version and build information
//	loanagent -o json version              Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nugget/loanagent/internal/agent"
	"github.com/nugget/loanagent/internal/api"
	"github.com/nugget/loanagent/internal/bank"
	"github.com/nugget/loanagent/internal/buildinfo"
	"github.com/nugget/loanagent/internal/config"
	"github.com/nugget/loanagent/internal/connwatch"
	"github.com/nugget/loanagent/internal/events"
	"github.com/nugget/loanagent/internal/llm"
	"github.com/nugget/loanagent/internal/mqtt"
	"github.com/nugget/loanagent/internal/render"
	"github.com/nugget/loanagent/internal/tools"
	"github.com/nugget/loanagent/internal/tracing"
	"github.com/nugget/loanagent/internal/usage"
)

const (
	// usageQueueSize bounds records waiting for the usage store.
	usageQueueSize  = 512
	shutdownTimeout = 30 * time.Second
)

func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. OS-level dependencies are parameters so
// the whole lifecycle can be driven from tests. Arguments are parsed by
// hand; the flag package's global FlagSet gets in the way of parallel
// tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case command != "":
			// Everything after the command belongs to it, flags included.
			cmdArgs = append(cmdArgs, args[i])
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-"):
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(ctx, stdout, dir)
	case "ask":
		opts, err := parseAskArgs(cmdArgs)
		if err != nil {
			return err
		}
		return runAsk(ctx, stdout, stderr, configPath, outputFmt, opts)
	case "tool":
		if len(cmdArgs) == 0 {
			return errors.New("usage: loanagent tool <name> [input]")
		}
		return runTool(ctx, stdout, stderr, configPath, outputFmt, cmdArgs[0], strings.Join(cmdArgs[1:], " "))
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Loanagent - Banking question router")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: loanagent [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                 Start the API server")
	fmt.Fprintln(w, "  init [dir]            Write config.yaml and a seeded demo database (default: .)")
	fmt.Fprintln(w, "  ask [opts] <question> Ask a single question")
	fmt.Fprintln(w, "      -user <id>        Customer user ID (required)")
	fmt.Fprintln(w, "      -rate <pct>       Proposed interest rate for refinance questions")
	fmt.Fprintln(w, "      -score <n>        Updated credit score")
	fmt.Fprintln(w, "      -income <usd>     Updated annual income")
	fmt.Fprintln(w, "      -plain            Strip markdown from the answer")
	fmt.Fprintln(w, "  tool <name> [input]   Run one tool; input is JSON arguments or a user ID")
	fmt.Fprintln(w, "  version               Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  "+strings.Join(config.DefaultSearchPaths(), ", "))
	return nil
}

// askOptions are the arguments of the ask subcommand.
type askOptions struct {
	req   agent.Request
	plain bool
}

func parseAskArgs(args []string) (askOptions, error) {
	var opts askOptions
	var words []string

	value := func(i int, name string) (string, error) {
		if i+1 >= len(args) {
			return "", fmt.Errorf("%s requires a value", name)
		}
		return args[i+1], nil
	}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-user":
			v, err := value(i, "-user")
			if err != nil {
				return opts, err
			}
			opts.req.UserID = v
			i++
		case "-rate", "-income":
			v, err := value(i, args[i])
			if err != nil {
				return opts, err
			}
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return opts, fmt.Errorf("%s: %q is not a number", args[i], v)
			}
			if args[i] == "-rate" {
				opts.req.NewInterestRate = &f
			} else {
				opts.req.NewIncome = &f
			}
			i++
		case "-score":
			v, err := value(i, "-score")
			if err != nil {
				return opts, err
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return opts, fmt.Errorf("-score: %q is not an integer", v)
			}
			opts.req.NewCreditScore = &n
			i++
		case "-plain":
			opts.plain = true
		default:
			words = append(words, args[i])
		}
	}

	opts.req.Query = strings.Join(words, " ")
	if opts.req.UserID == "" || opts.req.Query == "" {
		return opts, errors.New("usage: loanagent ask -user <id> [-rate R] [-score S] [-income I] [-plain] <question>")
	}
	return opts, nil
}

// runAsk processes one question without starting the server.
func runAsk(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string, opts askOptions) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := configuredLogger(stderr, cfg)

	store, err := openBank(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	registry, err := newRegistry(store, cfg, logger)
	if err != nil {
		return err
	}
	llmClient, err := createLLMClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	loop := newLoop(cfg, llmClient, registry, logger, tracing.Observer{})

	resp, err := loop.Ask(ctx, opts.req)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	answer := resp.Answer
	if opts.plain {
		answer = render.Plain(answer)
	}
	fmt.Fprintln(stdout, answer)
	return nil
}

// runTool runs a single tool through its langchaingo adapter. Useful
// for checking database contents without a model.
func runTool(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt, name, input string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := configuredLogger(stderr, cfg)

	store, err := openBank(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	registry, err := newRegistry(store, cfg, logger)
	if err != nil {
		return err
	}
	tool, err := registry.AsLangchainTool(name)
	if err != nil {
		return fmt.Errorf("%w (available: %s)", err, strings.Join(registry.Names(), ", "))
	}

	ctx = tools.WithRequestID(ctx, "cli")
	result, err := tool.Call(ctx, input)
	if err != nil {
		return fmt.Errorf("tool %s: %w", name, err)
	}

	if outputFmt == "json" {
		return json.NewEncoder(stdout).Encode(map[string]string{"tool": name, "result": result})
	}
	fmt.Fprint(stdout, result)
	if !strings.HasSuffix(result, "\n") {
		fmt.Fprintln(stdout)
	}
	return nil
}

// runServe is the primary operating mode. It blocks until SIGINT or
// SIGTERM, then drains the API server and flushes the observers.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting loanagent", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger = configuredLogger(stdout, cfg)
	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"model", cfg.Models.Default,
		"database", cfg.Database.Driver,
		"max_turns", cfg.Agent.MaxTurns,
		"timeout", cfg.Agent.Timeout,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := openBank(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	registry, err := newRegistry(store, cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("tools registered", "tools", registry.Names())

	llmClient, err := createLLMClient(ctx, cfg, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	// --- Dependency watch ---
	// A database that was down at startup gets its tables once it
	// comes up. Migrate is idempotent.
	watchCtx, stopWatch := context.WithCancel(gctx)
	monitor := connwatch.NewMonitor(logger)
	defer func() {
		stopWatch()
		monitor.Wait()
	}()
	monitor.Watch(watchCtx, connwatch.Dependency{
		Name:     "database",
		Probe:    store.Ping,
		Critical: true,
		OnReady: func(ctx context.Context) {
			if err := store.Migrate(ctx); err != nil {
				logger.Error("database migration failed", "error", err)
			}
		},
	})
	monitor.Watch(watchCtx, connwatch.Dependency{
		Name: "model",
		Probe: func(ctx context.Context) error {
			return llmClient.PingModel(ctx, cfg.Models.Default)
		},
		Critical: true,
	})

	// --- Observers ---
	// Telemetry writers stop only after the server has drained, so
	// requests finishing during shutdown are still recorded.
	writerCtx, stopWriters := context.WithCancel(context.Background())
	defer stopWriters()

	bus := events.New()
	observers := []agent.Observer{tracing.Observer{}, events.NewObserver(bus)}

	var usageStore *usage.Store
	if cfg.Usage.Enabled() {
		usageStore, err = usage.NewStore(cfg.Usage.DBPath)
		if err != nil {
			return fmt.Errorf("open usage store: %w", err)
		}
		defer usageStore.Close()

		recorder := usage.NewRecorder(usageStore, usageQueueSize, logger)
		observers = append(observers, recorder)
		g.Go(func() error { return recorder.Run(writerCtx) })
		logger.Info("usage recording enabled", "path", cfg.Usage.DBPath)
	}

	if cfg.MQTT.Configured() {
		instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("load mqtt instance id: %w", err)
		}
		clientID := mqtt.ClientID(cfg.MQTT.ClientID, instanceID)

		pub := mqtt.New(cfg.MQTT, clientID, mqtt.NewDailyStats(nil), logger)
		pub.SetKnownTools(registry.Names())
		observers = append(observers, pub)
		g.Go(func() error {
			if err := pub.Start(writerCtx); err != nil {
				// Telemetry is optional; keep serving.
				logger.Error("mqtt publisher failed", "error", err)
			}
			return nil
		})
		logger.Info("mqtt publishing enabled", "broker", cfg.MQTT.Broker, "client_id", clientID, "topic_prefix", cfg.MQTT.TopicPrefix)
	} else {
		logger.Info("mqtt publishing disabled (not configured)")
	}

	loop := newLoop(cfg, llmClient, registry, logger, observers...)

	// --- API server ---
	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, loop, registry, logger)
	server.SetEventBus(bus)
	server.SetHealthReporter(monitor)
	if usageStore != nil {
		server.SetUsageStore(usageStore)
	}

	g.Go(func() error {
		if err := server.Start(gctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return shutdownInOrder(gctx, logger, server.Shutdown, stopWriters)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("loanagent stopped")
	return nil
}

// newLogger creates a structured logger writing to w. Format must be
// "text" or "json"; anything else means text.
// shutdownInOrder waits for ctx to end, shuts the server down, and only
// then calls stop.
func shutdownInOrder(ctx context.Context, logger *slog.Logger, shutdown func(context.Context) error, stop func()) error {
	<-ctx.Done()
	logger.Info("shutdown signal received")
	defer stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return shutdown(shutdownCtx)
}

func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func configuredLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	// Already validated by config.Load.
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	return newLogger(w, level, cfg.LogFormat)
}

// loadConfig loads .env from the working directory, then locates and
// parses the YAML configuration file. It returns the path loaded.
func loadConfig(explicit string) (*config.Config, string, error) {
	if err := config.LoadEnvFile(".env"); err != nil {
		return nil, "", err
	}

	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// openBank opens the record database and creates its tables. An
// unreachable database is logged, not fatal: lookups fail individually
// until it comes back.
func openBank(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*bank.SQLStore, error) {
	store, err := bank.Open(bank.Options{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		QueryTimeout: cfg.Database.QueryTimeout,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	if err := store.Ping(ctx); err != nil {
		logger.Warn("database unreachable at startup", "driver", cfg.Database.Driver, "error", err)
		return store, nil
	}
	logger.Info("database connected", "driver", cfg.Database.Driver)

	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return store, nil
}

func newRegistry(repo bank.Repository, cfg *config.Config, logger *slog.Logger) (*tools.Registry, error) {
	banking := tools.NewBanking(repo, tools.MarketRates{
		Fixed30: cfg.MarketRates.Fixed30,
		Fixed15: cfg.MarketRates.Fixed15,
		ARM51:   cfg.MarketRates.ARM51,
	}, logger)
	registry, err := tools.NewRegistry(banking.Tools()...)
	if err != nil {
		return nil, fmt.Errorf("build tool registry: %w", err)
	}
	return registry, nil
}

func newLoop(cfg *config.Config, client llm.Client, registry *tools.Registry, logger *slog.Logger, observers ...agent.Observer) *agent.Loop {
	adapter := agent.NewModelAdapter(client, cfg.Models.Default, logger)
	return agent.NewLoop(adapter, registry, agent.Config{
		MaxTurns: cfg.Agent.MaxTurns,
		Timeout:  cfg.Agent.Timeout,
	}, logger, observers...)
}

// createLLMClient builds a multi-provider client. Models not listed in
// config fall through to Ollama.
func createLLMClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*llm.MultiClient, error) {
	ollamaClient := llm.NewOllamaClient(cfg.Models.OllamaURL, logger)
	multi := llm.NewMultiClient(ollamaClient)
	multi.AddProvider("ollama", ollamaClient)

	if cfg.Anthropic.Configured() {
		multi.AddProvider("anthropic", llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger))
		logger.Info("Anthropic provider configured")
	}
	if cfg.Gemini.Configured() {
		pingModel := ""
		for _, m := range cfg.Models.Available {
			if m.Provider == "gemini" {
				pingModel = m.Name
				break
			}
		}
		gemini, err := llm.NewGeminiClient(ctx, cfg.Gemini.APIKey, pingModel, logger)
		if err != nil {
			return nil, err
		}
		multi.AddProvider("gemini", gemini)
		logger.Info("Gemini provider configured")
	}

	for _, m := range cfg.Models.Available {
		multi.AddModel(m.Name, m.Provider)
	}
	logger.Info("LLM client initialized", "default_model", cfg.Models.Default, "default_provider", cfg.ProviderFor(cfg.Models.Default))
	return multi, nil
}
