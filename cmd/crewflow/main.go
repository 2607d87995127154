// =============================================================================
// crewflow 主入口
// =============================================================================
// 使用方法:
//
//	crewflow list                                   # 列出可运行的 crew
//	crewflow run event-planning --input event_city="San Francisco"
//	crewflow run research-write --inputs-file topic.yaml --no-human-input
//	crewflow serve --config crewflow.yaml           # 启动 HTTP API
//	crewflow health                                 # 检查 LLM 与存储
//	crewflow migrate --config crewflow.yaml up      # 迁移运行记录表
//	crewflow version
// =============================================================================

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BaSui01/crewflow/agent/crews"
	"github.com/BaSui01/crewflow/api/handlers"
	"github.com/BaSui01/crewflow/catalog"
	"github.com/BaSui01/crewflow/config"
	"github.com/BaSui01/crewflow/internal/migration"
	"github.com/BaSui01/crewflow/internal/runner"
	"github.com/BaSui01/crewflow/llm/providers"
	"github.com/BaSui01/crewflow/llm/providers/ollama"
	"go.uber.org/zap"
)

// 版本信息（构建时注入）
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute 分发子命令并返回退出码
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return exitUsage
	}

	switch args[0] {
	case "run":
		return runCrew(ctx, args[1:], stdin, stdout, stderr)
	case "list":
		return listCrews(stdout)
	case "serve":
		return runServe(ctx, args[1:], stderr)
	case "health":
		return runHealth(ctx, args[1:], stdout, stderr)
	case "migrate":
		return runMigrate(ctx, args[1:], stdout, stderr)
	case "version":
		printVersion(stdout)
		return exitOK
	case "help", "-h", "--help":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return exitUsage
	}
}

// loadConfig 加载并验证配置
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.NewLoader().WithConfigPath(path).Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// run 命令
// =============================================================================

func runCrew(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (YAML)")
	inputsFile := fs.String("inputs-file", "", "YAML file with crew inputs")
	outputDir := fs.String("output-dir", "", "Directory for task output files")
	noHuman := fs.Bool("no-human-input", false, "Accept task outputs without asking for feedback")
	var inputs inputFlags
	fs.Var(&inputs, "input", "Crew input as key=value (repeatable)")

	// crew 名称可以出现在 flag 之前或之后
	var crewName string
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		crewName, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if crewName == "" {
		crewName = fs.Arg(0)
	}
	if crewName == "" {
		fmt.Fprintln(stderr, "Usage: crewflow run <crew> [options]")
		return exitUsage
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return exitError
	}
	if *outputDir != "" {
		cfg.Crew.OutputDir = *outputDir
	}
	if *noHuman {
		cfg.Crew.HumanInput = false
	}

	overrides, err := parseInputs(inputs, *inputsFile)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	a, err := newApp(ctx, cfg, logger, appOptions{crew: crewName})
	if err != nil {
		logger.Error("failed to initialize", zap.Error(err))
		return exitError
	}
	defer closeApp(a)

	return kickoff(ctx, a, crewName, overrides, crews.NewConsoleHumanInput(stdin, stdout), stdout)
}

// kickoff 运行 crew 并打印结果；run 命令与测试共用
func kickoff(ctx context.Context, a *app, crewName string, inputs map[string]any, human crews.HumanInputProvider, stdout io.Writer) int {
	res, err := a.runner.Kickoff(ctx, runner.Request{
		Crew:   crewName,
		Inputs: inputs,
		Human:  human,
		Out:    stdout,
	})
	if errors.Is(err, catalog.ErrUnknownCrew) {
		a.logger.Error("unknown crew", zap.String("crew", crewName), zap.Strings("available", catalog.Names()))
		return exitUsage
	}
	if err != nil {
		fields := []zap.Field{zap.String("crew", crewName), zap.Error(err)}
		if res != nil {
			fields = append(fields, zap.String("run_id", res.RunID))
		}
		a.logger.Error("crew run failed", fields...)
		return exitError
	}

	fmt.Fprintf(stdout, "\n## Final Result (run %s)\n\n%s\n", res.RunID, res.Output.String())
	return exitOK
}

func closeApp(a *app) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		a.logger.Warn("shutdown error", zap.Error(err))
	}
}

// =============================================================================
// list / serve / health
// =============================================================================

func listCrews(stdout io.Writer) int {
	for _, name := range catalog.Names() {
		e, err := catalog.Lookup(name)
		if err != nil {
			continue
		}
		fmt.Fprintf(stdout, "%-18s %s\n", e.Name, e.Description)
	}
	return exitOK
}

func runServe(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (YAML)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return exitError
	}
	// HTTP kickoff 不能等待控制台输入
	cfg.Crew.HumanInput = false

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()
	logger.Info("Starting crewflow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit))

	a, err := newApp(ctx, cfg, logger, appOptions{maxConcurrent: cfg.Server.MaxConcurrentRuns, isolateOutputs: true})
	if err != nil {
		logger.Error("failed to initialize", zap.Error(err))
		return exitError
	}
	defer closeApp(a)

	if err := serve(ctx, a); err != nil {
		logger.Error("server exited", zap.Error(err))
		return exitError
	}
	logger.Info("crewflow stopped")
	return exitOK
}

func runHealth(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (YAML)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return exitError
	}
	cfg.Telemetry.Enabled = false

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		fmt.Fprintf(stderr, "Health check failed: %v\n", err)
		return exitError
	}
	defer closeApp(a)

	return checkHealth(ctx, a, stdout)
}

// checkHealth 打印每项检查结果；ollama 模型还会确认已经拉取到本地
func checkHealth(ctx context.Context, a *app, stdout io.Writer) int {
	h := handlers.NewHealthHandler(Version, a.logger)
	for _, c := range a.healthChecks() {
		h.RegisterCheck(c)
	}
	status := h.Evaluate(ctx)
	for name, r := range status.Checks {
		fmt.Fprintf(stdout, "%-10s %s %s %s\n", name, r.Status, r.Latency, r.Message)
	}

	if a.ref.Provider == "ollama" && status.Checks["llm"].Status == "pass" {
		if err := ensureOllamaModel(ctx, a); err != nil {
			fmt.Fprintf(stdout, "%-10s fail %v\n", "model", err)
			return exitError
		}
		fmt.Fprintf(stdout, "%-10s pass %s\n", "model", a.ref.Model)
	}

	if status.Status != "healthy" {
		return exitError
	}
	fmt.Fprintln(stdout, "OK")
	return exitOK
}

func ensureOllamaModel(ctx context.Context, a *app) error {
	p := ollama.NewProvider(providers.OllamaConfig{
		BaseProviderConfig: providers.BaseProviderConfig{
			BaseURL: a.cfg.LLM.BaseURL,
			Model:   a.ref.Model,
			Timeout: 10 * time.Second,
		},
	}, a.logger)
	ok, err := p.HasModel(ctx, a.ref.Model)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("model %s is not pulled; run `ollama pull %s`", a.ref.Model, a.ref.Model)
	}
	return nil
}

// runMigrate 管理运行记录表结构，不要求 database.enabled
func runMigrate(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (YAML)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "Usage: crewflow migrate [--config path] <up|down|down-all|steps N|goto N|force N|version|status>")
		return exitUsage
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return exitError
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	m, err := migration.Open(cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open migrator", zap.String("driver", cfg.Database.Driver), zap.Error(err))
		return exitError
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn("failed to close migrator", zap.Error(err))
		}
	}()

	if err := migration.NewCLI(m, stdout).Run(ctx, fs.Args()); err != nil {
		logger.Error("migration failed", zap.Error(err))
		return exitError
	}
	return exitOK
}

// =============================================================================
// version / help
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "crewflow %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `crewflow - multi-agent crews on a local LLM

Usage:
  crewflow <command> [options]

Commands:
  run <crew>  Run a crew and print its final result
  list        List available crews
  serve       Start the HTTP API
  health      Check the LLM endpoint and storage backends
  migrate     Manage the run history schema (up, down, status, ...)
  version     Show version information
  help        Show this help message

Options for 'run':
  --config <path>        Path to configuration file (YAML)
  --input key=value      Crew input, repeatable
  --inputs-file <path>   YAML file with crew inputs
  --output-dir <dir>     Directory for task output files
  --no-human-input       Do not ask for feedback on human_input tasks

Environment:
  CREWFLOW_LLM_MODEL, CREWFLOW_LLM_BASE_URL, SERPER_API_KEY, ...

Examples:
  crewflow run customer-support --input customer="ACME"
  crewflow run event-planning --no-human-input
  crewflow serve --config /etc/crewflow/config.yaml`)
}
