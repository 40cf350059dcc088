// Command gateway is the llmgateway entry point, modeled on the donor's
// cmd/agentflow/main.go subcommand dispatch (serve/migrate/version/health).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/nullroute-dev/llmgateway/internal/credential"
	"github.com/nullroute-dev/llmgateway/internal/crypto"
	"github.com/nullroute-dev/llmgateway/internal/gwconfig"
	"github.com/nullroute-dev/llmgateway/internal/keyresolver"
	"github.com/nullroute-dev/llmgateway/internal/metrics"
	"github.com/nullroute-dev/llmgateway/internal/oauth"
	"github.com/nullroute-dev/llmgateway/internal/ratelimit"
	"github.com/nullroute-dev/llmgateway/internal/server"
	"github.com/nullroute-dev/llmgateway/internal/store"
	"github.com/nullroute-dev/llmgateway/internal/telemetry"
	"github.com/nullroute-dev/llmgateway/proxy"
	"github.com/nullroute-dev/llmgateway/providers"
	"github.com/nullroute-dev/llmgateway/providers/anthropicagent"
	"github.com/nullroute-dev/llmgateway/providers/gemini"
	"github.com/nullroute-dev/llmgateway/providers/openrouter"
	"github.com/nullroute-dev/llmgateway/providers/vertexai"
	"github.com/nullroute-dev/llmgateway/transport"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	fs.Parse(args)

	cfg, err := gwconfig.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting llmgateway",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer otelProviders.Shutdown(context.Background())

	db, err := openDatabase(cfg.Database, logger)
	if err != nil {
		logger.Fatal("database unavailable", zap.Error(err))
	}

	st, err := store.NewGormStore(db, logger)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}

	key, err := crypto.NewKey(cfg.EncryptionKey)
	if err != nil {
		logger.Fatal("invalid encryption key", zap.Error(err))
	}

	oauthMgr := oauth.NewManager(st, key, logger)
	oauthMgr.StartBackgroundRefresh(context.Background())
	defer oauthMgr.Stop()

	resolver := credential.New(st, key, oauthMgr)
	adapters := buildAdapters(cfg)

	collector := metrics.NewCollector("llmgateway", logger)

	core := proxy.New(st, resolver, adapters, logger).WithMetrics(collector)
	handlers := transport.NewHandlers(core, resolver, adapters, logger).WithMetrics(collector)

	keyRes := keyresolver.New(st)
	limiter := ratelimit.New()

	router := transport.NewRouter(
		handlers,
		transport.Auth(keyRes),
		transport.RateLimit(limiter, collector),
		transport.CORS(cfg.CORSAllowedOrigins),
		transport.Recover(logger),
		transport.Metrics(collector),
	)

	mux := http.NewServeMux()
	mux.Handle("/v1/", router)
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	srvCfg := server.DefaultConfig()
	srvCfg.Addr = fmt.Sprintf(":%d", cfg.Port)
	manager := server.NewManager(mux, srvCfg, logger)

	if err := manager.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	logger.Info("llmgateway listening", zap.String("addr", srvCfg.Addr))

	manager.WaitForShutdown()
	logger.Info("llmgateway stopped")
}

func buildAdapters(cfg *gwconfig.Config) map[store.ProviderType]providers.Adapter {
	adapters := map[store.ProviderType]providers.Adapter{
		store.ProviderAnthropicAgent: anthropicagent.New(anthropicagent.Config{Timeout: cfg.Anthropic.Timeout}),
		store.ProviderGemini:         gemini.New(gemini.Config{BaseURL: cfg.Gemini.BaseURL, Timeout: cfg.Gemini.Timeout}),
		store.ProviderVertexAI:       vertexai.New(vertexai.Config{Timeout: cfg.VertexAI.Timeout}),
		store.ProviderOpenRouter: openrouter.New(openrouter.Config{
			BaseURL:  cfg.OpenRouter.BaseURL,
			SiteURL:  cfg.SiteURL,
			AppTitle: "llmgateway",
			Timeout:  cfg.OpenRouter.Timeout,
		}),
	}
	return adapters
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("OK")
}

func printVersion() {
	fmt.Printf("llmgateway %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`llmgateway - multi-provider LLM gateway

Usage:
  gateway <command> [options]

Commands:
  serve     Start the gateway server
  migrate   Database migration commands
  version   Show version information
  health    Check server health
  help      Show this help message

Migration subcommands:
  migrate up        Apply all pending migrations
  migrate down      Rollback the last migration
  migrate status    Show migration status

Examples:
  gateway serve
  gateway migrate up
  gateway health --addr http://localhost:8080
  gateway version`)
}

func initLogger(cfg gwconfig.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format != "console" {
		zapConfig.Encoding = "json"
	}

	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		logger, _ = zap.NewProduction()
	}

	return logger
}

func openDatabase(dbCfg gwconfig.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	if dbCfg.Driver == "" {
		return nil, fmt.Errorf("database driver not configured")
	}

	var dialector gorm.Dialector
	switch dbCfg.Driver {
	case "postgres":
		dialector = postgres.Open(dbCfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: postgres)", dbCfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	logger.Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}
