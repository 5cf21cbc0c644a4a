// =============================================================================
// StructFlow 主入口
// =============================================================================
// 结构化补全网关服务入口点，包含 HTTP 服务、健康检查、Prometheus 指标
//
// 使用方法:
//
//	structflow serve                       # 启动服务
//	structflow serve --config config.yaml  # 指定配置文件
//	structflow version                     # 显示版本信息
//	structflow health                      # 健康检查
// =============================================================================
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

	"github.com/BaSui01/structflow/api/handlers"
	"github.com/BaSui01/structflow/config"
	"github.com/BaSui01/structflow/internal/metrics"
	"github.com/BaSui01/structflow/internal/server"
	"github.com/BaSui01/structflow/llm/providers/ollama"
	"github.com/BaSui01/structflow/structured"
)

// 版本信息（构建时注入）
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

// --- serve 命令 ---

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting StructFlow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("upstream", cfg.Upstream.BaseURL),
		zap.String("default_model", cfg.Upstream.DefaultModel),
	)

	provider := ollama.New(ollama.Config{
		BaseURL:      cfg.Upstream.BaseURL,
		DefaultModel: cfg.Upstream.DefaultModel,
		Timeout:      cfg.Upstream.Timeout,
	}, logger)

	pipeline := structured.NewPipeline(provider, structured.Config{
		DefaultModel:   cfg.Upstream.DefaultModel,
		TransformModel: cfg.Upstream.TransformModel,
	}, logger)

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector("structflow", logger)
	}

	mux := http.NewServeMux()

	chatHandler := handlers.NewChatHandler(pipeline, provider, collector, logger)
	healthHandler := handlers.NewHealthHandler(provider, Version, logger)

	mux.HandleFunc("POST /api/chat", chatHandler.HandleChat)
	mux.HandleFunc("GET /health", healthHandler.HandleLiveness)
	mux.HandleFunc("GET /ready", healthHandler.HandleReadiness)
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.Handler())
	}

	// 中间件链：请求 ID → CORS → 限速 → 访问日志/指标
	var handler http.Handler = mux
	handler = handlers.Observe(collector, logger)(handler)
	handler = handlers.RateLimit(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, logger)(handler)
	handler = handlers.CORS(handler)
	handler = handlers.RequestID(handler)

	mgr := server.NewManager(handler, server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)

	if err := mgr.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	mgr.WaitForShutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
	}

	logger.Info("StructFlow stopped")
}

// --- 健康检查命令 ---

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

// --- 日志初始化 ---

func initLogger(cfg config.LogConfig) *zap.Logger {
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

	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// --- 版本和帮助 ---

func printVersion() {
	fmt.Printf("StructFlow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`StructFlow - schema-coerced LLM completion gateway

Usage:
  structflow <command> [options]

Commands:
  serve     Start the StructFlow server
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Environment:
  STRUCTFLOW_UPSTREAM_BASE_URL        Completion service base URL
  STRUCTFLOW_UPSTREAM_DEFAULT_MODEL   Default model identifier
  STRUCTFLOW_UPSTREAM_TRANSFORM_MODEL Model used for JSON regeneration`)
}
