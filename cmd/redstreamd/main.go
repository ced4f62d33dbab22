package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/novaops/redstream/config"
	"github.com/novaops/redstream/pkg/api"
	"github.com/novaops/redstream/pkg/api/handlers"
	"github.com/novaops/redstream/pkg/broker"
	"github.com/novaops/redstream/pkg/logger"
	"github.com/novaops/redstream/pkg/metrics"
	"github.com/novaops/redstream/pkg/redisconn"
	"github.com/novaops/redstream/pkg/telemetry/tracing"
	"github.com/novaops/redstream/pkg/version"
)

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	versionFlag = flag.Bool("version", false, "Print version information")
	helpFlag    = flag.Bool("help", false, "Print help information")

	// CLI overrides
	redisAddr  = flag.String("redis-addr", "", "Override backing store address")
	namespace  = flag.String("namespace", "", "Override root namespace token")
	serverPort = flag.Int("port", 0, "Override server port")
	logLevel   = flag.String("log-level", "", "Override log level")
	debugMode  = flag.Bool("debug", false, "Enable debug mode")
)

func main() {
	flag.Parse()

	// Print help
	if *helpFlag {
		printHelp()
		os.Exit(0)
	}

	// Print version
	if *versionFlag {
		printVersion()
		os.Exit(0)
	}

	// Build CLI overrides map
	overrides := buildOverrides()

	// Load configuration
	cfg, err := config.Load(*configPath, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration:\n%s\n", err)
		os.Exit(1)
	}

	// Initialize logger with configuration
	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug || *debugMode {
		logCfg.Level = logger.DebugLevel
	}
	log := logger.New(logCfg)
	logger.SetGlobal(log)

	log.Info("Starting RedStream",
		"version", version.Version,
		"buildTime", version.BuildTime,
		"gitCommit", version.GitCommit,
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
		"namespace", cfg.Namespace,
	)

	// Create root context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Initialize tracing
	tracingShutdown, err := tracing.Init(ctx, cfg.Tracing, cfg.App.Name, version.Version)
	if err != nil {
		log.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	if cfg.Tracing.Enabled {
		log.Info("Initialized tracing", "endpoint", cfg.Tracing.Endpoint, "sample_rate", cfg.Tracing.SampleRate)
	}

	// Connect to the backing store
	client, err := redisconn.New(backendConfig(cfg))
	if err != nil {
		log.Error("Failed to create backend client", "error", err)
		os.Exit(1)
	}

	// An unreachable store is not fatal at startup: the process comes up,
	// /ready gates traffic, and the first successful command clears it.
	pingCtx, pingCancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
	if err := redisconn.Ping(pingCtx, client); err != nil {
		log.Warn("Backing store unreachable at startup", "addrs", cfg.Redis.Addrs, "error", err)
	} else {
		log.Info("Connected to backing store", "addrs", cfg.Redis.Addrs)
	}
	pingCancel()

	// Build the broker service
	svc, err := broker.NewService(client, &broker.Config{Namespace: cfg.Namespace})
	if err != nil {
		log.Error("Failed to create broker service", "error", err)
		os.Exit(1)
	}
	svc.SetLogger(log)

	// Initialize metrics manager
	metricsCfg := metrics.DefaultConfig()
	metricsCfg.Enabled = cfg.Metrics.Enabled
	metricsCfg.Port = cfg.Metrics.Port
	metricsCfg.Path = cfg.Metrics.Path
	metricsManager := metrics.NewManager(metricsCfg)
	svc.SetMetrics(metricsManager)

	// Start metrics server if enabled
	if metricsManager.Enabled() {
		go func() {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsManager.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("Metrics server error", "error", err)
			}
		}()
	}

	// Initialize HTTP server with handlers
	tailHandler := handlers.NewTailHandler(svc, log, handlers.TailConfig{
		Block: cfg.Streams.DefaultBlock,
	})
	tailHandler.SetMetrics(metricsManager)

	apiHandlers := &api.Handlers{
		Health:  handlers.NewHealthHandler(svc, cfg.App.Environment, cfg.Namespace),
		Streams: handlers.NewStreamHandler(svc, log, cfg.Streams),
		State:   handlers.NewStateHandler(svc, log, cfg.State),
		Memory:  handlers.NewMemoryHandler(svc, log),
		Tasks:   handlers.NewTaskHandler(svc, log),
		Tail:    tailHandler,
	}
	if metricsManager.Enabled() {
		apiHandlers.Metrics = metricsManager
	}

	httpServer := api.NewHTTPServer(cfg, log, apiHandlers)

	// Start HTTP server in a separate goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
		if err := httpServer.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	log.Info("RedStream is running",
		"http_port", cfg.Server.Port,
		"metrics_port", cfg.Metrics.Port,
	)
	log.Info("Press Ctrl+C to stop")

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErrChan:
		log.Error("HTTP server error", "error", err)
	case <-ctx.Done():
		log.Info("Context cancelled")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Shutdown HTTP server first
	log.Info("Shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down HTTP server", "error", err)
	}

	// Closing the client unblocks tail loops still parked in blocking
	// reads; hijacked connections are outside the server's drain.
	log.Info("Closing backend client")
	if err := client.Close(); err != nil {
		log.Error("Error closing backend client", "error", err)
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracing", "error", err)
	}

	log.Info("RedStream stopped gracefully")
}

func buildOverrides() map[string]interface{} {
	overrides := make(map[string]interface{})

	if *redisAddr != "" {
		overrides["redis.addrs"] = []string{*redisAddr}
	}
	if *namespace != "" {
		overrides["namespace"] = *namespace
	}
	if *serverPort != 0 {
		overrides["server.port"] = *serverPort
	}
	if *logLevel != "" {
		overrides["log.level"] = *logLevel
	}
	if *debugMode {
		overrides["app.debug"] = true
	}

	return overrides
}

// backendConfig maps the loaded configuration onto connection settings.
func backendConfig(cfg *config.Config) *redisconn.Config {
	return &redisconn.Config{
		Addrs:        cfg.Redis.Addrs,
		MasterName:   cfg.Redis.Master,
		Username:     cfg.Redis.Username,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}
}

func printVersion() {
	fmt.Printf("RedStream - Stream Messaging and Task Coordination Service\n")
	fmt.Printf("Version:    %s\n", version.Version)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Printf("Git Commit: %s\n", version.GitCommit)
	fmt.Printf("Go Version: %s\n", version.GoVersion)
}

func printHelp() {
	fmt.Printf("RedStream - Redis-backed stream messaging and task coordination service\n\n")
	fmt.Printf("Usage: redstreamd [options]\n\n")
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  redstreamd                                  # Run with default config\n")
	fmt.Printf("  redstreamd -config config.yaml              # Use specific config file\n")
	fmt.Printf("  redstreamd -port 9090 -log-level debug      # Override specific options\n")
	fmt.Printf("  redstreamd -redis-addr redis-1:6379         # Point at another store\n")
	fmt.Printf("  redstreamd -version                         # Print version info\n")
}
