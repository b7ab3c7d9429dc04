// Package main is the entry point for flowgraphd, the dataflow runtime
// process: it loads the ambient process configuration, starts the
// hot-swap supervisor against the configured (or control-file-recalled)
// initial graph, and serves the external control and metrics endpoints
// until an interrupt or terminate signal arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/axiom-sdr/flowgraphd/internal/buildinfo"
	"github.com/axiom-sdr/flowgraphd/internal/config"
	"github.com/axiom-sdr/flowgraphd/internal/control"
	"github.com/axiom-sdr/flowgraphd/internal/events"
	"github.com/axiom-sdr/flowgraphd/internal/loader"
	"github.com/axiom-sdr/flowgraphd/internal/metrics"
	"github.com/axiom-sdr/flowgraphd/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "", "path to flowgraphd config file")
	graphPath := flag.String("graph", "", "path to the initial flowgraph configuration (overrides control file recall)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "version":
			fmt.Println(buildinfo.String())
			for k, v := range buildinfo.BuildInfo() {
				fmt.Printf("  %-12s %s\n", k+":", v)
			}
			return
		case "serve":
			// fallthrough to default below
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n", flag.Arg(0))
			os.Exit(1)
		}
	}

	runServe(logger, *configPath, *graphPath)
}

func runServe(logger *slog.Logger, configPath, graphPath string) {
	logger.Info("starting flowgraphd", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfgPath, err := config.FindConfig(configPath)
	var cfg *config.Config
	if err != nil {
		logger.Warn("no config file found, using defaults", "error", err)
		cfg = config.Default()
	} else {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			logger.Error("failed to load config", "path", cfgPath, "error", err)
			os.Exit(1)
		}
		logger.Info("config loaded", "path", cfgPath)
	}

	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			logger.Error("invalid log_level in config", "error", err)
			os.Exit(1)
		}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: config.ReplaceLogLevelNames,
		}))
	}

	if cfg.Runtime.Workers > 0 {
		runtime.GOMAXPROCS(cfg.Runtime.Workers)
	}
	logger.Info("scheduler worker pool", "gomaxprocs", runtime.GOMAXPROCS(0))

	if err := os.MkdirAll(cfg.GraphDir, 0755); err != nil {
		logger.Error("failed to create graph directory", "path", cfg.GraphDir, "error", err)
		os.Exit(1)
	}

	initialGraph := resolveInitialGraph(logger, cfg, graphPath)

	bus := events.New()
	registry := loader.NewDefaultRegistry()

	ctlServer := control.NewServer(cfg.Control.Address, nil, logger)

	sup := supervisor.New(logger, registry, bus, ctlServer, supervisor.Config{
		RetryBackoff: cfg.Reload.RetryBackoff,
	})
	ctlServer.SetSupervisor(sup)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		if err := sup.Run(ctx, initialGraph); err != nil {
			logger.Error("supervisor run loop exited with error", "error", err)
		}
	}()

	var metricsServer *metricsHTTPServer
	if cfg.Metrics.Configured() {
		metricsServer = newMetricsServer(cfg.Metrics.Address, logger)
		go metricsServer.Start()
	}

	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	if initialGraph != "" {
		if err := loader.WriteControlFile(cfg.ControlFile, initialGraph); err != nil {
			logger.Warn("failed to write control file", "error", err)
		}
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- ctlServer.Start(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Error("control endpoint failed", "error", err)
		}
		cancel()
	}

	_ = ctlServer.Shutdown(context.Background())
	if metricsServer != nil {
		_ = metricsServer.Shutdown(context.Background())
	}

	<-supDone
	logger.Info("flowgraphd stopped")
}

// resolveInitialGraph decides which graph configuration to start from:
// an explicit -graph flag wins, otherwise the advisory control file is
// consulted per spec.md §6 (restart recovery only — writing it never
// triggers a swap by itself), falling back to the first file found in
// the graph directory.
func resolveInitialGraph(logger *slog.Logger, cfg *config.Config, graphPath string) string {
	if graphPath != "" {
		return graphPath
	}
	if loader.ControlFileExists(cfg.ControlFile) {
		if p, err := loader.ReadControlFile(cfg.ControlFile); err == nil && p != "" {
			logger.Info("recalled last graph from control file", "path", p, "control_file", cfg.ControlFile)
			return p
		}
	}
	files, err := loader.ListGraphFiles(cfg.GraphDir)
	if err != nil || len(files) == 0 {
		logger.Warn("no initial flowgraph configuration found; starting with no running graph", "graph_dir", cfg.GraphDir)
		return ""
	}
	logger.Info("defaulting to first graph in graph directory", "path", files[0])
	return files[0]
}

// metricsHTTPServer wraps the Prometheus scrape endpoint in its own
// listener, separate from the control endpoint, per spec.md's
// distinction between the external control surface and operational
// metrics.
type metricsHTTPServer struct {
	addr   string
	logger *slog.Logger
	srv    *http.Server
}

func newMetricsServer(addr string, logger *slog.Logger) *metricsHTTPServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return &metricsHTTPServer{
		addr:   addr,
		logger: logger,
		srv:    &http.Server{Addr: addr, Handler: mux},
	}
}

func (m *metricsHTTPServer) Start() {
	m.logger.Info("starting metrics endpoint", "addr", m.addr)
	if err := m.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		m.logger.Error("metrics endpoint failed", "error", err)
	}
}

func (m *metricsHTTPServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
