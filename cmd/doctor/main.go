package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sergeyitaly/raspi-doctor/internal/agent"
	"github.com/sergeyitaly/raspi-doctor/internal/analytics"
	"github.com/sergeyitaly/raspi-doctor/internal/audit"
	"github.com/sergeyitaly/raspi-doctor/internal/config"
	"github.com/sergeyitaly/raspi-doctor/internal/engine"
	"github.com/sergeyitaly/raspi-doctor/internal/executor"
	"github.com/sergeyitaly/raspi-doctor/internal/knowledge"
	"github.com/sergeyitaly/raspi-doctor/internal/llm"
	"github.com/sergeyitaly/raspi-doctor/internal/metrics"
	"github.com/sergeyitaly/raspi-doctor/internal/telemetry"
	"github.com/sergeyitaly/raspi-doctor/internal/troubleshoot"
)

const version = "1.0.0"

var (
	configPath = flag.String("config", "/etc/raspi-doctor/config.yaml", "Path to configuration file")
	runOnce    = flag.Bool("once", false, "Run a single monitoring cycle and exit")
	debugMode  = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	fmt.Printf("raspi-doctor %s\n", version)
	fmt.Printf("Configuration: %s\n", *configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := config.NewManager(*configPath)
	if err := manager.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := manager.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: invalid configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := manager.Get()

	logCfg := &audit.Config{
		Dir:        cfg.Logging.Dir,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
		LogLevel:   cfg.Logging.Level,
	}
	if *debugMode {
		logCfg.LogLevel = "debug"
	}

	if err := os.MkdirAll(cfg.Logging.Dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to create log directory: %v\n", err)
		os.Exit(1)
	}

	log, err := audit.NewAppLogger(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	auditLog, err := audit.NewLogger(logCfg, log)
	if err != nil {
		log.Fatal("failed to create audit logger", zap.Error(err))
	}
	defer auditLog.Close()

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		log.Fatal("failed to create database directory", zap.Error(err))
	}
	kb, err := knowledge.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		log.Fatal("failed to open knowledge base", zap.Error(err))
	}
	defer kb.Close()

	runner := telemetry.NewRunner()
	collector := telemetry.NewShellCollector(runner)
	trends := analytics.NewAnalyzer(kb)
	eng := engine.New(kb, trends, log)
	ts := troubleshoot.New(kb, log)
	exec := executor.New(kb, runner, collector, ts, auditLog, log)
	advisor := llm.NewOllamaAdvisor(cfg.Ollama, log)

	// The agent reads configuration through the manager so file reloads
	// apply on the next cycle.
	a := agent.New(manager, collector, kb, eng, exec, advisor, auditLog, log)

	if *runOnce {
		if err := a.RunOnce(ctx); err != nil {
			log.Error("cycle failed", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	if cfg.Metrics.Enabled {
		metricsSrv := metrics.NewServer(cfg.Metrics.Listen)
		go func() {
			log.Info("metrics listener started", zap.String("addr", cfg.Metrics.Listen))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics listener failed", zap.Error(err))
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	// Shut the loop down on SIGINT/SIGTERM.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-shutdown
		log.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	// The agent re-reads the manager each cycle; this goroutine only
	// surfaces reloads in the log.
	go func() {
		for updated := range manager.Watch(ctx) {
			log.Info("configuration reloaded",
				zap.Int("interval_minutes", updated.Agent.IntervalMinutes),
			)
		}
	}()

	if err := a.Run(ctx); err != nil && err != context.Canceled {
		log.Error("agent stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
