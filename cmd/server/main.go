package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/formsight/formsight-server/internal/analysis"
	"github.com/formsight/formsight-server/internal/api"
	"github.com/formsight/formsight-server/internal/config"
	"github.com/formsight/formsight-server/internal/db"
	"github.com/formsight/formsight-server/internal/emit"
	"github.com/formsight/formsight-server/internal/jobs"
	"github.com/formsight/formsight-server/internal/logging"
	"github.com/formsight/formsight-server/internal/pipeline"
	"github.com/formsight/formsight-server/internal/playback"
	"github.com/formsight/formsight-server/internal/pose"
	"github.com/formsight/formsight-server/internal/storage"
	"github.com/formsight/formsight-server/internal/transfer"
)

func main() {
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("formsight-server %s (commit %s, built %s)\n",
			config.Version, config.GitCommit, config.BuildTime)
		return
	}

	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting formsight server",
		"version", config.Version, "port", cfg.Port(), "data_dir", cfg.DataDir())

	if cfg.AuthToken() == "" {
		logger.Warn("API authentication disabled, set " + config.EnvAuthToken + " to require a bearer token")
	}

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := jobs.NewRepository(database.Conn())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if n, err := repo.ResetInterruptedJobs(ctx); err != nil {
		return fmt.Errorf("failed to sweep interrupted jobs: %w", err)
	} else if n > 0 {
		logger.Warn("failed jobs a previous process left running", "count", n)
	}

	store, err := storage.NewStore(cfg.ObjectsDir(), cfg.ResultsDir(), cfg.WorkDir(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}

	signer := storage.NewSigner(cfg.SigningKey())
	if !signer.Enabled() {
		logger.Warn("signed transfer URLs disabled, set " + config.EnvSigningKey + " to enable them")
	}

	rules, err := analysis.LoadRules(cfg.RulesPath())
	if err != nil {
		return fmt.Errorf("failed to load coaching rules: %w", err)
	}
	if cfg.RulesPath() != "" {
		logger.Info("loaded coaching rules", "path", cfg.RulesPath(), "rules", len(rules.Rules))
	}

	pipe, pool := startPipeline(ctx, cfg, rules, logger)
	if pool != nil {
		defer pool.Close()
	}

	emitLog := logging.WithComponent(logger, "emit")
	var pub emit.Publisher = emit.NewStubPublisher(emitLog)
	if broker := cfg.MQTTBroker(); broker != "" {
		mp, err := emit.NewMQTTPublisher(broker, "formsight-server-"+jobs.NewID()[:8], emitLog)
		if err != nil {
			logger.Warn("mqtt broker unavailable, result publishing disabled",
				"broker", broker, "error", err)
		} else {
			pub = mp
		}
	}
	defer pub.Close()

	if pipe != nil {
		runnerLog := logging.WithComponent(logger, "runner")
		runner := jobs.NewRunner(repo, store, pipe,
			transfer.NewClient(cfg.MaxClipBytes(), runnerLog), pub, cfg.RunnerInterval(), runnerLog)
		go runner.Start(ctx)
	}

	apiLog := logging.WithComponent(logger, "api")
	apiCfg := api.ServerConfig{
		Port:      cfg.Port(),
		Version:   config.Version,
		AuthToken: cfg.AuthToken(),
		MaxUpload: cfg.MaxClipBytes(),
		Jobs:      jobs.NewService(repo, store, logger),
		Store:     store,
		Signer:    signer,
		Playback:  playback.NewServer(apiLog),
		Logger:    apiLog,
		StartTime: startTime,
	}
	if pipe != nil {
		apiCfg.Detector = pipe
	}
	apiServer := api.NewServer(apiCfg)

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig)

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// startPipeline probes the pose environment and brings up the worker pool.
// A broken environment degrades the server instead of failing boot: the API
// still accepts uploads and submissions, and pending jobs wait for a restart
// with a working install.
func startPipeline(ctx context.Context, cfg config.Config, rules *analysis.RuleSet, logger *slog.Logger) (*pipeline.Pipeline, *pose.Pool) {
	poseLog := logging.WithComponent(logger, "pose")
	doctor := pose.NewCachedDoctor(&pose.SubprocessDoctor{
		PythonPath: cfg.PosePython(),
		ModuleName: cfg.PoseModule(),
		Timeout:    cfg.TimeoutDoctor(),
		Logger:     poseLog,
	}, poseLog)

	probeCtx, probeCancel := context.WithTimeout(ctx, cfg.TimeoutDoctor())
	defer probeCancel()

	caps, err := doctor.Refresh(probeCtx)
	switch {
	case err != nil:
		logger.Warn("pose environment unavailable, job processing disabled", "error", err)
		return nil, nil
	case !caps.HasPose:
		logger.Warn("pose model dependencies missing, job processing disabled",
			"deps_available", caps.Summary.Available, "deps_total", caps.Summary.Total)
		return nil, nil
	}

	logger.Info("pose environment ready",
		"model", caps.ModelVersion, "python", caps.Python.Version, "workers", cfg.PoseWorkers())

	pool, err := pose.StartWorkers(ctx, cfg.PoseWorkers(), pose.WorkerConfig{
		PythonPath: cfg.PosePython(),
		ModuleName: cfg.PoseModule(),
		Logger:     poseLog,
	})
	if err != nil {
		logger.Warn("pose workers failed to start, job processing disabled", "error", err)
		return nil, nil
	}

	return pipeline.New(cfg, rules, pool, logging.WithComponent(logger, "pipeline")), pool
}
