package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"judgeworker/internal/judge/compiler"
	"judgeworker/internal/judge/langregistry"
	"judgeworker/internal/judge/sandbox/observer"
	"judgeworker/internal/judge/sandbox/runner"
	"judgeworker/internal/judge/session"
	"judgeworker/internal/metrics"
	"judgeworker/pkg/utils/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"net/http"
)

const defaultConfigPath = "configs/judge_worker.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	languages, err := langregistry.Load(appCfg.Languages.Dir)
	if err != nil {
		logger.Error(context.Background(), "load language registry failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info(context.Background(), "language registry loaded", zap.Int("count", languages.Len()))

	registry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(registry)

	sandboxRunner := runner.New(appCfg.Sandbox.toRunnerConfig(), observer.MetricsRecorder(recorder))

	var cache *compiler.Cache
	if appCfg.Cache.Enabled {
		cache = compiler.NewCache(appCfg.Cache.toCompilerCacheConfig())
	}
	jobCompiler := compiler.New(cache)

	metricsServer := &http.Server{Addr: ":9090", Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{})}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn(context.Background(), "metrics server stopped", zap.Error(err))
		}
	}()

	sess := session.New(appCfg.toSessionConfig(), languages, sandboxRunner, jobCompiler, observer.MetricsRecorder(recorder))

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "judge worker session starting", zap.String("master", appCfg.Host.Master))
		errCh <- sess.Run(shutdownCtx)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error(context.Background(), "session loop ended with error", zap.Error(err))
			_ = metricsServer.Close()
			os.Exit(1)
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
		sess.Shutdown()
		<-errCh
	}

	_ = metricsServer.Close()
}
