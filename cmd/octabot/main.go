// Command octabot is the single supervisor binary: it runs the
// external HTTP API, the scheduler core (poller, worker pool,
// reapers), and the plugin host side by side, sharing one Postgres
// pool and one cancellation context.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/relaygrid/octabot/config"
	"github.com/relaygrid/octabot/internal/domain"
	"github.com/relaygrid/octabot/internal/email"
	"github.com/relaygrid/octabot/internal/health"
	"github.com/relaygrid/octabot/internal/httpbroker"
	"github.com/relaygrid/octabot/internal/infrastructure/postgres"
	"github.com/relaygrid/octabot/internal/kvcache"
	ctxlog "github.com/relaygrid/octabot/internal/log"
	"github.com/relaygrid/octabot/internal/metrics"
	"github.com/relaygrid/octabot/internal/pluginhost"
	"github.com/relaygrid/octabot/internal/scheduler"
	httptransport "github.com/relaygrid/octabot/internal/transport/http"
	"github.com/relaygrid/octabot/internal/transport/http/handler"
	"github.com/relaygrid/octabot/internal/usecase"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()
	logger.Info("db connected")

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	taskRepo := postgres.NewTaskRepository(pool)
	projectRepo := postgres.NewProjectRepository(pool)
	userRepo := postgres.NewUserRepository(pool)
	attemptRepo := postgres.NewAttemptRepository(pool)

	broker, err := httpbroker.NewBroker(logger, "certs", func(delta int) {
		metrics.BrokerPoolInUse.Add(float64(delta))
	})
	if err != nil {
		log.Fatalf("httpbroker: %v", err)
	}

	pluginCfg, err := pluginhost.LoadConfig(cfg.ConfigPath)
	if err != nil {
		log.Fatalf("plugin config: %v", err)
	}

	host := pluginhost.NewHost(logger, projectRepo, taskRepo, pluginhost.DefaultMaxFanoutDepth)
	host.LoadAll(ctx, pluginCfg, pluginhost.SubprocessLoader{}, func(name string) pluginhost.Capabilities {
		return pluginhost.Capabilities{
			HTTP: broker,
			KV:   kvcache.NewBucket(),
			Log:  logger,
			Name: name,
		}
	})
	defer host.Close()

	workerCount := cfg.WorkerCount
	if pluginCfg.NumWorkers > 0 {
		workerCount = pluginCfg.NumWorkers
	}

	taskCh := make(chan *domain.Task, scheduler.TaskChannelCapacity)

	poller := scheduler.NewPoller(taskRepo, logger, time.Duration(cfg.PollIntervalSec)*time.Second, taskCh)
	notifier := email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)
	workerPool := scheduler.NewWorkerPool(taskCh, taskRepo, attemptRepo, host, userRepo, notifier, logger, workerCount)
	finishedReaper := scheduler.NewFinishedReaper(taskRepo, logger)
	exchangeReaper := scheduler.NewExchangeReaper(taskRepo, logger)

	// coreWG is joined before host.Close()/pool.Close() run, so the
	// plugin host and the database outlive every in-flight dispatch and
	// reaper cycle; the supervisor closes the pool last per §5.
	var coreWG sync.WaitGroup
	runLoop := func(start func(context.Context)) {
		coreWG.Add(1)
		go func() {
			defer coreWG.Done()
			start(ctx)
		}()
	}
	runLoop(poller.Start)
	runLoop(workerPool.Start)
	runLoop(finishedReaper.Start)
	runLoop(exchangeReaper.Start)

	authUsecase := usecase.NewAuthUsecase(userRepo, []byte(cfg.JWTSecret), time.Duration(cfg.JWTMaxAgeMinutes)*time.Minute)
	userUsecase := usecase.NewUserUsecase(userRepo)
	projectUsecase := usecase.NewProjectUsecase(projectRepo)
	taskUsecase := usecase.NewTaskUsecase(taskRepo, projectRepo)

	handlers := httptransport.Handlers{
		Auth:    handler.NewAuthHandler(authUsecase, logger),
		User:    handler.NewUserHandler(userUsecase, logger),
		Project: handler.NewProjectHandler(projectUsecase, logger),
		Task:    handler.NewTaskHandler(taskUsecase, logger),
	}

	apiSrv := &http.Server{
		Addr:    cfg.Host + ":" + cfg.Port,
		Handler: httptransport.NewRouter(logger, handlers, []byte(cfg.JWTSecret)),
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("api server started", "addr", apiSrv.Addr)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server", "error", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Stop accepting new work first: the poller's ctx is already
	// cancelled above, so it has stopped claiming. Give in-flight
	// dispatches and the API a bounded window to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("waiting for in-flight tasks")
	coreWG.Wait()

	logger.Info("octabot shut down")
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
