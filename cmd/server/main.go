package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blendcloud/internal/config"
	"blendcloud/internal/infra"
	"blendcloud/internal/router"
	"blendcloud/internal/worker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Structured logger: pretty in dev, JSON in prod
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	// Code that logs through zerolog.Ctx outside a request still gets output.
	zerolog.DefaultContextLogger = &log.Logger

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	// Worker handlers are wired here (composition root) so that the pool has
	// the same tenant-scoped services as the HTTP layer.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := worker.NewDispatcher(rdb)
	deps := router.Deps{Config: cfg, DB: db, Redis: rdb, Reportes: dispatcher}
	svc := router.Wire(deps)

	var mailer worker.ReporteSender
	if cfg.SMTPEnabled() {
		mailer = infra.NewMailer(cfg)
	} else {
		log.Warn().Msg("SMTP not configured, closing reports will not be emailed")
	}

	pool := worker.NewPool(rdb)
	pool.Register(worker.QueueReportes, worker.JobReporteCierre,
		worker.NewReporteWorker(svc.Caja, svc.Tenants, dispatcher, cfg.PDFStoragePath))
	pool.Register(worker.QueueEmail, worker.JobEmail,
		worker.NewEmailWorker(mailer, infra.NewCircuitBreaker(infra.DefaultCBConfig())))
	pool.Start(ctx, cfg.WorkerPoolSize)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router.New(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("BlendCloud backend listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}

	// Workers finish the job in hand; BRPOP returns within its timeout.
	cancel()
	pool.Wait()
	_ = rdb.Close()
	log.Info().Msg("server exited")
}
