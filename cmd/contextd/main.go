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

	"github.com/rs/zerolog/log"

	"github.com/Zykairotis/contextd/internal/config"
	"github.com/Zykairotis/contextd/internal/httpapi"
	"github.com/Zykairotis/contextd/internal/observability"
	"github.com/Zykairotis/contextd/internal/realtime"
	"github.com/Zykairotis/contextd/internal/services"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core, err := services.Build(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		return 1
	}
	defer core.Close()

	// Workers and housekeeping.
	go core.Queue.Run(ctx)
	go core.Queue.PruneLoop(ctx, cfg.Jobs.RetentionTTL)

	// Relay catalog job notifications onto the realtime bus so websocket
	// subscribers see transitions without polling.
	go func() {
		if err := core.Catalog.ListenJobs(ctx, func(jobID, status string) {
			job, ok, err := core.Catalog.GetJob(ctx, jobID)
			if err != nil || !ok {
				return
			}
			projectName, err := core.Catalog.ProjectNameByID(ctx, job.ProjectID)
			if err != nil {
				projectName = job.ProjectID
			}
			core.Bus.PublishJobProgress(projectName, realtime.JobProgress{
				JobID:    jobID,
				Status:   status,
				Progress: job.Progress,
				Phase:    job.CurrentPhase,
			})
		}); err != nil {
			log.Warn().Err(err).Msg("job notification listener stopped")
		}
	}()

	server := httpapi.NewServer(core)
	e := server.Router()
	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("contextd listening")
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	return 0
}
