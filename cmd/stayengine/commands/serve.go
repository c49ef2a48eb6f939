package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"stayengine/internal/infra/fixtures"
	ginserver "stayengine/internal/infra/http/gin"
	"stayengine/internal/infra/obs"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the scheduled batch and the outbox relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	st, err := buildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			logger.Error("shutdown cleanup failed", "error", err)
		}
	}()

	if _, err := fixtures.Seed(ctx, st.listings, cfg.ListingsFixtures, logger); err != nil {
		logger.Warn("listing fixtures load failed", "error", err, "path", cfg.ListingsFixtures)
	}

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Checks:  st.checks,
		Timeout: 2 * time.Second,
	}, ginserver.Handlers{
		Booking:      ginserver.BookingHandler{Engine: st.engine},
		Availability: ginserver.AvailabilityHandler{Engine: st.engine},
		Admin:        ginserver.AdminHandler{Engine: st.engine},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "store", cfg.Store)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if worker := st.relay(cfg, logger); worker != nil {
		g.Go(func() error { return worker.Run(gctx) })
	}
	if cfg.ScheduleEnabled {
		g.Go(func() error { return schedule(gctx, st) })
	}

	err = g.Wait()
	logger.Info("HTTP server stopped")
	return err
}

// schedule runs the advance batch every ScheduleInterval until ctx ends. A
// failing run is logged and retried on the next tick.
func schedule(ctx context.Context, st *stack) error {
	ticker := time.NewTicker(cfg.ScheduleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			res, err := st.engine.AdvanceScheduledStates(ctx, now.UTC())
			if err != nil {
				logger.ErrorContext(ctx, "scheduled advance failed", "error", err)
			} else if len(res.Transitions) > 0 || len(res.Failed) > 0 {
				logger.InfoContext(ctx, "scheduled advance", "examined", res.Examined, "transitions", len(res.Transitions), "failed", len(res.Failed))
			}
			if st.purge != nil {
				if err := st.purge(ctx); err != nil {
					logger.WarnContext(ctx, "idempotency purge failed", "error", err)
				}
			}
		}
	}
}
