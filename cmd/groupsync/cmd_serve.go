package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/groupsync/internal/config"
	"github.com/DoyleJ11/groupsync/internal/httpapi"
	"github.com/DoyleJ11/groupsync/internal/hub"
	"github.com/DoyleJ11/groupsync/internal/sink"
)

func newServeCmd(cfg *config.Config, dev *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the client with the local control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := setup(cfg, *dev)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signalContext()
			defer stop()
			return runServe(ctx, cfg, log)
		},
	}
	cmd.Flags().StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "control API address")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	library, err := loadLibrary(cfg.LibraryPath)
	if err != nil {
		return err
	}
	player := sink.NewVirtual(library, log)
	h := hub.NewHub(ctx, sessionFactory(cfg, player, log), policyOf(cfg), log)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpapi.SetupRoutes(h, player, httpapi.Options{Supervise: cfg.Reconnect.Enabled, Log: log}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		h.Shutdown()
		log.Info("stopped")
		return err
	})
	if cfg.GroupID != "" {
		g.Go(func() error {
			autoJoin(gctx, h, cfg, log)
			return nil
		})
	}
	return g.Wait()
}

// autoJoin joins the configured group on start. Failures are logged; the API stays up.
func autoJoin(ctx context.Context, h *hub.Hub, cfg *config.Config, log *zap.Logger) {
	log = log.With(zap.String("group_id", cfg.GroupID))
	e, err := h.Ensure(ctx, cfg.GroupID)
	if err != nil {
		log.Warn("auto-join failed", zap.Error(err))
		return
	}
	if cfg.Reconnect.Enabled {
		// The supervisor dials, and keeps dialing after drops.
		if _, err := h.Supervise(ctx, cfg.GroupID, cfg.Token); err != nil {
			log.Warn("auto-join failed", zap.Error(err))
		}
		return
	}
	if err := e.Session.Connect(ctx, cfg.GroupID, cfg.Token); err != nil {
		log.Warn("auto-join failed", zap.Error(err))
	}
}
