package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DoyleJ11/groupsync/internal/clock"
	"github.com/DoyleJ11/groupsync/internal/config"
	"github.com/DoyleJ11/groupsync/internal/logging"
	"github.com/DoyleJ11/groupsync/internal/reconnect"
	"github.com/DoyleJ11/groupsync/internal/session"
	"github.com/DoyleJ11/groupsync/internal/sink"
	"github.com/DoyleJ11/groupsync/internal/transport"
	"github.com/DoyleJ11/groupsync/pkg/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := newRootCmd(cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd binds flags over the env-derived config, so flags win.
func newRootCmd(cfg *config.Config) *cobra.Command {
	var dev bool
	root := &cobra.Command{
		Use:          "groupsync",
		Short:        "Headless group music sync client",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&cfg.WSBaseURL, "ws-base-url", cfg.WSBaseURL, "group service websocket base URL")
	pf.StringVar(&cfg.GroupID, "group", cfg.GroupID, "group to join")
	pf.StringVar(&cfg.Token, "token", cfg.Token, "join token for the group")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	pf.StringVar(&cfg.LibraryPath, "library", cfg.LibraryPath, "JSON song list for the virtual player")
	pf.DurationVar(&cfg.DriftThreshold, "drift-threshold", cfg.DriftThreshold, "drift tolerated before seeking")
	pf.DurationVar(&cfg.MaxNetworkDelay, "max-network-delay", cfg.MaxNetworkDelay, "clamp for estimated network delay")
	pf.DurationVar(&cfg.SinkTimeout, "sink-timeout", cfg.SinkTimeout, "bound on each playback call")
	pf.BoolVar(&cfg.Reconnect.Enabled, "reconnect", cfg.Reconnect.Enabled, "reconnect after transient drops")
	pf.IntVar(&cfg.Reconnect.MaxAttempts, "reconnect-max-attempts", cfg.Reconnect.MaxAttempts, "0 retries forever")
	pf.BoolVar(&dev, "dev", false, "human-readable logs")

	root.AddCommand(newServeCmd(cfg, &dev), newJoinCmd(cfg, &dev))
	return root
}

// setup validates cfg and builds the logger shared by every command.
func setup(cfg *config.Config, dev bool) (*zap.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return logging.New(cfg.LogLevel, dev)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func loadLibrary(path string) ([]types.Song, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read library: %w", err)
	}
	var songs []types.Song
	if err := json.Unmarshal(data, &songs); err != nil {
		return nil, fmt.Errorf("parse library %s: %w", path, err)
	}
	return songs, nil
}

func policyOf(cfg *config.Config) reconnect.Policy {
	p := reconnect.DefaultPolicy()
	p.MaxAttempts = cfg.Reconnect.MaxAttempts
	p.InitialDelay = cfg.Reconnect.InitialDelay
	p.MaxDelay = cfg.Reconnect.MaxDelay
	return p
}

// sessionFactory builds sessions that share one dialer and one player.
func sessionFactory(cfg *config.Config, player sink.Sink, log *zap.Logger) func(context.Context, string) *session.Session {
	dialer := transport.NewWSDialer(log)
	rec := clock.NewReconciler(cfg.DriftThreshold, cfg.MaxNetworkDelay)
	return func(ctx context.Context, groupID string) *session.Session {
		return session.New(ctx, session.Config{
			BaseURL:     cfg.WSBaseURL,
			Dialer:      dialer,
			Sink:        player,
			Reconciler:  rec,
			SinkTimeout: cfg.SinkTimeout,
			Log:         log.With(zap.String("group_id", groupID)),
		})
	}
}
