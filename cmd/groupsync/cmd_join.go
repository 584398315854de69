package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DoyleJ11/groupsync/internal/config"
	"github.com/DoyleJ11/groupsync/internal/reconnect"
	"github.com/DoyleJ11/groupsync/internal/sink"
	"github.com/DoyleJ11/groupsync/internal/wire"
	"github.com/DoyleJ11/groupsync/pkg/types"
)

func newJoinCmd(cfg *config.Config, dev *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "join",
		Short: "Join one group and follow it until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.GroupID == "" {
				return errors.New("join needs --group and --token")
			}
			log, err := setup(cfg, *dev)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signalContext()
			defer stop()
			return runJoin(ctx, cfg, log)
		},
	}
}

func runJoin(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	library, err := loadLibrary(cfg.LibraryPath)
	if err != nil {
		return err
	}
	player := sink.NewVirtual(library, log)
	sess := sessionFactory(cfg, player, log)(ctx, cfg.GroupID)
	defer sess.Close()

	sub, err := sess.Subscribe(logObserver{log: log.Named("events")})
	if err != nil {
		return err
	}
	defer sub.Close()

	if cfg.Reconnect.Enabled {
		err = reconnect.NewSupervisor(sess, cfg.GroupID, cfg.Token, policyOf(cfg), log).Run(ctx)
	} else {
		if err := sess.Connect(ctx, cfg.GroupID, cfg.Token); err != nil {
			return fmt.Errorf("join %s: %w", cfg.GroupID, err)
		}
		err = sess.Wait(ctx)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// logObserver writes every notification to the log.
type logObserver struct{ log *zap.Logger }

func (o logObserver) OnGroupConnect(snap types.GroupSnapshot) {
	o.log.Info("joined group", zap.String("name", snap.Name), zap.Int("members", len(snap.Members)))
}

func (o logObserver) OnGroupUpdate(snap types.GroupSnapshot, _ wire.Message) {
	fields := []zap.Field{zap.Uint64("seq", snap.Seq), zap.Int("queue", len(snap.PreviewQueue))}
	if snap.CurrentlyPlaying != nil {
		fields = append(fields, zap.String("song_id", snap.CurrentlyPlaying.ID))
	}
	o.log.Info("group update", fields...)
}

func (o logObserver) OnNextSong(wire.Message) { o.log.Info("next song") }
func (o logObserver) OnPrevSong(wire.Message) { o.log.Info("previous song") }
func (o logObserver) OnPlay(wire.Message)     { o.log.Info("play") }
func (o logObserver) OnPause(wire.Message)    { o.log.Info("pause") }

func (o logObserver) OnTimestampUpdate(position float64, _ wire.Message) {
	o.log.Debug("timestamp", zap.Float64("position", position))
}

func (o logObserver) OnSeekTo(position float64, _ wire.Message) {
	o.log.Info("seek", zap.Float64("position", position))
}

func (o logObserver) OnDisconnect(err error) {
	if err != nil {
		o.log.Warn("disconnected", zap.Error(err))
		return
	}
	o.log.Info("disconnected")
}
