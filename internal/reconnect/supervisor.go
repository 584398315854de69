package reconnect

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/groupsync/internal/engine"
)

// Connector is the part of a session the supervisor drives.
type Connector interface {
	Connect(ctx context.Context, groupID, token string) error
	// Wait returns when the current connection ends, with its cause.
	Wait(ctx context.Context) error
}

// Supervisor keeps one session joined to one group, reconnecting after transient drops.
type Supervisor struct {
	conn    Connector
	groupID string
	token   string
	policy  Policy
	log     *zap.Logger

	// after is swapped in tests.
	after func(time.Duration) <-chan time.Time
}

func NewSupervisor(c Connector, groupID, token string, p Policy, log *zap.Logger) *Supervisor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Supervisor{
		conn:    c,
		groupID: groupID,
		token:   token,
		policy:  p,
		log:     log.Named("reconnect").With(zap.String("group_id", groupID)),
		after:   time.After,
	}
}

// Run connects and keeps reconnecting until the session is disconnected locally, a
// permanent error occurs, attempts run out or ctx ends. A local disconnect returns nil.
func (s *Supervisor) Run(ctx context.Context) error {
	attempt := 0
	for {
		err := s.conn.Connect(ctx, s.groupID, s.token)
		if err == nil || errors.Is(err, engine.ErrAlreadyConnected) {
			if err == nil {
				s.log.Info("joined", zap.Int("after_failures", attempt))
			}
			attempt = 0
			err = s.conn.Wait(ctx)
			if err == nil {
				s.log.Info("disconnected locally; supervisor done")
				return nil
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempt++
		if !s.policy.ShouldRetry(err, attempt) {
			s.log.Error("giving up", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		delay := s.policy.NextDelay(attempt)
		s.log.Warn("reconnecting", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.after(delay):
		}
	}
}
