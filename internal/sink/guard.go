package sink

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/groupsync/pkg/types"
)

const DefaultTimeout = 5 * time.Second

// Guard bounds every call to the wrapped Sink with a timeout and turns failures into
// *Error. Calls reach the device one at a time. A call that outlives the timeout keeps the
// device until it returns; callers queued behind it fail with ErrBusy when their own
// timeout runs out.
type Guard struct {
	inner   Sink
	timeout time.Duration
	log     *zap.Logger
	busy    chan struct{}
}

func NewGuard(inner Sink, timeout time.Duration, log *zap.Logger) *Guard {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{inner: inner, timeout: timeout, log: log.Named("sink"), busy: make(chan struct{}, 1)}
}

type result[T any] struct {
	v   T
	err error
}

func call[T any](g *Guard, parent context.Context, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(parent, g.timeout)
	defer cancel()

	var zero T
	select {
	case g.busy <- struct{}{}:
	case <-ctx.Done():
		g.log.Warn("sink busy", zap.String("op", op), zap.Duration("timeout", g.timeout))
		return zero, &Error{Op: op, Err: fmt.Errorf("%w: %w", ErrBusy, ctx.Err())}
	}

	done := make(chan result[T], 1)
	go func() {
		defer func() { <-g.busy }()
		v, err := fn(ctx)
		done <- result[T]{v: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			err := &Error{Op: op, Err: r.err}
			g.log.Warn("sink call failed", zap.String("op", op), zap.Error(r.err))
			return zero, err
		}
		return r.v, nil
	case <-ctx.Done():
		err := &Error{Op: op, Err: ctx.Err()}
		g.log.Warn("sink call abandoned", zap.String("op", op), zap.Duration("timeout", g.timeout), zap.Error(ctx.Err()))
		return zero, err
	}
}

func do(g *Guard, ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := call(g, ctx, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (g *Guard) PlaySong(ctx context.Context, song types.Song) error {
	return do(g, ctx, "playSong", func(ctx context.Context) error { return g.inner.PlaySong(ctx, song) })
}

func (g *Guard) PlayAt(ctx context.Context, offset float64) error {
	return do(g, ctx, "playAt", func(ctx context.Context) error { return g.inner.PlayAt(ctx, offset) })
}

func (g *Guard) PauseSong(ctx context.Context) error {
	return do(g, ctx, "pauseSong", g.inner.PauseSong)
}

func (g *Guard) StopPlayback(ctx context.Context) error {
	return do(g, ctx, "stopPlayback", g.inner.StopPlayback)
}

func (g *Guard) NextSong(ctx context.Context) error {
	return do(g, ctx, "nextSong", g.inner.NextSong)
}

func (g *Guard) PrevSong(ctx context.Context) error {
	return do(g, ctx, "prevSong", g.inner.PrevSong)
}

func (g *Guard) SeekTo(ctx context.Context, offset float64) error {
	return do(g, ctx, "seekTo", func(ctx context.Context) error { return g.inner.SeekTo(ctx, offset) })
}

func (g *Guard) AddQueue(ctx context.Context, songs []types.Song) error {
	return do(g, ctx, "addQueue", func(ctx context.Context) error { return g.inner.AddQueue(ctx, songs) })
}

func (g *Guard) GetSongTimestamp(ctx context.Context) (float64, error) {
	return call(g, ctx, "getSongTimestamp", g.inner.GetSongTimestamp)
}

func (g *Guard) SearchFor(ctx context.Context, query string) ([]types.Song, error) {
	return call(g, ctx, "searchFor", func(ctx context.Context) ([]types.Song, error) {
		return g.inner.SearchFor(ctx, query)
	})
}

func (g *Guard) GetMostRecentSong(ctx context.Context) (*types.Song, error) {
	return call(g, ctx, "getMostRecentSong", g.inner.GetMostRecentSong)
}

var _ Sink = (*Guard)(nil)
