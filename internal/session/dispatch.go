package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/groupsync/internal/clock"
	"github.com/DoyleJ11/groupsync/internal/engine"
	"github.com/DoyleJ11/groupsync/internal/sink"
)

// dispatcher runs effects off the event loop, one at a time, in the order they were
// pushed. push never blocks, so a slow sink or observer can't stall the loop.
type dispatcher struct {
	sink     sink.Sink
	rec      clock.Reconciler
	observer *observerSlot
	log      *zap.Logger

	mu     sync.Mutex
	queue  []engine.Effect
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newDispatcher(s sink.Sink, rec clock.Reconciler, obs *observerSlot, log *zap.Logger) *dispatcher {
	d := &dispatcher{
		sink:     s,
		rec:      rec,
		observer: obs,
		log:      log,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) push(effects ...engine.Effect) {
	if len(effects) == 0 {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, effects...)
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// close stops accepting effects; run drains what is queued and then exits.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		closed := d.closed
		d.mu.Unlock()

		for _, e := range batch {
			d.exec(e)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-d.wake
	}
}

func (d *dispatcher) exec(e engine.Effect) {
	ctx := context.Background()
	var err error
	switch e.Type {
	case engine.FxPlaySong:
		err = d.sink.PlaySong(ctx, *e.Song)
	case engine.FxPlayAt:
		err = d.sink.PlayAt(ctx, e.Offset)
	case engine.FxPauseSong:
		err = d.sink.PauseSong(ctx)
	case engine.FxStopPlayback:
		err = d.sink.StopPlayback(ctx)
	case engine.FxPrevSong:
		err = d.sink.PrevSong(ctx)
	case engine.FxSeekTo:
		err = d.sink.SeekTo(ctx, e.Offset)
	case engine.FxAddQueue:
		err = d.sink.AddQueue(ctx, e.Songs)
	case engine.FxReconcile:
		err = d.reconcile(ctx, e)
	default:
		d.notify(e)
		return
	}
	if err != nil {
		// Already logged by the guard; the session carries on regardless.
		d.log.Debug("effect failed", zap.String("effect", string(e.Type)), zap.Error(err))
	}
}

func (d *dispatcher) reconcile(ctx context.Context, e engine.Effect) error {
	local, err := d.sink.GetSongTimestamp(ctx)
	if err != nil {
		if errors.Is(err, sink.ErrNoSong) {
			return nil
		}
		return err
	}
	target := e.Offset + d.rec.Elapsed(e.Message.ReceivedAt).Seconds()
	if !d.rec.ShouldSeek(local, target) {
		return nil
	}
	d.log.Debug("drift correction", zap.Float64("local", local), zap.Float64("target", target))
	return d.sink.SeekTo(ctx, target)
}

func (d *dispatcher) notify(e engine.Effect) {
	obs := d.observer.current()
	if obs == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("observer panicked", zap.String("effect", string(e.Type)), zap.Any("panic", r))
		}
	}()
	switch e.Type {
	case engine.FxNotifyGroupConnect:
		obs.OnGroupConnect(e.Snapshot)
	case engine.FxNotifyGroupUpdate:
		obs.OnGroupUpdate(e.Snapshot, e.Message)
	case engine.FxNotifyNextSong:
		obs.OnNextSong(e.Message)
	case engine.FxNotifyPrevSong:
		obs.OnPrevSong(e.Message)
	case engine.FxNotifyPlay:
		obs.OnPlay(e.Message)
	case engine.FxNotifyPause:
		obs.OnPause(e.Message)
	case engine.FxNotifyTimestampUpdate:
		obs.OnTimestampUpdate(e.Offset, e.Message)
	case engine.FxNotifySeekTo:
		obs.OnSeekTo(e.Offset, e.Message)
	case engine.FxNotifyDisconnect:
		obs.OnDisconnect(e.Err)
	default:
		d.log.Warn("unhandled effect", zap.String("effect", string(e.Type)))
	}
}
