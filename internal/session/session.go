package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/groupsync/internal/clock"
	"github.com/DoyleJ11/groupsync/internal/engine"
	"github.com/DoyleJ11/groupsync/internal/sink"
	"github.com/DoyleJ11/groupsync/internal/transport"
	"github.com/DoyleJ11/groupsync/internal/wire"
	"github.com/DoyleJ11/groupsync/pkg/types"
)

var ErrClosed = errors.New("session closed")

type Msg interface{ isSessionMsg() }

type connectReq struct {
	ctx     context.Context
	GroupID string
	Token   string
	Reply   chan error
}

type dialResult struct {
	gen  uint64
	conn transport.Conn
	err  error
}

type frameIn struct {
	gen   uint64
	frame transport.Frame
}

type connClosed struct {
	gen uint64
	err error
}

type request struct {
	Intent types.PlaybackIntent
	Reply  chan error
}

type disconnectReq struct {
	Reply chan struct{}
}

type getState struct {
	Reply chan View
}

type waitReq struct {
	Reply chan error
}

type shutdown struct {
	Reply chan struct{}
}

func (connectReq) isSessionMsg()    {}
func (dialResult) isSessionMsg()    {}
func (frameIn) isSessionMsg()       {}
func (connClosed) isSessionMsg()    {}
func (request) isSessionMsg()       {}
func (disconnectReq) isSessionMsg() {}
func (getState) isSessionMsg()      {}
func (waitReq) isSessionMsg()       {}
func (shutdown) isSessionMsg()      {}

// View is a copy of the loop's state for callers outside it.
type View struct {
	Conn       engine.ConnState
	GroupID    string
	Generation uint64
	Snapshot   *types.GroupSnapshot
}

type Config struct {
	BaseURL    string
	ClientID   string // generated when empty
	Dialer     transport.Dialer
	Sink       sink.Sink
	Reconciler clock.Reconciler
	// SinkTimeout bounds each playback call; see sink.Guard.
	SinkTimeout time.Duration
	InboxSize   int
	Log         *zap.Logger
}

// Session is one membership in one group. All state lives in loop; everything else
// talks to it through the inbox.
type Session struct {
	inbox    chan Msg
	state    engine.State
	conn     transport.Conn
	pending  chan error // reply for the Connect in flight
	waiters  []chan error
	cause    error // why the last connection ended
	cfg      Config
	rec      clock.Reconciler
	observer *observerSlot
	disp     *dispatcher
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	stopped  chan struct{}
}

func New(parent context.Context, cfg Config) *Session {
	ctx, cancel := context.WithCancel(parent)
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("session")
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 64
	}
	if cfg.Dialer == nil {
		cfg.Dialer = transport.NewWSDialer(log)
	}
	if cfg.Sink == nil {
		log.Warn("no sink configured, playing on a virtual device")
		cfg.Sink = sink.NewVirtual(nil, log)
	}
	rec := cfg.Reconciler
	if rec.Now == nil {
		rec = clock.NewReconciler(rec.DriftThreshold, rec.MaxDelay)
	}

	obs := &observerSlot{}
	s := &Session{
		inbox:    make(chan Msg, cfg.InboxSize),
		state:    engine.NewState(),
		cfg:      cfg,
		rec:      rec,
		observer: obs,
		disp:     newDispatcher(sink.NewGuard(cfg.Sink, cfg.SinkTimeout, log), rec, obs, log),
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		stopped:  make(chan struct{}),
	}
	go s.loop()
	return s
}

// Subscribe registers the single observer. Release it with Subscription.Close.
func (s *Session) Subscribe(obs Observer) (*Subscription, error) {
	return s.observer.acquire(obs)
}

func (s *Session) ClientID() string { return s.cfg.ClientID }

// send posts m to the loop unless the session is gone.
func (s *Session) send(ctx context.Context, m Msg) error {
	select {
	case s.inbox <- m:
		return nil
	case <-s.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, s *Session, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-s.stopped:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Connect joins groupID and returns once the join frame is out, or with the reason the
// connection could not be made. Cancelling ctx abandons the dial.
func (s *Session) Connect(ctx context.Context, groupID, token string) error {
	reply := make(chan error, 1)
	if err := s.send(ctx, connectReq{ctx: ctx, GroupID: groupID, Token: token, Reply: reply}); err != nil {
		return err
	}
	err, waitErr := await(ctx, s, reply)
	if waitErr != nil {
		return waitErr
	}
	return err
}

// Disconnect tears the connection down. It is a no-op when already disconnected.
func (s *Session) Disconnect(ctx context.Context) error {
	reply := make(chan struct{}, 1)
	if err := s.send(ctx, disconnectReq{Reply: reply}); err != nil {
		return err
	}
	_, err := await(ctx, s, reply)
	return err
}

// Request asks the server for a playback change. Local playback only moves when the
// server echoes it back.
func (s *Session) Request(ctx context.Context, intent types.PlaybackIntent) error {
	if intent.IssuedAt.IsZero() {
		intent.IssuedAt = time.Now()
	}
	reply := make(chan error, 1)
	if err := s.send(ctx, request{Intent: intent, Reply: reply}); err != nil {
		return err
	}
	err, waitErr := await(ctx, s, reply)
	if waitErr != nil {
		return waitErr
	}
	return err
}

func (s *Session) RequestPlay(ctx context.Context) error {
	return s.Request(ctx, types.PlaybackIntent{Action: types.IntentPlay})
}

func (s *Session) RequestPause(ctx context.Context) error {
	return s.Request(ctx, types.PlaybackIntent{Action: types.IntentPause})
}

func (s *Session) RequestNext(ctx context.Context) error {
	return s.Request(ctx, types.PlaybackIntent{Action: types.IntentNext})
}

func (s *Session) RequestPrev(ctx context.Context) error {
	return s.Request(ctx, types.PlaybackIntent{Action: types.IntentPrev})
}

func (s *Session) RequestSeek(ctx context.Context, offset float64) error {
	return s.Request(ctx, types.PlaybackIntent{Action: types.IntentSeek, Offset: offset})
}

func (s *Session) RequestEnqueue(ctx context.Context, songs []types.Song) error {
	return s.Request(ctx, types.PlaybackIntent{Action: types.IntentEnqueue, Songs: songs})
}

func (s *Session) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := s.send(ctx, getState{Reply: reply}); err != nil {
		return View{}, err
	}
	return await(ctx, s, reply)
}

// Wait blocks until the current connection ends and returns its cause: nil after a local
// Disconnect. It returns at once when nothing is connected.
func (s *Session) Wait(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := s.send(ctx, waitReq{Reply: reply}); err != nil {
		return err
	}
	err, waitErr := await(ctx, s, reply)
	if waitErr != nil {
		return waitErr
	}
	return err
}

// Snapshot returns a copy of the active group, if there is one.
func (s *Session) Snapshot(ctx context.Context) (types.GroupSnapshot, bool, error) {
	v, err := s.State(ctx)
	if err != nil || v.Snapshot == nil {
		return types.GroupSnapshot{}, false, err
	}
	return *v.Snapshot, true, nil
}

// Close disconnects, stops the loop and waits for queued notifications to be delivered.
func (s *Session) Close() {
	reply := make(chan struct{}, 1)
	select {
	case s.inbox <- shutdown{Reply: reply}:
		<-s.stopped
	case <-s.stopped:
	}
	<-s.disp.done
}

func (s *Session) loop() {
	defer close(s.stopped)
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case connectReq:
				s.handleConnect(msg)

			case dialResult:
				s.handleDial(msg)

			case frameIn:
				s.handleFrame(msg)

			case connClosed:
				s.teardown(msg.gen, msg.err)

			case request:
				msg.Reply <- s.handleRequest(msg.Intent)

			case disconnectReq:
				s.teardown(s.state.Generation, nil)
				msg.Reply <- struct{}{}

			case getState:
				// Copy out; never hand loop-owned memory to a caller.
				v := View{Conn: s.state.Conn, GroupID: s.state.GroupID, Generation: s.state.Generation}
				if s.state.Active != nil {
					snap := s.state.Active.Clone()
					v.Snapshot = &snap
				}
				msg.Reply <- v

			case waitReq:
				if s.state.Conn == engine.Disconnected {
					msg.Reply <- s.cause
				} else {
					s.waiters = append(s.waiters, msg.Reply)
				}

			case shutdown:
				s.shutdown()
				msg.Reply <- struct{}{}
				return
			}
		}
	}
}

func (s *Session) handleConnect(msg connectReq) {
	next, err := engine.Connect(s.state, msg.GroupID, msg.Token)
	if err != nil {
		msg.Reply <- err
		return
	}
	url, err := transport.BuildURL(s.cfg.BaseURL, msg.GroupID, msg.Token)
	if err != nil {
		msg.Reply <- err
		return
	}
	s.state = next
	s.pending = msg.Reply
	gen := next.Generation
	s.log.Info("connecting", zap.String("group_id", msg.GroupID), zap.Uint64("gen", gen))

	// Dialing blocks; it must not happen on the loop.
	go func() {
		conn, err := s.cfg.Dialer.Dial(msg.ctx, url)
		select {
		case s.inbox <- dialResult{gen: gen, conn: conn, err: err}:
		case <-s.ctx.Done():
			if conn != nil {
				_ = conn.Close()
			}
		}
	}()
}

func (s *Session) handleDial(msg dialResult) {
	if msg.gen != s.state.Generation || s.state.Conn != engine.Connecting {
		// A Disconnect overtook this dial.
		if msg.conn != nil {
			_ = msg.conn.Close()
		}
		return
	}
	if msg.err != nil {
		s.log.Warn("connect failed", zap.String("group_id", s.state.GroupID), zap.Error(msg.err))
		s.teardown(msg.gen, msg.err)
		return
	}

	join, err := wire.Encode(wire.Join(s.state.GroupID, s.cfg.ClientID), time.Now())
	if err == nil {
		err = msg.conn.Send(join)
	}
	if err != nil {
		_ = msg.conn.Close()
		s.teardown(msg.gen, &transport.Error{Op: "join", Err: err})
		return
	}

	next, err := engine.Opened(s.state, msg.gen)
	if err != nil {
		_ = msg.conn.Close()
		return
	}
	s.state = next
	s.conn = msg.conn
	s.resolvePending(nil)
	s.log.Info("connected", zap.String("group_id", s.state.GroupID), zap.Uint64("gen", msg.gen))

	go s.pump(msg.gen, msg.conn)
}

// pump forwards frames into the inbox in arrival order, then reports how the
// connection ended.
func (s *Session) pump(gen uint64, conn transport.Conn) {
	for f := range conn.Frames() {
		select {
		case s.inbox <- frameIn{gen: gen, frame: f}:
		case <-s.ctx.Done():
			return
		}
	}
	select {
	case s.inbox <- connClosed{gen: gen, err: conn.Err()}:
	case <-s.ctx.Done():
	}
}

func (s *Session) handleFrame(msg frameIn) {
	if msg.gen != s.state.Generation {
		return
	}
	m, err := wire.Decode(msg.frame.Data)
	if err != nil {
		s.log.Warn("dropping frame", zap.String("group_id", s.state.GroupID), zap.Error(err))
		return
	}
	m.ReceivedAt = msg.frame.ReceivedAt
	if m.Kind == wire.KindUnknown {
		s.log.Debug("ignoring unknown message", zap.Int("type", m.RawType))
		return
	}

	effects, next, err := engine.Apply(s.state, m, s.rec)
	if err != nil {
		s.log.Warn("dropping event",
			zap.String("group_id", s.state.GroupID),
			zap.Stringer("kind", m.Kind),
			zap.Error(err))
		return
	}
	s.state = next
	s.disp.push(effects...)
}

func (s *Session) handleRequest(intent types.PlaybackIntent) error {
	cmd, err := engine.Request(s.state, intent)
	if err != nil {
		return err
	}
	raw, err := wire.Encode(cmd, intent.IssuedAt)
	if err != nil {
		return err
	}
	if err := s.conn.Send(raw); err != nil {
		s.log.Warn("send failed", zap.Stringer("kind", cmd.Kind), zap.Error(err))
		return err
	}
	return nil
}

// teardown moves generation gen to Disconnected. Repeated or stale calls do nothing,
// so OnDisconnect fires once per connection.
func (s *Session) teardown(gen uint64, cause error) {
	if errors.Is(cause, transport.ErrPolicyClose) && !s.state.Greeted {
		cause = fmt.Errorf("%w: %w", transport.ErrJoinRejected, cause)
	}
	effects, next, ok := engine.Closed(s.state, gen, cause)
	if !ok {
		return
	}
	s.state = next
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	if cause == nil {
		s.log.Info("disconnected", zap.String("group_id", next.GroupID))
	} else {
		s.log.Warn("disconnected", zap.String("group_id", next.GroupID), zap.Error(cause))
	}
	s.disp.push(effects...)
	s.resolvePending(orDisconnected(cause))

	s.cause = cause
	for _, w := range s.waiters {
		w <- cause
	}
	s.waiters = nil
}

func (s *Session) resolvePending(err error) {
	if s.pending == nil {
		return
	}
	s.pending <- err
	s.pending = nil
}

func orDisconnected(err error) error {
	if err == nil {
		return engine.ErrNotConnected
	}
	return err
}

func (s *Session) shutdown() {
	s.teardown(s.state.Generation, nil)
	s.cancel()
	s.disp.close()
}
