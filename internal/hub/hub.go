package hub

import (
	"context"
	"errors"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/groupsync/internal/feed"
	"github.com/DoyleJ11/groupsync/internal/reconnect"
	"github.com/DoyleJ11/groupsync/internal/session"
)

var ErrClosed = errors.New("hub closed")

// Factory builds the session for one group.
type Factory func(ctx context.Context, groupID string) *session.Session

// Entry is one joined group: its session and the feed subscribed to it.
type Entry struct {
	GroupID string
	Session *session.Session
	Feed    *feed.Feed

	sub     *session.Subscription
	stopSup context.CancelFunc
}

type HubMsg interface{ isHubMsg() }

type EnsureSession struct {
	GroupID string
	Reply   chan *Entry
}

type GetSession struct {
	GroupID string
	Reply   chan *Entry // nil when unknown
}

type RemoveSession struct {
	GroupID string
	Reply   chan struct{} // answered once the session is closed
}

// Supervise keeps GroupID connected with Token, replacing any earlier supervisor.
type Supervise struct {
	GroupID string
	Token   string
	Reply   chan bool // false when the group is unknown
}

type ListSessions struct {
	Reply chan []string
}

type ShutdownHub struct {
	Reply chan struct{}
}

func (EnsureSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (RemoveSession) isHubMsg() {}
func (Supervise) isHubMsg()     {}
func (ListSessions) isHubMsg()  {}
func (ShutdownHub) isHubMsg()   {}

type Hub struct {
	inbox      chan HubMsg
	sessions   map[string]*Entry
	newSession Factory
	policy     reconnect.Policy
	log        *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	stopped    chan struct{}
}

func NewHub(parent context.Context, newSession Factory, policy reconnect.Policy, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		inbox:      make(chan HubMsg, 64),
		sessions:   make(map[string]*Entry),
		newSession: newSession,
		policy:     policy,
		log:        log.Named("hub"),
		ctx:        ctx,
		cancel:     cancel,
		stopped:    make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once the hub has shut down and closed every session.
func (h *Hub) Done() <-chan struct{} { return h.stopped }

func ask[T any](ctx context.Context, h *Hub, m HubMsg, reply <-chan T) (T, error) {
	var zero T
	select {
	case h.inbox <- m:
	case <-h.stopped:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-h.stopped:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Ensure returns the entry for groupID, creating its session on first use.
func (h *Hub) Ensure(ctx context.Context, groupID string) (*Entry, error) {
	reply := make(chan *Entry, 1)
	return ask(ctx, h, EnsureSession{GroupID: groupID, Reply: reply}, reply)
}

func (h *Hub) Get(ctx context.Context, groupID string) (*Entry, error) {
	reply := make(chan *Entry, 1)
	return ask(ctx, h, GetSession{GroupID: groupID, Reply: reply}, reply)
}

func (h *Hub) Remove(ctx context.Context, groupID string) error {
	reply := make(chan struct{}, 1)
	_, err := ask(ctx, h, RemoveSession{GroupID: groupID, Reply: reply}, reply)
	return err
}

func (h *Hub) Supervise(ctx context.Context, groupID, token string) (bool, error) {
	reply := make(chan bool, 1)
	return ask(ctx, h, Supervise{GroupID: groupID, Token: token, Reply: reply}, reply)
}

func (h *Hub) List(ctx context.Context) ([]string, error) {
	reply := make(chan []string, 1)
	return ask(ctx, h, ListSessions{Reply: reply}, reply)
}

// Shutdown closes every session and stops the hub.
func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{Reply: make(chan struct{}, 1)}:
	case <-h.stopped:
	}
	<-h.stopped
}

func (h *Hub) loop() {
	defer close(h.stopped)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureSession:
				if e := h.sessions[msg.GroupID]; e != nil {
					msg.Reply <- e
					break
				}
				e := h.create(msg.GroupID)
				h.sessions[msg.GroupID] = e
				msg.Reply <- e

			case GetSession:
				msg.Reply <- h.sessions[msg.GroupID] // May be nil

			case RemoveSession:
				e := h.sessions[msg.GroupID]
				delete(h.sessions, msg.GroupID)
				if e == nil {
					msg.Reply <- struct{}{}
					break
				}
				// Close waits for queued notifications; keep the hub responsive meanwhile.
				go func() {
					h.close(e)
					msg.Reply <- struct{}{}
				}()

			case Supervise:
				e := h.sessions[msg.GroupID]
				if e == nil {
					msg.Reply <- false
					break
				}
				h.supervise(e, msg.Token)
				msg.Reply <- true

			case ListSessions:
				ids := make([]string, 0, len(h.sessions))
				for id := range h.sessions {
					ids = append(ids, id)
				}
				slices.Sort(ids)
				msg.Reply <- ids

			case ShutdownHub:
				h.shutdown()
				msg.Reply <- struct{}{}
				return
			}
		}
	}
}

func (h *Hub) create(groupID string) *Entry {
	sess := h.newSession(h.ctx, groupID)
	f := feed.New(h.ctx, h.log)
	e := &Entry{GroupID: groupID, Session: sess, Feed: f}
	sub, err := sess.Subscribe(f)
	if err != nil {
		// The factory already attached an observer; the feed stays silent.
		h.log.Warn("feed not subscribed", zap.String("group_id", groupID), zap.Error(err))
	}
	e.sub = sub
	h.log.Info("session created", zap.String("group_id", groupID))
	return e
}

func (h *Hub) supervise(e *Entry, token string) {
	if e.stopSup != nil {
		e.stopSup()
	}
	ctx, cancel := context.WithCancel(h.ctx)
	e.stopSup = cancel
	sup := reconnect.NewSupervisor(e.Session, e.GroupID, token, h.policy, h.log)
	go func() {
		if err := sup.Run(ctx); err != nil && ctx.Err() == nil {
			h.log.Warn("supervisor stopped", zap.String("group_id", e.GroupID), zap.Error(err))
		}
	}()
}

func (h *Hub) close(e *Entry) {
	if e.stopSup != nil {
		e.stopSup()
	}
	e.Session.Close()
	if e.sub != nil {
		e.sub.Close()
	}
	e.Feed.Close()
	h.log.Info("session removed", zap.String("group_id", e.GroupID))
}

func (h *Hub) shutdown() {
	var g errgroup.Group
	for id, e := range h.sessions {
		g.Go(func() error {
			h.close(e)
			return nil
		})
		delete(h.sessions, id)
	}
	_ = g.Wait()
	h.cancel()
}
