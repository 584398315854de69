package feed

import (
	"context"

	"go.uber.org/zap"

	itypes "github.com/DoyleJ11/groupsync/internal/types"
	"github.com/DoyleJ11/groupsync/internal/wire"
	"github.com/DoyleJ11/groupsync/pkg/types"
)

type Msg interface{ isFeedMsg() }

type Join struct {
	ClientID string
	Outbox   chan itypes.ServerMessage // where this listener wants its events
}

func (Join) isFeedMsg() {}

type Leave struct{ ClientID string }

func (Leave) isFeedMsg() {}

type Publish struct {
	Event itypes.ServerMessage
}

func (Publish) isFeedMsg() {}

type Shutdown struct{}

func (Shutdown) isFeedMsg() {}

type GetView struct {
	Reply chan View
}

func (GetView) isFeedMsg() {}

type View struct {
	Published  uint64
	NumClients int
	Latest     *types.GroupSnapshot
}

// Feed fans session notifications out to local listeners. It is a session.Observer.
type Feed struct {
	inbox     chan Msg
	latest    *types.GroupSnapshot
	published uint64
	clients   map[string]chan itypes.ServerMessage
	log       *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

func New(parent context.Context, log *zap.Logger) *Feed {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}
	f := &Feed{
		inbox:   make(chan Msg, 64),
		clients: make(map[string]chan itypes.ServerMessage),
		log:     log.Named("feed"),
		ctx:     ctx,
		cancel:  cancel,
	}
	go f.loop()
	return f
}

// Inbox is exposed so the websocket layer and tests can talk to the feed.
func (f *Feed) Inbox() chan<- Msg { return f.inbox }

// Done is closed once the feed has stopped taking messages.
func (f *Feed) Done() <-chan struct{} { return f.ctx.Done() }

// Close stops the feed and closes every listener outbox. It never blocks.
func (f *Feed) Close() { f.cancel() }

func (f *Feed) loop() {
	for {
		select {
		case <-f.ctx.Done():
			f.shutdown()
			return

		case m := <-f.inbox:
			switch msg := m.(type) {
			case Join:
				f.clients[msg.ClientID] = msg.Outbox
				// Late joiners start from the current group.
				if f.latest != nil {
					snap := f.latest.Clone()
					f.deliver(msg.ClientID, msg.Outbox, itypes.ServerMessage{
						Type: itypes.EventSnapshot, Seq: snap.Seq, Snapshot: &snap,
					})
				}

			case Leave:
				delete(f.clients, msg.ClientID)

			case Publish:
				switch msg.Event.Type {
				case itypes.EventGroupConnect, itypes.EventGroupUpdate:
					f.latest = msg.Event.Snapshot
				case itypes.EventDisconnect:
					f.latest = nil
				}
				f.published++
				f.broadcast(msg.Event)

			case GetView:
				v := View{Published: f.published, NumClients: len(f.clients)}
				if f.latest != nil {
					snap := f.latest.Clone()
					v.Latest = &snap
				}
				msg.Reply <- v

			case Shutdown:
				f.shutdown()
				return
			}
		}
	}
}

func (f *Feed) shutdown() {
	for id, ch := range f.clients {
		close(ch)
		delete(f.clients, id)
	}
	f.cancel()
}

func (f *Feed) broadcast(ev itypes.ServerMessage) {
	for id, ch := range f.clients {
		f.deliver(id, ch, ev)
	}
}

// deliver drops listeners that fall behind.
func (f *Feed) deliver(id string, ch chan itypes.ServerMessage, ev itypes.ServerMessage) {
	if ev.Snapshot != nil {
		snap := ev.Snapshot.Clone()
		ev.Snapshot = &snap
	}
	select {
	case ch <- ev:
	default:
		f.log.Warn("dropping slow listener", zap.String("client_id", id))
		close(ch)
		delete(f.clients, id)
	}
}

func (f *Feed) publish(ev itypes.ServerMessage) {
	select {
	case f.inbox <- Publish{Event: ev}:
	case <-f.ctx.Done():
	}
}

func (f *Feed) OnGroupConnect(snap types.GroupSnapshot) {
	f.publish(itypes.ServerMessage{Type: itypes.EventGroupConnect, Seq: snap.Seq, Snapshot: &snap})
}

func (f *Feed) OnGroupUpdate(snap types.GroupSnapshot, msg wire.Message) {
	f.publish(itypes.ServerMessage{Type: itypes.EventGroupUpdate, Seq: snap.Seq, Snapshot: &snap, SentAt: msg.SentAt})
}

func (f *Feed) OnNextSong(msg wire.Message) {
	f.publish(itypes.ServerMessage{Type: itypes.EventNextSong, SentAt: msg.SentAt})
}

func (f *Feed) OnPrevSong(msg wire.Message) {
	f.publish(itypes.ServerMessage{Type: itypes.EventPrevSong, SentAt: msg.SentAt})
}

func (f *Feed) OnPlay(msg wire.Message) {
	f.publish(itypes.ServerMessage{Type: itypes.EventPlay, SentAt: msg.SentAt})
}

func (f *Feed) OnPause(msg wire.Message) {
	f.publish(itypes.ServerMessage{Type: itypes.EventPause, SentAt: msg.SentAt})
}

func (f *Feed) OnTimestampUpdate(position float64, msg wire.Message) {
	f.publish(itypes.ServerMessage{Type: itypes.EventTimestampUpdate, Position: &position, SentAt: msg.SentAt})
}

func (f *Feed) OnSeekTo(position float64, msg wire.Message) {
	f.publish(itypes.ServerMessage{Type: itypes.EventSeekTo, Position: &position, SentAt: msg.SentAt})
}

func (f *Feed) OnDisconnect(err error) {
	ev := itypes.ServerMessage{Type: itypes.EventDisconnect}
	if err != nil {
		ev.Error = err.Error()
	}
	f.publish(ev)
}
