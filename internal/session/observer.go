package session

import (
	"errors"
	"sync"

	"github.com/DoyleJ11/groupsync/internal/wire"
	"github.com/DoyleJ11/groupsync/pkg/types"
)

var ErrObserverRegistered = errors.New("an observer is already subscribed")

// Observer receives session notifications, one at a time and in the order the session
// produced them. Snapshots are private copies.
type Observer interface {
	OnGroupConnect(snap types.GroupSnapshot)
	OnGroupUpdate(snap types.GroupSnapshot, msg wire.Message)
	OnNextSong(msg wire.Message)
	OnPrevSong(msg wire.Message)
	OnPlay(msg wire.Message)
	OnPause(msg wire.Message)
	OnTimestampUpdate(position float64, msg wire.Message)
	OnSeekTo(position float64, msg wire.Message)
	// OnDisconnect fires once per connection. err is nil after a local Disconnect, wraps
	// transport.ErrJoinRejected when the server refused us, and is a *transport.Error
	// otherwise.
	OnDisconnect(err error)
}

// Subscription holds the observer slot until Close.
type Subscription struct {
	slot *observerSlot
	id   uint64
	once sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(func() { s.slot.release(s.id) })
}

type observerSlot struct {
	mu     sync.Mutex
	nextID uint64
	id     uint64
	obs    Observer
}

func (o *observerSlot) acquire(obs Observer) (*Subscription, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.obs != nil {
		return nil, ErrObserverRegistered
	}
	o.nextID++
	o.id = o.nextID
	o.obs = obs
	return &Subscription{slot: o, id: o.id}, nil
}

func (o *observerSlot) release(id uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.id == id {
		o.obs = nil
		o.id = 0
	}
}

func (o *observerSlot) current() Observer {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.obs
}
