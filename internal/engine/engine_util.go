package engine

import (
	"github.com/DoyleJ11/groupsync/internal/clock"
	"github.com/DoyleJ11/groupsync/internal/wire"
	"github.com/DoyleJ11/groupsync/pkg/types"
)

func NewState() State {
	return State{Conn: Disconnected}
}

func ContainsEffect(effects []Effect, t EffectType) bool {
	for _, e := range effects {
		if e.Type == t {
			return true
		}
	}
	return false
}

// IndexOf returns the position of the first effect of type t, or -1.
func IndexOf(effects []Effect, t EffectType) int {
	for i, e := range effects {
		if e.Type == t {
			return i
		}
	}
	return -1
}

// isStale decides whether snap loses to what we already hold. A server version wins when
// both sides carry one; otherwise the older sentAt loses.
func isStale(s State, snap types.GroupSnapshot, sentAt types.Millis) bool {
	if s.Active != nil && snap.Version > 0 && s.Active.Version > 0 {
		return snap.Version <= s.Active.Version
	}
	return sentAt != 0 && s.LastSentAt != 0 && sentAt < s.LastSentAt
}

// SnapshotPosition is where playback should be for a snapshot taken at asOf, sent at
// msg.SentAt and received at msg.ReceivedAt. Time between asOf and sentAt is elapsed
// playback on the server, not network delay, so it is not clamped.
func SnapshotPosition(snap types.GroupSnapshot, msg wire.Message, rec clock.Reconciler) float64 {
	if snap.PlaybackState == nil {
		return 0
	}
	ps := snap.PlaybackState
	position := rec.Correct(ps.PositionSeconds, msg.SentAt, msg.ReceivedAt)
	if ps.AsOf != 0 && msg.SentAt != 0 && ps.AsOf < msg.SentAt {
		position += msg.SentAt.Time().Sub(ps.AsOf.Time()).Seconds()
	}
	return position
}
