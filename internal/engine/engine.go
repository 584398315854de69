package engine

import (
	"errors"

	"github.com/DoyleJ11/groupsync/internal/clock"
	"github.com/DoyleJ11/groupsync/internal/wire"
	"github.com/DoyleJ11/groupsync/pkg/types"
)

var ErrNotConnected = errors.New("not connected")
var ErrAlreadyConnected = errors.New("session already connected or connecting")
var ErrNoActiveGroup = errors.New("no active group")
var ErrNothingPlaying = errors.New("nothing playing")
var ErrStaleSnapshot = errors.New("stale group snapshot")
var ErrStaleGeneration = errors.New("event from a previous connection")

type ConnState string

const (
	Disconnected ConnState = "disconnected"
	Connecting   ConnState = "connecting"
	Connected    ConnState = "connected"
)

type State struct {
	Conn       ConnState
	GroupID    string
	Token      string
	Generation uint64

	Active *types.GroupSnapshot
	// Greeted is set once OnGroupConnect went out for the current connection.
	Greeted bool
	// Seq is the sequence number of the last accepted snapshot; it survives reconnects.
	Seq        uint64
	LastSentAt types.Millis
}

type EffectType string

const (
	FxPlaySong     EffectType = "PlaySong"
	FxPlayAt       EffectType = "PlayAt"
	FxPauseSong    EffectType = "PauseSong"
	FxStopPlayback EffectType = "StopPlayback"
	FxPrevSong     EffectType = "PrevSong"
	FxSeekTo       EffectType = "SeekTo"
	FxAddQueue     EffectType = "AddQueue"
	// FxReconcile asks the dispatcher to read the device position and seek to Offset only
	// if the drift is past the threshold.
	FxReconcile EffectType = "Reconcile"

	FxNotifyGroupConnect    EffectType = "OnGroupConnect"
	FxNotifyGroupUpdate     EffectType = "OnGroupUpdate"
	FxNotifyNextSong        EffectType = "OnNextSong"
	FxNotifyPrevSong        EffectType = "OnPrevSong"
	FxNotifyPlay            EffectType = "OnPlay"
	FxNotifyPause           EffectType = "OnPause"
	FxNotifyTimestampUpdate EffectType = "OnTimestampUpdate"
	FxNotifySeekTo          EffectType = "OnSeekTo"
	FxNotifyDisconnect      EffectType = "OnDisconnect"
)

/*
	GroupUpdate     -> [OnGroupConnect] -> PauseSong -> OnPause -> OnGroupUpdate   (paused)
	                -> [OnGroupConnect] -> [PlaySong -> PlayAt] -> OnGroupUpdate  (first snapshot, playing)
	Play            -> PlaySong -> PlayAt -> OnPlay
	Pause           -> PauseSong -> OnPause
	NextSong        -> PlaySong -> PlayAt(delay) -> OnNextSong
	PrevSong        -> PrevSong -> OnPrevSong
	TimestampUpdate -> Reconcile -> OnTimestampUpdate
	SeekTo          -> SeekTo -> OnSeekTo
	AddToQueue      -> AddQueue
	closed          -> [StopPlayback] -> OnDisconnect
*/

// Effect is one ordered side effect. The session runs them strictly in slice order.
type Effect struct {
	Type     EffectType
	Song     *types.Song
	Songs    []types.Song
	Offset   float64
	Snapshot types.GroupSnapshot
	Message  wire.Message
	Err      error
}

// Connect moves a disconnected session to Connecting and starts a new generation.
func Connect(s State, groupID, token string) (State, error) {
	if s.Conn != Disconnected {
		return s, ErrAlreadyConnected
	}
	next := s
	next.Conn = Connecting
	next.GroupID = groupID
	next.Token = token
	next.Generation++
	next.Active = nil
	next.Greeted = false
	next.LastSentAt = 0
	return next, nil
}

// Opened records that the transport for gen is up and the join frame went out.
func Opened(s State, gen uint64) (State, error) {
	if gen != s.Generation {
		return s, ErrStaleGeneration
	}
	if s.Conn != Connecting {
		return s, ErrNotConnected
	}
	next := s
	next.Conn = Connected
	return next, nil
}

// Closed drives the session to Disconnected. The bool is false when the close belongs to
// an older generation or the session is already down, in which case nothing is emitted.
func Closed(s State, gen uint64, cause error) ([]Effect, State, bool) {
	if gen != s.Generation || s.Conn == Disconnected {
		return nil, s, false
	}
	var effects []Effect
	if s.Conn == Connected {
		effects = append(effects, Effect{Type: FxStopPlayback})
	}
	effects = append(effects, Effect{Type: FxNotifyDisconnect, Err: cause})

	next := s
	next.Conn = Disconnected
	next.Active = nil
	next.Greeted = false
	next.LastSentAt = 0
	return effects, next, true
}

// Request turns a local intent into the frame to send. Local playback is never touched;
// the server's echo does that.
func Request(s State, in types.PlaybackIntent) (wire.Command, error) {
	if s.Conn != Connected {
		return wire.Command{}, ErrNotConnected
	}
	return wire.FromIntent(in)
}

// Apply folds one inbound message into the state.
func Apply(s State, msg wire.Message, rec clock.Reconciler) ([]Effect, State, error) {
	if s.Conn != Connected {
		return nil, s, ErrNotConnected
	}

	r, known := Rules[msg.Kind]
	if !known {
		// Forward-incompatible server payloads are ignored.
		return nil, s, nil
	}
	if r.NeedsGroup && s.Active == nil {
		return nil, s, ErrNoActiveGroup
	}

	switch msg.Kind {
	case wire.KindGroupUpdate:
		snap, err := msg.GroupSnapshot()
		if err != nil {
			return nil, s, err
		}
		if isStale(s, snap, msg.SentAt) {
			return nil, s, ErrStaleSnapshot
		}

		next := s
		next.Seq++
		snap.Seq = next.Seq
		next.Active = &snap
		if msg.SentAt > next.LastSentAt {
			next.LastSentAt = msg.SentAt
		}

		var effects []Effect
		if !s.Greeted {
			next.Greeted = true
			effects = append(effects, Effect{Type: FxNotifyGroupConnect, Snapshot: snap.Clone()})
		}
		switch {
		case snap.PlaybackState.Paused():
			effects = append(effects,
				Effect{Type: FxPauseSong},
				Effect{Type: FxNotifyPause, Message: msg},
			)
		case !s.Greeted && snap.CurrentlyPlaying != nil && snap.PlaybackState != nil:
			song := snap.CurrentlyPlaying.Clone()
			effects = append(effects,
				Effect{Type: FxPlaySong, Song: &song},
				Effect{Type: FxPlayAt, Offset: SnapshotPosition(snap, msg, rec)},
			)
		}
		effects = append(effects, Effect{Type: FxNotifyGroupUpdate, Snapshot: snap.Clone(), Message: msg})
		return effects, next, nil

	case wire.KindPlay:
		p, err := msg.Play()
		if err != nil {
			return nil, s, err
		}
		song := p.Song
		if song == nil {
			song = s.Active.CurrentlyPlaying
		}
		if song == nil {
			return nil, s, ErrNothingPlaying
		}
		position := 0.0
		if p.Timestamp != nil {
			position = *p.Timestamp
		} else if s.Active.PlaybackState != nil {
			position = s.Active.PlaybackState.PositionSeconds
		}
		played := song.Clone()
		return []Effect{
			{Type: FxPlaySong, Song: &played},
			{Type: FxPlayAt, Offset: rec.Correct(position, msg.SentAt, msg.ReceivedAt)},
			{Type: FxNotifyPlay, Message: msg},
		}, s, nil

	case wire.KindPause:
		return []Effect{
			{Type: FxPauseSong},
			{Type: FxNotifyPause, Message: msg},
		}, s, nil

	case wire.KindNextSong:
		payload, err := msg.NextSongPayload()
		if err != nil {
			return nil, s, err
		}
		next := s
		song := s.Active.CurrentlyPlaying
		var updated *types.GroupSnapshot
		// A late payload loses to the newer snapshot; the device follows the snapshot's song.
		if payload != nil && !isStale(s, types.GroupSnapshot{}, msg.SentAt) {
			snap := s.Active.WithCurrentSong(*payload, msg.SentAt)
			next.Seq++
			snap.Seq = next.Seq
			next.Active = &snap
			if msg.SentAt > next.LastSentAt {
				next.LastSentAt = msg.SentAt
			}
			song = snap.CurrentlyPlaying
			updated = &snap
		}
		if song == nil {
			return nil, s, ErrNothingPlaying
		}
		played := song.Clone()
		effects := []Effect{
			{Type: FxPlaySong, Song: &played},
			{Type: FxPlayAt, Offset: rec.NetworkDelay(msg.SentAt, msg.ReceivedAt).Seconds()},
			{Type: FxNotifyNextSong, Message: msg},
		}
		if updated != nil {
			effects = append(effects, Effect{Type: FxNotifyGroupUpdate, Snapshot: updated.Clone(), Message: msg})
		}
		return effects, next, nil

	case wire.KindPrevSong:
		return []Effect{
			{Type: FxPrevSong},
			{Type: FxNotifyPrevSong, Message: msg},
		}, s, nil

	case wire.KindTimestampUpdate:
		p, err := msg.Timestamp()
		if err != nil {
			return nil, s, err
		}
		target := rec.Correct(p.Timestamp, p.SentAt, msg.ReceivedAt)
		return []Effect{
			{Type: FxReconcile, Offset: target},
			{Type: FxNotifyTimestampUpdate, Offset: target, Message: msg},
		}, s, nil

	case wire.KindSeekTo:
		position, err := msg.Seek()
		if err != nil {
			return nil, s, err
		}
		target := rec.Correct(position, msg.SentAt, msg.ReceivedAt)
		return []Effect{
			{Type: FxSeekTo, Offset: target},
			{Type: FxNotifySeekTo, Offset: target, Message: msg},
		}, s, nil

	case wire.KindAddToQueue:
		songs, err := msg.Songs()
		if err != nil {
			return nil, s, err
		}
		if len(songs) == 0 {
			return nil, s, nil
		}
		return []Effect{{Type: FxAddQueue, Songs: songs}}, s, nil
	}

	return nil, s, nil
}
