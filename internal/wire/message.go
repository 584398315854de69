package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/groupsync/pkg/types"
)

type Kind int

const (
	KindGroupUpdate     Kind = 0
	KindNextSong        Kind = 1
	KindPrevSong        Kind = 2
	KindPlay            Kind = 3
	KindPause           Kind = 4
	KindTimestampUpdate Kind = 5
	KindSeekTo          Kind = 6
	KindAddToQueue      Kind = 7

	// Outbound only.
	KindJoin Kind = 100

	// KindUnknown is what any discriminant we don't understand decodes to.
	KindUnknown Kind = -1
)

func (k Kind) String() string {
	switch k {
	case KindGroupUpdate:
		return "GroupUpdate"
	case KindNextSong:
		return "NextSong"
	case KindPrevSong:
		return "PrevSong"
	case KindPlay:
		return "Play"
	case KindPause:
		return "Pause"
	case KindTimestampUpdate:
		return "TimestampUpdate"
	case KindSeekTo:
		return "SeekTo"
	case KindAddToQueue:
		return "AddToQueue"
	case KindJoin:
		return "Join"
	default:
		return "Unknown"
	}
}

func inboundKind(raw int) Kind {
	k := Kind(raw)
	if k >= KindGroupUpdate && k <= KindAddToQueue {
		return k
	}
	return KindUnknown
}

// envelope is the JSON shape in both directions.
type envelope struct {
	Type   *int            `json:"type"`
	Data   json.RawMessage `json:"data,omitempty"`
	SentAt types.Millis    `json:"sentAt"`
}

// Message is one decoded inbound frame. It is never mutated after Decode.
type Message struct {
	Kind    Kind
	RawType int
	Data    json.RawMessage
	SentAt  types.Millis

	// ReceivedAt is stamped by whoever read the frame off the socket.
	ReceivedAt time.Time
}

type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %s: %v", e.Reason, e.Err)
	}
	return "decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// Decode parses one inbound frame. Unknown discriminants are not an error.
func Decode(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, &DecodeError{Reason: "bad json", Err: err}
	}
	if env.Type == nil {
		return Message{}, &DecodeError{Reason: "missing type"}
	}
	return Message{
		Kind:    inboundKind(*env.Type),
		RawType: *env.Type,
		Data:    env.Data,
		SentAt:  env.SentAt,
	}, nil
}

func (m Message) hasData() bool {
	d := bytes.TrimSpace(m.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

func (m Message) expect(k Kind) error {
	if m.Kind != k {
		return &DecodeError{Reason: fmt.Sprintf("payload for %s requested from %s", k, m.Kind)}
	}
	return nil
}

// GroupSnapshot reads a GroupUpdate payload.
func (m Message) GroupSnapshot() (types.GroupSnapshot, error) {
	if err := m.expect(KindGroupUpdate); err != nil {
		return types.GroupSnapshot{}, err
	}
	if !m.hasData() {
		return types.GroupSnapshot{}, &DecodeError{Reason: "GroupUpdate without data"}
	}
	var g types.GroupSnapshot
	if err := json.Unmarshal(m.Data, &g); err != nil {
		return types.GroupSnapshot{}, &DecodeError{Reason: "bad GroupUpdate data", Err: err}
	}
	return g, nil
}

type TimestampPayload struct {
	Timestamp float64      `json:"timestamp"`
	SentAt    types.Millis `json:"sentAt"`
}

// Timestamp reads a TimestampUpdate payload. An inner sentAt of zero falls back to the
// envelope's.
func (m Message) Timestamp() (TimestampPayload, error) {
	if err := m.expect(KindTimestampUpdate); err != nil {
		return TimestampPayload{}, err
	}
	var p struct {
		Timestamp *float64     `json:"timestamp"`
		SentAt    types.Millis `json:"sentAt"`
	}
	if !m.hasData() {
		return TimestampPayload{}, &DecodeError{Reason: "TimestampUpdate without data"}
	}
	if err := json.Unmarshal(m.Data, &p); err != nil {
		return TimestampPayload{}, &DecodeError{Reason: "bad TimestampUpdate data", Err: err}
	}
	if p.Timestamp == nil {
		return TimestampPayload{}, &DecodeError{Reason: "TimestampUpdate missing timestamp"}
	}
	out := TimestampPayload{Timestamp: *p.Timestamp, SentAt: p.SentAt}
	if out.SentAt == 0 {
		out.SentAt = m.SentAt
	}
	return out, nil
}

// Seek reads a SeekTo payload.
func (m Message) Seek() (float64, error) {
	if err := m.expect(KindSeekTo); err != nil {
		return 0, err
	}
	var p struct {
		Timestamp *float64 `json:"timestamp"`
	}
	if !m.hasData() {
		return 0, &DecodeError{Reason: "SeekTo without data"}
	}
	if err := json.Unmarshal(m.Data, &p); err != nil {
		return 0, &DecodeError{Reason: "bad SeekTo data", Err: err}
	}
	if p.Timestamp == nil {
		return 0, &DecodeError{Reason: "SeekTo missing timestamp"}
	}
	return *p.Timestamp, nil
}

// Songs reads an AddToQueue payload, either a bare array or {"songs": [...]}.
func (m Message) Songs() ([]types.Song, error) {
	if err := m.expect(KindAddToQueue); err != nil {
		return nil, err
	}
	if !m.hasData() {
		return nil, nil
	}
	var songs []types.Song
	if err := json.Unmarshal(m.Data, &songs); err == nil {
		return songs, nil
	}
	var wrapped struct {
		Songs []types.Song `json:"songs"`
	}
	if err := json.Unmarshal(m.Data, &wrapped); err != nil {
		return nil, &DecodeError{Reason: "bad AddToQueue data", Err: err}
	}
	return wrapped.Songs, nil
}

// NextSongPayload reads the optional song carried by NextSong. nil means "use whatever
// the group says is current".
func (m Message) NextSongPayload() (*types.Song, error) {
	if err := m.expect(KindNextSong); err != nil {
		return nil, err
	}
	if !m.hasData() {
		return nil, nil
	}
	var s types.Song
	if err := json.Unmarshal(m.Data, &s); err != nil {
		return nil, &DecodeError{Reason: "bad NextSong data", Err: err}
	}
	if s.ID == "" {
		return nil, nil
	}
	return &s, nil
}

type PlayPayload struct {
	Timestamp *float64    `json:"timestamp,omitempty"`
	Song      *types.Song `json:"song,omitempty"`
}

// Play reads the optional Play payload.
func (m Message) Play() (PlayPayload, error) {
	if err := m.expect(KindPlay); err != nil {
		return PlayPayload{}, err
	}
	var p PlayPayload
	if !m.hasData() {
		return p, nil
	}
	if err := json.Unmarshal(m.Data, &p); err != nil {
		return PlayPayload{}, &DecodeError{Reason: "bad Play data", Err: err}
	}
	return p, nil
}
