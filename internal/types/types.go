package types

import "github.com/DoyleJ11/groupsync/pkg/types"

// ClientMessage is what a local UI sends over the events socket.
type ClientMessage struct {
	Type   string       `json:"type"` // "play" | "pause" | "next" | "prev" | "seek" | "enqueue"
	Offset float64      `json:"offset,omitempty"`
	Songs  []types.Song `json:"songs,omitempty"`
}

// Event types pushed to local listeners.
const (
	EventSnapshot        = "snapshot" // current group, sent on join
	EventGroupConnect    = "groupConnect"
	EventGroupUpdate     = "groupUpdate"
	EventNextSong        = "nextSong"
	EventPrevSong        = "prevSong"
	EventPlay            = "play"
	EventPause           = "pause"
	EventTimestampUpdate = "timestampUpdate"
	EventSeekTo          = "seekTo"
	EventDisconnect      = "disconnect"
	EventError           = "error"
)

type ServerMessage struct {
	Type     string               `json:"type"`
	Seq      uint64               `json:"seq,omitempty"`
	Snapshot *types.GroupSnapshot `json:"snapshot,omitempty"`
	Position *float64             `json:"position,omitempty"`
	SentAt   types.Millis         `json:"sentAt,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// Intent maps a client message onto a playback intent.
func (m ClientMessage) Intent() (types.PlaybackIntent, bool) {
	action := types.IntentAction(m.Type)
	switch action {
	case types.IntentPlay, types.IntentPause, types.IntentNext, types.IntentPrev,
		types.IntentSeek, types.IntentEnqueue:
		return types.PlaybackIntent{Action: action, Offset: m.Offset, Songs: m.Songs}, true
	default:
		return types.PlaybackIntent{}, false
	}
}
