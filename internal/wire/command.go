package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/groupsync/pkg/types"
)

var ErrUnsupportedCommand = errors.New("unsupported command")

// Command is one client -> server frame before encoding.
type Command struct {
	Kind Kind
	Data any
}

type JoinData struct {
	GroupID  string `json:"groupId"`
	ClientID string `json:"clientId"`
}

type SeekData struct {
	Timestamp float64 `json:"timestamp"`
}

type EnqueueData struct {
	Songs []types.Song `json:"songs"`
}

func Join(groupID, clientID string) Command {
	return Command{Kind: KindJoin, Data: JoinData{GroupID: groupID, ClientID: clientID}}
}

// FromIntent maps a local intent to the frame that asks the server for it.
func FromIntent(in types.PlaybackIntent) (Command, error) {
	switch in.Action {
	case types.IntentPlay:
		return Command{Kind: KindPlay}, nil
	case types.IntentPause:
		return Command{Kind: KindPause}, nil
	case types.IntentNext:
		return Command{Kind: KindNextSong}, nil
	case types.IntentPrev:
		return Command{Kind: KindPrevSong}, nil
	case types.IntentSeek:
		if in.Offset < 0 {
			return Command{}, fmt.Errorf("seek to %.3f: %w", in.Offset, ErrUnsupportedCommand)
		}
		return Command{Kind: KindSeekTo, Data: SeekData{Timestamp: in.Offset}}, nil
	case types.IntentEnqueue:
		if len(in.Songs) == 0 {
			return Command{}, fmt.Errorf("enqueue nothing: %w", ErrUnsupportedCommand)
		}
		return Command{Kind: KindAddToQueue, Data: EnqueueData{Songs: in.Songs}}, nil
	default:
		return Command{}, fmt.Errorf("intent %q: %w", in.Action, ErrUnsupportedCommand)
	}
}

// Encode renders cmd in the inbound envelope shape, stamped with sentAt.
func Encode(cmd Command, sentAt time.Time) ([]byte, error) {
	switch cmd.Kind {
	case KindJoin, KindPlay, KindPause, KindNextSong, KindPrevSong, KindSeekTo, KindAddToQueue:
	default:
		return nil, fmt.Errorf("encode %s: %w", cmd.Kind, ErrUnsupportedCommand)
	}
	t := int(cmd.Kind)
	env := envelope{Type: &t, SentAt: types.MillisOf(sentAt)}
	if cmd.Data != nil {
		data, err := json.Marshal(cmd.Data)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", cmd.Kind, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}
