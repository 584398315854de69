package engine

import "github.com/DoyleJ11/groupsync/internal/wire"

type Rule struct {
	// NeedsGroup means the event is dropped until a GroupUpdate has arrived.
	NeedsGroup bool
}

// Rules lists every kind the engine acts on. Kinds missing here are ignored.
var Rules = map[wire.Kind]Rule{
	wire.KindGroupUpdate:     {NeedsGroup: false},
	wire.KindNextSong:        {NeedsGroup: true},
	wire.KindPrevSong:        {NeedsGroup: false},
	wire.KindPlay:            {NeedsGroup: true},
	wire.KindPause:           {NeedsGroup: false},
	wire.KindTimestampUpdate: {NeedsGroup: true},
	wire.KindSeekTo:          {NeedsGroup: false},
	wire.KindAddToQueue:      {NeedsGroup: false},
}
