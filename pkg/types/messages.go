package types

import "time"

// Server -> Client, envelope { type, data, sentAt (epoch millis) }
//   0 GroupUpdate:     data = GroupSnapshot
//   1 NextSong:        data = Song | null
//   2 PrevSong:        data = null
//   3 Play:            data = { timestamp?: seconds, song?: Song } | null
//   4 Pause:           data = null
//   5 TimestampUpdate: data = { timestamp: seconds, sentAt: epoch millis }
//   6 SeekTo:          data = { timestamp: seconds }
//   7 AddToQueue:      data = Song[] | { songs: Song[] }
//   anything else decodes as Unknown and is ignored.
//
// Client -> Server, same envelope
//   100 Join:    { groupId, clientId }
//   3 Play, 4 Pause, 1 Next, 2 Prev: data = null
//   6 SeekTo:    { timestamp: seconds }
//   7 Enqueue:   { songs: Song[] }

type IntentAction string

const (
	IntentPlay    IntentAction = "play"
	IntentPause   IntentAction = "pause"
	IntentNext    IntentAction = "next"
	IntentPrev    IntentAction = "prev"
	IntentSeek    IntentAction = "seek"
	IntentEnqueue IntentAction = "enqueue"
)

// PlaybackIntent is something the local user wants. It is sent to the server and is never
// applied to local playback directly; the server's echo is what moves the device.
type PlaybackIntent struct {
	Action   IntentAction
	Offset   float64 // seek only
	Songs    []Song  // enqueue only
	IssuedAt time.Time
}
