package types

import "time"

// GroupSnapshot:
//   id, name: string
//   members: Member[]            // join order
//   connectedMembers: UserRef[]  // set, order not meaningful
//   currentlyPlaying: Song | null
//   previewQueue: QueueItem[]    // playback order
//   playbackState: { phase: "play" | "pause", position: seconds, asOf: epoch millis } | null
//   defaultPermissions, publicGroup, askToJoin
//   version: number              // optional, server side, 0 when absent
//
// A snapshot is a value. The session never mutates one after handing it out; updates
// produce a new snapshot with a larger Seq.
type GroupSnapshot struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	Members            []Member       `json:"members"`
	ConnectedMembers   []UserRef      `json:"connectedMembers"`
	CurrentlyPlaying   *Song          `json:"currentlyPlaying,omitempty"`
	PreviewQueue       []QueueItem    `json:"previewQueue"`
	PlaybackState      *PlaybackState `json:"playbackState,omitempty"`
	DefaultPermissions Permissions    `json:"defaultPermissions"`
	PublicGroup        bool           `json:"publicGroup"`
	AskToJoin          bool           `json:"askToJoin"`
	Version            uint64         `json:"version,omitempty"`

	// Seq is assigned locally when the session accepts the snapshot.
	Seq uint64 `json:"-"`
}

type Phase string

const (
	PhasePlay  Phase = "play"
	PhasePause Phase = "pause"
)

type PlaybackState struct {
	Phase           Phase   `json:"phase"`
	PositionSeconds float64 `json:"position"`
	AsOf            Millis  `json:"asOf"`
}

func (p *PlaybackState) Paused() bool { return p != nil && p.Phase == PhasePause }

type UserRef struct {
	ID string `json:"id"`
}

type Permissions struct {
	CanPlayPause bool `json:"canPlayPause"`
	CanSkip      bool `json:"canSkip"`
	CanEnqueue   bool `json:"canEnqueue"`
}

type Member struct {
	User        UserRef      `json:"user"`
	DisplayName string       `json:"displayName"`
	Permissions *Permissions `json:"permissions,omitempty"` // nil = group default
	JoinedAt    Millis       `json:"joinedAt"`
}

type Song struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Artist          string            `json:"artist"`
	Album           string            `json:"album,omitempty"`
	ArtworkURL      string            `json:"artworkUrl,omitempty"`
	DurationSeconds float64           `json:"duration,omitempty"`
	ServiceIDs      map[string]string `json:"serviceIds,omitempty"` // "apple", "spotify", ...
}

type QueueItem struct {
	ID      string  `json:"id"`
	Song    Song    `json:"song"`
	AddedBy UserRef `json:"addedBy"`
}

// Millis is an epoch-milliseconds timestamp as it appears on the wire.
type Millis int64

func (m Millis) Time() time.Time {
	if m == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(m))
}

func MillisOf(t time.Time) Millis {
	if t.IsZero() {
		return 0
	}
	return Millis(t.UnixMilli())
}
