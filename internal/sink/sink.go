// Package sink is the boundary to whatever actually makes sound: a platform music
// service, a remote device, or the in-process Virtual player.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/DoyleJ11/groupsync/pkg/types"
)

// Sink is the set of playback commands the session drives. Every call may be slow,
// may block on an external app, and may fail.
type Sink interface {
	PlaySong(ctx context.Context, song types.Song) error
	PlayAt(ctx context.Context, offsetSeconds float64) error
	PauseSong(ctx context.Context) error
	StopPlayback(ctx context.Context) error
	NextSong(ctx context.Context) error
	PrevSong(ctx context.Context) error
	SeekTo(ctx context.Context, offsetSeconds float64) error
	AddQueue(ctx context.Context, songs []types.Song) error
	GetSongTimestamp(ctx context.Context) (float64, error)
	SearchFor(ctx context.Context, query string) ([]types.Song, error)
	GetMostRecentSong(ctx context.Context) (*types.Song, error)
}

var ErrNoSong = errors.New("no song loaded")

// ErrBusy means an earlier call, abandoned after its timeout, still holds the device.
var ErrBusy = errors.New("device busy with an abandoned call")

// Error wraps a failed or timed out sink call. It is logged and never sent upstream.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("sink %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }
