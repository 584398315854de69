package sink

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/groupsync/pkg/types"
)

// Virtual is a pretend player. It keeps time with a clock instead of audio, which is
// enough for a headless client and for tests that care about drift.
type Virtual struct {
	mu      sync.Mutex
	log     *zap.Logger
	now     func() time.Time
	current *types.Song
	history []types.Song
	queue   []types.Song
	library []types.Song

	playing bool
	// position at anchor; while playing, position advances with the clock from anchor.
	position float64
	anchor   time.Time
}

func NewVirtual(library []types.Song, log *zap.Logger) *Virtual {
	if log == nil {
		log = zap.NewNop()
	}
	return &Virtual{
		log:     log.Named("virtual"),
		now:     time.Now,
		library: slices.Clone(library),
	}
}

// SetClock swaps the time source; tests use it.
func (v *Virtual) SetClock(now func() time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.now = now
}

func (v *Virtual) positionLocked() float64 {
	if !v.playing {
		return v.position
	}
	return v.position + v.now().Sub(v.anchor).Seconds()
}

func (v *Virtual) setPositionLocked(p float64) {
	if p < 0 {
		p = 0
	}
	v.position = p
	v.anchor = v.now()
}

func (v *Virtual) loadLocked(song types.Song) {
	if v.current != nil {
		v.history = append(v.history, *v.current)
	}
	s := song.Clone()
	v.current = &s
	v.setPositionLocked(0)
}

func (v *Virtual) PlaySong(_ context.Context, song types.Song) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current == nil || v.current.ID != song.ID {
		v.loadLocked(song)
	}
	v.playing = true
	v.anchor = v.now()
	v.log.Info("play song", zap.String("song_id", song.ID), zap.String("title", song.Title))
	return nil
}

func (v *Virtual) PlayAt(_ context.Context, offset float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current == nil {
		return ErrNoSong
	}
	v.setPositionLocked(offset)
	v.playing = true
	v.log.Info("play at", zap.Float64("offset", offset))
	return nil
}

func (v *Virtual) PauseSong(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.playing {
		v.position = v.positionLocked()
		v.playing = false
	}
	v.log.Info("pause", zap.Float64("position", v.position))
	return nil
}

func (v *Virtual) StopPlayback(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.playing = false
	v.position = 0
	v.log.Info("stop")
	return nil
}

// NextSong pops the local queue mirror.
func (v *Virtual) NextSong(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.queue) == 0 {
		return ErrNoSong
	}
	next := v.queue[0]
	v.queue = v.queue[1:]
	v.loadLocked(next)
	v.playing = true
	return nil
}

func (v *Virtual) PrevSong(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.history) == 0 {
		// Nothing before this one; restart it like a real player would.
		v.setPositionLocked(0)
		return nil
	}
	prev := v.history[len(v.history)-1]
	v.history = v.history[:len(v.history)-1]
	if v.current != nil {
		v.queue = append([]types.Song{*v.current}, v.queue...)
	}
	v.current = &prev
	v.setPositionLocked(0)
	v.playing = true
	return nil
}

func (v *Virtual) SeekTo(_ context.Context, offset float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current == nil {
		return ErrNoSong
	}
	v.setPositionLocked(offset)
	v.log.Info("seek", zap.Float64("offset", offset))
	return nil
}

func (v *Virtual) AddQueue(_ context.Context, songs []types.Song) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, s := range songs {
		v.queue = append(v.queue, s.Clone())
	}
	return nil
}

func (v *Virtual) GetSongTimestamp(context.Context) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current == nil {
		return 0, ErrNoSong
	}
	return v.positionLocked(), nil
}

// SearchFor matches title or artist, case-insensitively, against the library.
func (v *Virtual) SearchFor(_ context.Context, query string) ([]types.Song, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []types.Song
	if q == "" {
		return out, nil
	}
	for _, s := range v.library {
		if strings.Contains(strings.ToLower(s.Title), q) || strings.Contains(strings.ToLower(s.Artist), q) {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

func (v *Virtual) GetMostRecentSong(context.Context) (*types.Song, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current != nil {
		s := v.current.Clone()
		return &s, nil
	}
	if n := len(v.history); n > 0 {
		s := v.history[n-1].Clone()
		return &s, nil
	}
	return nil, nil
}

// Queue returns a copy of the local queue mirror.
func (v *Virtual) Queue() []types.Song {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.queue)
}

func (v *Virtual) Playing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.playing
}

var _ Sink = (*Virtual)(nil)
