package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DoyleJ11/groupsync/internal/transport"
	"github.com/DoyleJ11/groupsync/internal/wire"
	"github.com/DoyleJ11/groupsync/pkg/types"
)

// journal records sink calls and observer notifications in one ordered list so tests can
// check ordering across both.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.entries)
}

func (j *journal) count(entry string) int {
	n := 0
	for _, e := range j.all() {
		if e == entry {
			n++
		}
	}
	return n
}

func waitJournal(t *testing.T, j *journal, want []string, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if slices.Equal(j.all(), want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("journal mismatch\n got: %q\nwant: %q", j.all(), want)
}

func waitEntry(t *testing.T, j *journal, entry string, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if j.count(entry) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("journal never saw %q; got %q", entry, j.all())
}

type recordingSink struct {
	j        *journal
	position atomic.Value // float64
	block    chan struct{}
}

func newRecordingSink(j *journal) *recordingSink {
	s := &recordingSink{j: j}
	s.position.Store(0.0)
	return s
}

func (s *recordingSink) PlaySong(_ context.Context, song types.Song) error {
	s.j.add("sink:playSong:%s", song.ID)
	return nil
}

func (s *recordingSink) PlayAt(_ context.Context, offset float64) error {
	s.j.add("sink:playAt:%.3f", offset)
	return nil
}

func (s *recordingSink) PauseSong(ctx context.Context) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.j.add("sink:pauseSong")
	return nil
}

func (s *recordingSink) StopPlayback(context.Context) error {
	s.j.add("sink:stopPlayback")
	return nil
}

func (s *recordingSink) NextSong(context.Context) error {
	s.j.add("sink:nextSong")
	return nil
}

func (s *recordingSink) PrevSong(context.Context) error {
	s.j.add("sink:prevSong")
	return nil
}

func (s *recordingSink) SeekTo(_ context.Context, offset float64) error {
	s.j.add("sink:seekTo:%.3f", offset)
	return nil
}

func (s *recordingSink) AddQueue(_ context.Context, songs []types.Song) error {
	s.j.add("sink:addQueue:%d", len(songs))
	return nil
}

func (s *recordingSink) GetSongTimestamp(context.Context) (float64, error) {
	return s.position.Load().(float64), nil
}

func (s *recordingSink) SearchFor(context.Context, string) ([]types.Song, error) {
	return nil, nil
}

func (s *recordingSink) GetMostRecentSong(context.Context) (*types.Song, error) {
	return nil, nil
}

type recordingObserver struct {
	j *journal

	mu          sync.Mutex
	snapshots   []types.GroupSnapshot
	disconnects []error
}

func (o *recordingObserver) OnGroupConnect(snap types.GroupSnapshot) {
	o.j.add("obs:OnGroupConnect:%s", snap.ID)
}

func (o *recordingObserver) OnGroupUpdate(snap types.GroupSnapshot, _ wire.Message) {
	o.mu.Lock()
	o.snapshots = append(o.snapshots, snap)
	o.mu.Unlock()
	o.j.add("obs:OnGroupUpdate:%d", snap.Seq)
}

func (o *recordingObserver) OnNextSong(wire.Message) { o.j.add("obs:OnNextSong") }
func (o *recordingObserver) OnPrevSong(wire.Message) { o.j.add("obs:OnPrevSong") }
func (o *recordingObserver) OnPlay(wire.Message)     { o.j.add("obs:OnPlay") }
func (o *recordingObserver) OnPause(wire.Message)    { o.j.add("obs:OnPause") }

func (o *recordingObserver) OnTimestampUpdate(position float64, _ wire.Message) {
	o.j.add("obs:OnTimestampUpdate:%.3f", position)
}

func (o *recordingObserver) OnSeekTo(position float64, _ wire.Message) {
	o.j.add("obs:OnSeekTo:%.3f", position)
}

func (o *recordingObserver) OnDisconnect(err error) {
	o.mu.Lock()
	o.disconnects = append(o.disconnects, err)
	o.mu.Unlock()
	o.j.add("obs:OnDisconnect")
}

func (o *recordingObserver) disconnectErrs() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.disconnects)
}

type fakeConn struct {
	frames chan transport.Frame
	sent   chan []byte
	done   chan struct{}
	closes atomic.Int32

	once sync.Once
	mu   sync.Mutex
	err  error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan transport.Frame, 16),
		sent:   make(chan []byte, 16),
		done:   make(chan struct{}),
	}
}

func (c *fakeConn) Frames() <-chan transport.Frame { return c.frames }
func (c *fakeConn) Done() <-chan struct{}          { return c.done }

func (c *fakeConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *fakeConn) Send(data []byte) error {
	select {
	case <-c.done:
		return transport.ErrNotConnected
	default:
	}
	select {
	case c.sent <- data:
		return nil
	default:
		return transport.ErrSendQueueFull
	}
}

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	c.end(nil)
	return nil
}

// end simulates the connection going away with cause.
func (c *fakeConn) end(cause error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = cause
		c.mu.Unlock()
		close(c.done)
		close(c.frames)
	})
}

func (c *fakeConn) push(t *testing.T, raw string) {
	t.Helper()
	select {
	case <-c.done:
		t.Fatalf("push on closed conn")
	case c.frames <- transport.Frame{Data: []byte(raw), ReceivedAt: now}:
	}
}

func (c *fakeConn) nextSent(t *testing.T, within time.Duration) []byte {
	t.Helper()
	select {
	case b := <-c.sent:
		return b
	case <-time.After(within):
		t.Fatalf("nothing sent within %v", within)
		return nil
	}
}

type fakeDialer struct {
	mu    sync.Mutex
	urls  []string
	err   error
	conns chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeConn, 4)}
}

func (d *fakeDialer) Dial(_ context.Context, url string) (transport.Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	err := d.err
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c := newFakeConn()
	d.conns <- c
	return c, nil
}

func (d *fakeDialer) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *fakeDialer) lastConn(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(time.Second):
		t.Fatalf("no connection dialed")
		return nil
	}
}
