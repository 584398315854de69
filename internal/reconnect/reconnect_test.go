package reconnect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/groupsync/internal/engine"
	"github.com/DoyleJ11/groupsync/internal/session"
	"github.com/DoyleJ11/groupsync/internal/transport"
)

func TestPolicy_Delays(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, time.Second, p.NextDelay(1))
	assert.Equal(t, 2*time.Second, p.NextDelay(2))
	assert.Equal(t, 4*time.Second, p.NextDelay(3))
	assert.Equal(t, 30*time.Second, p.NextDelay(10), "capped")
	assert.Equal(t, time.Second, p.NextDelay(0))
}

func TestPolicy_ShouldRetry(t *testing.T) {
	p := Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2}
	drop := &transport.Error{Op: "read", Err: io.EOF}

	assert.True(t, p.ShouldRetry(drop, 1))
	assert.True(t, p.ShouldRetry(drop, 3))
	assert.False(t, p.ShouldRetry(drop, 4), "out of attempts")
	assert.False(t, p.ShouldRetry(nil, 1))

	forever := Policy{}
	assert.True(t, forever.ShouldRetry(drop, 1000))
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"transport", &transport.Error{Op: "dial", Err: errors.New("connection refused")}, true},
		{"unknown", errors.New("boom"), true},
		{"join rejected", fmt.Errorf("dial: %w", transport.ErrJoinRejected), false},
		{"session closed", session.ErrClosed, false},
		{"canceled", context.Canceled, false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Retryable(tc.err))
		})
	}
}

// scripted plays back Connect and Wait results in order.
type scripted struct {
	mu       sync.Mutex
	connects []error
	waits    []error
	dials    int
}

func (s *scripted) Connect(ctx context.Context, groupID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dials++
	if len(s.connects) == 0 {
		return errors.New("script exhausted")
	}
	err := s.connects[0]
	s.connects = s.connects[1:]
	return err
}

func (s *scripted) Wait(ctx context.Context) error {
	s.mu.Lock()
	if len(s.waits) == 0 {
		s.mu.Unlock()
		<-ctx.Done()
		return ctx.Err()
	}
	err := s.waits[0]
	s.waits = s.waits[1:]
	s.mu.Unlock()
	return err
}

func newTestSupervisor(c Connector, p Policy) (*Supervisor, *[]time.Duration) {
	var delays []time.Duration
	sup := NewSupervisor(c, "G1", "T", p, nil)
	sup.after = func(d time.Duration) <-chan time.Time {
		delays = append(delays, d)
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}
	return sup, &delays
}

func TestSupervisor_ReconnectsAfterDrop(t *testing.T) {
	drop := &transport.Error{Op: "read", Err: io.EOF}
	c := &scripted{
		connects: []error{nil, &transport.Error{Op: "dial", Err: errors.New("refused")}, nil},
		waits:    []error{drop, nil},
	}
	sup, delays := newTestSupervisor(c, DefaultPolicy())

	require.NoError(t, sup.Run(context.Background()))
	assert.Equal(t, 3, c.dials)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *delays)
}

func TestSupervisor_BackoffResetsAfterSuccess(t *testing.T) {
	drop := &transport.Error{Op: "read", Err: io.EOF}
	refused := &transport.Error{Op: "dial", Err: errors.New("refused")}
	c := &scripted{
		connects: []error{refused, nil, refused, nil},
		waits:    []error{drop, nil},
	}
	sup, delays := newTestSupervisor(c, DefaultPolicy())

	require.NoError(t, sup.Run(context.Background()))
	assert.Equal(t, []time.Duration{time.Second, time.Second, 2 * time.Second}, *delays)
}

func TestSupervisor_StopsOnJoinRejected(t *testing.T) {
	rejected := fmt.Errorf("dial: http 403: %w", transport.ErrJoinRejected)
	c := &scripted{connects: []error{rejected}}
	sup, delays := newTestSupervisor(c, DefaultPolicy())

	err := sup.Run(context.Background())
	assert.ErrorIs(t, err, transport.ErrJoinRejected)
	assert.Equal(t, 1, c.dials)
	assert.Empty(t, *delays)
}

func TestSupervisor_GivesUp(t *testing.T) {
	refused := &transport.Error{Op: "dial", Err: errors.New("refused")}
	c := &scripted{connects: []error{refused, refused, refused}}
	sup, _ := newTestSupervisor(c, Policy{MaxAttempts: 2, InitialDelay: time.Millisecond, Multiplier: 2})

	err := sup.Run(context.Background())
	var te *transport.Error
	assert.ErrorAs(t, err, &te)
	assert.Equal(t, 3, c.dials)
}

func TestSupervisor_AlreadyConnectedWaits(t *testing.T) {
	c := &scripted{connects: []error{engine.ErrAlreadyConnected}, waits: []error{nil}}
	sup, _ := newTestSupervisor(c, DefaultPolicy())
	assert.NoError(t, sup.Run(context.Background()))
}

func TestSupervisor_ContextCancel(t *testing.T) {
	c := &scripted{connects: []error{nil}}
	sup, _ := newTestSupervisor(c, DefaultPolicy())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop")
	}
}
