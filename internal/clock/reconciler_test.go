package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/DoyleJ11/groupsync/pkg/types"
)

var base = time.UnixMilli(1_700_000_000_000)

func fixed(r Reconciler) Reconciler {
	r.Now = func() time.Time { return base }
	return r
}

func TestNetworkDelay(t *testing.T) {
	r := fixed(NewReconciler(0, 0))

	cases := []struct {
		name   string
		sentAt types.Millis
		want   time.Duration
	}{
		{name: "plain latency", sentAt: types.MillisOf(base.Add(-300 * time.Millisecond)), want: 300 * time.Millisecond},
		{name: "future sentAt clamps to zero", sentAt: types.MillisOf(base.Add(2 * time.Second)), want: 0},
		{name: "huge latency clamps to max", sentAt: types.MillisOf(base.Add(-time.Minute)), want: DefaultMaxDelay},
		{name: "unknown sentAt", sentAt: 0, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, r.NetworkDelay(tc.sentAt, base))
		})
	}
}

func TestNetworkDelay_ZeroReceivedAtUsesNow(t *testing.T) {
	r := fixed(NewReconciler(0, 0))
	got := r.NetworkDelay(types.MillisOf(base.Add(-time.Second)), time.Time{})
	assert.Equal(t, time.Second, got)
}

func TestDriftDebounce(t *testing.T) {
	r := fixed(NewReconciler(time.Second, 5*time.Second))

	// local 10.0, server 10.4 sent 0.3s ago -> target 10.7, inside the threshold
	target := r.Correct(10.4, types.MillisOf(base.Add(-300*time.Millisecond)), base)
	assert.InDelta(t, 10.7, target, 1e-9)
	assert.False(t, r.ShouldSeek(10.0, target))

	// local 10.0, server 20.0 sent 0.2s ago -> target 20.2, seek
	target = r.Correct(20.0, types.MillisOf(base.Add(-200*time.Millisecond)), base)
	assert.InDelta(t, 20.2, target, 1e-9)
	assert.True(t, r.ShouldSeek(10.0, target))
}

func TestShouldSeek_ExactlyThresholdDoesNotSeek(t *testing.T) {
	r := NewReconciler(time.Second, 0)
	assert.False(t, r.ShouldSeek(5, 6))
	assert.True(t, r.ShouldSeek(5, 6.001))
	assert.True(t, r.ShouldSeek(6.5, 5), "drift is symmetric")
}

func TestElapsed(t *testing.T) {
	r := fixed(NewReconciler(0, 2*time.Second))
	assert.Zero(t, r.Elapsed(time.Time{}))
	assert.Equal(t, 300*time.Millisecond, r.Elapsed(base.Add(-300*time.Millisecond)))
	assert.Zero(t, r.Elapsed(base.Add(time.Second)))
	assert.Equal(t, 2*time.Second, r.Elapsed(base.Add(-time.Hour)))
}
