package clock

import (
	"math"
	"time"

	"github.com/DoyleJ11/groupsync/pkg/types"
)

const (
	DefaultDriftThreshold = time.Second
	DefaultMaxDelay       = 5 * time.Second
)

// Reconciler turns server-stamped positions into local ones.
type Reconciler struct {
	// DriftThreshold is how far local playback may wander before a seek is worth it.
	DriftThreshold time.Duration
	// MaxDelay caps the latency we are willing to believe.
	MaxDelay time.Duration
	Now      func() time.Time
}

func NewReconciler(drift, maxDelay time.Duration) Reconciler {
	if drift <= 0 {
		drift = DefaultDriftThreshold
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	return Reconciler{DriftThreshold: drift, MaxDelay: maxDelay, Now: time.Now}
}

func (r Reconciler) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// NetworkDelay is receivedAt - sentAt clamped to [0, MaxDelay]. Skew that makes the
// message look like it came from the future counts as zero. An unknown sentAt is zero.
func (r Reconciler) NetworkDelay(sentAt types.Millis, receivedAt time.Time) time.Duration {
	if sentAt == 0 {
		return 0
	}
	if receivedAt.IsZero() {
		receivedAt = r.now()
	}
	d := receivedAt.Sub(sentAt.Time())
	if d < 0 {
		return 0
	}
	maxDelay := r.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if d > maxDelay {
		return maxDelay
	}
	return d
}

// Correct returns where the server's position is by the time we received it.
func (r Reconciler) Correct(position float64, sentAt types.Millis, receivedAt time.Time) float64 {
	return position + r.NetworkDelay(sentAt, receivedAt).Seconds()
}

// ShouldSeek reports whether local playback has drifted far enough from target to seek.
// Small drift is tolerated on purpose; constant micro-seeks are worse than being a
// fraction of a second off.
func (r Reconciler) ShouldSeek(local, target float64) bool {
	threshold := r.DriftThreshold
	if threshold <= 0 {
		threshold = DefaultDriftThreshold
	}
	return math.Abs(local-target) > threshold.Seconds()
}

// Elapsed is how long ago t was, clamped like NetworkDelay. The dispatcher uses it to
// move a target forward by the time an effect spent queued.
func (r Reconciler) Elapsed(t time.Time) time.Duration {
	if t.IsZero() {
		return 0
	}
	d := r.now().Sub(t)
	if d < 0 {
		return 0
	}
	maxDelay := r.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	return min(d, maxDelay)
}
