package services

import (
	"time"

	"golang.org/x/time/rate"
)

// ScoreThrottle limits score reports to one per interval. Scores offered while
// throttled collapse into the most recent value, released by the next Flush that
// the limiter allows.
type ScoreThrottle struct {
	limiter *rate.Limiter
	pending bool
	latest  int
}

func NewScoreThrottle(interval time.Duration) *ScoreThrottle {
	return &ScoreThrottle{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Offer records score and returns the value to report when a report is due now.
func (t *ScoreThrottle) Offer(score int, now time.Time) (int, bool) {
	t.latest = score
	t.pending = true
	return t.Flush(now)
}

func (t *ScoreThrottle) Flush(now time.Time) (int, bool) {
	if !t.pending || !t.limiter.AllowN(now, 1) {
		return 0, false
	}
	t.pending = false
	return t.latest, true
}

// Reset drops any pending score. The limiter keeps its history.
func (t *ScoreThrottle) Reset() {
	t.pending = false
	t.latest = 0
}
