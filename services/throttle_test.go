package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScoreThrottleCollapsesBursts(t *testing.T) {
	th := NewScoreThrottle(2 * time.Second)
	t0 := time.Unix(100, 0)

	score, due := th.Offer(10, t0)
	assert.True(t, due)
	assert.Equal(t, 10, score)

	_, due = th.Offer(20, t0.Add(100*time.Millisecond))
	assert.False(t, due)
	_, due = th.Offer(30, t0.Add(500*time.Millisecond))
	assert.False(t, due)

	_, due = th.Flush(t0.Add(time.Second))
	assert.False(t, due)

	score, due = th.Flush(t0.Add(2 * time.Second))
	assert.True(t, due)
	assert.Equal(t, 30, score)

	_, due = th.Flush(t0.Add(5 * time.Second))
	assert.False(t, due, "nothing pending")
}

func TestScoreThrottleReset(t *testing.T) {
	th := NewScoreThrottle(2 * time.Second)
	t0 := time.Unix(100, 0)

	th.Offer(10, t0)
	th.Offer(20, t0.Add(time.Second))
	th.Reset()

	_, due := th.Flush(t0.Add(10 * time.Second))
	assert.False(t, due)
}
