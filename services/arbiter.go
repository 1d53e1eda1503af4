package services

import (
	"time"

	"coinrush/models"
)

type FinishReason string

const (
	ReasonTimeout    FinishReason = "timeout"
	ReasonAttrition  FinishReason = "attrition"
	ReasonHostAbsent FinishReason = "host_absent"
)

type Decision struct {
	Finish bool
	Reason FinishReason
}

// Arbiter decides when a playing round ends. The host applies the timeout and
// attrition rules; every other peer applies the timeout rule once HostGrace has
// also elapsed, which covers a host that left the room.
type Arbiter struct {
	RoundDuration time.Duration
	HostGrace     time.Duration
}

func (a Arbiter) Evaluate(rec models.RoomRecord, uid string, now time.Time) Decision {
	if rec.Status != models.RoomPlaying || rec.StartTime == nil {
		return Decision{}
	}
	me, ok := rec.Player(uid)
	if !ok {
		return Decision{}
	}

	elapsed := now.Sub(rec.StartedAt())
	if me.IsHost {
		if elapsed > a.RoundDuration {
			return Decision{Finish: true, Reason: ReasonTimeout}
		}
		if rec.ActiveCount() == 0 {
			return Decision{Finish: true, Reason: ReasonAttrition}
		}
		return Decision{}
	}

	if elapsed > a.RoundDuration+a.HostGrace {
		return Decision{Finish: true, Reason: ReasonHostAbsent}
	}
	return Decision{}
}
