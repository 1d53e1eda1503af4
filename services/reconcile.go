package services

import "coinrush/models"

type EffectKind int

const (
	EffectNone EffectKind = iota
	EffectStart
	EffectForceGameOver
)

func (k EffectKind) String() string {
	switch k {
	case EffectStart:
		return "start"
	case EffectForceGameOver:
		return "force_game_over"
	default:
		return "none"
	}
}

// Effect is the side effect a reconciliation pass asks the caller to perform.
// Score and Lives are set for EffectForceGameOver.
type Effect struct {
	Kind  EffectKind
	Score int
	Lives int
}

// LocalState is the participant's transient view used by Reconcile.
type LocalState struct {
	Phase models.LocalPhase
	Score int
	Lives int
	// StartedRound is the startTime of the last round started locally. A round is
	// never started twice, so stale snapshots of that round cannot resurrect a
	// participant who has since crashed.
	StartedRound int64
}

// Reconcile derives the next local state from a room snapshot. It is pure: the
// same inputs always give the same outputs, and feeding its own output back with
// the same snapshot yields EffectNone.
func Reconcile(state LocalState, rec models.RoomRecord, uid string) (LocalState, Effect) {
	next := state
	if state.Phase == models.PhaseMenu {
		return next, Effect{}
	}
	me, ok := rec.Player(uid)
	if !ok {
		return next, Effect{}
	}

	switch rec.Status {
	case models.RoomPlaying:
		if me.Status.Done() || state.Phase == models.PhasePlaying {
			return next, Effect{}
		}
		if rec.StartTime == nil || *rec.StartTime == state.StartedRound {
			return next, Effect{}
		}
		next.Phase = models.PhasePlaying
		next.StartedRound = *rec.StartTime
		next.Score = 0
		next.Lives = StartingLives
		return next, Effect{Kind: EffectStart}

	case models.RoomFinished:
		// A late snapshot of an earlier round must not end the current one.
		if rec.StartTime == nil || *rec.StartTime != state.StartedRound {
			return next, Effect{}
		}
		switch state.Phase {
		case models.PhasePlaying:
			next.Phase = models.PhaseGameOver
			return next, Effect{Kind: EffectForceGameOver, Score: state.Score, Lives: state.Lives}
		case models.PhaseSpectating:
			next.Phase = models.PhaseGameOver
		}

	case models.RoomWaiting:
		if state.Phase == models.PhaseGameOver || state.Phase == models.PhaseSpectating {
			next.Phase = models.PhaseLobby
		}
	}
	return next, Effect{}
}

// ResultStatus is the player status reported at the end of a local round.
func ResultStatus(lives int) models.PlayerStatus {
	if lives > 0 {
		return models.PlayerFinished
	}
	return models.PlayerCrashed
}
