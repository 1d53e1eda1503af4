package services

import (
	"testing"

	"coinrush/models"

	"github.com/stretchr/testify/assert"
)

func TestReconcileTransitions(t *testing.T) {
	type testCase struct {
		name       string
		state      LocalState
		rec        models.RoomRecord
		wantPhase  models.LocalPhase
		wantEffect EffectKind
	}

	tests := []testCase{
		{
			name:       "lobby starts when room plays",
			state:      LocalState{Phase: models.PhaseLobby},
			rec:        room(models.RoomPlaying, ms(5000), withPlayer("a", models.PlayerPlaying, true)),
			wantPhase:  models.PhasePlaying,
			wantEffect: EffectStart,
		},
		{
			name:       "game over starts the next round",
			state:      LocalState{Phase: models.PhaseGameOver, StartedRound: 5000},
			rec:        room(models.RoomPlaying, ms(9000), withPlayer("a", models.PlayerPlaying, true)),
			wantPhase:  models.PhasePlaying,
			wantEffect: EffectStart,
		},
		{
			name:       "already playing is a no-op",
			state:      LocalState{Phase: models.PhasePlaying, StartedRound: 5000},
			rec:        room(models.RoomPlaying, ms(5000), withPlayer("a", models.PlayerPlaying, true)),
			wantPhase:  models.PhasePlaying,
			wantEffect: EffectNone,
		},
		{
			name:       "done player does not restart",
			state:      LocalState{Phase: models.PhaseLobby},
			rec:        room(models.RoomPlaying, ms(5000), withPlayer("a", models.PlayerCrashed, true)),
			wantPhase:  models.PhaseLobby,
			wantEffect: EffectNone,
		},
		{
			name:       "playing room without start time is ignored",
			state:      LocalState{Phase: models.PhaseLobby},
			rec:        room(models.RoomPlaying, nil, withPlayer("a", models.PlayerPlaying, true)),
			wantPhase:  models.PhaseLobby,
			wantEffect: EffectNone,
		},
		{
			name:       "finished room forces game over",
			state:      LocalState{Phase: models.PhasePlaying, Score: 40, Lives: 2, StartedRound: 5000},
			rec:        room(models.RoomFinished, ms(5000), withPlayer("a", models.PlayerPlaying, true)),
			wantPhase:  models.PhaseGameOver,
			wantEffect: EffectForceGameOver,
		},
		{
			name:       "finished earlier round does not end the current one",
			state:      LocalState{Phase: models.PhasePlaying, Score: 40, Lives: 2, StartedRound: 9000},
			rec:        room(models.RoomFinished, ms(5000), withPlayer("a", models.PlayerFinished, true)),
			wantPhase:  models.PhasePlaying,
			wantEffect: EffectNone,
		},
		{
			name:       "finished room without start time is ignored",
			state:      LocalState{Phase: models.PhasePlaying, StartedRound: 5000},
			rec:        room(models.RoomFinished, nil, withPlayer("a", models.PlayerPlaying, true)),
			wantPhase:  models.PhasePlaying,
			wantEffect: EffectNone,
		},
		{
			name:       "spectator ignores finished earlier round",
			state:      LocalState{Phase: models.PhaseSpectating, StartedRound: 9000},
			rec:        room(models.RoomFinished, ms(5000), withPlayer("a", models.PlayerCrashed, false)),
			wantPhase:  models.PhaseSpectating,
			wantEffect: EffectNone,
		},
		{
			name:       "spectator sees results",
			state:      LocalState{Phase: models.PhaseSpectating, StartedRound: 5000},
			rec:        room(models.RoomFinished, ms(5000), withPlayer("a", models.PlayerCrashed, false)),
			wantPhase:  models.PhaseGameOver,
			wantEffect: EffectNone,
		},
		{
			name:       "lobby ignores finished room",
			state:      LocalState{Phase: models.PhaseLobby},
			rec:        room(models.RoomFinished, ms(5000), withPlayer("a", models.PlayerReady, false)),
			wantPhase:  models.PhaseLobby,
			wantEffect: EffectNone,
		},
		{
			name:       "waiting room returns game over to lobby",
			state:      LocalState{Phase: models.PhaseGameOver, StartedRound: 5000},
			rec:        room(models.RoomWaiting, nil, withPlayer("a", models.PlayerReady, true)),
			wantPhase:  models.PhaseLobby,
			wantEffect: EffectNone,
		},
		{
			name:       "waiting room returns spectator to lobby",
			state:      LocalState{Phase: models.PhaseSpectating, StartedRound: 5000},
			rec:        room(models.RoomWaiting, nil, withPlayer("a", models.PlayerReady, true)),
			wantPhase:  models.PhaseLobby,
			wantEffect: EffectNone,
		},
		{
			name:       "menu ignores snapshots",
			state:      LocalState{Phase: models.PhaseMenu},
			rec:        room(models.RoomPlaying, ms(5000), withPlayer("a", models.PlayerPlaying, true)),
			wantPhase:  models.PhaseMenu,
			wantEffect: EffectNone,
		},
		{
			name:       "missing entry is a no-op",
			state:      LocalState{Phase: models.PhaseLobby},
			rec:        room(models.RoomPlaying, ms(5000), withPlayer("b", models.PlayerPlaying, true)),
			wantPhase:  models.PhaseLobby,
			wantEffect: EffectNone,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, effect := Reconcile(tc.state, tc.rec, "a")
			assert.Equal(t, tc.wantPhase, next.Phase)
			assert.Equal(t, tc.wantEffect, effect.Kind)
		})
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	snapshots := []models.RoomRecord{
		room(models.RoomWaiting, nil, withPlayer("a", models.PlayerReady, true)),
		room(models.RoomPlaying, ms(5000), withPlayer("a", models.PlayerPlaying, true)),
		room(models.RoomPlaying, ms(5000), withPlayer("a", models.PlayerCrashed, true)),
		room(models.RoomFinished, ms(5000), withPlayer("a", models.PlayerFinished, true)),
	}
	phases := []models.LocalPhase{
		models.PhaseLobby, models.PhasePlaying, models.PhaseSpectating, models.PhaseGameOver,
	}

	for _, rec := range snapshots {
		for _, phase := range phases {
			state := LocalState{Phase: phase, Score: 30, Lives: 1, StartedRound: 5000}
			once, _ := Reconcile(state, rec, "a")
			twice, effect := Reconcile(once, rec, "a")
			assert.Equal(t, once, twice, "status %s from %s", rec.Status, phase)
			assert.Equal(t, EffectNone, effect.Kind, "status %s from %s", rec.Status, phase)
		}
	}
}

func TestReconcileForceGameOverCarriesLiveScore(t *testing.T) {
	state := LocalState{Phase: models.PhasePlaying, Score: 70, Lives: 2, StartedRound: 5000}
	rec := room(models.RoomFinished, ms(5000), withPlayer("a", models.PlayerPlaying, true), withScore("a", 20))

	_, effect := Reconcile(state, rec, "a")

	assert.Equal(t, Effect{Kind: EffectForceGameOver, Score: 70, Lives: 2}, effect)
}

func TestReconcileNoResurrection(t *testing.T) {
	// crashed locally, but the snapshot predates our crashed write
	state := LocalState{Phase: models.PhaseSpectating, Score: 10, StartedRound: 5000}
	stale := room(models.RoomPlaying, ms(5000), withPlayer("a", models.PlayerPlaying, false))

	next, effect := Reconcile(state, stale, "a")

	assert.Equal(t, models.PhaseSpectating, next.Phase)
	assert.Equal(t, EffectNone, effect.Kind)
}

func TestReconcileStartResetsScore(t *testing.T) {
	state := LocalState{Phase: models.PhaseGameOver, Score: 90, Lives: 0, StartedRound: 5000}
	rec := room(models.RoomPlaying, ms(8000), withPlayer("a", models.PlayerPlaying, true))

	next, effect := Reconcile(state, rec, "a")

	assert.Equal(t, EffectStart, effect.Kind)
	assert.Equal(t, 0, next.Score)
	assert.Equal(t, StartingLives, next.Lives)
	assert.Equal(t, int64(8000), next.StartedRound)
}

func TestResultStatus(t *testing.T) {
	assert.Equal(t, models.PlayerFinished, ResultStatus(1))
	assert.Equal(t, models.PlayerCrashed, ResultStatus(0))
}
