package models

// LocalPhase is a participant's own view of which screen it is on. It is never persisted.
type LocalPhase string

const (
	PhaseMenu       LocalPhase = "menu"
	PhaseLobby      LocalPhase = "lobby"
	PhasePlaying    LocalPhase = "playing"
	PhaseSpectating LocalPhase = "spectating"
	PhaseGameOver   LocalPhase = "game_over"
)

func (p LocalPhase) String() string {
	return string(p)
}
