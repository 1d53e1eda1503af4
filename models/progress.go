package models

// Progress is the purely local record of a participant's career.
type Progress struct {
	UID         string `json:"uid"`
	BestScore   int    `json:"best_score"`
	XP          int    `json:"xp"`
	Level       int    `json:"level"`
	GamesPlayed int    `json:"games_played"`
}
