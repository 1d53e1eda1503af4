package models

import (
	"time"

	"gorm.io/gorm"
)

// Round is the archived outcome of one finished round of a room.
type Round struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	RoomID      string         `json:"room_id" gorm:"not null;uniqueIndex:idx_round_room_start"`
	StartedAt   time.Time      `json:"started_at" gorm:"not null;uniqueIndex:idx_round_room_start"`
	EndedAt     time.Time      `json:"ended_at"`
	PlayerCount int            `json:"player_count" gorm:"not null"`
	WinnerName  string         `json:"winner_name"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Standings []Standing `json:"standings,omitempty" gorm:"foreignKey:RoundID"`
}
