package models

import (
	"time"

	"gorm.io/gorm"
)

type Standing struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	RoundID     uint           `json:"round_id" gorm:"not null;index"`
	Rank        int            `json:"rank" gorm:"not null"`
	UID         string         `json:"uid" gorm:"not null"`
	DisplayName string         `json:"display_name" gorm:"not null"`
	Score       int            `json:"score" gorm:"not null;default:0"`
	Status      string         `json:"status" gorm:"not null"` // crashed, finished, playing
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}
