package services

import (
	"errors"
	"fmt"
	"time"

	"coinrush/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ArchiveService keeps the results of finished rounds. Room documents only live
// for the room TTL; archived rounds stay.
type ArchiveService struct {
	db *gorm.DB
}

func NewArchiveService(db *gorm.DB) *ArchiveService {
	return &ArchiveService{db: db}
}

func (s *ArchiveService) Migrate() error {
	return s.db.AutoMigrate(&models.Round{}, &models.Standing{})
}

// BuildRound turns a finished room into an archive row. Rooms that are not
// finished, or have no start time, produce nothing.
func BuildRound(rec models.RoomRecord, endedAt time.Time) (models.Round, bool) {
	if rec.Status != models.RoomFinished || rec.StartTime == nil {
		return models.Round{}, false
	}
	standings := rec.Standings()
	round := models.Round{
		RoomID:      rec.ID,
		StartedAt:   rec.StartedAt().UTC(),
		EndedAt:     endedAt.UTC(),
		PlayerCount: len(standings),
		Standings:   make([]models.Standing, 0, len(standings)),
	}
	for i, p := range standings {
		round.Standings = append(round.Standings, models.Standing{
			Rank:        i + 1,
			UID:         p.UID,
			DisplayName: p.DisplayName,
			Score:       p.Score,
			Status:      string(p.Status),
		})
	}
	if len(standings) > 0 {
		round.WinnerName = standings[0].DisplayName
	}
	return round, true
}

// RecordRound stores a finished round once. Several participants may finish the
// same round, so (room, start) is the dedupe key.
func (s *ArchiveService) RecordRound(rec models.RoomRecord, endedAt time.Time) error {
	round, ok := BuildRound(rec, endedAt)
	if !ok {
		return nil
	}

	var existing models.Round
	err := s.db.Where("room_id = ? AND started_at = ?", round.RoomID, round.StartedAt).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("look up round for %s: %w", round.RoomID, err)
	}

	if err := s.db.Create(&round).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return fmt.Errorf("archive round for %s: %w", round.RoomID, err)
	}

	log.Info().Str("room", round.RoomID).Int("players", round.PlayerCount).Str("winner", round.WinnerName).Msg("round archived")
	return nil
}

// RoundsForRoom returns the archived rounds of a room, newest first.
func (s *ArchiveService) RoundsForRoom(roomID string) ([]models.Round, error) {
	var rounds []models.Round
	err := s.db.Where("room_id = ?", NormalizeRoomCode(roomID)).
		Preload("Standings", func(db *gorm.DB) *gorm.DB {
			return db.Order("rank ASC")
		}).
		Order("started_at DESC").
		Find(&rounds).Error
	if err != nil {
		return nil, err
	}
	return rounds, nil
}
