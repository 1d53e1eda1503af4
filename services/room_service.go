package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"coinrush/models"
	"coinrush/store"

	"github.com/rs/zerolog/log"
)

const (
	roomCodeLength   = 6
	roomCodeAttempts = 5
	roomCodeChars    = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // no 0/O or 1/I
)

// RoomService implements the room write paths on top of the shared document store.
// None of the writes are transactional; each one only overwrites the fields it names.
type RoomService struct {
	store      store.DocumentStore
	maxPlayers int
	now        func() time.Time
	newCode    func() string
}

func NewRoomService(st store.DocumentStore, maxPlayers int) *RoomService {
	return &RoomService{
		store:      st,
		maxPlayers: maxPlayers,
		now:        time.Now,
		newCode:    generateRoomCode,
	}
}

// NormalizeRoomCode makes user-typed codes comparable.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Create writes a fresh waiting room with the caller as its only player and host.
// Codes already in use are skipped; two creators racing for the same unused code
// can still collide since the store has no compare-and-swap.
func (s *RoomService) Create(ctx context.Context, uid, displayName string) (string, error) {
	code, err := s.freeCode(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCreateFailed, err)
	}
	rec := models.RoomRecord{
		ID:        code,
		CreatedAt: s.now().UnixMilli(),
		Status:    models.RoomWaiting,
		Players: map[string]models.PlayerEntry{
			uid: {
				UID:         uid,
				DisplayName: displayName,
				IsHost:      true,
				Status:      models.PlayerReady,
			},
		},
	}
	doc, err := rec.ToDocument()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCreateFailed, err)
	}
	if err := s.store.Create(ctx, models.RoomsCollection, code, doc); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCreateFailed, err)
	}

	log.Info().Str("room", code).Str("uid", uid).Msg("room created")
	return code, nil
}

func (s *RoomService) Get(ctx context.Context, roomID string) (models.RoomRecord, error) {
	doc, err := s.store.ReadOnce(ctx, models.RoomsCollection, NormalizeRoomCode(roomID))
	if errors.Is(err, store.ErrNotFound) {
		return models.RoomRecord{}, ErrRoomNotFound
	}
	if err != nil {
		return models.RoomRecord{}, err
	}
	return models.RoomFromDocument(doc)
}

// Join adds or overwrites the caller's entry. A full room is rejected without any
// write. Joining between rounds (finished) is allowed.
func (s *RoomService) Join(ctx context.Context, roomID, uid, displayName string) (models.RoomRecord, error) {
	roomID = NormalizeRoomCode(roomID)
	rec, err := s.Get(ctx, roomID)
	if err != nil {
		return rec, err
	}
	if rec.IsFull(s.maxPlayers) {
		return rec, ErrRoomFull
	}
	if rec.Status == models.RoomPlaying {
		return rec, ErrRoomInProgress
	}

	existing, _ := rec.Player(uid)
	entry := models.PlayerEntry{
		UID:         uid,
		DisplayName: displayName,
		IsHost:      existing.IsHost,
		Status:      models.PlayerReady,
	}
	if err := s.store.WritePartial(ctx, models.RoomsCollection, roomID, store.Fields{
		"players." + uid: entry,
	}); err != nil {
		return rec, fmt.Errorf("join room %s: %w", roomID, err)
	}
	rec.Players[uid] = entry

	log.Info().Str("room", roomID).Str("uid", uid).Msg("joined room")
	return rec, nil
}

// StartMatch moves the room to playing and resets every entry in one batched write.
// Host-only by convention; nothing enforces it.
func (s *RoomService) StartMatch(ctx context.Context, roomID string) error {
	rec, err := s.Get(ctx, roomID)
	if err != nil {
		return err
	}
	start := s.now().UnixMilli()
	fields := store.Fields{
		"status":    models.RoomPlaying,
		"startTime": start,
	}
	for uid := range rec.Players {
		fields["players."+uid+".status"] = models.PlayerPlaying
		fields["players."+uid+".score"] = 0
	}
	if err := s.store.WritePartial(ctx, models.RoomsCollection, rec.ID, fields); err != nil {
		return fmt.Errorf("start match in %s: %w", rec.ID, err)
	}
	log.Info().Str("room", rec.ID).Int("players", len(rec.Players)).Msg("match started")
	return nil
}

// RestartLobby rewinds a room to waiting for a new round.
func (s *RoomService) RestartLobby(ctx context.Context, roomID string) error {
	rec, err := s.Get(ctx, roomID)
	if err != nil {
		return err
	}
	fields := store.Fields{
		"status":    models.RoomWaiting,
		"startTime": nil,
	}
	for uid := range rec.Players {
		fields["players."+uid+".status"] = models.PlayerReady
		fields["players."+uid+".score"] = 0
	}
	if err := s.store.WritePartial(ctx, models.RoomsCollection, rec.ID, fields); err != nil {
		return fmt.Errorf("restart lobby in %s: %w", rec.ID, err)
	}
	log.Info().Str("room", rec.ID).Msg("lobby restarted")
	return nil
}

func (s *RoomService) ReportScore(ctx context.Context, roomID, uid string, score int) error {
	return s.store.WritePartial(ctx, models.RoomsCollection, NormalizeRoomCode(roomID), store.Fields{
		"players." + uid + ".score": score,
	})
}

func (s *RoomService) ReportResult(ctx context.Context, roomID, uid string, score int, status models.PlayerStatus) error {
	return s.store.WritePartial(ctx, models.RoomsCollection, NormalizeRoomCode(roomID), store.Fields{
		"players." + uid + ".score":  score,
		"players." + uid + ".status": status,
	})
}

// FinishRound marks the current round finished. Repeating it is harmless.
func (s *RoomService) FinishRound(ctx context.Context, roomID string) error {
	return s.store.WritePartial(ctx, models.RoomsCollection, NormalizeRoomCode(roomID), store.Fields{
		"status": models.RoomFinished,
	})
}

func (s *RoomService) freeCode(ctx context.Context) (string, error) {
	for i := 0; i < roomCodeAttempts; i++ {
		code := s.newCode()
		_, err := s.store.ReadOnce(ctx, models.RoomsCollection, code)
		if errors.Is(err, store.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
		log.Debug().Str("room", code).Msg("room code taken, drawing another")
	}
	return "", errors.New("no free room code")
}

func generateRoomCode() string {
	buf := make([]byte, roomCodeLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	out := make([]byte, roomCodeLength)
	for i, b := range buf {
		out[i] = roomCodeChars[int(b)%len(roomCodeChars)]
	}
	return string(out)
}
