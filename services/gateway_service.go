package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"coinrush/models"
	"coinrush/store"

	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidDocument = errors.New("invalid document reference")
	ErrArchiveDisabled = errors.New("round archive not configured")
)

// GatewayService fronts a document store for remote participants. It also
// archives rounds as rooms are marked finished.
type GatewayService struct {
	store   store.DocumentStore
	archive *ArchiveService
	now     func() time.Time
}

func NewGatewayService(st store.DocumentStore, archive *ArchiveService) *GatewayService {
	return &GatewayService{
		store:   st,
		archive: archive,
		now:     time.Now,
	}
}

func validRef(collection, id string) error {
	if collection == "" || id == "" || strings.ContainsAny(collection, ":. ") || strings.Contains(id, ":") {
		return fmt.Errorf("%w: %q/%q", ErrInvalidDocument, collection, id)
	}
	return nil
}

func (s *GatewayService) CreateDocument(ctx context.Context, collection, id string, doc store.Document) error {
	if err := validRef(collection, id); err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("%w: empty document", ErrInvalidDocument)
	}
	return s.store.Create(ctx, collection, id, doc)
}

func (s *GatewayService) ReadDocument(ctx context.Context, collection, id string) (store.Document, error) {
	if err := validRef(collection, id); err != nil {
		return nil, err
	}
	return s.store.ReadOnce(ctx, collection, id)
}

func (s *GatewayService) WriteDocument(ctx context.Context, collection, id string, fields store.Fields) error {
	if err := validRef(collection, id); err != nil {
		return err
	}
	if len(fields) == 0 {
		return fmt.Errorf("%w: no fields", ErrInvalidDocument)
	}
	for path := range fields {
		if path == "" || strings.HasPrefix(path, ".") || strings.HasSuffix(path, ".") || strings.Contains(path, "..") {
			return fmt.Errorf("%w: bad field path %q", ErrInvalidDocument, path)
		}
	}
	if err := s.store.WritePartial(ctx, collection, id, fields); err != nil {
		return err
	}

	if collection == models.RoomsCollection && finishesRound(fields) {
		s.archiveRoom(ctx, id)
	}
	return nil
}

func (s *GatewayService) Subscribe(ctx context.Context, collection, id string, onChange func(store.Document), onError func(error)) (store.Unsubscribe, error) {
	if err := validRef(collection, id); err != nil {
		return nil, err
	}
	return s.store.Subscribe(ctx, collection, id, onChange, onError)
}

func (s *GatewayService) RoomResults(roomID string) ([]models.Round, error) {
	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}
	return s.archive.RoundsForRoom(roomID)
}

func finishesRound(fields store.Fields) bool {
	status, ok := fields["status"]
	if !ok {
		return false
	}
	switch v := status.(type) {
	case string:
		return v == string(models.RoomFinished)
	case models.RoomStatus:
		return v == models.RoomFinished
	}
	return false
}

// archiveRoom failures never fail the write that triggered them.
func (s *GatewayService) archiveRoom(ctx context.Context, roomID string) {
	if s.archive == nil {
		return
	}
	doc, err := s.store.ReadOnce(ctx, models.RoomsCollection, roomID)
	if err != nil {
		log.Warn().Err(err).Str("room", roomID).Msg("could not read finished room")
		return
	}
	rec, err := models.RoomFromDocument(doc)
	if err != nil {
		log.Warn().Err(err).Str("room", roomID).Msg("could not decode finished room")
		return
	}
	if rec.ID == "" {
		rec.ID = roomID
	}
	if err := s.archive.RecordRound(rec, s.now()); err != nil {
		log.Error().Err(err).Str("room", roomID).Msg("failed to archive round")
	}
}
