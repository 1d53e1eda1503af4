package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// RoomsCollection is the document collection holding room records.
const RoomsCollection = "rooms"

type RoomStatus string

const (
	RoomWaiting  RoomStatus = "waiting"
	RoomPlaying  RoomStatus = "playing"
	RoomFinished RoomStatus = "finished"
)

type PlayerStatus string

const (
	PlayerReady    PlayerStatus = "ready"
	PlayerPlaying  PlayerStatus = "playing"
	PlayerCrashed  PlayerStatus = "crashed"
	PlayerFinished PlayerStatus = "finished"
)

// Done reports whether the player is out of the current round.
func (s PlayerStatus) Done() bool {
	return s == PlayerCrashed || s == PlayerFinished
}

type PlayerEntry struct {
	UID         string       `json:"uid"`
	DisplayName string       `json:"displayName"`
	Score       int          `json:"score"`
	IsHost      bool         `json:"isHost"`
	Status      PlayerStatus `json:"status"`
}

// RoomRecord is the shared document every participant of a room reads and writes.
// Timestamps are Unix milliseconds.
type RoomRecord struct {
	ID        string                 `json:"id"`
	CreatedAt int64                  `json:"createdAt"`
	Status    RoomStatus             `json:"status"`
	StartTime *int64                 `json:"startTime"`
	Players   map[string]PlayerEntry `json:"players"`
}

func (r RoomRecord) Player(uid string) (PlayerEntry, bool) {
	p, ok := r.Players[uid]
	return p, ok
}

// Host returns the first entry flagged as host.
func (r RoomRecord) Host() (PlayerEntry, bool) {
	for _, p := range r.Players {
		if p.IsHost {
			return p, true
		}
	}
	return PlayerEntry{}, false
}

// ActiveCount counts the players still racing in the current round.
func (r RoomRecord) ActiveCount() int {
	n := 0
	for _, p := range r.Players {
		if p.Status == PlayerPlaying {
			n++
		}
	}
	return n
}

func (r RoomRecord) IsFull(maxPlayers int) bool {
	return len(r.Players) >= maxPlayers
}

// StartedAt returns the round start, or the zero time when no round is running.
func (r RoomRecord) StartedAt() time.Time {
	if r.StartTime == nil {
		return time.Time{}
	}
	return time.UnixMilli(*r.StartTime)
}

// Standings orders players by score, highest first, ties broken by name then uid.
func (r RoomRecord) Standings() []PlayerEntry {
	out := make([]PlayerEntry, 0, len(r.Players))
	for _, p := range r.Players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].UID < out[j].UID
	})
	return out
}

// ToDocument converts the record into the generic document shape used by the stores.
func (r RoomRecord) ToDocument() (map[string]any, error) {
	if r.Players == nil {
		r.Players = map[string]PlayerEntry{}
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode room %s: %w", r.ID, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("encode room %s: %w", r.ID, err)
	}
	return doc, nil
}

// RoomFromDocument decodes a store document into a RoomRecord.
func RoomFromDocument(doc map[string]any) (RoomRecord, error) {
	var rec RoomRecord
	data, err := json.Marshal(doc)
	if err != nil {
		return rec, fmt.Errorf("decode room: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode room: %w", err)
	}
	if rec.Players == nil {
		rec.Players = map[string]PlayerEntry{}
	}
	return rec, nil
}
