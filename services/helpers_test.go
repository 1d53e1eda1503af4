package services

import (
	"coinrush/models"
)

func ms(v int64) *int64 { return &v }

type roomOption func(*models.RoomRecord)

func withPlayer(uid string, status models.PlayerStatus, host bool) roomOption {
	return func(r *models.RoomRecord) {
		r.Players[uid] = models.PlayerEntry{UID: uid, DisplayName: uid, Status: status, IsHost: host}
	}
}

func withScore(uid string, score int) roomOption {
	return func(r *models.RoomRecord) {
		p := r.Players[uid]
		p.Score = score
		r.Players[uid] = p
	}
}

func room(status models.RoomStatus, start *int64, opts ...roomOption) models.RoomRecord {
	r := models.RoomRecord{
		ID:        "ABC234",
		CreatedAt: 1_000,
		Status:    status,
		StartTime: start,
		Players:   map[string]models.PlayerEntry{},
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}
