package services

import "errors"

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomFull       = errors.New("room full")
	ErrRoomInProgress = errors.New("round already in progress")
	ErrCreateFailed   = errors.New("could not create room")
	ErrNotInRoom      = errors.New("not in a room")
)
