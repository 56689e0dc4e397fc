package game

import "errors"

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomFull         = errors.New("room is full")
	ErrRoomStarted      = errors.New("game has already started")
	ErrRoomEnded        = errors.New("game has ended")
	ErrRoomClosed       = errors.New("room is shutting down")
	ErrPasswordRequired = errors.New("room requires a password")
	ErrPasswordInvalid  = errors.New("room password is incorrect")
	ErrNameInvalid      = errors.New("display name must be 1-40 characters")
	ErrNotHost          = errors.New("only the host may do that")
	ErrNotPlaying       = errors.New("room is not in a playing state")
	ErrNotSyncing       = errors.New("room is not in a syncing state")
	ErrUnknownPlayer    = errors.New("participant is not in this room")
	ErrSpectator        = errors.New("spectators cannot submit answers")
	ErrBackpressure     = errors.New("room command queue is full")
)
