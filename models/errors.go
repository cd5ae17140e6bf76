package models

import "errors"

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrGameInProgress      = errors.New("game already in progress")
	ErrRoomFull            = errors.New("room is full")
	ErrInsufficientPlayers = errors.New("not enough players to start")
	ErrUnauthorized        = errors.New("not allowed")
	ErrInvalidRound        = errors.New("invalid round")
	ErrInvalidChoice       = errors.New("invalid vote choice")
	ErrNoStories           = errors.New("no stories submitted")

	// ErrAlreadyProcessed marks a duplicate trigger of a lease-protected
	// operation. Callers treat it as a silent no-op, not a failure.
	ErrAlreadyProcessed = errors.New("operation already processed")
)
