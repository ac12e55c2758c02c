package errors

import "errors"

var (
	ErrUserNotFound    = errors.New("user with provided username was not found")
	ErrWrongPassword   = errors.New("wrong password")
	ErrSessionNotFound = errors.New("session was not found")
	ErrUserExists      = errors.New("user already exists")
	ErrEmailExists     = errors.New("email already registered")
	ErrInternal        = errors.New("internal error")

	ErrInvalidUsername = errors.New("username must be 1-15 lowercase letters or digits")
	ErrInvalidEmail    = errors.New("invalid email")
	ErrWeakPassword    = errors.New("password must be at least 6 characters")
	ErrBioTooLong      = errors.New("bio must be at most 200 characters")
	ErrUnknownAvatar   = errors.New("unknown avatar")
	ErrProfileNotFound = errors.New("profile not found")

	ErrCreateGameFailed = errors.New("create game failed")
	ErrJoinGameFailed   = errors.New("join game failed")
	ErrGameNotFound     = errors.New("game not found")
	ErrAlreadyInGame    = errors.New("player already has an active game")
	ErrSelfChallenge    = errors.New("cannot challenge yourself")
	ErrNotYourGame      = errors.New("not a player of this game")
	ErrNotChallenged    = errors.New("challenge is addressed to another player")
	ErrGameNotWaiting   = errors.New("game is not waiting for an opponent")
	ErrGameNotRunning   = errors.New("game is not in progress")
	ErrGameInProgress   = errors.New("game is still in progress")
	ErrNoActiveGame     = errors.New("no active game")
	ErrInvalidChoice    = errors.New("choice must be rock, paper or scissors")
	ErrChoiceRejected   = errors.New("choice was not accepted for this turn")
	ErrClientClosed     = errors.New("client closed")
	ErrUnknownCommand   = errors.New("unknown command")
)
