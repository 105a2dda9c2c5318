package domain

import "errors"

var (
	ErrCallNotFound    = errors.New("call not found")
	ErrCallTerminal    = errors.New("call already in terminal state")
	ErrNotParticipant  = errors.New("user is not a call participant")
	ErrUserOffline     = errors.New("user is not online")
	ErrAlreadyMatched  = errors.New("user is already matched or in a call")
	ErrNoSkills        = errors.New("no valid skills provided")
	ErrVersionConflict = errors.New("concurrent call update detected")
	ErrUserNotFound    = errors.New("user not found")
)
