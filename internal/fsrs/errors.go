package fsrs

import "errors"

var (
	ErrNotFound      = errors.New("card not found")
	ErrAlreadyBuried = errors.New("card is already buried")
	ErrSuspended     = errors.New("card is suspended")
	ErrInvalidState  = errors.New("invalid card state")
	ErrInvalidRating = errors.New("invalid rating")
)
