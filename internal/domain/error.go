package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrAlreadyExists       = errors.New("entity already exists")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrDailyLimitReached   = errors.New("daily story limit reached")
	ErrNoSubscription      = errors.New("no active subscription")
	ErrForbidden           = errors.New("not allowed")
	ErrNotCompleted        = errors.New("story is not completed")
	ErrInvalidExecContext  = errors.New("invalid executor context")
	ErrReadDatabaseRow     = errors.New("failed to read database row")
	ErrDuplicateEvent      = errors.New("billing event already processed")
)
