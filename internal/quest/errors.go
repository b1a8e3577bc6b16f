package quest

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidPosition   = errors.New("invalid grid position")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient points")
	ErrAlreadyPurchased  = errors.New("item already purchased")
	ErrUnknownItem       = errors.New("unknown shop item")
	ErrTaskCompleted     = errors.New("task already completed")
	ErrTaskPending       = errors.New("another task is awaiting completion")
	ErrTaskNotOpen       = errors.New("task is not awaiting a photo")
	ErrSkipUnavailable   = errors.New("skip ability not available")
	ErrStopLocked        = errors.New("treasure stop not reached yet")
	ErrAlreadyFound      = errors.New("treasure location already found")
	ErrProofRejected     = errors.New("location proof rejected")
	ErrInvalidCommand    = errors.New("invalid command")

	// ErrSchemaDrift marks a store that lacks an expected column.
	ErrSchemaDrift = errors.New("store schema drift")
	// ErrOffline marks failures caused by lost connectivity to the store.
	ErrOffline = errors.New("store unreachable")
)
