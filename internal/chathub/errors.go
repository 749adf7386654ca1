package chathub

import "errors"

// All matchmaking errors are recoverable and surfaced to the caller as typed
// results; nothing in this package is fatal.
var (
	// ErrAlreadyWaiting is returned when a user who already has a waiting
	// entry tries to enqueue again.
	ErrAlreadyWaiting = errors.New("chathub: user is already waiting for a partner")

	// ErrAlreadyInSession is returned when a user with an active session
	// tries to start another one.
	ErrAlreadyInSession = errors.New("chathub: user already has an active session")

	// ErrNoActiveSession is returned by session operations for users who
	// are not currently paired.
	ErrNoActiveSession = errors.New("chathub: user has no active session")

	// ErrSelfMatch guards the two-distinct-participants invariant.
	ErrSelfMatch = errors.New("chathub: cannot pair a user with themselves")

	// ErrDeliveryFailed is returned when a relayed message cannot reach the
	// partner (blocked or unreachable). The session is ended before it is
	// returned.
	ErrDeliveryFailed = errors.New("chathub: message could not be delivered to the partner")
)
