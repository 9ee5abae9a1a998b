package conversation

import "errors"

var (
	// ErrNoActiveSession is returned by Submit when the key has no session.
	ErrNoActiveSession = errors.New("no active bug report session")
	// ErrEmptyRequiredAnswer is returned by Submit when a required field got blank input.
	ErrEmptyRequiredAnswer = errors.New("answer required")
)
