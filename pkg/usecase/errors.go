package usecase

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for authentication and identity resolution. Handlers map
// these to HTTP statuses; the raw messages are logged, never returned to
// callers.
var (
	// ErrTokenMalformed means the bearer token could not be parsed
	ErrTokenMalformed = goerr.New("malformed session token")

	// ErrTokenUnverified means the token parsed but its signature could not
	// be verified against a currently valid provider key
	ErrTokenUnverified = goerr.New("session token verification failed")

	// ErrTokenExpired means the token verified but is outside its validity
	// window
	ErrTokenExpired = goerr.New("session token expired")

	// ErrIdentityDeleted means the subject's local record is tombstoned.
	// Tombstones are only cleared by provider events, never by JIT repair.
	ErrIdentityDeleted = goerr.New("identity record is deleted")
)
