package adapter

import "time"

type Config struct {
	Token string
	// PollTimeout is the getUpdates long-poll window.
	PollTimeout time.Duration
	// RequestTimeout bounds every Bot API call other than the long poll itself.
	RequestTimeout time.Duration
	// Offline skips the getMe handshake (tests).
	Offline bool
}
