package readaloud

import "errors"

var (
	// ErrClosed reports an operation on a connection that has already
	// been closed, deliberately or by failure.
	ErrClosed = errors.New("connection closed")

	// ErrUpgradeFailed reports a handshake response whose status line did
	// not carry 101. The wrapped message includes the status line.
	ErrUpgradeFailed = errors.New("websocket upgrade failed")
)
