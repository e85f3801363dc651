package wire

import "errors"

var (
	// ErrNeedMore reports that the buffer does not yet hold a complete
	// frame. The decoder consumes nothing in that case; the caller waits
	// for more transport bytes and retries.
	ErrNeedMore = errors.New("need more bytes")

	// ErrFrameTooBig reports a declared payload length above
	// MaxFramePayloadLen.
	ErrFrameTooBig = errors.New("frame payload too big")

	// ErrInvalidControlFrame reports a fragmented control frame or a
	// control payload above MaxControlPayloadLen.
	ErrInvalidControlFrame = errors.New("invalid control frame")

	// ErrUnexpectedContinuation reports a continuation frame with no
	// fragmented message in progress.
	ErrUnexpectedContinuation = errors.New("continuation frame with nothing to continue")

	// ErrFragmentOverlap reports a new data frame starting while a
	// fragmented message is still in progress.
	ErrFragmentOverlap = errors.New("data frame interleaved with unfinished fragmented message")
)
