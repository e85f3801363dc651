// Package drm derives the time-windowed Sec-MS-GEC token the speech service
// requires on every connection and metadata request, and builds the URLs
// that carry it.
//
// The token is the SHA-256 of the current time, expressed as Windows
// file-time ticks truncated to a 5-minute boundary, concatenated with the
// trusted client token. The service accepts it only while the server's own
// clock sits in the same window, so a Skew tracks a running correction
// derived from server Date headers whenever the service reports a
// time-based rejection.
package drm

import (
	"crypto/sha256"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const (
	// Seconds between the Windows file-time epoch (1601-01-01) and the
	// Unix epoch.
	winEpochOffset = 11644473600

	// Windows file-time counts 100ns ticks.
	ticksPerSecond = 10_000_000

	// Tokens are constant within one window; the service accepts a token
	// whose window matches its own clock.
	windowSeconds = 300
)

// Skew tracks the cumulative correction between the local clock and the
// service's clock. One Skew serves all connections to one logical service;
// connections to distinct services take distinct trackers so corrections
// never cross-contaminate.
//
// The zero value is ready to use. All methods are safe for concurrent use.
type Skew struct {
	mu     sync.Mutex
	offset time.Duration

	now func() time.Time // test hook, nil means time.Now
}

func NewSkew() *Skew {
	return &Skew{}
}

func (s *Skew) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Now returns the local time with the running correction applied.
func (s *Skew) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock().Add(s.offset)
}

// Offset returns the running correction.
func (s *Skew) Offset() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// Adjust folds a server-reported Date header into the running correction.
//
// The difference between the server's time and the already-corrected local
// time is added to the offset, so repeated calls converge on the server's
// clock instead of oscillating.
func (s *Skew) Adjust(serverDate string) error {
	t, err := http.ParseTime(serverDate)
	if err != nil {
		return fmt.Errorf("drm: cannot parse server date %q: %w", serverDate, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.offset += t.Sub(s.clock().Add(s.offset))
	return nil
}

// Token computes the Sec-MS-GEC value for the current 5-minute window.
//
// Two calls inside one window (after correction) return the same token;
// calls in different windows return different tokens.
func (s *Skew) Token() string {
	secs := s.Now().Unix() + winEpochOffset
	secs -= secs % windowSeconds

	sum := sha256.Sum256([]byte(fmt.Sprintf("%d%s", secs*ticksPerSecond, TrustedClientToken)))
	return fmt.Sprintf("%X", sum)
}
