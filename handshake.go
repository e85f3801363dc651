package readaloud

import (
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/edgewire/readaloud/wire"
)

// handshake drives the single HTTP/1.1 request/response pair that turns
// the fresh TLS stream into a WebSocket connection.
//
// The request is written byte-for-byte rather than through net/http so the
// service's required connection headers (Origin, User-Agent, Cookie) go
// out exactly as given. The response is parsed from the same accumulation
// buffer the frame decoder reads; bytes past the header terminator stay in
// the buffer and decode as frames.
type handshake struct {
	req      []byte
	expected string // Sec-WebSocket-Accept for the sent key

	done     bool
	verified bool
}

func newHandshake(u *url.URL, opts *Opts) *handshake {
	key := newSecWebSocketKey()
	h := &handshake{expected: acceptFor(key)}

	host := opts.Host
	if host == "" {
		host = u.Host
	}

	var b strings.Builder
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\n", u.RequestURI())
	fmt.Fprintf(&b, "Host: %s\r\n", host)
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(&b, "Sec-WebSocket-Key: %s\r\n", key)
	b.WriteString("Sec-WebSocket-Version: 13\r\n")
	if opts.Origin != "" {
		fmt.Fprintf(&b, "Origin: %s\r\n", opts.Origin)
	}
	if opts.UserAgent != "" {
		fmt.Fprintf(&b, "User-Agent: %s\r\n", opts.UserAgent)
	}
	for k, vs := range opts.Header {
		for _, v := range vs {
			fmt.Fprintf(&b, "%s: %s\r\n", k, v)
		}
	}
	b.WriteString("\r\n")

	h.req = []byte(b.String())
	return h
}

// request returns the upgrade request bytes to put on the wire.
func (h *handshake) request() []byte {
	return h.req
}

// tryComplete scans src for the response header terminator. Before the
// terminator arrives it reports (false, nil) and the caller waits for more
// bytes. Once the full header is in, the status line decides the upgrade:
// anything without 101 fails. Header bytes are consumed; any trailing
// frame bytes from the same read are left for the decoder.
func (h *handshake) tryComplete(src *wire.Buffer) (bool, error) {
	i := bytes.Index(src.Data(), []byte("\r\n\r\n"))
	if i < 0 {
		return false, nil
	}
	head := string(src.Data()[:i])

	statusLine, headers, _ := strings.Cut(head, "\r\n")
	if !strings.Contains(statusLine, "101") {
		return false, fmt.Errorf("%w: %s", ErrUpgradeFailed, strings.TrimSpace(statusLine))
	}

	// The accept key is checked but a mismatch does not fail the upgrade.
	// The result is recorded and exposed through Conn.AcceptVerified.
	h.verified = h.checkAccept(headers)

	src.Consume(i + 4)
	h.done = true
	return true, nil
}

func (h *handshake) checkAccept(headers string) bool {
	for _, line := range strings.Split(headers, "\r\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), "Sec-WebSocket-Accept") {
			return strings.TrimSpace(value) == h.expected
		}
	}
	return false
}

// newSecWebSocketKey returns a fresh random key, one per connection.
func newSecWebSocketKey() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.StdEncoding.EncodeToString(b)
}

// acceptFor computes the Sec-WebSocket-Accept the server should answer
// with, per RFC 6455 section 4.2.2.
func acceptFor(key string) string {
	sum := sha1.Sum([]byte(key + wire.GUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}
