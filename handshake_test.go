package readaloud

import (
	"bufio"
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edgewire/readaloud/wire"
)

func parseUpgradeRequest(t *testing.T, h *handshake) *http.Request {
	t.Helper()
	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(h.request())))
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestUpgradeRequestFormat(t *testing.T) {
	assert := assert.New(t)

	u, _ := url.Parse("wss://synth.example.com/edge/v1?TrustedClientToken=abc&ConnectionId=123")
	opts := &Opts{
		Origin:    "chrome-extension://test",
		UserAgent: "test-agent",
		Header: http.Header{
			"Cookie":          {"session=opaque"},
			"Accept-Language": {"en-US"},
		},
	}

	req := parseUpgradeRequest(t, newHandshake(u, opts))

	assert.Equal("GET", req.Method)
	assert.Equal("/edge/v1?TrustedClientToken=abc&ConnectionId=123", req.RequestURI)
	assert.Equal("synth.example.com", req.Host)
	assert.Equal("websocket", req.Header.Get("Upgrade"))
	assert.Equal("Upgrade", req.Header.Get("Connection"))
	assert.Equal("13", req.Header.Get("Sec-WebSocket-Version"))
	assert.Equal("chrome-extension://test", req.Header.Get("Origin"))
	assert.Equal("test-agent", req.Header.Get("User-Agent"))
	assert.Equal("session=opaque", req.Header.Get("Cookie"))
	assert.Equal("en-US", req.Header.Get("Accept-Language"))
	assert.NotEmpty(req.Header.Get("Sec-WebSocket-Key"))
}

func TestUpgradeRequestHostOverride(t *testing.T) {
	u, _ := url.Parse("wss://127.0.0.1:9999/edge/v1")
	req := parseUpgradeRequest(t, newHandshake(u, &Opts{Host: "synth.example.com"}))

	if req.Host != "synth.example.com" {
		t.Fatalf("Host = %q", req.Host)
	}
}

func TestUpgradeRequestFreshKeys(t *testing.T) {
	u, _ := url.Parse("wss://synth.example.com/edge/v1")

	a := parseUpgradeRequest(t, newHandshake(u, &Opts{}))
	b := parseUpgradeRequest(t, newHandshake(u, &Opts{}))

	if a.Header.Get("Sec-WebSocket-Key") == b.Header.Get("Sec-WebSocket-Key") {
		t.Fatal("Sec-WebSocket-Key reused across connections")
	}
}

func TestHandshakeWaitsForFullHeader(t *testing.T) {
	u, _ := url.Parse("wss://synth.example.com/edge/v1")
	h := newHandshake(u, &Opts{})

	src := wire.NewBuffer()
	feed := func(s string) {
		src.Write([]byte(s))
		src.Commit(len(s))
	}

	feed("HTTP/1.1 101 Switching")
	done, err := h.tryComplete(src)
	if done || err != nil {
		t.Fatalf("done=%v err=%v on partial status line", done, err)
	}

	feed(" Protocols\r\nUpgrade: websocket\r\n")
	done, err = h.tryComplete(src)
	if done || err != nil {
		t.Fatalf("done=%v err=%v on partial header", done, err)
	}

	feed("\r\n")
	done, err = h.tryComplete(src)
	if !done || err != nil {
		t.Fatalf("done=%v err=%v on complete header", done, err)
	}
	if src.ReadLen() != 0 {
		t.Fatalf("%d header bytes left unconsumed", src.ReadLen())
	}
}

func TestHandshakeKeepsTrailingFrameBytes(t *testing.T) {
	u, _ := url.Parse("wss://synth.example.com/edge/v1")
	h := newHandshake(u, &Opts{})

	frame := []byte{0x81, 2, 'h', 'i'}
	raw := append([]byte("HTTP/1.1 101 Switching Protocols\r\n\r\n"), frame...)

	src := wire.NewBuffer()
	src.Write(raw)
	src.Commit(len(raw))

	done, err := h.tryComplete(src)
	if !done || err != nil {
		t.Fatalf("done=%v err=%v", done, err)
	}
	if !bytes.Equal(src.Data(), frame) {
		t.Fatalf("buffer holds % x, want the frame bytes", src.Data())
	}
}

func TestHandshakeRejectsNon101(t *testing.T) {
	u, _ := url.Parse("wss://synth.example.com/edge/v1")
	h := newHandshake(u, &Opts{})

	raw := "HTTP/1.1 403 Forbidden\r\nContent-Length: 0\r\n\r\n"
	src := wire.NewBuffer()
	src.Write([]byte(raw))
	src.Commit(len(raw))

	_, err := h.tryComplete(src)
	if !errors.Is(err, ErrUpgradeFailed) {
		t.Fatalf("err = %v, want ErrUpgradeFailed", err)
	}
}

func TestHandshakeAcceptRecordedNotEnforced(t *testing.T) {
	u, _ := url.Parse("wss://synth.example.com/edge/v1")

	respond := func(h *handshake, accept string) (bool, error) {
		raw := "HTTP/1.1 101 Switching Protocols\r\nSec-WebSocket-Accept: " + accept + "\r\n\r\n"
		src := wire.NewBuffer()
		src.Write([]byte(raw))
		src.Commit(len(raw))
		return h.tryComplete(src)
	}

	h := newHandshake(u, &Opts{})
	key := parseUpgradeRequest(t, h).Header.Get("Sec-WebSocket-Key")
	done, err := respond(h, acceptFor(key))
	if !done || err != nil {
		t.Fatalf("done=%v err=%v", done, err)
	}
	if !h.verified {
		t.Fatal("matching accept not recorded as verified")
	}

	// A wrong accept is recorded but the upgrade still succeeds.
	h = newHandshake(u, &Opts{})
	done, err = respond(h, "d3Jvbmcga2V5IGVudGlyZWx5")
	if !done || err != nil {
		t.Fatalf("done=%v err=%v on mismatched accept", done, err)
	}
	if h.verified {
		t.Fatal("mismatched accept recorded as verified")
	}
}
