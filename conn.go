// Package readaloud is a client for the Edge Read Aloud speech synthesis
// service. The service speaks WebSocket but rejects connections that do
// not carry specific browser headers, so the client runs its own upgrade
// handshake and RFC 6455 framing over a direct TLS socket instead of going
// through a higher-level WebSocket library.
//
// A Conn delivers events through a Handler: open, each complete message in
// wire order, at most one error, and exactly one close. All events arrive
// on one goroutine. Sends are asynchronous; each confirms through its own
// completion callback once the bytes reach the socket.
package readaloud

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/valyala/bytebufferpool"

	"github.com/edgewire/readaloud/wire"
)

// Handler bundles the connection event callbacks. Any callback may be nil.
//
// Ordering guarantees: OnOpen fires before any OnMessage; messages fire in
// wire order; OnError fires at most once and only before OnClose; OnClose
// fires exactly once, after which no further callbacks run.
type Handler struct {
	OnOpen    func()
	OnMessage func(payload []byte, binary bool)
	OnError   func(err error)
	OnClose   func()
}

// Opts adjusts a single connection. The zero value works for the Read
// Aloud service when the URL comes from drm.ConnectionURL.
type Opts struct {
	// Host overrides the Host header; defaults to the URL host.
	Host string

	// Origin and UserAgent go out as handshake headers when non-empty.
	Origin    string
	UserAgent string

	// Header carries extra handshake headers, typically Accept-Encoding,
	// Accept-Language and a session Cookie.
	Header http.Header

	// TLS overrides the client TLS configuration.
	TLS *tls.Config

	// Dialer overrides the TCP dialer.
	Dialer *net.Dialer

	// CloseGrace bounds how long Close waits for the peer's close reply
	// before tearing the transport down. Defaults to 5 seconds.
	CloseGrace time.Duration
}

const defaultCloseGrace = 5 * time.Second

type connState uint8

const (
	stateHandshake connState = iota
	stateActive
	stateClosedByUs
	stateClosedByPeer
	stateTerminated
)

// Conn is one connection to the service.
//
// A Conn is driven by two internal goroutines; the exported methods are
// safe to call from any single goroutine, but concurrent sends from
// multiple goroutines must be serialized by the caller.
type Conn struct {
	handler Handler
	opts    Opts

	tr    *transport
	src   *wire.Buffer
	codec wire.FrameCodec
	asm   wire.MessageAssembler
	hs    *handshake

	mu         sync.Mutex
	state      connState
	opened     bool
	graceTimer *time.Timer

	errorEmitted bool
	closeEmitted bool

	acceptVerified bool

	handshakeDone chan error
}

// Dial connects, upgrades and blocks until the connection is open or
// failed. ctx bounds only this wait: cancellation tears the socket down
// and Dial returns ctx's error. Once Dial returns nil the OnOpen event has
// been scheduled and frames flow.
//
// Failures before open are returned from Dial only; Handler events start
// with OnOpen.
func Dial(ctx context.Context, rawURL string, h Handler, opts *Opts) (*Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("readaloud: bad url: %w", err)
	}

	var useTLS bool
	switch u.Scheme {
	case "wss":
		useTLS = true
	case "ws":
		useTLS = false
	default:
		return nil, fmt.Errorf("readaloud: unsupported scheme %q", u.Scheme)
	}

	c := &Conn{
		handler:       h,
		src:           wire.NewBuffer(),
		handshakeDone: make(chan error, 1),
	}
	if opts != nil {
		c.opts = *opts
	}
	if c.opts.CloseGrace <= 0 {
		c.opts.CloseGrace = defaultCloseGrace
	}
	c.hs = newHandshake(u, &c.opts)

	addr := u.Host
	if u.Port() == "" {
		if useTLS {
			addr = net.JoinHostPort(u.Hostname(), "443")
		} else {
			addr = net.JoinHostPort(u.Hostname(), "80")
		}
	}

	dialer := c.opts.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	tuneSocket(netConn)

	stream := netConn
	if useTLS {
		cfg := c.opts.TLS
		if cfg == nil {
			cfg = &tls.Config{}
		}
		if cfg.ServerName == "" {
			cfg = cfg.Clone()
			cfg.ServerName = u.Hostname()
		}
		tlsConn := tls.Client(netConn, cfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			netConn.Close()
			return nil, err
		}
		stream = tlsConn
	}

	c.tr = newTransport(stream, c.onData, c.onClosed)
	c.tr.asyncWrite(c.hs.request(), func(err error) {
		if err != nil {
			c.tr.close(err)
		}
	})

	select {
	case err := <-c.handshakeDone:
		if err != nil {
			c.tr.close(nil)
			return nil, err
		}
		return c, nil
	case <-ctx.Done():
		// A handshake that completed in the same instant wins over the
		// cancellation.
		select {
		case err := <-c.handshakeDone:
			if err == nil {
				return c, nil
			}
		default:
		}
		c.tr.close(ctx.Err())
		return nil, ctx.Err()
	}
}

// AcceptVerified reports whether the server's Sec-WebSocket-Accept matched
// the sent key. A mismatch never fails the handshake; callers that care
// can log it.
func (c *Conn) AcceptVerified() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acceptVerified
}

// SendText queues one complete text frame. cb, if non-nil, fires once the
// frame reaches the socket or with the reason it could not.
func (c *Conn) SendText(s string, cb func(error)) {
	c.send(wire.OpcodeText, []byte(s), cb)
}

// SendBinary queues one complete binary frame.
func (c *Conn) SendBinary(p []byte, cb func(error)) {
	c.send(wire.OpcodeBinary, p, cb)
}

func (c *Conn) send(op wire.Opcode, payload []byte, cb func(error)) {
	c.mu.Lock()
	active := c.state == stateActive
	c.mu.Unlock()

	if !active {
		if cb != nil {
			cb(ErrClosed)
		}
		return
	}
	c.writeFrame(op, payload, cb)
}

// writeFrame encodes one masked frame into a pooled buffer and queues it.
// Encoding copies payload, so the caller's slice is free immediately.
func (c *Conn) writeFrame(op wire.Opcode, payload []byte, cb func(error)) {
	f := wire.Frame{Fin: true, Opcode: op, Payload: payload}

	bb := bytebufferpool.Get()
	c.codec.Encode(&f, bb)

	c.tr.asyncWrite(bb.B, func(err error) {
		bytebufferpool.Put(bb)
		if cb != nil {
			cb(err)
		}
	})
}

// Close starts the closing handshake: it sends a close frame, then waits
// up to CloseGrace for the peer's reply before tearing the transport down.
// Close is idempotent and returns without waiting; OnClose fires once
// teardown completes.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.state >= stateClosedByUs {
		c.mu.Unlock()
		return
	}
	wasActive := c.state == stateActive
	c.state = stateClosedByUs
	grace := c.opts.CloseGrace
	c.mu.Unlock()

	if !wasActive {
		// Still in the handshake: nothing to say to the peer.
		c.teardown(nil)
		return
	}

	c.writeFrame(wire.OpcodeClose, wire.EncodeClosePayload(wire.CloseNormal, ""), nil)

	c.mu.Lock()
	if c.state == stateClosedByUs {
		c.graceTimer = time.AfterFunc(grace, func() { c.teardown(nil) })
	}
	c.mu.Unlock()
}

// teardown closes the transport; the read pump then reports through
// onClosed exactly once.
func (c *Conn) teardown(cause error) {
	c.mu.Lock()
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
	c.mu.Unlock()
	c.tr.close(cause)
}

// onData runs on the read pump for every inbound chunk: finish the
// handshake if still in it, then decode and dispatch complete frames until
// the buffer runs dry.
func (c *Conn) onData(b []byte) {
	c.src.Write(b)
	c.src.Commit(len(b))

	c.mu.Lock()
	inHandshake := c.state == stateHandshake
	c.mu.Unlock()

	if inHandshake {
		done, err := c.hs.tryComplete(c.src)
		if err != nil {
			c.mu.Lock()
			c.state = stateTerminated
			c.mu.Unlock()
			select {
			case c.handshakeDone <- err:
			default:
			}
			c.teardown(nil)
			return
		}
		if !done {
			return
		}

		c.mu.Lock()
		c.state = stateActive
		c.opened = true
		c.acceptVerified = c.hs.verified
		c.mu.Unlock()

		c.handshakeDone <- nil
		if c.handler.OnOpen != nil {
			c.handler.OnOpen()
		}
	}

	for {
		// Once the close event is out nothing further may be delivered,
		// even if more frames are already buffered.
		c.mu.Lock()
		done := c.state == stateTerminated || c.closeEmitted
		c.mu.Unlock()
		if done {
			return
		}

		f, err := c.codec.Decode(c.src)
		if errors.Is(err, wire.ErrNeedMore) {
			return
		}
		if err != nil {
			c.fatal(err)
			return
		}

		err = c.handleFrame(f)
		wire.ReleaseFrame(f)
		if err != nil {
			c.fatal(err)
			return
		}
	}
}

func (c *Conn) handleFrame(f *wire.Frame) error {
	if f.IsControl() {
		return c.handleControlFrame(f)
	}
	return c.handleDataFrame(f)
}

func (c *Conn) handleControlFrame(f *wire.Frame) error {
	if !f.Fin || len(f.Payload) > wire.MaxControlPayloadLen {
		return wire.ErrInvalidControlFrame
	}

	switch {
	case f.Opcode.IsPing():
		c.mu.Lock()
		active := c.state == stateActive
		c.mu.Unlock()
		if active {
			c.writeFrame(wire.OpcodePong, f.Payload, nil)
		}
	case f.Opcode.IsPong():
		// Unsolicited pongs are legal and carry nothing actionable.
	case f.Opcode.IsClose():
		c.handlePeerClose(f)
	default:
		return wire.ErrInvalidControlFrame
	}
	return nil
}

// handlePeerClose answers the peer's close and finishes the connection.
// If we closed first this is the reply we were waiting for.
func (c *Conn) handlePeerClose(f *wire.Frame) {
	c.mu.Lock()
	state := c.state
	switch state {
	case stateActive:
		c.state = stateClosedByPeer
	case stateClosedByUs:
		c.state = stateTerminated
	default:
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if state == stateActive {
		// Echo the close payload back, then tear down once the reply has
		// reached the socket so it is not lost with the connection.
		c.emitClose()
		c.writeFrame(wire.OpcodeClose, f.Payload, func(error) {
			c.teardown(nil)
		})
		return
	}

	// Our close was acknowledged; no reply to a reply. Teardown rides the
	// write queue so our own close frame is flushed before the socket goes.
	c.emitClose()
	c.tr.asyncWrite(nil, func(error) { c.teardown(nil) })
}

func (c *Conn) handleDataFrame(f *wire.Frame) error {
	switch {
	case f.Opcode.IsContinuation():
		if !c.asm.InProgress() {
			return wire.ErrUnexpectedContinuation
		}
		if !f.Fin {
			c.asm.Append(f.Payload)
			return nil
		}
		op, payload := c.asm.Complete(f.Payload)
		c.dispatch(op, payload)

	case c.asm.InProgress():
		return wire.ErrFragmentOverlap

	case f.Fin:
		c.dispatch(f.Opcode, f.Payload)

	default:
		c.asm.Begin(f.Opcode, f.Payload)
	}
	return nil
}

// dispatch delivers one complete message. The payload is only valid for
// the duration of the callback when it comes straight from a frame; the
// handler copies if it keeps it.
func (c *Conn) dispatch(op wire.Opcode, payload []byte) {
	if c.handler.OnMessage != nil {
		c.handler.OnMessage(payload, op.IsBinary())
	}
}

// fatal surfaces one error event and finishes the connection. Frame level
// protocol violations and transport failures both land here.
func (c *Conn) fatal(err error) {
	c.mu.Lock()
	deliberate := c.state >= stateClosedByUs
	c.state = stateTerminated
	c.mu.Unlock()

	if !deliberate {
		c.emitError(err)
	}
	c.emitClose()
	c.teardown(err)
}

// onClosed runs on the read pump after the transport is gone, whatever
// initiated the teardown.
func (c *Conn) onClosed(cause error) {
	c.mu.Lock()
	opened := c.opened
	deliberate := c.state >= stateClosedByUs
	c.state = stateTerminated
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
	c.mu.Unlock()

	if !opened {
		// The transport died before the 101: surface through Dial.
		if cause == nil {
			cause = ErrClosed
		}
		select {
		case c.handshakeDone <- cause:
		default:
		}
		return
	}

	if cause != nil && !deliberate {
		c.emitError(cause)
	}
	c.emitClose()
}

// emitError delivers OnError at most once and never after OnClose.
func (c *Conn) emitError(err error) {
	c.mu.Lock()
	if c.errorEmitted || c.closeEmitted || !c.opened {
		c.mu.Unlock()
		return
	}
	c.errorEmitted = true
	c.mu.Unlock()

	if c.handler.OnError != nil {
		c.handler.OnError(err)
	}
}

// emitClose delivers OnClose exactly once.
func (c *Conn) emitClose() {
	c.mu.Lock()
	if c.closeEmitted || !c.opened {
		c.mu.Unlock()
		return
	}
	c.closeEmitted = true
	c.mu.Unlock()

	if c.handler.OnClose != nil {
		c.handler.OnClose()
	}
}
