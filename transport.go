package readaloud

import (
	"net"
	"sync"

	"github.com/eapache/queue"
)

// transport owns the socket and its two pumps. The read pump delivers
// every inbound chunk to onData and is the only goroutine that dispatches
// connection events; the write pump drains a FIFO of queued writes and
// confirms each one through its completion callback.
//
// Teardown funnels through the socket: close records the cause and closes
// the socket, which unblocks both pumps; the read pump then reports the
// recorded cause exactly once via onClosed.
type transport struct {
	conn net.Conn

	mu     sync.Mutex
	writes *queue.Queue // of pendingWrite
	closed bool
	cause  error
	wake   chan struct{}

	onData   func([]byte)
	onClosed func(error)
}

type pendingWrite struct {
	b  []byte
	cb func(error)
}

func newTransport(conn net.Conn, onData func([]byte), onClosed func(error)) *transport {
	t := &transport{
		conn:     conn,
		writes:   queue.New(),
		wake:     make(chan struct{}, 1),
		onData:   onData,
		onClosed: onClosed,
	}
	go t.readPump()
	go t.writePump()
	return t
}

// asyncWrite queues b and returns without waiting for the peer. cb fires
// with the socket write result, in queue order. Writes queued after close
// fail with ErrClosed.
func (t *transport) asyncWrite(b []byte, cb func(error)) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		if cb != nil {
			cb(ErrClosed)
		}
		return
	}
	t.writes.Add(pendingWrite{b: b, cb: cb})
	t.signal()
	t.mu.Unlock()
}

// close tears the socket down at most once, recording cause for the read
// pump to report. A nil cause marks a deliberate close.
func (t *transport) close(cause error) {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		t.cause = cause
		t.conn.Close()
		t.signal()
	}
	t.mu.Unlock()
}

// signal wakes the write pump; callers hold t.mu.
func (t *transport) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *transport) readPump() {
	b := make([]byte, 8192)
	for {
		n, err := t.conn.Read(b)
		if n > 0 {
			t.onData(b[:n])
		}
		if err != nil {
			t.close(err)

			// close() keeps the first cause: nil if the teardown was
			// deliberate, the original failure otherwise.
			t.mu.Lock()
			cause := t.cause
			t.mu.Unlock()
			t.onClosed(cause)
			return
		}
	}
}

func (t *transport) writePump() {
	for {
		t.mu.Lock()
		if t.writes.Length() == 0 {
			closed := t.closed
			t.mu.Unlock()
			if closed {
				return
			}
			<-t.wake
			continue
		}
		w := t.writes.Remove().(pendingWrite)
		t.mu.Unlock()

		_, err := t.conn.Write(w.b)
		if w.cb != nil {
			w.cb(err)
		}
		if err != nil {
			t.close(err)
			t.failPending(err)
			return
		}
	}
}

// failPending flushes callbacks of writes that will never reach the
// socket. Callbacks run outside the lock so they may call back in.
func (t *transport) failPending(err error) {
	t.mu.Lock()
	var cbs []func(error)
	for t.writes.Length() > 0 {
		w := t.writes.Remove().(pendingWrite)
		if w.cb != nil {
			cbs = append(cbs, w.cb)
		}
	}
	t.mu.Unlock()

	for _, cb := range cbs {
		cb(err)
	}
}
