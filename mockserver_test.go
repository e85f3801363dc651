package readaloud

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gobwas/ws"
)

// mockServer is a hand-driven peer for connection tests. It accepts one
// TCP connection, answers the upgrade request and then speaks raw frames
// through an independent implementation (gobwas/ws), so both sides of the
// protocol are exercised against code that is not ours.
type mockServer struct {
	ln net.Listener

	mu     sync.Mutex
	conn   net.Conn
	closed bool

	// response knobs, set before accept runs
	status       string // status line override, default 101
	garbleAccept bool   // send a wrong Sec-WebSocket-Accept
	trailing     []byte // raw bytes flushed in the same write as the header

	req *http.Request // the recorded upgrade request
}

func newMockServer() (*mockServer, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	return &mockServer{ln: ln, status: "HTTP/1.1 101 Switching Protocols"}, nil
}

// url is the ws:// endpoint clients dial.
func (s *mockServer) url() string {
	return "ws://" + s.ln.Addr().String()
}

// accept takes one connection and completes the server side of the
// upgrade, appending any configured trailing bytes to the same write so
// they arrive in the same read as the response header.
func (s *mockServer) accept() error {
	conn, err := s.ln.Accept()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	req, err := http.ReadRequest(bufio.NewReader(conn))
	if err != nil {
		return err
	}
	s.req = req

	accept := acceptFor(req.Header.Get("Sec-WebSocket-Key"))
	if s.garbleAccept {
		accept = "bm90IHRoZSByaWdodCBrZXkgYXQgYWxs"
	}

	var res bytes.Buffer
	fmt.Fprintf(&res, "%s\r\n", s.status)
	res.WriteString("Upgrade: websocket\r\n")
	res.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(&res, "Sec-WebSocket-Accept: %s\r\n", accept)
	res.WriteString("\r\n")
	res.Write(s.trailing)

	_, err = res.WriteTo(conn)
	return err
}

// writeFrame puts one server frame on the wire.
func (s *mockServer) writeFrame(f ws.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ws.WriteFrame(s.conn, f)
}

// readFrame reads and unmasks one client frame.
func (s *mockServer) readFrame() (ws.Frame, error) {
	f, err := ws.ReadFrame(s.conn)
	if err != nil {
		return f, err
	}
	if f.Header.Masked {
		f = ws.UnmaskFrame(f)
	}
	return f, nil
}

func (s *mockServer) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.conn != nil {
		s.conn.Close()
	}
	s.ln.Close()
}
