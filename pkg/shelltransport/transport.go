// Package shelltransport implements the shell-side client of the debug
// tap protocol (spec.md §4.6/§4.7's "interactive streaming shell"): dial
// the tap, stream the frames it sends, and detect
// disconnection so the shell can report it and exit non-zero.
//
// The default transport is the Unix domain socket tap.Server listens on.
// A ws:// address instead dials over github.com/gorilla/websocket, kept
// as a local-network fallback transport per SPEC_FULL.md §4.6 — the tap
// is still a single-machine IPC mechanism, not a remote service.
package shelltransport

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gsoultan/mqttpulse"
	"github.com/gsoultan/mqttpulse/pkg/tap"
)

// Transport streams tap.Frame values from a running tap.Server.
type Transport interface {
	Frames() <-chan tap.Frame
	Send(tap.Frame) error
	Close() error
}

// Dial opens a Transport to addr. "unix:///path/to/sock" dials a Unix
// domain socket; "ws://host:port/path" dials a websocket.
func Dial(addr string) (Transport, error) {
	switch {
	case strings.HasPrefix(addr, "unix://"):
		return dialUnix(strings.TrimPrefix(addr, "unix://"))
	case strings.HasPrefix(addr, "ws://"), strings.HasPrefix(addr, "wss://"):
		return dialWS(addr)
	default:
		// bare filesystem path defaults to the unix transport
		return dialUnix(addr)
	}
}

type unixTransport struct {
	conn   net.Conn
	frames chan tap.Frame
	mu     sync.Mutex
	enc    *json.Encoder
	closed bool
}

func dialUnix(path string) (Transport, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, err
	}
	t := &unixTransport{conn: conn, frames: make(chan tap.Frame, 256), enc: json.NewEncoder(conn)}
	go t.readLoop()
	return t, nil
}

func (t *unixTransport) readLoop() {
	defer close(t.frames)
	dec := json.NewDecoder(bufio.NewReader(t.conn))
	for {
		var f tap.Frame
		if err := dec.Decode(&f); err != nil {
			return
		}
		t.frames <- f
	}
}

func (t *unixTransport) Frames() <-chan tap.Frame { return t.frames }

func (t *unixTransport) Send(f tap.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return &mqttpulse.NotConnectedError{}
	}
	return t.enc.Encode(f)
}

func (t *unixTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return t.conn.Close()
}

// IsDisconnectErr reports whether err represents the peer having hung up,
// so the shell can print a clean "tap disconnected" message instead of a
// raw syscall error.
func IsDisconnectErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ENOTCONN)
}

type wsTransport struct {
	conn   *websocket.Conn
	frames chan tap.Frame
	mu     sync.Mutex
	closed bool
}

func dialWS(addr string) (Transport, error) {
	c, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, err
	}
	t := &wsTransport{conn: c, frames: make(chan tap.Frame, 256)}
	go t.readLoop()
	return t, nil
}

func (t *wsTransport) readLoop() {
	defer close(t.frames)
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			return
		}
		var f tap.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		t.frames <- f
	}
}

func (t *wsTransport) Frames() <-chan tap.Frame { return t.frames }

func (t *wsTransport) Send(f tap.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return &mqttpulse.NotConnectedError{}
	}
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return t.conn.Close()
}
