package tap

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gsoultan/mqttpulse/pkg/eventbus"
)

// Server mirrors dispatcher traffic to every connected shell over a Unix
// domain socket. One goroutine accepts connections; one goroutine per
// connection drains that connection's bounded outbound channel. A single
// full channel only drops that one frame (never blocks the broadcaster),
// same as the teacher's internal/sse.Hub.Publish; but a subscriber that
// stays behind for more than channel_buffer_size consecutive frames is
// disconnected outright (spec.md §4.6/§5: "backpressure by disconnect,
// not by blocking").
type Server struct {
	log        zerolog.Logger
	bufSize    int
	serverTag  string
	listener   net.Listener
	unsubBus   func()

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	ch    chan Frame
	conn  net.Conn
	drops int // consecutive frames dropped for a full channel since the last successful send
}

// New constructs a Server. bufSize bounds each subscriber's outbound
// queue; 0 picks a sane default.
func New(log zerolog.Logger, bufSize int, serverTag string) *Server {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Server{log: log, bufSize: bufSize, serverTag: serverTag, subs: make(map[*subscriber]struct{})}
}

// Listen binds the Unix domain socket at path, removing any stale socket
// file left behind by a previous, uncleanly-terminated process.
func (s *Server) Listen(path string) error {
	_ = os.Remove(path)
	l, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	s.listener = l
	return nil
}

// AttachBus wires the server to emit a FrameMessage for every OnReceive
// and OnPublish event, mirroring both inbound and outbound traffic.
func (s *Server) AttachBus(bus *eventbus.Bus) {
	unsubRecv := bus.Subscribe(eventbus.OnReceive, s.onTraffic)
	unsubPub := bus.Subscribe(eventbus.OnPublish, s.onTraffic)
	s.unsubBus = func() { unsubRecv(); unsubPub() }
}

func (s *Server) onTraffic(ev eventbus.Event) {
	if ev.Message == nil {
		return
	}
	wm := ToWireMessage(ev.Message)
	s.Broadcast(Frame{Type: FrameMessage, Time: time.Now(), Message: &wm, ServerTag: s.serverTag})
}

// Serve accepts connections until the listener closes. It returns nil on
// a clean Close.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && !ne.Timeout() {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	sub := &subscriber{ch: make(chan Frame, s.bufSize), conn: conn}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
		conn.Close()
	}()

	enc := json.NewEncoder(conn)
	_ = enc.Encode(Frame{Type: FrameWelcome, Time: time.Now(), ServerTag: s.serverTag})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for f := range sub.ch {
			if err := enc.Encode(f); err != nil {
				return
			}
		}
	}()

	dec := json.NewDecoder(bufio.NewReader(conn))
	for {
		var in Frame
		if err := dec.Decode(&in); err != nil {
			break
		}
		s.handleCommand(sub, in)
	}
	close(sub.ch)
	<-writerDone
}

func (s *Server) handleCommand(sub *subscriber, in Frame) {
	switch in.Type {
	case FramePing:
		s.send(sub, Frame{Type: FramePong, Time: time.Now()})
	case FrameSubscribe, FrameUnsubscribe:
		// Ad-hoc filter subscribe/unsubscribe is advisory at the tap
		// layer: the shell applies its own filter/rule engine locally
		// against the full mirrored stream (spec.md §4.6/§4.7). The tap
		// just acks so the shell can confirm the round trip.
		s.send(sub, Frame{Type: FrameAck, Time: time.Now(), Filter: in.Filter, SubID: in.SubID})
	default:
		s.send(sub, Frame{Type: FrameError, Time: time.Now(), Error: "unknown frame type"})
	}
}

func (s *Server) send(sub *subscriber, f Frame) {
	select {
	case sub.ch <- f:
	default:
	}
}

// Broadcast pushes f to every connected subscriber. A subscriber whose
// outbound queue is full drops this one frame; once that has happened
// more than bufSize (channel_buffer_size) times in a row, the subscriber
// has fallen too far behind and is disconnected rather than left to drop
// frames forever.
func (s *Server) Broadcast(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		select {
		case sub.ch <- f:
			sub.drops = 0
		default:
			sub.drops++
			s.log.Warn().Int("drops", sub.drops).Msg("tap subscriber dropped frame: backpressure")
			if sub.drops > s.bufSize {
				s.log.Warn().Msg("tap subscriber disconnected: exceeded channel_buffer_size backlog")
				delete(s.subs, sub)
				sub.conn.Close()
			}
		}
	}
}

// SubscriberCount reports the number of currently connected shells.
func (s *Server) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close stops accepting connections and detaches from the event bus.
func (s *Server) Close() error {
	if s.unsubBus != nil {
		s.unsubBus()
	}
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
