package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/atriumchat/atrium/pkg/protocol"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 50 * time.Second
)

type roomRef struct {
	community protocol.CommunityID
	room      protocol.RoomID
}

// Session is one live connection of one user. The read loop decodes and
// dispatches inline; all outbound traffic funnels through the send
// queue into a single writer goroutine.
type Session struct {
	id   string
	user protocol.UserID
	hub  *Hub
	conn *websocket.Conn
	log  zerolog.Logger
	gate *Gate

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	selection *roomRef
	malformed int
}

func newSession(hub *Hub, user protocol.UserID, conn *websocket.Conn) *Session {
	id := uuid.NewString()
	return &Session{
		id:   id,
		user: user,
		hub:  hub,
		conn: conn,
		log:  hub.log.With().Str("session", id).Uint64("user", uint64(user)).Logger(),
		gate: NewGate(hub.opts.RequestsPerSecond, hub.opts.RequestBurst),
		send: make(chan []byte, hub.opts.SendQueueSize),
		done: make(chan struct{}),
	}
}

// run services the connection until it drops. It blocks; the caller
// owns the goroutine.
func (s *Session) run() {
	s.hub.attach(s)
	defer s.hub.detach(s)
	defer s.shutdown()

	go s.writePump()

	s.log.Info().Msg("session started")
	s.readLoop()
	s.log.Info().Msg("session ended")
}

func (s *Session) readLoop() {
	s.conn.SetReadLimit(protocol.HeaderSize + protocol.MaxPayloadSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		msgType, buf, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		id, req, err := protocol.DecodeRequest(buf)
		if err != nil {
			s.log.Debug().Err(err).Msg("malformed unit")
			s.push(protocol.MalformedMessage{})
			if s.recordMalformed() >= s.hub.opts.MalformedLimit {
				s.log.Warn().Msg("malformed limit reached, dropping connection")
				// The limit-hitting unit is still answered before the
				// connection drops
				s.closeAfterFlush()
				<-s.done
				return
			}
			continue
		}

		// Admission happens after decoding: a well-formed unit refused
		// here costs no token and is never dispatched.
		if retryIn, ok := s.gate.Admit(); !ok {
			ms := retryIn.Milliseconds()
			if ms <= 0 {
				ms = 1
			}
			s.push(protocol.RateLimited{ReadyInMS: uint32(ms)})
			continue
		}

		s.dispatch(id, req)

		select {
		case <-s.done:
			return
		default:
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case buf := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.BinaryMessage, buf); err != nil {
				s.shutdown()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.shutdown()
				return
			}
		case <-s.done:
			return
		}
	}
}

// push encodes and queues one unit. A session that cannot keep up with
// its queue is dropped rather than allowed to stall fan-out for
// everyone else.
func (s *Session) push(msg protocol.ServerMessage) {
	buf, err := protocol.EncodeServerMessage(msg)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to encode outbound unit")
		if _, isEvent := msg.(protocol.ServerEvent); isEvent {
			if fallback, ferr := protocol.EncodeServerMessage(protocol.InternalError{}); ferr == nil {
				s.enqueue(fallback)
			}
		}
		return
	}
	s.enqueue(buf)
}

func (s *Session) enqueue(buf []byte) {
	select {
	case s.send <- buf:
	case <-s.done:
	default:
		s.log.Warn().Msg("send queue full, dropping connection")
		s.shutdown()
	}
}

// closeAfterFlush drops the connection once the writer has drained the
// queue, so a final unit (SessionLoggedOut) still reaches the client
func (s *Session) closeAfterFlush() {
	go func() {
		deadline := time.Now().Add(writeTimeout)
		for time.Now().Before(deadline) {
			select {
			case <-s.done:
				return
			default:
			}
			if len(s.send) == 0 {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		s.shutdown()
	}()
}

func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

func (s *Session) recordMalformed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.malformed++
	return s.malformed
}

func (s *Session) selectRoom(community protocol.CommunityID, room protocol.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = &roomRef{community: community, room: room}
}

func (s *Session) deselectRoom() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = nil
}

// viewing reports whether this session has the room selected
func (s *Session) viewing(community protocol.CommunityID, room protocol.RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection != nil && s.selection.community == community && s.selection.room == room
}

// dropSelectionIn clears the selection if it points into a community
// that no longer exists
func (s *Session) dropSelectionIn(community protocol.CommunityID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selection != nil && s.selection.community == community {
		s.selection = nil
	}
}
