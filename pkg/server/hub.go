// Package server runs the node: it accepts websocket connections,
// decodes framed request units, dispatches them against the entity
// model and fans events back out to every affected session.
package server

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/atriumchat/atrium/pkg/protocol"
	"github.com/atriumchat/atrium/pkg/state"
	"github.com/atriumchat/atrium/pkg/storage"
)

// Options tunes per-connection behaviour. Zero values fall back to
// defaults.
type Options struct {
	RequestsPerSecond float64
	RequestBurst      int
	MalformedLimit    int
	SendQueueSize     int
}

func (o *Options) applyDefaults() {
	if o.RequestsPerSecond == 0 {
		o.RequestsPerSecond = 10
	}
	if o.RequestBurst == 0 {
		o.RequestBurst = 20
	}
	if o.MalformedLimit == 0 {
		o.MalformedLimit = 8
	}
	if o.SendQueueSize == 0 {
		o.SendQueueSize = 256
	}
}

// Hub owns the session registry and the fan-out paths. Every mutation
// of a room log happens under that room's hub lock, so events enter
// each session's outbound queue in the order the mutations landed.
type Hub struct {
	store *state.Store
	db    *storage.DB
	log   zerolog.Logger
	opts  Options

	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[protocol.UserID]map[string]*Session

	roomMu    sync.Mutex
	roomLocks map[protocol.RoomID]*sync.Mutex
}

// NewHub creates a hub over the given model. db may be nil, in which
// case nothing is persisted.
func NewHub(store *state.Store, db *storage.DB, log zerolog.Logger, opts Options) *Hub {
	opts.applyDefaults()
	return &Hub{
		store:     store,
		db:        db,
		log:       log,
		opts:      opts,
		sessions:  make(map[string]*Session),
		byUser:    make(map[protocol.UserID]map[string]*Session),
		roomLocks: make(map[protocol.RoomID]*sync.Mutex),
	}
}

// Store exposes the entity model
func (h *Hub) Store() *state.Store {
	return h.store
}

func (h *Hub) attach(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sessions[s.id] = s
	if h.byUser[s.user] == nil {
		h.byUser[s.user] = make(map[string]*Session)
	}
	h.byUser[s.user][s.id] = s
}

func (h *Hub) detach(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.sessions, s.id)
	if set := h.byUser[s.user]; set != nil {
		delete(set, s.id)
		if len(set) == 0 {
			delete(h.byUser, s.user)
		}
	}
}

func (h *Hub) sessionsOf(user protocol.UserID) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Session, 0, len(h.byUser[user]))
	for _, s := range h.byUser[user] {
		out = append(out, s)
	}
	return out
}

// SessionCount reports the number of live sessions
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// lockRoom returns the mutex serializing mutations of one room log
func (h *Hub) lockRoom(room protocol.RoomID) *sync.Mutex {
	h.roomMu.Lock()
	defer h.roomMu.Unlock()

	mu, ok := h.roomLocks[room]
	if !ok {
		mu = &sync.Mutex{}
		h.roomLocks[room] = mu
	}
	return mu
}

// pushToUser delivers a unit to every session of one user
func (h *Hub) pushToUser(user protocol.UserID, msg protocol.ServerMessage) {
	for _, s := range h.sessionsOf(user) {
		s.push(msg)
	}
}

// pushToMembers delivers a unit to every session of every community
// member, skipping the session named by except.
func (h *Hub) pushToMembers(community protocol.CommunityID, msg protocol.ServerMessage, except string) {
	members, err := h.store.Members(community)
	if err != nil {
		return
	}

	for _, user := range members {
		for _, s := range h.sessionsOf(user) {
			if s.id == except {
				continue
			}
			s.push(msg)
		}
	}
}

// fanoutMessage routes a new message: sessions viewing the room get the
// full body, everyone else in the community gets a liveness ping.
func (h *Hub) fanoutMessage(community protocol.CommunityID, room protocol.RoomID, msg protocol.Message) {
	members, err := h.store.Members(community)
	if err != nil {
		return
	}

	add := protocol.AddMessage{Community: community, Room: room, Message: msg}
	ping := protocol.NotifyMessageReady{Community: community, Room: room}

	for _, user := range members {
		for _, s := range h.sessionsOf(user) {
			if s.viewing(community, room) {
				s.push(add)
			} else {
				s.push(ping)
			}
		}
	}
}

// persist runs a storage write unless the hub is memory-only. Storage
// failures are logged, never surfaced: the in-memory model is the
// authority and has already moved on.
func (h *Hub) persist(op string, fn func(*storage.DB) error) {
	if h.db == nil {
		return
	}
	if err := fn(h.db); err != nil {
		h.log.Error().Err(err).Str("op", op).Msg("storage write failed")
	}
}
