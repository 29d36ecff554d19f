// Package state holds the authoritative in-memory entity model: users,
// communities, rooms with their append-only message logs, invites and
// per-member admin permissions. Aggregates reference each other by id
// only; cascading removal walks the id indexes, never pointers.
package state

import (
	"errors"
	"strings"
	"sync"

	"github.com/atriumchat/atrium/pkg/protocol"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUsernameTaken     = errors.New("username taken")
	ErrInvalidName       = errors.New("invalid name")
	ErrCommunityNotFound = errors.New("community not found")
	ErrRoomNotFound      = errors.New("room not found")
	ErrMessageNotFound   = errors.New("message not found")
	ErrNotMember         = errors.New("not a member")
	ErrAlreadyMember     = errors.New("already a member")
	ErrNotAuthor         = errors.New("not the author")
	ErrInviteNotFound    = errors.New("invite not found")
	ErrInviteExpired     = errors.New("invite expired")
	ErrTooManyInvites    = errors.New("too many invite codes")
	ErrInvalidSelector   = errors.New("invalid message selector")
	ErrContentTooLong    = errors.New("content too long")
)

// Limits bounds user-supplied values. Zero values fall back to defaults.
type Limits struct {
	MaxNameLength          int
	MaxDescriptionLength   int
	MaxMessageLength       int
	MaxInvitesPerCommunity int
}

// DefaultLimits returns the limits used when none are configured
func DefaultLimits() Limits {
	return Limits{
		MaxNameLength:          64,
		MaxDescriptionLength:   1024,
		MaxMessageLength:       4096,
		MaxInvitesPerCommunity: 100,
	}
}

func (l *Limits) applyDefaults() {
	d := DefaultLimits()
	if l.MaxNameLength == 0 {
		l.MaxNameLength = d.MaxNameLength
	}
	if l.MaxDescriptionLength == 0 {
		l.MaxDescriptionLength = d.MaxDescriptionLength
	}
	if l.MaxMessageLength == 0 {
		l.MaxMessageLength = d.MaxMessageLength
	}
	if l.MaxInvitesPerCommunity == 0 {
		l.MaxInvitesPerCommunity = d.MaxInvitesPerCommunity
	}
}

// User is a registered user. Credential handling lives outside this
// process; the store only tracks identity and profile.
type User struct {
	ID          protocol.UserID
	Username    string
	DisplayName string
}

// Store is the root of the entity model. All access goes through its
// methods; rooms additionally serialize their own log writes.
type Store struct {
	mu sync.RWMutex

	limits Limits

	users     map[protocol.UserID]*User
	usernames map[string]protocol.UserID

	communities map[protocol.CommunityID]*Community
	roomIndex   map[protocol.RoomID]protocol.CommunityID

	invites map[string]*Invite

	nextUser      protocol.UserID
	nextCommunity protocol.CommunityID
	nextRoom      protocol.RoomID
}

// NewStore creates an empty store
func NewStore(limits Limits) *Store {
	limits.applyDefaults()
	return &Store{
		limits:      limits,
		users:       make(map[protocol.UserID]*User),
		usernames:   make(map[string]protocol.UserID),
		communities: make(map[protocol.CommunityID]*Community),
		roomIndex:   make(map[protocol.RoomID]protocol.CommunityID),
		invites:     make(map[string]*Invite),
	}
}

// Limits returns the configured bounds
func (s *Store) Limits() Limits {
	return s.limits
}

func normalizeUsername(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// EnsureUser returns the user with the given username, creating it on
// first sight. The username is assumed to have been authenticated by the
// gateway in front of this node.
func (s *Store) EnsureUser(username string) (*User, error) {
	username = normalizeUsername(username)
	if username == "" || len(username) > s.limits.MaxNameLength {
		return nil, ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.usernames[username]; ok {
		u := s.users[id]
		return &User{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName}, nil
	}

	s.nextUser++
	user := &User{
		ID:          s.nextUser,
		Username:    username,
		DisplayName: username,
	}
	s.users[user.ID] = user
	s.usernames[username] = user.ID

	return &User{ID: user.ID, Username: user.Username, DisplayName: user.DisplayName}, nil
}

// Profile returns the public profile of a user
func (s *Store) Profile(id protocol.UserID) (protocol.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return protocol.Profile{}, ErrUserNotFound
	}

	return protocol.Profile{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
	}, nil
}

// ChangeUsername renames a user, enforcing global uniqueness
func (s *Store) ChangeUsername(id protocol.UserID, newUsername string) error {
	newUsername = normalizeUsername(newUsername)
	if newUsername == "" || len(newUsername) > s.limits.MaxNameLength {
		return ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}

	if existing, taken := s.usernames[newUsername]; taken {
		if existing == id {
			return nil
		}
		return ErrUsernameTaken
	}

	delete(s.usernames, user.Username)
	user.Username = newUsername
	s.usernames[newUsername] = id

	return nil
}

// ChangeDisplayName sets the non-unique display name
func (s *Store) ChangeDisplayName(id protocol.UserID, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" || len(newName) > s.limits.MaxNameLength {
		return ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}

	user.DisplayName = newName
	return nil
}

// Snapshot builds the full sync view of every community the user is a
// member of. Sent as ClientReady on connect; reconnection has no other
// resumption path.
func (s *Store) Snapshot(user protocol.UserID) []protocol.CommunityStructure {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []protocol.CommunityStructure
	for _, community := range s.communities {
		if _, ok := community.members[user]; !ok {
			continue
		}
		out = append(out, community.structureLocked(user))
	}

	return out
}
