package state

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/atriumchat/atrium/pkg/protocol"
)

// Community owns its rooms and a membership set carrying each member's
// admin-permission bitmask. Rooms refer back to it by id only.
type Community struct {
	id          protocol.CommunityID
	name        string
	description string
	icon        string

	rooms   map[protocol.RoomID]*Room
	members map[protocol.UserID]protocol.PermissionFlags
}

func (c *Community) structureLocked(viewer protocol.UserID) protocol.CommunityStructure {
	rooms := lo.MapToSlice(c.rooms, func(_ protocol.RoomID, r *Room) protocol.RoomStructure {
		return r.structure(viewer)
	})
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })

	return protocol.CommunityStructure{
		ID:          c.id,
		Name:        c.name,
		Description: c.description,
		Icon:        c.icon,
		Rooms:       rooms,
	}
}

func (s *Store) validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > s.limits.MaxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

// CreateCommunity creates a community owned by creator, with full admin
// permissions and a default "general" room.
func (s *Store) CreateCommunity(creator protocol.UserID, name string) (protocol.CommunityStructure, error) {
	name, err := s.validName(name)
	if err != nil {
		return protocol.CommunityStructure{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[creator]; !ok {
		return protocol.CommunityStructure{}, ErrUserNotFound
	}

	s.nextCommunity++
	community := &Community{
		id:      s.nextCommunity,
		name:    name,
		rooms:   make(map[protocol.RoomID]*Room),
		members: map[protocol.UserID]protocol.PermissionFlags{creator: protocol.PermAll},
	}
	s.communities[community.id] = community

	s.nextRoom++
	room := newRoom(s.nextRoom, community.id, "general")
	community.rooms[room.id] = room
	s.roomIndex[room.id] = community.id

	return community.structureLocked(creator), nil
}

// RemoveCommunity deletes a community and cascades to all of its rooms,
// messages and invites. Returns the members that must purge local state.
func (s *Store) RemoveCommunity(id protocol.CommunityID) ([]protocol.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	community, ok := s.communities[id]
	if !ok {
		return nil, ErrCommunityNotFound
	}

	for roomID := range community.rooms {
		delete(s.roomIndex, roomID)
	}
	for code, invite := range s.invites {
		if invite.Community == id {
			delete(s.invites, code)
		}
	}
	delete(s.communities, id)

	return lo.Keys(community.members), nil
}

// ChangeCommunityName renames a community
func (s *Store) ChangeCommunityName(id protocol.CommunityID, newName string) error {
	newName, err := s.validName(newName)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	community, ok := s.communities[id]
	if !ok {
		return ErrCommunityNotFound
	}

	community.name = newName
	return nil
}

// ChangeCommunityDescription replaces a community description
func (s *Store) ChangeCommunityDescription(id protocol.CommunityID, description string) error {
	if len(description) > s.limits.MaxDescriptionLength {
		return ErrContentTooLong
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	community, ok := s.communities[id]
	if !ok {
		return ErrCommunityNotFound
	}

	community.description = description
	return nil
}

// CommunityMeta returns name and description, for the invite preview page
func (s *Store) CommunityMeta(id protocol.CommunityID) (name, description string, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	community, ok := s.communities[id]
	if !ok {
		return "", "", ErrCommunityNotFound
	}

	return community.name, community.description, nil
}

// AddMember adds a user to a community with no admin permissions and
// returns the snapshot the new member should receive
func (s *Store) AddMember(id protocol.CommunityID, user protocol.UserID) (protocol.CommunityStructure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	community, ok := s.communities[id]
	if !ok {
		return protocol.CommunityStructure{}, ErrCommunityNotFound
	}
	if _, ok := s.users[user]; !ok {
		return protocol.CommunityStructure{}, ErrUserNotFound
	}
	if _, member := community.members[user]; member {
		return protocol.CommunityStructure{}, ErrAlreadyMember
	}

	community.members[user] = 0
	return community.structureLocked(user), nil
}

// Members lists the community membership
func (s *Store) Members(id protocol.CommunityID) ([]protocol.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	community, ok := s.communities[id]
	if !ok {
		return nil, ErrCommunityNotFound
	}

	return lo.Keys(community.members), nil
}

// Permissions returns the admin bitmask of a member. The second result
// is false when the user is not a member at all.
func (s *Store) Permissions(id protocol.CommunityID, user protocol.UserID) (protocol.PermissionFlags, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	community, ok := s.communities[id]
	if !ok {
		return 0, false
	}

	perms, member := community.members[user]
	return perms, member
}

// SetPermissions overwrites a member's admin bitmask. Enforcement is
// prospective: requests already dispatched keep the permissions they
// were admitted with.
func (s *Store) SetPermissions(id protocol.CommunityID, user protocol.UserID, perms protocol.PermissionFlags) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	community, ok := s.communities[id]
	if !ok {
		return ErrCommunityNotFound
	}
	if _, member := community.members[user]; !member {
		return ErrNotMember
	}

	community.members[user] = perms
	return nil
}

// CreateRoom adds a room to a community
func (s *Store) CreateRoom(id protocol.CommunityID, name string) (protocol.RoomStructure, error) {
	name, err := s.validName(name)
	if err != nil {
		return protocol.RoomStructure{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	community, ok := s.communities[id]
	if !ok {
		return protocol.RoomStructure{}, ErrCommunityNotFound
	}

	s.nextRoom++
	room := newRoom(s.nextRoom, id, name)
	community.rooms[room.id] = room
	s.roomIndex[room.id] = id

	return protocol.RoomStructure{ID: room.id, Name: room.name, Unread: false}, nil
}

// room resolves a room within a community, read-locked
func (s *Store) room(community protocol.CommunityID, room protocol.RoomID) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.communities[community]
	if !ok {
		return nil, ErrCommunityNotFound
	}

	r, ok := c.rooms[room]
	if !ok {
		return nil, ErrRoomNotFound
	}

	return r, nil
}
