package state

import "github.com/atriumchat/atrium/pkg/protocol"

// Restore methods rebuild the in-memory model from the durable log on
// boot. They trust their input, bump id counters past restored ids and
// are not safe to call once the node serves traffic.

// RestoreUser reinstates a user with its original id
func (s *Store) RestoreUser(user User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := user
	s.users[u.ID] = &u
	s.usernames[u.Username] = u.ID
	if u.ID > s.nextUser {
		s.nextUser = u.ID
	}
}

// RestoreCommunity reinstates an empty community with its original id
func (s *Store) RestoreCommunity(id protocol.CommunityID, name, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.communities[id] = &Community{
		id:          id,
		name:        name,
		description: description,
		rooms:       make(map[protocol.RoomID]*Room),
		members:     make(map[protocol.UserID]protocol.PermissionFlags),
	}
	if id > s.nextCommunity {
		s.nextCommunity = id
	}
}

// RestoreMember reinstates a membership with its permission bitmask
func (s *Store) RestoreMember(community protocol.CommunityID, user protocol.UserID, perms protocol.PermissionFlags) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.communities[community]
	if !ok {
		return ErrCommunityNotFound
	}

	c.members[user] = perms
	return nil
}

// RestoreInvite reinstates an invite code
func (s *Store) RestoreInvite(invite Invite) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv := invite
	s.invites[inv.Code] = &inv
}

// RestoreRoom reinstates an empty room with its original id
func (s *Store) RestoreRoom(community protocol.CommunityID, id protocol.RoomID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.communities[community]
	if !ok {
		return ErrCommunityNotFound
	}

	room := newRoom(id, community, name)
	c.rooms[id] = room
	s.roomIndex[id] = community
	if id > s.nextRoom {
		s.nextRoom = id
	}

	return nil
}
