package state

import (
	"sort"
	"sync"

	"github.com/atriumchat/atrium/pkg/protocol"
)

// Message is a stored message. Deletion is soft: the entry stays in the
// log, addressable by id, but is skipped by pagination.
type Message struct {
	ID       protocol.MessageID
	Author   protocol.UserID
	Content  string
	TimeSent int64
	Edited   bool
	Deleted  bool
}

// Room owns an append-only message log. The room's counter is the sole
// authority for assigning MessageIds: ids are strictly increasing and
// gap-free under concurrent senders.
type Room struct {
	mu sync.RWMutex

	id        protocol.RoomID
	community protocol.CommunityID
	name      string

	nextMessage protocol.MessageID
	log         []*Message
	index       map[protocol.MessageID]int

	readMarkers map[protocol.UserID]protocol.MessageID
}

func newRoom(id protocol.RoomID, community protocol.CommunityID, name string) *Room {
	return &Room{
		id:          id,
		community:   community,
		name:        name,
		index:       make(map[protocol.MessageID]int),
		readMarkers: make(map[protocol.UserID]protocol.MessageID),
	}
}

func (r *Room) structure(viewer protocol.UserID) protocol.RoomStructure {
	r.mu.RLock()
	defer r.mu.RUnlock()

	unread := false
	if len(r.log) > 0 {
		newest := r.log[len(r.log)-1].ID
		unread = r.readMarkers[viewer] < newest
	}

	return protocol.RoomStructure{ID: r.id, Name: r.name, Unread: unread}
}

func (r *Room) wireMessage(m *Message) protocol.Message {
	msg := protocol.Message{
		ID:        m.ID,
		Community: r.community,
		Room:      r.id,
		Author:    m.Author,
		TimeSent:  m.TimeSent,
		Edited:    m.Edited,
		Deleted:   m.Deleted,
	}
	if !m.Deleted {
		msg.Content = m.Content
	}
	return msg
}

// AppendMessage assigns the next id and appends to the log
func (s *Store) AppendMessage(community protocol.CommunityID, roomID protocol.RoomID, author protocol.UserID, content string) (protocol.Message, error) {
	if len(content) > s.limits.MaxMessageLength {
		return protocol.Message{}, ErrContentTooLong
	}

	r, err := s.room(community, roomID)
	if err != nil {
		return protocol.Message{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextMessage++
	msg := &Message{
		ID:       r.nextMessage,
		Author:   author,
		Content:  content,
		TimeSent: protocol.NowUnixMilli(),
	}
	r.index[msg.ID] = len(r.log)
	r.log = append(r.log, msg)

	return r.wireMessage(msg), nil
}

// RestoreMessage reloads a message from durable storage, bumping the
// counter past it. Only used while rebuilding state on boot.
func (s *Store) RestoreMessage(community protocol.CommunityID, roomID protocol.RoomID, msg Message) error {
	r, err := s.room(community, roomID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	restored := msg
	r.index[restored.ID] = len(r.log)
	r.log = append(r.log, &restored)
	if restored.ID > r.nextMessage {
		r.nextMessage = restored.ID
	}

	return nil
}

// EditMessage replaces a message's content. Only the author may edit;
// moderation rights do not extend to rewriting others' words.
func (s *Store) EditMessage(community protocol.CommunityID, roomID protocol.RoomID, id protocol.MessageID, actor protocol.UserID, newContent string) error {
	if len(newContent) > s.limits.MaxMessageLength {
		return ErrContentTooLong
	}

	r, err := s.room(community, roomID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.index[id]
	if !ok {
		return ErrMessageNotFound
	}

	msg := r.log[pos]
	if msg.Deleted {
		return ErrMessageNotFound
	}
	if msg.Author != actor {
		return ErrNotAuthor
	}

	msg.Content = newContent
	msg.Edited = true
	return nil
}

// DeleteMessage soft-deletes a message. The author may always delete
// their own; canModerate allows deleting others'. Does not cascade.
func (s *Store) DeleteMessage(community protocol.CommunityID, roomID protocol.RoomID, id protocol.MessageID, actor protocol.UserID, canModerate bool) error {
	r, err := s.room(community, roomID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.index[id]
	if !ok {
		return ErrMessageNotFound
	}

	msg := r.log[pos]
	if msg.Author != actor && !canModerate {
		return ErrNotAuthor
	}

	msg.Deleted = true
	msg.Content = ""
	return nil
}

// SelectMessages resolves a pagination query: up to count messages on
// the requested side of the bound, nearest the bound first, returned in
// ascending id order. Soft-deleted messages are skipped but remain valid
// bounds.
func (s *Store) SelectMessages(community protocol.CommunityID, roomID protocol.RoomID, selector protocol.MessageSelector, count uint32) ([]protocol.Message, error) {
	r, err := s.room(community, roomID)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	pos, ok := r.index[selector.Bound.Message]
	if !ok {
		return nil, ErrInvalidSelector
	}

	out := []protocol.Message{}
	if count == 0 {
		return out, nil
	}

	if selector.Before {
		// Walk down from the bound, collecting backwards, then reverse
		start := pos - 1
		if !selector.Bound.Exclusive {
			start = pos
		}
		for i := start; i >= 0 && uint32(len(out)) < count; i-- {
			if r.log[i].Deleted {
				continue
			}
			out = append(out, r.wireMessage(r.log[i]))
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	} else {
		start := pos + 1
		if !selector.Bound.Exclusive {
			start = pos
		}
		for i := start; i < len(r.log) && uint32(len(out)) < count; i++ {
			if r.log[i].Deleted {
				continue
			}
			out = append(out, r.wireMessage(r.log[i]))
		}
	}

	return out, nil
}

// RoomUpdate summarises how much new content exists past lastReceived
// without transferring bodies. Continuous reports that the count was not
// truncated by the cap, i.e. the client is fully caught up by it.
func (s *Store) RoomUpdate(community protocol.CommunityID, roomID protocol.RoomID, user protocol.UserID, lastReceived *protocol.MessageID, count uint32) (protocol.RoomUpdate, error) {
	r, err := s.room(community, roomID)
	if err != nil {
		return protocol.RoomUpdate{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var update protocol.RoomUpdate
	if marker, ok := r.readMarkers[user]; ok {
		lastRead := marker
		update.LastRead = &lastRead
	}

	start := 0
	if lastReceived != nil {
		pos, ok := r.index[*lastReceived]
		if !ok {
			return protocol.RoomUpdate{}, ErrInvalidSelector
		}
		start = pos + 1
	}

	var newCount uint32
	truncated := false
	for i := start; i < len(r.log); i++ {
		if r.log[i].Deleted {
			continue
		}
		if newCount == count {
			truncated = true
			break
		}
		newCount++
	}

	update.NewMessages = newCount
	update.Continuous = !truncated
	return update, nil
}

// RoomExists verifies that a room id resolves within a community
func (s *Store) RoomExists(community protocol.CommunityID, roomID protocol.RoomID) error {
	_, err := s.room(community, roomID)
	return err
}

// SetAsRead moves the user's read marker to the newest message
func (s *Store) SetAsRead(community protocol.CommunityID, roomID protocol.RoomID, user protocol.UserID) error {
	r, err := s.room(community, roomID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.log) > 0 {
		r.readMarkers[user] = r.log[len(r.log)-1].ID
	}

	return nil
}
