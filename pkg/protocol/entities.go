package protocol

// Wire-level entity snapshots. These mirror server state at a point in
// time; clients index them by id and must never assume referential
// identity between two snapshots.

// Profile is the public view of a user
type Profile struct {
	ID          UserID `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// CommunityStructure is a full community snapshot including its rooms
type CommunityStructure struct {
	ID          CommunityID     `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Icon        string          `json:"icon,omitempty"`
	Rooms       []RoomStructure `json:"rooms"`
}

// RoomStructure is a room snapshot
type RoomStructure struct {
	ID     RoomID `json:"id"`
	Name   string `json:"name"`
	Unread bool   `json:"unread"`
}

// Message is a message snapshot. Deleted messages keep their id but
// carry no content.
type Message struct {
	ID        MessageID   `json:"id"`
	Community CommunityID `json:"community"`
	Room      RoomID      `json:"room"`
	Author    UserID      `json:"author"`
	Content   string      `json:"content"`
	TimeSent  int64       `json:"time_sent"` // Unix ms
	Edited    bool        `json:"edited,omitempty"`
	Deleted   bool        `json:"deleted,omitempty"`
}

// MessageHistory is an ascending-id slice of messages
type MessageHistory struct {
	Messages []Message `json:"messages"`
}

// RoomUpdate summarises a room without transferring message bodies.
// NewMessages counts messages past the client's last received id,
// capped by the requested window; Continuous is true when the count was
// not truncated by the cap.
type RoomUpdate struct {
	LastRead    *MessageID `json:"last_read,omitempty"`
	NewMessages uint32     `json:"new_messages"`
	Continuous  bool       `json:"continuous"`
}

// Bound is a pagination cursor: a reference message id and whether the
// reference itself is excluded from the result set.
type Bound struct {
	Exclusive bool      `json:"exclusive"`
	Message   MessageID `json:"message"`
}

// MessageSelector describes a range query over a room log relative to a
// bound, either before (id < bound) or after (id > bound) it.
type MessageSelector struct {
	Before bool  `json:"before"`
	Bound  Bound `json:"bound"`
}
