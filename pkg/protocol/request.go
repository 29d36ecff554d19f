package protocol

// ClientRequest is the closed set of request variants a client may
// submit. The marker method seals the set: every dispatch site type
// switches over these concrete types and nothing else.
type ClientRequest interface {
	isClientRequest()
	msgType() uint16
}

// ===== SESSION CONTROL =====

// LogOut ends the current session after a SessionLoggedOut event
type LogOut struct{}

// SelectRoom marks the room the session is actively viewing. Selected
// rooms receive full AddMessage events rather than liveness pings.
type SelectRoom struct {
	Community CommunityID `json:"community"`
	Room      RoomID      `json:"room"`
}

// DeselectRoom clears the selected room
type DeselectRoom struct{}

// SetAsRead moves the user's read marker to the newest message
type SetAsRead struct {
	Community CommunityID `json:"community"`
	Room      RoomID      `json:"room"`
}

// ===== CONTENT =====

// SendMessage appends a message to a room log
type SendMessage struct {
	Community CommunityID `json:"community"`
	Room      RoomID      `json:"room"`
	Content   string      `json:"content" validate:"required"`
}

// EditMessage replaces the content of an existing message. Only the
// author may edit.
type EditMessage struct {
	Community  CommunityID `json:"community"`
	Room       RoomID      `json:"room"`
	Message    MessageID   `json:"message"`
	NewContent string      `json:"new_content" validate:"required"`
}

// DeleteMessage soft-deletes a single message. The id stays addressable
// so the deletion can propagate; pagination skips it.
type DeleteMessage struct {
	Community CommunityID `json:"community"`
	Room      RoomID      `json:"room"`
	Message   MessageID   `json:"message"`
}

// ===== COMMUNITY & ROOM LIFECYCLE =====

// CreateCommunity creates a community owned by the requester, with a
// default "general" room
type CreateCommunity struct {
	Name string `json:"name" validate:"required,max=64"`
}

// CreateRoom adds a room to a community
type CreateRoom struct {
	Community CommunityID `json:"community"`
	Name      string      `json:"name" validate:"required,max=64"`
}

// CreateInvite mints an invite code for a community. A nil expiration
// means the code never expires.
type CreateInvite struct {
	Community  CommunityID `json:"community"`
	Expiration *int64      `json:"expiration,omitempty"` // Unix ms
}

// JoinCommunity redeems an invite code
type JoinCommunity struct {
	InviteCode string `json:"invite_code"`
}

// ChangeCommunityName renames a community
type ChangeCommunityName struct {
	Community CommunityID `json:"community"`
	NewName   string      `json:"new_name" validate:"required,max=64"`
}

// ChangeCommunityDescription replaces a community description
type ChangeCommunityDescription struct {
	Community      CommunityID `json:"community"`
	NewDescription string      `json:"new_description" validate:"max=1024"`
}

// DeleteCommunity removes a community and cascades to all of its rooms
// and messages
type DeleteCommunity struct {
	Community CommunityID `json:"community"`
}

// ===== PROFILE =====

// ChangeUsername changes the unique login name
type ChangeUsername struct {
	NewUsername string `json:"new_username"`
}

// ChangeDisplayName changes the non-unique display name
type ChangeDisplayName struct {
	NewDisplayName string `json:"new_display_name"`
}

// GetProfile fetches another user's public profile
type GetProfile struct {
	User UserID `json:"user"`
}

// ===== MODERATION =====

// ReportUser files a report against a user
type ReportUser struct {
	User   UserID `json:"user"`
	Reason string `json:"reason" validate:"max=1024"`
}

// AdminAction is the nested admin sub-protocol: it mutates the target
// member's permission bitmask within a community.
type AdminAction struct {
	Community   CommunityID     `json:"community"`
	Op          AdminOp         `json:"op"`
	Target      UserID          `json:"target"`
	Permissions PermissionFlags `json:"permissions,omitempty"`
}

// ===== SYNC =====

// GetRoomUpdate asks whether new content exists past LastReceived
// without transferring bodies beyond the capped window
type GetRoomUpdate struct {
	Community    CommunityID `json:"community"`
	Room         RoomID      `json:"room"`
	LastReceived *MessageID  `json:"last_received,omitempty"`
	MessageCount uint32      `json:"message_count"`
}

// GetMessages pages through a room log relative to a selector
type GetMessages struct {
	Community    CommunityID     `json:"community"`
	Room         RoomID          `json:"room"`
	Selector     MessageSelector `json:"selector"`
	MessageCount uint32          `json:"message_count"`
}

func (LogOut) isClientRequest()                     {}
func (SelectRoom) isClientRequest()                 {}
func (DeselectRoom) isClientRequest()               {}
func (SetAsRead) isClientRequest()                  {}
func (SendMessage) isClientRequest()                {}
func (EditMessage) isClientRequest()                {}
func (DeleteMessage) isClientRequest()              {}
func (CreateCommunity) isClientRequest()            {}
func (CreateRoom) isClientRequest()                 {}
func (CreateInvite) isClientRequest()               {}
func (JoinCommunity) isClientRequest()              {}
func (ChangeCommunityName) isClientRequest()        {}
func (ChangeCommunityDescription) isClientRequest() {}
func (DeleteCommunity) isClientRequest()            {}
func (ChangeUsername) isClientRequest()             {}
func (ChangeDisplayName) isClientRequest()          {}
func (GetProfile) isClientRequest()                 {}
func (ReportUser) isClientRequest()                 {}
func (AdminAction) isClientRequest()                {}
func (GetRoomUpdate) isClientRequest()              {}
func (GetMessages) isClientRequest()                {}

func (LogOut) msgType() uint16                     { return MsgTypeLogOut }
func (SelectRoom) msgType() uint16                 { return MsgTypeSelectRoom }
func (DeselectRoom) msgType() uint16               { return MsgTypeDeselectRoom }
func (SetAsRead) msgType() uint16                  { return MsgTypeSetAsRead }
func (SendMessage) msgType() uint16                { return MsgTypeSendMessage }
func (EditMessage) msgType() uint16                { return MsgTypeEditMessage }
func (DeleteMessage) msgType() uint16              { return MsgTypeDeleteMessage }
func (CreateCommunity) msgType() uint16            { return MsgTypeCreateCommunity }
func (CreateRoom) msgType() uint16                 { return MsgTypeCreateRoom }
func (CreateInvite) msgType() uint16               { return MsgTypeCreateInvite }
func (JoinCommunity) msgType() uint16              { return MsgTypeJoinCommunity }
func (ChangeCommunityName) msgType() uint16        { return MsgTypeChangeCommunityName }
func (ChangeCommunityDescription) msgType() uint16 { return MsgTypeChangeCommunityDescription }
func (DeleteCommunity) msgType() uint16            { return MsgTypeDeleteCommunity }
func (ChangeUsername) msgType() uint16             { return MsgTypeChangeUsername }
func (ChangeDisplayName) msgType() uint16          { return MsgTypeChangeDisplayName }
func (GetProfile) msgType() uint16                 { return MsgTypeGetProfile }
func (ReportUser) msgType() uint16                 { return MsgTypeReportUser }
func (AdminAction) msgType() uint16                { return MsgTypeAdminAction }
func (GetRoomUpdate) msgType() uint16              { return MsgTypeGetRoomUpdate }
func (GetMessages) msgType() uint16                { return MsgTypeGetMessages }
