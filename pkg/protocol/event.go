package protocol

// ServerEvent is the closed set of server-originated pushes. Events are
// uncorrelated with requests and must be applied idempotently: a
// duplicate AddMessage for a known id is a no-op, an Edit or Delete for
// an unknown id is ignored.
type ServerEvent interface {
	ServerMessage
	isServerEvent()
	eventType() uint16
}

// ClientReady is the first unit pushed after a connection is accepted.
// It carries the full sync snapshot; there is no incremental resumption,
// so a reconnecting client starts from this state.
type ClientReady struct {
	User        UserID               `json:"user"`
	Profile     Profile              `json:"profile"`
	Communities []CommunityStructure `json:"communities"`
}

// AddMessage delivers a newly appended message to sessions viewing the
// room
type AddMessage struct {
	Community CommunityID `json:"community"`
	Room      RoomID      `json:"room"`
	Message   Message     `json:"message"`
}

// NotifyMessageReady is a liveness ping: new content exists in the room,
// re-fetch via GetMessages. It carries no payload body.
type NotifyMessageReady struct {
	Community CommunityID `json:"community"`
	Room      RoomID      `json:"room"`
}

// Edit propagates a content edit
type Edit struct {
	Community  CommunityID `json:"community"`
	Room       RoomID      `json:"room"`
	Message    MessageID   `json:"message"`
	NewContent string      `json:"new_content"`
}

// Delete propagates a single-message soft delete. It does not cascade.
type Delete struct {
	Community CommunityID `json:"community"`
	Room      RoomID      `json:"room"`
	Message   MessageID   `json:"message"`
}

// AddRoom announces a new room to community members
type AddRoom struct {
	Community CommunityID   `json:"community"`
	Room      RoomStructure `json:"room"`
}

// AddCommunity announces community membership to the user's sessions
type AddCommunity struct {
	Community CommunityStructure `json:"community"`
}

// RemoveCommunity cascades: recipients must purge every room and message
// of the community and deselect any room inside it.
type RemoveCommunity struct {
	ID     CommunityID           `json:"id"`
	Reason RemoveCommunityReason `json:"reason"`
}

// SessionLoggedOut forces the session closed; sent before the server
// drops the connection
type SessionLoggedOut struct{}

// AdminPermissionsChanged informs a user that their permission bitmask
// in a community changed. Enforcement is prospective only.
type AdminPermissionsChanged struct {
	Community   CommunityID     `json:"community"`
	Permissions PermissionFlags `json:"permissions"`
}

// InternalError signals a fault while producing an uncorrelated push.
// Details are never leaked.
type InternalError struct{}

func (ClientReady) isServerEvent()             {}
func (AddMessage) isServerEvent()              {}
func (NotifyMessageReady) isServerEvent()      {}
func (Edit) isServerEvent()                    {}
func (Delete) isServerEvent()                  {}
func (AddRoom) isServerEvent()                 {}
func (AddCommunity) isServerEvent()            {}
func (RemoveCommunity) isServerEvent()         {}
func (SessionLoggedOut) isServerEvent()        {}
func (AdminPermissionsChanged) isServerEvent() {}
func (InternalError) isServerEvent()           {}

func (ClientReady) isServerMessage()             {}
func (AddMessage) isServerMessage()              {}
func (NotifyMessageReady) isServerMessage()      {}
func (Edit) isServerMessage()                    {}
func (Delete) isServerMessage()                  {}
func (AddRoom) isServerMessage()                 {}
func (AddCommunity) isServerMessage()            {}
func (RemoveCommunity) isServerMessage()         {}
func (SessionLoggedOut) isServerMessage()        {}
func (AdminPermissionsChanged) isServerMessage() {}
func (InternalError) isServerMessage()           {}

func (ClientReady) eventType() uint16             { return MsgTypeClientReady }
func (AddMessage) eventType() uint16              { return MsgTypeAddMessage }
func (NotifyMessageReady) eventType() uint16      { return MsgTypeNotifyMessageReady }
func (Edit) eventType() uint16                    { return MsgTypeEdit }
func (Delete) eventType() uint16                  { return MsgTypeDelete }
func (AddRoom) eventType() uint16                 { return MsgTypeAddRoom }
func (AddCommunity) eventType() uint16            { return MsgTypeAddCommunity }
func (RemoveCommunity) eventType() uint16         { return MsgTypeRemoveCommunity }
func (SessionLoggedOut) eventType() uint16        { return MsgTypeSessionLoggedOut }
func (AdminPermissionsChanged) eventType() uint16 { return MsgTypeAdminPermissionsChanged }
func (InternalError) eventType() uint16           { return MsgTypeInternalError }
