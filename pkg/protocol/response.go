package protocol

// ServerMessage is the closed set of server-to-client units: an event,
// a correlated response, a malformed-input sentinel or a rate-limit
// signal.
type ServerMessage interface {
	isServerMessage()
}

// Response is the single terminal answer to a request. Exactly one of
// Ok and Err is set.
type Response struct {
	ID  RequestID
	Ok  OkResponse
	Err *Error
}

func (*Response) isServerMessage() {}

// OkResult builds a success response
func OkResult(id RequestID, ok OkResponse) *Response {
	return &Response{ID: id, Ok: ok}
}

// ErrResult builds an error response
func ErrResult(id RequestID, err Error) *Response {
	return &Response{ID: id, Err: &err}
}

// MalformedMessage tells the client its last unit could not be decoded.
// The connection stays open.
type MalformedMessage struct{}

func (MalformedMessage) isServerMessage() {}

// RateLimited tells the client admission was refused and when capacity
// will next be available. It is never correlated to a request id.
type RateLimited struct {
	ReadyInMS uint32 `json:"ready_in_ms"`
}

func (RateLimited) isServerMessage() {}

// OkResponse is the closed union of success payloads
type OkResponse interface {
	isOkResponse()
	okType() uint16
}

// OkNoData acknowledges a request with no result payload
type OkNoData struct{}

// OkAddCommunity returns the joined or created community snapshot
type OkAddCommunity struct {
	Community CommunityStructure `json:"community"`
}

// OkAddRoom returns the created room
type OkAddRoom struct {
	Community CommunityID   `json:"community"`
	Room      RoomStructure `json:"room"`
}

// OkConfirmMessage confirms a send with the assigned id
type OkConfirmMessage struct {
	ID       MessageID `json:"id"`
	TimeSent int64     `json:"time_sent"` // Unix ms
}

// OkNewInvite returns a freshly minted invite code
type OkNewInvite struct {
	Code string `json:"code"`
}

// OkProfile returns a user profile
type OkProfile struct {
	Profile Profile `json:"profile"`
}

// OkRoomUpdate returns a room summary
type OkRoomUpdate struct {
	Update RoomUpdate `json:"update"`
}

// OkMessageHistory returns a page of messages in ascending id order
type OkMessageHistory struct {
	History MessageHistory `json:"history"`
}

func (OkNoData) isOkResponse()         {}
func (OkAddCommunity) isOkResponse()   {}
func (OkAddRoom) isOkResponse()        {}
func (OkConfirmMessage) isOkResponse() {}
func (OkNewInvite) isOkResponse()      {}
func (OkProfile) isOkResponse()        {}
func (OkRoomUpdate) isOkResponse()     {}
func (OkMessageHistory) isOkResponse() {}

func (OkNoData) okType() uint16         { return MsgTypeOkNoData }
func (OkAddCommunity) okType() uint16   { return MsgTypeOkAddCommunity }
func (OkAddRoom) okType() uint16        { return MsgTypeOkAddRoom }
func (OkConfirmMessage) okType() uint16 { return MsgTypeOkConfirmMessage }
func (OkNewInvite) okType() uint16      { return MsgTypeOkNewInvite }
func (OkProfile) okType() uint16        { return MsgTypeOkProfile }
func (OkRoomUpdate) okType() uint16     { return MsgTypeOkRoomUpdate }
func (OkMessageHistory) okType() uint16 { return MsgTypeOkMessageHistory }
