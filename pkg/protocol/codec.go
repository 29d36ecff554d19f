package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownType      = errors.New("unknown message type")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrLengthMismatch   = errors.New("payload length mismatch")
)

// errPayload is the body of an error response unit
type errPayload struct {
	Code uint16 `json:"code"`
}

func encode(msgType uint16, requestID RequestID, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload 0x%04x: %w", msgType, err)
	}

	if len(body) > MaxPayloadSize {
		return nil, ErrPayloadTooBig
	}

	header := &Header{
		Magic:     ProtocolMagic,
		Version:   ProtocolVersion,
		Type:      msgType,
		RequestID: requestID,
		Length:    uint32(len(body)),
	}

	buf := make([]byte, 0, HeaderSize+len(body))
	buf = append(buf, header.Encode()...)
	buf = append(buf, body...)
	return buf, nil
}

func splitUnit(buf []byte) (*Header, []byte, error) {
	header := &Header{}
	if err := header.Decode(buf); err != nil {
		return nil, nil, err
	}
	if err := header.Validate(); err != nil {
		return nil, nil, err
	}

	payload := buf[HeaderSize:]
	if uint32(len(payload)) != header.Length {
		return nil, nil, ErrLengthMismatch
	}

	return header, payload, nil
}

func decodeInto[T any](payload []byte) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return v, nil
}

func decodeMsg[T ServerMessage](payload []byte) (ServerMessage, error) {
	v, err := decodeInto[T](payload)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// EncodeRequest frames a client request with its correlation id
func EncodeRequest(id RequestID, req ClientRequest) ([]byte, error) {
	return encode(req.msgType(), id, req)
}

// DecodeRequest decodes one client-to-server unit. Any error returned
// here is a protocol-level malformed unit: the caller answers with
// MalformedMessage and keeps the connection open.
func DecodeRequest(buf []byte) (RequestID, ClientRequest, error) {
	header, payload, err := splitUnit(buf)
	if err != nil {
		return 0, nil, err
	}

	var req ClientRequest
	switch header.Type {
	case MsgTypeLogOut:
		req, err = decodeInto[LogOut](payload)
	case MsgTypeSelectRoom:
		req, err = decodeInto[SelectRoom](payload)
	case MsgTypeDeselectRoom:
		req, err = decodeInto[DeselectRoom](payload)
	case MsgTypeSetAsRead:
		req, err = decodeInto[SetAsRead](payload)
	case MsgTypeSendMessage:
		req, err = decodeInto[SendMessage](payload)
	case MsgTypeEditMessage:
		req, err = decodeInto[EditMessage](payload)
	case MsgTypeDeleteMessage:
		req, err = decodeInto[DeleteMessage](payload)
	case MsgTypeCreateCommunity:
		req, err = decodeInto[CreateCommunity](payload)
	case MsgTypeCreateRoom:
		req, err = decodeInto[CreateRoom](payload)
	case MsgTypeCreateInvite:
		req, err = decodeInto[CreateInvite](payload)
	case MsgTypeJoinCommunity:
		req, err = decodeInto[JoinCommunity](payload)
	case MsgTypeChangeCommunityName:
		req, err = decodeInto[ChangeCommunityName](payload)
	case MsgTypeChangeCommunityDescription:
		req, err = decodeInto[ChangeCommunityDescription](payload)
	case MsgTypeDeleteCommunity:
		req, err = decodeInto[DeleteCommunity](payload)
	case MsgTypeChangeUsername:
		req, err = decodeInto[ChangeUsername](payload)
	case MsgTypeChangeDisplayName:
		req, err = decodeInto[ChangeDisplayName](payload)
	case MsgTypeGetProfile:
		req, err = decodeInto[GetProfile](payload)
	case MsgTypeReportUser:
		req, err = decodeInto[ReportUser](payload)
	case MsgTypeAdminAction:
		req, err = decodeInto[AdminAction](payload)
	case MsgTypeGetRoomUpdate:
		req, err = decodeInto[GetRoomUpdate](payload)
	case MsgTypeGetMessages:
		req, err = decodeInto[GetMessages](payload)
	default:
		return 0, nil, fmt.Errorf("%w: 0x%04x", ErrUnknownType, header.Type)
	}

	if err != nil {
		return 0, nil, err
	}

	return header.RequestID, req, nil
}

// EncodeServerMessage frames any server-to-client unit
func EncodeServerMessage(msg ServerMessage) ([]byte, error) {
	switch m := msg.(type) {
	case *Response:
		if m.Err != nil {
			return encode(MsgTypeErrResponse, m.ID, errPayload{Code: uint16(*m.Err)})
		}
		return encode(m.Ok.okType(), m.ID, m.Ok)
	case MalformedMessage:
		return encode(MsgTypeMalformedMessage, 0, m)
	case RateLimited:
		return encode(MsgTypeRateLimited, 0, m)
	case ServerEvent:
		return encode(m.eventType(), 0, m)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, msg)
	}
}

// DecodeServerMessage decodes one server-to-client unit
func DecodeServerMessage(buf []byte) (ServerMessage, error) {
	header, payload, err := splitUnit(buf)
	if err != nil {
		return nil, err
	}

	switch header.Type {
	case MsgTypeMalformedMessage:
		return MalformedMessage{}, nil
	case MsgTypeRateLimited:
		return decodeMsg[RateLimited](payload)

	case MsgTypeClientReady:
		return decodeMsg[ClientReady](payload)
	case MsgTypeAddMessage:
		return decodeMsg[AddMessage](payload)
	case MsgTypeNotifyMessageReady:
		return decodeMsg[NotifyMessageReady](payload)
	case MsgTypeEdit:
		return decodeMsg[Edit](payload)
	case MsgTypeDelete:
		return decodeMsg[Delete](payload)
	case MsgTypeAddRoom:
		return decodeMsg[AddRoom](payload)
	case MsgTypeAddCommunity:
		return decodeMsg[AddCommunity](payload)
	case MsgTypeRemoveCommunity:
		return decodeMsg[RemoveCommunity](payload)
	case MsgTypeSessionLoggedOut:
		return decodeMsg[SessionLoggedOut](payload)
	case MsgTypeAdminPermissionsChanged:
		return decodeMsg[AdminPermissionsChanged](payload)
	case MsgTypeInternalError:
		return decodeMsg[InternalError](payload)

	case MsgTypeErrResponse:
		body, err := decodeInto[errPayload](payload)
		if err != nil {
			return nil, err
		}
		code := Error(body.Code)
		if !code.Valid() {
			return nil, fmt.Errorf("%w: error code %d", ErrMalformedPayload, body.Code)
		}
		return ErrResult(header.RequestID, code), nil
	}

	var ok OkResponse
	switch header.Type {
	case MsgTypeOkNoData:
		ok, err = decodeInto[OkNoData](payload)
	case MsgTypeOkAddCommunity:
		ok, err = decodeInto[OkAddCommunity](payload)
	case MsgTypeOkAddRoom:
		ok, err = decodeInto[OkAddRoom](payload)
	case MsgTypeOkConfirmMessage:
		ok, err = decodeInto[OkConfirmMessage](payload)
	case MsgTypeOkNewInvite:
		ok, err = decodeInto[OkNewInvite](payload)
	case MsgTypeOkProfile:
		ok, err = decodeInto[OkProfile](payload)
	case MsgTypeOkRoomUpdate:
		ok, err = decodeInto[OkRoomUpdate](payload)
	case MsgTypeOkMessageHistory:
		ok, err = decodeInto[OkMessageHistory](payload)
	default:
		return nil, fmt.Errorf("%w: 0x%04x", ErrUnknownType, header.Type)
	}

	if err != nil {
		return nil, err
	}

	return OkResult(header.RequestID, ok), nil
}
