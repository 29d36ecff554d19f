package protocol

import (
	"errors"
	"reflect"
	"testing"
)

func TestEncodeDecodeRequest(t *testing.T) {
	expiration := int64(1700000000000)
	lastReceived := MessageID(17)

	tests := []struct {
		name string
		id   RequestID
		req  ClientRequest
	}{
		{
			name: "send message",
			id:   1,
			req: SendMessage{
				Community: 3,
				Room:      9,
				Content:   "hello there",
			},
		},
		{
			name: "log out",
			id:   2,
			req:  LogOut{},
		},
		{
			name: "create invite with expiration",
			id:   3,
			req: CreateInvite{
				Community:  4,
				Expiration: &expiration,
			},
		},
		{
			name: "create invite without expiration",
			id:   4,
			req:  CreateInvite{Community: 4},
		},
		{
			name: "get messages with exclusive before bound",
			id:   5,
			req: GetMessages{
				Community: 1,
				Room:      1,
				Selector: MessageSelector{
					Before: true,
					Bound:  Bound{Exclusive: true, Message: 50},
				},
				MessageCount: 10,
			},
		},
		{
			name: "get room update",
			id:   6,
			req: GetRoomUpdate{
				Community:    1,
				Room:         2,
				LastReceived: &lastReceived,
				MessageCount: 25,
			},
		},
		{
			name: "admin action",
			id:   7,
			req: AdminAction{
				Community:   2,
				Op:          AdminOpPromote,
				Target:      11,
				Permissions: PermManageRooms | PermManageInvites,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := EncodeRequest(tt.id, tt.req)
			if err != nil {
				t.Fatalf("EncodeRequest() error = %v", err)
			}

			id, decoded, err := DecodeRequest(buf)
			if err != nil {
				t.Fatalf("DecodeRequest() error = %v", err)
			}

			if id != tt.id {
				t.Errorf("DecodeRequest() id = %d, want %d", id, tt.id)
			}

			if !reflect.DeepEqual(decoded, tt.req) {
				t.Errorf("DecodeRequest() = %#v, want %#v", decoded, tt.req)
			}
		})
	}
}

func TestEncodeDecodeServerMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  ServerMessage
	}{
		{
			name: "ok response with message confirmation",
			msg:  OkResult(8, OkConfirmMessage{ID: 51, TimeSent: 1700000000001}),
		},
		{
			name: "ok response without data",
			msg:  OkResult(9, OkNoData{}),
		},
		{
			name: "error response",
			msg:  ErrResult(10, ErrInvalidInviteCode),
		},
		{
			name: "add message event",
			msg: AddMessage{
				Community: 1,
				Room:      2,
				Message: Message{
					ID:       60,
					Room:     2,
					Author:   5,
					Content:  "new content",
					TimeSent: 1700000000002,
				},
			},
		},
		{
			name: "notify message ready event",
			msg:  NotifyMessageReady{Community: 1, Room: 2},
		},
		{
			name: "remove community event",
			msg:  RemoveCommunity{ID: 7, Reason: RemoveReasonDeleted},
		},
		{
			name: "rate limited signal",
			msg:  RateLimited{ReadyInMS: 350},
		},
		{
			name: "malformed message sentinel",
			msg:  MalformedMessage{},
		},
		{
			name: "session logged out event",
			msg:  SessionLoggedOut{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := EncodeServerMessage(tt.msg)
			if err != nil {
				t.Fatalf("EncodeServerMessage() error = %v", err)
			}

			decoded, err := DecodeServerMessage(buf)
			if err != nil {
				t.Fatalf("DecodeServerMessage() error = %v", err)
			}

			if !reflect.DeepEqual(decoded, tt.msg) {
				t.Errorf("DecodeServerMessage() = %#v, want %#v", decoded, tt.msg)
			}
		})
	}
}

func TestRateLimitedNeverCorrelated(t *testing.T) {
	buf, err := EncodeServerMessage(RateLimited{ReadyInMS: 100})
	if err != nil {
		t.Fatalf("EncodeServerMessage() error = %v", err)
	}

	header := &Header{}
	if err := header.Decode(buf); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if header.RequestID != 0 {
		t.Errorf("RateLimited request id = %d, want 0", header.RequestID)
	}
}

func TestDecodeRequestMalformed(t *testing.T) {
	valid, err := EncodeRequest(1, CreateCommunity{Name: "gardeners"})
	if err != nil {
		t.Fatalf("EncodeRequest() error = %v", err)
	}

	tests := []struct {
		name string
		buf  []byte
	}{
		{
			name: "truncated header",
			buf:  valid[:HeaderSize-2],
		},
		{
			name: "truncated payload",
			buf:  valid[:len(valid)-3],
		},
		{
			name: "unknown type tag",
			buf: func() []byte {
				b := make([]byte, len(valid))
				copy(b, valid)
				b[6], b[7] = 0x7F, 0x7F
				return b
			}(),
		},
		{
			name: "payload is not json",
			buf: func() []byte {
				h := &Header{
					Magic:   ProtocolMagic,
					Version: ProtocolVersion,
					Type:    MsgTypeCreateCommunity,
					Length:  3,
				}
				return append(h.Encode(), 0x01, 0x02, 0x03)
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := DecodeRequest(tt.buf); err == nil {
				t.Error("DecodeRequest() expected error, got nil")
			}
		})
	}
}

func TestDecodeServerMessageRejectsUnknownErrorCode(t *testing.T) {
	buf, err := encode(MsgTypeErrResponse, 3, errPayload{Code: 200})
	if err != nil {
		t.Fatalf("encode() error = %v", err)
	}

	if _, err := DecodeServerMessage(buf); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("DecodeServerMessage() error = %v, want %v", err, ErrMalformedPayload)
	}
}

func TestErrorTaxonomyClosed(t *testing.T) {
	if !ErrInvalidMessage.Valid() {
		t.Error("ErrInvalidMessage should be valid")
	}

	if Error(20).Valid() {
		t.Error("Error(20) should not be valid")
	}

	if ErrInvalidMessage != 19 {
		t.Errorf("ErrInvalidMessage = %d, want 19", ErrInvalidMessage)
	}

	if ErrInternal != 0 {
		t.Errorf("ErrInternal = %d, want 0", ErrInternal)
	}
}
