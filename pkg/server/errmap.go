package server

import (
	"errors"

	"github.com/atriumchat/atrium/pkg/protocol"
	"github.com/atriumchat/atrium/pkg/state"
)

// wireError translates a state-layer failure into the closed wire
// taxonomy. Anything unrecognised collapses to ErrInternal so internals
// never leak.
func wireError(err error) protocol.Error {
	switch {
	case errors.Is(err, state.ErrUserNotFound):
		return protocol.ErrInvalidUser
	case errors.Is(err, state.ErrUsernameTaken):
		return protocol.ErrUsernameAlreadyExists
	case errors.Is(err, state.ErrInvalidName):
		return protocol.ErrTooLong
	case errors.Is(err, state.ErrCommunityNotFound):
		return protocol.ErrInvalidCommunity
	case errors.Is(err, state.ErrRoomNotFound):
		return protocol.ErrInvalidRoom
	case errors.Is(err, state.ErrMessageNotFound):
		return protocol.ErrInvalidMessage
	case errors.Is(err, state.ErrNotMember), errors.Is(err, state.ErrNotAuthor):
		return protocol.ErrAccessDenied
	case errors.Is(err, state.ErrAlreadyMember):
		return protocol.ErrAlreadyInCommunity
	case errors.Is(err, state.ErrInviteNotFound), errors.Is(err, state.ErrInviteExpired):
		return protocol.ErrInvalidInviteCode
	case errors.Is(err, state.ErrTooManyInvites):
		return protocol.ErrTooManyInviteCodes
	case errors.Is(err, state.ErrInvalidSelector):
		return protocol.ErrInvalidMessageSelector
	case errors.Is(err, state.ErrContentTooLong):
		return protocol.ErrMessageTooLong
	default:
		return protocol.ErrInternal
	}
}
