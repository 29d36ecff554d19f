package protocol

// Error is the closed application-level error taxonomy. Values are part
// of the wire contract and must not be reordered.
type Error uint16

const (
	ErrInternal Error = iota
	ErrUsernameAlreadyExists
	ErrInvalidUsername
	ErrInvalidPassword
	ErrInvalidDisplayName
	ErrLoggedOut
	ErrDeviceDoesNotExist
	ErrIncorrectUsernameOrPassword
	ErrAccessDenied
	ErrInvalidRoom
	ErrInvalidCommunity
	ErrInvalidInviteCode
	ErrInvalidUser
	ErrAlreadyInCommunity
	ErrTooManyInviteCodes
	ErrInvalidMessageSelector
	ErrMessageTooLong
	ErrUnimplemented
	ErrTooLong
	ErrInvalidMessage
)

var errorNames = [...]string{
	"internal error",
	"username already exists",
	"invalid username",
	"invalid password",
	"invalid display name",
	"logged out",
	"device does not exist",
	"incorrect username or password",
	"access denied",
	"invalid room",
	"invalid community",
	"invalid invite code",
	"invalid user",
	"already in community",
	"too many invite codes",
	"invalid message selector",
	"message too long",
	"unimplemented",
	"too long",
	"invalid message",
}

func (e Error) Error() string {
	if int(e) < len(errorNames) {
		return errorNames[e]
	}
	return "unknown error"
}

// Valid reports whether the value is a member of the taxonomy
func (e Error) Valid() bool {
	return int(e) < len(errorNames)
}
