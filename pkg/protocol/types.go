package protocol

import "time"

// Protocol constants
const (
	// Magic number for the Atrium protocol ('ATRM')
	ProtocolMagic = 0x4154524D

	// Protocol version
	ProtocolVersion = 0x0100 // v1.0

	// Header size
	HeaderSize = 16

	// Maximum payload size accepted for a single unit
	MaxPayloadSize = 1 << 20
)

// Message types
const (
	// Protocol signals (0x00xx), server to client, uncorrelated
	MsgTypeMalformedMessage uint16 = 0x0001
	MsgTypeRateLimited      uint16 = 0x0002

	// Client requests (0x01xx)
	MsgTypeLogOut                     uint16 = 0x0101
	MsgTypeSelectRoom                 uint16 = 0x0102
	MsgTypeDeselectRoom               uint16 = 0x0103
	MsgTypeSetAsRead                  uint16 = 0x0104
	MsgTypeSendMessage                uint16 = 0x0105
	MsgTypeEditMessage                uint16 = 0x0106
	MsgTypeDeleteMessage              uint16 = 0x0107
	MsgTypeCreateCommunity            uint16 = 0x0108
	MsgTypeCreateRoom                 uint16 = 0x0109
	MsgTypeCreateInvite               uint16 = 0x010A
	MsgTypeJoinCommunity              uint16 = 0x010B
	MsgTypeChangeCommunityName        uint16 = 0x010C
	MsgTypeChangeCommunityDescription uint16 = 0x010D
	MsgTypeDeleteCommunity            uint16 = 0x010E
	MsgTypeChangeUsername             uint16 = 0x010F
	MsgTypeChangeDisplayName          uint16 = 0x0110
	MsgTypeGetProfile                 uint16 = 0x0111
	MsgTypeReportUser                 uint16 = 0x0112
	MsgTypeAdminAction                uint16 = 0x0113
	MsgTypeGetRoomUpdate              uint16 = 0x0114
	MsgTypeGetMessages                uint16 = 0x0115

	// Server events (0x02xx), uncorrelated pushes
	MsgTypeClientReady             uint16 = 0x0201
	MsgTypeAddMessage              uint16 = 0x0202
	MsgTypeNotifyMessageReady      uint16 = 0x0203
	MsgTypeEdit                    uint16 = 0x0204
	MsgTypeDelete                  uint16 = 0x0205
	MsgTypeAddRoom                 uint16 = 0x0206
	MsgTypeAddCommunity            uint16 = 0x0207
	MsgTypeRemoveCommunity         uint16 = 0x0208
	MsgTypeSessionLoggedOut        uint16 = 0x0209
	MsgTypeAdminPermissionsChanged uint16 = 0x020A
	MsgTypeInternalError           uint16 = 0x020B

	// Correlated responses (0x03xx)
	MsgTypeOkNoData         uint16 = 0x0301
	MsgTypeOkAddCommunity   uint16 = 0x0302
	MsgTypeOkAddRoom        uint16 = 0x0303
	MsgTypeOkConfirmMessage uint16 = 0x0304
	MsgTypeOkNewInvite      uint16 = 0x0305
	MsgTypeOkProfile        uint16 = 0x0306
	MsgTypeOkRoomUpdate     uint16 = 0x0307
	MsgTypeOkMessageHistory uint16 = 0x0308
	MsgTypeErrResponse      uint16 = 0x03FF
)

// UserID identifies a registered user
type UserID uint64

// CommunityID identifies a community
type CommunityID uint64

// RoomID identifies a room within a community
type RoomID uint64

// MessageID identifies a message. Within a room it is strictly
// monotonically increasing and is the sole ordering key of the log.
type MessageID uint64

// RequestID correlates a client request with its response. Unique among
// the requests outstanding on one connection, never across connections.
type RequestID uint32

// RemoveCommunityReason explains a RemoveCommunity event
type RemoveCommunityReason uint8

const (
	RemoveReasonDeleted RemoveCommunityReason = 0
)

// AdminOp selects the operation of an AdminAction request
type AdminOp uint8

const (
	AdminOpPromote        AdminOp = 0
	AdminOpDemote         AdminOp = 1
	AdminOpSetPermissions AdminOp = 2
)

// PermissionFlags is the per-member admin permission bitmask within a
// community
type PermissionFlags int64

const (
	PermManageRooms      PermissionFlags = 1 << 0
	PermManageInvites    PermissionFlags = 1 << 1
	PermManageCommunity  PermissionFlags = 1 << 2
	PermModerateMessages PermissionFlags = 1 << 3
	PermManageAdmins     PermissionFlags = 1 << 4

	PermAll = PermManageRooms | PermManageInvites | PermManageCommunity |
		PermModerateMessages | PermManageAdmins
)

// Has checks whether all the given bits are set
func (p PermissionFlags) Has(flags PermissionFlags) bool {
	return p&flags == flags
}

// NowUnixMilli returns current time in Unix milliseconds
func NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
