// Package protocol implements the Atrium chat wire protocol.
//
// The protocol package defines the framed envelope, the closed unions of
// requests, events and responses, the error taxonomy and the codec used
// between Atrium clients and servers.
//
// # Protocol Overview
//
// Atrium uses a framed binary envelope with JSON payload bodies:
//   - 16-byte headers with magic number validation
//   - A type tag in the header driving closed, exhaustive dispatch
//   - A correlation id matching requests to their single response
//   - Protocol signals (MalformedMessage, RateLimited) that never close
//     the connection
//
// # Message Types
//
// Protocol signals (0x00xx):
//   - MalformedMessage: the previous client unit could not be decoded
//   - RateLimited: admission refused; carries the remaining backoff
//
// Client requests (0x01xx): session control (LogOut, SelectRoom,
// DeselectRoom, SetAsRead), content (SendMessage, EditMessage,
// DeleteMessage), community and room lifecycle (CreateCommunity,
// CreateRoom, CreateInvite, JoinCommunity, ChangeCommunityName,
// ChangeCommunityDescription, DeleteCommunity), profile
// (ChangeUsername, ChangeDisplayName, GetProfile), moderation
// (ReportUser, AdminAction) and sync (GetRoomUpdate, GetMessages).
//
// Server events (0x02xx): ClientReady, AddMessage, NotifyMessageReady,
// Edit, Delete, AddRoom, AddCommunity, RemoveCommunity,
// SessionLoggedOut, AdminPermissionsChanged, InternalError.
//
// Responses (0x03xx): one success payload per Ok variant, plus a single
// error unit carrying a code from the closed Error taxonomy.
//
// # Header Format
//
// Every unit starts with a 16-byte header:
//   - Magic (4 bytes): Protocol identifier (0x4154524D = "ATRM")
//   - Version (2 bytes): Protocol version (0x0100 = v1.0)
//   - Type (2 bytes): Message type
//   - RequestID (4 bytes): Correlation id, zero on uncorrelated units
//   - Length (4 bytes): Payload length
//
// Fields use big-endian byte order. The payload body is the JSON
// encoding of the Go struct selected by the type tag.
//
// # Ordering
//
// Responses may complete out of submission order; correlation by id is
// the only response ordering guarantee. Events affecting the same room
// are delivered to every recipient in server apply order. Events and
// responses interleave arbitrarily on the outbound stream.
package protocol
