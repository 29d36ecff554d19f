package server

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atriumchat/atrium/pkg/protocol"
	"github.com/atriumchat/atrium/pkg/state"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	return NewHub(state.NewStore(state.Limits{}), nil, zerolog.Nop(), Options{})
}

// newTestSession builds a session without a network connection: units
// pushed to it pile up in the send queue where the test reads them back.
func newTestSession(t *testing.T, hub *Hub, username string) *Session {
	t.Helper()

	user, err := hub.store.EnsureUser(username)
	require.NoError(t, err)

	s := newSession(hub, user.ID, nil)
	hub.attach(s)
	t.Cleanup(func() { hub.detach(s) })

	return s
}

func recv(t *testing.T, s *Session) protocol.ServerMessage {
	t.Helper()

	select {
	case buf := <-s.send:
		msg, err := protocol.DecodeServerMessage(buf)
		require.NoError(t, err)
		return msg
	case <-time.After(time.Second):
		t.Fatal("no unit received")
		return nil
	}
}

func requireOk(t *testing.T, s *Session, id protocol.RequestID) protocol.OkResponse {
	t.Helper()

	msg := recv(t, s)
	resp, ok := msg.(*protocol.Response)
	require.True(t, ok, "expected a response, got %T", msg)
	require.Equal(t, id, resp.ID)
	require.Nil(t, resp.Err, "unexpected error response: %v", resp.Err)
	return resp.Ok
}

func requireErr(t *testing.T, s *Session, id protocol.RequestID, want protocol.Error) {
	t.Helper()

	msg := recv(t, s)
	resp, ok := msg.(*protocol.Response)
	require.True(t, ok, "expected a response, got %T", msg)
	require.Equal(t, id, resp.ID)
	require.NotNil(t, resp.Err)
	assert.Equal(t, want, *resp.Err)
}

// createTestCommunity drives CreateCommunity through the dispatcher and
// returns the snapshot from the response
func createTestCommunity(t *testing.T, s *Session, name string) protocol.CommunityStructure {
	t.Helper()

	s.dispatch(1, protocol.CreateCommunity{Name: name})
	ok := requireOk(t, s, 1)
	add, is := ok.(protocol.OkAddCommunity)
	require.True(t, is)
	return add.Community
}

func joinTestCommunity(t *testing.T, owner, joiner *Session, community protocol.CommunityID) {
	t.Helper()

	owner.dispatch(90, protocol.CreateInvite{Community: community})
	ok := requireOk(t, owner, 90)
	invite, is := ok.(protocol.OkNewInvite)
	require.True(t, is)

	joiner.dispatch(91, protocol.JoinCommunity{InviteCode: invite.Code})
	requireOk(t, joiner, 91)
}

func TestSendMessageFanout(t *testing.T) {
	hub := newTestHub(t)
	alice := newTestSession(t, hub, "alice")
	aliceIdle := newTestSession(t, hub, "alice")
	bob := newTestSession(t, hub, "bob")

	community := createTestCommunity(t, alice, "gardeners")
	room := community.Rooms[0].ID
	// The creator's other session hears about the community as an event
	_, isAdd := recv(t, aliceIdle).(protocol.AddCommunity)
	require.True(t, isAdd)

	joinTestCommunity(t, alice, bob, community.ID)

	alice.selectRoom(community.ID, room)
	bob.selectRoom(community.ID, room)

	alice.dispatch(2, protocol.SendMessage{Community: community.ID, Room: room, Content: "hello"})

	// Sessions viewing the room get the body; the idle session gets a ping
	add, is := recv(t, alice).(protocol.AddMessage)
	require.True(t, is)
	assert.Equal(t, "hello", add.Message.Content)
	assert.Equal(t, protocol.MessageID(1), add.Message.ID)

	ok := requireOk(t, alice, 2)
	confirm, is := ok.(protocol.OkConfirmMessage)
	require.True(t, is)
	assert.Equal(t, add.Message.ID, confirm.ID)

	bobAdd, is := recv(t, bob).(protocol.AddMessage)
	require.True(t, is)
	assert.Equal(t, add.Message.ID, bobAdd.Message.ID)

	_, is = recv(t, aliceIdle).(protocol.NotifyMessageReady)
	require.True(t, is)
}

func TestSendMessageRequiresMembership(t *testing.T) {
	hub := newTestHub(t)
	alice := newTestSession(t, hub, "alice")
	mallory := newTestSession(t, hub, "mallory")

	community := createTestCommunity(t, alice, "gardeners")
	room := community.Rooms[0].ID

	mallory.dispatch(2, protocol.SendMessage{Community: community.ID, Room: room, Content: "hi"})
	requireErr(t, mallory, 2, protocol.ErrAccessDenied)
}

func TestValidationBounds(t *testing.T) {
	hub := newTestHub(t)
	alice := newTestSession(t, hub, "alice")

	// Empty content never reaches the model
	alice.dispatch(1, protocol.SendMessage{Community: 1, Room: 1, Content: ""})
	requireErr(t, alice, 1, protocol.ErrInvalidMessage)

	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}
	alice.dispatch(2, protocol.CreateCommunity{Name: string(long)})
	requireErr(t, alice, 2, protocol.ErrTooLong)
}

func TestCreateRoomPermissionsAndFanout(t *testing.T) {
	hub := newTestHub(t)
	alice := newTestSession(t, hub, "alice")
	bob := newTestSession(t, hub, "bob")

	community := createTestCommunity(t, alice, "gardeners")
	joinTestCommunity(t, alice, bob, community.ID)

	// Plain members cannot create rooms
	bob.dispatch(2, protocol.CreateRoom{Community: community.ID, Name: "tomatoes"})
	requireErr(t, bob, 2, protocol.ErrAccessDenied)

	alice.dispatch(3, protocol.CreateRoom{Community: community.ID, Name: "tomatoes"})
	ok := requireOk(t, alice, 3)
	created, is := ok.(protocol.OkAddRoom)
	require.True(t, is)
	assert.Equal(t, "tomatoes", created.Room.Name)

	ev, is := recv(t, bob).(protocol.AddRoom)
	require.True(t, is)
	assert.Equal(t, created.Room.ID, ev.Room.ID)
}

func TestJoinCommunityBadInvite(t *testing.T) {
	hub := newTestHub(t)
	bob := newTestSession(t, hub, "bob")

	bob.dispatch(1, protocol.JoinCommunity{InviteCode: "nosuchcode"})
	requireErr(t, bob, 1, protocol.ErrInvalidInviteCode)
}

func TestEditAndDeleteFanout(t *testing.T) {
	hub := newTestHub(t)
	alice := newTestSession(t, hub, "alice")
	bob := newTestSession(t, hub, "bob")

	community := createTestCommunity(t, alice, "gardeners")
	room := community.Rooms[0].ID
	joinTestCommunity(t, alice, bob, community.ID)

	alice.dispatch(2, protocol.SendMessage{Community: community.ID, Room: room, Content: "helo"})
	recv(t, alice) // ping, room not selected
	ok := requireOk(t, alice, 2)
	confirm := ok.(protocol.OkConfirmMessage)
	recv(t, bob) // ping for the send

	// Bob cannot edit Alice's message
	bob.dispatch(3, protocol.EditMessage{Community: community.ID, Room: room, Message: confirm.ID, NewContent: "hijack"})
	requireErr(t, bob, 3, protocol.ErrAccessDenied)

	alice.dispatch(4, protocol.EditMessage{Community: community.ID, Room: room, Message: confirm.ID, NewContent: "hello"})
	requireOk(t, alice, 4)

	edit, is := recv(t, bob).(protocol.Edit)
	require.True(t, is)
	assert.Equal(t, "hello", edit.NewContent)

	// Alice has moderation rights and may delete anything; here her own
	alice.dispatch(5, protocol.DeleteMessage{Community: community.ID, Room: room, Message: confirm.ID})
	requireOk(t, alice, 5)

	del, is := recv(t, bob).(protocol.Delete)
	require.True(t, is)
	assert.Equal(t, confirm.ID, del.Message)
}

func TestAdminActionPropagates(t *testing.T) {
	hub := newTestHub(t)
	alice := newTestSession(t, hub, "alice")
	bob := newTestSession(t, hub, "bob")

	community := createTestCommunity(t, alice, "gardeners")
	joinTestCommunity(t, alice, bob, community.ID)

	// Bob has no admin rights yet
	bob.dispatch(2, protocol.AdminAction{Community: community.ID, Op: protocol.AdminOpPromote, Target: bob.user})
	requireErr(t, bob, 2, protocol.ErrAccessDenied)

	alice.dispatch(3, protocol.AdminAction{Community: community.ID, Op: protocol.AdminOpPromote, Target: bob.user})
	requireOk(t, alice, 3)

	changed, is := recv(t, bob).(protocol.AdminPermissionsChanged)
	require.True(t, is)
	assert.True(t, changed.Permissions.Has(protocol.PermAll))

	// Promoted, Bob can now create rooms
	bob.dispatch(4, protocol.CreateRoom{Community: community.ID, Name: "compost"})
	requireOk(t, bob, 4)
	recv(t, alice) // AddRoom event
}

func TestDeleteCommunityFanout(t *testing.T) {
	hub := newTestHub(t)
	alice := newTestSession(t, hub, "alice")
	bob := newTestSession(t, hub, "bob")

	community := createTestCommunity(t, alice, "gardeners")
	room := community.Rooms[0].ID
	joinTestCommunity(t, alice, bob, community.ID)

	bob.selectRoom(community.ID, room)

	// Only PermManageCommunity may delete
	bob.dispatch(2, protocol.DeleteCommunity{Community: community.ID})
	requireErr(t, bob, 2, protocol.ErrAccessDenied)

	alice.dispatch(3, protocol.DeleteCommunity{Community: community.ID})

	removedAlice, is := recv(t, alice).(protocol.RemoveCommunity)
	require.True(t, is)
	assert.Equal(t, community.ID, removedAlice.ID)
	assert.Equal(t, protocol.RemoveReasonDeleted, removedAlice.Reason)
	requireOk(t, alice, 3)

	removedBob, is := recv(t, bob).(protocol.RemoveCommunity)
	require.True(t, is)
	assert.Equal(t, community.ID, removedBob.ID)

	// Bob's selection pointed into the community and must be gone
	assert.False(t, bob.viewing(community.ID, room))
}

func TestGetMessagesPaging(t *testing.T) {
	hub := newTestHub(t)
	alice := newTestSession(t, hub, "alice")

	community := createTestCommunity(t, alice, "gardeners")
	room := community.Rooms[0].ID
	alice.selectRoom(community.ID, room)

	for i := 0; i < 15; i++ {
		id := protocol.RequestID(100 + i)
		alice.dispatch(id, protocol.SendMessage{Community: community.ID, Room: room, Content: "m"})
		recv(t, alice) // AddMessage to self, room is selected
		requireOk(t, alice, id)
	}

	alice.dispatch(2, protocol.GetMessages{
		Community: community.ID,
		Room:      room,
		Selector: protocol.MessageSelector{
			Before: true,
			Bound:  protocol.Bound{Exclusive: true, Message: 11},
		},
		MessageCount: 5,
	})
	ok := requireOk(t, alice, 2)
	history, is := ok.(protocol.OkMessageHistory)
	require.True(t, is)

	require.Len(t, history.History.Messages, 5)
	assert.Equal(t, protocol.MessageID(6), history.History.Messages[0].ID)
	assert.Equal(t, protocol.MessageID(10), history.History.Messages[4].ID)

	// An unknown bound is a selector error
	alice.dispatch(3, protocol.GetMessages{
		Community:    community.ID,
		Room:         room,
		Selector:     protocol.MessageSelector{Before: true, Bound: protocol.Bound{Message: 999}},
		MessageCount: 5,
	})
	requireErr(t, alice, 3, protocol.ErrInvalidMessageSelector)
}

func TestGetRoomUpdate(t *testing.T) {
	hub := newTestHub(t)
	alice := newTestSession(t, hub, "alice")

	community := createTestCommunity(t, alice, "gardeners")
	room := community.Rooms[0].ID

	for i := 0; i < 10; i++ {
		id := protocol.RequestID(100 + i)
		alice.dispatch(id, protocol.SendMessage{Community: community.ID, Room: room, Content: "m"})
		recv(t, alice) // ping, room not selected
		requireOk(t, alice, id)
	}

	last := protocol.MessageID(4)
	alice.dispatch(2, protocol.GetRoomUpdate{
		Community:    community.ID,
		Room:         room,
		LastReceived: &last,
		MessageCount: 20,
	})
	ok := requireOk(t, alice, 2)
	update, is := ok.(protocol.OkRoomUpdate)
	require.True(t, is)
	assert.Equal(t, uint32(6), update.Update.NewMessages)
	assert.True(t, update.Update.Continuous)
}

func TestLogOutSequence(t *testing.T) {
	hub := newTestHub(t)
	alice := newTestSession(t, hub, "alice")

	alice.dispatch(1, protocol.LogOut{})

	requireOk(t, alice, 1)
	_, is := recv(t, alice).(protocol.SessionLoggedOut)
	require.True(t, is)

	select {
	case <-alice.done:
	case <-time.After(time.Second):
		t.Fatal("session not closed after logout")
	}
}

func TestProfileRoundTrip(t *testing.T) {
	hub := newTestHub(t)
	alice := newTestSession(t, hub, "alice")
	bob := newTestSession(t, hub, "bob")

	alice.dispatch(1, protocol.ChangeDisplayName{NewDisplayName: "Alice A."})
	requireOk(t, alice, 1)

	bob.dispatch(2, protocol.GetProfile{User: alice.user})
	ok := requireOk(t, bob, 2)
	profile, is := ok.(protocol.OkProfile)
	require.True(t, is)
	assert.Equal(t, "alice", profile.Profile.Username)
	assert.Equal(t, "Alice A.", profile.Profile.DisplayName)

	// Username collisions surface as their own error
	bob.dispatch(3, protocol.ChangeUsername{NewUsername: "alice"})
	requireErr(t, bob, 3, protocol.ErrUsernameAlreadyExists)
}
