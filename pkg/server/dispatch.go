package server

import (
	"errors"

	"github.com/go-playground/validator/v10"

	"github.com/atriumchat/atrium/pkg/protocol"
	"github.com/atriumchat/atrium/pkg/state"
	"github.com/atriumchat/atrium/pkg/storage"
)

var validate = validator.New()

func validationError(err error) protocol.Error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Tag() == "max" {
		return protocol.ErrTooLong
	}
	return protocol.ErrInvalidMessage
}

// dispatch runs one admitted request to completion. The switch is
// exhaustive over the request set: an unlisted variant cannot reach
// here because decoding already rejected it.
func (s *Session) dispatch(id protocol.RequestID, req protocol.ClientRequest) {
	if err := validate.Struct(req); err != nil {
		s.push(protocol.ErrResult(id, validationError(err)))
		return
	}

	var resp *protocol.Response
	switch r := req.(type) {
	case protocol.LogOut:
		resp = s.handleLogOut(id)
	case protocol.SelectRoom:
		resp = s.handleSelectRoom(id, r)
	case protocol.DeselectRoom:
		s.deselectRoom()
		resp = protocol.OkResult(id, protocol.OkNoData{})
	case protocol.SetAsRead:
		resp = s.handleSetAsRead(id, r)
	case protocol.SendMessage:
		resp = s.handleSendMessage(id, r)
	case protocol.EditMessage:
		resp = s.handleEditMessage(id, r)
	case protocol.DeleteMessage:
		resp = s.handleDeleteMessage(id, r)
	case protocol.CreateCommunity:
		resp = s.handleCreateCommunity(id, r)
	case protocol.CreateRoom:
		resp = s.handleCreateRoom(id, r)
	case protocol.CreateInvite:
		resp = s.handleCreateInvite(id, r)
	case protocol.JoinCommunity:
		resp = s.handleJoinCommunity(id, r)
	case protocol.ChangeCommunityName:
		resp = s.handleChangeCommunityName(id, r)
	case protocol.ChangeCommunityDescription:
		resp = s.handleChangeCommunityDescription(id, r)
	case protocol.DeleteCommunity:
		resp = s.handleDeleteCommunity(id, r)
	case protocol.ChangeUsername:
		resp = s.handleChangeUsername(id, r)
	case protocol.ChangeDisplayName:
		resp = s.handleChangeDisplayName(id, r)
	case protocol.GetProfile:
		resp = s.handleGetProfile(id, r)
	case protocol.ReportUser:
		resp = s.handleReportUser(id, r)
	case protocol.AdminAction:
		resp = s.handleAdminAction(id, r)
	case protocol.GetRoomUpdate:
		resp = s.handleGetRoomUpdate(id, r)
	case protocol.GetMessages:
		resp = s.handleGetMessages(id, r)
	default:
		resp = protocol.ErrResult(id, protocol.ErrUnimplemented)
	}

	if resp != nil {
		s.push(resp)
	}
}

func (s *Session) memberPerms(community protocol.CommunityID) (protocol.PermissionFlags, bool) {
	return s.hub.store.Permissions(community, s.user)
}

// ===== SESSION CONTROL =====

func (s *Session) handleLogOut(id protocol.RequestID) *protocol.Response {
	s.push(protocol.OkResult(id, protocol.OkNoData{}))
	s.push(protocol.SessionLoggedOut{})
	s.closeAfterFlush()
	return nil
}

func (s *Session) handleSelectRoom(id protocol.RequestID, r protocol.SelectRoom) *protocol.Response {
	if _, member := s.memberPerms(r.Community); !member {
		return protocol.ErrResult(id, protocol.ErrAccessDenied)
	}
	if err := s.hub.store.RoomExists(r.Community, r.Room); err != nil {
		return protocol.ErrResult(id, wireError(err))
	}

	s.selectRoom(r.Community, r.Room)
	return protocol.OkResult(id, protocol.OkNoData{})
}

func (s *Session) handleSetAsRead(id protocol.RequestID, r protocol.SetAsRead) *protocol.Response {
	if _, member := s.memberPerms(r.Community); !member {
		return protocol.ErrResult(id, protocol.ErrAccessDenied)
	}
	if err := s.hub.store.SetAsRead(r.Community, r.Room, s.user); err != nil {
		return protocol.ErrResult(id, wireError(err))
	}
	return protocol.OkResult(id, protocol.OkNoData{})
}

// ===== CONTENT =====

func (s *Session) handleSendMessage(id protocol.RequestID, r protocol.SendMessage) *protocol.Response {
	if _, member := s.memberPerms(r.Community); !member {
		return protocol.ErrResult(id, protocol.ErrAccessDenied)
	}

	mu := s.hub.lockRoom(r.Room)
	mu.Lock()
	defer mu.Unlock()

	msg, err := s.hub.store.AppendMessage(r.Community, r.Room, s.user, r.Content)
	if err != nil {
		return protocol.ErrResult(id, wireError(err))
	}
	s.hub.persist("append_message", func(db *storage.DB) error {
		return db.AppendMessage(msg)
	})

	s.hub.fanoutMessage(r.Community, r.Room, msg)
	return protocol.OkResult(id, protocol.OkConfirmMessage{ID: msg.ID, TimeSent: msg.TimeSent})
}

func (s *Session) handleEditMessage(id protocol.RequestID, r protocol.EditMessage) *protocol.Response {
	if _, member := s.memberPerms(r.Community); !member {
		return protocol.ErrResult(id, protocol.ErrAccessDenied)
	}

	mu := s.hub.lockRoom(r.Room)
	mu.Lock()
	defer mu.Unlock()

	if err := s.hub.store.EditMessage(r.Community, r.Room, r.Message, s.user, r.NewContent); err != nil {
		return protocol.ErrResult(id, wireError(err))
	}
	s.hub.persist("mark_edited", func(db *storage.DB) error {
		return db.MarkEdited(r.Room, r.Message, r.NewContent)
	})

	s.hub.pushToMembers(r.Community, protocol.Edit{
		Community:  r.Community,
		Room:       r.Room,
		Message:    r.Message,
		NewContent: r.NewContent,
	}, s.id)
	return protocol.OkResult(id, protocol.OkNoData{})
}

func (s *Session) handleDeleteMessage(id protocol.RequestID, r protocol.DeleteMessage) *protocol.Response {
	perms, member := s.memberPerms(r.Community)
	if !member {
		return protocol.ErrResult(id, protocol.ErrAccessDenied)
	}

	mu := s.hub.lockRoom(r.Room)
	mu.Lock()
	defer mu.Unlock()

	canModerate := perms.Has(protocol.PermModerateMessages)
	if err := s.hub.store.DeleteMessage(r.Community, r.Room, r.Message, s.user, canModerate); err != nil {
		return protocol.ErrResult(id, wireError(err))
	}
	s.hub.persist("mark_deleted", func(db *storage.DB) error {
		return db.MarkDeleted(r.Room, r.Message)
	})

	s.hub.pushToMembers(r.Community, protocol.Delete{
		Community: r.Community,
		Room:      r.Room,
		Message:   r.Message,
	}, s.id)
	return protocol.OkResult(id, protocol.OkNoData{})
}

// ===== COMMUNITY & ROOM LIFECYCLE =====

func (s *Session) handleCreateCommunity(id protocol.RequestID, r protocol.CreateCommunity) *protocol.Response {
	community, err := s.hub.store.CreateCommunity(s.user, r.Name)
	if err != nil {
		return protocol.ErrResult(id, wireError(err))
	}

	s.hub.persist("create_community", func(db *storage.DB) error {
		if err := db.SaveCommunity(community.ID, community.Name, community.Description); err != nil {
			return err
		}
		if err := db.SaveMember(community.ID, s.user, protocol.PermAll); err != nil {
			return err
		}
		return db.SaveRoom(community.ID, community.Rooms[0].ID, community.Rooms[0].Name)
	})

	// The requester's other sessions learn about it as an event
	for _, sess := range s.hub.sessionsOf(s.user) {
		if sess.id != s.id {
			sess.push(protocol.AddCommunity{Community: community})
		}
	}
	return protocol.OkResult(id, protocol.OkAddCommunity{Community: community})
}

func (s *Session) handleCreateRoom(id protocol.RequestID, r protocol.CreateRoom) *protocol.Response {
	perms, member := s.memberPerms(r.Community)
	if !member || !perms.Has(protocol.PermManageRooms) {
		return protocol.ErrResult(id, protocol.ErrAccessDenied)
	}

	room, err := s.hub.store.CreateRoom(r.Community, r.Name)
	if err != nil {
		return protocol.ErrResult(id, wireError(err))
	}
	s.hub.persist("create_room", func(db *storage.DB) error {
		return db.SaveRoom(r.Community, room.ID, room.Name)
	})

	s.hub.pushToMembers(r.Community, protocol.AddRoom{Community: r.Community, Room: room}, s.id)
	return protocol.OkResult(id, protocol.OkAddRoom{Community: r.Community, Room: room})
}

func (s *Session) handleCreateInvite(id protocol.RequestID, r protocol.CreateInvite) *protocol.Response {
	perms, member := s.memberPerms(r.Community)
	if !member || !perms.Has(protocol.PermManageInvites) {
		return protocol.ErrResult(id, protocol.ErrAccessDenied)
	}

	code, err := s.hub.store.CreateInvite(r.Community, r.Expiration)
	if err != nil {
		return protocol.ErrResult(id, wireError(err))
	}
	s.hub.persist("save_invite", func(db *storage.DB) error {
		return db.SaveInvite(code, r.Community, r.Expiration)
	})

	return protocol.OkResult(id, protocol.OkNewInvite{Code: code})
}

func (s *Session) handleJoinCommunity(id protocol.RequestID, r protocol.JoinCommunity) *protocol.Response {
	community, err := s.hub.store.LookupInvite(r.InviteCode, protocol.NowUnixMilli())
	if err != nil {
		return protocol.ErrResult(id, wireError(err))
	}

	structure, err := s.hub.store.AddMember(community, s.user)
	if err != nil {
		return protocol.ErrResult(id, wireError(err))
	}
	s.hub.persist("join_community", func(db *storage.DB) error {
		return db.SaveMember(community, s.user, 0)
	})

	for _, sess := range s.hub.sessionsOf(s.user) {
		if sess.id != s.id {
			sess.push(protocol.AddCommunity{Community: structure})
		}
	}
	return protocol.OkResult(id, protocol.OkAddCommunity{Community: structure})
}

func (s *Session) handleChangeCommunityName(id protocol.RequestID, r protocol.ChangeCommunityName) *protocol.Response {
	perms, member := s.memberPerms(r.Community)
	if !member || !perms.Has(protocol.PermManageCommunity) {
		return protocol.ErrResult(id, protocol.ErrAccessDenied)
	}

	if err := s.hub.store.ChangeCommunityName(r.Community, r.NewName); err != nil {
		return protocol.ErrResult(id, wireError(err))
	}
	s.persistCommunityMeta(r.Community)

	return protocol.OkResult(id, protocol.OkNoData{})
}

func (s *Session) handleChangeCommunityDescription(id protocol.RequestID, r protocol.ChangeCommunityDescription) *protocol.Response {
	perms, member := s.memberPerms(r.Community)
	if !member || !perms.Has(protocol.PermManageCommunity) {
		return protocol.ErrResult(id, protocol.ErrAccessDenied)
	}

	if err := s.hub.store.ChangeCommunityDescription(r.Community, r.NewDescription); err != nil {
		return protocol.ErrResult(id, wireError(err))
	}
	s.persistCommunityMeta(r.Community)

	return protocol.OkResult(id, protocol.OkNoData{})
}

func (s *Session) persistCommunityMeta(community protocol.CommunityID) {
	name, description, err := s.hub.store.CommunityMeta(community)
	if err != nil {
		return
	}
	s.hub.persist("save_community", func(db *storage.DB) error {
		return db.SaveCommunity(community, name, description)
	})
}

func (s *Session) handleDeleteCommunity(id protocol.RequestID, r protocol.DeleteCommunity) *protocol.Response {
	perms, member := s.memberPerms(r.Community)
	if !member || !perms.Has(protocol.PermManageCommunity) {
		return protocol.ErrResult(id, protocol.ErrAccessDenied)
	}

	// Collect the membership before the cascade destroys it
	members, err := s.hub.store.RemoveCommunity(r.Community)
	if err != nil {
		return protocol.ErrResult(id, wireError(err))
	}
	s.hub.persist("delete_community", func(db *storage.DB) error {
		return db.DeleteCommunity(r.Community)
	})

	removed := protocol.RemoveCommunity{ID: r.Community, Reason: protocol.RemoveReasonDeleted}
	for _, user := range members {
		for _, sess := range s.hub.sessionsOf(user) {
			sess.dropSelectionIn(r.Community)
			sess.push(removed)
		}
	}
	return protocol.OkResult(id, protocol.OkNoData{})
}

// ===== PROFILE =====

func (s *Session) handleChangeUsername(id protocol.RequestID, r protocol.ChangeUsername) *protocol.Response {
	if err := s.hub.store.ChangeUsername(s.user, r.NewUsername); err != nil {
		if errors.Is(err, state.ErrInvalidName) {
			return protocol.ErrResult(id, protocol.ErrInvalidUsername)
		}
		return protocol.ErrResult(id, wireError(err))
	}
	s.persistProfile()

	return protocol.OkResult(id, protocol.OkNoData{})
}

func (s *Session) handleChangeDisplayName(id protocol.RequestID, r protocol.ChangeDisplayName) *protocol.Response {
	if err := s.hub.store.ChangeDisplayName(s.user, r.NewDisplayName); err != nil {
		if errors.Is(err, state.ErrInvalidName) {
			return protocol.ErrResult(id, protocol.ErrInvalidDisplayName)
		}
		return protocol.ErrResult(id, wireError(err))
	}
	s.persistProfile()

	return protocol.OkResult(id, protocol.OkNoData{})
}

func (s *Session) persistProfile() {
	profile, err := s.hub.store.Profile(s.user)
	if err != nil {
		return
	}
	s.hub.persist("save_user", func(db *storage.DB) error {
		return db.SaveUser(state.User{
			ID:          profile.ID,
			Username:    profile.Username,
			DisplayName: profile.DisplayName,
		})
	})
}

func (s *Session) handleGetProfile(id protocol.RequestID, r protocol.GetProfile) *protocol.Response {
	profile, err := s.hub.store.Profile(r.User)
	if err != nil {
		return protocol.ErrResult(id, wireError(err))
	}
	return protocol.OkResult(id, protocol.OkProfile{Profile: profile})
}

// ===== MODERATION =====

func (s *Session) handleReportUser(id protocol.RequestID, r protocol.ReportUser) *protocol.Response {
	if _, err := s.hub.store.Profile(r.User); err != nil {
		return protocol.ErrResult(id, wireError(err))
	}

	// Reports go to the operator log; there is no in-band review flow
	s.log.Info().
		Uint64("target", uint64(r.User)).
		Str("reason", r.Reason).
		Msg("user report filed")
	return protocol.OkResult(id, protocol.OkNoData{})
}

func (s *Session) handleAdminAction(id protocol.RequestID, r protocol.AdminAction) *protocol.Response {
	perms, member := s.memberPerms(r.Community)
	if !member || !perms.Has(protocol.PermManageAdmins) {
		return protocol.ErrResult(id, protocol.ErrAccessDenied)
	}

	var newPerms protocol.PermissionFlags
	switch r.Op {
	case protocol.AdminOpPromote:
		newPerms = protocol.PermAll
	case protocol.AdminOpDemote:
		newPerms = 0
	case protocol.AdminOpSetPermissions:
		newPerms = r.Permissions
	default:
		return protocol.ErrResult(id, protocol.ErrInvalidMessage)
	}

	if err := s.hub.store.SetPermissions(r.Community, r.Target, newPerms); err != nil {
		return protocol.ErrResult(id, wireError(err))
	}
	s.hub.persist("save_member", func(db *storage.DB) error {
		return db.SaveMember(r.Community, r.Target, newPerms)
	})

	s.hub.pushToUser(r.Target, protocol.AdminPermissionsChanged{
		Community:   r.Community,
		Permissions: newPerms,
	})
	return protocol.OkResult(id, protocol.OkNoData{})
}

// ===== SYNC =====

func (s *Session) handleGetRoomUpdate(id protocol.RequestID, r protocol.GetRoomUpdate) *protocol.Response {
	if _, member := s.memberPerms(r.Community); !member {
		return protocol.ErrResult(id, protocol.ErrAccessDenied)
	}

	update, err := s.hub.store.RoomUpdate(r.Community, r.Room, s.user, r.LastReceived, r.MessageCount)
	if err != nil {
		return protocol.ErrResult(id, wireError(err))
	}
	return protocol.OkResult(id, protocol.OkRoomUpdate{Update: update})
}

func (s *Session) handleGetMessages(id protocol.RequestID, r protocol.GetMessages) *protocol.Response {
	if _, member := s.memberPerms(r.Community); !member {
		return protocol.ErrResult(id, protocol.ErrAccessDenied)
	}

	msgs, err := s.hub.store.SelectMessages(r.Community, r.Room, r.Selector, r.MessageCount)
	if err != nil {
		return protocol.ErrResult(id, wireError(err))
	}
	return protocol.OkResult(id, protocol.OkMessageHistory{
		History: protocol.MessageHistory{Messages: msgs},
	})
}
