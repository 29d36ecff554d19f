package storage

import (
	"database/sql"
	"fmt"

	"github.com/atriumchat/atrium/pkg/protocol"
	"github.com/atriumchat/atrium/pkg/state"
)

// ===== WRITE-THROUGH OPERATIONS =====

// SaveUser upserts a user row
func (d *DB) SaveUser(user state.User) error {
	_, err := d.db.Exec(
		`INSERT INTO users (id, username, display_name) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET username = excluded.username, display_name = excluded.display_name`,
		user.ID, user.Username, user.DisplayName,
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// SaveCommunity upserts a community row
func (d *DB) SaveCommunity(id protocol.CommunityID, name, description string) error {
	_, err := d.db.Exec(
		`INSERT INTO communities (id, name, description) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description`,
		id, name, description,
	)
	if err != nil {
		return fmt.Errorf("failed to save community: %w", err)
	}
	return nil
}

// SaveMember upserts a membership with its permission bitmask
func (d *DB) SaveMember(community protocol.CommunityID, user protocol.UserID, perms protocol.PermissionFlags) error {
	_, err := d.db.Exec(
		`INSERT INTO members (community, user, permissions) VALUES (?, ?, ?)
		 ON CONFLICT(community, user) DO UPDATE SET permissions = excluded.permissions`,
		community, user, int64(perms),
	)
	if err != nil {
		return fmt.Errorf("failed to save member: %w", err)
	}
	return nil
}

// SaveRoom inserts a room row
func (d *DB) SaveRoom(community protocol.CommunityID, id protocol.RoomID, name string) error {
	_, err := d.db.Exec(
		`INSERT INTO rooms (id, community, name) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		id, community, name,
	)
	if err != nil {
		return fmt.Errorf("failed to save room: %w", err)
	}
	return nil
}

// AppendMessage appends one message to the durable log
func (d *DB) AppendMessage(msg protocol.Message) error {
	_, err := d.db.Exec(
		`INSERT INTO messages (community, room, id, author, content, time_sent, edited, deleted)
		 VALUES (?, ?, ?, ?, ?, ?, 0, 0)`,
		msg.Community, msg.Room, msg.ID, msg.Author, msg.Content, msg.TimeSent,
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// MarkEdited records an edit
func (d *DB) MarkEdited(room protocol.RoomID, id protocol.MessageID, newContent string) error {
	res, err := d.db.Exec(
		`UPDATE messages SET content = ?, edited = 1 WHERE room = ? AND id = ?`,
		newContent, room, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark edited: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDeleted records a soft delete, dropping the content
func (d *DB) MarkDeleted(room protocol.RoomID, id protocol.MessageID) error {
	res, err := d.db.Exec(
		`UPDATE messages SET content = '', deleted = 1 WHERE room = ? AND id = ?`,
		room, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark deleted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveInvite inserts an invite code
func (d *DB) SaveInvite(code string, community protocol.CommunityID, expiration *int64) error {
	_, err := d.db.Exec(
		`INSERT INTO invites (code, community, expiration) VALUES (?, ?, ?)`,
		code, community, expiration,
	)
	if err != nil {
		return fmt.Errorf("failed to save invite: %w", err)
	}
	return nil
}

// DeleteInvite removes an invite code
func (d *DB) DeleteInvite(code string) error {
	_, err := d.db.Exec(`DELETE FROM invites WHERE code = ?`, code)
	if err != nil {
		return fmt.Errorf("failed to delete invite: %w", err)
	}
	return nil
}

// DeleteCommunity cascades the removal of a community through every
// dependent table
func (d *DB) DeleteCommunity(id protocol.CommunityID) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin cascade: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM messages WHERE community = ?`,
		`DELETE FROM rooms WHERE community = ?`,
		`DELETE FROM members WHERE community = ?`,
		`DELETE FROM invites WHERE community = ?`,
		`DELETE FROM communities WHERE id = ?`,
	} {
		if _, err := tx.Exec(stmt, id); err != nil {
			return fmt.Errorf("failed to cascade delete: %w", err)
		}
	}

	return tx.Commit()
}

// ===== BOOT-TIME REPLAY =====

// Load replays the whole database into the in-memory model. Tables are
// replayed parents-first so every id reference resolves.
func (d *DB) Load(store *state.Store) error {
	if err := d.loadUsers(store); err != nil {
		return err
	}
	if err := d.loadCommunities(store); err != nil {
		return err
	}
	if err := d.loadMembers(store); err != nil {
		return err
	}
	if err := d.loadRooms(store); err != nil {
		return err
	}
	if err := d.loadMessages(store); err != nil {
		return err
	}
	return d.loadInvites(store)
}

func (d *DB) loadUsers(store *state.Store) error {
	rows, err := d.db.Query(`SELECT id, username, display_name FROM users`)
	if err != nil {
		return fmt.Errorf("failed to load users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var user state.User
		if err := rows.Scan(&user.ID, &user.Username, &user.DisplayName); err != nil {
			return fmt.Errorf("failed to scan user: %w", err)
		}
		store.RestoreUser(user)
	}
	return rows.Err()
}

func (d *DB) loadCommunities(store *state.Store) error {
	rows, err := d.db.Query(`SELECT id, name, description FROM communities`)
	if err != nil {
		return fmt.Errorf("failed to load communities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id protocol.CommunityID
		var name, description string
		if err := rows.Scan(&id, &name, &description); err != nil {
			return fmt.Errorf("failed to scan community: %w", err)
		}
		store.RestoreCommunity(id, name, description)
	}
	return rows.Err()
}

func (d *DB) loadMembers(store *state.Store) error {
	rows, err := d.db.Query(`SELECT community, user, permissions FROM members`)
	if err != nil {
		return fmt.Errorf("failed to load members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var community protocol.CommunityID
		var user protocol.UserID
		var perms int64
		if err := rows.Scan(&community, &user, &perms); err != nil {
			return fmt.Errorf("failed to scan member: %w", err)
		}
		if err := store.RestoreMember(community, user, protocol.PermissionFlags(perms)); err != nil {
			return fmt.Errorf("failed to restore member: %w", err)
		}
	}
	return rows.Err()
}

func (d *DB) loadRooms(store *state.Store) error {
	rows, err := d.db.Query(`SELECT id, community, name FROM rooms ORDER BY id`)
	if err != nil {
		return fmt.Errorf("failed to load rooms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id protocol.RoomID
		var community protocol.CommunityID
		var name string
		if err := rows.Scan(&id, &community, &name); err != nil {
			return fmt.Errorf("failed to scan room: %w", err)
		}
		if err := store.RestoreRoom(community, id, name); err != nil {
			return fmt.Errorf("failed to restore room: %w", err)
		}
	}
	return rows.Err()
}

func (d *DB) loadMessages(store *state.Store) error {
	rows, err := d.db.Query(
		`SELECT community, room, id, author, content, time_sent, edited, deleted
		 FROM messages ORDER BY room, id`,
	)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var community protocol.CommunityID
		var room protocol.RoomID
		var msg state.Message
		var edited, deleted int
		if err := rows.Scan(&community, &room, &msg.ID, &msg.Author, &msg.Content, &msg.TimeSent, &edited, &deleted); err != nil {
			return fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Edited = edited != 0
		msg.Deleted = deleted != 0
		if err := store.RestoreMessage(community, room, msg); err != nil {
			return fmt.Errorf("failed to restore message: %w", err)
		}
	}
	return rows.Err()
}

func (d *DB) loadInvites(store *state.Store) error {
	rows, err := d.db.Query(`SELECT code, community, expiration FROM invites`)
	if err != nil {
		return fmt.Errorf("failed to load invites: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var code string
		var community protocol.CommunityID
		var expiration sql.NullInt64
		if err := rows.Scan(&code, &community, &expiration); err != nil {
			return fmt.Errorf("failed to scan invite: %w", err)
		}

		var exp *int64
		if expiration.Valid {
			v := expiration.Int64
			exp = &v
		}
		store.RestoreInvite(state.Invite{Code: code, Community: community, Expiration: exp})
	}
	return rows.Err()
}
