package state

import (
	"crypto/rand"
	"math/big"

	"github.com/atriumchat/atrium/pkg/protocol"
)

// Invite codes are short, unambiguous and case-insensitive. Codes
// longer than MaxInviteCodeLength are rejected before lookup.
const (
	inviteCodeAlphabet  = "abcdefghjkmnpqrstuvwxyz23456789"
	inviteCodeLength    = 8
	MaxInviteCodeLength = 11
)

// Invite grants entry to a community. A nil expiration never expires.
type Invite struct {
	Code       string
	Community  protocol.CommunityID
	Expiration *int64 // Unix ms
}

func generateInviteCode() (string, error) {
	code := make([]byte, inviteCodeLength)
	max := big.NewInt(int64(len(inviteCodeAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = inviteCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// CreateInvite mints a unique invite code for a community, bounded by
// the per-community limit
func (s *Store) CreateInvite(community protocol.CommunityID, expiration *int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.communities[community]; !ok {
		return "", ErrCommunityNotFound
	}

	active := 0
	for _, invite := range s.invites {
		if invite.Community == community {
			active++
		}
	}
	if active >= s.limits.MaxInvitesPerCommunity {
		return "", ErrTooManyInvites
	}

	for {
		code, err := generateInviteCode()
		if err != nil {
			return "", err
		}
		if _, taken := s.invites[code]; taken {
			continue
		}

		s.invites[code] = &Invite{Code: code, Community: community, Expiration: expiration}
		return code, nil
	}
}

// LookupInvite resolves a code to its community, enforcing expiration.
// Expired codes are removed on sight.
func (s *Store) LookupInvite(code string, now int64) (protocol.CommunityID, error) {
	if code == "" || len(code) > MaxInviteCodeLength {
		return 0, ErrInviteNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	invite, ok := s.invites[code]
	if !ok {
		return 0, ErrInviteNotFound
	}

	if invite.Expiration != nil && *invite.Expiration <= now {
		delete(s.invites, code)
		return 0, ErrInviteExpired
	}

	return invite.Community, nil
}

// SweepInvites drops every expired invite code and returns the removed
// codes so the durable log can purge them too. Run periodically.
func (s *Store) SweepInvites(now int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for code, invite := range s.invites {
		if invite.Expiration != nil && *invite.Expiration <= now {
			delete(s.invites, code)
			removed = append(removed, code)
		}
	}

	return removed
}
