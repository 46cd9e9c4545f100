package auth

import (
	"context"
	"strings"

	"github.com/baechuer/storefront-auth/internal/domain"
)

// InvalidateSessions bumps the caller's token version. Every access and
// refresh token issued so far, including the one making this call, stops
// working.
func (s *Service) InvalidateSessions(ctx context.Context, p domain.Principal) (int64, error) {
	if err := domain.Authorize(p, domain.ActionSessionsRevokeOwn); err != nil {
		return 0, err
	}

	ver, err := s.users.BumpTokenVersion(ctx, p.UserID)
	if err != nil {
		return 0, err
	}

	s.audit("user.sessions_revoked", map[string]string{
		"user_id":       p.UserID,
		"token_version": itoa(ver),
	})
	return ver, nil
}

// RevokeUserSessions is the admin variant of InvalidateSessions.
func (s *Service) RevokeUserSessions(ctx context.Context, actor domain.Principal, targetID string) error {
	targetID = strings.TrimSpace(targetID)
	audit := s.auditFor("admin.revoke_sessions", actor, targetID)

	if targetID == "" {
		return audit.fail(domain.ErrMissingField("user_id"))
	}
	if err := domain.Authorize(actor, domain.ActionUsersRevokeSession); err != nil {
		return audit.fail(err)
	}

	ver, err := s.users.BumpTokenVersion(ctx, targetID)
	if err != nil {
		return audit.fail(err)
	}

	audit("success", nil, map[string]string{"token_version": itoa(ver)})
	return nil
}
