package auth

import (
	"context"
	"strings"

	"github.com/baechuer/storefront-auth/internal/domain"
)

// SetUserRole changes the role of another account. The store bumps the
// token version in the same statement, so tokens carrying the old role die
// with it.
func (s *Service) SetUserRole(ctx context.Context, actor domain.Principal, targetID string, newRole domain.Role) error {
	targetID = strings.TrimSpace(targetID)
	audit := s.auditFor("admin.set_user_role", actor, targetID)

	// --- input validation ---
	if targetID == "" {
		return audit.fail(domain.ErrMissingField("user_id"))
	}
	if newRole == "" {
		return audit.fail(domain.ErrMissingField("role"))
	}
	if !domain.IsValidRole(string(newRole)) {
		return audit.fail(domain.ErrInvalidRole(string(newRole)))
	}

	// --- admin only, even behind the route gate ---
	if err := domain.Authorize(actor, domain.ActionUsersSetRole); err != nil {
		return audit.fail(err)
	}

	// --- hard rule: cannot modify self ---
	if actor.UserID == targetID {
		return audit.fail(domain.ErrCannotAffectSelf())
	}

	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return audit.fail(err)
	}

	// --- protect last admin (only active admins count) ---
	if target.Role == domain.RoleAdmin && target.Active && newRole != domain.RoleAdmin {
		if err := s.ensureOtherActiveAdmin(ctx); err != nil {
			return audit.fail(err)
		}
	}

	ver, err := s.users.SetRole(ctx, targetID, newRole)
	if err != nil {
		return audit.fail(err)
	}

	audit("success", nil, map[string]string{
		"old_role":      string(target.Role),
		"new_role":      string(newRole),
		"token_version": itoa(ver),
	})
	return nil
}
