package auth

import (
	"context"
	"strconv"
	"strings"

	"github.com/baechuer/storefront-auth/internal/domain"
	"github.com/baechuer/storefront-auth/internal/logger"
)

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

// DeactivateAccount turns an account off. Users may deactivate themselves;
// admins may deactivate anybody else. The same store call bumps the token
// version, so the target's sessions end immediately.
func (s *Service) DeactivateAccount(ctx context.Context, actor domain.Principal, targetID string) error {
	targetID = strings.TrimSpace(targetID)
	audit := s.auditFor("user.deactivate", actor, targetID)

	if err := domain.CanDeactivate(actor, targetID); err != nil {
		return audit.fail(err)
	}

	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return audit.fail(err)
	}

	if target.Role == domain.RoleAdmin && target.Active {
		if err := s.ensureOtherActiveAdmin(ctx); err != nil {
			return audit.fail(err)
		}
	}

	ver, err := s.users.Deactivate(ctx, targetID)
	if err != nil {
		return audit.fail(err)
	}

	if err := s.pub.PublishAccountDeactivated(ctx, AccountDeactivatedEvent{
		UserID:  target.ID,
		Email:   target.Email,
		ActorID: actor.UserID,
	}); err != nil {
		logger.WithCtx(ctx).Error().Err(err).Str("user_id", target.ID).Msg("account_deactivated_publish_failed")
	}

	audit("success", nil, map[string]string{"token_version": itoa(ver)})
	return nil
}

// ActivateUser re-enables an account. Activation does not touch the token
// version: sessions issued while inactive keep working with full rights.
func (s *Service) ActivateUser(ctx context.Context, actor domain.Principal, targetID string) error {
	targetID = strings.TrimSpace(targetID)
	audit := s.auditFor("admin.activate_user", actor, targetID)

	if targetID == "" {
		return audit.fail(domain.ErrMissingField("user_id"))
	}
	if err := domain.Authorize(actor, domain.ActionUsersActivate); err != nil {
		return audit.fail(err)
	}

	if err := s.users.Activate(ctx, targetID); err != nil {
		return audit.fail(err)
	}

	audit("success", nil, nil)
	return nil
}

// DeleteUser removes an account outright.
func (s *Service) DeleteUser(ctx context.Context, actor domain.Principal, targetID string) error {
	targetID = strings.TrimSpace(targetID)
	audit := s.auditFor("admin.delete_user", actor, targetID)

	if targetID == "" {
		return audit.fail(domain.ErrMissingField("user_id"))
	}
	if err := domain.Authorize(actor, domain.ActionUsersDelete); err != nil {
		return audit.fail(err)
	}
	if actor.UserID == targetID {
		return audit.fail(domain.ErrCannotAffectSelf())
	}

	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return audit.fail(err)
	}
	if target.Role == domain.RoleAdmin && target.Active {
		if err := s.ensureOtherActiveAdmin(ctx); err != nil {
			return audit.fail(err)
		}
	}

	if err := s.users.Delete(ctx, targetID); err != nil {
		return audit.fail(err)
	}

	audit("success", nil, nil)
	return nil
}

// GetUserStatus is the admin lookup of any account; users may look up themselves.
func (s *Service) GetUserStatus(ctx context.Context, actor domain.Principal, targetID string) (domain.User, error) {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return domain.User{}, domain.ErrMissingField("user_id")
	}
	if !domain.CanActOn(actor, domain.ActionUsersRead, targetID) {
		if actor.UserID == targetID {
			return domain.User{}, domain.Authorize(actor, domain.ActionProfileReadOwn)
		}
		return domain.User{}, domain.Authorize(actor, domain.ActionUsersRead)
	}
	return s.users.GetByID(ctx, targetID)
}

func (s *Service) ensureOtherActiveAdmin(ctx context.Context) error {
	cnt, err := s.users.CountByRole(ctx, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if cnt <= 1 {
		return domain.ErrLastAdminProtected()
	}
	return nil
}
