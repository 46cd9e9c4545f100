package memory

import (
	"context"

	"github.com/baechuer/storefront-auth/internal/application/auth"
	"github.com/baechuer/storefront-auth/internal/logger"
)

// NoopPublisher logs notification events instead of sending them. Used in
// dev when RabbitMQ is not reachable, so links can be copied from the log.
type NoopPublisher struct{}

func NewNoopPublisher() *NoopPublisher { return &NoopPublisher{} }

func (p *NoopPublisher) PublishVerifyEmail(ctx context.Context, evt auth.VerifyEmailEvent) error {
	logger.WithCtx(ctx).Info().
		Str("user_id", evt.UserID).
		Str("url", evt.URL).
		Msg("noop_pub verify email")
	return nil
}

func (p *NoopPublisher) PublishPasswordReset(ctx context.Context, evt auth.PasswordResetEvent) error {
	logger.WithCtx(ctx).Info().
		Str("user_id", evt.UserID).
		Str("url", evt.URL).
		Msg("noop_pub password reset")
	return nil
}

func (p *NoopPublisher) PublishAccountDeactivated(ctx context.Context, evt auth.AccountDeactivatedEvent) error {
	logger.WithCtx(ctx).Info().
		Str("user_id", evt.UserID).
		Str("actor_id", evt.ActorID).
		Msg("noop_pub account deactivated")
	return nil
}
