package domain

import (
	"errors"
	"fmt"
)

// ErrKind groups error codes by how the transport reports them.
type ErrKind string

const (
	KindValidation     ErrKind = "validation"
	KindAuth           ErrKind = "auth"
	KindForbidden      ErrKind = "forbidden"
	KindNotFound       ErrKind = "not_found"
	KindConflict       ErrKind = "conflict"
	KindRateLimited    ErrKind = "rate_limited"
	KindInfrastructure ErrKind = "infrastructure"
	KindInternal       ErrKind = "internal"
)

// Error is what every layer returns for an expected failure. Code and
// Message are shown to clients and Code is part of the API contract; Cause
// is only ever logged.
type Error struct {
	Kind    ErrKind
	Code    string
	Message string
	Meta    map[string]string
	Cause   error
}

func (e *Error) Error() string {
	s := string(e.Kind) + "/" + e.Code + ": " + e.Message
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", s, e.Cause)
	}
	return s
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind ErrKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Wrap(kind ErrKind, code, msg string, cause error) *Error {
	e := New(kind, code, msg)
	e.Cause = cause
	return e
}

func WithMeta(err *Error, meta map[string]string) *Error {
	err.Meta = meta
	return err
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

func Is(err error, code string) bool {
	c := CodeOf(err)
	return c != "" && c == code
}

// ----------------------
// Validation errors (400)
// ----------------------

func ErrInvalidJSON(cause error) *Error {
	return Wrap(KindValidation, "invalid_json", "invalid JSON body", cause)
}

func ErrMissingField(field string) *Error {
	return WithMeta(New(KindValidation, "missing_field", "missing required field"), map[string]string{
		"field": field,
	})
}

func ErrInvalidField(field, reason string) *Error {
	return WithMeta(New(KindValidation, "invalid_field", "invalid field"), map[string]string{
		"field":  field,
		"reason": reason,
	})
}

func ErrWeakPassword(reason string) *Error {
	return WithMeta(New(KindValidation, "weak_password", "password does not meet requirements"), map[string]string{
		"reason": reason,
	})
}

// ----------------------
// Auth errors (401)
// ----------------------

// IMPORTANT: use this for login failures to avoid user enumeration.
func ErrInvalidCredentials() *Error {
	return New(KindAuth, "invalid_credentials", "invalid email or password")
}

func ErrTokenMissing() *Error {
	return New(KindAuth, "token_missing", "no token provided")
}

func ErrTokenInvalid() *Error {
	return New(KindAuth, "token_invalid", "invalid token")
}

func ErrTokenExpired() *Error {
	return New(KindAuth, "token_expired", "token is expired")
}

func ErrRefreshTokenInvalid() *Error {
	return New(KindAuth, "refresh_token_invalid", "invalid refresh token")
}

func ErrRefreshTokenExpired() *Error {
	return New(KindAuth, "refresh_token_expired", "refresh token is expired")
}

// Detect refresh token rotation abuse (old token reused).
func ErrRefreshTokenReused() *Error {
	return New(KindConflict, "refresh_token_reused", "refresh token reuse detected")
}

// Signature was fine but the token was minted before the last invalidation.
func ErrTokenStale() *Error {
	return New(KindAuth, "token_stale", "token has been revoked")
}

// The token subject no longer resolves to an account.
func ErrUnauthorized() *Error {
	return New(KindAuth, "unauthorized", "unauthorized")
}

// Verification and reset tokens share one message so callers cannot tell a
// consumed token from an expired one.
func ErrInvalidOrExpiredToken() *Error {
	return New(KindAuth, "invalid_or_expired_token", "Invalid or expired token")
}

func ErrInvalidOAuthState() *Error {
	return New(KindAuth, "invalid_oauth_state", "invalid or expired oauth state")
}

// ----------------------
// Forbidden (403)
// ----------------------

func ErrForbidden() *Error {
	return New(KindForbidden, "forbidden", "forbidden")
}

func ErrPermissionDenied(action string) *Error {
	return WithMeta(New(KindForbidden, "permission_denied", "permission denied"), map[string]string{
		"action": action,
	})
}

func ErrAccountInactive() *Error {
	return New(KindForbidden, "account_inactive", "account is not active")
}

// Admin cannot perform this action on themselves.
func ErrCannotAffectSelf() *Error {
	return New(KindForbidden, "cannot_affect_self", "cannot perform this action on self")
}

func ErrRoleNotSelfAssignable(role string) *Error {
	return WithMeta(New(KindForbidden, "role_not_self_assignable", "role cannot be chosen at registration"), map[string]string{
		"role": role,
	})
}

// ----------------------
// Not Found (404)
// ----------------------

func ErrUserNotFound() *Error {
	return New(KindNotFound, "user_not_found", "user not found")
}

// ----------------------
// Conflict (409)
// ----------------------

func ErrEmailAlreadyExists() *Error {
	return New(KindConflict, "email_already_exists", "email already registered")
}

func ErrLastAdminProtected() *Error {
	return New(KindConflict, "last_admin_protected", "cannot remove last admin")
}

// OAuth login would attach to an account whose email was never verified.
func ErrEmailNotVerified() *Error {
	return New(KindConflict, "email_not_verified", "email registered but not verified")
}

func ErrOAuthIdentityTaken(provider string) *Error {
	return WithMeta(New(KindConflict, "oauth_identity_taken", "identity already linked to another account"), map[string]string{
		"provider": provider,
	})
}

// ----------------------
// Rate limit (429)
// ----------------------

func ErrRateLimited(scope string) *Error {
	return WithMeta(New(KindRateLimited, "rate_limited", "too many requests"), map[string]string{
		"scope": scope,
	})
}

// ----------------------
// Infrastructure / internal (5xx)
// ----------------------

func ErrDBUnavailable(cause error) *Error {
	return Wrap(KindInfrastructure, "db_unavailable", "database unavailable", cause)
}

func ErrRedisUnavailable(cause error) *Error {
	return Wrap(KindInfrastructure, "redis_unavailable", "cache unavailable", cause)
}

func ErrOAuthProviderFailed(cause error) *Error {
	return Wrap(KindInfrastructure, "oauth_provider_failed", "oauth provider unavailable", cause)
}

func ErrHashFailed(cause error) *Error {
	return Wrap(KindInternal, "hash_failed", "password hashing failed", cause)
}

func ErrTokenSignFailed(cause error) *Error {
	return Wrap(KindInternal, "token_sign_failed", "token signing failed", cause)
}

func ErrRandomFailed(cause error) *Error {
	return Wrap(KindInternal, "random_failed", "random generation failed", cause)
}

func ErrInternal(cause error) *Error {
	return Wrap(KindInternal, "internal_error", "internal error", cause)
}

func ErrInvalidRole(role string) *Error {
	return WithMeta(
		New(KindValidation, "invalid_role", "invalid role"),
		map[string]string{"role": role},
	)
}

func ErrUnsupportedProvider(provider string) *Error {
	return WithMeta(
		New(KindValidation, "unsupported_provider", "unsupported oauth provider"),
		map[string]string{"provider": provider},
	)
}

func ErrOAuthNotConfigured(provider string) *Error {
	return WithMeta(
		New(KindValidation, "oauth_not_configured", "oauth provider not configured"),
		map[string]string{"provider": provider},
	)
}
