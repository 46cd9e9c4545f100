package dto

import (
	"strings"

	"github.com/baechuer/storefront-auth/internal/domain"
)

// -------- Core auth --------

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"max=100"`
	Role     string `json:"role" validate:"omitempty,oneof=customer vendor admin"`
}

func (r *RegisterRequest) Validate() error {
	r.Email = domain.NormalizeEmail(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
	if err := validateStruct(r); err != nil {
		return err
	}
	return domain.ValidatePassword(r.Password)
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (r *LoginRequest) Validate() error {
	r.Email = domain.NormalizeEmail(r.Email)
	return validateStruct(r)
}

// RefreshRequest is optional; browsers send the token as a cookie.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// -------- Email verification / password reset --------

// EmailRequest is the body of both "send me a link" endpoints.
type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (r *EmailRequest) Validate() error {
	r.Email = domain.NormalizeEmail(r.Email)
	return validateStruct(r)
}

type PasswordResetConfirmRequest struct {
	NewPassword string `json:"new_password" validate:"required"`
}

func (r *PasswordResetConfirmRequest) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	return domain.ValidatePassword(r.NewPassword)
}

// -------- Authenticated self-service --------

type PasswordChangeRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

func (r *PasswordChangeRequest) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	return domain.ValidatePassword(r.NewPassword)
}

type UpdateProfileRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

func (r *UpdateProfileRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	return validateStruct(r)
}

// -------- Admin --------

type SetUserRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

func (r *SetUserRoleRequest) Validate() error {
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
	if err := validateStruct(r); err != nil {
		return err
	}
	if !domain.IsValidRole(r.Role) {
		return domain.ErrInvalidRole(r.Role)
	}
	return nil
}
