package domain

import "strings"

type Role string

const (
	// Customer browses the catalog and places orders.
	RoleCustomer Role = "customer"
	// Vendor manages its own catalog and sees its own dashboard.
	RoleVendor Role = "vendor"
	// Admin manages accounts across the platform.
	RoleAdmin Role = "admin"
)

func IsValidRole(r string) bool {
	switch Role(r) {
	case RoleCustomer, RoleVendor, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole trims and lower-cases r before matching it against the closed set.
func ParseRole(r string) (Role, error) {
	r = strings.ToLower(strings.TrimSpace(r))
	if !IsValidRole(r) {
		return "", ErrInvalidRole(r)
	}
	return Role(r), nil
}

// SelfAssignable reports whether a user may pick r at registration.
func SelfAssignable(r Role) bool {
	return r == RoleCustomer || r == RoleVendor
}

func (r Role) String() string { return string(r) }
