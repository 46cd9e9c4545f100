package http_handlers

import (
	"net/http"
	"testing"
)

func TestAdmin_UserStatusAndRoleChange(t *testing.T) {
	h := newHarness(t)
	admin := h.seedAdmin("root@x.com")
	cust := h.register("jane@x.com", "")

	rr := h.do(http.MethodGet, "/auth/v1/admin/users/"+cust.User.ID, nil, bearer(admin.Tokens.AccessToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var status struct {
		UserID       string `json:"user_id"`
		Role         string `json:"role"`
		Active       bool   `json:"active"`
		TokenVersion int64  `json:"token_version"`
	}
	mustReadJSON(t, rr.Body, &status)
	if status.UserID != cust.User.ID || status.Role != "customer" || !status.Active || status.TokenVersion != 1 {
		t.Fatalf("unexpected status %+v", status)
	}

	rr = h.do(http.MethodPost, "/auth/v1/admin/users/"+cust.User.ID+"/role",
		map[string]string{"role": "vendor"}, bearer(admin.Tokens.AccessToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	// tokens minted for the old role are dead
	rr = h.do(http.MethodGet, "/auth/v1/me", nil, bearer(cust.Tokens.AccessToken))
	expectError(t, rr, http.StatusUnauthorized, "token_stale")

	again := h.login("jane@x.com", goodPass)
	if again.User.Role != "vendor" {
		t.Fatalf("expected vendor after role change, got %q", again.User.Role)
	}

	rr = h.do(http.MethodPost, "/auth/v1/admin/users/"+cust.User.ID+"/role",
		map[string]string{"role": "owner"}, bearer(admin.Tokens.AccessToken))
	expectError(t, rr, http.StatusBadRequest, "invalid_role")
}

func TestAdmin_NonAdminDenied(t *testing.T) {
	h := newHarness(t)
	cust := h.register("jane@x.com", "")
	other := h.register("bob@x.com", "")

	rr := h.do(http.MethodGet, "/auth/v1/admin/users/"+other.User.ID, nil, bearer(cust.Tokens.AccessToken))
	expectError(t, rr, http.StatusForbidden, "permission_denied")

	rr = h.do(http.MethodDelete, "/auth/v1/admin/users/"+other.User.ID, nil, bearer(cust.Tokens.AccessToken))
	expectError(t, rr, http.StatusForbidden, "permission_denied")

	rr = h.do(http.MethodGet, "/auth/v1/admin/users/"+other.User.ID, nil)
	expectError(t, rr, http.StatusUnauthorized, "token_missing")
}

func TestAdmin_CannotAffectSelf(t *testing.T) {
	h := newHarness(t)
	admin := h.seedAdmin("root@x.com")
	self := "/auth/v1/admin/users/" + admin.User.ID

	rr := h.do(http.MethodPost, self+"/deactivate", nil, bearer(admin.Tokens.AccessToken))
	expectError(t, rr, http.StatusForbidden, "cannot_affect_self")

	rr = h.do(http.MethodPost, self+"/role", map[string]string{"role": "customer"}, bearer(admin.Tokens.AccessToken))
	expectError(t, rr, http.StatusForbidden, "cannot_affect_self")

	rr = h.do(http.MethodDelete, self, nil, bearer(admin.Tokens.AccessToken))
	expectError(t, rr, http.StatusForbidden, "cannot_affect_self")
}

func TestAdmin_ActivateDeactivateVendor(t *testing.T) {
	h := newHarness(t)
	admin := h.seedAdmin("root@x.com")
	vendor := h.register("shop@x.com", "vendor")
	path := "/auth/v1/admin/users/" + vendor.User.ID

	rr := h.do(http.MethodPost, path+"/activate", nil, bearer(admin.Tokens.AccessToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	// activation does not bump the version, so the vendor's token now sees
	// the active flag
	rr = h.do(http.MethodPatch, "/auth/v1/me", map[string]string{"name": "Shop"}, bearer(vendor.Tokens.AccessToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected active vendor to update profile, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = h.do(http.MethodPost, path+"/deactivate", nil, bearer(admin.Tokens.AccessToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = h.do(http.MethodGet, "/auth/v1/me", nil, bearer(vendor.Tokens.AccessToken))
	expectError(t, rr, http.StatusUnauthorized, "token_stale")

	if len(h.pub.deacted) != 1 || h.pub.deacted[0].ActorID != admin.User.ID {
		t.Fatalf("expected deactivation event from admin, got %+v", h.pub.deacted)
	}
}

func TestAdmin_RevokeSessionsAndDelete(t *testing.T) {
	h := newHarness(t)
	admin := h.seedAdmin("root@x.com")
	cust := h.register("jane@x.com", "")
	path := "/auth/v1/admin/users/" + cust.User.ID

	rr := h.do(http.MethodPost, path+"/sessions/revoke", nil, bearer(admin.Tokens.AccessToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = h.do(http.MethodGet, "/auth/v1/me", nil, bearer(cust.Tokens.AccessToken))
	expectError(t, rr, http.StatusUnauthorized, "token_stale")

	rr = h.do(http.MethodDelete, path, nil, bearer(admin.Tokens.AccessToken))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = h.do(http.MethodGet, path, nil, bearer(admin.Tokens.AccessToken))
	expectError(t, rr, http.StatusNotFound, "user_not_found")
}
