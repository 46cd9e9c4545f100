package http_handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/baechuer/storefront-auth/internal/domain"
	"github.com/baechuer/storefront-auth/internal/transport/http/dto"
	"github.com/baechuer/storefront-auth/internal/transport/http/response"
)

// Admin routes sit behind middleware.Require for their action; the service
// repeats the check and adds the self / last-admin rules.

func targetID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		response.WriteError(w, r, domain.ErrMissingField("id"))
		return "", false
	}
	return id, true
}

func (h *AuthHandler) AdminUserStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := targetID(w, r)
	if !ok {
		return
	}

	u, err := h.svc.GetUserStatus(r.Context(), p, id)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.OK(w, dto.NewUserStatusData(u))
}

func (h *AuthHandler) AdminActivateUser(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := targetID(w, r)
	if !ok {
		return
	}

	if err := h.svc.ActivateUser(r.Context(), p, id); err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.OK(w, dto.StatusData{Status: "activated", UserID: id})
}

func (h *AuthHandler) AdminDeactivateUser(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := targetID(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeactivateAccount(r.Context(), p, id); err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.OK(w, dto.StatusData{Status: "deactivated", UserID: id})
}

func (h *AuthHandler) AdminSetUserRole(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := targetID(w, r)
	if !ok {
		return
	}

	var req dto.SetUserRoleRequest
	if err := response.DecodeJSON(w, r, &req); err != nil {
		response.WriteError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		response.WriteError(w, r, err)
		return
	}

	if err := h.svc.SetUserRole(r.Context(), p, id, domain.Role(req.Role)); err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.OK(w, dto.StatusData{Status: "role_updated", UserID: id, Role: req.Role})
}

func (h *AuthHandler) AdminRevokeSessions(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := targetID(w, r)
	if !ok {
		return
	}

	if err := h.svc.RevokeUserSessions(r.Context(), p, id); err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.OK(w, dto.StatusData{Status: "revoked", UserID: id})
}

func (h *AuthHandler) AdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := targetID(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteUser(r.Context(), p, id); err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.NoContent(w)
}
