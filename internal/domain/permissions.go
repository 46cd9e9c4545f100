package domain

type Action string

const (
	ActionProfileReadOwn     Action = "profile.read_own"
	ActionProfileUpdateOwn   Action = "profile.update_own"
	ActionAccountDeactivate  Action = "account.deactivate_own"
	ActionSessionsRevokeOwn  Action = "sessions.revoke_own"
	ActionPasswordChangeOwn  Action = "password.change_own"
	ActionOrderPlace         Action = "order.place"
	ActionCatalogManageOwn   Action = "catalog.manage_own"
	ActionVendorDashboard    Action = "vendor.dashboard"
	ActionUsersRead          Action = "users.read"
	ActionUsersActivate      Action = "users.activate"
	ActionUsersDeactivate    Action = "users.deactivate"
	ActionUsersSetRole       Action = "users.set_role"
	ActionUsersRevokeSession Action = "users.revoke_sessions"
	ActionUsersDelete        Action = "users.delete"
)

type permission struct {
	roles          map[Role]bool
	requiresActive bool
}

func allow(active bool, roles ...Role) permission {
	m := make(map[Role]bool, len(roles))
	for _, r := range roles {
		m[r] = true
	}
	return permission{roles: m, requiresActive: active}
}

// permissions is the single source of truth for role x action decisions.
// Anything not listed here is denied.
var permissions = map[Action]permission{
	ActionProfileReadOwn:     allow(false, RoleCustomer, RoleVendor, RoleAdmin),
	ActionProfileUpdateOwn:   allow(true, RoleCustomer, RoleVendor, RoleAdmin),
	ActionAccountDeactivate:  allow(false, RoleCustomer, RoleVendor),
	ActionSessionsRevokeOwn:  allow(false, RoleCustomer, RoleVendor, RoleAdmin),
	ActionPasswordChangeOwn:  allow(false, RoleCustomer, RoleVendor, RoleAdmin),
	ActionOrderPlace:         allow(true, RoleCustomer),
	ActionCatalogManageOwn:   allow(true, RoleVendor),
	ActionVendorDashboard:    allow(true, RoleVendor, RoleAdmin),
	ActionUsersRead:          allow(true, RoleAdmin),
	ActionUsersActivate:      allow(true, RoleAdmin),
	ActionUsersDeactivate:    allow(true, RoleAdmin),
	ActionUsersSetRole:       allow(true, RoleAdmin),
	ActionUsersRevokeSession: allow(true, RoleAdmin),
	ActionUsersDelete:        allow(true, RoleAdmin),
}

// Principal is the authenticated caller of a single request.
type Principal struct {
	UserID       string
	Email        string
	Role         Role
	Active       bool
	TokenVersion int64
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// Actions lists every action known to the permission table.
func Actions() []Action {
	out := make([]Action, 0, len(permissions))
	for a := range permissions {
		out = append(out, a)
	}
	return out
}

// RequiresActive reports whether a is refused to deactivated accounts.
func RequiresActive(a Action) bool {
	return permissions[a].requiresActive
}

// Authorize returns nil when p may perform a, otherwise a forbidden error
// explaining which rule refused it.
func Authorize(p Principal, a Action) error {
	perm, ok := permissions[a]
	if !ok || !perm.roles[p.Role] {
		return ErrPermissionDenied(string(a))
	}
	if perm.requiresActive && !p.Active {
		return ErrAccountInactive()
	}
	return nil
}

func Allowed(p Principal, a Action) bool {
	return Authorize(p, a) == nil
}

// CanActOn applies ownership on top of the role table: a principal may act on
// its own resources when the role allows a; acting on somebody else's
// resources needs an active admin.
func CanActOn(p Principal, a Action, ownerID string) bool {
	if ownerID == "" {
		return false
	}
	if ownerID == p.UserID {
		return Allowed(p, a)
	}
	return p.IsAdmin() && p.Active
}

// CanDeactivate: admins may deactivate anyone but themselves, everybody else
// only themselves.
func CanDeactivate(actor Principal, targetID string) error {
	if targetID == "" {
		return ErrMissingField("user_id")
	}
	if actor.IsAdmin() {
		if actor.UserID == targetID {
			return ErrCannotAffectSelf()
		}
		return Authorize(actor, ActionUsersDeactivate)
	}
	if actor.UserID != targetID {
		return ErrPermissionDenied(string(ActionUsersDeactivate))
	}
	return Authorize(actor, ActionAccountDeactivate)
}
