package auth

type Permission string

const (
	PermissionContent   Permission = "content"
	PermissionWordPress Permission = "wordpress"
	PermissionAnalytics Permission = "analytics"
	PermissionReports   Permission = "reports"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleViewer:
		return true
	}
	return false
}

// PermissionSet is either the admin set, which allows everything, or a
// scoped set with an explicit permission list. The admin case is a distinct
// variant, not a wildcard entry in the list.
type PermissionSet struct {
	admin  bool
	scoped map[Permission]struct{}
}

func AdminSet() PermissionSet {
	return PermissionSet{admin: true}
}

func ScopedSet(perms ...Permission) PermissionSet {
	s := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return PermissionSet{scoped: s}
}

func (s PermissionSet) Allows(p Permission) bool {
	if s.admin {
		return true
	}
	_, ok := s.scoped[p]
	return ok
}

var rolePermissions = map[Role]PermissionSet{
	RoleAdmin:  AdminSet(),
	RoleEditor: ScopedSet(PermissionContent, PermissionAnalytics, PermissionWordPress),
	RoleViewer: ScopedSet(PermissionAnalytics, PermissionReports),
}

// PermissionsFor resolves a role to its permission set.
func PermissionsFor(role Role) (PermissionSet, bool) {
	s, ok := rolePermissions[role]
	return s, ok
}

// Identity is the resolved caller passed into the engine. The engine never
// authenticates; the HTTP layer builds this from the verified token.
type Identity struct {
	UserID string
	Role   Role
}

func (id Identity) IsAdmin() bool {
	return id.Role == RoleAdmin
}

func (id Identity) Can(p Permission) bool {
	set, ok := PermissionsFor(id.Role)
	if !ok {
		return false
	}
	return set.Allows(p)
}

// CanAccessRecord applies the record-level ownership rule: admins see
// everything, other roles only records assigned to them or unassigned.
func (id Identity) CanAccessRecord(assignedTo string) bool {
	if id.IsAdmin() {
		return true
	}
	return assignedTo == "" || assignedTo == id.UserID
}
