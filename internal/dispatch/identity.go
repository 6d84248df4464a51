package dispatch

// Role names the operator's privileges as carried in the bearer token.
type Role string

const (
	RoleOfficer    Role = "officer"
	RoleDispatcher Role = "dispatcher"
	RoleAdmin      Role = "admin"
)

// Identity is who the console is acting as.
type Identity struct {
	UserID string
	Badge  string
	UnitID string
	Role   Role
}

// Known reports whether enough of the identity is present to open a
// push session.
func (id Identity) Known() bool {
	return id.UserID != ""
}

// Matches reports whether ref (a call's assigned unit) refers to this
// identity. The server stores badge numbers there; unit ids are accepted
// for deployments that assign by unit.
func (id Identity) Matches(ref string) bool {
	if ref == "" {
		return false
	}
	return ref == id.Badge || ref == id.UnitID
}

// CanOverride reports whether the identity may close calls it does not own.
func (id Identity) CanOverride() bool {
	return id.Role == RoleAdmin || id.Role == RoleDispatcher
}
