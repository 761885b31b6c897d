package service

// Roles ordered by privilege. Handlers resolve them from the JWT claims and
// services receive them through an Actor so permission checks stay explicit.
const (
	RoleStudent    = "student"
	RoleTutor      = "tutor"
	RoleEditor     = "editor"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

// Actor identifies who requested an operation.
type Actor struct {
	ID   uint
	Role string
}

var rolePrecedence = map[string]int{
	RoleStudent:    0,
	RoleTutor:      1,
	RoleEditor:     2,
	RoleInstructor: 3,
	RoleAdmin:      4,
}

// HasAtLeast reports whether the actor's role grants the given role's privileges.
func (a Actor) HasAtLeast(role string) bool {
	return rolePrecedence[a.Role] >= rolePrecedence[role]
}
