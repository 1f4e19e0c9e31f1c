package domain

// Role is an authorization claim asserted by the identity collaborator.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleVerifier Role = "verifier"
	RoleDonor    Role = "donor"
	RolePatient  Role = "patient"
)

// Actor is an authenticated caller. The ledger trusts the identity and roles as
// given; verifier membership is still checked against the registry.
type Actor struct {
	ID    ActorID
	Roles []Role
}

// HasRole reports whether the actor carries role.
func (a Actor) HasRole(role Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin is shorthand for HasRole(RoleAdmin).
func (a Actor) IsAdmin() bool {
	return a.HasRole(RoleAdmin)
}

// IsZero reports whether no identity was supplied.
func (a Actor) IsZero() bool {
	return a.ID == ""
}
