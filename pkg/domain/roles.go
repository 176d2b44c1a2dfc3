package domain

import dErrors "cadastra/pkg/domain-errors"

// Role is the caller's capability class, supplied by the upstream auth
// collaborator. Construct via ParseRole at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type Role string

const (
	RoleCitizen  Role = "citizen"
	RoleSurveyor Role = "surveyor"
	RoleOfficer  Role = "officer"
	RoleAdmin    Role = "admin"
)

// validRoles is the single source of truth for valid roles.
var validRoles = map[Role]bool{
	RoleCitizen:  true,
	RoleSurveyor: true,
	RoleOfficer:  true,
	RoleAdmin:    true,
}

// ParseRole constructs a Role from external input (JWT claim, test fixture).
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role cannot be empty")
	}
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role")
	}
	return r, nil
}

// IsValid checks if the role is one of the supported enum values.
func (r Role) IsValid() bool {
	return validRoles[r]
}

// String returns the string representation of the role.
func (r Role) String() string { return string(r) }

// IsReviewer reports whether the role carries document review and mortgage
// registration capability.
func (r Role) IsReviewer() bool {
	return r == RoleOfficer || r == RoleAdmin
}
