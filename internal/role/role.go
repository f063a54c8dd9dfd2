// Package role holds the single rule that maps an email address to an
// access role. Both the demo session synthesizer and anything else that
// needs an inferred role call Infer; UI code only ever reads Session.Role.
//
// Live signups do NOT use this rule: the identity service always creates
// live profiles as students, and elevation happens only through an
// administrative action. The two paths differ on purpose.
package role

import (
	"strings"

	"github.com/sakif/learning-platform/internal/model"
)

// reserved maps an exact local part to its role.
var reserved = map[string]model.Role{
	"admin": model.RoleAdmin,
	"pro":   model.RolePro,
	"free":  model.RoleFree,
}

// Infer returns the role for email. It depends on nothing but its argument.
//
//	admin@school.org → admin
//	pro@test.com     → pro
//	free@test.com    → free
//	anyone@else.com  → student
//
// The local part is compared case-insensitively and after trimming spaces,
// matching how emails are compared everywhere else. An address without "@"
// is treated as all local part.
func Infer(email string) model.Role {
	local := model.NormalizeEmail(email)
	if at := strings.LastIndex(local, "@"); at >= 0 {
		local = local[:at]
	}
	if r, ok := reserved[local]; ok {
		return r
	}
	return model.RoleStudent
}

// SignupPayload is the subset of a signup form the rule looks at.
type SignupPayload struct {
	Email     string
	FirstName string
	Country   string
}

// InferSignup applies Infer to a signup payload. Only the email matters;
// name and country never influence the role.
func InferSignup(p SignupPayload) model.Role {
	return Infer(p.Email)
}
