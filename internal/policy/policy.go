// Package policy answers "may this actor do this to this project" from the
// project row alone. Checks are pure functions; persistence and workflow
// lookups stay in the engine.
package policy

import (
	"fmt"

	"contentline/internal/domain"
)

// ForbiddenError indicates the actor's role does not permit the operation.
type ForbiddenError struct {
	Operation string
	Role      domain.Role
	Stage     domain.Stage
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("role %s may not %s at stage %s", e.Role, e.Operation, e.Stage)
}

// CanRead reports whether the role may view projects, history and the log.
// Every known role can.
func CanRead(role domain.Role) bool {
	return role != ""
}

// CanEdit reports whether the actor may patch the project's data bag: only
// the role currently holding the assignment. ADMIN and OBSERVER never hold
// one, so they are read-only here by construction.
func CanEdit(p domain.Project, role domain.Role) error {
	if role == p.AssignedRole {
		return nil
	}
	return ForbiddenError{Operation: "edit", Role: role, Stage: p.CurrentStage}
}

// CanSubmit reports whether the actor may hand the project to the next
// stage. Only the assigned role may.
func CanSubmit(p domain.Project, role domain.Role) error {
	if role == p.AssignedRole {
		return nil
	}
	return ForbiddenError{Operation: "submit", Role: role, Stage: p.CurrentStage}
}

// CanApprove reports whether the actor may approve at the project's current
// stage: an approver role holding the stage's assignment. Whether the stage
// is actually a review stage is the engine's check, not a permission.
func CanApprove(p domain.Project, role domain.Role) error {
	if !isApprover(role) || role != p.AssignedRole {
		return ForbiddenError{Operation: "approve", Role: role, Stage: p.CurrentStage}
	}
	return nil
}

// CanReject mirrors CanApprove; approving and rejecting share one gate.
func CanReject(p domain.Project, role domain.Role) error {
	if !isApprover(role) || role != p.AssignedRole {
		return ForbiddenError{Operation: "reject", Role: role, Stage: p.CurrentStage}
	}
	return nil
}

// CanCreate reports whether the role may open new projects. Reviewers and
// admins may plan work; the read-only observer may not.
func CanCreate(role domain.Role) error {
	switch role {
	case domain.RoleWriter, domain.RoleCMO, domain.RoleCEO, domain.RoleAdmin, domain.RoleOps:
		return nil
	}
	return ForbiddenError{Operation: "create", Role: role}
}

func isApprover(role domain.Role) bool {
	return role == domain.RoleCMO || role == domain.RoleCEO
}
