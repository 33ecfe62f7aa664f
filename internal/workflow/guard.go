// Package workflow implements the sentence lifecycle: a role-gated state
// machine over sentence statuses and the orchestrator that composes guard
// checks, persistence, validation and audit writes into atomic operations.
package workflow

import (
	"github.com/amrlab/amrflow/internal/amr"
)

// transitions is the sentence status state machine. For each source status it
// lists the reachable targets and the roles allowed to drive the transition.
var transitions = map[amr.SentenceStatus]map[amr.SentenceStatus][]amr.Role{
	amr.StatusNew: {
		amr.StatusAssigned: {
			amr.RoleAdmin, amr.RoleAssignmentEngine, amr.RoleCurator,
		},
	},
	amr.StatusAssigned: {
		// Reassignment keeps the sentence in ASSIGNED.
		amr.StatusAssigned: {
			amr.RoleAdmin, amr.RoleAssignmentEngine, amr.RoleCurator,
		},
		amr.StatusSubmitted: {amr.RoleAnnotator},
	},
	amr.StatusSubmitted: {
		amr.StatusInReview: {
			amr.RoleAdmin, amr.RoleReviewer, amr.RoleCurator,
		},
	},
	amr.StatusInReview: {
		// Multi-annotator hold: approvals park the sentence until
		// every annotation has been reviewed.
		amr.StatusInReview: {
			amr.RoleReviewer, amr.RoleAdmin, amr.RoleCurator,
		},
		amr.StatusAdjudicated: {
			amr.RoleReviewer, amr.RoleAdmin, amr.RoleCurator,
		},
		amr.StatusSubmitted: {amr.RoleReviewer},
		amr.StatusAssigned: {
			amr.RoleReviewer, amr.RoleAdmin, amr.RoleCurator,
		},
	},
	amr.StatusAdjudicated: {
		amr.StatusAccepted: {amr.RoleAdmin, amr.RoleCurator},
		amr.StatusInReview: {amr.RoleAdmin, amr.RoleCurator},
	},
}

// Actor identifies the caller of a workflow operation. ProjectRole carries
// the caller's project-scoped membership role when one exists; it takes
// precedence over the global role for authorization within that project.
type Actor struct {
	UserID      int64
	Role        amr.Role
	ProjectRole *amr.Role
}

// ActingRole resolves the role the actor operates under. Admin always acts
// as admin; otherwise the project role wins over the global one.
func (a Actor) ActingRole() amr.Role {
	if a.Role == amr.RoleAdmin {
		return a.Role
	}
	if a.ProjectRole != nil {
		return *a.ProjectRole
	}
	return a.Role
}

// EnsureTransition checks that the status transition exists and that the
// acting role is allowed to drive it.
func EnsureTransition(current, target amr.SentenceStatus,
	actor amr.Role) error {

	allowedRoles, ok := transitions[current][target]
	if !ok {
		return amr.NewError(amr.CodeTransitionNotDefined,
			"%s durumundan %s hedefine geçiş tanımlı değil.",
			current, target)
	}

	for _, role := range allowedRoles {
		if role == actor {
			return nil
		}
	}

	return amr.NewError(amr.CodeTransitionForbidden,
		"%s rolü %s->%s geçişine izinli değil.", actor, current, target)
}

// ReviewToTarget maps a review decision to the resulting sentence status.
// Approvals park multi-annotator sentences in IN_REVIEW until every
// annotation has a verdict.
func ReviewToTarget(decision amr.ReviewDecision,
	isMultiAnnotator bool) (amr.SentenceStatus, error) {

	switch decision {
	case amr.DecisionApprove:
		if isMultiAnnotator {
			return amr.StatusInReview, nil
		}
		return amr.StatusAdjudicated, nil

	case amr.DecisionNeedsFix:
		return amr.StatusSubmitted, nil

	case amr.DecisionReject:
		return amr.StatusAssigned, nil
	}

	return "", amr.NewError(amr.CodeTransitionNotDefined,
		"Geçersiz review kararı")
}

// EnsureAssignmentAllowed permits new assignments only from NEW or ASSIGNED,
// and only with an explicit allowance when active assignments already exist.
func EnsureAssignmentAllowed(status amr.SentenceStatus, hasActiveAssignments,
	allowMultiple, allowReassign bool) error {

	if status != amr.StatusNew && status != amr.StatusAssigned {
		return amr.NewError(amr.CodeAssignmentNotAllowed,
			"Bu durumdayken yeni atama yapılamaz.")
	}
	if hasActiveAssignments && !allowMultiple && !allowReassign {
		return amr.NewError(amr.CodeAssignmentNotAllowed,
			"Aktif atamalar varken yeni atama için izin gerekli.")
	}

	return nil
}

// RequireRejectionForReassignment blocks reassignment unless a prior reject
// review exists on the sentence.
func RequireRejectionForReassignment(hasRejection bool) error {
	if !hasRejection {
		return amr.NewError(amr.CodeReassignRequiresRejection,
			"Reject kararı olmadan yeniden atama yapılamaz.")
	}
	return nil
}

// ShouldCloseAssignmentForReview reports whether the review decision closes
// the annotation's originating assignment. Approve and reject are terminal
// for the assignment; needs_fix keeps it open for the rework.
func ShouldCloseAssignmentForReview(decision amr.ReviewDecision) bool {
	return decision == amr.DecisionApprove ||
		decision == amr.DecisionReject
}

// ShouldLockAssignmentsForTarget reports whether reaching the target status
// deactivates every remaining active assignment on the sentence.
func ShouldLockAssignmentsForTarget(target amr.SentenceStatus) bool {
	switch target {
	case amr.StatusInReview, amr.StatusAdjudicated, amr.StatusAccepted:
		return true
	}
	return false
}

// RequireRoles authorizes the actor against an allowed role set. Admin is a
// superuser and always passes. With useProjectRoles the actor's project
// membership role is consulted before the global role. Returns the role the
// authorization succeeded under.
func RequireRoles(actor Actor, allowed []amr.Role,
	useProjectRoles bool) (amr.Role, error) {

	allowedSet := make(map[amr.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	if actor.Role == amr.RoleAdmin {
		return actor.Role, nil
	}
	if useProjectRoles && actor.ProjectRole != nil {
		if _, ok := allowedSet[*actor.ProjectRole]; ok {
			return *actor.ProjectRole, nil
		}
	}
	if _, ok := allowedSet[actor.Role]; ok {
		return actor.Role, nil
	}

	return "", amr.NewError(amr.CodeTransitionForbidden,
		"%s rolü bu işlem için yetkili değil.", actor.ActingRole())
}
