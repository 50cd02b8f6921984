package session

import "github.com/trezcool/heures/core/staff"

// transitions is the authoritative state-transition table: status -> role -> reachable statuses.
// REJECTED and PAID have no outgoing edges.
var transitions = map[Status]map[string][]Status{
	StatusPendingReview: {
		staff.RoleFrontOffice: {StatusPendingValidation},
	},
	StatusPendingValidation: {
		staff.RoleDirector: {StatusValidated, StatusRejected},
	},
	StatusValidated: {
		staff.RoleDirector: {StatusPaid},
	},
}

// Allowed returns the statuses role may move a session in status to.
// Evidence and conversion checks are applied by the Service on top of it.
func Allowed(status Status, role string) []Status {
	next := transitions[status][role]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

func permits(status Status, role string, requested Status) bool {
	for _, next := range transitions[status][role] {
		if next == requested {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no role can move a session out of status.
func IsTerminal(status Status) bool {
	return len(transitions[status]) == 0
}

// canReturn reports whether role may return a session in status for more information.
func canReturn(status Status, role string) bool {
	return status == StatusPendingReview && role == staff.RoleFrontOffice
}

type Action string

const (
	ActionEdit     Action = "edit"
	ActionDelete   Action = "delete"
	ActionAttach   Action = "attach"
	ActionVerify   Action = "verify"
	ActionReturn   Action = "return"
	ActionForward  Action = "forward"
	ActionValidate Action = "validate"
	ActionReject   Action = "reject"
	ActionPay      Action = "pay"
)

var transitionActions = map[Status]Action{
	StatusPendingValidation: ActionForward,
	StatusValidated:         ActionValidate,
	StatusRejected:          ActionReject,
	StatusPaid:              ActionPay,
}

// Actions lists what role may do on a session in status.
// It does not consider the edit window nor the ownership of the session.
func Actions(status Status, role string) []Action {
	actions := make([]Action, 0, 4)
	if role == staff.RoleTeacher {
		if status == StatusPendingReview {
			actions = append(actions, ActionEdit, ActionDelete)
		}
		if status == StatusPendingReview || status == StatusPendingValidation {
			actions = append(actions, ActionAttach)
		}
	}
	if status == StatusPendingReview && role == staff.RoleFrontOffice {
		actions = append(actions, ActionVerify)
	}
	if canReturn(status, role) {
		actions = append(actions, ActionReturn)
	}
	for _, next := range transitions[status][role] {
		actions = append(actions, transitionActions[next])
	}
	return actions
}
