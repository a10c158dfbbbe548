package marketplace

import (
	"github.com/cuongbtq/transfer-market/internal/apperr"
)

// Action is a lifecycle event applied to a job
type Action string

const (
	ActionPurchase  Action = "purchase"
	ActionApprove   Action = "approve"
	ActionReject    Action = "reject"
	ActionCancel    Action = "cancel"
	ActionShareIBAN Action = "share_iban"
	ActionComplete  Action = "complete"
	ActionWithdraw  Action = "withdraw"
)

// transitions is the complete lifecycle graph; anything absent is rejected
var transitions = map[Status]map[Action]Status{
	StatusAvailable: {
		ActionPurchase: StatusPendingApproval,
		ActionWithdraw: StatusCancelled,
	},
	StatusPendingApproval: {
		ActionApprove: StatusApproved,
		ActionReject:  StatusAvailable,
		ActionCancel:  StatusAvailable,
	},
	StatusApproved: {
		ActionShareIBAN: StatusApproved,
		ActionComplete:  StatusCompleted,
	},
}

// Next returns the state reached by applying action to from
func Next(from Status, action Action) (Status, error) {
	next, ok := transitions[from][action]
	if !ok {
		return "", apperr.InvalidTransition("cannot %s a job that is %s", action, from)
	}
	return next, nil
}

// Actions lists what may be applied in a state
func Actions(from Status) []Action {
	out := make([]Action, 0, len(transitions[from]))
	for a := range transitions[from] {
		out = append(out, a)
	}
	return out
}
