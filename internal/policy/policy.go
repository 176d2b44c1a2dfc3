// Package policy is the single capability check consulted by every registry
// method. Role checks never appear inline in handlers or services; they all
// route through CanPerform so the authorization matrix lives in one place.
package policy

import (
	id "cadastra/pkg/domain"
)

// Action names a capability-guarded operation.
type Action string

const (
	ActionMortgageRegister  Action = "mortgage.register"
	ActionMortgageDischarge Action = "mortgage.discharge"
	ActionMortgageRead      Action = "mortgage.read"
	ActionDocumentVerify    Action = "document.verify"
	ActionDocumentDelete    Action = "document.delete"
	ActionDocumentRead      Action = "document.read"
)

// CanPerform reports whether a caller with the given role may perform action
// on a resource owned by resourceOwnerID.
//
// Officers and admins hold registry-wide capability. Other roles act only on
// resources they own; for actions with no owned-resource semantics (register,
// discharge, verify) ownership grants nothing.
func CanPerform(role id.Role, action Action, resourceOwnerID, callerID id.UserID) bool {
	if role.IsReviewer() {
		return true
	}

	switch action {
	case ActionMortgageRead, ActionDocumentRead:
		return !callerID.IsNil() && resourceOwnerID == callerID
	case ActionDocumentDelete:
		// Uploaders may remove their own documents.
		return !callerID.IsNil() && resourceOwnerID == callerID
	default:
		return false
	}
}
