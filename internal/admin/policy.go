package admin

import (
	"github.com/bayarin/bayarin/internal/apperr"
	"github.com/bayarin/bayarin/internal/identity"
)

// Operation names a permission-checked admin capability.
type Operation string

const (
	OpRefund          Operation = "refund"
	OpReverse         Operation = "reverse"
	OpFreezeWallet    Operation = "freeze_wallet"
	OpUnfreezeWallet  Operation = "unfreeze_wallet"
	OpViewLedger      Operation = "view_ledger"
	OpValidateBalance Operation = "validate_balance"
	OpViewAuditLogs   Operation = "view_audit_logs"

	OpMonitorTransactions Operation = "monitor_transactions"
	OpInspectUsers        Operation = "inspect_users"
)

var allRoles = []identity.Role{identity.RoleSuperAdmin, identity.RoleOpsAdmin, identity.RoleFinanceAdmin}

// policy lists the roles allowed to perform each operation.
var policy = map[Operation][]identity.Role{
	OpRefund:          {identity.RoleFinanceAdmin, identity.RoleSuperAdmin},
	OpReverse:         {identity.RoleFinanceAdmin, identity.RoleSuperAdmin},
	OpFreezeWallet:    {identity.RoleOpsAdmin, identity.RoleSuperAdmin},
	OpUnfreezeWallet:  {identity.RoleOpsAdmin, identity.RoleSuperAdmin},
	OpViewLedger:      allRoles,
	OpValidateBalance: allRoles,
	OpViewAuditLogs:   {identity.RoleSuperAdmin},

	OpMonitorTransactions: allRoles,
	OpInspectUsers:        allRoles,
}

// ErrForbidden is returned when the admin's role does not grant the operation.
var ErrForbidden = apperr.New(apperr.ErrForbidden, "FORBIDDEN", "your role does not allow this operation")

// Actor is the authenticated admin performing an operation.
type Actor struct {
	ID   string
	Role identity.Role
}

// Allowed reports whether role may perform op. Unknown operations are denied.
func Allowed(role identity.Role, op Operation) bool {
	for _, r := range policy[op] {
		if r == role {
			return true
		}
	}
	return false
}

func authorize(actor Actor, op Operation) error {
	if actor.ID == "" {
		return apperr.New(apperr.ErrUnauthorized, "UNAUTHORIZED", "missing admin identity")
	}
	if !Allowed(actor.Role, op) {
		return ErrForbidden
	}
	return nil
}
