package rbac

// Role constants
const (
	RoleGuest = "guest"
	RoleHost  = "host"
	RoleAdmin = "admin"
)

// Permission constants
const (
	PermCreateBooking   = "create_booking"
	PermCancelBooking   = "cancel_booking"
	PermCheckIn         = "check_in"
	PermCheckOut        = "check_out"
	PermOpenDispute     = "open_dispute"
	PermResolveDispute  = "resolve_dispute"
	PermForceTransition = "force_transition"
	PermBatchTransition = "batch_transition"
	PermViewAuditTrail  = "view_audit_trail"
	PermSetBankDetails  = "set_bank_details"
)

// RolePermissions defines what each role can do.
var RolePermissions = map[string][]string{
	RoleGuest: {
		PermCreateBooking, PermCancelBooking, PermCheckIn, PermCheckOut,
		PermOpenDispute,
	},
	RoleHost: {
		PermCancelBooking, PermSetBankDetails,
		// Host CANNOT: PermResolveDispute, PermForceTransition
	},
	RoleAdmin: {
		PermCreateBooking, PermCancelBooking, PermCheckIn, PermCheckOut,
		PermOpenDispute, PermResolveDispute, PermForceTransition,
		PermBatchTransition, PermViewAuditTrail, PermSetBankDetails,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// IsSettlementOperation checks if permission moves money (admin-only).
func IsSettlementOperation(permission string) bool {
	return permission == PermResolveDispute || permission == PermForceTransition
}
