package auth

import (
	"slices"

	"subadmin/internal/types"
)

var rolePermissions = map[types.UserRole][]types.Permission{
	types.RoleSystemAdmin: {
		types.PermRequestsApprove,
		types.PermRequestsReject,
		types.PermRequestsQuote,
		types.PermInvoicesSend,
		types.PermInvoicesPaid,
		types.PermAccountsSuspend,
	},
	types.RoleSupport: {
		types.PermRequestsQuote,
	},
}

// PermissionsFor returns the static permission set of role. Client roles
// have none.
func PermissionsFor(role types.UserRole) []types.Permission {
	return slices.Clone(rolePermissions[role])
}

// Can reports whether role grants p.
func Can(role types.UserRole, p types.Permission) bool {
	return slices.Contains(rolePermissions[role], p)
}
