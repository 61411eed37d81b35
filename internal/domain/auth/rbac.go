package auth

import "context"

// Role is a user's access level.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleStaff, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Permission is a named capability checked before a handler runs.
type Permission string

const (
	PermCreateOrder       Permission = "CREATE_ORDER"
	PermViewOrders        Permission = "VIEW_ORDERS"
	PermUpdateOrderStatus Permission = "UPDATE_ORDER_STATUS"
	PermManagePayments    Permission = "MANAGE_PAYMENTS"
	PermManageProducts    Permission = "MANAGE_PRODUCTS"
	PermViewCoupons       Permission = "VIEW_COUPONS"
	PermManageCoupons     Permission = "MANAGE_COUPONS"
	PermManageSettings    Permission = "MANAGE_SETTINGS"
	PermViewDashboard     Permission = "VIEW_DASHBOARD"
)

type permissionSet map[Permission]struct{}

func setOf(perms ...Permission) permissionSet {
	s := make(permissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// rolePermissions is the role matrix. Admin is absent: it holds every
// permission.
var rolePermissions = map[Role]permissionSet{
	RoleCustomer: setOf(PermCreateOrder),
	RoleStaff: setOf(
		PermCreateOrder,
		PermViewOrders,
		PermUpdateOrderStatus,
		PermViewCoupons,
		PermViewDashboard,
	),
	RoleManager: setOf(
		PermCreateOrder,
		PermViewOrders,
		PermUpdateOrderStatus,
		PermManagePayments,
		PermManageProducts,
		PermViewCoupons,
		PermManageCoupons,
		PermViewDashboard,
	),
}

// Can reports whether role holds perm.
func Can(role Role, perm Permission) bool {
	if role == RoleAdmin {
		return true
	}
	_, ok := rolePermissions[role][perm]
	return ok
}

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID string
	Email  string
	Name   string
	Role   Role
}

// Can reports whether the identity holds perm.
func (i Identity) Can(perm Permission) bool {
	return Can(i.Role, perm)
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored in ctx, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
