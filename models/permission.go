package models

import "sort"

// Permission is a closed set of actions a home member can perform.
type Permission string

const (
	PermManageHome       Permission = "manage_home"
	PermMakeHomeAdmin    Permission = "make_home_admin"
	PermMakeMod          Permission = "make_mod"
	PermManageUsers      Permission = "manage_users"
	PermSeeOtherAccounts Permission = "see_other_accounts"
	PermManageHomeLabels Permission = "manage_home_labels"
	PermMakeTransactions Permission = "make_transactions"
	PermPlanForOthers    Permission = "plan_for_others"
)

// AllPermissions lists every known permission.
func AllPermissions() []Permission {
	return []Permission{
		PermManageHome,
		PermMakeHomeAdmin,
		PermMakeMod,
		PermManageUsers,
		PermSeeOtherAccounts,
		PermManageHomeLabels,
		PermMakeTransactions,
		PermPlanForOthers,
	}
}

// Valid reports whether p is one of the known permissions.
func (p Permission) Valid() bool {
	for _, known := range AllPermissions() {
		if p == known {
			return true
		}
	}
	return false
}

// PermissionSet is a membership set of permissions.
type PermissionSet map[Permission]struct{}

func NewPermissionSet(perms ...Permission) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

func (s PermissionSet) Add(p Permission) {
	s[p] = struct{}{}
}

func (s PermissionSet) Remove(p Permission) {
	delete(s, p)
}

// Slice returns the set's members sorted by name.
func (s PermissionSet) Slice() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Union returns a new set containing the members of both sets.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	out := make(PermissionSet, len(s)+len(other))
	for p := range s {
		out[p] = struct{}{}
	}
	for p := range other {
		out[p] = struct{}{}
	}
	return out
}

// Role is the position an account holds within its home.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleUser      Role = "user"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleUser:
		return true
	}
	return false
}

// BasePerms returns the permissions every account with this role holds.
func (r Role) BasePerms() PermissionSet {
	switch r {
	case RoleAdmin:
		return RoleModerator.BasePerms().Union(NewPermissionSet(
			PermManageHome,
			PermMakeHomeAdmin,
			PermManageUsers,
		))
	case RoleModerator:
		return NewPermissionSet(
			PermSeeOtherAccounts,
			PermManageHomeLabels,
			PermMakeTransactions,
		)
	default:
		return NewPermissionSet()
	}
}

// GrantablePerms returns the extra permissions that can be granted to an
// account with this role on top of its base set. Admins already hold
// everything they can use, so their grantable set is empty.
func (r Role) GrantablePerms() PermissionSet {
	switch r {
	case RoleModerator:
		return NewPermissionSet(
			PermMakeMod,
			PermPlanForOthers,
			PermManageUsers,
		)
	case RoleUser:
		return NewPermissionSet(
			PermMakeTransactions,
		)
	default:
		return NewPermissionSet()
	}
}
