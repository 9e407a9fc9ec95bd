package rbac

import "github.com/jimf8th/my-skool-club-sub000/pkg/members"

// ReasonInsufficientRole is the fallback denial reason
const ReasonInsufficientRole = "insufficient role"

// Guard decides whether a resolved caller may perform an action on a resource.
// It is pure: no I/O, no clock, same inputs give the same decision.
type Guard struct{}

// NewGuard creates a guard
func NewGuard() *Guard {
	return &Guard{}
}

// Authorize evaluates the rules in order; the first matching rule decides.
func (g *Guard) Authorize(caller *RoleSet, action Action, res Resource) Decision {
	if caller == nil {
		return deny("no caller")
	}
	if caller.IsAppAdmin() {
		return allow("app admin")
	}

	switch res.Kind {
	case ResourceSchool:
		return authorizeSchool(caller, action, res)
	case ResourceClub:
		return authorizeClub(caller, action, res)
	case ResourceInvoice, ResourceCheckout:
		return authorizeApprovable(caller, action, res)
	case ResourceMember:
		return authorizeMember(caller, action, res)
	}

	return deny(ReasonInsufficientRole)
}

func authorizeSchool(caller *RoleSet, action Action, res Resource) Decision {
	switch action {
	case ActionCreate, ActionDelete:
		return deny("schools are created and deleted by app admins only")
	}
	if caller.IsSchoolAdminOf(res.SchoolID) {
		return allow("school admin")
	}
	return deny(ReasonInsufficientRole)
}

func authorizeClub(caller *RoleSet, action Action, res Resource) Decision {
	switch action {
	case ActionCreate, ActionDelete:
		if caller.IsSchoolAdminOf(res.SchoolID) {
			return allow("school admin")
		}
	case ActionEdit:
		// school admins manage clubs structurally but do not edit club content
		if caller.IsClubAdmin(res.ClubID) {
			return allow("club admin")
		}
	case ActionEnroll:
		return authorizeEnroll(caller, res)
	case ActionRead, ActionList:
		if caller.InSchool(res.SchoolID) || caller.HasGrant(res.ClubID) {
			return allow("school member")
		}
	case ActionManageRoles:
		if caller.IsClubAdmin(res.ClubID) {
			return allow("club admin")
		}
		if caller.IsSchoolAdminOf(res.SchoolID) {
			return allow("school admin")
		}
	}
	return deny(ReasonInsufficientRole)
}

func authorizeEnroll(caller *RoleSet, res Resource) Decision {
	if caller.GlobalRole != members.RoleSchoolUser && caller.GlobalRole != members.RoleSchoolAdmin {
		return deny(ReasonInsufficientRole)
	}
	if !caller.InSchool(res.SchoolID) {
		return deny("club belongs to another school")
	}
	if !res.ClubActive {
		return deny("club is not active")
	}
	if caller.HasGrant(res.ClubID) {
		return deny("already enrolled")
	}
	return allow("self enrollment")
}

func authorizeApprovable(caller *RoleSet, action Action, res Resource) Decision {
	switch action {
	case ActionCreate, ActionRead, ActionList, ActionEdit, ActionDelete, ActionSubmit:
		if caller.HasGrant(res.ClubID) {
			return allow("club member")
		}
	case ActionApprove, ActionReject, ActionReturn, ActionSend, ActionPay, ActionCancel:
		if caller.IsClubAdmin(res.ClubID) {
			return allow("club admin")
		}
	}
	return deny(ReasonInsufficientRole)
}

func authorizeMember(caller *RoleSet, action Action, res Resource) Decision {
	switch action {
	case ActionCreate, ActionRead, ActionList, ActionActivate, ActionDeactivate:
		if caller.IsSchoolAdminOf(res.SchoolID) {
			return allow("school admin")
		}
	}
	// set_role and hard delete stay with app admins
	return deny(ReasonInsufficientRole)
}
