// Package permission holds the role rules shared by every handler. The checks are pure so they can
// be evaluated against an acting profile that was resolved from the token.
package permission

import (
	"errors"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
)

var (
	ErrForbidden       = errors.New("operation not allowed for this profile")
	ErrLastOwner       = errors.New("a company must keep at least one owner")
	ErrSelfDisable     = errors.New("a profile cannot disable itself")
	ErrOwnerProtected  = errors.New("an owner profile cannot be disabled")
	ErrRoleEscalation  = errors.New("only an owner may grant owner or delegate roles")
	ErrInvalidRole     = errors.New("invalid role")
	ErrOtherCompany    = errors.New("profile belongs to another company")
	ErrProfileInactive = errors.New("profile is not active")
)

// Actor is the acting profile of a request.
type Actor struct {
	ProfileID uint
	CompanyID uint
	Role      model.Role
}

// Member is the actor's membership in a project team, nil when the actor is not in the team.
type Member struct {
	Role     model.Role
	Status   model.TeamStatus
	Disabled bool
}

func (m *Member) active() bool {
	return m != nil && m.Status == model.TeamApproved && !m.Disabled
}

// CanEditCompany: owners, delegates and level1 profiles of the company. Level2 never.
func CanEditCompany(a Actor, companyID uint) error {
	if a.CompanyID != companyID {
		return ErrOtherCompany
	}
	if !a.Role.AtLeast(model.RoleLevel1) {
		return ErrForbidden
	}
	return nil
}

// CanManageProfiles reports whether a may invite, disable or change roles in its company.
func CanManageProfiles(a Actor) error {
	if !a.Role.AtLeast(model.RoleDelegate) {
		return ErrForbidden
	}
	return nil
}

// CanChangeRole checks a role change of target to newRole. ownerCount is the number of active
// owners in the company before the change.
func CanChangeRole(a Actor, target *model.Profile, newRole model.Role, ownerCount int64) error {
	if !newRole.Valid() {
		return ErrInvalidRole
	}
	if err := CanManageProfiles(a); err != nil {
		return err
	}
	if target.CompanyID != a.CompanyID {
		return ErrOtherCompany
	}
	if newRole.AtLeast(model.RoleDelegate) && a.Role != model.RoleOwner {
		return ErrRoleEscalation
	}
	// Delegates may not touch owners at all.
	if target.Role == model.RoleOwner && a.Role != model.RoleOwner {
		return ErrForbidden
	}
	if target.Role == model.RoleOwner && newRole != model.RoleOwner && ownerCount <= 1 {
		return ErrLastOwner
	}
	return nil
}

// CanDisableProfile checks disabling target.
func CanDisableProfile(a Actor, target *model.Profile) error {
	if err := CanManageProfiles(a); err != nil {
		return err
	}
	if target.CompanyID != a.CompanyID {
		return ErrOtherCompany
	}
	if target.ID == a.ProfileID {
		return ErrSelfDisable
	}
	if target.Role == model.RoleOwner {
		return ErrOwnerProtected
	}
	return nil
}

// CanCreateProject: owners, delegates and level1 profiles.
func CanCreateProject(a Actor) error {
	if !a.Role.AtLeast(model.RoleLevel1) {
		return ErrForbidden
	}
	return nil
}

// CanEditProject allows team owners and delegates, and owners and delegates of the owning company.
func CanEditProject(a Actor, project *model.Project, m *Member) error {
	if a.CompanyID == project.CompanyID && a.Role.AtLeast(model.RoleDelegate) {
		return nil
	}
	if m.active() && m.Role.AtLeast(model.RoleDelegate) {
		return nil
	}
	return ErrForbidden
}

// CanViewProject requires an approved, enabled team membership or an owner/delegate profile of the
// owning company.
func CanViewProject(a Actor, project *model.Project, m *Member) error {
	if m.active() {
		return nil
	}
	if a.CompanyID == project.CompanyID && a.Role.AtLeast(model.RoleDelegate) {
		return nil
	}
	return ErrForbidden
}

// CanEditTasks allows project editors and level1 team members.
func CanEditTasks(a Actor, project *model.Project, m *Member) error {
	if CanEditProject(a, project, m) == nil {
		return nil
	}
	if m.active() && m.Role.AtLeast(model.RoleLevel1) {
		return nil
	}
	return ErrForbidden
}

// CanUpdateTaskProgress additionally allows any profile of the company the task is assigned to,
// team member or not. The actor's profile is known to be active: writes revalidate it.
func CanUpdateTaskProgress(a Actor, project *model.Project, task *model.Task, m *Member) error {
	if CanEditTasks(a, project, m) == nil {
		return nil
	}
	if task.AssignedCompanyID != nil && *task.AssignedCompanyID == a.CompanyID {
		return nil
	}
	return ErrForbidden
}

// CanManageTeam allows project editors to add, approve on behalf, change or remove members.
func CanManageTeam(a Actor, project *model.Project, m *Member) error {
	return CanEditProject(a, project, m)
}

// projectRank is the highest role the actor holds over a project, from the owning company or the team.
func projectRank(a Actor, project *model.Project, m *Member) (model.Role, bool) {
	var rank model.Role
	found := false
	if a.CompanyID == project.CompanyID {
		rank, found = a.Role, true
	}
	if m.active() && (!found || m.Role.AtLeast(rank)) {
		rank, found = m.Role, true
	}
	return rank, found
}

// CanGrantTeamRole checks giving role to a team member whose current role is current (nil for a new
// member). Like company roles, only an owner grants owner or delegate or touches an owner.
func CanGrantTeamRole(a Actor, project *model.Project, m *Member, current *model.Role, role model.Role) error {
	if err := CanManageTeam(a, project, m); err != nil {
		return err
	}
	if !role.Valid() {
		return ErrInvalidRole
	}
	rank, _ := projectRank(a, project, m)
	if rank == model.RoleOwner {
		return nil
	}
	if current != nil && *current == model.RoleOwner {
		return ErrForbidden
	}
	if role.AtLeast(model.RoleDelegate) {
		return ErrRoleEscalation
	}
	return nil
}

// CanEditOwnContent allows the author, or a company owner/delegate of the author's company.
func CanEditOwnContent(a Actor, authorID, authorCompanyID uint) error {
	if a.ProfileID == authorID {
		return nil
	}
	if a.CompanyID == authorCompanyID && a.Role.AtLeast(model.RoleDelegate) {
		return nil
	}
	return ErrForbidden
}
