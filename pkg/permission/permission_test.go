package permission

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
)

func profile(id, company uint, role model.Role) *model.Profile {
	p := &model.Profile{CompanyID: company, Role: role}
	p.ID = id
	return p
}

func TestCompanyRules(t *testing.T) {
	Convey("Editing a company", t, func() {
		Convey("owner, delegate and level1 may edit", func() {
			for _, r := range []model.Role{model.RoleOwner, model.RoleDelegate, model.RoleLevel1} {
				So(CanEditCompany(Actor{ProfileID: 1, CompanyID: 10, Role: r}, 10), ShouldBeNil)
			}
		})
		Convey("level2 may not edit", func() {
			So(CanEditCompany(Actor{ProfileID: 1, CompanyID: 10, Role: model.RoleLevel2}, 10), ShouldEqual, ErrForbidden)
		})
		Convey("nobody edits another company", func() {
			So(CanEditCompany(Actor{ProfileID: 1, CompanyID: 10, Role: model.RoleOwner}, 11), ShouldEqual, ErrOtherCompany)
		})
	})
}

func TestRoleChange(t *testing.T) {
	owner := Actor{ProfileID: 1, CompanyID: 10, Role: model.RoleOwner}
	delegate := Actor{ProfileID: 2, CompanyID: 10, Role: model.RoleDelegate}
	level1 := Actor{ProfileID: 3, CompanyID: 10, Role: model.RoleLevel1}

	Convey("Changing roles", t, func() {
		target := profile(5, 10, model.RoleLevel2)

		Convey("level1 cannot manage profiles", func() {
			So(CanChangeRole(level1, target, model.RoleLevel1, 1), ShouldEqual, ErrForbidden)
		})
		Convey("delegate can promote to level1", func() {
			So(CanChangeRole(delegate, target, model.RoleLevel1, 1), ShouldBeNil)
		})
		Convey("only owner grants delegate or owner", func() {
			So(CanChangeRole(delegate, target, model.RoleDelegate, 1), ShouldEqual, ErrRoleEscalation)
			So(CanChangeRole(owner, target, model.RoleDelegate, 1), ShouldBeNil)
			So(CanChangeRole(owner, target, model.RoleOwner, 1), ShouldBeNil)
		})
		Convey("last owner cannot be demoted", func() {
			self := profile(1, 10, model.RoleOwner)
			So(CanChangeRole(owner, self, model.RoleDelegate, 1), ShouldEqual, ErrLastOwner)
			So(CanChangeRole(owner, self, model.RoleDelegate, 2), ShouldBeNil)
		})
		Convey("delegate cannot touch an owner", func() {
			So(CanChangeRole(delegate, profile(1, 10, model.RoleOwner), model.RoleLevel1, 3), ShouldEqual, ErrForbidden)
		})
		Convey("invalid role is rejected", func() {
			So(CanChangeRole(owner, target, model.Role(9), 1), ShouldEqual, ErrInvalidRole)
		})
		Convey("other company profile is rejected", func() {
			So(CanChangeRole(owner, profile(6, 11, model.RoleLevel2), model.RoleLevel1, 1), ShouldEqual, ErrOtherCompany)
		})
	})
}

func TestDisable(t *testing.T) {
	owner := Actor{ProfileID: 1, CompanyID: 10, Role: model.RoleOwner}
	Convey("Disabling profiles", t, func() {
		So(CanDisableProfile(owner, profile(1, 10, model.RoleOwner)), ShouldEqual, ErrSelfDisable)
		So(CanDisableProfile(owner, profile(2, 10, model.RoleOwner)), ShouldEqual, ErrOwnerProtected)
		So(CanDisableProfile(owner, profile(3, 10, model.RoleLevel1)), ShouldBeNil)
	})
}

func TestProjectRules(t *testing.T) {
	project := &model.Project{CompanyID: 10}
	approved := func(r model.Role) *Member { return &Member{Role: r, Status: model.TeamApproved} }

	Convey("Project access", t, func() {
		Convey("company delegate edits without membership", func() {
			So(CanEditProject(Actor{ProfileID: 1, CompanyID: 10, Role: model.RoleDelegate}, project, nil), ShouldBeNil)
		})
		Convey("team delegate of another company edits", func() {
			So(CanEditProject(Actor{ProfileID: 2, CompanyID: 20, Role: model.RoleLevel2}, project,
				approved(model.RoleDelegate)), ShouldBeNil)
		})
		Convey("waiting or disabled members cannot view", func() {
			a := Actor{ProfileID: 3, CompanyID: 20, Role: model.RoleOwner}
			So(CanViewProject(a, project, &Member{Role: model.RoleOwner, Status: model.TeamWaiting}), ShouldEqual, ErrForbidden)
			So(CanViewProject(a, project, &Member{Role: model.RoleOwner, Status: model.TeamApproved, Disabled: true}), ShouldEqual, ErrForbidden)
			So(CanViewProject(a, project, approved(model.RoleLevel2)), ShouldBeNil)
		})
		Convey("level1 member edits tasks, level2 does not", func() {
			a := Actor{ProfileID: 4, CompanyID: 20, Role: model.RoleLevel2}
			So(CanEditTasks(a, project, approved(model.RoleLevel1)), ShouldBeNil)
			So(CanEditTasks(a, project, approved(model.RoleLevel2)), ShouldEqual, ErrForbidden)
		})
		Convey("assigned company updates progress", func() {
			company := uint(20)
			task := &model.Task{AssignedCompanyID: &company}
			a := Actor{ProfileID: 5, CompanyID: 20, Role: model.RoleLevel2}
			So(CanUpdateTaskProgress(a, project, task, approved(model.RoleLevel2)), ShouldBeNil)
			So(CanUpdateTaskProgress(a, project, &model.Task{}, approved(model.RoleLevel2)), ShouldEqual, ErrForbidden)
		})
		Convey("assigned company staff outside the team updates progress", func() {
			company := uint(5)
			task := &model.Task{AssignedCompanyID: &company}
			origin := &model.Project{CompanyID: 1}
			a := Actor{ProfileID: 6, CompanyID: 5, Role: model.RoleLevel2}
			So(CanUpdateTaskProgress(a, origin, task, nil), ShouldBeNil)
			So(CanUpdateTaskProgress(Actor{ProfileID: 7, CompanyID: 9, Role: model.RoleOwner}, origin, task, nil),
				ShouldEqual, ErrForbidden)
		})
	})
}

func TestTeamRoleGrant(t *testing.T) {
	project := &model.Project{CompanyID: 10}
	member := func(r model.Role) *Member { return &Member{Role: r, Status: model.TeamApproved} }
	owner := model.RoleOwner
	level2 := model.RoleLevel2

	Convey("Granting team roles", t, func() {
		Convey("team delegate cannot grant owner or delegate", func() {
			a := Actor{ProfileID: 2, CompanyID: 20, Role: model.RoleOwner}
			So(CanGrantTeamRole(a, project, member(model.RoleDelegate), &level2, model.RoleOwner), ShouldEqual, ErrRoleEscalation)
			So(CanGrantTeamRole(a, project, member(model.RoleDelegate), nil, model.RoleDelegate), ShouldEqual, ErrRoleEscalation)
			So(CanGrantTeamRole(a, project, member(model.RoleDelegate), nil, model.RoleLevel1), ShouldBeNil)
		})
		Convey("team delegate cannot demote a team owner", func() {
			a := Actor{ProfileID: 2, CompanyID: 20, Role: model.RoleLevel2}
			So(CanGrantTeamRole(a, project, member(model.RoleDelegate), &owner, model.RoleLevel1), ShouldEqual, ErrForbidden)
		})
		Convey("team owner grants any role", func() {
			a := Actor{ProfileID: 3, CompanyID: 20, Role: model.RoleLevel2}
			So(CanGrantTeamRole(a, project, member(model.RoleOwner), &level2, model.RoleOwner), ShouldBeNil)
		})
		Convey("owner of the owning company grants owner without membership", func() {
			a := Actor{ProfileID: 1, CompanyID: 10, Role: model.RoleOwner}
			So(CanGrantTeamRole(a, project, nil, nil, model.RoleOwner), ShouldBeNil)
		})
		Convey("company delegate grants level roles only", func() {
			a := Actor{ProfileID: 4, CompanyID: 10, Role: model.RoleDelegate}
			So(CanGrantTeamRole(a, project, nil, nil, model.RoleOwner), ShouldEqual, ErrRoleEscalation)
			So(CanGrantTeamRole(a, project, nil, nil, model.RoleLevel2), ShouldBeNil)
		})
		Convey("level2 member manages nothing", func() {
			a := Actor{ProfileID: 5, CompanyID: 20, Role: model.RoleOwner}
			So(CanGrantTeamRole(a, project, member(model.RoleLevel2), nil, model.RoleLevel2), ShouldEqual, ErrForbidden)
		})
	})
}
