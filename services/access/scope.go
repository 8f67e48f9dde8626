// Package access resolves what an authenticated actor may see and touch.
//
// Resolve turns an Actor into a Scope. Filter turns an (Entity, Scope) pair
// into a SQL predicate that walks the entity's ownership chain back to a
// branch or organization. Both are pure; nothing here talks to the database
// until a predicate is applied to a query.
package access

import "educenter_go/models"

type Kind int

const (
	KindNone Kind = iota
	KindSelf
	KindBranch
	KindOrganization
	KindGlobal
)

func (k Kind) String() string {
	switch k {
	case KindSelf:
		return "self"
	case KindBranch:
		return "branch"
	case KindOrganization:
		return "organization"
	case KindGlobal:
		return "global"
	}
	return "none"
}

// Actor is the authenticated caller as seen by the resolver.
type Actor struct {
	UserID         uint
	Role           models.Role
	OrganizationID *uint
	BranchID       *uint
	TeacherID      *uint
	StudentID      *uint
	Authenticated  bool
	Blocked        bool
}

// ActorFromUser builds an Actor from a user loaded with its Teacher and
// Student profiles preloaded. A nil user yields an unauthenticated actor.
func ActorFromUser(u *models.User) Actor {
	if u == nil {
		return Actor{}
	}
	a := Actor{
		UserID:         u.ID,
		Role:           u.Role,
		OrganizationID: u.OrganizationID,
		BranchID:       u.BranchID,
		Authenticated:  true,
		Blocked:        u.IsBlocked,
	}
	if u.Teacher != nil && u.Teacher.ID != 0 {
		id := u.Teacher.ID
		a.TeacherID = &id
	}
	if u.Student != nil && u.Student.ID != 0 {
		id := u.Student.ID
		a.StudentID = &id
	}
	return a
}

// Scope is the resolved visibility of one actor. Only the ids relevant to
// Kind are set.
type Scope struct {
	Kind           Kind
	Role           models.Role
	UserID         uint
	OrganizationID uint
	BranchID       uint
	TeacherID      uint
	StudentID      uint
}

func None() Scope { return Scope{Kind: KindNone} }

func (s Scope) IsGlobal() bool { return s.Kind == KindGlobal }

// Resolve maps an actor to its scope. Unknown, blocked or anonymous actors
// get KindNone.
func Resolve(a Actor) Scope {
	if !a.Authenticated || a.Blocked || !a.Role.Valid() {
		return None()
	}

	switch a.Role {
	case models.RoleSuperadmin:
		return Scope{Kind: KindGlobal, Role: a.Role, UserID: a.UserID}
	case models.RoleTeacher:
		if a.TeacherID == nil {
			return None()
		}
		return Scope{Kind: KindSelf, Role: a.Role, UserID: a.UserID, TeacherID: *a.TeacherID}
	case models.RoleStudent:
		if a.StudentID == nil {
			return None()
		}
		return Scope{Kind: KindSelf, Role: a.Role, UserID: a.UserID, StudentID: *a.StudentID}
	case models.RoleParent:
		// no parent-to-child link exists in the store
		return None()
	case models.RoleDirector, models.RoleManager, models.RoleAdmin, models.RoleStaff:
		return tenantScope(a)
	default:
		return None()
	}
}

func tenantScope(a Actor) Scope {
	switch {
	case a.BranchID != nil:
		s := Scope{Kind: KindBranch, Role: a.Role, UserID: a.UserID, BranchID: *a.BranchID}
		if a.OrganizationID != nil {
			s.OrganizationID = *a.OrganizationID
		}
		return s
	case a.OrganizationID != nil:
		return Scope{Kind: KindOrganization, Role: a.Role, UserID: a.UserID, OrganizationID: *a.OrganizationID}
	}
	return None()
}

// RoleSet is a named group of roles used by route guards.
type RoleSet []models.Role

func (rs RoleSet) Contains(r models.Role) bool {
	for _, x := range rs {
		if x == r {
			return true
		}
	}
	return false
}

var (
	Managers  = RoleSet{models.RoleSuperadmin, models.RoleDirector, models.RoleManager, models.RoleAdmin}
	Educators = RoleSet{models.RoleSuperadmin, models.RoleDirector, models.RoleManager, models.RoleAdmin, models.RoleTeacher}
	Finance   = RoleSet{models.RoleSuperadmin, models.RoleDirector, models.RoleAdmin}
	Loyalty   = RoleSet{models.RoleSuperadmin, models.RoleDirector, models.RoleManager, models.RoleAdmin, models.RoleStaff}
)
