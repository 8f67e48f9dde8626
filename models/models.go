package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// Role is the closed set of user roles.
type Role string

const (
	RoleSuperadmin Role = "superadmin"
	RoleDirector   Role = "director"
	RoleManager    Role = "manager"
	RoleAdmin      Role = "admin"
	RoleTeacher    Role = "teacher"
	RoleStudent    Role = "student"
	RoleParent     Role = "parent"
	RoleStaff      Role = "staff"
)

// AllRoles lists every role in display order.
var AllRoles = []Role{
	RoleSuperadmin, RoleDirector, RoleManager, RoleAdmin,
	RoleTeacher, RoleStudent, RoleParent, RoleStaff,
}

func (r Role) Valid() bool {
	switch r {
	case RoleSuperadmin, RoleDirector, RoleManager, RoleAdmin,
		RoleTeacher, RoleStudent, RoleParent, RoleStaff:
		return true
	}
	return false
}

// ParseRole converts free text into a Role, rejecting unknown values.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("invalid role %q", s)
	}
	return r, nil
}

type OrganizationStatus string

const (
	OrganizationActive   OrganizationStatus = "active"
	OrganizationFrozen   OrganizationStatus = "frozen"
	OrganizationInactive OrganizationStatus = "inactive"
)

func (s OrganizationStatus) Valid() bool {
	return s == OrganizationActive || s == OrganizationFrozen || s == OrganizationInactive
}

type Tariff string

const (
	TariffBasic      Tariff = "basic"
	TariffStandard   Tariff = "standard"
	TariffPro        Tariff = "pro"
	TariffEnterprise Tariff = "enterprise"
)

func (t Tariff) Valid() bool {
	switch t {
	case TariffBasic, TariffStandard, TariffPro, TariffEnterprise:
		return true
	}
	return false
}

// Organization is the tenant root.
type Organization struct {
	BaseModel
	Name                string             `json:"name" gorm:"size:255;not null"`
	Status              OrganizationStatus `json:"status" gorm:"size:20;not null;default:'active'"`
	Tariff              Tariff             `json:"tariff" gorm:"size:20;not null;default:'basic'"`
	MaxStudentsPerGroup int                `json:"max_students_per_group" gorm:"default:20"`

	Branches []Branch `json:"branches,omitempty" gorm:"foreignKey:OrganizationID"`
}

func (o *Organization) IsFrozen() bool { return o.Status == OrganizationFrozen }

// Branch model
type Branch struct {
	BaseModel
	OrganizationID uint   `json:"organization_id" gorm:"not null;index"`
	Name           string `json:"name" gorm:"size:255;not null"`
	Code           string `json:"code" gorm:"size:50;uniqueIndex"`
	Address        string `json:"address" gorm:"size:500"`
	Phone          string `json:"phone" gorm:"size:20"`
	Status         bool   `json:"status" gorm:"default:true"`

	Organization Organization `json:"organization,omitempty" gorm:"foreignKey:OrganizationID"`
}

// User model
type User struct {
	BaseModel
	Username       string `json:"username" gorm:"size:100;not null;uniqueIndex"`
	Password       string `json:"-" gorm:"size:255;not null"`
	Email          string `json:"email" gorm:"size:255"`
	Phone          string `json:"phone" gorm:"size:20"`
	FirstName      string `json:"first_name" gorm:"size:100"`
	LastName       string `json:"last_name" gorm:"size:100"`
	Role           Role   `json:"role" gorm:"size:20;not null;default:'student'"`
	OrganizationID *uint  `json:"organization_id" gorm:"index"`
	BranchID       *uint  `json:"branch_id" gorm:"index"`
	IsBlocked      bool   `json:"is_blocked" gorm:"default:false"`
	Status         string `json:"status" gorm:"size:20;not null;default:'active'"` // active, inactive

	// Relationships
	Organization *Organization `json:"organization,omitempty" gorm:"foreignKey:OrganizationID"`
	Branch       *Branch       `json:"branch,omitempty" gorm:"foreignKey:BranchID"`
	Student      *Student      `json:"student,omitempty" gorm:"foreignKey:UserID"`
	Teacher      *Teacher      `json:"teacher,omitempty" gorm:"foreignKey:UserID"`
}

// FullName returns "First Last", falling back to the username.
func (u *User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	}
	return u.Username
}
