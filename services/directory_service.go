package services

import (
	"context"
	"strings"

	"educenter_go/models"
	"educenter_go/services/access"
	"educenter_go/services/audit"
	"educenter_go/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DirectoryService creates and edits branches and the people in them.
type DirectoryService struct {
	db   *gorm.DB
	sink *audit.Sink
}

func NewDirectoryService(db *gorm.DB, sink *audit.Sink) *DirectoryService {
	return &DirectoryService{db: db, sink: sink}
}

type BranchInput struct {
	OrganizationID uint   `json:"organization_id"`
	Name           string `json:"name" validate:"notblank,max=255"`
	Code           string `json:"code" validate:"max=50"`
	Address        string `json:"address" validate:"max=500"`
	Phone          string `json:"phone" validate:"max=20"`
}

// CreateBranch opens a branch in the caller's organization. Superadmin must
// name the organization.
func (s *DirectoryService) CreateBranch(ctx context.Context, scope access.Scope, actorID uint, in BranchInput) (*models.Branch, error) {
	fields := logrus.Fields{"actor_id": actorID, "organization_id": in.OrganizationID}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, finish("branch_create", fields, Malformedf("Name is required"))
	}
	orgID := in.OrganizationID
	if !scope.IsGlobal() {
		if scope.OrganizationID == 0 {
			return nil, finish("branch_create", fields, Deniedf("No organization to create a branch in"))
		}
		if orgID != 0 && orgID != scope.OrganizationID {
			return nil, finish("branch_create", fields, NotFoundf("Organization not found"))
		}
		orgID = scope.OrganizationID
	}
	if orgID == 0 {
		return nil, finish("branch_create", fields, Malformedf("organization_id is required"))
	}

	var branch models.Branch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var org models.Organization
		if err := lockByID(tx, &org, orgID); err != nil {
			return notFoundOr(err, "Organization not found")
		}
		if org.IsFrozen() {
			return InvalidStatef("Organization is frozen")
		}
		branch = models.Branch{
			OrganizationID: org.ID,
			Name:           name,
			Address:        strings.TrimSpace(in.Address),
			Phone:          strings.TrimSpace(in.Phone),
			Status:         true,
		}
		if code := strings.TrimSpace(in.Code); code != "" {
			branch.Code = strings.ToUpper(code)
		} else {
			suffix, err := utils.GenerateRandomString(6)
			if err != nil {
				return errors.Wrap(err, "generate branch code")
			}
			branch.Code = "BR-" + strings.ToUpper(suffix)
		}
		if err := tx.Create(&branch).Error; err != nil {
			return dbErr(err, "Branch code already exists", "create branch")
		}
		return s.sink.Activity(tx, actorID, "CREATE", "branch", branch.ID,
			map[string]interface{}{"organization_id": org.ID, "code": branch.Code})
	})
	if err != nil {
		return nil, finish("branch_create", fields, err)
	}
	fields["branch_id"] = branch.ID
	return &branch, finish("branch_create", fields, nil)
}

// BranchUpdate carries the editable fields; nil leaves a field unchanged.
type BranchUpdate struct {
	Name    *string `json:"name" validate:"omitempty,max=255"`
	Address *string `json:"address" validate:"omitempty,max=500"`
	Phone   *string `json:"phone" validate:"omitempty,max=20"`
}

func (s *DirectoryService) UpdateBranch(ctx context.Context, scope access.Scope, actorID, branchID uint, in BranchUpdate) (*models.Branch, error) {
	fields := logrus.Fields{"actor_id": actorID, "branch_id": branchID}
	updates := map[string]interface{}{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, finish("branch_update", fields, Malformedf("Name cannot be empty"))
		}
		updates["name"] = name
	}
	if in.Address != nil {
		updates["address"] = strings.TrimSpace(*in.Address)
	}
	if in.Phone != nil {
		updates["phone"] = strings.TrimSpace(*in.Phone)
	}

	var branch models.Branch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockScoped(tx, access.EntityBranch, scope, &branch, branchID); err != nil {
			return notFoundOr(err, "Branch not found")
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&branch).Updates(updates).Error; err != nil {
			return errors.Wrap(err, "update branch")
		}
		return s.sink.Activity(tx, actorID, "UPDATE", "branch", branch.ID, updates)
	})
	if err != nil {
		return nil, finish("branch_update", fields, err)
	}
	return &branch, finish("branch_update", fields, nil)
}

// CloseBranch deactivates a branch. Its rows stay readable.
func (s *DirectoryService) CloseBranch(ctx context.Context, scope access.Scope, actorID, branchID uint) (*models.Branch, error) {
	fields := logrus.Fields{"actor_id": actorID, "branch_id": branchID}
	var branch models.Branch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockScoped(tx, access.EntityBranch, scope, &branch, branchID); err != nil {
			return notFoundOr(err, "Branch not found")
		}
		if !branch.Status {
			return InvalidStatef("Branch is already closed")
		}
		if err := tx.Model(&branch).Update("status", false).Error; err != nil {
			return errors.Wrap(err, "close branch")
		}
		branch.Status = false
		return s.sink.Activity(tx, actorID, "CLOSE", "branch", branch.ID, nil)
	})
	if err != nil {
		return nil, finish("branch_close", fields, err)
	}
	return &branch, finish("branch_close", fields, nil)
}

// AccountInput is the login part of every person record.
type AccountInput struct {
	Username  string `json:"username" validate:"required,min=3,max=100"`
	Password  string `json:"password" validate:"required,min=6"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone" validate:"max=20"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
}

type UserInput struct {
	AccountInput
	Role     models.Role `json:"role" validate:"required"`
	BranchID uint        `json:"branch_id" validate:"required"`
}

// openAccount inserts the user row behind a person inside an in-scope branch.
func openAccount(tx *gorm.DB, scope access.Scope, in AccountInput, role models.Role, branchID uint) (*models.User, *models.Branch, error) {
	var branch models.Branch
	if err := access.FindScoped(tx, access.EntityBranch, scope, &branch, branchID); err != nil {
		return nil, nil, notFoundOr(err, "Branch not found")
	}
	if !branch.Status {
		return nil, nil, InvalidStatef("Branch is closed")
	}
	hashed, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, nil, errors.Wrap(err, "hash password")
	}
	u := models.User{
		Username:       strings.TrimSpace(in.Username),
		Password:       hashed,
		Email:          strings.TrimSpace(in.Email),
		Phone:          strings.TrimSpace(in.Phone),
		FirstName:      strings.TrimSpace(in.FirstName),
		LastName:       strings.TrimSpace(in.LastName),
		Role:           role,
		OrganizationID: ptrUint(branch.OrganizationID),
		BranchID:       ptrUint(branch.ID),
		Status:         "active",
	}
	if err := tx.Create(&u).Error; err != nil {
		return nil, nil, dbErr(err, "Username already exists", "create user")
	}
	return &u, &branch, nil
}

// CreateUser opens a staff account. Students and teachers have their own
// workflows because they carry a profile row.
func (s *DirectoryService) CreateUser(ctx context.Context, scope access.Scope, actorID uint, in UserInput) (*models.User, error) {
	fields := logrus.Fields{"actor_id": actorID, "branch_id": in.BranchID, "role": in.Role}
	switch {
	case !in.Role.Valid():
		return nil, finish("user_create", fields, Malformedf("Invalid role"))
	case in.Role == models.RoleStudent || in.Role == models.RoleTeacher:
		return nil, finish("user_create", fields, Malformedf("Use the %s endpoint to create a %s", in.Role, in.Role))
	case in.Role == models.RoleSuperadmin && !scope.IsGlobal():
		return nil, finish("user_create", fields, Deniedf("Only superadmin can create superadmin accounts"))
	}

	var user *models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, _, err := openAccount(tx, scope, in.AccountInput, in.Role, in.BranchID)
		if err != nil {
			return err
		}
		user = u
		return s.sink.Activity(tx, actorID, "CREATE", "user", u.ID, map[string]interface{}{"role": u.Role})
	})
	if err != nil {
		return nil, finish("user_create", fields, err)
	}
	fields["user_id"] = user.ID
	return user, finish("user_create", fields, nil)
}

type UserUpdate struct {
	Email     *string `json:"email" validate:"omitempty,email"`
	Phone     *string `json:"phone" validate:"omitempty,max=20"`
	FirstName *string `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,max=100"`
	Status    *string `json:"status"`
}

func (s *DirectoryService) UpdateUser(ctx context.Context, scope access.Scope, actorID, userID uint, in UserUpdate) (*models.User, error) {
	fields := logrus.Fields{"actor_id": actorID, "user_id": userID}
	updates := map[string]interface{}{}
	for col, v := range map[string]*string{"email": in.Email, "phone": in.Phone, "first_name": in.FirstName, "last_name": in.LastName} {
		if v != nil {
			updates[col] = strings.TrimSpace(*v)
		}
	}
	if in.Status != nil {
		if *in.Status != "active" && *in.Status != "inactive" {
			return nil, finish("user_update", fields, Malformedf("Invalid status"))
		}
		updates["status"] = *in.Status
	}

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockScoped(tx, access.EntityUser, scope, &user, userID); err != nil {
			return notFoundOr(err, "User not found")
		}
		if user.Role == models.RoleSuperadmin && !scope.IsGlobal() {
			return Deniedf("Only superadmin can edit superadmin accounts")
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&user).Updates(updates).Error; err != nil {
			return errors.Wrap(err, "update user")
		}
		return s.sink.Activity(tx, actorID, "UPDATE", "user", user.ID, updates)
	})
	if err != nil {
		return nil, finish("user_update", fields, err)
	}
	return &user, finish("user_update", fields, nil)
}

type StudentInput struct {
	AccountInput
	BranchID  uint    `json:"branch_id" validate:"required"`
	TotalDebt float64 `json:"total_debt" validate:"gte=0"`
}

// CreateStudent opens a student account and its profile together.
func (s *DirectoryService) CreateStudent(ctx context.Context, scope access.Scope, actorID uint, in StudentInput) (*models.Student, error) {
	fields := logrus.Fields{"actor_id": actorID, "branch_id": in.BranchID}
	if in.TotalDebt < 0 {
		return nil, finish("student_create", fields, Malformedf("Debt cannot be negative"))
	}
	var student models.Student
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, branch, err := openAccount(tx, scope, in.AccountInput, models.RoleStudent, in.BranchID)
		if err != nil {
			return err
		}
		student = models.Student{
			UserID:    u.ID,
			BranchID:  branch.ID,
			Status:    models.StudentActive,
			TotalDebt: round2(in.TotalDebt),
			User:      *u,
		}
		if err := tx.Omit("User", "Branch").Create(&student).Error; err != nil {
			return dbErr(err, "Student profile already exists", "create student")
		}
		return s.sink.Activity(tx, actorID, "CREATE", "student", student.ID, map[string]interface{}{"user_id": u.ID})
	})
	if err != nil {
		return nil, finish("student_create", fields, err)
	}
	fields["student_id"] = student.ID
	return &student, finish("student_create", fields, nil)
}

type StudentUpdate struct {
	Status *models.StudentStatus `json:"status"`
}

func (s *DirectoryService) UpdateStudent(ctx context.Context, scope access.Scope, actorID, studentID uint, in StudentUpdate) (*models.Student, error) {
	fields := logrus.Fields{"actor_id": actorID, "student_id": studentID}
	if in.Status != nil {
		switch *in.Status {
		case models.StudentActive, models.StudentInactive, models.StudentGraduated:
		default:
			return nil, finish("student_update", fields, Malformedf("Invalid status"))
		}
	}
	var student models.Student
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockScoped(tx, access.EntityStudent, scope, &student, studentID); err != nil {
			return notFoundOr(err, "Student not found")
		}
		if in.Status == nil || *in.Status == student.Status {
			return nil
		}
		old := student.Status
		if err := tx.Model(&student).Update("status", *in.Status).Error; err != nil {
			return errors.Wrap(err, "update student")
		}
		student.Status = *in.Status
		return s.sink.Activity(tx, actorID, "UPDATE", "student", student.ID,
			map[string]interface{}{"old_status": old, "new_status": student.Status})
	})
	if err != nil {
		return nil, finish("student_update", fields, err)
	}
	return &student, finish("student_update", fields, nil)
}

type TeacherInput struct {
	AccountInput
	BranchID   uint    `json:"branch_id" validate:"required"`
	HourlyRate float64 `json:"hourly_rate" validate:"gte=0"`
	GroupRate  float64 `json:"group_rate" validate:"gte=0"`
}

// CreateTeacher opens a teacher account with an empty wallet.
func (s *DirectoryService) CreateTeacher(ctx context.Context, scope access.Scope, actorID uint, in TeacherInput) (*models.Teacher, error) {
	fields := logrus.Fields{"actor_id": actorID, "branch_id": in.BranchID}
	if in.HourlyRate < 0 || in.GroupRate < 0 {
		return nil, finish("teacher_create", fields, Malformedf("Rates cannot be negative"))
	}
	var teacher models.Teacher
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, branch, err := openAccount(tx, scope, in.AccountInput, models.RoleTeacher, in.BranchID)
		if err != nil {
			return err
		}
		teacher = models.Teacher{
			UserID:     u.ID,
			BranchID:   branch.ID,
			HourlyRate: round2(in.HourlyRate),
			GroupRate:  round2(in.GroupRate),
			User:       *u,
		}
		if err := tx.Omit("User", "Branch").Create(&teacher).Error; err != nil {
			return dbErr(err, "Teacher profile already exists", "create teacher")
		}
		if err := tx.Create(&models.Wallet{TeacherID: teacher.ID}).Error; err != nil {
			return dbErr(err, "Wallet already exists", "create wallet")
		}
		return s.sink.Activity(tx, actorID, "CREATE", "teacher", teacher.ID, map[string]interface{}{"user_id": u.ID})
	})
	if err != nil {
		return nil, finish("teacher_create", fields, err)
	}
	fields["teacher_id"] = teacher.ID
	return &teacher, finish("teacher_create", fields, nil)
}

type TeacherUpdate struct {
	HourlyRate        *float64 `json:"hourly_rate" validate:"omitempty,gte=0"`
	GroupRate         *float64 `json:"group_rate" validate:"omitempty,gte=0"`
	PerformanceRating *float64 `json:"performance_rating" validate:"omitempty,gte=0,lte=5"`
}

func (s *DirectoryService) UpdateTeacher(ctx context.Context, scope access.Scope, actorID, teacherID uint, in TeacherUpdate) (*models.Teacher, error) {
	fields := logrus.Fields{"actor_id": actorID, "teacher_id": teacherID}
	updates := map[string]interface{}{}
	if in.HourlyRate != nil {
		if *in.HourlyRate < 0 {
			return nil, finish("teacher_update", fields, Malformedf("Rates cannot be negative"))
		}
		updates["hourly_rate"] = round2(*in.HourlyRate)
	}
	if in.GroupRate != nil {
		if *in.GroupRate < 0 {
			return nil, finish("teacher_update", fields, Malformedf("Rates cannot be negative"))
		}
		updates["group_rate"] = round2(*in.GroupRate)
	}
	if in.PerformanceRating != nil {
		if *in.PerformanceRating < 0 || *in.PerformanceRating > 5 {
			return nil, finish("teacher_update", fields, Malformedf("Rating must be between 0 and 5"))
		}
		updates["performance_rating"] = *in.PerformanceRating
	}

	var teacher models.Teacher
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockScoped(tx, access.EntityTeacher, scope, &teacher, teacherID); err != nil {
			return notFoundOr(err, "Teacher not found")
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&teacher).Updates(updates).Error; err != nil {
			return errors.Wrap(err, "update teacher")
		}
		return s.sink.Activity(tx, actorID, "UPDATE", "teacher", teacher.ID, updates)
	})
	if err != nil {
		return nil, finish("teacher_update", fields, err)
	}
	return &teacher, finish("teacher_update", fields, nil)
}
