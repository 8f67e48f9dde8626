package controllers

import (
	"sort"

	"educenter_go/models"
	"educenter_go/services/access"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// resource describes one read-only, scope-filtered collection.
type resource struct {
	entity  access.Entity
	label   string
	newList func() interface{}
	newItem func() interface{}
	preload []string
	order   string
}

var resources = map[string]resource{
	"organizations": {entity: access.EntityOrganization, label: "Organization",
		newList: func() interface{} { return &[]models.Organization{} }, newItem: func() interface{} { return &models.Organization{} }},
	"branches": {entity: access.EntityBranch, label: "Branch",
		newList: func() interface{} { return &[]models.Branch{} }, newItem: func() interface{} { return &models.Branch{} }},
	"users": {entity: access.EntityUser, label: "User",
		newList: func() interface{} { return &[]models.User{} }, newItem: func() interface{} { return &models.User{} }},
	"students": {entity: access.EntityStudent, label: "Student", preload: []string{"User"},
		newList: func() interface{} { return &[]models.Student{} }, newItem: func() interface{} { return &models.Student{} }},
	"teachers": {entity: access.EntityTeacher, label: "Teacher", preload: []string{"User"},
		newList: func() interface{} { return &[]models.Teacher{} }, newItem: func() interface{} { return &models.Teacher{} }},
	"groups": {entity: access.EntityGroup, label: "Group", preload: []string{"Teacher.User"},
		newList: func() interface{} { return &[]models.Group{} }, newItem: func() interface{} { return &models.Group{} }},
	"lessons": {entity: access.EntityLesson, label: "Lesson", order: "lessons.start_time DESC",
		newList: func() interface{} { return &[]models.Lesson{} }, newItem: func() interface{} { return &models.Lesson{} }},
	"attendance": {entity: access.EntityAttendance, label: "Attendance",
		newList: func() interface{} { return &[]models.Attendance{} }, newItem: func() interface{} { return &models.Attendance{} }},
	"attendance-corrections": {entity: access.EntityAttendanceCorrection, label: "Attendance correction",
		newList: func() interface{} { return &[]models.AttendanceCorrection{} }, newItem: func() interface{} { return &models.AttendanceCorrection{} }},
	"exams": {entity: access.EntityExam, label: "Exam",
		newList: func() interface{} { return &[]models.Exam{} }, newItem: func() interface{} { return &models.Exam{} }},
	"exam-results": {entity: access.EntityExamResult, label: "Exam result",
		newList: func() interface{} { return &[]models.ExamResult{} }, newItem: func() interface{} { return &models.ExamResult{} }},
	"payments/students": {entity: access.EntityStudentPayment, label: "Payment",
		newList: func() interface{} { return &[]models.StudentPayment{} }, newItem: func() interface{} { return &models.StudentPayment{} }},
	"payments/teachers": {entity: access.EntityTeacherPayment, label: "Payment",
		newList: func() interface{} { return &[]models.TeacherPayment{} }, newItem: func() interface{} { return &models.TeacherPayment{} }},
	"payments/staff": {entity: access.EntityStaffPayment, label: "Payment",
		newList: func() interface{} { return &[]models.StaffPayment{} }, newItem: func() interface{} { return &models.StaffPayment{} }},
	"payments/discounts": {entity: access.EntityPaymentDiscount, label: "Discount", order: "payment_discounts.created_at DESC",
		newList: func() interface{} { return &[]models.PaymentDiscount{} }, newItem: func() interface{} { return &models.PaymentDiscount{} }},
	"finance-reports": {entity: access.EntityFinanceReport, label: "Finance report", order: "finance_reports.report_date DESC",
		newList: func() interface{} { return &[]models.FinanceReport{} }, newItem: func() interface{} { return &models.FinanceReport{} }},
	"wallets": {entity: access.EntityWallet, label: "Wallet",
		newList: func() interface{} { return &[]models.Wallet{} }, newItem: func() interface{} { return &models.Wallet{} }},
	"loyalty/branches": {entity: access.EntityLoyaltyBranch, label: "Loyalty program",
		newList: func() interface{} { return &[]models.LoyaltyBranch{} }, newItem: func() interface{} { return &models.LoyaltyBranch{} }},
	"loyalty/points": {entity: access.EntityLoyaltyPoint, label: "Loyalty points",
		newList: func() interface{} { return &[]models.LoyaltyPoint{} }, newItem: func() interface{} { return &models.LoyaltyPoint{} }},
	"documents": {entity: access.EntityDocument, label: "Document",
		newList: func() interface{} { return &[]models.DocumentApproval{} }, newItem: func() interface{} { return &models.DocumentApproval{} }},
	"alerts": {entity: access.EntityAlert, label: "Alert", order: "notification_alerts.created_at DESC",
		newList: func() interface{} { return &[]models.NotificationAlert{} }, newItem: func() interface{} { return &models.NotificationAlert{} }},
	"homework": {entity: access.EntityHomework, label: "Homework",
		newList: func() interface{} { return &[]models.Homework{} }, newItem: func() interface{} { return &models.Homework{} }},
	"superadmin/audit-logs": {entity: access.EntitySuperadminAudit, label: "Audit log", order: "superadmin_audit_logs.timestamp DESC",
		newList: func() interface{} { return &[]models.SuperadminAuditLog{} }, newItem: func() interface{} { return &models.SuperadminAuditLog{} }},
}

// ResourcePaths lists the collections ResourceController serves.
func ResourcePaths() []string {
	paths := make([]string, 0, len(resources))
	for p := range resources {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// ResourceController serves paged lists and single rows, filtered to what
// the caller's scope may see.
type ResourceController struct {
	db *gorm.DB
}

func NewResourceController(db *gorm.DB) *ResourceController {
	return &ResourceController{db: db}
}

func mustResource(path string) resource {
	r, ok := resources[path]
	if !ok {
		panic("unknown resource " + path)
	}
	return r
}

func (r resource) orderBy() string {
	if r.order != "" {
		return r.order
	}
	return r.entity.Table() + ".id DESC"
}

// List handles GET /<path>?page=&per_page=.
func (rc *ResourceController) List(path string) fiber.Handler {
	r := mustResource(path)
	return func(c *fiber.Ctx) error {
		scope, _ := caller(c)
		page, perPage := pagination(c)
		base := func() *gorm.DB {
			return rc.db.WithContext(c.UserContext()).Model(r.newItem()).Scopes(access.Apply(r.entity, scope))
		}

		var total int64
		if err := base().Count(&total).Error; err != nil {
			return respondError(c, errors.Wrapf(err, "count %s", path))
		}

		q := base()
		for _, p := range r.preload {
			q = q.Preload(p)
		}
		list := r.newList()
		if err := q.Order(r.orderBy()).Offset((page - 1) * perPage).Limit(perPage).Find(list).Error; err != nil {
			return respondError(c, errors.Wrapf(err, "list %s", path))
		}

		return c.JSON(fiber.Map{
			"data":       list,
			"pagination": pageMeta(page, perPage, total),
		})
	}
}

// Get handles GET /<path>/:id. Rows outside scope are reported as missing.
func (rc *ResourceController) Get(path string) fiber.Handler {
	r := mustResource(path)
	return func(c *fiber.Ctx) error {
		id, ok := paramID(c, "id")
		if !ok {
			return badRequest(c, "Invalid "+r.label+" ID")
		}
		scope, _ := caller(c)

		q := rc.db.WithContext(c.UserContext())
		for _, p := range r.preload {
			q = q.Preload(p)
		}
		item := r.newItem()
		if err := access.FindScoped(q, r.entity, scope, item, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": r.label + " not found"})
			}
			return respondError(c, errors.Wrapf(err, "get %s", path))
		}
		return c.JSON(fiber.Map{"data": item})
	}
}
