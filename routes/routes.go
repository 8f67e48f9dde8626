package routes

import (
	"educenter_go/controllers"
	"educenter_go/handlers"
	"educenter_go/middleware"
	"educenter_go/models"
	"educenter_go/services"
	"educenter_go/services/access"
	"educenter_go/services/notifications"
	"educenter_go/services/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Deps carries everything the route table hands to controllers. Uploader,
// Line and Archives may be nil when the backing service is not configured.
type Deps struct {
	DB            *gorm.DB
	Hub           *websocket.Hub
	Notifications *notifications.Service
	Uploader      controllers.Uploader
	Line          handlers.GroupDirectory
	LineSecret    string
	Health        *services.HealthService
	Archives      *services.LogArchiveService

	Attendance *services.AttendanceService
	Approvals  *services.ApprovalService
	Finance    *services.FinanceService
	Enrollment *services.EnrollmentService
	Loyalty    *services.LoyaltyService
	Exams      *services.ExamService
	Admin      *services.AdminService
	Reports    *services.ReportService
	Directory  *services.DirectoryService
	Schedule   *services.ScheduleService
	Statistics *services.StatisticsService

	EnableMetrics bool
}

func guard(set access.RoleSet) fiber.Handler {
	return middleware.RequireRole(set...)
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, d Deps) {
	authController := controllers.NewAuthController(d.DB)
	resourceController := controllers.NewResourceController(d.DB)
	attendanceController := controllers.NewAttendanceController(d.Attendance, d.Reports)
	documentController := controllers.NewDocumentController(d.Approvals, d.Uploader)
	paymentController := controllers.NewPaymentController(d.Finance)
	groupController := controllers.NewGroupController(d.Enrollment, d.Schedule)
	branchController := controllers.NewBranchController(d.Directory)
	userController := controllers.NewUserController(d.Directory)
	studentController := controllers.NewStudentController(d.Directory)
	teacherController := controllers.NewTeacherController(d.Directory, d.Statistics)
	lessonController := controllers.NewLessonController(d.Schedule)
	homeworkController := controllers.NewHomeworkController(d.Schedule, d.Statistics)
	statisticsController := controllers.NewStatisticsController(d.Statistics)
	loyaltyController := controllers.NewLoyaltyController(d.Loyalty)
	examController := controllers.NewExamController(d.Exams)
	adminController := controllers.NewAdminController(d.Admin, d.Finance, d.Reports)
	notificationController := controllers.NewNotificationController(d.DB, d.Notifications)
	logController := controllers.NewLogController(d.DB, d.Archives)
	healthController := controllers.NewHealthController(d.Health)
	wsController := controllers.NewWebSocketController(d.Hub)

	app.Get("/health", healthController.GetHealthStatus)
	if d.EnableMetrics {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}
	app.Post("/line/webhook", handlers.NewLineWebhookHandler(d.DB, d.Line, d.LineSecret).Handle)
	app.Use("/ws", wsController.Upgrade)
	app.Get("/ws", wsController.WebSocketHandler())

	api := app.Group("/api", middleware.LogActivityMiddleware())

	auth := api.Group("/auth")
	auth.Post("/login", authController.Login)
	auth.Post("/logout", middleware.JWTMiddleware(), authController.Logout)

	protected := api.Group("/", middleware.JWTMiddleware())
	protected.Get("/profile", authController.GetProfile)
	protected.Put("/profile/password", authController.ChangePassword)

	managers := guard(access.Managers)
	educators := guard(access.Educators)
	finance := guard(access.Finance)
	loyalty := guard(access.Loyalty)
	superadmin := middleware.RequireRole(models.RoleSuperadmin)

	// Branches and people
	protected.Post("/branches", managers, branchController.CreateBranch)
	protected.Put("/branches/:id", managers, branchController.UpdateBranch)
	protected.Post("/branches/:id/close", managers, branchController.CloseBranch)
	protected.Post("/users", managers, userController.CreateUser)
	protected.Put("/users/:id", managers, userController.UpdateUser)
	protected.Post("/students", managers, studentController.CreateStudent)
	protected.Put("/students/:id", managers, studentController.UpdateStudent)
	protected.Post("/teachers", managers, teacherController.CreateTeacher)
	protected.Put("/teachers/:id", managers, teacherController.UpdateTeacher)
	protected.Get("/teachers/:id/portfolio", educators, teacherController.Portfolio)
	protected.Put("/teachers/:id/portfolio", educators, teacherController.UpdatePortfolio)

	// Schedule
	protected.Post("/lessons", educators, lessonController.CreateLesson)
	protected.Put("/lessons/:id", educators, lessonController.UpdateLesson)
	protected.Post("/lessons/:id/cancel", educators, lessonController.Cancel)
	protected.Post("/lessons/:id/teacher-late", managers, lessonController.TeacherLate)
	protected.Post("/homework", educators, homeworkController.CreateHomework)
	protected.Get("/homework/summary", educators, homeworkController.Summary)
	protected.Put("/homework/:id", educators, homeworkController.UpdateHomework)

	// Attendance
	protected.Post("/attendance/submit", educators, attendanceController.Submit)
	protected.Get("/attendance/pending", educators, attendanceController.Pending)
	protected.Post("/attendance/:id/correct", educators, attendanceController.Correct)
	protected.Post("/lessons/:id/select-all-present", educators, attendanceController.SelectAllPresent)
	protected.Get("/lessons/:id/attendance/export", educators, attendanceController.Export)

	// Documents
	protected.Post("/documents", documentController.Submit)
	protected.Post("/documents/:id/approve", managers, documentController.Approve)
	protected.Post("/documents/:id/reject", managers, documentController.Reject)

	// Payments and wallets
	payments := protected.Group("/payments")
	payments.Post("/students", finance, paymentController.CreateStudentPayment)
	payments.Post("/students/:id/approve", finance, paymentController.ApproveStudentPayment)
	payments.Post("/students/:id/reject", finance, paymentController.RejectStudentPayment)
	payments.Post("/teachers", finance, paymentController.CreateTeacherPayment)
	payments.Post("/teachers/:id/approve", finance, paymentController.ApproveTeacherPayment)
	payments.Post("/teachers/:id/reject", finance, paymentController.RejectTeacherPayment)
	payments.Post("/teachers/:id/mark-paid", finance, paymentController.MarkTeacherPaymentPaid)
	payments.Post("/staff", finance, paymentController.CreateStaffPayment)
	payments.Post("/staff/:id/approve", finance, paymentController.ApproveStaffPayment)
	payments.Post("/staff/:id/reject", finance, paymentController.RejectStaffPayment)
	payments.Post("/staff/:id/mark-paid", finance, paymentController.MarkStaffPaymentPaid)
	payments.Post("/discounts", finance, paymentController.ApplyDiscount)
	protected.Post("/finance-reports", finance, paymentController.GenerateReport)
	protected.Post("/wallets/teachers/:teacher_id/recompute", finance, paymentController.RecomputeWallet)

	// Groups
	protected.Post("/groups", managers, groupController.CreateGroup)
	protected.Put("/groups/:id", managers, groupController.UpdateGroup)
	protected.Post("/groups/transfer", managers, groupController.Transfer)
	protected.Post("/groups/:id/students", managers, groupController.AddStudent)
	protected.Delete("/groups/:id/students/:student_id", managers, groupController.RemoveStudent)
	protected.Put("/groups/:id/teacher", managers, groupController.ReassignTeacher)

	// Loyalty
	protected.Post("/loyalty/branches", managers, loyaltyController.CreateBranch)
	protected.Post("/loyalty/branches/:id/toggle", managers, loyaltyController.ToggleStatus)
	protected.Get("/loyalty/branches/:id/statistics", loyalty, loyaltyController.Statistics)
	protected.Post("/loyalty/points", loyalty, loyaltyController.Enroll)
	protected.Post("/loyalty/points/:id/add", loyalty, loyaltyController.AddPoints)
	protected.Post("/loyalty/points/:id/redeem", loyalty, loyaltyController.RedeemPoints)

	// Exams
	protected.Post("/exams", educators, examController.Create)
	protected.Get("/exams/results-template", educators, examController.ResultsTemplate)
	protected.Post("/exams/:id/results/import", educators, examController.ImportResults)
	protected.Get("/exams/:id/statistics", educators, examController.Statistics)

	// Statistics
	stats := protected.Group("/statistics")
	stats.Get("/students", managers, statisticsController.Students)
	stats.Get("/teachers", managers, statisticsController.Teachers)
	stats.Get("/attendance", educators, statisticsController.Attendance)
	stats.Get("/exams", educators, statisticsController.Exams)
	stats.Get("/groups", educators, statisticsController.Groups)
	stats.Get("/finance", finance, statisticsController.Finance)
	protected.Get("/dashboard", finance, statisticsController.Dashboard)

	// Administration
	protected.Post("/students/:id/block", managers, adminController.BlockStudent)
	protected.Post("/students/:id/unblock", managers, adminController.UnblockStudent)
	protected.Get("/reports/debtors", finance, adminController.Debtors)
	protected.Post("/superadmin/organizations/:id/freeze", superadmin, adminController.FreezeOrganization)
	protected.Post("/superadmin/organizations/:id/unfreeze", superadmin, adminController.UnfreezeOrganization)

	// Notifications
	notif := protected.Group("/notifications")
	notif.Get("/", notificationController.GetNotifications)
	notif.Get("/unread-count", notificationController.GetUnreadCount)
	notif.Patch("/mark-all-read", notificationController.MarkAllAsRead)
	notif.Post("/", managers, notificationController.CreateNotification)
	notif.Get("/:id", notificationController.GetNotification)
	notif.Patch("/:id/read", notificationController.MarkAsRead)
	notif.Delete("/:id", notificationController.DeleteNotification)

	// Logs
	logs := protected.Group("/logs", managers)
	logs.Get("/", logController.GetLogs)
	if d.Archives != nil {
		logs.Post("/flush-cache", superadmin, logController.FlushCachedLogs)
		logs.Get("/archives", superadmin, logController.GetArchives)
		logs.Get("/archives/:id/download", superadmin, logController.DownloadArchive)
	}

	protected.Get("/ws/stats", managers, wsController.GetWebSocketStats)

	// Scoped read-only resources come last so the fixed paths above win.
	for _, path := range controllers.ResourcePaths() {
		if path == "superadmin/audit-logs" {
			protected.Get("/"+path, superadmin, resourceController.List(path))
			protected.Get("/"+path+"/:id", superadmin, resourceController.Get(path))
			continue
		}
		protected.Get("/"+path, resourceController.List(path))
		protected.Get("/"+path+"/:id", resourceController.Get(path))
	}
}
