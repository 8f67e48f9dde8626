package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"educenter_go/config"
	"educenter_go/database"
	"educenter_go/database/dbtest"
	"educenter_go/middleware"
	"educenter_go/models"
	"educenter_go/services"
	"educenter_go/services/audit"
	"educenter_go/services/notifications"
	"educenter_go/services/websocket"
	"educenter_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logrus.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type server struct {
	app *fiber.App
	w   *dbtest.World
}

func newServer(t *testing.T) *server {
	t.Helper()
	db := dbtest.Open(t)
	w := dbtest.Seed(t, db)

	database.DB = db
	database.RedisClient = nil
	config.AppConfig = &config.Config{JWTSecret: "test-secret", JWTExpiresIn: time.Hour, MaxFileSize: 1 << 20}

	sink := audit.NewSink(nil)
	finance := services.NewFinanceService(db, sink)
	app := fiber.New()
	SetupRoutes(app, Deps{
		DB:            db,
		Hub:           websocket.NewHub(),
		Notifications: notifications.New(db, nil, nil, nil),
		Health:        services.NewHealthService(db, nil, services.HealthOptions{Service: "test", Version: "0.0.0"}),
		Attendance:    services.NewAttendanceService(db, sink),
		Approvals:     services.NewApprovalService(db, sink),
		Finance:       finance,
		Enrollment:    services.NewEnrollmentService(db, sink),
		Loyalty:       services.NewLoyaltyService(db, sink),
		Exams:         services.NewExamService(db, sink),
		Admin:         services.NewAdminService(db, sink),
		Reports:       services.NewReportService(db, finance),
		Directory:     services.NewDirectoryService(db, sink),
		Schedule:      services.NewScheduleService(db, sink),
		Statistics:    services.NewStatisticsService(db, sink),
	})
	return &server{app: app, w: w}
}

func (s *server) token(t *testing.T, u models.User) string {
	t.Helper()
	tok, err := middleware.GenerateToken(&u)
	require.NoError(t, err)
	return tok
}

func (s *server) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func total(body map[string]interface{}) float64 {
	meta, _ := body["pagination"].(map[string]interface{})
	n, _ := meta["total"].(float64)
	return n
}

func TestLogin(t *testing.T) {
	s := newServer(t)
	db := database.DB
	hash, err := utils.HashPassword("secret")
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.User{}).Where("1 = 1").Update("password", hash).Error)

	login := func(username, password string) (int, map[string]interface{}) {
		return s.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{"username": username, "password": password})
	}

	status, body := login("director.a", "secret")
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["token"])

	status, _ = login("director.a", "wrong")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = login("nobody", "secret")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = login("", "")
	assert.Equal(t, http.StatusBadRequest, status)

	require.NoError(t, db.Model(&models.User{}).Where("id = ?", s.w.StudentA1.UserID).Update("is_blocked", true).Error)
	status, body = login("student.a1", "secret")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "User account is blocked", body["error"])

	require.NoError(t, db.Model(&models.Organization{}).Where("id = ?", s.w.Org.ID).Update("status", models.OrganizationFrozen).Error)
	status, body = login("admin.org", "secret")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Organization is frozen", body["error"])

	// superadmin belongs to no organization
	status, _ = login("root", "secret")
	assert.Equal(t, http.StatusOK, status)
}

func TestAuthentication(t *testing.T) {
	s := newServer(t)

	status, _ := s.do(t, http.MethodGet, "/api/students", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(t, http.MethodGet, "/api/students", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	tok := s.token(t, s.w.DirectorA)
	status, body := s.do(t, http.MethodGet, "/api/profile", tok, nil)
	require.Equal(t, http.StatusOK, status)
	scope := body["scope"].(map[string]interface{})
	assert.Equal(t, "branch", scope["kind"])

	// a token issued before the account was blocked stops working
	student := s.token(t, s.w.StudentA1.User)
	require.NoError(t, database.DB.Model(&models.User{}).Where("id = ?", s.w.StudentA1.UserID).Update("is_blocked", true).Error)
	status, _ = s.do(t, http.MethodGet, "/api/profile", student, nil)
	assert.Equal(t, http.StatusForbidden, status)

	// revocation needs Redis
	status, _ = s.do(t, http.MethodPost, "/api/auth/logout", tok, nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestScopedResources(t *testing.T) {
	s := newServer(t)
	root := s.token(t, s.w.Superadmin)
	director := s.token(t, s.w.DirectorA)
	teacher := s.token(t, s.w.TeacherA.User)

	status, body := s.do(t, http.MethodGet, "/api/students", root, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(5), total(body))

	status, body = s.do(t, http.MethodGet, "/api/students", director, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(3), total(body))

	status, body = s.do(t, http.MethodGet, "/api/students?per_page=2&page=2", director, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, _ = s.do(t, http.MethodGet, fmt.Sprintf("/api/students/%d", s.w.StudentB1.ID), director, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(t, http.MethodGet, fmt.Sprintf("/api/students/%d", s.w.StudentA1.ID), director, nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = s.do(t, http.MethodGet, "/api/groups", teacher, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), total(body))

	status, _ = s.do(t, http.MethodGet, "/api/superadmin/audit-logs", director, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = s.do(t, http.MethodGet, "/api/attendance/pending", director, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestWorkflowErrors(t *testing.T) {
	s := newServer(t)
	root := s.token(t, s.w.Superadmin)
	director := s.token(t, s.w.DirectorA)
	teacher := s.token(t, s.w.TeacherA.User)

	block := fmt.Sprintf("/api/students/%d/block", s.w.StudentA1.ID)
	status, body := s.do(t, http.MethodPost, block, root, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["data"].(map[string]interface{})["is_blocked"])

	status, _ = s.do(t, http.MethodPost, block, root, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodPost, "/api/students/99999/block", root, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(t, http.MethodPost, "/api/students/abc/block", root, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = s.do(t, http.MethodPost, fmt.Sprintf("/api/superadmin/organizations/%d/freeze", s.w.Org.ID), director, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Insufficient permissions", body["error"])

	status, _ = s.do(t, http.MethodPost, block, teacher, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = s.do(t, http.MethodPost, "/api/attendance/submit", teacher, "{not json")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid request body", body["error"])
}

func TestSelectAllPresentRoute(t *testing.T) {
	s := newServer(t)
	teacher := s.token(t, s.w.TeacherA.User)
	path := fmt.Sprintf("/api/lessons/%d/select-all-present", s.w.LessonA.ID)

	status, body := s.do(t, http.MethodPost, path, teacher, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, float64(2), body["marked"])
	assert.NotContains(t, body, "created")

	status, _ = s.do(t, http.MethodPost, fmt.Sprintf("/api/lessons/%d/select-all-present", s.w.LessonB.ID), teacher, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDirectoryRoutes(t *testing.T) {
	s := newServer(t)
	director := s.token(t, s.w.DirectorA)
	teacher := s.token(t, s.w.TeacherA.User)

	student := fiber.Map{"username": "student.api", "password": "secret1", "branch_id": s.w.BranchA.ID}
	status, body := s.do(t, http.MethodPost, "/api/students", director, student)
	require.Equal(t, http.StatusCreated, status, body)
	created := body["data"].(map[string]interface{})
	assert.Equal(t, "active", created["status"])

	status, body = s.do(t, http.MethodGet, "/api/students", director, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(4), total(body))

	status, _ = s.do(t, http.MethodPost, "/api/students", director, student)
	assert.Equal(t, http.StatusConflict, status)

	student["username"] = "student.api2"
	status, _ = s.do(t, http.MethodPost, "/api/students", teacher, student)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = s.do(t, http.MethodPut, fmt.Sprintf("/api/teachers/%d", s.w.TeacherB.ID), director, fiber.Map{"hourly_rate": 30})
	assert.Equal(t, http.StatusNotFound, status)

	status, body = s.do(t, http.MethodPost, fmt.Sprintf("/api/branches/%d/close", s.w.BranchA.ID), director, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, false, body["data"].(map[string]interface{})["status"])
}

func TestLessonRoutes(t *testing.T) {
	s := newServer(t)
	director := s.token(t, s.w.DirectorA)
	teacher := s.token(t, s.w.TeacherA.User)
	other := s.token(t, s.w.TeacherB.User)
	cancel := fmt.Sprintf("/api/lessons/%d/cancel", s.w.LessonA.ID)

	status, _ := s.do(t, http.MethodPost, cancel, other, fiber.Map{"reason": "not mine"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(t, http.MethodPost, cancel, teacher, fiber.Map{"reason": " "})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := s.do(t, http.MethodPost, cancel, teacher, fiber.Map{"reason": "flooded room"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["data"].(map[string]interface{})["is_cancelled"])
	assert.Equal(t, string(models.AlertLessonCancelled), body["alert"].(map[string]interface{})["alert_type"])

	status, body = s.do(t, http.MethodGet, "/api/alerts", director, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), total(body))

	late := fmt.Sprintf("/api/lessons/%d/teacher-late", s.w.LessonA.ID)
	status, _ = s.do(t, http.MethodPost, late, teacher, fiber.Map{"minutes": 10})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = s.do(t, http.MethodGet, "/api/homework/summary", teacher, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestStatisticsRoutes(t *testing.T) {
	s := newServer(t)
	root := s.token(t, s.w.Superadmin)
	director := s.token(t, s.w.DirectorA)
	teacher := s.token(t, s.w.TeacherA.User)

	status, body := s.do(t, http.MethodGet, "/api/statistics/students", director, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(3), body["data"].(map[string]interface{})["total"])

	_, body = s.do(t, http.MethodGet, "/api/statistics/students", root, nil)
	assert.Equal(t, float64(5), body["data"].(map[string]interface{})["total"])

	status, _ = s.do(t, http.MethodGet, "/api/statistics/students", teacher, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = s.do(t, http.MethodGet, "/api/statistics/groups", teacher, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["total"])

	status, _ = s.do(t, http.MethodGet, "/api/statistics/attendance?days=0", director, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = s.do(t, http.MethodGet, "/api/dashboard?months=2", director, nil)
	require.Equal(t, http.StatusOK, status, body)
	dash := body["data"].(map[string]interface{})
	assert.Equal(t, float64(3), dash["overview"].(map[string]interface{})["active_students"])
	assert.Len(t, dash["monthly_trends"], 2)

	status, _ = s.do(t, http.MethodGet, "/api/dashboard", teacher, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = s.do(t, http.MethodPost, "/api/finance-reports", director, fiber.Map{
		"branch_id":   s.w.BranchA.ID,
		"date":        time.Now().Format("2006-01-02"),
		"report_type": "daily",
	})
	require.Equal(t, http.StatusOK, status, body)
	status, body = s.do(t, http.MethodGet, "/api/finance-reports", director, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), total(body))
}

func TestNotifications(t *testing.T) {
	s := newServer(t)
	root := s.token(t, s.w.Superadmin)
	director := s.token(t, s.w.DirectorA)

	status, body := s.do(t, http.MethodPost, "/api/notifications", root, fiber.Map{
		"user_ids": []uint{s.w.DirectorA.ID},
		"title":    "Timetable",
		"message":  "Rooms change next week",
	})
	require.Equal(t, http.StatusCreated, status, body)

	status, body = s.do(t, http.MethodGet, "/api/notifications/unread-count", director, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["unread_count"])

	status, body = s.do(t, http.MethodGet, "/api/notifications", director, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["data"], 1)

	status, _ = s.do(t, http.MethodPatch, "/api/notifications/mark-all-read", director, nil)
	require.Equal(t, http.StatusOK, status)
	_, body = s.do(t, http.MethodGet, "/api/notifications/unread-count", director, nil)
	assert.Equal(t, float64(0), body["unread_count"])

	// recipients outside the sender's branch are refused
	status, _ = s.do(t, http.MethodPost, "/api/notifications", director, fiber.Map{
		"user_ids": []uint{s.w.StudentC1.UserID},
		"title":    "Hello",
		"message":  "Hi",
	})
	assert.Equal(t, http.StatusForbidden, status)
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	status, body := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}
