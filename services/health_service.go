package services

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"educenter_go/database"
	"educenter_go/models"
	"educenter_go/services/notifications"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusDown     = "down"

	checkUp       = "up"
	checkDown     = "down"
	checkDisabled = "disabled"

	healthTimeout = 1500 * time.Millisecond
)

// HealthOptions describes the running instance. Clients, when set, reports the
// number of live websocket connections.
type HealthOptions struct {
	Service       string
	Version       string
	Environment   string
	RedisRequired bool
	Clients       func() int
}

type HealthService struct {
	db      *gorm.DB
	rdb     *redis.Client
	opts    HealthOptions
	started time.Time
}

type HealthReport struct {
	Status      string      `json:"status"`
	Service     string      `json:"service"`
	Version     string      `json:"version"`
	Environment string      `json:"environment"`
	CheckedAt   time.Time   `json:"checked_at"`
	Uptime      string      `json:"uptime"`
	Checks      []Check     `json:"checks"`
	Backlog     *Backlog    `json:"backlog,omitempty"`
	Runtime     RuntimeInfo `json:"runtime"`
}

// Check is the result of probing one dependency.
type Check struct {
	Name      string                 `json:"name"`
	State     string                 `json:"state"`
	LatencyMs int64                  `json:"latency_ms"`
	Error     string                 `json:"error,omitempty"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
}

// Backlog counts work waiting on a person or a background job.
type Backlog struct {
	PendingDocuments       int64 `json:"pending_documents"`
	PendingStudentPayments int64 `json:"pending_student_payments"`
	PendingTeacherPayments int64 `json:"pending_teacher_payments"`
	QueuedNotifications    int64 `json:"queued_notifications"`
	CachedActivityLogs     int64 `json:"cached_activity_logs"`
}

type RuntimeInfo struct {
	GoVersion   string `json:"go_version"`
	Goroutines  int    `json:"goroutines"`
	HeapBytes   uint64 `json:"heap_bytes"`
	OpenDBConns int    `json:"open_db_conns"`
	LiveSockets int    `json:"live_sockets"`
}

// NewHealthService reports on db and rdb. Either may be nil.
func NewHealthService(db *gorm.DB, rdb *redis.Client, opts HealthOptions) *HealthService {
	if strings.TrimSpace(opts.Service) == "" {
		opts.Service = "EduCenter API"
	}
	if strings.TrimSpace(opts.Environment) == "" {
		opts.Environment = "unknown"
	}
	return &HealthService{db: db, rdb: rdb, opts: opts, started: time.Now()}
}

// Report probes every dependency. The database being down makes the whole
// service down; a required Redis being down only degrades it.
func (s *HealthService) Report(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	r := HealthReport{
		Status:      StatusOK,
		Service:     s.opts.Service,
		Version:     s.opts.Version,
		Environment: s.opts.Environment,
		CheckedAt:   time.Now().UTC(),
		Uptime:      formatUptime(time.Since(s.started)),
	}

	dbCheck := s.probeDatabase(ctx)
	if dbCheck.State != checkUp {
		r.Status = StatusDown
	}
	redisCheck := s.probeRedis(ctx)
	if redisCheck.State == checkDown && s.opts.RedisRequired {
		r.Status = worse(r.Status, StatusDegraded)
	}
	r.Checks = []Check{dbCheck, redisCheck}

	if dbCheck.State == checkUp {
		r.Backlog = s.backlog(ctx, redisCheck.State == checkUp)
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	r.Runtime = RuntimeInfo{
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		HeapBytes:  mem.HeapAlloc,
	}
	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			r.Runtime.OpenDBConns = sqlDB.Stats().OpenConnections
		}
	}
	if s.opts.Clients != nil {
		r.Runtime.LiveSockets = s.opts.Clients()
	}
	return r
}

// HTTPStatus is 503 only when the service is down.
func HTTPStatus(status string) int {
	if status == StatusDown {
		return 503
	}
	return 200
}

func (s *HealthService) probeDatabase(ctx context.Context) Check {
	c := Check{Name: "database"}
	if s.db == nil {
		c.State, c.Error = checkDown, "not connected"
		return c
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		c.State, c.Error = checkDown, err.Error()
		return c
	}

	start := time.Now()
	err = sqlDB.PingContext(ctx)
	c.LatencyMs = time.Since(start).Milliseconds()
	c.Detail = map[string]interface{}{"dialect": s.db.Dialector.Name()}
	if err != nil {
		c.State, c.Error = checkDown, err.Error()
		return c
	}
	c.State = checkUp
	return c
}

func (s *HealthService) probeRedis(ctx context.Context) Check {
	c := Check{Name: "redis"}
	if s.rdb == nil {
		c.State = checkDisabled
		if s.opts.RedisRequired {
			c.State, c.Error = checkDown, "not connected"
		}
		return c
	}

	start := time.Now()
	err := s.rdb.Ping(ctx).Err()
	c.LatencyMs = time.Since(start).Milliseconds()
	c.Detail = map[string]interface{}{"addr": s.rdb.Options().Addr}
	if err != nil {
		c.State, c.Error = checkDown, err.Error()
		return c
	}
	c.State = checkUp
	return c
}

func (s *HealthService) backlog(ctx context.Context, withRedis bool) *Backlog {
	b := &Backlog{}
	db := s.db.WithContext(ctx)
	db.Model(&models.DocumentApproval{}).Where("status = ?", models.ApprovalPending).Count(&b.PendingDocuments)
	db.Model(&models.StudentPayment{}).Where("status = ?", models.PaymentPending).Count(&b.PendingStudentPayments)
	db.Model(&models.TeacherPayment{}).Where("status = ?", models.PaymentPending).Count(&b.PendingTeacherPayments)

	if withRedis {
		b.QueuedNotifications, _ = s.rdb.LLen(ctx, notifications.QueueKey).Result()
		b.CachedActivityLogs, _ = s.rdb.ZCard(ctx, database.LogQueueKey).Result()
	}
	return b
}

func worse(a, b string) string {
	rank := map[string]int{StatusOK: 0, StatusDegraded: 1, StatusDown: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// formatUptime renders d as "2d 3h 4m", dropping seconds once a day has passed.
func formatUptime(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	d = d.Truncate(time.Second)
	days := int(d / (24 * time.Hour))
	rest := d % (24 * time.Hour)

	var b strings.Builder
	if days > 0 {
		fmt.Fprintf(&b, "%dd ", days)
		rest = rest.Truncate(time.Minute)
	}
	if h := int(rest / time.Hour); h > 0 {
		fmt.Fprintf(&b, "%dh ", h)
	}
	if m := int(rest % time.Hour / time.Minute); m > 0 {
		fmt.Fprintf(&b, "%dm ", m)
	}
	if sec := int(rest % time.Minute / time.Second); sec > 0 {
		fmt.Fprintf(&b, "%ds ", sec)
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "0s"
	}
	return out
}
