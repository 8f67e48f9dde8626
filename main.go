package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"educenter_go/config"
	"educenter_go/database"
	"educenter_go/database/seeders"
	"educenter_go/middleware"
	"educenter_go/routes"
	"educenter_go/services"
	"educenter_go/services/audit"
	"educenter_go/services/line"
	"educenter_go/services/notifications"
	"educenter_go/services/websocket"
	"educenter_go/storage"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"
	"github.com/rollbar/rollbar-go"
	"github.com/sirupsen/logrus"
)

const (
	serviceName = "EduCenter API"
	version     = "1.0.0"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig
	setupLogging(cfg)
	setupRollbar(cfg)
	defer rollbar.Close()

	database.Connect()
	defer database.Close()
	db := database.GetDB()
	rdb := database.GetRedisClient()

	if len(os.Args) > 1 && os.Args[1] == "seed" {
		if err := seeders.SeedAll(db); err != nil {
			logrus.WithError(err).Fatal("seeding failed")
		}
		return
	}

	wsHub := websocket.NewHub()
	go wsHub.Run()

	var mailer notifications.Mailer
	if cfg.SendGridAPIKey != "" {
		mailer = notifications.NewSendGridMailer(cfg.SendGridAPIKey, cfg.MailFrom)
	}
	var queue *redis.Client
	if cfg.UseRedisNotifications {
		queue = rdb
	}
	notifService := notifications.New(db, queue, wsHub, mailer)
	stopNotif := make(chan struct{})
	notifService.StartWorker(stopNotif)

	messenger := line.NewMessenger(cfg.LineChannelSecret, cfg.LineChannelToken)
	if !messenger.Enabled() {
		logrus.Warn("LINE integration disabled: missing channel secret or token")
	}
	sink := audit.NewSink(audit.NewBranchPublisher(db, notifService, messenger))

	finance := services.NewFinanceService(db, sink)
	deps := routes.Deps{
		DB:            db,
		Hub:           wsHub,
		Notifications: notifService,
		Line:          messenger,
		LineSecret:    messenger.Secret(),
		Health:        services.NewHealthService(db, rdb, services.HealthOptions{
			Service:       serviceName,
			Version:       version,
			Environment:   cfg.AppEnv,
			RedisRequired: cfg.UseRedisNotifications,
			Clients:       wsHub.GetClientCount,
		}),
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
		EnableMetrics: cfg.EnableMetrics,
	}

	if cfg.S3BucketName != "" {
		store, err := storage.NewStorageService(cfg)
		if err != nil {
			logrus.WithError(err).Warn("document uploads disabled")
		} else {
			deps.Uploader = store
		}

		archiveStore, err := services.NewS3ArchiveStore(context.Background(), cfg.AWSRegion, cfg.S3BucketName)
		if err != nil {
			logrus.WithError(err).Warn("log archiving disabled")
		} else {
			deps.Archives = services.NewLogArchiveService(db, rdb, archiveStore)
		}
	}

	scheduler := startScheduler(cfg, deps, services.NewLessonReminder(db, notifService))

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    int(cfg.MaxFileSize),
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: cfg.AppEnv == "development"}))
	app.Use(middleware.RequestID())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID",
	}))
	if cfg.EnableMetrics {
		app.Use(middleware.MetricsMiddleware())
	}
	app.Use(middleware.LoggerMiddleware())

	routes.SetupRoutes(app, deps)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":  "Route not found",
			"path":   c.Path(),
			"method": c.Method(),
		})
	})

	go func() {
		logrus.WithFields(logrus.Fields{
			"port":    cfg.Port,
			"env":     cfg.AppEnv,
			"version": version,
			"db":      cfg.DBDriver,
		}).Info("server starting")
		if err := app.Listen(":" + cfg.Port); err != nil {
			logrus.WithError(err).Fatal("failed to start server")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logrus.Info("shutting down")
	wsHub.Broadcast(websocket.Message{Type: "server_shutdown"})
	<-scheduler.Stop().Done()
	close(stopNotif)
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logrus.WithError(err).Error("shutdown")
	}
}

// startScheduler registers the periodic jobs. An empty expression disables
// a job.
func startScheduler(cfg *config.Config, d routes.Deps, reminders *services.LessonReminder) *cron.Cron {
	c := cron.New()
	add := func(name, expr string, job func()) {
		if expr == "" {
			return
		}
		if _, err := c.AddFunc(expr, job); err != nil {
			logrus.WithError(err).WithField("job", name).Error("invalid cron expression")
			return
		}
		logrus.WithFields(logrus.Fields{"job": name, "schedule": expr}).Info("scheduled job")
	}

	if d.Archives != nil {
		add("log-maintenance", cfg.CronLogMaintenance, func() {
			d.Archives.RunMaintenance(context.Background())
		})
	}
	add("wallet-recompute", cfg.CronWalletRecompute, func() {
		n, err := d.Finance.RecomputeAllWallets(context.Background())
		if err != nil {
			logrus.WithError(err).Error("wallet recompute failed")
			return
		}
		logrus.WithField("wallets", n).Info("wallets recomputed")
	})
	add("line-group-match", cfg.CronLineGroupMatch, func() {
		n, err := line.NewMatcher(d.DB).MatchBranches()
		if err != nil {
			logrus.WithError(err).Error("LINE group matching failed")
			return
		}
		if n > 0 {
			logrus.WithField("matched", n).Info("LINE groups matched to branches")
		}
	})

	add("lesson-reminders", cfg.CronLessonReminders, func() {
		reminders.Run(context.Background())
	})
	add("payment-due", cfg.CronPaymentDue, func() {
		if _, err := d.Finance.RemindDebtors(context.Background()); err != nil {
			logrus.WithError(err).Error("payment due reminders failed")
		}
	})

	c.Start()
	return c
}

func setupLogging(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.AppEnv == "development" || cfg.LogFile == "" {
		logrus.SetOutput(os.Stdout)
		return
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		logrus.WithError(err).Warn("could not create log directory, logging to stdout")
		return
	}
	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		logrus.WithError(err).Warn("could not open log file, logging to stdout")
		return
	}
	logrus.SetOutput(file)
}

func setupRollbar(cfg *config.Config) {
	rollbar.SetEnabled(cfg.RollbarToken != "")
	if cfg.RollbarToken == "" {
		return
	}
	rollbar.SetToken(cfg.RollbarToken)
	rollbar.SetEnvironment(cfg.AppEnv)
	rollbar.SetCodeVersion(version)
	rollbar.SetServerRoot("educenter_go")
}

// customErrorHandler handles errors returned past the controllers. Server
// errors are reported to Rollbar.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	fields := logrus.Fields{
		"error":      err.Error(),
		"path":       c.Path(),
		"method":     c.Method(),
		"ip":         c.IP(),
		"status":     code,
		"request_id": c.Locals("request_id"),
	}
	if code >= fiber.StatusInternalServerError {
		logrus.WithFields(fields).Error("request error")
		rollbar.Error(err, map[string]interface{}{"path": c.Path(), "method": c.Method()})
	} else {
		logrus.WithFields(fields).Debug("request error")
	}

	return c.Status(code).JSON(fiber.Map{
		"error":  message,
		"code":   code,
		"path":   c.Path(),
		"method": c.Method(),
	})
}
