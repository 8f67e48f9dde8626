package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"educenter_go/database"
	"educenter_go/models"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const (
	requestIDHeader = "X-Request-ID"
	logCacheTTL     = 24 * time.Hour
)

// RequestID makes sure every request carries an X-Request-ID.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals("request_id", id)
		c.Set(requestIDHeader, id)
		return c.Next()
	}
}

func requestIDOf(c *fiber.Ctx) string {
	if id, ok := c.Locals("request_id").(string); ok {
		return id
	}
	return c.Get(requestIDHeader)
}

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		entry := logrus.WithFields(logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     status,
			"duration":   time.Since(start).String(),
			"ip":         c.IP(),
			"user_agent": c.Get("User-Agent"),
			"request_id": requestIDOf(c),
		})
		if status >= fiber.StatusInternalServerError {
			entry.Warn("HTTP Request")
		} else {
			entry.Info("HTTP Request")
		}

		return err
	}
}

// LogActivity records an activity row for the current user. Rows go to the
// Redis cache first and fall back to the database.
func LogActivity(c *fiber.Ctx, action, resource string, resourceID uint, details interface{}) {
	var userID uint
	if user, err := GetCurrentUser(c); err == nil {
		userID = user.ID
	}

	activityLog := models.ActivityLog{
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		IPAddress:  c.IP(),
		UserAgent:  c.Get("User-Agent"),
	}
	activityLog.CreatedAt = time.Now()

	meta := map[string]interface{}{
		"original_details": details,
		"integrity_hash":   integrityHash(activityLog),
		"request_id":       requestIDOf(c),
		"forwarded_for":    c.Get("X-Forwarded-For"),
		"method":           c.Method(),
		"path":             c.Path(),
		"query":            string(c.Request().URI().QueryString()),
		"status_code":      c.Response().StatusCode(),
	}
	if b, err := json.Marshal(meta); err == nil {
		activityLog.Details = datatypes.JSON(b)
	}

	go func(al models.ActivityLog) {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("panic", r).Error("panic recovered in LogActivity goroutine")
			}
		}()
		if err := cacheActivityLog(context.Background(), database.GetRedisClient(), al); err != nil {
			logrus.WithError(err).Debug("activity log cache unavailable, writing to database")
			if database.DB == nil {
				logrus.Error("database.DB is nil; cannot save activity log")
				return
			}
			if dbErr := database.DB.Create(&al).Error; dbErr != nil {
				logrus.WithError(dbErr).Error("Failed to save activity log to database")
			}
		}
	}(activityLog)
}

// integrityHash fingerprints the immutable fields of a log row.
func integrityHash(log models.ActivityLog) string {
	data := fmt.Sprintf("%d:%s:%s:%d:%s:%s:%s",
		log.UserID,
		log.Action,
		log.Resource,
		log.ResourceID,
		log.IPAddress,
		log.UserAgent,
		log.CreatedAt.UTC().Format(time.RFC3339),
	)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// cacheActivityLog stores the row under its own key and queues the key in
// database.LogQueueKey for the flush job.
func cacheActivityLog(ctx context.Context, rdb *redis.Client, log models.ActivityLog) error {
	if rdb == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to marshal log: %w", err)
	}

	key := fmt.Sprintf("log:%d:%s:%d", log.UserID, log.Action, log.CreatedAt.UnixNano())
	pipe := rdb.TxPipeline()
	pipe.Set(ctx, key, data, logCacheTTL)
	pipe.ZAdd(ctx, database.LogQueueKey, &redis.Z{Score: float64(log.CreatedAt.Unix()), Member: key})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache log: %w", err)
	}
	return nil
}

// LogActivityMiddleware logs successful mutating requests.
func LogActivityMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodGet || strings.Contains(c.Path(), "/auth/") {
			return c.Next()
		}

		err := c.Next()

		var action string
		switch c.Method() {
		case fiber.MethodPost:
			action = "CREATE"
		case fiber.MethodPut, fiber.MethodPatch:
			action = "UPDATE"
		case fiber.MethodDelete:
			action = "DELETE"
		default:
			return err
		}

		// /api/<resource>/...
		var resource string
		if parts := strings.Split(strings.Trim(c.Path(), "/"), "/"); len(parts) >= 2 {
			resource = parts[1]
		}

		var resourceID uint
		if id, perr := strconv.ParseUint(c.Params("id"), 10, 64); perr == nil {
			resourceID = uint(id)
		}

		if err == nil && c.Response().StatusCode() < fiber.StatusBadRequest {
			LogActivity(c, action, resource, resourceID, nil)
		}
		return err
	}
}
