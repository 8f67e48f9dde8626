package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"educenter_go/models"
	"educenter_go/utils"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Payload is the queue item stored in Redis. The DB row written by the worker is the
// source of truth; Redis only buffers.
type Payload struct {
	UserIDs   []uint    `json:"user_ids"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	Channels  []string  `json:"channels,omitempty"`
	Data      any       `json:"data,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// QueueKey is the Redis list notifications wait in when queueing is on.
const QueueKey = "notifications:queue"

// WSHub is the realtime side of delivery.
type WSHub interface {
	BroadcastToUser(userID uint, message interface{}) int
}

// Service stores notifications through the Redis queue when enabled and
// writes directly to the database otherwise.
type Service struct {
	db       *gorm.DB
	redis    *redis.Client
	useRedis bool
	wsHub    WSHub
	mailer   Mailer
}

// New builds a Service on explicit dependencies. rdb may be nil.
func New(db *gorm.DB, rdb *redis.Client, hub WSHub, mailer Mailer) *Service {
	return &Service{db: db, redis: rdb, useRedis: rdb != nil, wsHub: hub, mailer: mailer}
}

// normalizeChannels keeps only allowed values and ensures default channel
func normalizeChannels(in []string) []string {
	allowed := map[string]struct{}{"normal": {}, "popup": {}, "line": {}, "email": {}}
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, ch := range in {
		if _, ok := allowed[ch]; !ok {
			continue
		}
		if _, dup := seen[ch]; dup {
			continue
		}
		out = append(out, ch)
		seen[ch] = struct{}{}
	}
	if len(out) == 0 {
		out = []string{"normal"}
	}
	return out
}

func hasChannel(channels []string, want string) bool {
	for _, ch := range channels {
		if ch == want {
			return true
		}
	}
	return false
}

// Queued builds a notification payload. data may be nil.
func Queued(title, message, typ string, data any, channels ...string) Payload {
	return Payload{Title: title, Message: message, Type: typ, Data: data, Channels: normalizeChannels(channels)}
}

// EnqueueOrCreate stores notifications using Redis queue if enabled, else direct insert.
func (s *Service) EnqueueOrCreate(ctx context.Context, userIDs []uint, n Payload) error {
	if len(userIDs) == 0 {
		return errors.New("no user ids")
	}
	n.UserIDs = userIDs
	n.CreatedAt = time.Now().UTC()

	if s.useRedis {
		b, err := json.Marshal(n)
		if err != nil {
			return err
		}
		if err = s.redis.RPush(ctx, QueueKey, b).Err(); err == nil {
			return nil
		}
		logrus.WithError(err).Warn("[notif] redis queue failed, falling back to direct insert")
	}

	return s.createDirect(ctx, userIDs, n)
}

// createDirect writes directly to DB (used by worker or fallback), then
// pushes to websocket and email.
func (s *Service) createDirect(ctx context.Context, userIDs []uint, n Payload) error {
	if len(userIDs) == 0 {
		return nil
	}
	channels := normalizeChannels(n.Channels)
	// MySQL forbids defaults on JSON columns, so channels is always set.
	channelsJSON, err := json.Marshal(channels)
	if err != nil {
		channelsJSON = []byte(`["normal"]`)
	}
	var dataJSON []byte
	if n.Data != nil {
		if b, err := json.Marshal(n.Data); err == nil {
			dataJSON = b
		}
	}

	notifs := make([]models.Notification, 0, len(userIDs))
	for _, uid := range userIDs {
		notifs = append(notifs, models.Notification{
			UserID:   uid,
			Title:    n.Title,
			Message:  n.Message,
			Type:     n.Type,
			Channels: channelsJSON,
			Data:     dataJSON,
		})
	}

	db := s.db.WithContext(ctx)
	if err := db.Create(&notifs).Error; err != nil {
		return err
	}

	if s.wsHub == nil && (s.mailer == nil || !hasChannel(channels, "email")) {
		return nil
	}

	var users []models.User
	if err := db.Preload("Branch").Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		logrus.WithError(err).Warn("[notif] load recipients failed")
		return nil
	}
	byID := make(map[uint]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	for _, notif := range notifs {
		u := byID[notif.UserID]
		notif.User = u
		if s.wsHub != nil {
			s.wsHub.BroadcastToUser(notif.UserID, map[string]interface{}{
				"type": "notification",
				"data": utils.ToNotificationDTO(notif),
			})
		}
		if s.mailer != nil && hasChannel(channels, "email") && u.Email != "" {
			if err := s.mailer.Send(u.FullName(), u.Email, n.Title, n.Message); err != nil {
				logrus.WithError(err).WithField("user_id", u.ID).Warn("[notif] email delivery failed")
			}
		}
	}
	return nil
}

// StartWorker starts a background worker polling Redis queue and flushing to DB
func (s *Service) StartWorker(stop <-chan struct{}) {
	if !s.useRedis {
		logrus.Info("[notif] Redis notifications disabled; worker not started")
		return
	}
	go func() {
		logrus.Info("[notif] Redis notification worker started")
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		ctx := context.Background()
		for {
			select {
			case <-stop:
				logrus.Info("[notif] worker stopping")
				return
			case <-ticker.C:
				s.flushBatch(ctx, 200)
			}
		}
	}()
}

// flushBatch drains up to five batches from the queue per tick.
func (s *Service) flushBatch(ctx context.Context, batchSize int) {
	if s.redis == nil {
		return
	}
	for i := 0; i < 5; i++ {
		vals, err := s.redis.LRange(ctx, QueueKey, 0, int64(batchSize-1)).Result()
		if err != nil || len(vals) == 0 {
			return
		}
		// Trim immediately to avoid duplicates (best-effort)
		if err = s.redis.LTrim(ctx, QueueKey, int64(len(vals)), -1).Err(); err != nil {
			logrus.WithError(err).Warn("[notif] LTrim failed")
		}
		for _, raw := range vals {
			var q Payload
			if err := json.Unmarshal([]byte(raw), &q); err != nil {
				continue
			}
			if err := s.createDirect(ctx, q.UserIDs, q); err != nil {
				logrus.WithError(err).Error("[notif] DB insert failed")
			}
		}
		if len(vals) < batchSize {
			return
		}
	}
}
