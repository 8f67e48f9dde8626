package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"educenter_go/database"
	"educenter_go/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	minArchiveAgeDays  = 7
	archiveBatchSize   = 1000
	DefaultArchiveDays = 30
)

// ArchiveStore is where zipped activity-log archives live.
type ArchiveStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// S3ArchiveStore keeps archives in an S3 bucket.
type S3ArchiveStore struct {
	client *s3.Client
	bucket string
}

func NewS3ArchiveStore(ctx context.Context, region, bucket string) (*S3ArchiveStore, error) {
	if region == "" || bucket == "" {
		return nil, fmt.Errorf("AWS region and bucket are required")
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "load AWS config")
	}
	return &S3ArchiveStore{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

func (s *S3ArchiveStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	return err
}

func (s *S3ArchiveStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

// LogArchiveService moves cached activity logs into the database and ships
// old rows to the archive store.
type LogArchiveService struct {
	db    *gorm.DB
	rdb   *redis.Client
	store ArchiveStore
	now   func() time.Time
}

// NewLogArchiveService wires the service. rdb and store may be nil, in which
// case the operations that need them fail.
func NewLogArchiveService(db *gorm.DB, rdb *redis.Client, store ArchiveStore) *LogArchiveService {
	return &LogArchiveService{db: db, rdb: rdb, store: store, now: time.Now}
}

// ArchivedLog is the row format written inside archives.
type ArchivedLog struct {
	ID         uint                   `json:"id"`
	UserID     uint                   `json:"user_id"`
	Action     string                 `json:"action"`
	Resource   string                 `json:"resource"`
	ResourceID uint                   `json:"resource_id"`
	Details    map[string]interface{} `json:"details,omitempty"`
	IPAddress  string                 `json:"ip_address"`
	UserAgent  string                 `json:"user_agent"`
	CreatedAt  time.Time              `json:"created_at"`
	Username   string                 `json:"username,omitempty"`
	UserRole   models.Role            `json:"user_role,omitempty"`
}

// FlushCachedLogs writes every queued log to the database and removes it
// from the cache. It returns the number of rows written.
func (s *LogArchiveService) FlushCachedLogs(ctx context.Context) (int, error) {
	if s.rdb == nil {
		return 0, fmt.Errorf("redis client not available")
	}

	keys, err := s.rdb.ZRangeByScore(ctx, database.LogQueueKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(s.now().Unix(), 10),
	}).Result()
	if err != nil {
		return 0, errors.Wrap(err, "read log queue")
	}

	var flushed, failed int
	for _, key := range keys {
		data, err := s.rdb.Get(ctx, key).Bytes()
		if err == redis.Nil {
			// expired before we got to it
			s.rdb.ZRem(ctx, database.LogQueueKey, key)
			continue
		}
		if err != nil {
			logrus.WithError(err).WithField("key", key).Error("Failed to read cached log")
			failed++
			continue
		}

		var row models.ActivityLog
		if err := json.Unmarshal(data, &row); err != nil {
			logrus.WithError(err).WithField("key", key).Error("Failed to decode cached log")
			failed++
			continue
		}
		row.ID = 0
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			logrus.WithError(err).WithField("key", key).Error("Failed to save cached log")
			failed++
			continue
		}

		pipe := s.rdb.TxPipeline()
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, database.LogQueueKey, key)
		if _, err := pipe.Exec(ctx); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("Failed to drop flushed log from cache")
		}
		flushed++
	}

	logrus.WithFields(logrus.Fields{"flushed": flushed, "failed": failed}).Info("Flushed cached activity logs")
	return flushed, nil
}

// ArchiveOldLogs zips logs older than daysOld days, uploads the zip and
// hard-deletes the archived rows.
func (s *LogArchiveService) ArchiveOldLogs(ctx context.Context, daysOld int) (*models.LogArchive, error) {
	if daysOld < minArchiveAgeDays {
		return nil, Malformedf("minimum archive age is %d days", minArchiveAgeDays)
	}
	if s.store == nil {
		return nil, fmt.Errorf("archive store not configured")
	}
	cutoff := s.now().AddDate(0, 0, -daysOld)

	var (
		rows []ArchivedLog
		ids  []uint
	)
	var batch []models.ActivityLog
	err := s.db.WithContext(ctx).Preload("User").
		Where("created_at < ?", cutoff).Order("id").
		FindInBatches(&batch, archiveBatchSize, func(tx *gorm.DB, _ int) error {
			for _, l := range batch {
				rows = append(rows, toArchived(l))
				ids = append(ids, l.ID)
			}
			return nil
		}).Error
	if err != nil {
		return nil, errors.Wrap(err, "load logs to archive")
	}
	if len(rows) == 0 {
		logrus.Info("No logs to archive")
		return nil, nil
	}

	name := fmt.Sprintf("activity_logs_%s.zip", cutoff.Format("2006-01-02"))
	zipped, err := buildArchive(rows, name, s.now())
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("logs/archived/%d/%02d/%s", cutoff.Year(), cutoff.Month(), name)
	if err := s.store.Put(ctx, key, zipped.Bytes(), "application/zip"); err != nil {
		return nil, errors.Wrap(err, "upload archive")
	}

	record := models.LogArchive{
		FileName:    name,
		S3Key:       key,
		StartDate:   rows[0].CreatedAt,
		EndDate:     cutoff,
		RecordCount: len(rows),
		FileSize:    int64(zipped.Len()),
		Status:      "completed",
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(ids); start += archiveBatchSize {
			end := start + archiveBatchSize
			if end > len(ids) {
				end = len(ids)
			}
			if err := tx.Unscoped().Where("id IN ?", ids[start:end]).Delete(&models.ActivityLog{}).Error; err != nil {
				return err
			}
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "finalise archive")
	}

	logrus.WithFields(logrus.Fields{"key": key, "records": len(rows)}).Info("Archived activity logs")
	return &record, nil
}

func toArchived(l models.ActivityLog) ArchivedLog {
	a := ArchivedLog{
		ID:         l.ID,
		UserID:     l.UserID,
		Action:     l.Action,
		Resource:   l.Resource,
		ResourceID: l.ResourceID,
		IPAddress:  l.IPAddress,
		UserAgent:  l.UserAgent,
		CreatedAt:  l.CreatedAt,
	}
	if len(l.Details) > 0 {
		var details map[string]interface{}
		if err := json.Unmarshal(l.Details, &details); err == nil {
			a.Details = details
		}
	}
	if l.User.ID > 0 {
		a.Username = l.User.Username
		a.UserRole = l.User.Role
	}
	return a
}

// buildArchive writes activity_logs.json, activity_logs.csv and
// metadata.json into a zip.
func buildArchive(rows []ArchivedLog, name string, now time.Time) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	w, err := zw.Create("activity_logs.json")
	if err != nil {
		return nil, err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]interface{}{
		"export_date":    now.UTC(),
		"record_count":   len(rows),
		"format_version": "1.0",
		"logs":           rows,
	}); err != nil {
		return nil, errors.Wrap(err, "encode logs")
	}

	w, err = zw.Create("activity_logs.csv")
	if err != nil {
		return nil, err
	}
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"ID", "User ID", "Username", "Role", "Action", "Resource", "Resource ID", "IP Address", "User Agent", "Created At", "Details"})
	for _, r := range rows {
		details := ""
		if r.Details != nil {
			if b, err := json.Marshal(r.Details); err == nil {
				details = string(b)
			}
		}
		_ = cw.Write([]string{
			strconv.FormatUint(uint64(r.ID), 10),
			strconv.FormatUint(uint64(r.UserID), 10),
			r.Username,
			string(r.UserRole),
			r.Action,
			r.Resource,
			strconv.FormatUint(uint64(r.ResourceID), 10),
			r.IPAddress,
			r.UserAgent,
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			details,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, errors.Wrap(err, "write csv")
	}

	w, err = zw.Create("metadata.json")
	if err != nil {
		return nil, err
	}
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"file_name":      name,
		"created_at":     now.UTC(),
		"record_count":   len(rows),
		"date_range":     map[string]interface{}{"start": rows[0].CreatedAt, "end": rows[len(rows)-1].CreatedAt},
		"schema_version": "1.0",
		"description":    "EduCenter activity log archive",
	}); err != nil {
		return nil, errors.Wrap(err, "encode metadata")
	}

	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "close zip")
	}
	return buf, nil
}

// Archives lists archive records, newest first.
func (s *LogArchiveService) Archives(ctx context.Context) ([]models.LogArchive, error) {
	var archives []models.LogArchive
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&archives).Error; err != nil {
		return nil, errors.Wrap(err, "list archives")
	}
	return archives, nil
}

// OpenArchive streams one archive from the store.
func (s *LogArchiveService) OpenArchive(ctx context.Context, id uint) (io.ReadCloser, string, error) {
	var archive models.LogArchive
	if err := s.db.WithContext(ctx).First(&archive, id).Error; err != nil {
		return nil, "", notFoundOr(err, "Archive not found")
	}
	if s.store == nil {
		return nil, "", fmt.Errorf("archive store not configured")
	}
	body, err := s.store.Get(ctx, archive.S3Key)
	if err != nil {
		return nil, "", errors.Wrap(err, "download archive")
	}
	return body, archive.FileName, nil
}

// RunMaintenance flushes the cache and archives logs older than
// DefaultArchiveDays. It is the body of the scheduled maintenance job.
func (s *LogArchiveService) RunMaintenance(ctx context.Context) {
	if _, err := s.FlushCachedLogs(ctx); err != nil {
		logrus.WithError(err).Warn("log cache flush failed")
	}
	if _, err := s.ArchiveOldLogs(ctx, DefaultArchiveDays); err != nil {
		logrus.WithError(err).Warn("log archive failed")
	}
}
