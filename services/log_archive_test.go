package services

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"educenter_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	objects map[string][]byte
}

func (m *memoryStore) Put(_ context.Context, key string, body []byte, _ string) error {
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = append([]byte(nil), body...)
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.objects[key])), nil
}

func TestArchiveOldLogs(t *testing.T) {
	f := newFixture(t)
	store := &memoryStore{}
	svc := NewLogArchiveService(f.db, nil, store)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	old := models.ActivityLog{UserID: f.w.DirectorA.ID, Action: "CREATE", Resource: "payments", Details: []byte(`{"k":"v"}`)}
	old.CreatedAt = now.AddDate(0, 0, -45)
	recent := models.ActivityLog{UserID: f.w.DirectorA.ID, Action: "UPDATE", Resource: "groups"}
	recent.CreatedAt = now.AddDate(0, 0, -2)
	require.NoError(t, f.db.Create(&old).Error)
	require.NoError(t, f.db.Create(&recent).Error)

	_, err := svc.ArchiveOldLogs(f.ctx, 3)
	requireKind(t, err, KindMalformed, "minimum archive age is 7 days")

	record, err := svc.ArchiveOldLogs(f.ctx, 30)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, 1, record.RecordCount)
	assert.Equal(t, "logs/archived/2026/02/activity_logs_2026-02-08.zip", record.S3Key)

	zr, err := zip.NewReader(bytes.NewReader(store.objects[record.S3Key]), int64(len(store.objects[record.S3Key])))
	require.NoError(t, err)
	var names []string
	for _, zf := range zr.File {
		names = append(names, zf.Name)
	}
	assert.Equal(t, []string{"activity_logs.json", "activity_logs.csv", "metadata.json"}, names)

	var remaining []models.ActivityLog
	require.NoError(t, f.db.Unscoped().Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, recent.ID, remaining[0].ID)

	again, err := svc.ArchiveOldLogs(f.ctx, 30)
	require.NoError(t, err)
	assert.Nil(t, again)

	archives, err := svc.Archives(f.ctx)
	require.NoError(t, err)
	require.Len(t, archives, 1)

	body, name, err := svc.OpenArchive(f.ctx, archives[0].ID)
	require.NoError(t, err)
	defer body.Close()
	assert.Equal(t, record.FileName, name)

	_, _, err = svc.OpenArchive(f.ctx, 999)
	requireKind(t, err, KindNotFound, "Archive not found")
}

func TestFlushCachedLogsWithoutRedis(t *testing.T) {
	f := newFixture(t)
	_, err := NewLogArchiveService(f.db, nil, nil).FlushCachedLogs(f.ctx)
	require.Error(t, err)
}
