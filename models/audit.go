package models

import (
	"time"

	"gorm.io/datatypes"
)

type AlertType string

const (
	AlertTeacherLate        AlertType = "teacher_late"
	AlertStudentAbsent      AlertType = "student_absent"
	AlertLessonCancelled    AlertType = "lesson_cancelled"
	AlertPaymentDue         AlertType = "payment_due"
	AlertTeacherChanged     AlertType = "teacher_changed"
	AlertStudentTransferred AlertType = "student_transferred"
	AlertOther              AlertType = "other"
)

// NotificationAlert is append-only. Rows are written by workflows and never
// updated.
type NotificationAlert struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	BranchID        uint      `json:"branch_id" gorm:"not null;index"`
	AlertType       AlertType `json:"alert_type" gorm:"size:50;not null"`
	RelatedLessonID *uint     `json:"related_lesson_id"`
	Message         string    `json:"message" gorm:"type:text;not null"`
	CreatedBy       *uint     `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
}

// SuperadminAuditLog is append-only.
type SuperadminAuditLog struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	SuperadminID uint           `json:"superadmin_id" gorm:"not null;index"`
	Action       string         `json:"action" gorm:"size:255;not null"`
	Details      datatypes.JSON `json:"details"`
	Timestamp    time.Time      `json:"timestamp" gorm:"not null;index"`
}

// Log model for activity tracking
type ActivityLog struct {
	BaseModel
	UserID     uint           `json:"user_id" gorm:"index"`
	Action     string         `json:"action" gorm:"size:100;not null"`
	Resource   string         `json:"resource" gorm:"size:100;not null"`
	ResourceID uint           `json:"resource_id"`
	Details    datatypes.JSON `json:"details"`
	IPAddress  string         `json:"ip_address" gorm:"size:45"`
	UserAgent  string         `json:"user_agent" gorm:"size:500"`

	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// Notification model
type Notification struct {
	BaseModel
	UserID   uint           `json:"user_id" gorm:"not null;index"`
	Title    string         `json:"title" gorm:"size:255;not null"`
	Message  string         `json:"message" gorm:"type:text;not null"`
	Type     string         `json:"type" gorm:"size:20;not null"` // info, warning, error, success
	Channels datatypes.JSON `json:"channels"`
	Data     datatypes.JSON `json:"data"`
	Read     bool           `json:"read" gorm:"default:false"`
	ReadAt   *time.Time     `json:"read_at"`

	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// LogArchive model for tracking archived logs
type LogArchive struct {
	BaseModel
	FileName    string    `json:"file_name" gorm:"size:255;not null"`
	S3Key       string    `json:"s3_key" gorm:"size:500;not null"`
	StartDate   time.Time `json:"start_date" gorm:"not null"`
	EndDate     time.Time `json:"end_date" gorm:"not null"`
	RecordCount int       `json:"record_count" gorm:"not null"`
	FileSize    int64     `json:"file_size" gorm:"not null"`
	Status      string    `json:"status" gorm:"size:20;not null;default:'pending'"` // pending, completed, failed
	Error       string    `json:"error" gorm:"type:text"`
}

// LineGroup is a LINE chat the bot has joined. BranchID is set once the chat
// name matches a branch name.
type LineGroup struct {
	BaseModel
	GroupID      string     `json:"group_id" gorm:"size:100;not null;uniqueIndex"`
	GroupName    string     `json:"group_name" gorm:"size:255"`
	BranchID     *uint      `json:"branch_id" gorm:"index"`
	IsActive     bool       `json:"is_active" gorm:"default:true"`
	LastJoinedAt time.Time  `json:"last_joined_at"`
	LastLeftAt   *time.Time `json:"last_left_at"`
}
