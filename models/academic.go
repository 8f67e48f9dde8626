package models

import (
	"time"

	"gorm.io/datatypes"
)

type StudentStatus string

const (
	StudentActive    StudentStatus = "active"
	StudentInactive  StudentStatus = "inactive"
	StudentGraduated StudentStatus = "graduated"
)

// Student model. TotalPaid and TotalDebt are running totals kept in step
// with completed StudentPayments.
type Student struct {
	BaseModel
	UserID    uint          `json:"user_id" gorm:"uniqueIndex;not null"`
	BranchID  uint          `json:"branch_id" gorm:"not null;index"`
	Status    StudentStatus `json:"status" gorm:"size:20;not null;default:'active'"`
	TotalPaid float64       `json:"total_paid" gorm:"type:decimal(12,2);default:0"`
	TotalDebt float64       `json:"total_debt" gorm:"type:decimal(12,2);default:0"`

	User   User   `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Branch Branch `json:"branch,omitempty" gorm:"foreignKey:BranchID"`
}

// Teacher model
type Teacher struct {
	BaseModel
	UserID            uint    `json:"user_id" gorm:"uniqueIndex;not null"`
	BranchID          uint    `json:"branch_id" gorm:"not null;index"`
	HourlyRate        float64 `json:"hourly_rate" gorm:"type:decimal(12,2);default:0"`
	GroupRate         float64 `json:"group_rate" gorm:"type:decimal(12,2);default:0"`
	PerformanceRating float64 `json:"performance_rating" gorm:"default:0"`
	TotalEarned       float64 `json:"total_earned" gorm:"type:decimal(12,2);default:0"`

	User   User   `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Branch Branch `json:"branch,omitempty" gorm:"foreignKey:BranchID"`
}

// Group is a class of students taught by one teacher. Capacity is bounded by
// MaxStudents.
type Group struct {
	BaseModel
	BranchID    uint   `json:"branch_id" gorm:"not null;index"`
	TeacherID   *uint  `json:"teacher_id" gorm:"index"`
	Name        string `json:"name" gorm:"size:255;not null"`
	Subject     string `json:"subject" gorm:"size:255"`
	Level       string `json:"level" gorm:"size:50"`
	MaxStudents int    `json:"max_students" gorm:"not null;default:20"`

	Branch  Branch        `json:"branch,omitempty" gorm:"foreignKey:BranchID"`
	Teacher *Teacher      `json:"teacher,omitempty" gorm:"foreignKey:TeacherID"`
	Members []GroupMember `json:"members,omitempty" gorm:"foreignKey:GroupID"`
}

func (Group) TableName() string { return "study_groups" }

// GroupMember links a student to a group.
type GroupMember struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	GroupID   uint      `json:"group_id" gorm:"not null;uniqueIndex:idx_group_student"`
	StudentID uint      `json:"student_id" gorm:"not null;uniqueIndex:idx_group_student"`
	JoinedAt  time.Time `json:"joined_at"`

	Student Student `json:"student,omitempty" gorm:"foreignKey:StudentID"`
}

// Lesson model
type Lesson struct {
	BaseModel
	GroupID            uint      `json:"group_id" gorm:"not null;index"`
	TeacherID          uint      `json:"teacher_id" gorm:"not null;index"`
	BranchID           uint      `json:"branch_id" gorm:"not null;index"`
	StartTime          time.Time `json:"start_time" gorm:"not null"`
	Duration           int       `json:"duration" gorm:"not null;default:90"` // minutes: 45 or 90
	IsCancelled        bool      `json:"is_cancelled" gorm:"default:false"`
	CancellationReason string    `json:"cancellation_reason" gorm:"type:text"`

	Group   Group   `json:"group,omitempty" gorm:"foreignKey:GroupID"`
	Teacher Teacher `json:"teacher,omitempty" gorm:"foreignKey:TeacherID"`
}

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceExcused AttendanceStatus = "excused"
)

func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLate, AttendanceExcused:
		return true
	}
	return false
}

type HomeworkStatus string

const (
	HomeworkDone       HomeworkStatus = "done"
	HomeworkMissing    HomeworkStatus = "missing"
	HomeworkIncomplete HomeworkStatus = "incomplete"
)

func (s HomeworkStatus) Valid() bool {
	return s == HomeworkDone || s == HomeworkMissing || s == HomeworkIncomplete
}

// Attendance is unique per (lesson, student).
type Attendance struct {
	BaseModel
	LessonID       uint             `json:"lesson_id" gorm:"not null;uniqueIndex:idx_lesson_student"`
	StudentID      uint             `json:"student_id" gorm:"not null;uniqueIndex:idx_lesson_student"`
	Status         AttendanceStatus `json:"status" gorm:"size:20;not null"`
	HomeworkStatus HomeworkStatus   `json:"homework_status" gorm:"size:20;not null;default:'missing'"`
	HomeworkGrade  *int             `json:"homework_grade"`
	Comments       string           `json:"comments" gorm:"type:text"`
	SubmittedBy    *uint            `json:"submitted_by"`

	Lesson  Lesson  `json:"lesson,omitempty" gorm:"foreignKey:LessonID"`
	Student Student `json:"student,omitempty" gorm:"foreignKey:StudentID"`
}

// AttendanceCorrection is an immutable record of a status change made
// through the correction workflow.
type AttendanceCorrection struct {
	ID                   uint             `json:"id" gorm:"primaryKey"`
	OriginalAttendanceID uint             `json:"original_attendance_id" gorm:"not null;index"`
	OldStatus            AttendanceStatus `json:"old_status" gorm:"size:20;not null"`
	NewStatus            AttendanceStatus `json:"new_status" gorm:"size:20;not null"`
	Reason               string           `json:"reason" gorm:"type:text;not null"`
	CorrectedBy          uint             `json:"corrected_by" gorm:"not null"`
	CorrectedAt          time.Time        `json:"corrected_at" gorm:"not null"`
}

// Exam model
type Exam struct {
	BaseModel
	GroupID        uint      `json:"group_id" gorm:"not null;index"`
	Title          string    `json:"title" gorm:"size:255;not null"`
	Subject        string    `json:"subject" gorm:"size:255"`
	ExamDate       time.Time `json:"exam_date"`
	TotalQuestions int       `json:"total_questions"`
	TotalPoints    int       `json:"total_points" gorm:"default:100"`
	PassScore      int       `json:"pass_score" gorm:"default:50"`
	CreatedBy      *uint     `json:"created_by"`

	Group Group `json:"group,omitempty" gorm:"foreignKey:GroupID"`
}

// ExamGradeRange maps a score interval to a letter grade.
type ExamGradeRange struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	Grade       string `json:"grade" gorm:"size:1;not null;uniqueIndex"`
	MinScore    int    `json:"min_score" gorm:"not null"`
	MaxScore    int    `json:"max_score" gorm:"not null"`
	Description string `json:"description" gorm:"size:255"`
}

// ExamResult is unique per (exam, student).
type ExamResult struct {
	BaseModel
	ExamID    uint   `json:"exam_id" gorm:"not null;uniqueIndex:idx_exam_student"`
	StudentID uint   `json:"student_id" gorm:"not null;uniqueIndex:idx_exam_student"`
	Score     int    `json:"score" gorm:"not null"`
	Grade     string `json:"grade" gorm:"size:1"`

	Exam    Exam    `json:"exam,omitempty" gorm:"foreignKey:ExamID"`
	Student Student `json:"student,omitempty" gorm:"foreignKey:StudentID"`
}

// Homework assigned by a teacher to a group.
type Homework struct {
	BaseModel
	TeacherID   uint      `json:"teacher_id" gorm:"not null;index"`
	GroupID     uint      `json:"group_id" gorm:"not null;index"`
	Title       string    `json:"title" gorm:"size:255;not null"`
	Description string    `json:"description" gorm:"type:text"`
	FileURL     string    `json:"file_url" gorm:"size:500"`
	DueDate     time.Time `json:"due_date"`
	Status      string    `json:"status" gorm:"size:20;default:'assigned'"` // assigned, submitted, graded
}

func (Homework) TableName() string { return "homework" }

// TeacherPortfolio is the teacher's public profile. TotalStudentsTaught and
// AvgRating are refreshed from group membership and the teacher's rating.
type TeacherPortfolio struct {
	ID                  uint           `json:"id" gorm:"primaryKey"`
	TeacherID           uint           `json:"teacher_id" gorm:"not null;uniqueIndex"`
	Bio                 string         `json:"bio" gorm:"type:text"`
	Achievements        datatypes.JSON `json:"achievements"`
	TotalStudentsTaught int64          `json:"total_students_taught" gorm:"default:0"`
	AvgRating           float64        `json:"avg_rating" gorm:"default:0"`
	UpdatedAt           time.Time      `json:"updated_at"`

	Teacher Teacher `json:"teacher,omitempty" gorm:"foreignKey:TeacherID"`
}
