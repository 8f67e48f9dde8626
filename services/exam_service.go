package services

import (
	"context"
	"strings"
	"time"

	"educenter_go/models"
	"educenter_go/services/access"
	"educenter_go/services/audit"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DefaultGradeRanges apply when the exam_grade_ranges table is empty.
var DefaultGradeRanges = []models.ExamGradeRange{
	{Grade: "A", MinScore: 86, MaxScore: 100, Description: "Excellent"},
	{Grade: "B", MinScore: 51, MaxScore: 85, Description: "Good"},
	{Grade: "C", MinScore: 0, MaxScore: 50, Description: "Needs improvement"},
}

// GradeFor returns the grade whose range contains percent, or "" if none does.
func GradeFor(ranges []models.ExamGradeRange, percent int) string {
	for _, r := range ranges {
		if percent >= r.MinScore && percent <= r.MaxScore {
			return r.Grade
		}
	}
	return ""
}

// percentOf scales a raw score to 0-100 using the exam's total points.
func percentOf(score, totalPoints int) int {
	if totalPoints <= 0 {
		return score
	}
	return score * 100 / totalPoints
}

type ExamService struct {
	db   *gorm.DB
	sink *audit.Sink
}

func NewExamService(db *gorm.DB, sink *audit.Sink) *ExamService {
	return &ExamService{db: db, sink: sink}
}

type ExamInput struct {
	GroupID        uint      `json:"group_id" validate:"required"`
	Title          string    `json:"title" validate:"required,notblank,max=255"`
	Subject        string    `json:"subject" validate:"max=255"`
	ExamDate       time.Time `json:"exam_date"`
	TotalQuestions int       `json:"total_questions" validate:"gte=0"`
	TotalPoints    int       `json:"total_points" validate:"gte=0"`
	PassScore      int       `json:"pass_score" validate:"gte=0"`
}

func (s *ExamService) CreateExam(ctx context.Context, scope access.Scope, actorID uint, in ExamInput) (*models.Exam, error) {
	fields := logrus.Fields{"actor_id": actorID, "group_id": in.GroupID}
	if strings.TrimSpace(in.Title) == "" {
		return nil, finish("exam_create", fields, Malformedf("Title is required"))
	}
	total := in.TotalPoints
	if total == 0 {
		total = 100
	}
	pass := in.PassScore
	if pass == 0 {
		pass = total / 2
	}
	if pass > total {
		return nil, finish("exam_create", fields, Malformedf("Pass score cannot exceed total points"))
	}
	examDate := in.ExamDate
	if examDate.IsZero() {
		examDate = time.Now()
	}

	var exam models.Exam
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.Group
		if err := access.FindScoped(tx, access.EntityGroup, scope, &group, in.GroupID); err != nil {
			return notFoundOr(err, "Group not found")
		}
		exam = models.Exam{
			GroupID:        group.ID,
			Title:          strings.TrimSpace(in.Title),
			Subject:        in.Subject,
			ExamDate:       examDate,
			TotalQuestions: in.TotalQuestions,
			TotalPoints:    total,
			PassScore:      pass,
			CreatedBy:      ptrUint(actorID),
		}
		if err := tx.Create(&exam).Error; err != nil {
			return errors.Wrap(err, "create exam")
		}
		return s.sink.Activity(tx, actorID, "CREATE", "exam", exam.ID, map[string]interface{}{"group_id": group.ID})
	})
	if err != nil {
		return nil, finish("exam_create", fields, err)
	}
	return &exam, finish("exam_create", fields, nil)
}

// ResultRow is one parsed line of a results import.
type ResultRow struct {
	StudentID uint `json:"student_id"`
	Score     int  `json:"score"`
}

type SkippedRow struct {
	Row       int    `json:"row"`
	StudentID uint   `json:"student_id"`
	Reason    string `json:"reason"`
}

type ImportSummary struct {
	Imported int          `json:"imported"`
	Updated  int          `json:"updated"`
	Skipped  []SkippedRow `json:"skipped"`
}

func gradeRanges(tx *gorm.DB) ([]models.ExamGradeRange, error) {
	var ranges []models.ExamGradeRange
	if err := tx.Order("min_score DESC").Find(&ranges).Error; err != nil {
		return nil, errors.Wrap(err, "load grade ranges")
	}
	if len(ranges) == 0 {
		return DefaultGradeRanges, nil
	}
	return ranges, nil
}

// ImportResults upserts results keyed by (exam, student). Rows naming a
// student outside the exam's group, repeating a student, or carrying a score
// outside 0..TotalPoints are skipped and reported.
func (s *ExamService) ImportResults(ctx context.Context, scope access.Scope, actorID, examID uint, rows []ResultRow) (*ImportSummary, error) {
	fields := logrus.Fields{"actor_id": actorID, "exam_id": examID, "rows": len(rows)}
	if len(rows) == 0 {
		return nil, finish("exam_import_results", fields, Malformedf("No result rows to import"))
	}

	summary := &ImportSummary{Skipped: []SkippedRow{}}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exam models.Exam
		if err := lockScoped(tx, access.EntityExam, scope, &exam, examID); err != nil {
			return notFoundOr(err, "Exam not found")
		}
		ranges, err := gradeRanges(tx)
		if err != nil {
			return err
		}
		members, _, err := groupMemberSet(tx, exam.GroupID)
		if err != nil {
			return err
		}

		var existing []models.ExamResult
		if err := tx.Where("exam_id = ?", exam.ID).Find(&existing).Error; err != nil {
			return errors.Wrap(err, "load exam results")
		}
		byStudent := make(map[uint]*models.ExamResult, len(existing))
		for i := range existing {
			byStudent[existing[i].StudentID] = &existing[i]
		}

		seen := make(map[uint]struct{}, len(rows))
		for i, r := range rows {
			line := i + 1
			if _, ok := members[r.StudentID]; !ok {
				summary.Skipped = append(summary.Skipped, SkippedRow{Row: line, StudentID: r.StudentID, Reason: "student is not in the exam group"})
				continue
			}
			if _, dup := seen[r.StudentID]; dup {
				summary.Skipped = append(summary.Skipped, SkippedRow{Row: line, StudentID: r.StudentID, Reason: "duplicate student"})
				continue
			}
			if r.Score < 0 || r.Score > exam.TotalPoints {
				summary.Skipped = append(summary.Skipped, SkippedRow{Row: line, StudentID: r.StudentID, Reason: "score out of range"})
				continue
			}
			seen[r.StudentID] = struct{}{}

			grade := GradeFor(ranges, percentOf(r.Score, exam.TotalPoints))
			if res, ok := byStudent[r.StudentID]; ok {
				if err := tx.Model(res).Updates(map[string]interface{}{"score": r.Score, "grade": grade}).Error; err != nil {
					return errors.Wrap(err, "update exam result")
				}
				summary.Updated++
				continue
			}
			res := models.ExamResult{ExamID: exam.ID, StudentID: r.StudentID, Score: r.Score, Grade: grade}
			if err := tx.Create(&res).Error; err != nil {
				return dbErr(err, "Exam result already exists", "create exam result")
			}
			summary.Imported++
		}
		return s.sink.Activity(tx, actorID, "IMPORT", "exam_results", exam.ID, map[string]interface{}{
			"imported": summary.Imported, "updated": summary.Updated, "skipped": len(summary.Skipped),
		})
	})
	if err != nil {
		return nil, finish("exam_import_results", fields, err)
	}
	fields["imported"] = summary.Imported
	fields["updated"] = summary.Updated
	return summary, finish("exam_import_results", fields, nil)
}

type ExamStatistics struct {
	TotalStudents int     `json:"total_students"`
	AverageScore  float64 `json:"average_score"`
	HighestScore  int     `json:"highest_score"`
	LowestScore   int     `json:"lowest_score"`
	Passed        int     `json:"passed"`
	Failed        int     `json:"failed"`
}

func (s *ExamService) Statistics(ctx context.Context, scope access.Scope, examID uint) (*ExamStatistics, error) {
	db := s.db.WithContext(ctx)
	var exam models.Exam
	if err := access.FindScoped(db, access.EntityExam, scope, &exam, examID); err != nil {
		return nil, notFoundOr(err, "Exam not found")
	}
	var scores []int
	if err := db.Model(&models.ExamResult{}).Where("exam_id = ?", exam.ID).Pluck("score", &scores).Error; err != nil {
		return nil, errors.Wrap(err, "load scores")
	}

	stats := &ExamStatistics{TotalStudents: len(scores)}
	if len(scores) == 0 {
		return stats, nil
	}
	sum := 0
	stats.HighestScore, stats.LowestScore = scores[0], scores[0]
	for _, sc := range scores {
		sum += sc
		if sc > stats.HighestScore {
			stats.HighestScore = sc
		}
		if sc < stats.LowestScore {
			stats.LowestScore = sc
		}
		if sc >= exam.PassScore {
			stats.Passed++
		} else {
			stats.Failed++
		}
	}
	stats.AverageScore = round2(float64(sum) / float64(len(scores)))
	return stats, nil
}
