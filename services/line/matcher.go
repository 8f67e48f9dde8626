package line

import (
	"regexp"
	"strings"

	"educenter_go/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var spaces = regexp.MustCompile(`\s+`)

// NormalizeName lowercases, trims and collapses whitespace so chat names and
// branch names compare equal.
func NormalizeName(s string) string {
	return spaces.ReplaceAllString(strings.TrimSpace(strings.ToLower(s)), " ")
}

// Matcher links LINE groups to branches by name.
type Matcher struct {
	db *gorm.DB
}

func NewMatcher(db *gorm.DB) *Matcher {
	return &Matcher{db: db}
}

// MatchBranches sets BranchID on every LINE group whose normalized name
// equals a branch name or code. It returns the number of groups updated.
func (m *Matcher) MatchBranches() (int, error) {
	var lineGroups []models.LineGroup
	if err := m.db.Find(&lineGroups).Error; err != nil {
		return 0, err
	}
	var branches []models.Branch
	if err := m.db.Find(&branches).Error; err != nil {
		return 0, err
	}

	byName := make(map[string]uint, len(branches)*2)
	for _, b := range branches {
		byName[NormalizeName(b.Name)] = b.ID
		if b.Code != "" {
			byName[NormalizeName(b.Code)] = b.ID
		}
	}

	updated := 0
	for _, lg := range lineGroups {
		branchID, ok := byName[NormalizeName(lg.GroupName)]
		if !ok {
			logrus.WithField("line_group", lg.GroupName).Debug("no branch matches LINE group")
			continue
		}
		if lg.BranchID != nil && *lg.BranchID == branchID {
			continue
		}
		if err := m.db.Model(&models.LineGroup{}).Where("id = ?", lg.ID).Update("branch_id", branchID).Error; err != nil {
			logrus.WithError(err).WithField("line_group", lg.GroupName).Error("failed to match LINE group")
			continue
		}
		updated++
		logrus.WithFields(logrus.Fields{"line_group": lg.GroupName, "branch_id": branchID}).Info("matched LINE group to branch")
	}
	return updated, nil
}

// ActiveGroupIDs returns the LINE group ids matched to a branch.
func ActiveGroupIDs(db *gorm.DB, branchID uint) ([]string, error) {
	var ids []string
	err := db.Model(&models.LineGroup{}).
		Where("branch_id = ? AND is_active = ?", branchID, true).
		Pluck("group_id", &ids).Error
	return ids, err
}
