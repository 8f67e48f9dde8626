package seeders

import (
	"testing"

	"educenter_go/database/dbtest"
	"educenter_go/models"
	"educenter_go/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedAll(t *testing.T) {
	db := dbtest.Open(t)

	require.NoError(t, SeedAll(db))

	var users []models.User
	require.NoError(t, db.Find(&users).Error)
	assert.Len(t, users, 8)
	for _, u := range users {
		assert.NoError(t, utils.CheckPassword(DemoPassword, u.Password), u.Username)
	}

	var ranges int64
	db.Model(&models.ExamGradeRange{}).Count(&ranges)
	assert.EqualValues(t, 3, ranges)

	var members int64
	db.Model(&models.GroupMember{}).Count(&members)
	assert.EqualValues(t, 1, members)

	// second run is a no-op
	require.NoError(t, SeedAll(db))
	var orgs int64
	db.Model(&models.Organization{}).Count(&orgs)
	assert.EqualValues(t, 1, orgs)
}
