package database

import (
	"testing"
	"time"

	"github.com/arnavshah/carelink-api-go/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestBeforeCreateAssignsUUID(t *testing.T) {
	db := NewTestDB(t)

	u := User{Email: "a@example.com", PasswordHash: "x", Role: RoleFamily, Status: UserActive}
	require.NoError(t, db.Create(&u).Error)
	assert.Len(t, u.ID, 36)
	assert.Equal(t, time.UTC, u.CreatedAt.Location())
}

func TestUniqueApplicationPerCaregiver(t *testing.T) {
	db := NewTestDB(t)

	a := ShiftApplication{ShiftID: "s1", CaregiverID: "c1", Status: workflow.AppApplied}
	require.NoError(t, db.Create(&a).Error)

	dup := ShiftApplication{ShiftID: "s1", CaregiverID: "c1", Status: workflow.AppApplied}
	require.Error(t, db.Create(&dup).Error)
}

func TestRecordHomeStat_Upserts(t *testing.T) {
	db := NewTestDB(t)
	day := time.Date(2025, 5, 1, 23, 0, 0, 0, time.UTC)

	require.NoError(t, RecordHomeStat(db, "h1", day, 1, 0, 0))
	require.NoError(t, RecordHomeStat(db, "h1", day, 0, 1, 7.5))
	require.NoError(t, RecordHomeStat(db, "h1", day.Add(2*time.Hour), 1, 0, 0))

	var rows []HomeDailyStat
	require.NoError(t, db.Where("home_id = ?", "h1").Order("date").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, "2025-05-01", rows[0].Date)
	assert.Equal(t, 1, rows[0].ShiftsPosted)
	assert.Equal(t, 1, rows[0].ShiftsFilled)
	assert.InDelta(t, 7.5, rows[0].HoursFilled, 0.001)
	assert.Equal(t, "2025-05-02", rows[1].Date)
}

func TestNotificationDataRoundTrip(t *testing.T) {
	db := NewTestDB(t)

	n := Notification{UserID: "u1", Type: NotifyBooking, Title: "t", Data: map[string]any{"shiftId": "s1"}}
	require.NoError(t, db.Create(&n).Error)

	var got Notification
	require.NoError(t, db.First(&got, "id = ?", n.ID).Error)
	assert.Equal(t, "s1", got.Data["shiftId"])
}

func TestForUpdateIsNoopOnSQLite(t *testing.T) {
	db := NewTestDB(t)
	var s Shift
	err := ForUpdate(db).First(&s, "id = ?", "missing").Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
