package database

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordHomeStat adds to the (home, day) activity row using a single-query
// upsert, which both postgres and sqlite support. day is when the activity
// happened (posting or confirmation), not when the shift starts.
func RecordHomeStat(db *gorm.DB, homeID string, day time.Time, posted, filled int, hours float64) error {
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "home_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"shifts_posted": gorm.Expr("home_daily_stats.shifts_posted + ?", posted),
			"shifts_filled": gorm.Expr("home_daily_stats.shifts_filled + ?", filled),
			"hours_filled":  gorm.Expr("home_daily_stats.hours_filled + ?", hours),
		}),
	}).Create(&HomeDailyStat{
		HomeID:       homeID,
		Date:         day.UTC().Format("2006-01-02"),
		ShiftsPosted: posted,
		ShiftsFilled: filled,
		HoursFilled:  hours,
	}).Error
}
