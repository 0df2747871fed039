package scanner

import (
	"time"

	"github.com/dkallos/arbiter/internal/config"
)

// nyTime mirrors the funding package's fallback behavior when tzdata is
// unavailable.
var nyTime = loadNewYork()

func loadNewYork() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}

// IsNYSETradingHours reports whether t falls within the NYSE core session,
// 9:30-16:00 ET on weekdays. Exchange holidays are not modeled.
func IsNYSETradingHours(t time.Time) bool {
	et := t.In(nyTime)
	if wd := et.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	minutes := et.Hour()*60 + et.Minute()
	openMin := config.NYSEOpenHour*60 + config.NYSEOpenMinute
	closeMin := config.NYSECloseHour*60 + config.NYSECloseMinute
	return minutes >= openMin && minutes < closeMin
}
