// Package funding converts raw hourly funding samples into 8-hour epochs and
// forecasts forward yield from dual exponential moving averages with a
// weekend seasonality adjustment.
package funding

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/dkallos/arbiter/internal/modules/market"
)

// EpochDuration is the fixed aggregation bucket width. Boundaries fall at
// 00:00, 08:00 and 16:00 UTC.
const EpochDuration = 8 * time.Hour

// Epoch is one aggregated 8-hour funding bucket.
type Epoch struct {
	Start   time.Time `json:"epoch_ts"`
	Rate8h  float64   `json:"rate_8h"` // mean hourly rate over the bucket
	APR     float64   `json:"apr"`     // annualized, percent
	Weekend bool      `json:"is_weekend"`
}

// easternTime is the exchange's local trading calendar. Weekend tagging uses
// it rather than UTC so Friday-evening epochs land on the correct side.
var easternTime = loadEastern()

func loadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// No tzdata available; EST without DST is the closest stand-in.
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}

// AggregateEpochs groups hourly samples into 8h UTC buckets. Each bucket's
// rate is the arithmetic mean of its member hourly rates, annualized as
// mean * 24 * 365 * 100. Output is ordered ascending by bucket start and is
// deterministic regardless of sample arrival order.
func AggregateEpochs(samples []market.FundingSample) []Epoch {
	buckets := make(map[time.Time][]float64)
	for _, s := range samples {
		start := EpochStart(s.Time)
		buckets[start] = append(buckets[start], s.Rate)
	}

	epochs := make([]Epoch, 0, len(buckets))
	for start, rates := range buckets {
		mean := stat.Mean(rates, nil)
		epochs = append(epochs, Epoch{
			Start:   start,
			Rate8h:  mean,
			APR:     mean * 24 * 365 * 100,
			Weekend: IsWeekendET(start),
		})
	}

	sort.Slice(epochs, func(i, j int) bool {
		return epochs[i].Start.Before(epochs[j].Start)
	})
	return epochs
}

// EpochStart rounds a timestamp down to its 8h UTC bucket boundary.
func EpochStart(t time.Time) time.Time {
	utc := t.UTC()
	hour := (utc.Hour() / 8) * 8
	return time.Date(utc.Year(), utc.Month(), utc.Day(), hour, 0, 0, 0, time.UTC)
}

// IsWeekendET reports whether a timestamp falls on a weekend in Eastern Time.
func IsWeekendET(t time.Time) bool {
	wd := t.In(easternTime).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
