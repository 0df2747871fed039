package funding

import (
	"sort"

	"github.com/dkallos/arbiter/internal/config"
)

// DualEMA computes the 3-day and 7-day EMAs over the epoch APR series.
//
// Strict-history policy: with fewer than 9 epochs both results are nil; with
// 9-20 only the 3-day EMA is returned; with 21 or more both are computed.
// Each EMA runs over its own trailing window, seeded by that window's oldest
// value. No cross-window interpolation.
func DualEMA(epochs []Epoch) (ema3d, ema7d *float64) {
	aprs := make([]float64, len(epochs))
	for i, e := range epochs {
		aprs[i] = e.APR
	}

	if len(aprs) < config.EMA3DEpochs {
		return nil, nil
	}

	v3 := ema(aprs[len(aprs)-config.EMA3DEpochs:], alpha(config.EMA3DEpochs))
	ema3d = &v3

	if len(aprs) < config.EMA7DEpochs {
		return ema3d, nil
	}

	v7 := ema(aprs[len(aprs)-config.EMA7DEpochs:], alpha(config.EMA7DEpochs))
	return ema3d, &v7
}

// alpha is the standard EMA decay constant for a window of n periods.
func alpha(n int) float64 {
	return 2.0 / (float64(n) + 1)
}

// ema smooths values (oldest first), seeded with the first value.
func ema(values []float64, alpha float64) float64 {
	if len(values) == 0 {
		return 0
	}
	out := values[0]
	for _, v := range values[1:] {
		out = alpha*v + (1-alpha)*out
	}
	return out
}

// Seasonality computes the weekend/weekday multiplier over the trailing 84
// epochs (~28 days): median(weekend APRs) / median(weekday APRs).
//
// Defaults to 1.0 when either side has fewer than 3 samples or the weekday
// median is non-positive.
func Seasonality(epochs []Epoch) float64 {
	recent := epochs
	if len(recent) > config.SeasonalityLookbackEpochs {
		recent = recent[len(recent)-config.SeasonalityLookbackEpochs:]
	}

	var weekday, weekend []float64
	for _, e := range recent {
		if e.Weekend {
			weekend = append(weekend, e.APR)
		} else {
			weekday = append(weekday, e.APR)
		}
	}

	if len(weekday) < config.SeasonalityMinSamples || len(weekend) < config.SeasonalityMinSamples {
		return 1.0
	}

	medianWeekday := median(weekday)
	if medianWeekday <= 0 {
		return 1.0
	}

	return median(weekend) / medianWeekday
}

// median mutates its argument's order (callers pass scratch slices).
// Even-length inputs average the two middle values.
func median(values []float64) float64 {
	sort.Float64s(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

// Forecast blends the two EMAs into a forward APR percentage. Weekday weights
// favor the short window, weekend weights the long window; the seasonality
// multiplier is applied last. The result is not clamped; callers reject
// non-positive forecasts downstream.
func Forecast(ema3d, ema7d, seasonality float64, weekend bool) float64 {
	var rHat float64
	if weekend {
		rHat = config.WeekendW7D*ema7d + config.WeekendW3D*ema3d
	} else {
		rHat = config.WeekdayW7D*ema7d + config.WeekdayW3D*ema3d
	}
	return rHat * seasonality
}
