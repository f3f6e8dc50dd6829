package pstryk

import (
	"time"

	"github.com/mateusz-orawczak/pstryk-bridge/internal/snapshot"
)

// framesPerPeriod is the number of aligned hourly frames in one pricing
// period. The API publishes up to two periods (48 frames); the second one
// only appears in the afternoon of the prior day, so its absence is normal.
const framesPerPeriod = 24

// PriceFrame is one timestamped gross price.
type PriceFrame struct {
	Start time.Time
	Gross float64
}

// PricePartition is one 24-frame period with its derived values. Average
// and CheapestAt are nil when the partition is empty.
type PricePartition struct {
	Frames     []PriceFrame
	Average    *float64
	CheapestAt *time.Time
}

// partitionFrames splits an ordered sequence of hourly frames into the
// current period (first 24) and the next period (anything after, capped at
// 24). apiAvg, when the API provides a precomputed average, is used as-is
// for the current period; every other average is the arithmetic mean.
func partitionFrames(frames []PriceFrame, apiAvg *float64) (current, next PricePartition) {
	cut := len(frames)
	if cut > framesPerPeriod {
		cut = framesPerPeriod
	}
	end := len(frames)
	if end > 2*framesPerPeriod {
		end = 2 * framesPerPeriod
	}

	current = summarize(frames[:cut])
	if apiAvg != nil {
		current.Average = apiAvg
	}
	next = summarize(frames[cut:end])
	return current, next
}

func summarize(frames []PriceFrame) PricePartition {
	p := PricePartition{Frames: frames}
	if len(frames) == 0 {
		return p
	}

	sum := 0.0
	cheapest := frames[0]
	for _, f := range frames {
		sum += f.Gross
		// strict less-than keeps the earliest frame on ties
		if f.Gross < cheapest.Gross {
			cheapest = f
		}
	}

	avg := sum / float64(len(frames))
	p.Average = &avg
	at := cheapest.Start
	p.CheapestAt = &at
	return p
}

// priceAtHour returns the gross price of the frame covering the hour of t,
// or nil if no frame covers it.
func priceAtHour(frames []PriceFrame, t time.Time) *float64 {
	hour := t.Truncate(time.Hour)
	for _, f := range frames {
		if f.Start.Equal(hour) {
			g := f.Gross
			return &g
		}
	}
	return nil
}

// buildPriceUpdate folds parsed frames into a partial snapshot touching
// only price fields.
func buildPriceUpdate(frames []PriceFrame, apiAvg *float64, now time.Time) snapshot.Snapshot {
	current, next := partitionFrames(frames, apiAvg)

	hourly := make(map[string]float64, len(frames))
	for _, f := range frames {
		hourly[f.Start.Format(time.RFC3339)] = f.Gross
	}

	updated := now
	return snapshot.Snapshot{
		CurrentPrice:       priceAtHour(frames, now),
		NextHourPrice:      priceAtHour(frames, now.Add(time.Hour)),
		TodayPriceAvg:      current.Average,
		TodayCheapestAt:    current.CheapestAt,
		TomorrowPriceAvg:   next.Average,
		TomorrowCheapestAt: next.CheapestAt,
		HourlyPrices:       hourly,
		PricesUpdated:      &updated,
	}
}
