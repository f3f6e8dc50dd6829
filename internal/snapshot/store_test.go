package snapshot

import (
	"testing"
	"time"
)

func TestApplyMergesNewFields(t *testing.T) {
	s := NewStore()

	s.Apply(Snapshot{TodayUsage: Ptr(1.5), TodayCost: Ptr(0.9)})
	got := s.Apply(Snapshot{TodayUsage: Ptr(2.0)})

	if got.TodayUsage == nil || *got.TodayUsage != 2.0 {
		t.Errorf("expected today usage 2.0, got %v", got.TodayUsage)
	}
	if got.TodayCost == nil || *got.TodayCost != 0.9 {
		t.Errorf("expected today cost to survive, got %v", got.TodayCost)
	}
}

func TestApplyUsageUpdateLeavesPriceFields(t *testing.T) {
	s := NewStore()
	now := time.Now()

	s.Apply(Snapshot{
		CurrentPrice:  Ptr(0.65),
		TodayPriceAvg: Ptr(0.71),
		HourlyPrices:  map[string]float64{"2025-06-01T10:00:00Z": 0.65},
		PricesUpdated: &now,
	})

	got := s.Apply(Snapshot{
		TodayUsage: Ptr(3.2),
		WeekCost:   Ptr(12.5),
	})

	if got.CurrentPrice == nil || *got.CurrentPrice != 0.65 {
		t.Errorf("price field was wiped by usage update: %v", got.CurrentPrice)
	}
	if got.TodayPriceAvg == nil || *got.TodayPriceAvg != 0.71 {
		t.Errorf("average price was wiped: %v", got.TodayPriceAvg)
	}
	if len(got.HourlyPrices) != 1 {
		t.Errorf("hourly prices were wiped: %v", got.HourlyPrices)
	}
	if got.TodayUsage == nil || *got.TodayUsage != 3.2 {
		t.Errorf("usage field not applied: %v", got.TodayUsage)
	}
}

func TestApplyEmptyUpdateIsNoop(t *testing.T) {
	s := NewStore()
	s.Apply(Snapshot{MonthUsage: Ptr(40.0)})

	got := s.Apply(Snapshot{})
	if got.MonthUsage == nil || *got.MonthUsage != 40.0 {
		t.Errorf("empty update changed stored value: %v", got.MonthUsage)
	}
}

func TestCurrentReturnsIsolatedCopy(t *testing.T) {
	s := NewStore()
	s.Apply(Snapshot{HourlyPrices: map[string]float64{"a": 1}})

	c := s.Current()
	c.HourlyPrices["b"] = 2

	if len(s.Current().HourlyPrices) != 1 {
		t.Error("mutating a returned snapshot leaked into the store")
	}
}

func TestRolloverPromotesNextPeriod(t *testing.T) {
	s := NewStore()
	at := time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC)
	s.Apply(Snapshot{
		TodayPriceAvg:      Ptr(0.70),
		TodayCheapestAt:    Ptr(time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)),
		TomorrowPriceAvg:   Ptr(0.55),
		TomorrowCheapestAt: &at,
	})

	got := s.Rollover()

	if got.TodayPriceAvg == nil || *got.TodayPriceAvg != 0.55 {
		t.Errorf("next-period average not promoted: %v", got.TodayPriceAvg)
	}
	if got.TodayCheapestAt == nil || !got.TodayCheapestAt.Equal(at) {
		t.Errorf("next-period cheapest hour not promoted: %v", got.TodayCheapestAt)
	}
	if got.TomorrowPriceAvg != nil || got.TomorrowCheapestAt != nil {
		t.Error("next-period fields not cleared after rollover")
	}
}

func TestSubscribeSeesEveryApply(t *testing.T) {
	s := NewStore()

	var seen []Snapshot
	s.Subscribe(func(snap Snapshot) {
		seen = append(seen, snap)
	})

	s.Apply(Snapshot{TodayUsage: Ptr(1.0)})
	s.Apply(Snapshot{TodayCost: Ptr(2.0)})

	if len(seen) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(seen))
	}
	last := seen[1]
	if last.TodayUsage == nil || *last.TodayUsage != 1.0 {
		t.Error("subscriber saw a partially merged snapshot")
	}
	if last.TodayCost == nil || *last.TodayCost != 2.0 {
		t.Error("subscriber did not see the latest field")
	}
}
