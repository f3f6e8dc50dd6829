package snapshot

import "time"

// Snapshot is the merged view of every tracked field. All fields are
// optional: a nil field means the value has not been observed yet, and an
// update that leaves a field nil does not touch the stored value.
type Snapshot struct {
	TodayUsage *float64 `json:"today_usage,omitempty"`
	TodayCost  *float64 `json:"today_cost,omitempty"`
	WeekUsage  *float64 `json:"week_usage,omitempty"`
	WeekCost   *float64 `json:"week_cost,omitempty"`
	MonthUsage *float64 `json:"month_usage,omitempty"`
	MonthCost  *float64 `json:"month_cost,omitempty"`

	CurrentPrice  *float64 `json:"current_price,omitempty"`
	NextHourPrice *float64 `json:"next_hour_price,omitempty"`

	TodayPriceAvg      *float64   `json:"today_price_avg,omitempty"`
	TodayCheapestAt    *time.Time `json:"today_cheapest_at,omitempty"`
	TomorrowPriceAvg   *float64   `json:"tomorrow_price_avg,omitempty"`
	TomorrowCheapestAt *time.Time `json:"tomorrow_cheapest_at,omitempty"`

	HourlyPrices map[string]float64 `json:"hourly_prices,omitempty"`

	PricesUpdated *time.Time `json:"prices_updated,omitempty"`
	UsageUpdated  *time.Time `json:"usage_updated,omitempty"`
}

// Ptr is a helper to create pointer to a value
func Ptr[T any](v T) *T {
	return &v
}

// Clone returns a copy that shares no mutable state with the receiver.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.HourlyPrices != nil {
		out.HourlyPrices = make(map[string]float64, len(s.HourlyPrices))
		for k, v := range s.HourlyPrices {
			out.HourlyPrices[k] = v
		}
	}
	return out
}

// merge overlays the non-nil fields of u onto s. New values win per field,
// untouched fields survive.
func merge(s, u Snapshot) Snapshot {
	out := s
	if u.TodayUsage != nil {
		out.TodayUsage = u.TodayUsage
	}
	if u.TodayCost != nil {
		out.TodayCost = u.TodayCost
	}
	if u.WeekUsage != nil {
		out.WeekUsage = u.WeekUsage
	}
	if u.WeekCost != nil {
		out.WeekCost = u.WeekCost
	}
	if u.MonthUsage != nil {
		out.MonthUsage = u.MonthUsage
	}
	if u.MonthCost != nil {
		out.MonthCost = u.MonthCost
	}
	if u.CurrentPrice != nil {
		out.CurrentPrice = u.CurrentPrice
	}
	if u.NextHourPrice != nil {
		out.NextHourPrice = u.NextHourPrice
	}
	if u.TodayPriceAvg != nil {
		out.TodayPriceAvg = u.TodayPriceAvg
	}
	if u.TodayCheapestAt != nil {
		out.TodayCheapestAt = u.TodayCheapestAt
	}
	if u.TomorrowPriceAvg != nil {
		out.TomorrowPriceAvg = u.TomorrowPriceAvg
	}
	if u.TomorrowCheapestAt != nil {
		out.TomorrowCheapestAt = u.TomorrowCheapestAt
	}
	if u.HourlyPrices != nil {
		out.HourlyPrices = u.HourlyPrices
	}
	if u.PricesUpdated != nil {
		out.PricesUpdated = u.PricesUpdated
	}
	if u.UsageUpdated != nil {
		out.UsageUpdated = u.UsageUpdated
	}
	return out
}
