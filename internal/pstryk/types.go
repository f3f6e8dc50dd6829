package pstryk

import "encoding/json"

type tokenPairResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type accessTokenResponse struct {
	Access string `json:"access"`
}

// meterRecord is one entry of the account endpoint response. The id has
// been observed both as a number and as a string across API revisions.
type meterRecord struct {
	ID   json.Number `json:"id"`
	Name string      `json:"name,omitempty"`
}

type priceFrameRecord struct {
	Start      string   `json:"start"`
	PriceGross *float64 `json:"price_gross"`
}

type pricesResponse struct {
	Frames        []priceFrameRecord `json:"frames"`
	PriceGrossAvg *float64           `json:"price_gross_avg,omitempty"`
}

// windowTotals is the body of a usage or cost window endpoint: named
// numeric fields whose exact names vary across API revisions, so the
// interesting field is selected by configured name.
type windowTotals map[string]float64

// pushAggregate is one push frame: nested day/week/month-to-date usage and
// cost aggregates keyed by revision-dependent field names.
type pushAggregate struct {
	DayToDate   map[string]float64 `json:"day_to_date"`
	WeekToDate  map[string]float64 `json:"week_to_date"`
	MonthToDate map[string]float64 `json:"month_to_date"`
}
