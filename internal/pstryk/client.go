package pstryk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mateusz-orawczak/pstryk-bridge/internal/observability"
	"github.com/mateusz-orawczak/pstryk-bridge/internal/snapshot"
)

const (
	// windowTimeLayout is the explicit-window timestamp format the meter
	// endpoints expect.
	windowTimeLayout = "2006-01-02T15:04:05.000Z"

	DefaultRequestTimeout = 10 * time.Second
	DefaultUsageField     = "fae_usage"
	DefaultCostField      = "fae_cost"
)

// Client issues authenticated REST calls for usage, cost and price data.
// Every call goes through the TokenManager first, carries its own timeout
// and converts transport failures into typed errors; a failed field group
// never takes the other groups down with it.
type Client struct {
	baseURL    string
	timeout    time.Duration
	usageField string
	costField  string
	combined   bool
	loc        *time.Location
	httpClient *http.Client
	tokens     *TokenManager
	log        *slog.Logger
	now        func() time.Time
}

type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	UsageField string
	CostField  string
	// Combined selects the later API revision where a single endpoint
	// returns prices and usage aggregates together.
	Combined   bool
	Location   *time.Location
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewClient(tokens *TokenManager, cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}
	if cfg.UsageField == "" {
		cfg.UsageField = DefaultUsageField
	}
	if cfg.CostField == "" {
		cfg.CostField = DefaultCostField
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		timeout:    cfg.Timeout,
		usageField: cfg.UsageField,
		costField:  cfg.CostField,
		combined:   cfg.Combined,
		loc:        cfg.Location,
		httpClient: cfg.HTTPClient,
		tokens:     tokens,
		log:        cfg.Logger.With("component", "poller"),
		now:        time.Now,
	}
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	token, err := c.tokens.EnsureValid(ctx)
	if err != nil {
		return err
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &FetchError{Endpoint: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return &FetchError{Endpoint: path, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ParseError{Err: err}
	}
	return nil
}

// fetchWindowTotal calls one usage or cost window endpoint and picks the
// configured total field out of the response body.
func (c *Client) fetchWindowTotal(ctx context.Context, meterID, kind, resolution string, start, end time.Time, field string) (*float64, error) {
	path := fmt.Sprintf("/api/meter-data/%s/power-%s/", meterID, kind)

	q := url.Values{}
	q.Set("resolution", resolution)
	q.Set("window_start", start.UTC().Format(windowTimeLayout))
	q.Set("window_end", end.UTC().Format(windowTimeLayout))

	var totals windowTotals
	if err := c.getJSON(ctx, path, q, &totals); err != nil {
		return nil, err
	}
	v, ok := totals[field]
	if !ok {
		return nil, &ParseError{Err: fmt.Errorf("field %q missing from %s response", field, path)}
	}
	return &v, nil
}

// FetchUsageCost fetches the day/week/month usage and cost windows. A
// window that fails is left nil and logged; the call errors only when every
// window failed.
func (c *Client) FetchUsageCost(ctx context.Context) (snapshot.Snapshot, error) {
	var upd snapshot.Snapshot

	meterID, err := c.tokens.ResolveMeterID(ctx)
	if err != nil {
		observability.FetchTotal.WithLabelValues("usage_cost", "error").Inc()
		return upd, err
	}

	now := c.now().In(c.loc)
	windows := []struct {
		resolution string
		start, end time.Time
		usage      **float64
		cost       **float64
	}{
		{"hour", startOfDay(now), now, &upd.TodayUsage, &upd.TodayCost},
		{"week", startOfWeek(now), now, &upd.WeekUsage, &upd.WeekCost},
		{"month", startOfMonth(now), now, &upd.MonthUsage, &upd.MonthCost},
	}

	ok := false
	for _, w := range windows {
		if v, err := c.fetchWindowTotal(ctx, meterID, "usage", w.resolution, w.start, w.end, c.usageField); err != nil {
			c.log.Warn("usage window unavailable", "resolution", w.resolution, "error", err)
		} else {
			*w.usage = v
			ok = true
		}
		if v, err := c.fetchWindowTotal(ctx, meterID, "cost", w.resolution, w.start, w.end, c.costField); err != nil {
			c.log.Warn("cost window unavailable", "resolution", w.resolution, "error", err)
		} else {
			*w.cost = v
			ok = true
		}
	}

	if !ok {
		observability.FetchTotal.WithLabelValues("usage_cost", "error").Inc()
		return upd, &FetchError{Endpoint: "meter-data", Err: fmt.Errorf("all usage/cost windows failed")}
	}

	observability.FetchTotal.WithLabelValues("usage_cost", "ok").Inc()
	updated := c.now()
	upd.UsageUpdated = &updated
	return upd, nil
}

// FetchPrices fetches up to 48 hourly price frames starting at the current
// hour and folds them into a price-only snapshot update.
func (c *Client) FetchPrices(ctx context.Context) (snapshot.Snapshot, error) {
	meterID, err := c.tokens.ResolveMeterID(ctx)
	if err != nil {
		observability.FetchTotal.WithLabelValues("prices", "error").Inc()
		return snapshot.Snapshot{}, err
	}

	now := c.now().In(c.loc)
	start := now.Truncate(time.Hour)

	q := url.Values{}
	q.Set("resolution", "hour")
	q.Set("window_start", start.UTC().Format(windowTimeLayout))
	q.Set("window_end", start.Add(48*time.Hour).UTC().Format(windowTimeLayout))

	var resp pricesResponse
	path := fmt.Sprintf("/api/meter-data/%s/pricing/", meterID)
	if err := c.getJSON(ctx, path, q, &resp); err != nil {
		observability.FetchTotal.WithLabelValues("prices", "error").Inc()
		return snapshot.Snapshot{}, err
	}

	frames, err := parseFrames(resp.Frames)
	if err != nil {
		observability.FetchTotal.WithLabelValues("prices", "error").Inc()
		return snapshot.Snapshot{}, err
	}

	observability.FetchTotal.WithLabelValues("prices", "ok").Inc()
	return buildPriceUpdate(frames, resp.PriceGrossAvg, now), nil
}

// FetchAll aggregates every field group into one update. With the combined
// API revision a single call covers prices and usage; otherwise the two
// groups are fetched independently so a slow or failing one cannot stall
// the other. The call errors only when no group produced data.
func (c *Client) FetchAll(ctx context.Context) (snapshot.Snapshot, error) {
	if c.combined {
		return c.fetchCombined(ctx)
	}

	var upd snapshot.Snapshot
	ok := false

	if prices, err := c.FetchPrices(ctx); err != nil {
		c.log.Warn("price fetch failed, keeping previous values", "error", err)
	} else {
		upd = prices
		ok = true
	}

	if usage, err := c.FetchUsageCost(ctx); err != nil {
		c.log.Warn("usage/cost fetch failed, keeping previous values", "error", err)
	} else {
		upd.TodayUsage = usage.TodayUsage
		upd.TodayCost = usage.TodayCost
		upd.WeekUsage = usage.WeekUsage
		upd.WeekCost = usage.WeekCost
		upd.MonthUsage = usage.MonthUsage
		upd.MonthCost = usage.MonthCost
		upd.UsageUpdated = usage.UsageUpdated
		ok = true
	}

	if !ok {
		return upd, &FetchError{Endpoint: "fetch-all", Err: fmt.Errorf("no field group available")}
	}
	return upd, nil
}

type combinedResponse struct {
	Frames        []priceFrameRecord `json:"frames"`
	PriceGrossAvg *float64           `json:"price_gross_avg,omitempty"`
	DayToDate     map[string]float64 `json:"day_to_date"`
	WeekToDate    map[string]float64 `json:"week_to_date"`
	MonthToDate   map[string]float64 `json:"month_to_date"`
}

func (c *Client) fetchCombined(ctx context.Context) (snapshot.Snapshot, error) {
	meterID, err := c.tokens.ResolveMeterID(ctx)
	if err != nil {
		observability.FetchTotal.WithLabelValues("combined", "error").Inc()
		return snapshot.Snapshot{}, err
	}

	now := c.now().In(c.loc)
	start := now.Truncate(time.Hour)

	q := url.Values{}
	q.Set("resolution", "hour")
	q.Set("window_start", start.UTC().Format(windowTimeLayout))
	q.Set("window_end", start.Add(48*time.Hour).UTC().Format(windowTimeLayout))

	var resp combinedResponse
	path := fmt.Sprintf("/api/meter-data/%s/energy-usage/", meterID)
	if err := c.getJSON(ctx, path, q, &resp); err != nil {
		observability.FetchTotal.WithLabelValues("combined", "error").Inc()
		return snapshot.Snapshot{}, err
	}

	frames, err := parseFrames(resp.Frames)
	if err != nil {
		observability.FetchTotal.WithLabelValues("combined", "error").Inc()
		return snapshot.Snapshot{}, err
	}

	upd := buildPriceUpdate(frames, resp.PriceGrossAvg, now)
	applyAggregate(&upd, pushAggregate{
		DayToDate:   resp.DayToDate,
		WeekToDate:  resp.WeekToDate,
		MonthToDate: resp.MonthToDate,
	}, c.usageField, c.costField, c.now())

	observability.FetchTotal.WithLabelValues("combined", "ok").Inc()
	return upd, nil
}

func parseFrames(records []priceFrameRecord) ([]PriceFrame, error) {
	frames := make([]PriceFrame, 0, len(records))
	for _, r := range records {
		if r.Start == "" || r.PriceGross == nil {
			continue
		}
		start, err := time.Parse(time.RFC3339, r.Start)
		if err != nil {
			return nil, &ParseError{Err: fmt.Errorf("bad frame start %q: %w", r.Start, err)}
		}
		frames = append(frames, PriceFrame{Start: start, Gross: *r.PriceGross})
	}
	return frames, nil
}

// applyAggregate copies the usage/cost fields of a day/week/month aggregate
// into an update, leaving price fields untouched.
func applyAggregate(upd *snapshot.Snapshot, agg pushAggregate, usageField, costField string, now time.Time) {
	pick := func(m map[string]float64, field string) *float64 {
		if m == nil {
			return nil
		}
		if v, ok := m[field]; ok {
			return &v
		}
		return nil
	}

	upd.TodayUsage = pick(agg.DayToDate, usageField)
	upd.TodayCost = pick(agg.DayToDate, costField)
	upd.WeekUsage = pick(agg.WeekToDate, usageField)
	upd.WeekCost = pick(agg.WeekToDate, costField)
	upd.MonthUsage = pick(agg.MonthToDate, usageField)
	upd.MonthCost = pick(agg.MonthToDate, costField)
	upd.UsageUpdated = &now
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func startOfWeek(t time.Time) time.Time {
	d := startOfDay(t)
	offset := (int(d.Weekday()) + 6) % 7 // weeks start on Monday
	return d.AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
