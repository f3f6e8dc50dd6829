package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mateusz-orawczak/pstryk-bridge/internal/config"
	"github.com/mateusz-orawczak/pstryk-bridge/internal/observability"
	"github.com/mateusz-orawczak/pstryk-bridge/internal/pstryk"
	"github.com/mateusz-orawczak/pstryk-bridge/internal/snapshot"
)

// Bridge wires the token manager, REST poller and push channel around one
// shared snapshot store. The host reads the store; the bridge keeps it
// fresh on a best-effort basis. After setup, no failure is ever surfaced
// upward: a failed cycle just leaves the previous snapshot in place.
type Bridge struct {
	cfg    *config.Config
	tokens *pstryk.TokenManager
	client *pstryk.Client
	push   *pstryk.PushChannel
	store  *snapshot.Store
	log    *slog.Logger
}

func New(cfg *config.Config, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	httpClient := &http.Client{Timeout: cfg.API.Timeout}

	tokens := pstryk.NewTokenManager(pstryk.TokenManagerConfig{
		BaseURL:       cfg.API.BaseURL,
		Email:         cfg.Account.Email,
		Password:      cfg.Account.Password,
		TokenValidity: cfg.API.TokenValidity,
		HTTPClient:    httpClient,
		Logger:        log,
	})

	client := pstryk.NewClient(tokens, pstryk.ClientConfig{
		BaseURL:    cfg.API.BaseURL,
		Timeout:    cfg.API.Timeout,
		UsageField: cfg.API.UsageField,
		CostField:  cfg.API.CostField,
		Combined:   cfg.API.Combined,
		Location:   cfg.Location(),
		HTTPClient: httpClient,
		Logger:     log,
	})

	push := pstryk.NewPushChannel(tokens, pstryk.PushConfig{
		URL:            cfg.Push.URL,
		Timezone:       cfg.API.Timezone,
		BackoffBase:    cfg.Push.BackoffBase,
		BackoffMax:     cfg.Push.BackoffMax,
		ReconnectEvery: cfg.Push.ReconnectEvery,
		PingInterval:   cfg.Push.PingInterval,
		UsageField:     cfg.API.UsageField,
		CostField:      cfg.API.CostField,
		Logger:         log,
	})

	return &Bridge{
		cfg:    cfg,
		tokens: tokens,
		client: client,
		push:   push,
		store:  snapshot.NewStore(),
		log:    log.With("component", "bridge"),
	}
}

// Run authenticates, does a first fetch and drives the background tasks
// until ctx is cancelled. Only the initial authentication failure is
// returned as an error.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.tokens.Authenticate(ctx); err != nil {
		return fmt.Errorf("initial authentication: %w", err)
	}
	if _, err := b.tokens.ResolveMeterID(ctx); err != nil {
		// retried by the first fetch that needs it
		b.log.Warn("meter identity not resolved yet", "error", err)
	}

	if _, err := b.FetchAll(ctx); err != nil {
		b.log.Warn("initial fetch incomplete", "error", err)
	}

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		b.pollLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		b.push.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		b.applyLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		b.rolloverLoop(ctx)
	}()
	wg.Wait()
	return nil
}

// Once authenticates and performs a single fetch without starting any
// background task. Used by one-shot consumers.
func (b *Bridge) Once(ctx context.Context) (snapshot.Snapshot, error) {
	if err := b.tokens.Authenticate(ctx); err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("initial authentication: %w", err)
	}
	return b.FetchAll(ctx)
}

// FetchAll pulls every field group once, applies the result and returns
// the merged snapshot. On error the previous snapshot is returned
// unchanged.
func (b *Bridge) FetchAll(ctx context.Context) (snapshot.Snapshot, error) {
	upd, err := b.client.FetchAll(ctx)
	if err != nil {
		return b.store.Current(), err
	}
	merged := b.store.Apply(upd)
	observability.SnapshotApplies.WithLabelValues("poll").Inc()
	return merged, nil
}

// Snapshot returns the current merged view.
func (b *Bridge) Snapshot() snapshot.Snapshot {
	return b.store.Current()
}

// SnapshotAge reports how long ago the last update was applied.
func (b *Bridge) SnapshotAge() time.Duration {
	at := b.store.UpdatedAt()
	if at.IsZero() {
		return 0
	}
	return time.Since(at)
}

// Subscribe registers fn to run after every snapshot update.
func (b *Bridge) Subscribe(fn func(snapshot.Snapshot)) {
	b.store.Subscribe(fn)
}

// PushState exposes the push channel state for status reporting.
func (b *Bridge) PushState() pstryk.PushState {
	return b.push.State()
}

func (b *Bridge) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.API.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := b.FetchAll(ctx); err != nil {
				b.log.Warn("poll cycle failed, snapshot unchanged", "error", err)
			}
		}
	}
}

func (b *Bridge) applyLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case upd := <-b.push.Updates():
			b.store.Apply(upd)
			observability.SnapshotApplies.WithLabelValues("push").Inc()
		}
	}
}

// rolloverLoop promotes next-period price data to current once per
// calendar day and follows up with a fresh price fetch.
func (b *Bridge) rolloverLoop(ctx context.Context) {
	loc := b.cfg.Location()
	for {
		now := time.Now().In(loc)
		next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		b.store.Rollover()
		observability.SnapshotApplies.WithLabelValues("rollover").Inc()
		b.log.Info("daily rollover applied")

		if upd, err := b.client.FetchPrices(ctx); err != nil {
			b.log.Warn("post-rollover price fetch failed", "error", err)
		} else {
			b.store.Apply(upd)
		}
	}
}
