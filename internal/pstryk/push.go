package pstryk

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mateusz-orawczak/pstryk-bridge/internal/observability"
	"github.com/mateusz-orawczak/pstryk-bridge/internal/snapshot"
)

// PushState is the connection state of the push channel.
type PushState int32

const (
	StateDisconnected PushState = iota
	StateConnecting
	StateConnected
	StateShutdown
)

func (s PushState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

const (
	DefaultBackoffBase    = 5 * time.Second
	DefaultBackoffMax     = 300 * time.Second
	DefaultReconnectEvery = 2 * time.Hour
	DefaultPingInterval   = 30 * time.Second
)

// PushChannel maintains the persistent usage-update subscription. A single
// supervising loop owns the whole lifecycle: it dials, reads until the
// connection drops or the scheduled reconnect fires, then backs off and
// dials again. It never exits except on context cancellation.
//
// Push frames carry usage and cost aggregates only; price fields are never
// touched by this path.
type PushChannel struct {
	url            string
	timezone       string
	backoffBase    time.Duration
	backoffMax     time.Duration
	reconnectEvery time.Duration
	pingInterval   time.Duration
	usageField     string
	costField      string

	tokens  *TokenManager
	dialer  *websocket.Dialer
	updates chan snapshot.Snapshot
	log     *slog.Logger
	state   atomic.Int32
	now     func() time.Time
	wait    func(ctx context.Context, d time.Duration) error
}

type PushConfig struct {
	// URL is the push endpoint with a {meter_id} placeholder.
	URL            string
	Timezone       string
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	ReconnectEvery time.Duration
	PingInterval   time.Duration
	UsageField     string
	CostField      string
	Dialer         *websocket.Dialer
	Logger         *slog.Logger
}

func NewPushChannel(tokens *TokenManager, cfg PushConfig) *PushChannel {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = DefaultBackoffMax
	}
	if cfg.ReconnectEvery <= 0 {
		cfg.ReconnectEvery = DefaultReconnectEvery
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.UsageField == "" {
		cfg.UsageField = DefaultUsageField
	}
	if cfg.CostField == "" {
		cfg.CostField = DefaultCostField
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &PushChannel{
		url:            cfg.URL,
		timezone:       cfg.Timezone,
		backoffBase:    cfg.BackoffBase,
		backoffMax:     cfg.BackoffMax,
		reconnectEvery: cfg.ReconnectEvery,
		pingInterval:   cfg.PingInterval,
		usageField:     cfg.UsageField,
		costField:      cfg.CostField,
		tokens:         tokens,
		dialer:         cfg.Dialer,
		updates:        make(chan snapshot.Snapshot, 8),
		log:            cfg.Logger.With("component", "push"),
		now:            time.Now,
		wait:           sleepCtx,
	}
}

// Updates delivers one partial snapshot per valid push frame.
func (p *PushChannel) Updates() <-chan snapshot.Snapshot {
	return p.updates
}

func (p *PushChannel) State() PushState {
	return PushState(p.state.Load())
}

// Run supervises the connection until ctx is cancelled. Consecutive
// failures back off exponentially from the base delay up to the cap; one
// successful connection resets the sequence. A handshake rejected with a
// 500-class status gets a single token refresh before the next attempt.
func (p *PushChannel) Run(ctx context.Context) {
	defer p.state.Store(int32(StateShutdown))

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		p.state.Store(int32(StateConnecting))
		connected, err := p.runConnection(ctx)
		p.state.Store(int32(StateDisconnected))

		if connected {
			failures = 0
		}
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			// scheduled reconnect, dial again right away
			continue
		}

		p.log.Warn("push connection ended", "error", err)

		var chErr *ChannelError
		if errors.As(err, &chErr) && chErr.AuthRejected() {
			if p.tokens.Refresh(ctx) {
				p.log.Debug("token refreshed after handshake rejection")
			}
		}

		failures++
		if err := p.wait(ctx, backoffDelay(p.backoffBase, p.backoffMax, failures)); err != nil {
			return
		}
	}
}

// runConnection dials once and reads until the connection ends. It reports
// whether the handshake succeeded, so the caller knows when to reset the
// backoff. A nil error with connected=true means a planned closure.
func (p *PushChannel) runConnection(ctx context.Context) (connected bool, err error) {
	meterID, err := p.tokens.ResolveMeterID(ctx)
	if err != nil {
		return false, &ChannelError{Op: "resolve", Err: err}
	}
	token, err := p.tokens.EnsureValid(ctx)
	if err != nil {
		return false, &ChannelError{Op: "resolve", Err: err}
	}

	target := strings.Replace(p.url, "{meter_id}", meterID, 1)
	if p.timezone != "" {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + "timezone=" + p.timezone
	}

	header := http.Header{}
	header.Set("Sec-WebSocket-Protocol", token)

	conn, resp, err := p.dialer.DialContext(ctx, target, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		observability.PushConnects.WithLabelValues("error").Inc()
		return false, &ChannelError{Op: "handshake", StatusCode: status, Err: err}
	}
	observability.PushConnects.WithLabelValues("ok").Inc()
	p.state.Store(int32(StateConnected))
	p.log.Info("push channel connected", "meter_id", meterID)

	// The watcher owns closing the socket: on cancellation, on the
	// scheduled reconnect, and when the read loop returns.
	var planned atomic.Bool
	done := make(chan struct{})
	defer close(done)
	go func() {
		reconnect := time.NewTimer(p.reconnectEvery)
		defer reconnect.Stop()
		ping := time.NewTicker(p.pingInterval)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-reconnect.C:
				planned.Store(true)
				conn.Close()
				return
			case <-ping.C:
				conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			case <-done:
				conn.Close()
				return
			}
		}
	}()

	first := true
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, ctx.Err()
			}
			if planned.Load() {
				p.log.Debug("scheduled reconnect")
				return true, nil
			}
			return true, &ChannelError{Op: "read", Err: err}
		}

		if first {
			// the upstream replays a stale aggregate right after connect
			first = false
			observability.PushFrames.WithLabelValues("discarded").Inc()
			continue
		}

		var agg pushAggregate
		if err := json.Unmarshal(data, &agg); err != nil {
			observability.PushFrames.WithLabelValues("malformed").Inc()
			p.log.Warn("dropping push frame", "error", &ParseError{Err: err})
			continue
		}

		var upd snapshot.Snapshot
		applyAggregate(&upd, agg, p.usageField, p.costField, p.now())
		observability.PushFrames.WithLabelValues("ok").Inc()

		select {
		case p.updates <- upd:
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
}

// backoffDelay is the reconnect delay after the given number of
// consecutive failures: base, 2*base, 4*base, ... capped at max.
func backoffDelay(base, max time.Duration, failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	d := base
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
