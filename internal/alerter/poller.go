package alerter

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stormguard/stormguard/internal/metrics"
	"github.com/stormguard/stormguard/internal/store"
	"github.com/stormguard/stormguard/internal/types"
)

// AlertSource fetches the active alerts for a point. Failures yield an empty result.
type AlertSource interface {
	Fetch(ctx context.Context, lat, lon float64) []types.Alert
}

// EntityLister provides the monitored entities
type EntityLister interface {
	List() []store.Entity
	Lookup(id string) (store.Entity, bool)
}

// Trigger accepts matched alerts. *Sequencer implements it.
type Trigger interface {
	OnAlertMatched(ctx context.Context, entityID string, alert types.Alert) bool
	Pending(entityID string) bool
}

// Poller periodically checks every enabled entity for tracked alerts
type Poller struct {
	log      zerolog.Logger
	source   AlertSource
	entities EntityLister
	trigger  Trigger
	metrics  *metrics.Metrics
	interval time.Duration
	now      func() time.Time

	mu          sync.Mutex
	lastChecked map[string]time.Time // entity id -> time of last fetch
}

// NewPoller creates a poller that ticks every interval
func NewPoller(log zerolog.Logger, source AlertSource, entities EntityLister, trigger Trigger, m *metrics.Metrics, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Poller{
		log:         log.With().Str("component", "poller").Logger(),
		source:      source,
		entities:    entities,
		trigger:     trigger,
		metrics:     m,
		interval:    interval,
		now:         time.Now,
		lastChecked: make(map[string]time.Time),
	}
}

// Run ticks once immediately and then every interval until ctx is done.
// Ticks run on this goroutine, so they never overlap.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info().Dur("interval", p.interval).Msg("Alert poller started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("Alert poller stopped")
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick evaluates every entity that is due
func (p *Poller) Tick(ctx context.Context) {
	p.metrics.PollTick()
	now := p.now()

	for _, ent := range p.entities.List() {
		if ctx.Err() != nil {
			return
		}
		if !ent.Enabled || ent.Location == nil {
			continue
		}
		if !p.due(ent, now) {
			continue
		}

		matches := p.evaluate(ctx, ent)
		p.markChecked(ent.ID, now)
		if len(matches) == 0 {
			continue
		}
		if p.trigger.Pending(ent.ID) {
			p.log.Debug().Str("entity", ent.ID).Msg("Sequence pending, match ignored")
			continue
		}
		p.trigger.OnAlertMatched(ctx, ent.ID, matches[0])
	}
}

// CheckNow evaluates one entity immediately and returns its first match.
// It does not start a sequence or touch the entity's schedule.
func (p *Poller) CheckNow(ctx context.Context, entityID string) (types.Alert, bool) {
	ent, ok := p.entities.Lookup(entityID)
	if !ok || ent.Location == nil {
		return types.Alert{}, false
	}
	matches := p.evaluate(ctx, ent)
	if len(matches) == 0 {
		return types.Alert{}, false
	}
	return matches[0], true
}

func (p *Poller) evaluate(ctx context.Context, ent store.Entity) []types.Alert {
	alerts := p.source.Fetch(ctx, ent.Location.Latitude, ent.Location.Longitude)
	matches := Filter(alerts, ent.Alerts)

	p.log.Debug().
		Str("entity", ent.ID).
		Int("alerts", len(alerts)).
		Int("matches", len(matches)).
		Msg("Entity checked")

	for _, m := range matches {
		p.metrics.AlertMatched(m.EventType)
	}
	return matches
}

// due reports whether the entity's monitoring interval has elapsed. Ticks jitter, so
// anything within half a poll interval of its deadline counts as due.
func (p *Poller) due(ent store.Entity, now time.Time) bool {
	interval := ent.MonitoringInterval
	if interval <= 0 {
		interval = store.DefaultMonitoringInterval
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.lastChecked[ent.ID]
	return !ok || now.Sub(last) >= interval-p.interval/2
}

func (p *Poller) markChecked(id string, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastChecked[id] = at
}
