package alerter

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stormguard/stormguard/internal/metrics"
	"github.com/stormguard/stormguard/internal/notifier"
	"github.com/stormguard/stormguard/internal/store"
	"github.com/stormguard/stormguard/internal/types"
)

// ErrUsage is returned by Confirm for anything other than "yes" or "no"
var ErrUsage = errors.New("decision must be yes or no")

// TerminalAction runs once when a countdown completes without being cancelled
type TerminalAction func(ctx context.Context, entityID string, alert types.Alert) error

// EntityReader provides the current settings of an entity
type EntityReader interface {
	Get(id string) store.Entity
}

// Clock abstracts the waits between rounds
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// CancelResult reports what Cancel did
type CancelResult int

const (
	// Cancelled means a pending countdown was stopped
	Cancelled CancelResult = iota
	// NothingToCancel means no sequence was pending
	NothingToCancel
	// AlreadyCommitted means the terminal action had already started
	AlreadyCommitted
)

func (r CancelResult) String() string {
	switch r {
	case Cancelled:
		return "cancelled"
	case NothingToCancel:
		return "nothing_to_cancel"
	case AlreadyCommitted:
		return "already_committed"
	default:
		return "unknown"
	}
}

// ConfirmResult reports what Confirm did
type ConfirmResult struct {
	Decision string       // "yes" or "no"
	Pending  bool         // for "yes": whether a countdown is running
	Cancel   CancelResult // for "no": the outcome of the cancellation
}

// SequencerOptions shapes the countdown
type SequencerOptions struct {
	Rounds        int
	RoundInterval time.Duration
	Cooldown      time.Duration
	ConfirmHint   string // shown to admins, e.g. "/shutdown yes or /shutdown no"
	CancelHint    string // e.g. "/shutdown no"
	Clock         Clock
}

// SequenceStatus is a read-only view of one entity's sequence
type SequenceStatus struct {
	EntityID  string    `json:"entity_id"`
	Pending   bool      `json:"pending"`
	RunID     string    `json:"run_id,omitempty"`
	EventType string    `json:"event_type,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Round     int       `json:"round"`
	Committed bool      `json:"committed"`
}

// sequenceState is the per-entity record. All fields are guarded by mu.
type sequenceState struct {
	mu        sync.Mutex
	pending   bool
	cancel    context.CancelFunc
	runID     string
	committed bool
	alert     types.Alert
	startedAt time.Time
	round     int
}

// Sequencer runs the escalating shutdown countdown for each entity
type Sequencer struct {
	log       zerolog.Logger
	entities  EntityReader
	directory notifier.Directory
	sink      notifier.Sink
	terminal  TerminalAction
	metrics   *metrics.Metrics
	opts      SequencerOptions

	mu      sync.Mutex
	states  map[string]*sequenceState
	pending atomic.Int64
	wg      sync.WaitGroup
}

// NewSequencer creates a sequencer. Zero options fall back to 5 rounds, 1m apart, 5m cooldown.
func NewSequencer(log zerolog.Logger, entities EntityReader, directory notifier.Directory, sink notifier.Sink,
	terminal TerminalAction, m *metrics.Metrics, opts SequencerOptions) *Sequencer {
	if opts.Rounds <= 0 {
		opts.Rounds = 5
	}
	if opts.RoundInterval <= 0 {
		opts.RoundInterval = time.Minute
	}
	if opts.Cooldown < 0 {
		opts.Cooldown = 0
	} else if opts.Cooldown == 0 {
		opts.Cooldown = 5 * time.Minute
	}
	if opts.ConfirmHint == "" {
		opts.ConfirmHint = "/shutdown yes or /shutdown no"
	}
	if opts.CancelHint == "" {
		opts.CancelHint = "/shutdown no"
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}

	return &Sequencer{
		log:       log.With().Str("component", "sequencer").Logger(),
		entities:  entities,
		directory: directory,
		sink:      sink,
		terminal:  terminal,
		metrics:   m,
		opts:      opts,
		states:    make(map[string]*sequenceState),
	}
}

// state returns the entity's record, creating it on first use
func (s *Sequencer) state(entityID string) *sequenceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[entityID]
	if !ok {
		st = &sequenceState{}
		s.states[entityID] = st
	}
	return st
}

func (s *Sequencer) lookup(entityID string) *sequenceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[entityID]
}

// setPending flips the flag and keeps the gauge in step. Caller holds st.mu.
func (s *Sequencer) setPending(st *sequenceState, v bool) {
	if st.pending == v {
		return
	}
	st.pending = v
	if v {
		s.metrics.SetPending(int(s.pending.Add(1)))
	} else {
		s.metrics.SetPending(int(s.pending.Add(-1)))
	}
}

// reset returns the record to idle. Caller holds st.mu.
func (s *Sequencer) reset(st *sequenceState) {
	if st.cancel != nil {
		st.cancel()
	}
	s.setPending(st, false)
	st.cancel = nil
	st.runID = ""
	st.committed = false
	st.alert = types.Alert{}
	st.startedAt = time.Time{}
	st.round = 0
}

// Pending reports whether a sequence is in progress for the entity
func (s *Sequencer) Pending(entityID string) bool {
	st := s.lookup(entityID)
	if st == nil {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.pending
}

// OnAlertMatched accepts a matched alert and starts the countdown.
// It returns false when the entity is already pending or has no reachable admin.
// The entity is claimed under its lock; admins are resolved and notified without it.
func (s *Sequencer) OnAlertMatched(ctx context.Context, entityID string, alert types.Alert) bool {
	st := s.state(entityID)
	st.mu.Lock()
	if st.pending {
		runID := st.runID
		st.mu.Unlock()
		s.metrics.Sequence("debounced")
		s.log.Debug().
			Str("entity", entityID).
			Str("event", alert.EventType).
			Str("run_id", runID).
			Msg("Sequence already pending, skipping duplicate")
		return false
	}

	runID := uuid.NewString()
	runCtx, cancel := context.WithCancel(context.Background())
	s.setPending(st, true)
	st.cancel = cancel
	st.runID = runID
	st.committed = false
	st.alert = alert
	st.startedAt = time.Now()
	st.round = 0
	st.mu.Unlock()

	ent := s.entities.Get(entityID)
	targets := s.resolve(ctx, ent.Admins)
	if len(targets) == 0 {
		st.mu.Lock()
		if st.runID == runID {
			s.reset(st)
		}
		st.mu.Unlock()
		s.metrics.Sequence("aborted")
		s.log.Warn().
			Str("entity", entityID).
			Str("event", alert.EventType).
			Int("admins_configured", len(ent.Admins)).
			Msg("No reachable admins, shutdown sequence aborted")
		return false
	}

	s.log.Warn().
		Str("entity", entityID).
		Str("run_id", runID).
		Str("event", alert.EventType).
		Str("area", alert.AreaDescription).
		Int("admins", len(targets)).
		Msg("Severe weather alert accepted, starting shutdown sequence")

	// a cancel while the first messages are in flight stops the remaining sends
	sendCtx, stopSend := context.WithCancel(ctx)
	unhook := context.AfterFunc(runCtx, stopSend)
	msg := notifier.AlertMessage(alert, s.opts.ConfirmHint)
	s.notifyAll(sendCtx, entityID, targets, func(types.Recipient) types.Message { return msg })
	unhook()
	stopSend()

	st.mu.Lock()
	if st.runID != runID {
		st.mu.Unlock()
		s.log.Info().Str("entity", entityID).Str("run_id", runID).Msg("Sequence cancelled before countdown began")
		return true
	}
	s.wg.Add(1)
	st.mu.Unlock()

	s.metrics.Sequence("started")
	go s.countdown(runCtx, entityID, st, runID, alert, targets)
	return true
}

// countdown runs the rounds, the announcement, the cooldown and the terminal action
func (s *Sequencer) countdown(ctx context.Context, entityID string, st *sequenceState, runID string, alert types.Alert, targets []types.Recipient) {
	defer s.wg.Done()

	log := s.log.With().Str("entity", entityID).Str("run_id", runID).Logger()

	for round := 1; round <= s.opts.Rounds; round++ {
		if !s.wait(ctx, s.opts.RoundInterval) {
			log.Info().Int("round", round).Msg("Countdown cancelled")
			return
		}

		st.mu.Lock()
		if st.runID != runID {
			st.mu.Unlock()
			return
		}
		st.round = round
		st.mu.Unlock()

		remaining := s.opts.Rounds - round
		log.Info().
			Int("round", round).
			Int("rounds", s.opts.Rounds).
			Int("remaining", remaining).
			Msg("Shutdown reminder")

		s.notifyAll(ctx, entityID, targets, func(to types.Recipient) types.Message {
			return notifier.ReminderMessage(alert, to, remaining, s.opts.ConfirmHint, s.opts.CancelHint)
		})
	}

	if ctx.Err() != nil {
		return
	}

	ent := s.entities.Get(entityID)
	if ent.AnnouncementChannel != "" {
		if ch, ok := s.directory.Resolve(ctx, ent.AnnouncementChannel); ok {
			if err := s.sink.Send(ctx, ch, notifier.AnnouncementMessage(alert, s.opts.Cooldown)); err != nil {
				s.metrics.NotifyFailed("announcement")
				log.Error().Err(err).Str("channel", ch.ID).Msg("Failed to send shutdown announcement")
			}
		} else {
			log.Warn().Str("channel", ent.AnnouncementChannel).Msg("Announcement channel not reachable, skipping")
		}
	}

	if !s.wait(ctx, s.opts.Cooldown) {
		log.Info().Msg("Countdown cancelled during cooldown")
		return
	}

	st.mu.Lock()
	if st.runID != runID || ctx.Err() != nil {
		st.mu.Unlock()
		return
	}
	st.committed = true
	st.mu.Unlock()

	log.Warn().Str("event", alert.EventType).Msg("Server shutdown triggered")
	if s.terminal != nil {
		if err := s.terminal(context.WithoutCancel(ctx), entityID, alert); err != nil {
			log.Error().Err(err).Msg("Terminal action failed")
		}
	}

	st.mu.Lock()
	if st.runID == runID {
		s.reset(st)
	}
	st.mu.Unlock()
	s.metrics.Sequence("completed")
}

// wait suspends for d and reports false if the run was cancelled first
func (s *Sequencer) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-s.opts.Clock.After(d):
		return ctx.Err() == nil
	}
}

func (s *Sequencer) resolve(ctx context.Context, ids []string) []types.Recipient {
	out := make([]types.Recipient, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.directory.Resolve(ctx, id); ok {
			out = append(out, rec)
		}
	}
	return out
}

// notifyAll sends to every target; one failure does not stop the rest
func (s *Sequencer) notifyAll(ctx context.Context, entityID string, targets []types.Recipient, build func(types.Recipient) types.Message) {
	for _, to := range targets {
		if ctx.Err() != nil {
			return
		}
		if err := s.sink.Send(ctx, to, build(to)); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.metrics.NotifyFailed("admin")
			s.log.Error().
				Err(err).
				Str("entity", entityID).
				Str("recipient", to.ID).
				Msg("Failed to notify admin")
		}
	}
}

// Cancel stops the entity's countdown if it has not reached the terminal action
func (s *Sequencer) Cancel(entityID string) CancelResult {
	st := s.lookup(entityID)
	if st == nil {
		return NothingToCancel
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.pending {
		return NothingToCancel
	}
	if st.committed {
		s.log.Warn().Str("entity", entityID).Str("run_id", st.runID).Msg("Cancel requested after shutdown began")
		return AlreadyCommitted
	}

	runID := st.runID
	s.reset(st)
	s.metrics.Sequence("cancelled")
	s.log.Info().Str("entity", entityID).Str("run_id", runID).Msg("Shutdown sequence cancelled")
	return Cancelled
}

// Confirm handles an admin's yes/no answer. "yes" only acknowledges; "no" cancels.
func (s *Sequencer) Confirm(entityID, decision string) (ConfirmResult, error) {
	switch strings.ToLower(strings.TrimSpace(decision)) {
	case "yes":
		pending := s.Pending(entityID)
		s.log.Info().Str("entity", entityID).Bool("pending", pending).Msg("Shutdown confirmed")
		return ConfirmResult{Decision: "yes", Pending: pending}, nil
	case "no":
		return ConfirmResult{Decision: "no", Cancel: s.Cancel(entityID)}, nil
	default:
		return ConfirmResult{}, ErrUsage
	}
}

// Snapshot returns the status of every entity that has had a sequence
func (s *Sequencer) Snapshot() []SequenceStatus {
	s.mu.Lock()
	ids := make([]string, 0, len(s.states))
	states := make(map[string]*sequenceState, len(s.states))
	for id, st := range s.states {
		ids = append(ids, id)
		states[id] = st
	}
	s.mu.Unlock()
	sort.Strings(ids)

	out := make([]SequenceStatus, 0, len(ids))
	for _, id := range ids {
		st := states[id]
		st.mu.Lock()
		out = append(out, SequenceStatus{
			EntityID:  id,
			Pending:   st.pending,
			RunID:     st.runID,
			EventType: st.alert.EventType,
			StartedAt: st.startedAt,
			Round:     st.round,
			Committed: st.committed,
		})
		st.mu.Unlock()
	}
	return out
}

// Stop cancels every running countdown that has not reached the terminal action
func (s *Sequencer) Stop() {
	s.mu.Lock()
	states := make([]*sequenceState, 0, len(s.states))
	for _, st := range s.states {
		states = append(states, st)
	}
	s.mu.Unlock()

	for _, st := range states {
		st.mu.Lock()
		if st.pending && !st.committed {
			s.reset(st)
		}
		st.mu.Unlock()
	}
}

// Wait blocks until every countdown goroutine has returned
func (s *Sequencer) Wait() {
	s.wg.Wait()
}
