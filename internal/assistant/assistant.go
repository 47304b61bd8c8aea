package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stormguard/stormguard/internal/metrics"
	"github.com/stormguard/stormguard/internal/panel"
	"github.com/stormguard/stormguard/internal/store"
)

// ActionStatus reads the server state instead of sending a power signal
const ActionStatus = "status"

// DeniedReply is sent when the caller may not run the matched intent
const DeniedReply = "Sorry, you don't have permission to do that."

// ValidAction reports whether action is one an intent may carry
func ValidAction(action string) bool {
	return action == ActionStatus || panel.ValidSignal(action)
}

// Panel is the subset of the panel client the assistant drives
type Panel interface {
	Power(ctx context.Context, serverID, signal string) error
	State(ctx context.Context, serverID string) (string, error)
}

// IntentSource lists the configured intents in insertion order
type IntentSource interface {
	Intents() []store.Intent
}

// EntityReader provides entity admins for permission checks
type EntityReader interface {
	Get(id string) store.Entity
}

// Request is one chat message addressed to the assistant
type Request struct {
	EntityID string
	UserID   string
	Text     string
}

// Response is the assistant's answer. Handled is false when the message was ignored.
type Response struct {
	Handled bool
	Reply   string
}

// Options configure the optional language-model features
type Options struct {
	Persona          string
	ClassifyFallback bool
}

// Assistant maps free text to panel actions
type Assistant struct {
	log      zerolog.Logger
	intents  IntentSource
	entities EntityReader
	panel    Panel
	roles    map[string][]string
	llm      Completer
	opts     Options
	metrics  *metrics.Metrics
}

// New creates an assistant. llm may be nil, which disables formatting and classification.
func New(log zerolog.Logger, intents IntentSource, entities EntityReader, p Panel, roles map[string][]string,
	llm Completer, opts Options, m *metrics.Metrics) *Assistant {
	if opts.Persona == "" {
		opts.Persona = "You are Red, a witty, helpful server assistant."
	}
	return &Assistant{
		log:      log.With().Str("component", "assistant").Logger(),
		intents:  intents,
		entities: entities,
		panel:    p,
		roles:    roles,
		llm:      llm,
		opts:     opts,
		metrics:  m,
	}
}

// Match returns the first intent whose phrase occurs in text, ignoring case
func Match(intents []store.Intent, text string) (store.Intent, bool) {
	lower := strings.ToLower(text)
	for _, in := range intents {
		if in.Phrase == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(in.Phrase)) {
			return in, true
		}
	}
	return store.Intent{}, false
}

// Permitted reports whether the user is an entity admin or holds one of the intent's roles
func (a *Assistant) Permitted(entityID, userID string, in store.Intent) bool {
	if a.entities.Get(entityID).IsAdmin(userID) {
		return true
	}
	for _, role := range in.Roles {
		for _, member := range a.roles[role] {
			if member == userID {
				return true
			}
		}
	}
	return false
}

// Handle routes a message to an intent, runs it and formats the result
func (a *Assistant) Handle(ctx context.Context, req Request) Response {
	intents := a.intents.Intents()

	in, ok := Match(intents, req.Text)
	if !ok && a.opts.ClassifyFallback && a.llm != nil {
		in, ok = a.classify(ctx, intents, req.Text)
	}
	if !ok {
		return Response{}
	}

	if !a.Permitted(req.EntityID, req.UserID, in) {
		a.metrics.AssistantRequest(in.Action, "denied")
		a.log.Info().
			Str("entity", req.EntityID).
			Str("user", req.UserID).
			Str("phrase", in.Phrase).
			Msg("Assistant request denied")
		return Response{Handled: true, Reply: DeniedReply}
	}

	result, err := a.execute(ctx, in)
	if err != nil {
		a.metrics.AssistantRequest(in.Action, "failed")
		a.log.Error().Err(err).Str("action", in.Action).Str("server", in.ServerID).Msg("Assistant action failed")
	} else {
		a.metrics.AssistantRequest(in.Action, "ok")
		a.log.Info().Str("action", in.Action).Str("server", in.ServerID).Str("user", req.UserID).Msg("Assistant action executed")
	}

	return Response{Handled: true, Reply: a.format(ctx, result)}
}

// execute returns a human-readable result line; err is set when the panel call failed
func (a *Assistant) execute(ctx context.Context, in store.Intent) (string, error) {
	switch {
	case in.Action == ActionStatus:
		state, err := a.panel.State(ctx, in.ServerID)
		if err != nil {
			return "Failed to fetch server status.", err
		}
		return fmt.Sprintf("Server status: %s", state), nil
	case panel.ValidSignal(in.Action):
		if err := a.panel.Power(ctx, in.ServerID, in.Action); err != nil {
			return fmt.Sprintf("Failed to %s server.", in.Action), err
		}
		return fmt.Sprintf("Server %s command sent successfully.", in.Action), nil
	default:
		return fmt.Sprintf("Unknown action %q.", in.Action), fmt.Errorf("unknown action %q", in.Action)
	}
}

// format rephrases result in the persona's voice, falling back to result itself
func (a *Assistant) format(ctx context.Context, result string) string {
	if a.llm == nil {
		return result
	}
	out, err := a.llm.Complete(ctx, a.opts.Persona, result)
	if err != nil || out == "" {
		a.log.Debug().Err(err).Msg("Formatter unavailable, using raw result")
		return result
	}
	return out
}

type classification struct {
	Action   string `json:"action"`
	ServerID string `json:"server_id"`
}

// classify asks the model to pick an action and server for unmatched text.
// Anything but a strictly valid answer naming a known server is rejected.
func (a *Assistant) classify(ctx context.Context, intents []store.Intent, text string) (store.Intent, bool) {
	servers := knownServers(intents)
	if len(servers) == 0 {
		return store.Intent{}, false
	}

	ids := make([]string, 0, len(servers))
	for _, in := range intents {
		if _, ok := servers[in.ServerID]; ok && !containsString(ids, in.ServerID) {
			ids = append(ids, in.ServerID)
		}
	}
	system := fmt.Sprintf(
		`Classify the user's request for a game server. Reply with only a JSON object {"action": A, "server_id": S} where A is one of start, stop, restart, kill, status and S is one of %s. Reply {"action": "none", "server_id": ""} if the request is not about a server.`,
		strings.Join(ids, ", "))

	raw, err := a.llm.Complete(ctx, system, text)
	if err != nil {
		a.log.Debug().Err(err).Msg("Classifier unavailable")
		a.metrics.AssistantRequest("classify", "failed")
		return store.Intent{}, false
	}

	c, err := decodeClassification(raw)
	if err != nil {
		a.log.Debug().Err(err).Str("answer", raw).Msg("Classifier answer rejected")
		a.metrics.AssistantRequest("classify", "rejected")
		return store.Intent{}, false
	}
	roles, ok := servers[c.ServerID]
	if !ok || !ValidAction(c.Action) {
		a.metrics.AssistantRequest("classify", "rejected")
		return store.Intent{}, false
	}

	a.metrics.AssistantRequest("classify", "ok")
	return store.Intent{Phrase: text, Action: c.Action, ServerID: c.ServerID, Roles: roles}, true
}

// decodeClassification accepts exactly one JSON object with known fields
func decodeClassification(raw string) (classification, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(strings.TrimSpace(raw))))
	dec.DisallowUnknownFields()

	var c classification
	if err := dec.Decode(&c); err != nil {
		return classification{}, fmt.Errorf("decode: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return classification{}, errors.New("trailing data after object")
	}
	return c, nil
}

// knownServers maps each intent server id to the union of roles allowed on it
func knownServers(intents []store.Intent) map[string][]string {
	out := make(map[string][]string)
	for _, in := range intents {
		if in.ServerID == "" {
			continue
		}
		roles := out[in.ServerID]
		for _, r := range in.Roles {
			if !containsString(roles, r) {
				roles = append(roles, r)
			}
		}
		out[in.ServerID] = roles
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
