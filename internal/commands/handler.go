package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stormguard/stormguard/internal/alerter"
	"github.com/stormguard/stormguard/internal/announce"
	"github.com/stormguard/stormguard/internal/assistant"
	"github.com/stormguard/stormguard/internal/notifier"
	"github.com/stormguard/stormguard/internal/store"
	"github.com/stormguard/stormguard/internal/types"
)

// Usage lines
const (
	usageShutdown  = "Please use /shutdown yes or /shutdown no."
	usageWeather   = "Usage: /weather setlocation|clearlocation|addadmin|removeadmin|setchannel|clearchannel|addalert|removealert|toggle|addserver|removeserver|status|checknow|testalert"
	usageStatus    = "Usage: /status <text>"
	usageAssistant = "Usage: /assistant addintent <phrase> <action> <server_id> [roles...] | removeintent <phrase> | listintents"
	notPermitted   = "Only an admin of this chat can do that."
)

// Invocation is one incoming chat message
type Invocation struct {
	EntityID    string // chat the message was sent in
	UserID      string
	DisplayName string
	AvatarURL   string
	Text        string
}

// Reply is the answer to post back. Empty Text means stay silent.
type Reply struct {
	Text string
}

// Sequencer is the part of the shutdown sequencer commands drive
type Sequencer interface {
	OnAlertMatched(ctx context.Context, entityID string, alert types.Alert) bool
	Confirm(entityID, decision string) (alerter.ConfirmResult, error)
	Pending(entityID string) bool
}

// Checker runs an on-demand alert check
type Checker interface {
	CheckNow(ctx context.Context, entityID string) (types.Alert, bool)
}

// Assistant answers free text
type Assistant interface {
	Handle(ctx context.Context, req assistant.Request) assistant.Response
}

// Announcer updates the public status line
type Announcer interface {
	Status(username, avatar, text string) (announce.Announcement, error)
}

// Store is the persisted entity and intent state
type Store interface {
	Get(id string) store.Entity
	SetLocation(id string, lat, lon float64) (store.Entity, error)
	ClearLocation(id string) (store.Entity, error)
	AddAdmin(id, admin string) (store.Entity, error)
	RemoveAdmin(id, admin string) (store.Entity, error)
	SetChannel(id, channel string) (store.Entity, error)
	ClearChannel(id string) (store.Entity, error)
	AddAlert(id, alert string) (store.Entity, error)
	RemoveAlert(id, alert string) (store.Entity, error)
	Toggle(id string) (store.Entity, error)
	AddServer(id, server string) (store.Entity, error)
	RemoveServer(id, server string) (store.Entity, error)
	Intents() []store.Intent
	PutIntent(in store.Intent) error
	RemoveIntent(phrase string) (bool, error)
}

// Handler executes chat commands independent of the chat platform
type Handler struct {
	log       zerolog.Logger
	store     Store
	sequencer Sequencer
	checker   Checker
	assistant Assistant
	announcer Announcer
	directory notifier.Directory
}

// NewHandler creates a command handler. assistant may be nil.
func NewHandler(log zerolog.Logger, st Store, seq Sequencer, checker Checker, asst Assistant, ann Announcer, dir notifier.Directory) *Handler {
	return &Handler{
		log:       log.With().Str("component", "commands").Logger(),
		store:     st,
		sequencer: seq,
		checker:   checker,
		assistant: asst,
		announcer: ann,
		directory: dir,
	}
}

// Handle runs one message and returns the reply
func (h *Handler) Handle(ctx context.Context, inv Invocation) Reply {
	text := strings.TrimSpace(inv.Text)
	if text == "" {
		return Reply{}
	}

	if !strings.HasPrefix(text, "/") {
		return h.handleFreeText(ctx, inv, text)
	}

	command, rest := splitWord(text[1:])
	// Telegram appends the bot name in groups: /weather@stormbot
	if i := strings.Index(command, "@"); i >= 0 {
		command = command[:i]
	}
	command = strings.ToLower(command)

	h.log.Debug().
		Str("entity", inv.EntityID).
		Str("user", inv.UserID).
		Str("command", command).
		Msg("Command received")

	switch command {
	case "shutdown":
		return h.handleShutdown(inv, rest)
	case "weather":
		return h.handleWeather(ctx, inv, rest)
	case "status":
		return h.handleStatus(inv, rest)
	case "assistant":
		return h.handleAssistant(inv, rest)
	default:
		return h.handleFreeText(ctx, inv, text)
	}
}

func (h *Handler) handleFreeText(ctx context.Context, inv Invocation, text string) Reply {
	if h.assistant == nil {
		return Reply{}
	}
	resp := h.assistant.Handle(ctx, assistant.Request{EntityID: inv.EntityID, UserID: inv.UserID, Text: text})
	if !resp.Handled {
		return Reply{}
	}
	return Reply{Text: resp.Reply}
}

// authorized is true for entity admins, or anyone while the entity has no admins
func (h *Handler) authorized(inv Invocation) bool {
	ent := h.store.Get(inv.EntityID)
	return len(ent.Admins) == 0 || ent.IsAdmin(inv.UserID)
}

func (h *Handler) handleShutdown(inv Invocation, args string) Reply {
	if !h.authorized(inv) {
		return Reply{Text: notPermitted}
	}
	res, err := h.sequencer.Confirm(inv.EntityID, args)
	if errors.Is(err, alerter.ErrUsage) {
		return Reply{Text: usageShutdown}
	}
	if err != nil {
		return Reply{Text: "Error: " + err.Error()}
	}

	if res.Decision == "yes" {
		if !res.Pending {
			return Reply{Text: "No shutdown is pending."}
		}
		return Reply{Text: "Shutdown confirmed. The server will shut down when the countdown ends."}
	}

	switch res.Cancel {
	case alerter.Cancelled:
		h.log.Info().Str("entity", inv.EntityID).Str("user", inv.UserID).Msg("Shutdown cancelled by admin")
		return Reply{Text: "Shutdown has been cancelled."}
	case alerter.AlreadyCommitted:
		return Reply{Text: "Too late: the shutdown is already in progress."}
	default:
		return Reply{Text: "No shutdown is pending."}
	}
}

func (h *Handler) handleStatus(inv Invocation, text string) Reply {
	if strings.TrimSpace(text) == "" {
		return Reply{Text: usageStatus}
	}
	name := inv.DisplayName
	if name == "" {
		name = inv.UserID
	}
	if _, err := h.announcer.Status(name, inv.AvatarURL, text); err != nil {
		return Reply{Text: usageStatus}
	}
	return Reply{Text: fmt.Sprintf("✅ Status updated: %s", strings.TrimSpace(text))}
}

func (h *Handler) handleWeather(ctx context.Context, inv Invocation, args string) Reply {
	sub, rest := splitWord(args)
	sub = strings.ToLower(sub)
	id := inv.EntityID

	switch sub {
	case "status":
		return Reply{Text: h.statusText(ctx, id)}
	case "checknow":
		return h.checkNow(ctx, id)
	case "":
		return Reply{Text: usageWeather}
	}

	if !h.authorized(inv) {
		return Reply{Text: notPermitted}
	}

	var (
		reply string
		err   error
	)
	switch sub {
	case "setlocation":
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return Reply{Text: "Usage: /weather setlocation <lat> <lon>"}
		}
		lat, errLat := strconv.ParseFloat(fields[0], 64)
		lon, errLon := strconv.ParseFloat(fields[1], 64)
		if errLat != nil || errLon != nil {
			return Reply{Text: "Usage: /weather setlocation <lat> <lon>"}
		}
		_, err = h.store.SetLocation(id, lat, lon)
		reply = fmt.Sprintf("Location set to (%s, %s).", fields[0], fields[1])
	case "clearlocation":
		_, err = h.store.ClearLocation(id)
		reply = "Location cleared."
	case "addadmin", "setadmin":
		admin := strings.TrimSpace(rest)
		if admin == "" {
			admin = inv.UserID
		}
		_, err = h.store.AddAdmin(id, admin)
		reply = fmt.Sprintf("Admin %s added.", h.displayName(ctx, admin))
	case "removeadmin":
		if rest == "" {
			return Reply{Text: "Usage: /weather removeadmin <id>"}
		}
		_, err = h.store.RemoveAdmin(id, rest)
		reply = fmt.Sprintf("Admin %s removed.", rest)
	case "setchannel":
		channel := strings.TrimSpace(rest)
		if channel == "" {
			channel = id
		}
		_, err = h.store.SetChannel(id, channel)
		reply = fmt.Sprintf("Announcement channel set to %s.", h.displayName(ctx, channel))
	case "clearchannel":
		_, err = h.store.ClearChannel(id)
		reply = "Announcement channel cleared."
	case "addalert":
		if rest == "" {
			return Reply{Text: "Usage: /weather addalert <alert type>"}
		}
		_, err = h.store.AddAlert(id, rest)
		reply = fmt.Sprintf("Alert '%s' added.", rest)
	case "removealert":
		if rest == "" {
			return Reply{Text: "Usage: /weather removealert <alert type>"}
		}
		_, err = h.store.RemoveAlert(id, rest)
		reply = fmt.Sprintf("Alert '%s' removed.", rest)
	case "toggle":
		var ent store.Entity
		ent, err = h.store.Toggle(id)
		if ent.Enabled {
			reply = "Weather alerts enabled."
		} else {
			reply = "Weather alerts disabled."
		}
	case "addserver":
		if rest == "" {
			return Reply{Text: "Usage: /weather addserver <server id>"}
		}
		_, err = h.store.AddServer(id, rest)
		reply = fmt.Sprintf("Server %s will be stopped on shutdown.", rest)
	case "removeserver":
		if rest == "" {
			return Reply{Text: "Usage: /weather removeserver <server id>"}
		}
		_, err = h.store.RemoveServer(id, rest)
		reply = fmt.Sprintf("Server %s removed.", rest)
	case "testalert":
		return h.testAlert(ctx, id)
	default:
		return Reply{Text: usageWeather}
	}

	if err != nil {
		return Reply{Text: storeErrorText(err)}
	}
	h.log.Info().Str("entity", id).Str("user", inv.UserID).Str("command", sub).Msg("Entity updated")
	return Reply{Text: reply}
}

func (h *Handler) checkNow(ctx context.Context, id string) Reply {
	if h.store.Get(id).Location == nil {
		return Reply{Text: "Location not configured."}
	}
	alert, ok := h.checker.CheckNow(ctx, id)
	if !ok {
		return Reply{Text: "No relevant alerts at this time."}
	}
	return Reply{Text: fmt.Sprintf("Matching alert detected: %s", alert.EventType)}
}

func (h *Handler) testAlert(ctx context.Context, id string) Reply {
	fake := types.Alert{
		ID:              "test",
		EventType:       "Tornado Warning",
		AreaDescription: "Fake County",
		Issuer:          "NWS Test",
		Description:     "This is a simulated tornado warning for testing purposes.",
	}
	if h.sequencer.Pending(id) {
		return Reply{Text: "A shutdown sequence is already pending."}
	}
	if !h.sequencer.OnAlertMatched(ctx, id, fake) {
		return Reply{Text: "Test alert not started: no reachable admins."}
	}
	return Reply{Text: "Test alert sent to admins. Use /shutdown no to cancel the countdown."}
}

func (h *Handler) statusText(ctx context.Context, id string) string {
	ent := h.store.Get(id)

	location := "Not set"
	if ent.Location != nil {
		location = fmt.Sprintf("%g, %g", ent.Location.Latitude, ent.Location.Longitude)
	}

	admins := make([]string, 0, len(ent.Admins))
	for _, a := range ent.Admins {
		admins = append(admins, h.displayName(ctx, a))
	}

	channel := "Not set"
	if ent.AnnouncementChannel != "" {
		channel = h.displayName(ctx, ent.AnnouncementChannel)
	}

	msg := types.Message{
		Title: "Weather Alert Configuration",
		Fields: []types.Field{
			{Name: "Enabled", Value: strconv.FormatBool(ent.Enabled)},
			{Name: "Location", Value: location},
			{Name: "Monitoring interval", Value: ent.MonitoringInterval.String()},
			{Name: "Alerts", Value: joinOr(ent.Alerts, "None")},
			{Name: "Admins", Value: joinOr(admins, "Not set")},
			{Name: "Channel", Value: channel},
			{Name: "Servers", Value: joinOr(ent.Servers, "None")},
			{Name: "Shutdown pending", Value: strconv.FormatBool(h.sequencer.Pending(id))},
		},
	}
	return msg.Text()
}

func (h *Handler) handleAssistant(inv Invocation, args string) Reply {
	if !h.authorized(inv) {
		return Reply{Text: notPermitted}
	}
	sub, rest := splitWord(args)

	switch strings.ToLower(sub) {
	case "addintent":
		fields, err := splitArgs(rest)
		if err != nil || len(fields) < 3 {
			return Reply{Text: usageAssistant}
		}
		in := store.Intent{
			Phrase:   fields[0],
			Action:   strings.ToLower(fields[1]),
			ServerID: fields[2],
			Roles:    fields[3:],
		}
		if !assistant.ValidAction(in.Action) {
			return Reply{Text: "Action must be one of start, stop, restart, kill, status."}
		}
		if err := h.store.PutIntent(in); err != nil {
			return Reply{Text: storeErrorText(err)}
		}
		h.log.Info().Str("phrase", in.Phrase).Str("user", inv.UserID).Msg("Intent added")
		return Reply{Text: fmt.Sprintf("Intent '%s' added.", in.Phrase)}
	case "removeintent":
		fields, err := splitArgs(rest)
		if err != nil || len(fields) != 1 {
			return Reply{Text: usageAssistant}
		}
		removed, err := h.store.RemoveIntent(fields[0])
		if err != nil {
			return Reply{Text: storeErrorText(err)}
		}
		if !removed {
			return Reply{Text: fmt.Sprintf("No intent '%s'.", fields[0])}
		}
		return Reply{Text: fmt.Sprintf("Intent '%s' removed.", fields[0])}
	case "listintents":
		intents := h.store.Intents()
		if len(intents) == 0 {
			return Reply{Text: "No intents configured."}
		}
		var b strings.Builder
		b.WriteString("Configured Intents")
		for _, in := range intents {
			fmt.Fprintf(&b, "\n%s: Action: %s, Server: %s", in.Phrase, in.Action, in.ServerID)
			if len(in.Roles) > 0 {
				fmt.Fprintf(&b, ", Roles: %s", strings.Join(in.Roles, ", "))
			}
		}
		return Reply{Text: b.String()}
	default:
		return Reply{Text: usageAssistant}
	}
}

func (h *Handler) displayName(ctx context.Context, id string) string {
	if h.directory == nil {
		return id
	}
	if rec, ok := h.directory.Resolve(ctx, id); ok && rec.DisplayName != "" {
		return rec.DisplayName
	}
	return id
}

func storeErrorText(err error) string {
	switch {
	case errors.Is(err, store.ErrProtectedAlert):
		return "You can't remove default alerts."
	case errors.Is(err, store.ErrAlreadyTracked):
		return "That alert type is already being tracked."
	case errors.Is(err, store.ErrNotTracked):
		return "That alert type wasn't in the list."
	case errors.Is(err, store.ErrInvalidLocation):
		return "Latitude must be within [-90, 90] and longitude within [-180, 180]."
	case errors.Is(err, store.ErrEmptyValue):
		return "A value is required."
	default:
		return "Failed to save settings: " + err.Error()
	}
}

func joinOr(list []string, empty string) string {
	if len(list) == 0 {
		return empty
	}
	return strings.Join(list, ", ")
}
