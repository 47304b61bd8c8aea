package commands

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stormguard/stormguard/internal/alerter"
	"github.com/stormguard/stormguard/internal/announce"
	"github.com/stormguard/stormguard/internal/assistant"
	"github.com/stormguard/stormguard/internal/store"
	"github.com/stormguard/stormguard/internal/types"
)

type stubSequencer struct {
	pending   bool
	started   []types.Alert
	startOK   bool
	decisions []string
}

func (s *stubSequencer) OnAlertMatched(_ context.Context, _ string, alert types.Alert) bool {
	s.started = append(s.started, alert)
	return s.startOK
}

func (s *stubSequencer) Confirm(_ string, decision string) (alerter.ConfirmResult, error) {
	s.decisions = append(s.decisions, decision)
	switch strings.ToLower(decision) {
	case "yes":
		return alerter.ConfirmResult{Decision: "yes", Pending: s.pending}, nil
	case "no":
		if !s.pending {
			return alerter.ConfirmResult{Decision: "no", Cancel: alerter.NothingToCancel}, nil
		}
		s.pending = false
		return alerter.ConfirmResult{Decision: "no", Cancel: alerter.Cancelled}, nil
	}
	return alerter.ConfirmResult{}, alerter.ErrUsage
}

func (s *stubSequencer) Pending(string) bool { return s.pending }

type stubChecker struct {
	alert types.Alert
	ok    bool
}

func (c stubChecker) CheckNow(context.Context, string) (types.Alert, bool) { return c.alert, c.ok }

type stubAssistant struct{ got []string }

func (a *stubAssistant) Handle(_ context.Context, req assistant.Request) assistant.Response {
	a.got = append(a.got, req.Text)
	if strings.Contains(req.Text, "restart") {
		return assistant.Response{Handled: true, Reply: "Server restart command sent successfully."}
	}
	return assistant.Response{}
}

type stubDirectory map[string]string

func (d stubDirectory) Resolve(_ context.Context, id string) (types.Recipient, bool) {
	name, ok := d[id]
	return types.Recipient{ID: id, DisplayName: name}, ok
}

type harness struct {
	h     *Handler
	store *store.Store
	seq   *stubSequencer
	asst  *stubAssistant
	board *announce.Board
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "state.yaml"), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	hs := &harness{
		store: st,
		seq:   &stubSequencer{startOK: true},
		asst:  &stubAssistant{},
		board: announce.NewBoard(announce.Announcement{Username: "Red", Message: "Server is offline."}, zerolog.Nop()),
	}
	hs.h = NewHandler(zerolog.Nop(), st, hs.seq,
		stubChecker{alert: types.Alert{EventType: "Tornado Warning"}, ok: true},
		hs.asst, hs.board, stubDirectory{"100": "Ann", "-200": "Storm Watchers"})
	return hs
}

func (hs *harness) run(user, text string) string {
	return hs.h.Handle(context.Background(), Invocation{EntityID: "-200", UserID: user, DisplayName: "User " + user, Text: text}).Text
}

func TestBootstrapThenAdminOnly(t *testing.T) {
	hs := newHarness(t)

	if got := hs.run("100", "/weather addadmin"); got != "Admin Ann added." {
		t.Fatalf("bootstrap addadmin = %q", got)
	}
	if got := hs.run("300", "/weather toggle"); got != notPermitted {
		t.Fatalf("non-admin toggle = %q", got)
	}
	if hs.store.Get("-200").Enabled {
		t.Fatal("non-admin must not mutate")
	}
	if got := hs.run("100", "/weather toggle"); got != "Weather alerts enabled." {
		t.Errorf("admin toggle = %q", got)
	}
}

func TestWeatherConfiguration(t *testing.T) {
	hs := newHarness(t)

	tests := []struct {
		text string
		want string
	}{
		{"/weather setlocation 35.2226 -97.4395", "Location set to (35.2226, -97.4395)."},
		{"/weather setlocation 95 0", "Latitude must be within [-90, 90] and longitude within [-180, 180]."},
		{"/weather setlocation north", "Usage: /weather setlocation <lat> <lon>"},
		{"/weather addalert Flash Flood Warning", "Alert 'Flash Flood Warning' added."},
		{"/weather addalert Flash Flood Warning", "That alert type is already being tracked."},
		{"/weather removealert Tornado Warning", "You can't remove default alerts."},
		{"/weather removealert Heat Advisory", "That alert type wasn't in the list."},
		{"/weather removealert Flash Flood Warning", "Alert 'Flash Flood Warning' removed."},
		{"/weather setchannel", "Announcement channel set to Storm Watchers."},
		{"/weather addserver mc1", "Server mc1 will be stopped on shutdown."},
		{"/weather bogus", usageWeather},
		{"/weather", usageWeather},
	}
	for _, tt := range tests {
		if got := hs.run("100", tt.text); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.text, got, tt.want)
		}
	}

	ent := hs.store.Get("-200")
	if ent.Location == nil || ent.Location.Latitude != 35.2226 {
		t.Errorf("location = %+v", ent.Location)
	}
	if ent.AnnouncementChannel != "-200" || len(ent.Servers) != 1 {
		t.Errorf("entity = %+v", ent)
	}
	if len(ent.Alerts) != 2 {
		t.Errorf("alerts = %v", ent.Alerts)
	}
}

func TestWeatherStatusResolvesNames(t *testing.T) {
	hs := newHarness(t)
	hs.run("100", "/weather addadmin 100")
	hs.run("100", "/weather addadmin 555")

	got := hs.run("300", "/weather status")
	for _, want := range []string{"Weather Alert Configuration", "Enabled: false", "Location: Not set", "Admins: Ann, 555", "Channel: Not set", "Tornado Warning"} {
		if !strings.Contains(got, want) {
			t.Errorf("status missing %q:\n%s", want, got)
		}
	}
}

func TestCheckNow(t *testing.T) {
	hs := newHarness(t)
	if got := hs.run("100", "/weather checknow"); got != "Location not configured." {
		t.Errorf("without location = %q", got)
	}
	hs.run("100", "/weather setlocation 35 -97")
	if got := hs.run("100", "/weather checknow"); got != "Matching alert detected: Tornado Warning" {
		t.Errorf("with location = %q", got)
	}
	if len(hs.seq.started) != 0 {
		t.Error("checknow must not start a sequence")
	}
}

func TestTestAlertStartsSequence(t *testing.T) {
	hs := newHarness(t)
	got := hs.run("100", "/weather testalert")
	if !strings.Contains(got, "/shutdown no") {
		t.Errorf("reply = %q", got)
	}
	if len(hs.seq.started) != 1 || hs.seq.started[0].AreaDescription != "Fake County" {
		t.Errorf("started = %+v", hs.seq.started)
	}
}

func TestShutdownCommand(t *testing.T) {
	hs := newHarness(t)
	hs.run("100", "/weather addadmin 100")

	if got := hs.run("100", "/shutdown maybe"); got != usageShutdown {
		t.Errorf("usage = %q", got)
	}
	if got := hs.run("100", "/shutdown no"); got != "No shutdown is pending." {
		t.Errorf("idle no = %q", got)
	}

	hs.seq.pending = true
	if got := hs.run("300", "/shutdown no"); got != notPermitted {
		t.Errorf("non-admin = %q", got)
	}
	if got := hs.run("100", "/shutdown@stormbot YES"); !strings.HasPrefix(got, "Shutdown confirmed") {
		t.Errorf("yes = %q", got)
	}
	if got := hs.run("100", "/shutdown no"); got != "Shutdown has been cancelled." {
		t.Errorf("no = %q", got)
	}
}

func TestStatusCommandUpdatesBoard(t *testing.T) {
	hs := newHarness(t)
	if got := hs.run("100", "/status"); got != usageStatus {
		t.Errorf("empty = %q", got)
	}
	if got := hs.run("100", "/status Server restarting"); got != "✅ Status updated: Server restarting" {
		t.Errorf("reply = %q", got)
	}
	latest := hs.board.Latest()
	if latest.Username != "User 100" || !strings.HasSuffix(latest.Message, "] Server restarting") {
		t.Errorf("latest = %+v", latest)
	}
}

func TestAssistantIntents(t *testing.T) {
	hs := newHarness(t)

	if got := hs.run("100", `/assistant addintent "restart the server" restart mc1 mods`); got != "Intent 'restart the server' added." {
		t.Fatalf("addintent = %q", got)
	}
	if got := hs.run("100", `/assistant addintent "x" explode mc1`); !strings.HasPrefix(got, "Action must be") {
		t.Errorf("bad action = %q", got)
	}
	if got := hs.run("100", `/assistant addintent "open`); got != usageAssistant {
		t.Errorf("unterminated = %q", got)
	}

	list := hs.run("100", "/assistant listintents")
	if !strings.Contains(list, "restart the server: Action: restart, Server: mc1, Roles: mods") {
		t.Errorf("list = %q", list)
	}

	if got := hs.run("100", `/assistant removeintent "restart the server"`); got != "Intent 'restart the server' removed." {
		t.Errorf("remove = %q", got)
	}
	if got := hs.run("100", "/assistant listintents"); got != "No intents configured." {
		t.Errorf("empty list = %q", got)
	}
}

func TestFreeTextGoesToAssistant(t *testing.T) {
	hs := newHarness(t)
	if got := hs.run("100", "please restart the box"); got != "Server restart command sent successfully." {
		t.Errorf("reply = %q", got)
	}
	if got := hs.run("100", "good morning"); got != "" {
		t.Errorf("unmatched should be silent, got %q", got)
	}
	hs.run("100", "/unknowncommand restart")
	if len(hs.asst.got) != 3 {
		t.Errorf("assistant saw %v", hs.asst.got)
	}
}

func TestSplitArgs(t *testing.T) {
	got, err := splitArgs(`"turn it off" stop  mc1 "" mods`)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"turn it off", "stop", "mc1", "", "mods"}
	if len(got) != len(want) {
		t.Fatalf("splitArgs() = %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("splitArgs() = %q, want %q", got, want)
		}
	}
	if _, err := splitArgs(`"open`); err == nil {
		t.Error("unterminated quote should fail")
	}
}
