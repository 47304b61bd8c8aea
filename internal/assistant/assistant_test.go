package assistant

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
	"github.com/stormguard/stormguard/internal/store"
)

type stubIntents []store.Intent

func (s stubIntents) Intents() []store.Intent { return s }

type stubEntities map[string]store.Entity

func (s stubEntities) Get(id string) store.Entity {
	if e, ok := s[id]; ok {
		return e
	}
	return store.NewEntity(id)
}

type powerCall struct{ server, signal string }

type stubPanel struct {
	powered []powerCall
	state   string
	err     error
}

func (p *stubPanel) Power(_ context.Context, serverID, signal string) error {
	p.powered = append(p.powered, powerCall{serverID, signal})
	return p.err
}

func (p *stubPanel) State(context.Context, string) (string, error) {
	return p.state, p.err
}

type stubCompleter struct {
	answer  string
	err     error
	prompts []string
}

func (c *stubCompleter) Complete(_ context.Context, system, user string) (string, error) {
	c.prompts = append(c.prompts, system+"|"+user)
	return c.answer, c.err
}

var testIntents = stubIntents{
	{Phrase: "restart the server", Action: "restart", ServerID: "mc1", Roles: []string{"mods"}},
	{Phrase: "server status", Action: "status", ServerID: "mc1"},
	{Phrase: "stop", Action: "stop", ServerID: "mc2"},
}

func newTestAssistant(p Panel, llm Completer, opts Options) *Assistant {
	ent := store.NewEntity("chat-1")
	ent.Admins = []string{"admin"}
	return New(zerolog.Nop(), testIntents, stubEntities{"chat-1": ent}, p,
		map[string][]string{"mods": {"mod-user"}}, llm, opts, nil)
}

func TestMatch(t *testing.T) {
	tests := []struct {
		text   string
		phrase string
		ok     bool
	}{
		{"Hey Red, could you RESTART THE SERVER please", "restart the server", true},
		{"what's the server status?", "server status", true},
		{"please stop and restart the server", "restart the server", true},
		{"hello there", "", false},
	}
	for _, tt := range tests {
		in, ok := Match(testIntents, tt.text)
		if ok != tt.ok || in.Phrase != tt.phrase {
			t.Errorf("Match(%q) = %q, %v; want %q, %v", tt.text, in.Phrase, ok, tt.phrase, tt.ok)
		}
	}
}

func TestHandlePowerAction(t *testing.T) {
	p := &stubPanel{}
	a := newTestAssistant(p, nil, Options{})

	resp := a.Handle(context.Background(), Request{EntityID: "chat-1", UserID: "mod-user", Text: "restart the server"})
	if !resp.Handled || resp.Reply != "Server restart command sent successfully." {
		t.Fatalf("resp = %+v", resp)
	}
	if len(p.powered) != 1 || p.powered[0] != (powerCall{"mc1", "restart"}) {
		t.Errorf("powered = %+v", p.powered)
	}
}

func TestHandleStatus(t *testing.T) {
	p := &stubPanel{state: "running"}
	a := newTestAssistant(p, nil, Options{})

	resp := a.Handle(context.Background(), Request{EntityID: "chat-1", UserID: "admin", Text: "server status?"})
	if resp.Reply != "Server status: running" {
		t.Errorf("reply = %q", resp.Reply)
	}
}

func TestHandlePermission(t *testing.T) {
	p := &stubPanel{}
	a := newTestAssistant(p, nil, Options{})

	resp := a.Handle(context.Background(), Request{EntityID: "chat-1", UserID: "stranger", Text: "restart the server"})
	if !resp.Handled || resp.Reply != DeniedReply {
		t.Fatalf("resp = %+v", resp)
	}
	if len(p.powered) != 0 {
		t.Error("denied request must not reach the panel")
	}

	resp = a.Handle(context.Background(), Request{EntityID: "chat-1", UserID: "admin", Text: "restart the server"})
	if resp.Reply != "Server restart command sent successfully." {
		t.Errorf("admin reply = %q", resp.Reply)
	}
}

func TestHandleUnmatchedIsIgnored(t *testing.T) {
	a := newTestAssistant(&stubPanel{}, nil, Options{})
	if resp := a.Handle(context.Background(), Request{EntityID: "chat-1", UserID: "admin", Text: "good morning"}); resp.Handled {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHandlePanelFailure(t *testing.T) {
	a := newTestAssistant(&stubPanel{err: errors.New("boom")}, nil, Options{})
	resp := a.Handle(context.Background(), Request{EntityID: "chat-1", UserID: "admin", Text: "stop"})
	if resp.Reply != "Failed to stop server." {
		t.Errorf("reply = %q", resp.Reply)
	}
}

func TestFormatterFallsBackToRawResult(t *testing.T) {
	llm := &stubCompleter{err: errors.New("quota")}
	a := newTestAssistant(&stubPanel{}, llm, Options{})
	resp := a.Handle(context.Background(), Request{EntityID: "chat-1", UserID: "admin", Text: "stop"})
	if resp.Reply != "Server stop command sent successfully." {
		t.Errorf("reply = %q", resp.Reply)
	}

	llm.err = nil
	llm.answer = "Done, the server is taking a nap."
	resp = a.Handle(context.Background(), Request{EntityID: "chat-1", UserID: "admin", Text: "stop"})
	if resp.Reply != llm.answer {
		t.Errorf("reply = %q", resp.Reply)
	}
	if !strings.HasPrefix(llm.prompts[len(llm.prompts)-1], "You are Red") {
		t.Errorf("persona missing from prompt: %q", llm.prompts[len(llm.prompts)-1])
	}
}

func TestClassifyFallback(t *testing.T) {
	tests := []struct {
		name    string
		answer  string
		handled bool
	}{
		{"valid", `{"action": "start", "server_id": "mc2"}`, true},
		{"unknown server", `{"action": "start", "server_id": "mc9"}`, false},
		{"bad action", `{"action": "delete", "server_id": "mc2"}`, false},
		{"none", `{"action": "none", "server_id": ""}`, false},
		{"extra field", `{"action": "start", "server_id": "mc2", "why": "x"}`, false},
		{"trailing text", `{"action": "start", "server_id": "mc2"} ok`, false},
		{"prose", `Sure! I'll start mc2.`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &stubPanel{}
			a := newTestAssistant(p, &stubCompleter{answer: tt.answer}, Options{ClassifyFallback: true})
			resp := a.Handle(context.Background(), Request{EntityID: "chat-1", UserID: "admin", Text: "boot the second box"})
			if resp.Handled != tt.handled {
				t.Fatalf("handled = %v, want %v (reply %q)", resp.Handled, tt.handled, resp.Reply)
			}
			if tt.handled && (len(p.powered) != 1 || p.powered[0] != (powerCall{"mc2", "start"})) {
				t.Errorf("powered = %+v", p.powered)
			}
			if !tt.handled && len(p.powered) != 0 {
				t.Errorf("rejected classification reached the panel: %+v", p.powered)
			}
		})
	}
}

func TestClassifiedIntentKeepsRoleCheck(t *testing.T) {
	p := &stubPanel{}
	a := newTestAssistant(p, &stubCompleter{answer: `{"action":"kill","server_id":"mc1"}`}, Options{ClassifyFallback: true})
	resp := a.Handle(context.Background(), Request{EntityID: "chat-1", UserID: "stranger", Text: "nuke it"})
	if resp.Reply != DeniedReply || len(p.powered) != 0 {
		t.Errorf("resp = %+v, powered = %+v", resp, p.powered)
	}
}

func TestOpenAIComplete(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"c1","object":"chat.completion","created":0,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  All good.  "}}]}`)
	}))
	defer server.Close()

	c, err := NewOpenAI("sk-test", server.URL+"/v1/", "gpt-4o-mini", option.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("NewOpenAI() error = %v", err)
	}
	out, err := c.Complete(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out != "All good." {
		t.Errorf("out = %q", out)
	}
	if gotPath != "/v1/chat/completions" || gotAuth != "Bearer sk-test" {
		t.Errorf("path = %q, auth = %q", gotPath, gotAuth)
	}

	if _, err := NewOpenAI("", "", "m"); err == nil {
		t.Error("missing key should be rejected")
	}
}
