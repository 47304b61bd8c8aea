package chat

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
	"github.com/stormguard/stormguard/internal/commands"
)

type recordingHandler struct {
	got   []commands.Invocation
	reply string
}

func (h *recordingHandler) Handle(_ context.Context, inv commands.Invocation) commands.Reply {
	h.got = append(h.got, inv)
	return commands.Reply{Text: h.reply}
}

func newFakeBot(t *testing.T) (*bot.Bot, *[]string) {
	t.Helper()
	var (
		mu   sync.Mutex
		sent []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"storm","username":"stormbot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			r.ParseMultipartForm(1 << 20)
			mu.Lock()
			sent = append(sent, r.FormValue("chat_id")+"|"+r.FormValue("text"))
			mu.Unlock()
			io.WriteString(w, `{"ok":true,"result":{"message_id":2,"date":0,"chat":{"id":-200,"type":"group"}}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
		}
	}))
	t.Cleanup(server.Close)

	b, err := bot.New("123:abc", bot.WithServerURL(server.URL))
	if err != nil {
		t.Fatalf("bot.New() error = %v", err)
	}
	return b, &sent
}

func TestHandleUpdateRoutesAndReplies(t *testing.T) {
	b, sent := newFakeBot(t)
	h := &recordingHandler{reply: "Weather alerts enabled."}
	tg := NewTelegram(zerolog.Nop(), h)

	tg.HandleUpdate(context.Background(), b, &models.Update{
		Message: &models.Message{
			Text: "/weather toggle",
			Chat: models.Chat{ID: -200, Type: "group"},
			From: &models.User{ID: 100, FirstName: "Ann", LastName: "Lee"},
		},
	})

	if len(h.got) != 1 {
		t.Fatalf("handler calls = %d", len(h.got))
	}
	inv := h.got[0]
	if inv.EntityID != "-200" || inv.UserID != "100" || inv.DisplayName != "Ann Lee" || inv.Text != "/weather toggle" {
		t.Errorf("invocation = %+v", inv)
	}
	if len(*sent) != 1 || (*sent)[0] != "-200|Weather alerts enabled." {
		t.Errorf("sent = %q", *sent)
	}
}

func TestHandleUpdateIgnoresBotsAndSilence(t *testing.T) {
	b, sent := newFakeBot(t)
	h := &recordingHandler{}
	tg := NewTelegram(zerolog.Nop(), h)

	tg.HandleUpdate(context.Background(), b, &models.Update{})
	tg.HandleUpdate(context.Background(), b, &models.Update{Message: &models.Message{
		Text: "hi", Chat: models.Chat{ID: 1}, From: &models.User{ID: 9, IsBot: true},
	}})
	if len(h.got) != 0 {
		t.Errorf("bot messages should be ignored: %+v", h.got)
	}

	tg.HandleUpdate(context.Background(), b, &models.Update{Message: &models.Message{
		Text: "good morning", Chat: models.Chat{ID: 1}, From: &models.User{ID: 5, Username: "ann"},
	}})
	if len(h.got) != 1 || h.got[0].DisplayName != "@ann" {
		t.Errorf("got = %+v", h.got)
	}
	if len(*sent) != 0 {
		t.Errorf("empty replies should not be sent: %q", *sent)
	}
}
