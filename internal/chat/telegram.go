package chat

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
	"github.com/stormguard/stormguard/internal/commands"
)

// CommandHandler runs one chat message
type CommandHandler interface {
	Handle(ctx context.Context, inv commands.Invocation) commands.Reply
}

// Telegram feeds Telegram updates to the command handler and posts the replies.
// Each chat is one monitored entity, keyed by its chat id.
type Telegram struct {
	log     zerolog.Logger
	handler CommandHandler
}

// NewTelegram creates the adapter; register HandleUpdate with bot.WithDefaultHandler
func NewTelegram(log zerolog.Logger, handler CommandHandler) *Telegram {
	return &Telegram{
		log:     log.With().Str("component", "chat").Logger(),
		handler: handler,
	}
}

// HandleUpdate implements bot.HandlerFunc
func (t *Telegram) HandleUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if t.handler == nil || msg == nil || msg.Text == "" || msg.From == nil || msg.From.IsBot {
		return
	}

	inv := commands.Invocation{
		EntityID:    strconv.FormatInt(msg.Chat.ID, 10),
		UserID:      strconv.FormatInt(msg.From.ID, 10),
		DisplayName: displayName(msg.From),
		Text:        msg.Text,
	}

	reply := t.handler.Handle(ctx, inv)
	if reply.Text == "" {
		return
	}

	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: msg.Chat.ID,
		Text:   reply.Text,
	}); err != nil {
		t.log.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("Failed to send reply")
	}
}

func displayName(u *models.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" && u.Username != "" {
		name = "@" + u.Username
	}
	if name == "" {
		name = strconv.FormatInt(u.ID, 10)
	}
	return name
}

// SetHandler replaces the command handler. Call before the bot starts polling.
func (t *Telegram) SetHandler(h CommandHandler) {
	t.handler = h
}
