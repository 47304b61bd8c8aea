package notifier

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/rs/zerolog"
	"github.com/stormguard/stormguard/internal/types"
	"golang.org/x/time/rate"
)

// Telegram delivers messages to Telegram chats; recipient ids are chat ids
type Telegram struct {
	bot     *bot.Bot
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewTelegram wraps an initialised bot. ratePerSecond bounds outgoing sends.
func NewTelegram(b *bot.Bot, ratePerSecond int, logger zerolog.Logger) *Telegram {
	if ratePerSecond <= 0 {
		ratePerSecond = 20
	}
	return &Telegram{
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(float64(ratePerSecond)), ratePerSecond),
		logger:  logger.With().Str("component", "telegram").Logger(),
	}
}

// Name implements Transport
func (t *Telegram) Name() string { return "tg" }

// Resolve implements Directory by looking the chat up
func (t *Telegram) Resolve(ctx context.Context, id string) (types.Recipient, bool) {
	chatID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		t.logger.Debug().Str("recipient", id).Msg("Not a chat id")
		return types.Recipient{}, false
	}

	chat, err := t.bot.GetChat(ctx, &bot.GetChatParams{ChatID: chatID})
	if err != nil {
		t.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to resolve chat")
		return types.Recipient{}, false
	}

	name := chat.Title
	if name == "" {
		name = strings.TrimSpace(chat.FirstName + " " + chat.LastName)
	}
	if name == "" && chat.Username != "" {
		name = "@" + chat.Username
	}
	if name == "" {
		name = id
	}
	return types.Recipient{ID: id, DisplayName: name}, true
}

// Send implements Sink
func (t *Telegram) Send(ctx context.Context, to types.Recipient, msg types.Message) error {
	chatID, err := strconv.ParseInt(to.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", to.ID, err)
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit: %w", err)
	}

	if _, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   msg.Text(),
	}); err != nil {
		return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", chatID, err)
	}

	t.logger.Debug().Int64("chat_id", chatID).Str("title", msg.Title).Msg("Notification sent")
	return nil
}
