// Package notify delivers engine messages to users.
package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"tynles/internal/model"
	"tynles/internal/service"
)

// MessageAPI is the part of the Telegram client the sender needs.
type MessageAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// UserLookup resolves internal user ids to Telegram chats.
type UserLookup interface {
	FindByID(ctx context.Context, id uint) (*model.User, error)
}

// TelegramSender sends HTML messages to users' private chats, throttled to
// stay under Telegram's flood limits.
type TelegramSender struct {
	api     MessageAPI
	users   UserLookup
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewTelegramSender(api MessageAPI, users UserLookup, ratePerSec int, log zerolog.Logger) *TelegramSender {
	if ratePerSec <= 0 {
		ratePerSec = 20
	}
	return &TelegramSender{
		api:     api,
		users:   users,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		log:     log.With().Str("component", "telegram-sender").Logger(),
	}
}

// Send implements service.Sender. Every failure wraps service.ErrTransport.
func (s *TelegramSender) Send(ctx context.Context, userID uint, text string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: resolve user %d: %v", service.ErrTransport, userID, err)
	}
	if user.TelegramID == 0 {
		return fmt.Errorf("%w: user %d has no chat", service.ErrTransport, userID)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", service.ErrTransport, err)
	}

	msg := tgbotapi.NewMessage(user.TelegramID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := s.api.Send(msg); err != nil {
		return fmt.Errorf("%w: send to user %d: %v", service.ErrTransport, userID, err)
	}
	s.log.Debug().Uint("user_id", userID).Int64("chat_id", user.TelegramID).Msg("message sent")
	return nil
}

// LogSender writes messages to the log instead of delivering them. Used by
// one-shot commands run without a bot token.
type LogSender struct {
	Log zerolog.Logger
}

func (s LogSender) Send(_ context.Context, userID uint, text string) error {
	s.Log.Info().Uint("user_id", userID).Str("text", text).Msg("message")
	return nil
}
