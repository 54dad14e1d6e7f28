package middleware

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ssimba1203/gather-map-clean/internal/errors"
	"github.com/ssimba1203/gather-map-clean/internal/telemetry"
)

// UpdateChatID returns the chat an update belongs to, or 0
func UpdateChatID(update *models.Update) int64 {
	switch {
	case update == nil:
		return 0
	case update.Message != nil:
		return update.Message.Chat.ID
	case update.CallbackQuery != nil && update.CallbackQuery.Message.Message != nil:
		return update.CallbackQuery.Message.Message.Chat.ID
	}
	return 0
}

func updateFields(update *models.Update) logrus.Fields {
	fields := logrus.Fields{"update_id": update.ID}
	switch {
	case update.Message != nil:
		fields["update_type"] = "message"
		fields["chat_id"] = update.Message.Chat.ID
		fields["message_text"] = update.Message.Text
		if update.Message.From != nil {
			fields["user_id"] = update.Message.From.ID
			fields["username"] = update.Message.From.Username
		}
	case update.CallbackQuery != nil:
		fields["update_type"] = "callback_query"
		fields["user_id"] = update.CallbackQuery.From.ID
		fields["callback_data"] = update.CallbackQuery.Data
		if chatID := UpdateChatID(update); chatID != 0 {
			fields["chat_id"] = chatID
		}
	default:
		fields["update_type"] = "other"
	}
	return fields
}

// BotLogging attaches a correlation id and a span to every update, logs it
// with its duration and recovers handler panics with a generic reply
func BotLogging() bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			start := time.Now()
			ctx = telemetry.WithCorrelationID(ctx, telemetry.NewCorrelationID())
			ctx, span := telemetry.StartSpan(ctx, "telegram.update",
				attribute.Int64("telegram.update_id", update.ID),
				attribute.Int64("telegram.chat_id", UpdateChatID(update)),
			)
			logger := telemetry.LogFromContext(ctx).WithFields(updateFields(update))
			logger.Debug("Incoming update")

			defer func() {
				duration := time.Since(start)
				if r := recover(); r != nil {
					buf := make([]byte, 4096)
					n := runtime.Stack(buf, false)
					logger.WithFields(logrus.Fields{
						"panic_value": fmt.Sprintf("%v", r),
						"stack_trace": string(buf[:n]),
						"duration_ms": duration.Milliseconds(),
					}).Error("Panic recovered in bot handler")

					if chatID := UpdateChatID(update); chatID != 0 && b != nil {
						_, _ = b.SendMessage(context.WithoutCancel(ctx), &bot.SendMessageParams{
							ChatID: chatID,
							Text:   UserFriendlyMessage(errors.NewInternalError("panic", nil)),
						})
					}
					telemetry.EndSpan(span, fmt.Errorf("panic: %v", r))
					return
				}
				telemetry.EndSpan(span, nil)
				logger.WithField("duration_ms", duration.Milliseconds()).Info("Update processed")
			}()

			next(ctx, b, update)
		}
	}
}

// BotRateLimit drops updates from chats over their budget and tells the chat to slow down
func BotRateLimit(limiter *KeyedRateLimiter) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			chatID := UpdateChatID(update)
			if chatID == 0 || limiter.Allow(strconv.FormatInt(chatID, 10)) {
				next(ctx, b, update)
				return
			}

			telemetry.LogFromContext(ctx).WithFields(logrus.Fields{
				"chat_id": chatID,
				"service": "middleware",
			}).Warn("Chat rate limited")
			if b != nil {
				_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
					ChatID: chatID,
					Text:   UserFriendlyMessage(errors.NewRateLimitError(limiter.Limit(), limiter.Window().String())),
				})
			}
		}
	}
}
