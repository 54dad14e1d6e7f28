package bothandler

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/ssimba1203/gather-map-clean/internal/database"
	"github.com/ssimba1203/gather-map-clean/internal/errors"
	"github.com/ssimba1203/gather-map-clean/internal/interfaces"
	"github.com/ssimba1203/gather-map-clean/internal/middleware"
	"github.com/ssimba1203/gather-map-clean/internal/services"
	"github.com/ssimba1203/gather-map-clean/internal/telemetry"
)

const (
	categoryCallbackPrefix = "category:"

	// SecretTokenHeader carries the secret_token given to setWebhook
	SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"
)

// Sender is the part of *bot.Bot the handler talks back through
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// CommandMetrics counts handled commands
type CommandMetrics interface {
	RecordBotCommand(command, outcome string)
}

type nopCommandMetrics struct{}

func (nopCommandMetrics) RecordBotCommand(string, string) {}

// Handler maps chat commands onto a gathering per chat
type Handler struct {
	sender  Sender
	bot     *bot.Bot
	svc     interfaces.GatheringServiceInterface
	metrics CommandMetrics
	chain   []bot.Middleware
	secret  string
}

// Option customises a Handler
type Option func(*Handler)

// WithMetrics records command outcomes
func WithMetrics(m CommandMetrics) Option {
	return func(h *Handler) {
		if m != nil {
			h.metrics = m
		}
	}
}

// WithMiddleware wraps every update handler, outermost first
func WithMiddleware(m ...bot.Middleware) Option {
	return func(h *Handler) { h.chain = append(h.chain, m...) }
}

// WithWebhookSecret makes HandleWebhook reject requests whose secret token
// header does not match secret
func WithWebhookSecret(secret string) Option {
	return func(h *Handler) { h.secret = secret }
}

func NewHandler(sender Sender, svc interfaces.GatheringServiceInterface, opts ...Option) *Handler {
	h := &Handler{
		sender:  sender,
		svc:     svc,
		metrics: nopCommandMetrics{},
	}
	if b, ok := sender.(*bot.Bot); ok {
		h.bot = b
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// GatheringID names the gathering owned by a chat
func GatheringID(chatID int64) string {
	return "tg-" + strconv.FormatInt(chatID, 10)
}

// RegisterHandlers subscribes the handler to text messages and category
// button presses for polling mode
func (h *Handler) RegisterHandlers(b *bot.Bot) {
	b.RegisterHandler(bot.HandlerTypeMessageText, "", bot.MatchTypePrefix, h.HandleUpdate, h.chain...)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, categoryCallbackPrefix, bot.MatchTypePrefix, h.HandleUpdate, h.chain...)
}

// HandleWebhook accepts an update posted by Telegram in webhook mode
func (h *Handler) HandleWebhook(c *gin.Context) {
	if h.secret != "" {
		got := c.GetHeader(SecretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			telemetry.LogFromContext(c.Request.Context()).WithFields(map[string]interface{}{
				"client_ip": c.ClientIP(),
				"operation": "webhook",
				"service":   "bothandler",
			}).Warn("Rejected webhook request with bad secret token")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
	}

	var update models.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		telemetry.LogFromContext(c.Request.Context()).WithError(err).Warn("Failed to parse webhook JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	h.wrapped()(c.Request.Context(), h.bot, &update)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) wrapped() bot.HandlerFunc {
	handler := bot.HandlerFunc(h.HandleUpdate)
	for i := len(h.chain) - 1; i >= 0; i-- {
		handler = h.chain[i](handler)
	}
	return handler
}

// HandleUpdate dispatches a single update
func (h *Handler) HandleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	switch {
	case update.Message != nil:
		h.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		h.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, message *models.Message) {
	chatID := message.Chat.ID
	if !isCommand(message.Text) {
		h.sendMessage(ctx, chatID, "명령을 이해하지 못했습니다. /help 로 사용법을 확인하세요.", nil)
		return
	}

	command, arg := splitCommand(message.Text)
	logger := telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"chat_id":   chatID,
		"command":   command,
		"operation": "bot_command",
		"service":   "bothandler",
	})
	logger.Debug("Processing command")

	id := GatheringID(chatID)
	var (
		g   *database.Gathering
		err error
	)
	switch command {
	case "start", "help":
		h.metrics.RecordBotCommand(command, "ok")
		h.sendMessage(ctx, chatID, helpText(), nil)
		return
	case "add":
		if arg == "" {
			err = errors.NewValidationError("address", "주소를 입력하세요. 예) /add 강남역")
			break
		}
		g, err = h.svc.AddFriend(ctx, id, arg)
	case "remove":
		friendID, convErr := strconv.Atoi(arg)
		if convErr != nil {
			err = errors.NewValidationError("id", "삭제할 친구 번호를 입력하세요. 예) /remove 1")
			break
		}
		g, err = h.svc.RemoveFriend(ctx, id, friendID)
	case "list":
		g, err = h.svc.Get(ctx, id)
	case "category":
		if arg == "" {
			h.metrics.RecordBotCommand(command, "ok")
			h.sendMessage(ctx, chatID, "카테고리를 선택하세요.", categoryKeyboard())
			return
		}
		g, err = h.svc.SelectCategory(ctx, id, arg)
	case "reset":
		g, err = h.svc.Reset(ctx, id)
	default:
		h.metrics.RecordBotCommand("unknown", "ignored")
		h.sendMessage(ctx, chatID, "알 수 없는 명령입니다. /help 로 사용법을 확인하세요.", nil)
		return
	}

	if err != nil {
		h.metrics.RecordBotCommand(command, outcome(err))
		logger.WithError(err).Info("Command failed")
		h.sendMessage(ctx, chatID, middleware.UserFriendlyMessage(err), nil)
		return
	}
	h.metrics.RecordBotCommand(command, "ok")
	h.sendMessage(ctx, chatID, Summary(g), nil)
}

func (h *Handler) handleCallbackQuery(ctx context.Context, callback *models.CallbackQuery) {
	logger := telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"user_id":       callback.From.ID,
		"callback_data": callback.Data,
		"service":       "bothandler",
	})

	if _, err := h.sender.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callback.ID,
	}); err != nil {
		logger.WithError(err).Warn("Failed to answer callback query")
	}

	if callback.Message.Message == nil || !strings.HasPrefix(callback.Data, categoryCallbackPrefix) {
		logger.Warn("Ignoring callback query")
		return
	}
	chatID := callback.Message.Message.Chat.ID
	category := strings.TrimPrefix(callback.Data, categoryCallbackPrefix)

	g, err := h.svc.SelectCategory(ctx, GatheringID(chatID), category)
	if err != nil {
		h.metrics.RecordBotCommand("category", outcome(err))
		h.sendMessage(ctx, chatID, middleware.UserFriendlyMessage(err), nil)
		return
	}
	h.metrics.RecordBotCommand("category", "ok")
	h.sendMessage(ctx, chatID, Summary(g), nil)
}

// outcome labels a failed command by its error type
func outcome(err error) string {
	if t, ok := errors.GetErrorType(err); ok {
		return string(t)
	}
	return "error"
}

func (h *Handler) sendMessage(ctx context.Context, chatID int64, text string, markup models.ReplyMarkup) {
	noPreview := true
	params := &bot.SendMessageParams{
		ChatID:             chatID,
		Text:               text,
		LinkPreviewOptions: &models.LinkPreviewOptions{IsDisabled: &noPreview},
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	if _, err := h.sender.SendMessage(ctx, params); err != nil {
		telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
			"chat_id":   chatID,
			"operation": "send_message",
			"service":   "bothandler",
		}).WithError(err).Error("Failed to send message")
	}
}

func categoryKeyboard() models.ReplyMarkup {
	row := make([]models.InlineKeyboardButton, 0, len(services.Categories()))
	for _, c := range services.Categories() {
		row = append(row, models.InlineKeyboardButton{Text: c, CallbackData: categoryCallbackPrefix + c})
	}
	return models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{row}}
}

func helpText() string {
	var b strings.Builder
	b.WriteString("📍 친구들의 중간 지점을 찾아 드립니다.\n\n")
	b.WriteString("/add <주소> - 친구 위치 추가\n")
	b.WriteString("/remove <번호> - 친구 삭제\n")
	b.WriteString("/list - 현재 상태 보기\n")
	b.WriteString("/category <" + strings.Join(services.Categories(), "|") + "> - 추천 카테고리 변경\n")
	b.WriteString("/reset - 모두 지우기\n")
	b.WriteString("/help - 도움말")
	return b.String()
}

// Summary renders a gathering as a chat message
func Summary(g *database.Gathering) string {
	if len(g.Friends) == 0 {
		return "아직 추가된 친구가 없습니다. /add <주소> 로 추가하세요."
	}

	var b strings.Builder
	for _, f := range g.Friends {
		b.WriteString(services.FriendHeading(f))
		b.WriteByte('\n')
	}
	if g.Midpoint == nil {
		b.WriteString("\n친구를 한 명 더 추가하면 중간 지점을 계산합니다.")
		return b.String()
	}

	fmt.Fprintf(&b, "\n%s: %.5f, %.5f\n\n", services.MidpointTitle, g.Midpoint.Lat, g.Midpoint.Lng)
	b.WriteString(services.PlacesHeading(g.Category))
	if len(g.Places) == 0 {
		b.WriteString("\n검색 결과가 없습니다.")
		return b.String()
	}
	for i, p := range g.Places {
		addr := p.RoadAddress
		if addr == "" {
			addr = p.Address
		}
		fmt.Fprintf(&b, "\n%d. %s (%s)\n   %s", i+1, p.Name, addr, p.MapURL)
	}
	return b.String()
}

func isCommand(text string) bool {
	return strings.HasPrefix(text, "/")
}

// splitCommand returns the command without its slash or @botname suffix and
// the trimmed remainder
func splitCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !isCommand(text) {
		return "", text
	}
	head, rest, _ := strings.Cut(text, " ")
	head = strings.TrimPrefix(head, "/")
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	return strings.ToLower(head), strings.TrimSpace(rest)
}
