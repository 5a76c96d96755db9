package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"

	"helpcy/internal/observability"
	contextutils "helpcy/internal/utils"

	"github.com/gin-gonic/gin"
	tgmodels "github.com/go-telegram/bot/models"
)

// secretHeader carries the secret_token registered with setWebhook
const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// UpdateHandler processes one Telegram update
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update *tgmodels.Update) error
}

// TelegramHandler receives Bot API webhook deliveries
type TelegramHandler struct {
	bot    UpdateHandler
	secret string
	logger *observability.Logger
}

// NewTelegramHandler creates a TelegramHandler. An empty secret disables the
// header check.
func NewTelegramHandler(bot UpdateHandler, secret string, logger *observability.Logger) *TelegramHandler {
	return &TelegramHandler{bot: bot, secret: secret, logger: logger}
}

// Webhook handles POST on the configured webhook path. Processing failures
// are logged and still acknowledged: the user has been told, and a Telegram
// redelivery would only repeat the failure.
func (h *TelegramHandler) Webhook(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "telegram_webhook")
	defer observability.FinishSpan(span, nil)

	if h.secret != "" && subtle.ConstantTimeCompare([]byte(c.GetHeader(secretHeader)), []byte(h.secret)) != 1 {
		h.logger.Warn(ctx, "Rejected webhook delivery with a bad secret", map[string]interface{}{"client_ip": c.ClientIP()})
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	var update tgmodels.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		h.logger.Warn(ctx, "Invalid telegram update", map[string]interface{}{"error": err.Error()})
		HandleAppError(c, contextutils.ErrInvalidInput)
		return
	}

	if err := h.bot.HandleUpdate(ctx, &update); err != nil {
		h.logger.Error(ctx, "Failed to handle telegram update", err, map[string]interface{}{"update_id": update.ID})
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
