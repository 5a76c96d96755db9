package telegram

import (
	"context"

	"helpcy/internal/models"
	"helpcy/internal/observability"
	"helpcy/internal/services"
	contextutils "helpcy/internal/utils"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"go.opentelemetry.io/otel/attribute"
)

// Bot connects Telegram updates to the conversation service
type Bot struct {
	client       ClientInterface
	conversation services.ConversationServiceInterface
	media        services.MediaStore
	renderer     *Renderer
	logger       *observability.Logger
}

// NewBot creates a Bot
func NewBot(client ClientInterface, conversation services.ConversationServiceInterface, media services.MediaStore, renderer *Renderer, logger *observability.Logger) *Bot {
	return &Bot{
		client:       client,
		conversation: conversation,
		media:        media,
		renderer:     renderer,
		logger:       logger,
	}
}

// HandleUpdate processes one webhook update to completion. Errors are
// returned only for failures the user was told about; untranslatable
// updates are logged and dropped.
func (b *Bot) HandleUpdate(ctx context.Context, update *tgmodels.Update) (err error) {
	ctx, span := observability.TraceTelegramFunction(ctx, "handle_update", attribute.Int64("telegram.update_id", update.ID))
	defer observability.FinishSpan(span, &err)

	in, err := Translate(update)
	if err != nil {
		b.logger.Warn(ctx, "Dropping untranslatable update", map[string]interface{}{
			"update_id": update.ID,
			"error":     err.Error(),
		})
		if update.CallbackQuery != nil {
			b.answer(ctx, update.CallbackQuery.ID, "Unknown action")
		}
		return nil
	}
	if in == nil {
		return nil
	}
	span.SetAttributes(observability.AttributeUserID(in.UserID))
	ctx = contextutils.WithUserID(contextutils.WithEventSource(ctx, string(models.SourceChat)), in.UserID)

	if in.Notice != NoticeNone {
		b.send(ctx, b.renderer.RenderNotice(in.ChatID, in.Notice))
	}

	if in.Media != nil {
		event, err := b.storeMedia(ctx, in)
		if err != nil {
			b.send(ctx, b.renderer.RenderFailure(in.ChatID))
			b.answer(ctx, in.CallbackID, "")
			return err
		}
		in.Events = append(in.Events, event)
	}

	var action *models.ConversationAction
	for _, event := range in.Events {
		action, err = b.conversation.Dispatch(ctx, event)
		if err != nil {
			if contextutils.GetErrorCode(err) == contextutils.ErrorCodeInvalidInput {
				var appErr *contextutils.AppError
				contextutils.AsError(err, &appErr)
				b.send(ctx, b.renderer.message(in.ChatID, "⚠️ "+appErr.Message, nil))
				b.answer(ctx, in.CallbackID, "")
				return nil
			}
			b.logger.Error(ctx, "Failed to dispatch chat event", err, map[string]interface{}{
				"user_id":    in.UserID,
				"event_type": string(event.Type),
				"update_id":  in.UpdateID,
			})
			b.send(ctx, b.renderer.RenderFailure(in.ChatID))
			b.answer(ctx, in.CallbackID, "")
			return err
		}
	}

	for _, msg := range b.renderer.Render(in.ChatID, action) {
		b.send(ctx, msg)
	}
	if action != nil && action.Type == models.ActionConfirmed {
		b.answer(ctx, in.CallbackID, "✅ Report submitted!")
	} else {
		b.answer(ctx, in.CallbackID, "")
	}
	return nil
}

// Notify pushes an action produced on another channel to the user's private
// chat, whose id equals the user id.
func (b *Bot) Notify(ctx context.Context, userID int64, action *models.ConversationAction) (err error) {
	ctx, span := observability.TraceTelegramFunction(ctx, "notify", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	for _, msg := range b.renderer.Render(userID, action) {
		if err := b.client.SendMessage(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// RegisterWebhook points Telegram at the service's webhook endpoint
func (b *Bot) RegisterWebhook(ctx context.Context, url, secret string) error {
	if err := b.client.SetWebhook(ctx, url, secret); err != nil {
		return contextutils.WrapError(err, "failed to register telegram webhook")
	}
	b.logger.Info(ctx, "Telegram webhook registered", map[string]interface{}{"url": url})
	return nil
}

// storeMedia downloads the attached file and builds the MediaReceived event.
// Objects are named by file_unique_id, so a redelivered update reuses the
// object stored on the first delivery.
func (b *Bot) storeMedia(ctx context.Context, in *Inbound) (*models.ReportEvent, error) {
	ref, err := b.storedMedia(ctx, in)
	if err != nil {
		return nil, err
	}
	return models.NewMediaEvent(in.UserID, in.Media.Kind, ref).
		From(models.SourceChat).
		WithEventID(in.EventID(len(in.Events))), nil
}

func (b *Bot) storedMedia(ctx context.Context, in *Inbound) (string, error) {
	name := in.Media.FileUniqueID
	if name != "" {
		ref, err := b.media.Find(ctx, in.UserID, in.Media.Kind, name)
		if err != nil {
			return "", contextutils.WrapError(err, "failed to look up telegram media")
		}
		if ref != "" {
			b.logger.Debug(ctx, "Reusing stored chat media", map[string]interface{}{
				"user_id": in.UserID,
				"ref":     ref,
			})
			return ref, nil
		}
	}

	file, err := b.client.GetFile(ctx, in.Media.FileID)
	if err != nil {
		return "", contextutils.WrapError(err, "failed to resolve telegram file")
	}
	data, err := b.client.DownloadFile(ctx, file)
	if err != nil {
		return "", contextutils.WrapError(err, "failed to download telegram file")
	}
	contentType := services.NormalizeContentType(data, in.Media.MimeType)

	var ref string
	if name != "" {
		ref, err = b.media.PutNamed(ctx, in.UserID, in.Media.Kind, name, data, contentType)
	} else {
		ref, err = b.media.Put(ctx, in.UserID, in.Media.Kind, data, contentType)
	}
	if err != nil {
		return "", contextutils.WrapError(err, "failed to store telegram media")
	}
	b.logger.Debug(ctx, "Stored chat media", map[string]interface{}{
		"user_id":      in.UserID,
		"kind":         string(in.Media.Kind),
		"content_type": contentType,
		"size":         len(data),
	})
	return ref, nil
}

func (b *Bot) send(ctx context.Context, msg *bot.SendMessageParams) {
	if msg == nil {
		return
	}
	if err := b.client.SendMessage(ctx, msg); err != nil {
		b.logger.Warn(ctx, "Failed to send telegram message", map[string]interface{}{
			"chat_id": msg.ChatID,
			"error":   err.Error(),
		})
	}
}

func (b *Bot) answer(ctx context.Context, callbackID, text string) {
	if callbackID == "" {
		return
	}
	if err := b.client.AnswerCallbackQuery(ctx, callbackID, text); err != nil {
		b.logger.Warn(ctx, "Failed to answer callback query", map[string]interface{}{"error": err.Error()})
	}
}
