// Package telegram is the chat adapter: an instrumented Bot API client built
// on go-telegram/bot, and the translation between Telegram updates and
// conversation events and actions.
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"helpcy/internal/config"
	"helpcy/internal/observability"
	contextutils "helpcy/internal/utils"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ClientInterface is the subset of the Bot API the adapter uses
type ClientInterface interface {
	SendMessage(ctx context.Context, msg *bot.SendMessageParams) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
	GetFile(ctx context.Context, fileID string) (*tgmodels.File, error)
	DownloadFile(ctx context.Context, file *tgmodels.File) ([]byte, error)
	SetWebhook(ctx context.Context, url, secret string) error
}

// Client wraps the Bot API with tracing and application errors
type Client struct {
	api        *bot.Bot
	httpClient *http.Client
	logger     *observability.Logger
}

// NewClient creates a Bot API client without contacting Telegram. APIURL may
// point at a local Bot API server or a test server.
func NewClient(cfg config.TelegramConfig, logger *observability.Logger) (*Client, error) {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = config.DefaultTelegramAPIURL
	}
	httpClient := &http.Client{
		Timeout: config.TelegramRequestTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanOptions(trace.WithSpanKind(trace.SpanKindClient)),
		),
	}

	api, err := bot.New(cfg.BotToken,
		bot.WithSkipGetMe(),
		bot.WithServerURL(apiURL),
		bot.WithHTTPClient(config.TelegramRequestTimeout, httpClient),
		bot.WithErrorsHandler(func(err error) {
			logger.Warn(context.Background(), "Telegram client error", map[string]interface{}{"error": err.Error()})
		}),
	)
	if err != nil {
		return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeTelegramAPI, contextutils.SeverityFatal,
			"failed to create telegram client", "", err)
	}
	return &Client{api: api, httpClient: httpClient, logger: logger}, nil
}

// SendMessage sends a text message with an optional inline keyboard
func (c *Client) SendMessage(ctx context.Context, msg *bot.SendMessageParams) (err error) {
	ctx, span := observability.TraceTelegramFunction(ctx, "sendMessage", attribute.String("telegram.chat_id", fmt.Sprint(msg.ChatID)))
	defer observability.FinishSpan(span, &err)

	if _, err := c.api.SendMessage(ctx, msg); err != nil {
		return apiError("sendMessage", err)
	}
	return nil
}

// AnswerCallbackQuery stops the loading indicator on a pressed button
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) (err error) {
	ctx, span := observability.TraceTelegramFunction(ctx, "answerCallbackQuery")
	defer observability.FinishSpan(span, &err)

	if _, err := c.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: callbackID, Text: text}); err != nil {
		return apiError("answerCallbackQuery", err)
	}
	return nil
}

// GetFile resolves a file id to a downloadable path
func (c *Client) GetFile(ctx context.Context, fileID string) (result *tgmodels.File, err error) {
	ctx, span := observability.TraceTelegramFunction(ctx, "getFile")
	defer observability.FinishSpan(span, &err)

	f, err := c.api.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, apiError("getFile", err)
	}
	if f.FileSize > config.MaxMediaBytes {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn, "file is too large", fmt.Sprintf("%d bytes", f.FileSize))
	}
	return f, nil
}

// DownloadFile fetches the content of a file resolved by GetFile
func (c *Client) DownloadFile(ctx context.Context, file *tgmodels.File) (data []byte, err error) {
	ctx, span := observability.TraceTelegramFunction(ctx, "downloadFile")
	defer observability.FinishSpan(span, &err)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.api.FileDownloadLink(file), nil)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to create file download request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeTelegramAPI, contextutils.SeverityWarn, "file download failed", "", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn(ctx, "Failed to close response body", map[string]interface{}{"error": closeErr.Error()})
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeTelegramAPI, contextutils.SeverityWarn,
			fmt.Sprintf("file download returned status %d", resp.StatusCode), "")
	}

	data, err = io.ReadAll(io.LimitReader(resp.Body, config.MaxMediaBytes+1))
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to read file content")
	}
	if len(data) > config.MaxMediaBytes {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn, "file is too large", "")
	}
	span.SetAttributes(attribute.Int("telegram.file_size", len(data)))
	return data, nil
}

// SetWebhook registers the webhook URL and its secret token
func (c *Client) SetWebhook(ctx context.Context, url, secret string) (err error) {
	ctx, span := observability.TraceTelegramFunction(ctx, "setWebhook")
	defer observability.FinishSpan(span, &err)

	_, err = c.api.SetWebhook(ctx, &bot.SetWebhookParams{
		URL:            url,
		SecretToken:    secret,
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		return apiError("setWebhook", err)
	}
	return nil
}

// apiError keeps the Bot API description; the library already strips the token
func apiError(method string, err error) error {
	return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeTelegramAPI, contextutils.SeverityWarn,
		method+" failed", err.Error(), err)
}
