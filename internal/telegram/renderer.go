package telegram

import (
	"fmt"
	"html"
	"net/url"
	"strings"

	"helpcy/internal/models"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// Renderer turns conversation actions into Telegram messages
type Renderer struct {
	// webAppBase is the directory holding map.html, camera.html and
	// edit_description.html; empty disables the mini-app buttons
	webAppBase string
}

// NewRenderer creates a renderer. webAppURL may point at the mini-app
// directory or at one of its pages.
func NewRenderer(webAppURL string) *Renderer {
	base := strings.TrimRight(webAppURL, "/")
	if strings.HasSuffix(base, ".html") {
		base = base[:strings.LastIndex(base, "/")]
	}
	return &Renderer{webAppBase: base}
}

// Render produces the messages for an action, in send order
func (r *Renderer) Render(chatID int64, action *models.ConversationAction) []*bot.SendMessageParams {
	if action == nil {
		return nil
	}
	if action.Type == models.ActionRejected {
		out := []*bot.SendMessageParams{r.message(chatID, "⚠️ "+html.EscapeString(action.Reason), nil)}
		return append(out, r.Render(chatID, action.Retry)...)
	}

	switch action.Type {
	case models.ActionPromptForLocation:
		if r.webAppBase == "" {
			return r.one(chatID, "👋 Welcome!\n\nPlease share your location to continue: use 📎 and choose Location.")
		}
		return r.one(chatID, "👋 Welcome!\n\nPlease share your location to continue.",
			row(webAppButton("📍 Share My Location", r.webAppBase+"/map.html")))
	case models.ActionPromptForMedia:
		return r.one(chatID, "✅ Location received!\n\nWhat would you like to share?", row(
			callbackButton("📷 Photo", CallbackMediaPhoto),
			callbackButton("🎵 Audio", CallbackMediaAudio),
		))
	case models.ActionShowCategoryList:
		rows := make([][]tgmodels.InlineKeyboardButton, 0, len(action.Categories))
		for i, name := range action.Categories {
			rows = append(rows, row(callbackButton(name, fmt.Sprintf("%s%d", CallbackCategoryPrefix, i))))
		}
		return r.one(chatID, "🏷 Select a category:", rows...)
	case models.ActionShowSubcategoryList:
		rows := make([][]tgmodels.InlineKeyboardButton, 0, len(action.Subcategories)+1)
		for i, name := range action.Subcategories {
			rows = append(rows, row(callbackButton(name, fmt.Sprintf("%s%d", CallbackSubcategoryPref, i))))
		}
		rows = append(rows, row(callbackButton("🔙 Back", CallbackBackToCategories)))
		text := fmt.Sprintf("🏷 Category: %s\n\n🔖 Select subcategory:", html.EscapeString(action.Category))
		return r.one(chatID, text, rows...)
	case models.ActionShowReviewScreen:
		return r.one(chatID, reviewText(action.Draft), r.reviewKeyboard(action.Draft)...)
	case models.ActionPromptForDescriptionEdit:
		text := "✏️ <b>Edit Description</b>\n\n" +
			"<b>Current description:</b>\n<i>" + html.EscapeString(action.Description) + "</i>\n\n" +
			"Please send a new description for your report.\nYou can edit or completely rewrite it."
		return r.one(chatID, text)
	case models.ActionConfirmed:
		text := "✅ <b>Report Submitted Successfully!</b>\n\n" +
			"Your report has been sent to the municipality.\n" +
			"You will be notified when it's reviewed.\n\n"
		if action.ReportID != "" {
			text += "🆔 Report ID: <code>" + html.EscapeString(action.ReportID) + "</code>\n\n"
		}
		text += "Thank you for helping improve our city! 🏙️\n\n——————\nWant to report another issue?\nSend /start"
		return r.one(chatID, text)
	}
	return nil
}

// RenderNotice produces the reply for a static notice
func (r *Renderer) RenderNotice(chatID int64, notice Notice) *bot.SendMessageParams {
	switch notice {
	case NoticeHelp:
		return r.message(chatID, helpText, nil)
	case NoticeCleared:
		return r.message(chatID, "🗑️ History and state cleared!", nil)
	case NoticePhotoHint:
		text := "📷 <b>Photo Report</b>\n\n" +
			"📸 Send a clear, well-lit photo of the problem"
		if r.webAppBase == "" {
			return r.message(chatID, text+".", nil)
		}
		return r.message(chatID, text+", or open the camera below.", &tgmodels.InlineKeyboardMarkup{
			InlineKeyboard: [][]tgmodels.InlineKeyboardButton{row(webAppButton("📸 Open Camera", r.webAppBase+"/camera.html"))},
		})
	case NoticeAudioHint:
		return r.message(chatID, "🎵 <b>Audio Report</b>\n\n"+
			"📝 Please record a voice message describing the problem:\n\n"+
			"• Tap and hold the microphone button 🎤\n"+
			"• Describe what you see\n"+
			"• Mention any important details\n"+
			"• Release to send\n\n"+
			"Your voice message will be analyzed automatically.", nil)
	case NoticeBadCommand:
		return r.message(chatID, "I don't understand that command. Send /help to see what I can do.", nil)
	case NoticeBadLink:
		return r.message(chatID, "❌ Error parsing location", nil)
	}
	return nil
}

// RenderFailure is sent when an update could not be processed
func (r *Renderer) RenderFailure(chatID int64) *bot.SendMessageParams {
	return r.message(chatID, "An error occurred while processing your request. Please try again later.", nil)
}

func (r *Renderer) one(chatID int64, text string, rows ...[]tgmodels.InlineKeyboardButton) []*bot.SendMessageParams {
	var markup *tgmodels.InlineKeyboardMarkup
	if len(rows) > 0 {
		markup = &tgmodels.InlineKeyboardMarkup{InlineKeyboard: rows}
	}
	return []*bot.SendMessageParams{r.message(chatID, text, markup)}
}

func (r *Renderer) message(chatID int64, text string, markup *tgmodels.InlineKeyboardMarkup) *bot.SendMessageParams {
	msg := &bot.SendMessageParams{ChatID: chatID, Text: text, ParseMode: tgmodels.ParseModeHTML}
	// A typed nil would be sent as "null"
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	return msg
}

func (r *Renderer) reviewKeyboard(draft *models.ReportDraft) [][]tgmodels.InlineKeyboardButton {
	rows := [][]tgmodels.InlineKeyboardButton{row(callbackButton("🔄 Change Category", CallbackChangeCategory))}
	if r.webAppBase != "" && draft != nil {
		rows = append(rows, row(webAppButton("✏️ Edit Description", r.editDescriptionURL(draft))))
	} else {
		rows = append(rows, row(callbackButton("✏️ Edit Description", CallbackEditDescription)))
	}
	return append(rows, row(callbackButton("✅ Submit", CallbackSubmit)))
}

// editDescriptionURL prefills the description editor page
func (r *Renderer) editDescriptionURL(draft *models.ReportDraft) string {
	q := url.Values{}
	q.Set("desc", draft.Description)
	q.Set("cat", draft.Category)
	q.Set("subcat", draft.Subcategory)
	q.Set("user_id", fmt.Sprint(draft.UserID))
	if draft.Location != nil {
		q.Set("lat", fmt.Sprintf("%.6f", draft.Location.Latitude))
		q.Set("lng", fmt.Sprintf("%.6f", draft.Location.Longitude))
	}
	return r.webAppBase + "/edit_description.html?" + q.Encode()
}

func reviewText(draft *models.ReportDraft) string {
	if draft == nil {
		return "📋 <b>Report Details</b>"
	}
	var b strings.Builder
	b.WriteString("📋 <b>Report Details</b>\n\n")
	if draft.Location != nil {
		fmt.Fprintf(&b, "📍 <b>Location:</b> %.6f, %.6f\n\n", draft.Location.Latitude, draft.Location.Longitude)
	}
	fmt.Fprintf(&b, "🏷 <b>Category:</b> %s\n", html.EscapeString(draft.Category))
	fmt.Fprintf(&b, "🔖 <b>Subcategory:</b> %s\n", html.EscapeString(draft.Subcategory))
	fmt.Fprintf(&b, "📝 <b>Description:</b> %s\n\n", html.EscapeString(draft.Description))
	b.WriteString("Review your report and submit or change category.")
	return b.String()
}

func row(buttons ...tgmodels.InlineKeyboardButton) []tgmodels.InlineKeyboardButton {
	return buttons
}

func callbackButton(text, data string) tgmodels.InlineKeyboardButton {
	return tgmodels.InlineKeyboardButton{Text: text, CallbackData: data}
}

func webAppButton(text, target string) tgmodels.InlineKeyboardButton {
	return tgmodels.InlineKeyboardButton{Text: text, WebApp: &tgmodels.WebAppInfo{URL: target}}
}

const helpText = "ℹ️ <b>HelpCy Bot - Municipal Problem Reporter</b>\n\n" +
	"HelpCy helps you report municipal problems in your city. " +
	"Share your location, take a photo or record audio, and our AI will analyze the issue.\n\n" +
	"🔧 <b>Available Commands:</b>\n\n" +
	"/start - Start a new report\n" +
	"/help - Show this help message\n" +
	"/clear - Clear current report and start over\n" +
	"/location &lt;lat&gt; &lt;lng&gt; - Set the location by coordinates\n\n" +
	"📋 <b>How it works:</b>\n" +
	"1️⃣ Send /start to begin\n" +
	"2️⃣ Share your location\n" +
	"3️⃣ Take a photo or record audio\n" +
	"4️⃣ Review the analyzed report\n" +
	"5️⃣ Change category or description if needed\n" +
	"6️⃣ Submit your report"
