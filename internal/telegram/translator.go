package telegram

import (
	"fmt"
	"strconv"
	"strings"

	"helpcy/internal/models"
	contextutils "helpcy/internal/utils"

	tgmodels "github.com/go-telegram/bot/models"
)

// Callback data carried by the inline keyboards
const (
	CallbackChangeCategory   = "chcat"
	CallbackCategoryPrefix   = "cat_"
	CallbackSubcategoryPref  = "subcat_"
	CallbackBackToCategories = "back_to_categories"
	CallbackEditDescription  = "eddesc"
	CallbackSubmit           = "submit_report"
	CallbackMediaPhoto       = "media_photo"
	CallbackMediaAudio       = "media_audio"
)

// Notice is a static reply that does not touch the conversation
type Notice string

const (
	NoticeNone       Notice = ""
	NoticeHelp       Notice = "help"
	NoticeCleared    Notice = "cleared"
	NoticePhotoHint  Notice = "photo_hint"
	NoticeAudioHint  Notice = "audio_hint"
	NoticeBadCommand Notice = "bad_command"
	NoticeBadLink    Notice = "bad_location"
)

// MediaDownload names a file the adapter must fetch and store before it can
// build the MediaReceived event. FileUniqueID is stable across redeliveries
// and names the stored object.
type MediaDownload struct {
	Kind         models.MediaKind
	FileID       string
	FileUniqueID string
	MimeType     string
}

// Inbound is a Telegram update reduced to what the conversation needs
type Inbound struct {
	UpdateID   int64
	UserID     int64
	ChatID     int64
	CallbackID string

	// Events are dispatched in order; the last action is rendered
	Events []*models.ReportEvent
	// Media, when set, becomes a MediaReceived event once stored
	Media  *MediaDownload
	Notice Notice
}

// EventID is the delivery id shared by every event built from the update
func (in *Inbound) EventID(n int) string {
	if n == 0 {
		return strconv.FormatInt(in.UpdateID, 10)
	}
	return fmt.Sprintf("%d#%d", in.UpdateID, n)
}

// Translate maps an update to conversation events. Updates the bot ignores
// (edited messages, service messages) return nil without an error.
func Translate(update *tgmodels.Update) (*Inbound, error) {
	switch {
	case update.CallbackQuery != nil:
		return translateCallback(update.ID, update.CallbackQuery)
	case update.Message != nil:
		return translateMessage(update.ID, update.Message)
	}
	return nil, nil
}

func translateCallback(updateID int64, cb *tgmodels.CallbackQuery) (*Inbound, error) {
	in := &Inbound{UpdateID: updateID, UserID: cb.From.ID, ChatID: cb.From.ID, CallbackID: cb.ID}
	switch {
	case cb.Message.Message != nil:
		in.ChatID = cb.Message.Message.Chat.ID
	case cb.Message.InaccessibleMessage != nil:
		in.ChatID = cb.Message.InaccessibleMessage.Chat.ID
	}
	user := cb.From.ID
	data := strings.TrimSpace(cb.Data)

	switch {
	case data == CallbackChangeCategory, strings.HasPrefix(data, CallbackChangeCategory+"|"), data == CallbackBackToCategories:
		in.add(models.NewSignalEvent(user, models.EventChangeCategoryRequested))
	case data == CallbackEditDescription, strings.HasPrefix(data, CallbackEditDescription+"|"):
		in.add(models.NewSignalEvent(user, models.EventDescriptionEditRequested))
	case data == CallbackSubmit:
		in.add(models.NewSignalEvent(user, models.EventSubmitRequested))
	case data == CallbackMediaPhoto:
		in.Notice = NoticePhotoHint
	case data == CallbackMediaAudio:
		in.Notice = NoticeAudioHint
	case strings.HasPrefix(data, CallbackSubcategoryPref):
		idx, err := parseIndex(strings.TrimPrefix(data, CallbackSubcategoryPref))
		if err != nil {
			return nil, err
		}
		in.add(models.NewSubcategoryIndexEvent(user, idx))
	case strings.HasPrefix(data, CallbackCategoryPrefix):
		idx, err := parseIndex(strings.TrimPrefix(data, CallbackCategoryPrefix))
		if err != nil {
			return nil, err
		}
		in.add(models.NewCategoryIndexEvent(user, idx))
	default:
		return nil, contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn, "unknown callback data", data)
	}
	return in, nil
}

func translateMessage(updateID int64, msg *tgmodels.Message) (*Inbound, error) {
	if msg.From == nil || msg.From.IsBot {
		return nil, nil
	}
	user := msg.From.ID
	in := &Inbound{UpdateID: updateID, UserID: user, ChatID: msg.Chat.ID}

	switch {
	case msg.Location != nil:
		in.add(models.NewLocationEvent(user, msg.Location.Latitude, msg.Location.Longitude))
	case msg.WebAppData != nil:
		loc, ok := parseWebAppLocation(msg.WebAppData.Data)
		if !ok {
			in.Notice = NoticeBadLink
			return in, nil
		}
		in.add(models.NewLocationEvent(user, loc.Latitude, loc.Longitude))
	case len(msg.Photo) > 0:
		photo := largestPhoto(msg.Photo)
		in.Media = &MediaDownload{Kind: models.MediaPhoto, FileID: photo.FileID, FileUniqueID: photo.FileUniqueID, MimeType: "image/jpeg"}
	case msg.Voice != nil:
		in.Media = &MediaDownload{Kind: models.MediaAudio, FileID: msg.Voice.FileID, FileUniqueID: msg.Voice.FileUniqueID, MimeType: msg.Voice.MimeType}
	case msg.Audio != nil:
		in.Media = &MediaDownload{Kind: models.MediaAudio, FileID: msg.Audio.FileID, FileUniqueID: msg.Audio.FileUniqueID, MimeType: msg.Audio.MimeType}
	case strings.HasPrefix(msg.Text, "/"):
		translateCommand(in, msg.Text)
	case strings.TrimSpace(msg.Text) != "":
		in.add(models.NewDescriptionEvent(user, msg.Text))
	default:
		return nil, nil
	}
	return in, nil
}

// translateCommand handles /start [loc_<lat>_<lng>], /clear, /help and
// /location <lat> <lng>
func translateCommand(in *Inbound, text string) {
	fields := strings.Fields(text)
	command := strings.ToLower(fields[0])
	// Commands sent in groups arrive as /start@botname
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}
	args := fields[1:]

	switch command {
	case "/start":
		in.add(models.NewSignalEvent(in.UserID, models.EventClearRequested))
		if len(args) == 1 && strings.HasPrefix(args[0], "loc_") {
			parts := strings.Split(strings.TrimPrefix(args[0], "loc_"), "_")
			if len(parts) != 2 {
				in.Notice = NoticeBadLink
				return
			}
			if loc, ok := parseCoordinates(parts[0], parts[1]); ok {
				in.add(models.NewLocationEvent(in.UserID, loc.Latitude, loc.Longitude))
				return
			}
			in.Notice = NoticeBadLink
		}
	case "/clear":
		in.Notice = NoticeCleared
		in.add(models.NewSignalEvent(in.UserID, models.EventClearRequested))
	case "/help":
		in.Notice = NoticeHelp
	case "/location":
		if len(args) == 2 {
			if loc, ok := parseCoordinates(args[0], args[1]); ok {
				in.add(models.NewLocationEvent(in.UserID, loc.Latitude, loc.Longitude))
				return
			}
		}
		in.Notice = NoticeBadLink
	default:
		in.Notice = NoticeBadCommand
	}
}

func (in *Inbound) add(event *models.ReportEvent) {
	n := len(in.Events)
	in.Events = append(in.Events, event.From(models.SourceChat).WithEventID(in.EventID(n)))
}

// parseWebAppLocation reads "location:<lat>,<lng>" sent by the map page
func parseWebAppLocation(data string) (models.Location, bool) {
	if !strings.HasPrefix(data, "location:") {
		return models.Location{}, false
	}
	parts := strings.Split(strings.TrimPrefix(data, "location:"), ",")
	if len(parts) != 2 {
		return models.Location{}, false
	}
	return parseCoordinates(parts[0], parts[1])
}

func parseCoordinates(lat, lng string) (models.Location, bool) {
	latitude, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return models.Location{}, false
	}
	longitude, err := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if err != nil {
		return models.Location{}, false
	}
	loc := models.Location{Latitude: latitude, Longitude: longitude}
	return loc, loc.IsValid()
}

func parseIndex(s string) (int, error) {
	idx, err := strconv.Atoi(s)
	if err != nil || idx < 0 {
		return 0, contextutils.NewAppError(contextutils.ErrorCodeInvalidFormat, contextutils.SeverityWarn, "invalid selection index", s)
	}
	return idx, nil
}

func largestPhoto(sizes []tgmodels.PhotoSize) tgmodels.PhotoSize {
	best := sizes[0]
	for _, p := range sizes[1:] {
		if p.Width*p.Height > best.Width*best.Height {
			best = p
		}
	}
	return best
}
