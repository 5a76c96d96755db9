package telegram

import (
	"testing"

	"helpcy/internal/models"

	tgmodels "github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chatUser int64 = 5150

func textUpdate(id int64, text string) *tgmodels.Update {
	return &tgmodels.Update{ID: id, Message: &tgmodels.Message{
		ID:   int(id),
		From: &tgmodels.User{ID: chatUser, FirstName: "Ana"},
		Chat: tgmodels.Chat{ID: chatUser, Type: tgmodels.ChatTypePrivate},
		Text: text,
	}}
}

func callbackUpdate(id int64, data string) *tgmodels.Update {
	return &tgmodels.Update{ID: id, CallbackQuery: &tgmodels.CallbackQuery{
		ID:   "cb-1",
		From: tgmodels.User{ID: chatUser},
		Message: tgmodels.MaybeInaccessibleMessage{
			Type:    tgmodels.MaybeInaccessibleMessageTypeMessage,
			Message: &tgmodels.Message{Chat: tgmodels.Chat{ID: chatUser}},
		},
		Data: data,
	}}
}

func TestTranslate_Callbacks(t *testing.T) {
	tests := []struct {
		data      string
		eventType models.EventType
		index     *int
		notice    Notice
	}{
		{data: "chcat", eventType: models.EventChangeCategoryRequested},
		{data: "chcat|35.1|33.3", eventType: models.EventChangeCategoryRequested},
		{data: "back_to_categories", eventType: models.EventChangeCategoryRequested},
		{data: "eddesc", eventType: models.EventDescriptionEditRequested},
		{data: "submit_report", eventType: models.EventSubmitRequested},
		{data: "cat_2", eventType: models.EventCategoryChosen, index: intRef(2)},
		{data: "subcat_11", eventType: models.EventSubcategoryChosen, index: intRef(11)},
		{data: "media_photo", notice: NoticePhotoHint},
		{data: "media_audio", notice: NoticeAudioHint},
	}

	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			in, err := Translate(callbackUpdate(77, tt.data))
			require.NoError(t, err)
			require.NotNil(t, in)
			assert.Equal(t, "cb-1", in.CallbackID)
			assert.Equal(t, chatUser, in.ChatID)
			assert.Equal(t, tt.notice, in.Notice)

			if tt.eventType == "" {
				assert.Empty(t, in.Events)
				return
			}
			require.Len(t, in.Events, 1)
			ev := in.Events[0]
			assert.Equal(t, tt.eventType, ev.Type)
			assert.Equal(t, models.SourceChat, ev.Source)
			assert.Equal(t, "77", ev.EventID)
			require.NoError(t, ev.Validate())
			if tt.index != nil {
				require.NotNil(t, ev.Selection)
				assert.Equal(t, *tt.index, *ev.Selection.Index)
			}
		})
	}
}

func TestTranslate_BadCallbacks(t *testing.T) {
	for _, data := range []string{"cat_x", "subcat_-1", "get_started", ""} {
		_, err := Translate(callbackUpdate(1, data))
		assert.Error(t, err, data)
	}
}

func TestTranslate_Commands(t *testing.T) {
	t.Run("start clears", func(t *testing.T) {
		in, err := Translate(textUpdate(10, "/start"))
		require.NoError(t, err)
		require.Len(t, in.Events, 1)
		assert.Equal(t, models.EventClearRequested, in.Events[0].Type)
		assert.Equal(t, NoticeNone, in.Notice)
	})

	t.Run("start with location deep link", func(t *testing.T) {
		in, err := Translate(textUpdate(11, "/start loc_34.684_33.037"))
		require.NoError(t, err)
		require.Len(t, in.Events, 2)
		assert.Equal(t, models.EventClearRequested, in.Events[0].Type)
		assert.Equal(t, models.EventLocationReceived, in.Events[1].Type)
		assert.InDelta(t, 34.684, in.Events[1].Location.Latitude, 1e-9)
		assert.InDelta(t, 33.037, in.Events[1].Location.Longitude, 1e-9)
		assert.Equal(t, "11", in.Events[0].EventID)
		assert.Equal(t, "11#1", in.Events[1].EventID)
	})

	t.Run("start with broken deep link still clears", func(t *testing.T) {
		in, err := Translate(textUpdate(12, "/start loc_abc"))
		require.NoError(t, err)
		require.Len(t, in.Events, 1)
		assert.Equal(t, NoticeBadLink, in.Notice)
	})

	t.Run("clear", func(t *testing.T) {
		in, err := Translate(textUpdate(13, "/clear@helpcy_bot"))
		require.NoError(t, err)
		require.Len(t, in.Events, 1)
		assert.Equal(t, models.EventClearRequested, in.Events[0].Type)
		assert.Equal(t, NoticeCleared, in.Notice)
	})

	t.Run("help", func(t *testing.T) {
		in, err := Translate(textUpdate(14, "/help"))
		require.NoError(t, err)
		assert.Empty(t, in.Events)
		assert.Equal(t, NoticeHelp, in.Notice)
	})

	t.Run("location by coordinates", func(t *testing.T) {
		in, err := Translate(textUpdate(15, "/location 35.1 33.4"))
		require.NoError(t, err)
		require.Len(t, in.Events, 1)
		assert.Equal(t, models.EventLocationReceived, in.Events[0].Type)
	})

	t.Run("location out of range", func(t *testing.T) {
		in, err := Translate(textUpdate(16, "/location 135.1 33.4"))
		require.NoError(t, err)
		assert.Empty(t, in.Events)
		assert.Equal(t, NoticeBadLink, in.Notice)
	})

	t.Run("unknown", func(t *testing.T) {
		in, err := Translate(textUpdate(17, "/settings"))
		require.NoError(t, err)
		assert.Equal(t, NoticeBadCommand, in.Notice)
	})
}

func TestTranslate_Messages(t *testing.T) {
	t.Run("plain text is a description edit", func(t *testing.T) {
		in, err := Translate(textUpdate(20, "Deep pothole by the bus stop"))
		require.NoError(t, err)
		require.Len(t, in.Events, 1)
		assert.Equal(t, models.EventDescriptionEdited, in.Events[0].Type)
		assert.Equal(t, "Deep pothole by the bus stop", in.Events[0].Text)
	})

	t.Run("native location", func(t *testing.T) {
		u := textUpdate(21, "")
		u.Message.Location = &tgmodels.Location{Latitude: 35.17, Longitude: 33.36}
		in, err := Translate(u)
		require.NoError(t, err)
		require.Len(t, in.Events, 1)
		assert.Equal(t, models.EventLocationReceived, in.Events[0].Type)
	})

	t.Run("map page location", func(t *testing.T) {
		u := textUpdate(22, "")
		u.Message.WebAppData = &tgmodels.WebAppData{Data: "location:35.17,33.36"}
		in, err := Translate(u)
		require.NoError(t, err)
		require.Len(t, in.Events, 1)
		assert.InDelta(t, 33.36, in.Events[0].Location.Longitude, 1e-9)
	})

	t.Run("unreadable web app data", func(t *testing.T) {
		u := textUpdate(23, "")
		u.Message.WebAppData = &tgmodels.WebAppData{Data: "photo:abc"}
		in, err := Translate(u)
		require.NoError(t, err)
		assert.Empty(t, in.Events)
		assert.Equal(t, NoticeBadLink, in.Notice)
	})

	t.Run("photo picks the largest size", func(t *testing.T) {
		u := textUpdate(24, "")
		u.Message.Photo = []tgmodels.PhotoSize{
			{FileID: "small", FileUniqueID: "u-small", Width: 90, Height: 60},
			{FileID: "large", FileUniqueID: "u-large", Width: 1280, Height: 960},
			{FileID: "medium", FileUniqueID: "u-medium", Width: 320, Height: 240},
		}
		in, err := Translate(u)
		require.NoError(t, err)
		require.NotNil(t, in.Media)
		assert.Equal(t, "large", in.Media.FileID)
		assert.Equal(t, "u-large", in.Media.FileUniqueID)
		assert.Equal(t, models.MediaPhoto, in.Media.Kind)
		assert.Empty(t, in.Events)
	})

	t.Run("voice note", func(t *testing.T) {
		u := textUpdate(25, "")
		u.Message.Voice = &tgmodels.Voice{FileID: "v1", FileUniqueID: "uv1", MimeType: "audio/ogg"}
		in, err := Translate(u)
		require.NoError(t, err)
		require.NotNil(t, in.Media)
		assert.Equal(t, models.MediaAudio, in.Media.Kind)
		assert.Equal(t, "audio/ogg", in.Media.MimeType)
		assert.Equal(t, "uv1", in.Media.FileUniqueID)
	})

	t.Run("callback on an inaccessible message", func(t *testing.T) {
		u := callbackUpdate(28, CallbackSubmit)
		u.CallbackQuery.From = tgmodels.User{ID: 7}
		u.CallbackQuery.Message = tgmodels.MaybeInaccessibleMessage{
			Type:                tgmodels.MaybeInaccessibleMessageTypeInaccessibleMessage,
			InaccessibleMessage: &tgmodels.InaccessibleMessage{Chat: tgmodels.Chat{ID: -100}},
		}
		in, err := Translate(u)
		require.NoError(t, err)
		assert.Equal(t, int64(7), in.UserID)
		assert.Equal(t, int64(-100), in.ChatID)
	})

	t.Run("ignored updates", func(t *testing.T) {
		in, err := Translate(&tgmodels.Update{ID: 26, EditedMessage: &tgmodels.Message{Text: "x"}})
		require.NoError(t, err)
		assert.Nil(t, in)

		bot := textUpdate(27, "hello")
		bot.Message.From.IsBot = true
		in, err = Translate(bot)
		require.NoError(t, err)
		assert.Nil(t, in)
	})
}

func intRef(i int) *int { return &i }
