package models

import (
	"testing"

	contextutils "helpcy/internal/utils"

	"github.com/stretchr/testify/assert"
)

func TestReportEvent_Validate(t *testing.T) {
	index := 0
	tests := []struct {
		name    string
		event   *ReportEvent
		wantErr contextutils.ErrorCode
	}{
		{"location", NewLocationEvent(1, 35.17, 33.36), ""},
		{"missing user", NewLocationEvent(0, 35.17, 33.36), contextutils.ErrorCodeMissingRequired},
		{"unknown type", &ReportEvent{UserID: 1, Type: "teleport"}, contextutils.ErrorCodeInvalidInput},
		{"location without payload", &ReportEvent{UserID: 1, Type: EventLocationReceived}, contextutils.ErrorCodeInvalidInput},
		{"latitude out of range", NewLocationEvent(1, 91, 33.36), contextutils.ErrorCodeInvalidInput},
		{"longitude out of range", NewLocationEvent(1, 35.17, -181), contextutils.ErrorCodeInvalidInput},
		{"photo", NewMediaEvent(1, MediaPhoto, "photo/1/a.jpg"), ""},
		{"media without payload", &ReportEvent{UserID: 1, Type: EventMediaReceived}, contextutils.ErrorCodeInvalidInput},
		{"media with unknown kind", NewMediaEvent(1, "video", "video/1/a.mp4"), contextutils.ErrorCodeInvalidInput},
		{"media without ref", NewMediaEvent(1, MediaAudio, ""), contextutils.ErrorCodeInvalidInput},
		{"audio with transcript only", &ReportEvent{UserID: 1, Type: EventMediaReceived,
			Media: &MediaPayload{Kind: MediaAudio, Transcript: "water on the road"}}, ""},
		{"category by name", NewCategoryEvent(1, "Damage"), ""},
		{"subcategory by index", NewSubcategoryIndexEvent(1, 0), ""},
		{"empty selection", &ReportEvent{UserID: 1, Type: EventCategoryChosen, Selection: &Selection{}}, contextutils.ErrorCodeInvalidInput},
		{"missing selection", &ReportEvent{UserID: 1, Type: EventSubcategoryChosen}, contextutils.ErrorCodeInvalidInput},
		{"zero index is a selection", &ReportEvent{UserID: 1, Type: EventCategoryChosen, Selection: &Selection{Index: &index}}, ""},
		{"empty description passes payload check", NewDescriptionEvent(1, ""), ""},
		{"signal", NewSignalEvent(1, EventSubmitRequested), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.Equal(t, tt.wantErr, contextutils.GetErrorCode(err))
		})
	}
}

func TestReportEvent_Builders(t *testing.T) {
	e := NewCategoryIndexEvent(3, 2).From(SourceWeb).WithEventID("42")

	assert.Equal(t, EventCategoryChosen, e.Type)
	assert.Equal(t, int64(3), e.UserID)
	assert.Equal(t, SourceWeb, e.Source)
	assert.Equal(t, "42", e.EventID)
	if assert.NotNil(t, e.Selection.Index) {
		assert.Equal(t, 2, *e.Selection.Index)
	}
	assert.Empty(t, e.Selection.Name)
}
