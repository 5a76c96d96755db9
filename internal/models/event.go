package models

import (
	"strings"

	contextutils "helpcy/internal/utils"
)

// EventType tags a normalized inbound event
type EventType string

// Inbound event types
const (
	EventLocationReceived         EventType = "location_received"
	EventMediaReceived            EventType = "media_received"
	EventCategoryChosen           EventType = "category_chosen"
	EventSubcategoryChosen        EventType = "subcategory_chosen"
	EventDescriptionEditRequested EventType = "description_edit_requested"
	EventDescriptionEdited        EventType = "description_edited"
	EventChangeCategoryRequested  EventType = "change_category_requested"
	EventSubmitRequested          EventType = "submit_requested"
	EventClearRequested           EventType = "clear_requested"
)

// IsValid reports whether t is a known event type
func (t EventType) IsValid() bool {
	switch t {
	case EventLocationReceived, EventMediaReceived, EventCategoryChosen, EventSubcategoryChosen,
		EventDescriptionEditRequested, EventDescriptionEdited, EventChangeCategoryRequested,
		EventSubmitRequested, EventClearRequested:
		return true
	}
	return false
}

// EventSource identifies the channel an event arrived on. It is recorded for
// logs and metrics only.
type EventSource string

const (
	SourceChat EventSource = "chat"
	SourceWeb  EventSource = "web"
	SourceCLI  EventSource = "cli"
)

// MediaPayload is the payload of MediaReceived
type MediaPayload struct {
	Kind MediaKind `json:"kind"`
	Ref  string    `json:"ref"`
	// Transcript may be supplied by an adapter that already transcribed a voice note
	Transcript string `json:"transcript,omitempty"`
}

// Selection is the payload of CategoryChosen and SubcategoryChosen: a name or a
// zero-based index into the list shown to the user.
type Selection struct {
	Name  string `json:"name,omitempty"`
	Index *int   `json:"index,omitempty"`
}

// ReportEvent is a normalized inbound event
type ReportEvent struct {
	UserID int64       `json:"user_id"`
	Type   EventType   `json:"event_type"`
	Source EventSource `json:"source,omitempty"`
	// EventID is the transport delivery id, used to drop redeliveries
	EventID string `json:"event_id,omitempty"`

	Location  *Location     `json:"location,omitempty"`
	Media     *MediaPayload `json:"media,omitempty"`
	Selection *Selection    `json:"selection,omitempty"`
	Text      string        `json:"text,omitempty"`
}

// Validate checks that the payload required by the event type is present
func (e *ReportEvent) Validate() error {
	if e.UserID == 0 {
		return contextutils.NewAppError(contextutils.ErrorCodeMissingRequired, contextutils.SeverityWarn, "user id is required", "")
	}
	if !e.Type.IsValid() {
		return contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn, "unknown event type", string(e.Type))
	}
	switch e.Type {
	case EventLocationReceived:
		if e.Location == nil || !e.Location.IsValid() {
			return contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn, "valid location is required", "")
		}
	case EventMediaReceived:
		if e.Media == nil || !e.Media.Kind.IsValid() {
			return contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn, "media kind is required", "")
		}
		if e.Media.Ref == "" && strings.TrimSpace(e.Media.Transcript) == "" {
			return contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn, "media reference or transcript is required", "")
		}
	case EventCategoryChosen, EventSubcategoryChosen:
		if e.Selection == nil || (e.Selection.Name == "" && e.Selection.Index == nil) {
			return contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn, "selection name or index is required", "")
		}
	}
	return nil
}

// NewLocationEvent builds a LocationReceived event
func NewLocationEvent(userID int64, latitude, longitude float64) *ReportEvent {
	return &ReportEvent{UserID: userID, Type: EventLocationReceived, Location: &Location{Latitude: latitude, Longitude: longitude}}
}

// NewMediaEvent builds a MediaReceived event
func NewMediaEvent(userID int64, kind MediaKind, ref string) *ReportEvent {
	return &ReportEvent{UserID: userID, Type: EventMediaReceived, Media: &MediaPayload{Kind: kind, Ref: ref}}
}

// NewCategoryEvent builds a CategoryChosen event by name
func NewCategoryEvent(userID int64, name string) *ReportEvent {
	return &ReportEvent{UserID: userID, Type: EventCategoryChosen, Selection: &Selection{Name: name}}
}

// NewCategoryIndexEvent builds a CategoryChosen event by index
func NewCategoryIndexEvent(userID int64, index int) *ReportEvent {
	return &ReportEvent{UserID: userID, Type: EventCategoryChosen, Selection: &Selection{Index: &index}}
}

// NewSubcategoryEvent builds a SubcategoryChosen event by name
func NewSubcategoryEvent(userID int64, name string) *ReportEvent {
	return &ReportEvent{UserID: userID, Type: EventSubcategoryChosen, Selection: &Selection{Name: name}}
}

// NewSubcategoryIndexEvent builds a SubcategoryChosen event by index
func NewSubcategoryIndexEvent(userID int64, index int) *ReportEvent {
	return &ReportEvent{UserID: userID, Type: EventSubcategoryChosen, Selection: &Selection{Index: &index}}
}

// NewDescriptionEvent builds a DescriptionEdited event
func NewDescriptionEvent(userID int64, text string) *ReportEvent {
	return &ReportEvent{UserID: userID, Type: EventDescriptionEdited, Text: text}
}

// NewSignalEvent builds a payload-less event (edit intent, change category, submit, clear)
func NewSignalEvent(userID int64, eventType EventType) *ReportEvent {
	return &ReportEvent{UserID: userID, Type: eventType}
}

// From sets the source tag and returns the event
func (e *ReportEvent) From(source EventSource) *ReportEvent {
	e.Source = source
	return e
}

// WithEventID sets the delivery id and returns the event
func (e *ReportEvent) WithEventID(id string) *ReportEvent {
	e.EventID = id
	return e
}
