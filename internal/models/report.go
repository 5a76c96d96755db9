// Package models defines the data structures shared by the conversation core and its adapters.
package models

import "time"

// Stage is a step in the report conversation lifecycle
type Stage string

// Conversation stages, in forward order
const (
	StageAwaitingLocation    Stage = "awaiting_location"
	StageAwaitingMedia       Stage = "awaiting_media"
	StageClassifying         Stage = "classifying"
	StageReviewing           Stage = "reviewing"
	StageEditingDescription  Stage = "editing_description"
	StageChoosingCategory    Stage = "choosing_category"
	StageChoosingSubcategory Stage = "choosing_subcategory"
	StageSubmitted           Stage = "submitted"
)

// AllStages lists every stage in lifecycle order.
var AllStages = []Stage{
	StageAwaitingLocation,
	StageAwaitingMedia,
	StageClassifying,
	StageReviewing,
	StageEditingDescription,
	StageChoosingCategory,
	StageChoosingSubcategory,
	StageSubmitted,
}

// IsValid reports whether s is a known stage
func (s Stage) IsValid() bool {
	for _, known := range AllStages {
		if s == known {
			return true
		}
	}
	return false
}

// MediaKind is the kind of media attached to a report
type MediaKind string

const (
	// MediaPhoto is a photo of the problem
	MediaPhoto MediaKind = "photo"
	// MediaAudio is a voice note describing the problem
	MediaAudio MediaKind = "audio"
)

// IsValid reports whether k is a known media kind
func (k MediaKind) IsValid() bool {
	return k == MediaPhoto || k == MediaAudio
}

// DescriptionSource records where the current description came from
type DescriptionSource string

const (
	DescriptionFromAI       DescriptionSource = "ai"
	DescriptionFromFallback DescriptionSource = "fallback"
	DescriptionFromUser     DescriptionSource = "user"
)

// Location is a WGS84 point
type Location struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// IsValid reports whether the coordinates are within WGS84 bounds
func (l Location) IsValid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180
}

// ReportDraft is the in-progress report of one user
type ReportDraft struct {
	UserID            int64             `json:"user_id"`
	DraftID           string            `json:"draft_id"`
	Stage             Stage             `json:"stage"`
	Location          *Location         `json:"location,omitempty"`
	Category          string            `json:"category,omitempty"`
	Subcategory       string            `json:"subcategory,omitempty"`
	PendingCategory   string            `json:"pending_category,omitempty"`
	Description       string            `json:"description,omitempty"`
	DescriptionSource DescriptionSource `json:"description_source,omitempty"`
	MediaKind         MediaKind         `json:"media_kind,omitempty"`
	MediaRef          string            `json:"media_ref,omitempty"`
	Revision          int64             `json:"revision"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Clone returns a deep copy so snapshots handed to callers never alias store state
func (d *ReportDraft) Clone() *ReportDraft {
	if d == nil {
		return nil
	}
	cp := *d
	if d.Location != nil {
		loc := *d.Location
		cp.Location = &loc
	}
	return &cp
}

// IsComplete reports whether the draft has everything a submitted report needs
func (d *ReportDraft) IsComplete() bool {
	return d.Location != nil && d.Category != "" && d.Subcategory != "" && d.Description != ""
}

// DraftUpdate is a partial update; nil fields are left untouched by a merge
type DraftUpdate struct {
	Stage             *Stage             `json:"stage,omitempty"`
	Location          *Location          `json:"location,omitempty"`
	Category          *string            `json:"category,omitempty"`
	Subcategory       *string            `json:"subcategory,omitempty"`
	PendingCategory   *string            `json:"pending_category,omitempty"`
	Description       *string            `json:"description,omitempty"`
	DescriptionSource *DescriptionSource `json:"description_source,omitempty"`
	MediaKind         *MediaKind         `json:"media_kind,omitempty"`
	MediaRef          *string            `json:"media_ref,omitempty"`

	// ExpectRevision turns the merge into a compare-and-swap against this revision
	ExpectRevision *int64 `json:"expect_revision,omitempty"`
	// ExpectDraftID pins the merge to one draft; revisions restart after a clear
	ExpectDraftID *string `json:"expect_draft_id,omitempty"`
}

// NewDraftUpdate starts an empty update
func NewDraftUpdate() *DraftUpdate {
	return &DraftUpdate{}
}

// WithStage sets the stage
func (u *DraftUpdate) WithStage(s Stage) *DraftUpdate {
	u.Stage = &s
	return u
}

// WithLocation sets the location
func (u *DraftUpdate) WithLocation(l Location) *DraftUpdate {
	u.Location = &l
	return u
}

// WithPair sets category and subcategory together
func (u *DraftUpdate) WithPair(category, subcategory string) *DraftUpdate {
	u.Category = &category
	u.Subcategory = &subcategory
	return u
}

// WithPendingCategory sets or, with "", clears the category picked in the category sub-flow
func (u *DraftUpdate) WithPendingCategory(category string) *DraftUpdate {
	u.PendingCategory = &category
	return u
}

// WithDescription sets the description and its origin
func (u *DraftUpdate) WithDescription(text string, source DescriptionSource) *DraftUpdate {
	u.Description = &text
	u.DescriptionSource = &source
	return u
}

// WithMedia sets the accepted media
func (u *DraftUpdate) WithMedia(kind MediaKind, ref string) *DraftUpdate {
	u.MediaKind = &kind
	u.MediaRef = &ref
	return u
}

// ExpectingRevision makes the update conditional on the current revision
func (u *DraftUpdate) ExpectingRevision(revision int64) *DraftUpdate {
	u.ExpectRevision = &revision
	return u
}

// ExpectingDraft makes the update conditional on d being unchanged. A nil d
// means no draft may exist yet.
func (u *DraftUpdate) ExpectingDraft(d *ReportDraft) *DraftUpdate {
	if d == nil {
		u.ExpectDraftID = nil
		return u.ExpectingRevision(0)
	}
	id := d.DraftID
	u.ExpectDraftID = &id
	return u.ExpectingRevision(d.Revision)
}

// SubmittedReport is the immutable record written when a draft is submitted
type SubmittedReport struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"user_id"`
	Location    Location  `json:"location"`
	Category    string    `json:"category"`
	Subcategory string    `json:"subcategory"`
	Description string    `json:"description"`
	MediaKind   MediaKind `json:"media_kind,omitempty"`
	MediaRef    string    `json:"media_ref,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// NewSubmittedReport freezes a complete draft; the draft id becomes the report id.
func NewSubmittedReport(d *ReportDraft, at time.Time) *SubmittedReport {
	r := &SubmittedReport{
		ID:          d.DraftID,
		UserID:      d.UserID,
		Category:    d.Category,
		Subcategory: d.Subcategory,
		Description: d.Description,
		MediaKind:   d.MediaKind,
		MediaRef:    d.MediaRef,
		SubmittedAt: at.UTC(),
	}
	if d.Location != nil {
		r.Location = *d.Location
	}
	return r
}
