package handlers

import (
	"time"

	"helpcy/internal/models"
)

// ActionResponse is the outbound action contract shared by every web endpoint
type ActionResponse struct {
	ActionType models.ActionType `json:"action_type"`
	Data       interface{}       `json:"data,omitempty"`
}

// DraftView is the JSON form of a draft
type DraftView struct {
	DraftID           string           `json:"draft_id"`
	UserID            int64            `json:"user_id"`
	Stage             models.Stage     `json:"stage"`
	Location          *models.Location `json:"location,omitempty"`
	Category          string           `json:"category,omitempty"`
	Subcategory       string           `json:"subcategory,omitempty"`
	PendingCategory   string           `json:"pending_category,omitempty"`
	Description       string           `json:"description,omitempty"`
	DescriptionSource string           `json:"description_source,omitempty"`
	MediaKind         string           `json:"media_kind,omitempty"`
	MediaRef          string           `json:"media_ref,omitempty"`
	Revision          int64            `json:"revision"`
	UpdatedAt         *string          `json:"updated_at,omitempty"`
}

// DraftResponse is returned by GET /api/drafts/:user_id
type DraftResponse struct {
	Draft  *DraftView      `json:"draft"`
	Action *ActionResponse `json:"action"`
}

// NewActionResponse converts an action to its wire form
func NewActionResponse(action *models.ConversationAction) *ActionResponse {
	if action == nil {
		return nil
	}
	resp := &ActionResponse{ActionType: action.Type}

	switch action.Type {
	case models.ActionShowCategoryList:
		resp.Data = map[string]interface{}{"categories": action.Categories}
	case models.ActionShowSubcategoryList:
		resp.Data = map[string]interface{}{"category": action.Category, "subcategories": action.Subcategories}
	case models.ActionShowReviewScreen:
		resp.Data = map[string]interface{}{"draft": convertDraft(action.Draft)}
	case models.ActionPromptForDescriptionEdit:
		resp.Data = map[string]interface{}{"description": action.Description}
	case models.ActionConfirmed:
		resp.Data = map[string]interface{}{"report_id": action.ReportID}
	case models.ActionRejected:
		data := map[string]interface{}{"reason": action.Reason}
		if action.Retry != nil {
			data["retry"] = NewActionResponse(action.Retry)
		}
		resp.Data = data
	}
	return resp
}

func convertDraft(d *models.ReportDraft) *DraftView {
	if d == nil {
		return nil
	}
	return &DraftView{
		DraftID:           d.DraftID,
		UserID:            d.UserID,
		Stage:             d.Stage,
		Location:          d.Location,
		Category:          d.Category,
		Subcategory:       d.Subcategory,
		PendingCategory:   d.PendingCategory,
		Description:       d.Description,
		DescriptionSource: string(d.DescriptionSource),
		MediaKind:         string(d.MediaKind),
		MediaRef:          d.MediaRef,
		Revision:          d.Revision,
		UpdatedAt:         formatTimePtr(d.UpdatedAt),
	}
}

// formatTimePtr formats a time.Time into an RFC3339 string pointer
func formatTimePtr(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.In(time.UTC).Format(time.RFC3339)
	return &s
}
