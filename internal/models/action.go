package models

// ActionType tags an outbound render intent
type ActionType string

// Outbound action types
const (
	ActionPromptForLocation        ActionType = "prompt_for_location"
	ActionPromptForMedia           ActionType = "prompt_for_media"
	ActionShowCategoryList         ActionType = "show_category_list"
	ActionShowSubcategoryList      ActionType = "show_subcategory_list"
	ActionShowReviewScreen         ActionType = "show_review_screen"
	ActionPromptForDescriptionEdit ActionType = "prompt_for_description_edit"
	ActionConfirmed                ActionType = "confirmed"
	ActionRejected                 ActionType = "rejected"
)

// ConversationAction tells an adapter what to show next. Adapters choose the
// rendering but must not change the meaning.
type ConversationAction struct {
	Type ActionType `json:"action_type"`

	Categories    []string     `json:"categories,omitempty"`
	Category      string       `json:"category,omitempty"`
	Subcategories []string     `json:"subcategories,omitempty"`
	Draft         *ReportDraft `json:"draft,omitempty"`
	Description   string       `json:"description,omitempty"`
	ReportID      string       `json:"report_id,omitempty"`
	Reason        string       `json:"reason,omitempty"`

	// Retry is the prompt for the current stage, attached to Rejected actions
	Retry *ConversationAction `json:"retry,omitempty"`
}

func PromptForLocation() *ConversationAction {
	return &ConversationAction{Type: ActionPromptForLocation}
}

func PromptForMedia() *ConversationAction {
	return &ConversationAction{Type: ActionPromptForMedia}
}

func ShowCategoryList(categories []string) *ConversationAction {
	return &ConversationAction{Type: ActionShowCategoryList, Categories: categories}
}

func ShowSubcategoryList(category string, subcategories []string) *ConversationAction {
	return &ConversationAction{Type: ActionShowSubcategoryList, Category: category, Subcategories: subcategories}
}

// ShowReviewScreen carries a snapshot of the draft, never the live value
func ShowReviewScreen(draft *ReportDraft) *ConversationAction {
	return &ConversationAction{Type: ActionShowReviewScreen, Draft: draft.Clone()}
}

func PromptForDescriptionEdit(current string) *ConversationAction {
	return &ConversationAction{Type: ActionPromptForDescriptionEdit, Description: current}
}

func Confirmed(reportID string) *ConversationAction {
	return &ConversationAction{Type: ActionConfirmed, ReportID: reportID}
}

func Rejected(reason string, retry *ConversationAction) *ConversationAction {
	return &ConversationAction{Type: ActionRejected, Reason: reason, Retry: retry}
}
