package services

import (
	"fmt"
	"strings"
	"time"

	"helpcy/internal/config"
	"helpcy/internal/models"
	contextutils "helpcy/internal/utils"
)

// User-facing rejection reasons
const (
	ReasonNotAvailable       = "That step is not available right now."
	ReasonLocationAlreadySet = "A location is already set for this report. Send /start to begin a new one."
	ReasonStillClassifying   = "Your report is still being analysed, please wait a moment."
	ReasonUnknownCategory    = "Please choose a category from the list."
	ReasonUnknownSubcategory = "Please choose a subcategory from the list."
	ReasonEmptyDescription   = "The description cannot be empty."
	ReasonIncompleteReport   = "The report is not complete yet."
	ReasonDraftChanged       = "Your report changed while it was being analysed."
)

// Decision is the outcome of applying one event to a draft. At most one of
// Clear, Submit and Update is set; Classify accompanies an Update that moves
// the draft to Classifying.
type Decision struct {
	Update   *models.DraftUpdate
	Clear    bool
	Submit   bool
	Classify *ClassificationInput

	// Action is the prompt for the projected draft. It is nil when the
	// classification result decides what comes next.
	Action *models.ConversationAction
}

// Decide applies event to draft using the default stale-classification window.
// A nil draft means the user has no active conversation.
func Decide(draft *models.ReportDraft, event *models.ReportEvent, catalog CatalogServiceInterface) (*Decision, error) {
	return DecideAt(draft, event, catalog, time.Now().UTC(), 2*config.ClassificationTimeout)
}

// DecideAt is the transition function. It never touches a store: the caller
// applies the returned update. staleAfter is how long a draft may stay in
// Classifying before a new MediaReceived is accepted.
func DecideAt(draft *models.ReportDraft, event *models.ReportEvent, catalog CatalogServiceInterface, now time.Time, staleAfter time.Duration) (*Decision, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if event.Type == models.EventClearRequested {
		return &Decision{Clear: true, Action: models.PromptForLocation()}, nil
	}
	if draft != nil && draft.Stage == models.StageSubmitted {
		draft = nil
	}

	stage := models.StageAwaitingLocation
	if draft != nil {
		stage = draft.Stage
	}

	switch stage {
	case models.StageAwaitingLocation:
		if event.Type == models.EventLocationReceived {
			return project(draft, event.UserID, models.NewDraftUpdate().
				WithLocation(*event.Location).
				WithStage(models.StageAwaitingMedia), catalog, now)
		}

	case models.StageAwaitingMedia:
		switch event.Type {
		case models.EventLocationReceived:
			if draft.Location != nil && *draft.Location == *event.Location {
				return project(draft, event.UserID, models.NewDraftUpdate().WithStage(models.StageAwaitingMedia), catalog, now)
			}
			return nil, invalidTransition(stage, event.Type, ReasonLocationAlreadySet)
		case models.EventMediaReceived:
			return classifyDecision(draft, event), nil
		}

	case models.StageClassifying:
		if event.Type == models.EventMediaReceived && now.Sub(draft.UpdatedAt) > staleAfter {
			return classifyDecision(draft, event), nil
		}
		return nil, invalidTransition(stage, event.Type, ReasonStillClassifying)

	case models.StageReviewing:
		switch event.Type {
		case models.EventChangeCategoryRequested:
			return project(draft, event.UserID, models.NewDraftUpdate().
				WithStage(models.StageChoosingCategory).
				WithPendingCategory(""), catalog, now)
		case models.EventDescriptionEditRequested:
			return project(draft, event.UserID, models.NewDraftUpdate().WithStage(models.StageEditingDescription), catalog, now)
		case models.EventDescriptionEdited:
			return describe(draft, event, models.StageReviewing, catalog, now)
		case models.EventSubmitRequested:
			if !draft.IsComplete() {
				return nil, invalidTransition(stage, event.Type, ReasonIncompleteReport)
			}
			return &Decision{Submit: true}, nil
		}

	case models.StageEditingDescription:
		if event.Type == models.EventDescriptionEdited {
			return describe(draft, event, models.StageReviewing, catalog, now)
		}

	case models.StageChoosingCategory, models.StageChoosingSubcategory:
		switch event.Type {
		case models.EventDescriptionEdited:
			return describe(draft, event, stage, catalog, now)
		case models.EventCategoryChosen:
			category, ok := resolveSelection(event.Selection, catalog.AllCategories())
			if !ok {
				return nil, invalidTransition(stage, event.Type, ReasonUnknownCategory)
			}
			return project(draft, event.UserID, models.NewDraftUpdate().
				WithPendingCategory(category).
				WithStage(models.StageChoosingSubcategory), catalog, now)
		case models.EventChangeCategoryRequested:
			return project(draft, event.UserID, models.NewDraftUpdate().
				WithStage(models.StageChoosingCategory).
				WithPendingCategory(""), catalog, now)
		case models.EventSubcategoryChosen:
			if stage != models.StageChoosingSubcategory || draft.PendingCategory == "" {
				break
			}
			subcategory, ok := resolveSelection(event.Selection, catalog.SubcategoriesOf(draft.PendingCategory))
			if !ok {
				return nil, invalidTransition(stage, event.Type, ReasonUnknownSubcategory)
			}
			return project(draft, event.UserID, models.NewDraftUpdate().
				WithPair(draft.PendingCategory, subcategory).
				WithPendingCategory("").
				WithStage(models.StageReviewing), catalog, now)
		}
	}

	return nil, invalidTransition(stage, event.Type, ReasonNotAvailable)
}

// StagePrompt is the action that re-shows the current step of draft
func StagePrompt(draft *models.ReportDraft, catalog CatalogServiceInterface) *models.ConversationAction {
	if draft == nil {
		return models.PromptForLocation()
	}
	switch draft.Stage {
	case models.StageAwaitingMedia:
		return models.PromptForMedia()
	case models.StageClassifying:
		// nothing to prompt for until the result is merged
		return nil
	case models.StageReviewing:
		return models.ShowReviewScreen(draft)
	case models.StageEditingDescription:
		return models.PromptForDescriptionEdit(draft.Description)
	case models.StageChoosingCategory:
		return models.ShowCategoryList(catalog.AllCategories())
	case models.StageChoosingSubcategory:
		return models.ShowSubcategoryList(draft.PendingCategory, catalog.SubcategoriesOf(draft.PendingCategory))
	}
	return models.PromptForLocation()
}

// RejectedFor wraps err into a Rejected action carrying the prompt for draft
func RejectedFor(err error, draft *models.ReportDraft, catalog CatalogServiceInterface) *models.ConversationAction {
	reason := ReasonNotAvailable
	var appErr *contextutils.AppError
	if contextutils.AsError(err, &appErr) && appErr.Message != "" {
		reason = appErr.Message
	}
	return models.Rejected(reason, StagePrompt(draft, catalog))
}

func project(draft *models.ReportDraft, userID int64, update *models.DraftUpdate, catalog CatalogServiceInterface, now time.Time) (*Decision, error) {
	projected, _, err := mergeDraft(draft, userID, update, catalog, now)
	if err != nil {
		return nil, err
	}
	return &Decision{Update: update, Action: StagePrompt(projected, catalog)}, nil
}

func classifyDecision(draft *models.ReportDraft, event *models.ReportEvent) *Decision {
	return &Decision{
		Update: models.NewDraftUpdate().
			WithMedia(event.Media.Kind, event.Media.Ref).
			WithStage(models.StageClassifying),
		Classify: &ClassificationInput{
			UserID:     draft.UserID,
			Mode:       event.Media.Kind,
			MediaRef:   event.Media.Ref,
			Transcript: event.Media.Transcript,
		},
	}
}

func describe(draft *models.ReportDraft, event *models.ReportEvent, next models.Stage, catalog CatalogServiceInterface, now time.Time) (*Decision, error) {
	text := strings.TrimSpace(event.Text)
	if text == "" {
		return nil, invalidTransition(draft.Stage, event.Type, ReasonEmptyDescription)
	}
	return project(draft, event.UserID, models.NewDraftUpdate().
		WithDescription(text, models.DescriptionFromUser).
		WithStage(next), catalog, now)
}

// resolveSelection matches a selection by index or by name against options
func resolveSelection(sel *models.Selection, options []string) (string, bool) {
	if sel == nil {
		return "", false
	}
	if sel.Index != nil {
		i := *sel.Index
		if i < 0 || i >= len(options) {
			return "", false
		}
		return options[i], true
	}
	name := strings.TrimSpace(sel.Name)
	for _, o := range options {
		if o == name {
			return o, true
		}
	}
	return "", false
}

func invalidTransition(stage models.Stage, eventType models.EventType, reason string) error {
	return contextutils.NewAppError(contextutils.ErrorCodeInvalidTransition, contextutils.SeverityInfo,
		reason, fmt.Sprintf("%s on %s", eventType, stage))
}
