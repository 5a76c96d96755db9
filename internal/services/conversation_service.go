package services

import (
	"context"
	"strconv"
	"time"

	"helpcy/internal/config"
	"helpcy/internal/models"
	"helpcy/internal/observability"
	contextutils "helpcy/internal/utils"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"
)

// Event outcomes, as recorded in metrics
const (
	eventApplied   = "applied"
	eventDuplicate = "duplicate"
	eventRejected  = "rejected"
	eventFailed    = "failed"
)

// ConversationServiceInterface is what channel adapters call
type ConversationServiceInterface interface {
	// Handle applies one event and returns the resulting draft (nil once
	// cleared) and the action to render.
	Handle(ctx context.Context, event *models.ReportEvent) (*models.ReportDraft, *models.ConversationAction, error)
	// Dispatch is Handle with benign failures turned into a Rejected action.
	Dispatch(ctx context.Context, event *models.ReportEvent) (*models.ConversationAction, error)
	// Current returns the user's draft (nil when absent) and its stage prompt.
	Current(ctx context.Context, userID int64) (*models.ReportDraft, *models.ConversationAction, error)
}

// handledEvent is what a delivered event produced, kept to answer redeliveries
type handledEvent struct {
	draftID  string
	revision int64
	action   *models.ConversationAction
}

// ConversationService drives the report conversation for every user. It holds
// no per-user state itself: drafts live in the DraftStore shared by all
// channels.
type ConversationService struct {
	store      DraftStore
	reports    ReportRepository
	classifier ClassifierInterface
	catalog    CatalogServiceInterface
	metrics    *observability.ConversationMetrics
	logger     *observability.Logger

	handled         *expirable.LRU[string, handledEvent]
	classifyTimeout time.Duration
	maxRetries      int
	now             func() time.Time
}

// NewConversationService wires the state machine to its collaborators
func NewConversationService(cfg *config.Config, store DraftStore, reports ReportRepository, classifier ClassifierInterface, catalog CatalogServiceInterface, metrics *observability.ConversationMetrics, logger *observability.Logger) *ConversationService {
	size := cfg.Store.DedupeSize
	if size <= 0 {
		size = config.DefaultDedupeSize
	}
	ttl := cfg.Store.DedupeTTL
	if ttl <= 0 {
		ttl = config.DefaultDedupeTTL
	}
	timeout := cfg.AI.Timeout
	if timeout <= 0 {
		timeout = config.ClassificationTimeout
	}
	retries := cfg.Store.MaxRetries
	if retries <= 0 {
		retries = config.DefaultStoreMaxRetries
	}

	return &ConversationService{
		store:           store,
		reports:         reports,
		classifier:      classifier,
		catalog:         catalog,
		metrics:         metrics,
		logger:          logger,
		handled:         expirable.NewLRU[string, handledEvent](size, nil, ttl),
		classifyTimeout: timeout,
		maxRetries:      retries,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Handle applies event to the user's draft
func (s *ConversationService) Handle(ctx context.Context, event *models.ReportEvent) (draft *models.ReportDraft, action *models.ConversationAction, err error) {
	ctx, span := observability.TraceConversationFunction(ctx, "Handle",
		observability.AttributeUserID(event.UserID),
		observability.AttributeEventType(string(event.Type)),
		observability.AttributeEventSource(string(event.Source)),
	)
	defer observability.FinishSpan(span, &err)
	ctx = contextutils.WithUserID(ctx, event.UserID)

	if err := event.Validate(); err != nil {
		s.observe(event, eventFailed)
		return nil, nil, err
	}

	if event.EventID != "" {
		if draft, action, ok, err := s.replay(ctx, event); err != nil || ok {
			if ok {
				span.SetAttributes(attribute.Bool("conversation.duplicate", true))
				s.observe(event, eventDuplicate)
			}
			return draft, action, err
		}
	}

	draft, action, err = s.apply(ctx, event)
	if err != nil {
		if isBenign(err) {
			s.observe(event, eventRejected)
		} else {
			s.observe(event, eventFailed)
		}
		return draft, action, err
	}

	if event.EventID != "" {
		entry := handledEvent{action: action}
		if draft != nil && draft.Stage != models.StageSubmitted {
			entry.draftID, entry.revision = draft.DraftID, draft.Revision
		}
		s.handled.Add(dedupeKey(event), entry)
	}
	if draft != nil {
		span.SetAttributes(observability.AttributeStage(string(draft.Stage)), observability.AttributeRevision(draft.Revision))
	}
	s.observe(event, eventApplied)
	return draft, action, nil
}

// Dispatch handles event and turns transition, taxonomy and staleness
// failures into a Rejected action for the current stage.
func (s *ConversationService) Dispatch(ctx context.Context, event *models.ReportEvent) (*models.ConversationAction, error) {
	_, action, err := s.Handle(ctx, event)
	if err == nil {
		return action, nil
	}
	if !isBenign(err) {
		return nil, err
	}

	current, loadErr := s.load(ctx, event.UserID)
	if loadErr != nil {
		return nil, loadErr
	}
	s.logger.Info(ctx, "Event rejected", map[string]interface{}{
		"user_id":    event.UserID,
		"event_type": string(event.Type),
		"source":     string(event.Source),
		"reason":     err.Error(),
	})
	return RejectedFor(err, current, s.catalog), nil
}

// Current returns the user's draft and the prompt for its stage
func (s *ConversationService) Current(ctx context.Context, userID int64) (*models.ReportDraft, *models.ConversationAction, error) {
	draft, err := s.load(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return draft, StagePrompt(draft, s.catalog), nil
}

// replay answers a redelivered event without applying it again
func (s *ConversationService) replay(ctx context.Context, event *models.ReportEvent) (*models.ReportDraft, *models.ConversationAction, bool, error) {
	entry, ok := s.handled.Get(dedupeKey(event))
	if !ok {
		return nil, nil, false, nil
	}
	current, err := s.load(ctx, event.UserID)
	if err != nil {
		return nil, nil, true, err
	}

	var draftID string
	var revision int64
	if current != nil {
		draftID, revision = current.DraftID, current.Revision
	}
	s.logger.Debug(ctx, "Duplicate event delivery", map[string]interface{}{
		"user_id":  event.UserID,
		"event_id": event.EventID,
	})
	if draftID == entry.draftID && revision == entry.revision {
		return current, entry.action, true, nil
	}
	return current, StagePrompt(current, s.catalog), true, nil
}

// apply runs decide-then-merge, re-deciding when the draft changed underneath
func (s *ConversationService) apply(ctx context.Context, event *models.ReportEvent) (*models.ReportDraft, *models.ConversationAction, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		current, err := s.load(ctx, event.UserID)
		if err != nil {
			return nil, nil, err
		}
		if current != nil && current.Stage == models.StageSubmitted {
			// left behind by an interrupted submit: finish it before starting over
			if err := s.reports.Save(ctx, models.NewSubmittedReport(current, current.UpdatedAt)); err != nil {
				return nil, nil, contextutils.WrapError(err, "failed to save submitted report")
			}
			if err := s.store.Clear(ctx, event.UserID); err != nil {
				return nil, nil, err
			}
			current = nil
		}

		decision, err := DecideAt(current, event, s.catalog, s.now(), 2*s.classifyTimeout)
		if err != nil {
			return current, nil, err
		}

		var draft *models.ReportDraft
		var action *models.ConversationAction
		switch {
		case decision.Clear:
			if err := s.store.Clear(ctx, event.UserID); err != nil {
				return current, nil, err
			}
			return nil, decision.Action, nil
		case decision.Submit:
			draft, action, err = s.submit(ctx, current)
		default:
			draft, err = s.store.ApplyMerge(ctx, event.UserID, decision.Update.ExpectingDraft(current))
			if err == nil {
				action = StagePrompt(draft, s.catalog)
				if decision.Classify != nil {
					draft, action, err = s.classify(ctx, draft, decision.Classify)
				}
			}
		}

		if err == nil {
			return draft, action, nil
		}
		if !contextutils.IsError(err, contextutils.ErrStaleDraft) {
			return current, nil, err
		}
		lastErr = err
		s.logger.Debug(ctx, "Draft changed concurrently, re-deciding", map[string]interface{}{
			"user_id": event.UserID,
			"attempt": attempt + 1,
		})
	}
	return nil, nil, lastErr
}

// classify runs the classifier outside any store lock and merges its result
// only if the draft is still the one that entered Classifying.
func (s *ConversationService) classify(ctx context.Context, draft *models.ReportDraft, in *ClassificationInput) (*models.ReportDraft, *models.ConversationAction, error) {
	classifyCtx, cancel := context.WithTimeout(ctx, s.classifyTimeout)
	result := s.classifier.Classify(classifyCtx, in)
	cancel()

	source := models.DescriptionFromAI
	if result.Fallback {
		source = models.DescriptionFromFallback
	}
	update := models.NewDraftUpdate().
		WithPair(result.Category, result.Subcategory).
		WithDescription(result.Description, source).
		WithPendingCategory("").
		WithStage(models.StageReviewing).
		ExpectingDraft(draft)

	merged, err := s.store.ApplyMerge(ctx, draft.UserID, update)
	if err != nil {
		if contextutils.IsError(err, contextutils.ErrStaleDraft) {
			s.logger.Info(ctx, "Classification result discarded, draft changed meanwhile", map[string]interface{}{
				"user_id":  draft.UserID,
				"revision": draft.Revision,
			})
			return nil, nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeInvalidTransition, contextutils.SeverityInfo,
				ReasonDraftChanged, "classification result discarded", err)
		}
		return nil, nil, err
	}

	s.logger.Info(ctx, "Report classified", map[string]interface{}{
		"user_id":     draft.UserID,
		"category":    merged.Category,
		"subcategory": merged.Subcategory,
		"fallback":    result.Fallback,
		"provider":    result.Provider,
	})
	return merged, models.ShowReviewScreen(merged), nil
}

// submit marks the draft Submitted, writes the report, then clears the draft.
// A failed write moves the draft back to Reviewing.
func (s *ConversationService) submit(ctx context.Context, current *models.ReportDraft) (*models.ReportDraft, *models.ConversationAction, error) {
	marked, err := s.store.ApplyMerge(ctx, current.UserID, models.NewDraftUpdate().
		WithStage(models.StageSubmitted).
		ExpectingDraft(current))
	if err != nil {
		return nil, nil, err
	}

	report := models.NewSubmittedReport(marked, s.now())
	if err := s.reports.Save(ctx, report); err != nil {
		if _, revertErr := s.store.ApplyMerge(ctx, current.UserID, models.NewDraftUpdate().
			WithStage(models.StageReviewing).
			ExpectingDraft(marked)); revertErr != nil {
			s.logger.Error(ctx, "Failed to revert draft after report write failure", revertErr, map[string]interface{}{
				"user_id":  current.UserID,
				"draft_id": marked.DraftID,
			})
		}
		return nil, nil, contextutils.WrapError(err, "failed to save submitted report")
	}

	if err := s.store.Clear(ctx, current.UserID); err != nil {
		// the report is saved; the leftover Submitted draft is cleared on the next event
		s.logger.Warn(ctx, "Failed to clear submitted draft", map[string]interface{}{
			"user_id": current.UserID,
			"error":   err.Error(),
		})
	}

	s.metrics.IncReportsSubmitted()
	s.logger.Info(ctx, "Report submitted", map[string]interface{}{
		"user_id":     current.UserID,
		"report_id":   report.ID,
		"category":    report.Category,
		"subcategory": report.Subcategory,
	})
	return marked, models.Confirmed(report.ID), nil
}

// load returns the user's draft or nil when there is none
func (s *ConversationService) load(ctx context.Context, userID int64) (*models.ReportDraft, error) {
	draft, err := s.store.Get(ctx, userID)
	if err != nil {
		if contextutils.IsError(err, contextutils.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return draft, nil
}

func (s *ConversationService) observe(event *models.ReportEvent, outcome string) {
	s.metrics.ObserveEvent(string(event.Type), string(event.Source), outcome)
}

// isBenign reports whether err is an expected user-level rejection
func isBenign(err error) bool {
	switch contextutils.GetErrorCode(err) {
	case contextutils.ErrorCodeInvalidTransition, contextutils.ErrorCodeInvalidTaxonomyPair, contextutils.ErrorCodeStaleDraft:
		return true
	}
	return false
}

func dedupeKey(event *models.ReportEvent) string {
	return strconv.FormatInt(event.UserID, 10) + "/" + event.EventID
}
