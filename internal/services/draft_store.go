package services

import (
	"context"
	"sync"
	"time"

	"helpcy/internal/models"
	"helpcy/internal/observability"
	contextutils "helpcy/internal/utils"

	"github.com/google/uuid"
)

// DraftStore holds one mergeable draft per user. Merges for the same user are
// serialized; merges for different users never wait on each other.
type DraftStore interface {
	// Get returns a snapshot of the user's draft or ErrRecordNotFound.
	Get(ctx context.Context, userID int64) (*models.ReportDraft, error)
	// ApplyMerge merges the present fields of update into the draft, creating it
	// when absent. Invalid pairs and revision mismatches leave the draft untouched.
	ApplyMerge(ctx context.Context, userID int64, update *models.DraftUpdate) (*models.ReportDraft, error)
	// Clear removes the user's draft. Clearing an absent draft is not an error.
	Clear(ctx context.Context, userID int64) error
}

// IdleDraftPurger is implemented by stores that can discard abandoned drafts
type IdleDraftPurger interface {
	// CountIdle reports how many drafts were last updated before the cutoff.
	CountIdle(ctx context.Context, before time.Time) (int, error)
	// PurgeIdle removes drafts last updated before the cutoff.
	PurgeIdle(ctx context.Context, before time.Time) (int, error)
}

// mergeDraft applies update to a copy of current. A nil current creates a new
// draft. The returned bool is false when nothing changed, in which case the
// returned draft is current itself.
func mergeDraft(current *models.ReportDraft, userID int64, update *models.DraftUpdate, catalog CatalogServiceInterface, now time.Time) (*models.ReportDraft, bool, error) {
	if update == nil {
		update = &models.DraftUpdate{}
	}

	var currentRevision int64
	var currentID string
	if current != nil {
		currentRevision, currentID = current.Revision, current.DraftID
	}
	if update.ExpectRevision != nil && *update.ExpectRevision != currentRevision {
		return nil, false, contextutils.NewAppError(contextutils.ErrorCodeStaleDraft, contextutils.SeverityInfo,
			"draft changed concurrently", "")
	}
	if update.ExpectDraftID != nil && *update.ExpectDraftID != currentID {
		return nil, false, contextutils.NewAppError(contextutils.ErrorCodeStaleDraft, contextutils.SeverityInfo,
			"draft was replaced", *update.ExpectDraftID)
	}

	created := current == nil
	next := current.Clone()
	if created {
		next = &models.ReportDraft{
			UserID:    userID,
			DraftID:   uuid.NewString(),
			Stage:     models.StageAwaitingLocation,
			CreatedAt: now,
		}
	}

	changed := created
	setString := func(dst *string, src *string) {
		if src != nil && *dst != *src {
			*dst = *src
			changed = true
		}
	}

	if update.Stage != nil && next.Stage != *update.Stage {
		next.Stage = *update.Stage
		changed = true
	}
	if update.Location != nil && (next.Location == nil || *next.Location != *update.Location) {
		loc := *update.Location
		next.Location = &loc
		changed = true
	}
	setString(&next.Category, update.Category)
	setString(&next.Subcategory, update.Subcategory)
	setString(&next.PendingCategory, update.PendingCategory)
	setString(&next.Description, update.Description)
	setString(&next.MediaRef, update.MediaRef)
	if update.DescriptionSource != nil && next.DescriptionSource != *update.DescriptionSource {
		next.DescriptionSource = *update.DescriptionSource
		changed = true
	}
	if update.MediaKind != nil && next.MediaKind != *update.MediaKind {
		next.MediaKind = *update.MediaKind
		changed = true
	}

	if update.Category != nil || update.Subcategory != nil {
		bothEmpty := next.Category == "" && next.Subcategory == ""
		if !bothEmpty && !catalog.IsValidPair(next.Category, next.Subcategory) {
			return nil, false, contextutils.NewAppError(contextutils.ErrorCodeInvalidTaxonomyPair, contextutils.SeverityInfo,
				"category and subcategory do not match", next.Category+" / "+next.Subcategory)
		}
	}
	if update.PendingCategory != nil && next.PendingCategory != "" && !catalog.HasCategory(next.PendingCategory) {
		return nil, false, contextutils.NewAppError(contextutils.ErrorCodeInvalidTaxonomyPair, contextutils.SeverityInfo,
			"unknown category", next.PendingCategory)
	}

	if !changed {
		return current, false, nil
	}

	next.Revision = currentRevision + 1
	if current != nil && !now.After(current.UpdatedAt) {
		now = current.UpdatedAt.Add(time.Nanosecond)
	}
	next.UpdatedAt = now
	return next, true, nil
}

func notFoundDraft(userID int64) error {
	return contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "no draft for user %d", userID)
}

type draftSlot struct {
	mu    sync.Mutex
	draft *models.ReportDraft
}

// MemoryDraftStore keeps drafts in process memory behind per-user locks
type MemoryDraftStore struct {
	slots   sync.Map // int64 -> *draftSlot
	catalog CatalogServiceInterface
	logger  *observability.Logger
	now     func() time.Time
}

// NewMemoryDraftStore creates an in-memory draft store
func NewMemoryDraftStore(catalog CatalogServiceInterface, logger *observability.Logger) *MemoryDraftStore {
	return &MemoryDraftStore{
		catalog: catalog,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// slot returns the lock holder for a user. Slots are never deleted so two
// callers can never end up holding different locks for the same user.
func (s *MemoryDraftStore) slot(userID int64) *draftSlot {
	if v, ok := s.slots.Load(userID); ok {
		return v.(*draftSlot)
	}
	v, _ := s.slots.LoadOrStore(userID, &draftSlot{})
	return v.(*draftSlot)
}

// Get returns a snapshot of the user's draft
func (s *MemoryDraftStore) Get(ctx context.Context, userID int64) (*models.ReportDraft, error) {
	sl := s.slot(userID)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.draft == nil {
		return nil, notFoundDraft(userID)
	}
	return sl.draft.Clone(), nil
}

// ApplyMerge merges update into the user's draft atomically
func (s *MemoryDraftStore) ApplyMerge(ctx context.Context, userID int64, update *models.DraftUpdate) (result *models.ReportDraft, err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "memory.ApplyMerge", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	sl := s.slot(userID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	next, changed, err := mergeDraft(sl.draft, userID, update, s.catalog, s.now())
	if err != nil {
		return nil, err
	}
	if changed {
		sl.draft = next
		s.logger.Debug(ctx, "Draft merged", map[string]interface{}{
			"user_id":  userID,
			"stage":    string(next.Stage),
			"revision": next.Revision,
		})
	}
	span.SetAttributes(observability.AttributeRevision(next.Revision), observability.AttributeStage(string(next.Stage)))
	return next.Clone(), nil
}

// Clear removes the user's draft
func (s *MemoryDraftStore) Clear(ctx context.Context, userID int64) error {
	sl := s.slot(userID)
	sl.mu.Lock()
	sl.draft = nil
	sl.mu.Unlock()
	return nil
}

// CountIdle counts drafts last updated before the cutoff
func (s *MemoryDraftStore) CountIdle(ctx context.Context, before time.Time) (int, error) {
	return s.sweep(before, false), nil
}

// PurgeIdle removes drafts last updated before the cutoff. Slots stay in place.
func (s *MemoryDraftStore) PurgeIdle(ctx context.Context, before time.Time) (int, error) {
	n := s.sweep(before, true)
	if n > 0 {
		s.logger.Debug(ctx, "Idle drafts purged", map[string]interface{}{"count": n})
	}
	return n, nil
}

func (s *MemoryDraftStore) sweep(before time.Time, remove bool) int {
	n := 0
	s.slots.Range(func(_, v interface{}) bool {
		sl := v.(*draftSlot)
		sl.mu.Lock()
		if sl.draft != nil && sl.draft.UpdatedAt.Before(before) {
			n++
			if remove {
				sl.draft = nil
			}
		}
		sl.mu.Unlock()
		return true
	})
	return n
}
