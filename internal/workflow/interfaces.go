package workflow

import (
	"context"
	"errors"

	"pressroom/internal/model"
)

// ErrStageConflict is returned by Store.UpdateStageAndPayload when the
// record's stage no longer matches the expected stage. The compare-and-swap
// is what makes concurrent conflicting actions lose cleanly instead of
// double-applying.
var ErrStageConflict = errors.New("stage conflict")

// ErrDuplicateFingerprint is returned by Store.Insert when another record
// already holds the fingerprint.
var ErrDuplicateFingerprint = errors.New("duplicate fingerprint")

// StagePatch is the payload written together with a stage change. Nil fields
// are left untouched.
type StagePatch struct {
	AIAnalysis   *model.AIAnalysis
	UserFeedback *model.UserFeedback
	PublishedRef *string
	AssignedTo   *string
	AutoProcess  *bool
}

type ListFilter struct {
	Stage       *model.WorkflowStage
	Priority    *model.Priority
	AssignedTo  *string
	AutoProcess *bool
	// AccessibleBy scopes results to records assigned to the user or
	// unassigned. Set by the engine for non-admin callers.
	AccessibleBy *string
	Limit        int
	Offset       int
}

// Store is the content-store contract the engine needs. The pgx
// implementation lives in internal/repository.
type Store interface {
	Get(ctx context.Context, id string) (*model.EmailRecord, error)
	FindByFingerprint(ctx context.Context, fingerprint string) (*model.EmailRecord, error)
	Insert(ctx context.Context, rec *model.EmailRecord) (*model.EmailRecord, error)
	List(ctx context.Context, f ListFilter) ([]model.EmailRecord, int, error)
	// UpdateStageAndPayload atomically moves the record from expected to next
	// and applies the patch. Returns ErrStageConflict when the current stage
	// is not expected.
	UpdateStageAndPayload(ctx context.Context, id string, expected, next model.WorkflowStage, patch StagePatch) (*model.EmailRecord, error)
	UpdatePriority(ctx context.Context, id string, p model.Priority) (*model.EmailRecord, error)
	UpdateAssignee(ctx context.Context, id, assignee string) (*model.EmailRecord, error)
	CountByStage(ctx context.Context) (map[model.WorkflowStage]int, error)
}

// AuditLog is append-only; entries are never updated or deleted.
type AuditLog interface {
	Append(ctx context.Context, t *model.WorkflowTransition) error
	ListForEmail(ctx context.Context, emailID string, newestFirst bool) ([]model.WorkflowTransition, error)
}

// ContentGenerator classifies an email and drafts post content for it.
type ContentGenerator interface {
	AnalyzeEmail(ctx context.Context, sender, subject, body string) (*model.AIAnalysis, error)
}

// Publisher pushes final content to the external CMS and returns its
// reference there.
type Publisher interface {
	PublishPost(ctx context.Context, content model.FinalContent) (string, error)
}
