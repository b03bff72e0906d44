package workflow

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"pressroom/internal/auth"
	"pressroom/internal/model"
	"pressroom/pkg/metrics"
)

// Action verbs recorded in the audit trail.
const (
	ActionAnalyze        = "analyze"
	ActionApproveContent = "approve_content"
	ActionPreparePublish = "prepare_publish"
	ActionPublish        = "publish"
	ActionReject         = "reject"
	ActionArchive        = "archive"
	ActionUpdatePriority = "update_priority"
	ActionAssign         = "assign"
)

// Engine drives the email workflow: it enforces the transition table,
// applies stage payloads, and writes one audit entry per successful action.
type Engine struct {
	store  Store
	audit  AuditLog
	ai     ContentGenerator
	cms    Publisher
	logger *zap.Logger
}

func NewEngine(store Store, audit AuditLog, ai ContentGenerator, cms Publisher, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		audit:  audit,
		ai:     ai,
		cms:    cms,
		logger: logger,
	}
}

type ApproveInput struct {
	Rating        int
	Notes         string
	Modifications *model.GeneratedDraft
}

type PrepareInput struct {
	Title           string
	Body            string
	Category        string
	Tags            []string
	MetaDescription string
}

// Analyze runs the AI pass on a received email and moves it to analyzed.
func (e *Engine) Analyze(ctx context.Context, actor auth.Identity, emailID string) (*model.EmailRecord, error) {
	rec, err := e.load(ctx, emailID)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(actor, ActionAnalyze, auth.PermissionContent, rec); err != nil {
		return nil, err
	}
	if rec.Stage != model.StageReceived {
		return nil, e.invalidTransition(ActionAnalyze, rec.Stage, string(model.StageReceived))
	}

	analysis, err := e.ai.AnalyzeEmail(ctx, rec.Sender, rec.Subject, rec.BodyText)
	if err != nil {
		metrics.RecordWorkflowAction(ActionAnalyze, "collaborator_error")
		e.logger.Error("AI analysis failed",
			zap.String("email_id", emailID),
			zap.String("actor_id", actor.UserID),
			zap.Error(err),
		)
		return nil, &CollaboratorError{Collaborator: "ai", Err: err}
	}

	return e.commit(ctx, actor, rec, ActionAnalyze, model.StageAnalyzed,
		StagePatch{AIAnalysis: analysis},
		"AI analysis completed",
		map[string]any{"category": analysis.Category, "is_relevant": analysis.IsRelevant},
	)
}

// ApproveContent records the reviewer's verdict on the generated draft and
// assigns the record to the approver.
func (e *Engine) ApproveContent(ctx context.Context, actor auth.Identity, emailID string, in ApproveInput) (*model.EmailRecord, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, &ValidationError{Field: "rating", Reason: "must be between 1 and 5"}
	}
	rec, err := e.load(ctx, emailID)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(actor, ActionApproveContent, auth.PermissionContent, rec); err != nil {
		return nil, err
	}
	if rec.Stage != model.StageAnalyzed {
		return nil, e.invalidTransition(ActionApproveContent, rec.Stage, string(model.StageAnalyzed))
	}

	feedback := &model.UserFeedback{
		Rating:        in.Rating,
		Notes:         in.Notes,
		Modifications: in.Modifications,
		Approver:      actor.UserID,
		ReviewedAt:    time.Now().UTC(),
	}
	notes := in.Notes
	if notes == "" {
		notes = "content approved"
	}
	return e.commit(ctx, actor, rec, ActionApproveContent, model.StageApprovedContent,
		StagePatch{UserFeedback: feedback, AssignedTo: &actor.UserID},
		notes,
		map[string]any{"rating": in.Rating},
	)
}

// PreparePublish merges the caller's edits over the generated draft into the
// final content and moves the record to ready_publish.
func (e *Engine) PreparePublish(ctx context.Context, actor auth.Identity, emailID string, in PrepareInput) (*model.EmailRecord, error) {
	rec, err := e.load(ctx, emailID)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(actor, ActionPreparePublish, auth.PermissionContent, rec); err != nil {
		return nil, err
	}
	if rec.Stage != model.StageApprovedContent {
		return nil, e.invalidTransition(ActionPreparePublish, rec.Stage, string(model.StageApprovedContent))
	}

	final := mergeFinalContent(rec.AIAnalysis, in, actor.UserID)
	if final.Title == "" {
		return nil, &ValidationError{Field: "title", Reason: "required"}
	}
	if final.Body == "" {
		return nil, &ValidationError{Field: "body", Reason: "required"}
	}

	updated := model.AIAnalysis{}
	if rec.AIAnalysis != nil {
		updated = *rec.AIAnalysis
	}
	updated.FinalContent = final

	return e.commit(ctx, actor, rec, ActionPreparePublish, model.StageReadyPublish,
		StagePatch{AIAnalysis: &updated},
		"prepared for publication",
		map[string]any{"title": final.Title},
	)
}

// Publish pushes the final content to the CMS and marks the record
// published. The CMS call happens before the stage commit: on CMS failure
// nothing is recorded, on commit failure after CMS success the external
// reference is logged so an operator can reconcile.
func (e *Engine) Publish(ctx context.Context, actor auth.Identity, emailID string) (*model.EmailRecord, error) {
	rec, err := e.load(ctx, emailID)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(actor, ActionPublish, auth.PermissionWordPress, rec); err != nil {
		return nil, err
	}
	if rec.Stage != model.StageReadyPublish {
		return nil, e.invalidTransition(ActionPublish, rec.Stage, string(model.StageReadyPublish))
	}
	if rec.AIAnalysis == nil || rec.AIAnalysis.FinalContent == nil {
		return nil, &ValidationError{Field: "final_content", Reason: "missing"}
	}

	ref, err := e.cms.PublishPost(ctx, *rec.AIAnalysis.FinalContent)
	if err != nil {
		metrics.RecordWorkflowAction(ActionPublish, "collaborator_error")
		e.logger.Error("CMS publish failed",
			zap.String("email_id", emailID),
			zap.String("actor_id", actor.UserID),
			zap.Error(err),
		)
		return nil, &CollaboratorError{Collaborator: "cms", Err: err}
	}

	out, err := e.commit(ctx, actor, rec, ActionPublish, model.StagePublished,
		StagePatch{PublishedRef: &ref},
		"published to CMS, post "+ref,
		map[string]any{"published_reference": ref},
	)
	if err != nil {
		// The external post exists but the local stage does not reflect it.
		e.logger.Error("publish committed externally but not locally, reconcile manually",
			zap.String("email_id", emailID),
			zap.String("published_reference", ref),
			zap.Error(err),
		)
		return nil, err
	}
	return out, nil
}

// Reject moves any non-terminal record to rejected.
func (e *Engine) Reject(ctx context.Context, actor auth.Identity, emailID, reason string) (*model.EmailRecord, error) {
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Reason: "required"}
	}
	rec, err := e.load(ctx, emailID)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(actor, ActionReject, auth.PermissionContent, rec); err != nil {
		return nil, err
	}
	if rec.Stage.Terminal() {
		return nil, e.invalidTransition(ActionReject, rec.Stage, "any non-terminal stage")
	}

	feedback := &model.UserFeedback{
		RejectionReason: reason,
		Approver:        actor.UserID,
		ReviewedAt:      time.Now().UTC(),
	}
	return e.commit(ctx, actor, rec, ActionReject, model.StageRejected,
		StagePatch{UserFeedback: feedback},
		"rejected: "+reason,
		nil,
	)
}

// Archive parks a record and clears its auto-process flag. It is the one
// action allowed from any stage, terminal ones included.
func (e *Engine) Archive(ctx context.Context, actor auth.Identity, emailID string) (*model.EmailRecord, error) {
	rec, err := e.load(ctx, emailID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, &ForbiddenError{UserID: actor.UserID, Action: ActionArchive, Reason: "admin role required"}
	}
	if rec.Stage == model.StageArchived {
		return nil, e.invalidTransition(ActionArchive, rec.Stage, "any non-archived stage")
	}

	off := false
	return e.commit(ctx, actor, rec, ActionArchive, model.StageArchived,
		StagePatch{AutoProcess: &off},
		"archived",
		nil,
	)
}

// UpdatePriority changes the record's priority without moving its stage.
func (e *Engine) UpdatePriority(ctx context.Context, actor auth.Identity, emailID string, p model.Priority) (*model.EmailRecord, error) {
	if !p.Valid() {
		return nil, &ValidationError{Field: "priority", Reason: "must be 1, 2 or 3"}
	}
	rec, err := e.load(ctx, emailID)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(actor, ActionUpdatePriority, auth.PermissionContent, rec); err != nil {
		return nil, err
	}

	updated, err := e.store.UpdatePriority(ctx, emailID, p)
	if err != nil {
		return nil, e.storeErr("update_priority", err)
	}
	e.appendAudit(ctx, &model.WorkflowTransition{
		EmailID: emailID,
		ActorID: actor.UserID,
		Action:  ActionUpdatePriority,
		Notes:   "priority changed to " + p.String(),
	})
	metrics.RecordWorkflowAction(ActionUpdatePriority, "success")
	return updated, nil
}

// Assign hands the record to another user. Admin only.
func (e *Engine) Assign(ctx context.Context, actor auth.Identity, emailID, assignee string) (*model.EmailRecord, error) {
	if assignee == "" {
		return nil, &ValidationError{Field: "assignee", Reason: "required"}
	}
	if !actor.IsAdmin() {
		return nil, &ForbiddenError{UserID: actor.UserID, Action: ActionAssign, Reason: "admin role required"}
	}
	if _, err := e.load(ctx, emailID); err != nil {
		return nil, err
	}

	updated, err := e.store.UpdateAssignee(ctx, emailID, assignee)
	if err != nil {
		return nil, e.storeErr("update_assignee", err)
	}
	e.appendAudit(ctx, &model.WorkflowTransition{
		EmailID: emailID,
		ActorID: actor.UserID,
		Action:  ActionAssign,
		Notes:   "assigned to " + assignee,
	})
	metrics.RecordWorkflowAction(ActionAssign, "success")
	return updated, nil
}

// Get returns a record with its transition history, newest first.
func (e *Engine) Get(ctx context.Context, actor auth.Identity, emailID string) (*model.EmailRecord, []model.WorkflowTransition, error) {
	if !actor.Can(auth.PermissionContent) {
		return nil, nil, &ForbiddenError{UserID: actor.UserID, Action: "get", Reason: "content permission required"}
	}
	rec, err := e.load(ctx, emailID)
	if err != nil {
		return nil, nil, err
	}
	if !actor.CanAccessRecord(rec.AssignedTo) {
		return nil, nil, &ForbiddenError{UserID: actor.UserID, Action: "get", Reason: "record assigned to another user"}
	}
	history, err := e.audit.ListForEmail(ctx, emailID, true)
	if err != nil {
		return nil, nil, e.storeErr("list_transitions", err)
	}
	return rec, history, nil
}

// List returns records matching the filter. Non-admin callers are scoped to
// their own assignments server-side.
func (e *Engine) List(ctx context.Context, actor auth.Identity, f ListFilter) ([]model.EmailRecord, int, error) {
	if !actor.Can(auth.PermissionContent) {
		return nil, 0, &ForbiddenError{UserID: actor.UserID, Action: "list", Reason: "content permission required"}
	}
	if !actor.IsAdmin() {
		f.AccessibleBy = &actor.UserID
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	recs, total, err := e.store.List(ctx, f)
	if err != nil {
		return nil, 0, e.storeErr("list", err)
	}
	return recs, total, nil
}

// DashboardStats returns record counts per stage.
func (e *Engine) DashboardStats(ctx context.Context, actor auth.Identity) (map[model.WorkflowStage]int, error) {
	if !actor.Can(auth.PermissionContent) {
		return nil, &ForbiddenError{UserID: actor.UserID, Action: "dashboard_stats", Reason: "content permission required"}
	}
	counts, err := e.store.CountByStage(ctx)
	if err != nil {
		return nil, e.storeErr("count_by_stage", err)
	}
	return counts, nil
}

func (e *Engine) load(ctx context.Context, id string) (*model.EmailRecord, error) {
	rec, err := e.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, e.storeErr("get", err)
	}
	return rec, nil
}

func (e *Engine) authorize(actor auth.Identity, action string, perm auth.Permission, rec *model.EmailRecord) error {
	if !actor.Can(perm) {
		return &ForbiddenError{UserID: actor.UserID, Action: action, Reason: string(perm) + " permission required"}
	}
	if rec != nil && !actor.CanAccessRecord(rec.AssignedTo) {
		return &ForbiddenError{UserID: actor.UserID, Action: action, Reason: "record assigned to another user"}
	}
	return nil
}

// commit performs the compare-and-swap stage update and appends the audit
// entry. A conflict means another action moved the record first; the caller
// gets the fresh stage back and must not retry blindly.
func (e *Engine) commit(ctx context.Context, actor auth.Identity, rec *model.EmailRecord, action string, to model.WorkflowStage, patch StagePatch, notes string, metadata map[string]any) (*model.EmailRecord, error) {
	from := rec.Stage
	updated, err := e.store.UpdateStageAndPayload(ctx, rec.ID, from, to, patch)
	if errors.Is(err, ErrStageConflict) {
		metrics.RecordWorkflowAction(action, "conflict")
		current := from
		if fresh, ferr := e.store.Get(ctx, rec.ID); ferr == nil {
			current = fresh.Stage
		}
		return nil, e.invalidTransition(action, current, string(from))
	}
	if err != nil {
		metrics.RecordWorkflowAction(action, "store_error")
		return nil, e.storeErr("update_stage", err)
	}

	e.appendAudit(ctx, &model.WorkflowTransition{
		EmailID:   rec.ID,
		ActorID:   actor.UserID,
		Action:    action,
		FromStage: &from,
		ToStage:   &to,
		Notes:     notes,
		Metadata:  metadata,
	})
	metrics.RecordWorkflowAction(action, "success")
	e.logger.Info("workflow transition",
		zap.String("email_id", rec.ID),
		zap.String("action", action),
		zap.String("from_stage", string(from)),
		zap.String("to_stage", string(to)),
		zap.String("actor_id", actor.UserID),
	)
	return updated, nil
}

func (e *Engine) appendAudit(ctx context.Context, t *model.WorkflowTransition) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if err := e.audit.Append(ctx, t); err != nil {
		// The stage change is already committed; losing the audit row is a
		// defect to surface, not a reason to fail the action.
		e.logger.Error("failed to append workflow transition",
			zap.String("email_id", t.EmailID),
			zap.String("action", t.Action),
			zap.Error(err),
		)
	}
}

func (e *Engine) invalidTransition(action string, current model.WorkflowStage, required string) error {
	return &InvalidTransitionError{Action: action, Current: current, Required: required}
}

func (e *Engine) storeErr(op string, err error) error {
	e.logger.Error("store operation failed", zap.String("op", op), zap.Error(err))
	return &StoreError{Op: op, Err: err}
}

func mergeFinalContent(analysis *model.AIAnalysis, in PrepareInput, preparedBy string) *model.FinalContent {
	final := &model.FinalContent{
		PreparedBy: preparedBy,
		PreparedAt: time.Now().UTC(),
	}
	if analysis != nil && analysis.Draft != nil {
		final.GeneratedDraft = *analysis.Draft
	}
	if in.Title != "" {
		final.Title = in.Title
	}
	if in.Body != "" {
		final.Body = in.Body
	}
	if in.Category != "" {
		final.Category = in.Category
	}
	if len(in.Tags) > 0 {
		final.Tags = in.Tags
	}
	if in.MetaDescription != "" {
		final.MetaDescription = in.MetaDescription
	}
	return final
}
