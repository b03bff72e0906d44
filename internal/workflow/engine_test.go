package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"pressroom/internal/auth"
	"pressroom/internal/model"
)

var (
	adminActor  = auth.Identity{UserID: "admin-1", Role: auth.RoleAdmin}
	editorActor = auth.Identity{UserID: "editor-1", Role: auth.RoleEditor}
	viewerActor = auth.Identity{UserID: "viewer-1", Role: auth.RoleViewer}
)

type fakeStore struct {
	mu      sync.Mutex
	records map[string]*model.EmailRecord

	lastFilter *ListFilter
	updateErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*model.EmailRecord)}
}

func (s *fakeStore) put(rec *model.EmailRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.ID] = &cp
}

func (s *fakeStore) Get(_ context.Context, id string) (*model.EmailRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) FindByFingerprint(_ context.Context, fp string) (*model.EmailRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.Fingerprint == fp {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeStore) Insert(_ context.Context, rec *model.EmailRecord) (*model.EmailRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.records {
		if existing.Fingerprint == rec.Fingerprint {
			return nil, ErrDuplicateFingerprint
		}
	}
	cp := *rec
	cp.CreatedAt = time.Now().UTC()
	s.records[rec.ID] = &cp
	out := cp
	return &out, nil
}

func (s *fakeStore) List(_ context.Context, f ListFilter) ([]model.EmailRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = &f
	var out []model.EmailRecord
	for _, rec := range s.records {
		if f.Stage != nil && rec.Stage != *f.Stage {
			continue
		}
		if f.AccessibleBy != nil && rec.AssignedTo != "" && rec.AssignedTo != *f.AccessibleBy {
			continue
		}
		out = append(out, *rec)
	}
	return out, len(out), nil
}

func (s *fakeStore) UpdateStageAndPayload(_ context.Context, id string, expected, next model.WorkflowStage, patch StagePatch) (*model.EmailRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.Stage != expected {
		return nil, ErrStageConflict
	}
	rec.Stage = next
	if patch.AIAnalysis != nil {
		rec.AIAnalysis = patch.AIAnalysis
	}
	if patch.UserFeedback != nil {
		rec.UserFeedback = patch.UserFeedback
	}
	if patch.PublishedRef != nil {
		rec.PublishedRef = *patch.PublishedRef
	}
	if patch.AssignedTo != nil {
		rec.AssignedTo = *patch.AssignedTo
	}
	if patch.AutoProcess != nil {
		rec.AutoProcess = *patch.AutoProcess
	}
	rec.UpdatedAt = time.Now().UTC()
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) UpdatePriority(_ context.Context, id string, p model.Priority) (*model.EmailRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	rec.Priority = p
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) UpdateAssignee(_ context.Context, id, assignee string) (*model.EmailRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	rec.AssignedTo = assignee
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) CountByStage(_ context.Context) (map[model.WorkflowStage]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[model.WorkflowStage]int)
	for _, rec := range s.records {
		counts[rec.Stage]++
	}
	return counts, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []model.WorkflowTransition
}

func (a *fakeAudit) Append(_ context.Context, t *model.WorkflowTransition) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, *t)
	return nil
}

func (a *fakeAudit) ListForEmail(_ context.Context, emailID string, newestFirst bool) ([]model.WorkflowTransition, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []model.WorkflowTransition
	for _, t := range a.entries {
		if t.EmailID == emailID {
			out = append(out, t)
		}
	}
	if newestFirst {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func (a *fakeAudit) forEmail(emailID string) []model.WorkflowTransition {
	out, _ := a.ListForEmail(context.Background(), emailID, false)
	return out
}

type fakeAI struct {
	analysis *model.AIAnalysis
	err      error
	calls    int
}

func (f *fakeAI) AnalyzeEmail(context.Context, string, string, string) (*model.AIAnalysis, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.analysis
	return &cp, nil
}

type fakeCMS struct {
	ref      string
	err      error
	calls    int
	lastPost model.FinalContent
}

func (f *fakeCMS) PublishPost(_ context.Context, content model.FinalContent) (string, error) {
	f.calls++
	f.lastPost = content
	if f.err != nil {
		return "", f.err
	}
	return f.ref, nil
}

func relevantAnalysis() *model.AIAnalysis {
	return &model.AIAnalysis{
		Category:   "culture",
		Confidence: 0.92,
		IsRelevant: true,
		Topics:     []string{"festival"},
		Draft: &model.GeneratedDraft{
			Title:           "Summer Festival Returns",
			Body:            "The festival is back this July.",
			Category:        "culture",
			Tags:            []string{"festival", "summer"},
			MetaDescription: "Festival dates announced.",
		},
		AnalyzedAt: time.Now().UTC(),
	}
}

type testEnv struct {
	engine *Engine
	store  *fakeStore
	audit  *fakeAudit
	ai     *fakeAI
	cms    *fakeCMS
}

func newTestEnv() *testEnv {
	store := newFakeStore()
	audit := &fakeAudit{}
	ai := &fakeAI{analysis: relevantAnalysis()}
	cms := &fakeCMS{ref: "42"}
	return &testEnv{
		engine: NewEngine(store, audit, ai, cms, zap.NewNop()),
		store:  store,
		audit:  audit,
		ai:     ai,
		cms:    cms,
	}
}

func (env *testEnv) seed(stage model.WorkflowStage) *model.EmailRecord {
	rec := &model.EmailRecord{
		ID:          "email-" + string(stage),
		Fingerprint: "fp-" + string(stage),
		Sender:      "press@example.com",
		Subject:     "Festival announcement",
		BodyText:    "The festival is back.",
		ReceivedAt:  time.Now().UTC(),
		Stage:       stage,
		Priority:    model.PriorityMedium,
	}
	switch stage {
	case model.StageAnalyzed, model.StageApprovedContent, model.StageReadyPublish, model.StagePublished:
		rec.AIAnalysis = relevantAnalysis()
	}
	if stage == model.StageReadyPublish || stage == model.StagePublished {
		rec.AIAnalysis.FinalContent = &model.FinalContent{
			GeneratedDraft: *rec.AIAnalysis.Draft,
			PreparedBy:     editorActor.UserID,
			PreparedAt:     time.Now().UTC(),
		}
	}
	env.store.put(rec)
	return rec
}

func TestAnalyzeMovesReceivedToAnalyzed(t *testing.T) {
	env := newTestEnv()
	rec := env.seed(model.StageReceived)

	out, err := env.engine.Analyze(context.Background(), editorActor, rec.ID)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if out.Stage != model.StageAnalyzed {
		t.Errorf("stage = %s, want %s", out.Stage, model.StageAnalyzed)
	}
	if out.AIAnalysis == nil || out.AIAnalysis.Draft == nil {
		t.Fatal("analysis payload not applied")
	}

	entries := env.audit.forEmail(rec.ID)
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Action != ActionAnalyze || e.ActorID != editorActor.UserID {
		t.Errorf("audit entry = %+v", e)
	}
	if e.FromStage == nil || *e.FromStage != model.StageReceived {
		t.Errorf("from stage = %v, want received", e.FromStage)
	}
	if e.ToStage == nil || *e.ToStage != model.StageAnalyzed {
		t.Errorf("to stage = %v, want analyzed", e.ToStage)
	}
}

func TestAnalyzeAIFailureLeavesRecordUntouched(t *testing.T) {
	env := newTestEnv()
	env.ai.err = errors.New("model overloaded")
	rec := env.seed(model.StageReceived)

	_, err := env.engine.Analyze(context.Background(), editorActor, rec.ID)
	var collab *CollaboratorError
	if !errors.As(err, &collab) {
		t.Fatalf("err = %v, want CollaboratorError", err)
	}
	if collab.Collaborator != "ai" {
		t.Errorf("collaborator = %s, want ai", collab.Collaborator)
	}

	fresh, _ := env.store.Get(context.Background(), rec.ID)
	if fresh.Stage != model.StageReceived {
		t.Errorf("stage = %s, want received after AI failure", fresh.Stage)
	}
	if len(env.audit.forEmail(rec.ID)) != 0 {
		t.Error("failed analyze must not leave an audit entry")
	}
}

func TestAnalyzeWrongStage(t *testing.T) {
	env := newTestEnv()
	rec := env.seed(model.StagePublished)

	_, err := env.engine.Analyze(context.Background(), editorActor, rec.ID)
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidTransitionError", err)
	}
	if invalid.Current != model.StagePublished {
		t.Errorf("current = %s, want published", invalid.Current)
	}
	if env.ai.calls != 0 {
		t.Error("AI must not be called on a wrong-stage record")
	}
}

func TestAnalyzeUnknownRecord(t *testing.T) {
	env := newTestEnv()
	_, err := env.engine.Analyze(context.Background(), editorActor, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestApproveContentAssignsApprover(t *testing.T) {
	env := newTestEnv()
	rec := env.seed(model.StageAnalyzed)

	out, err := env.engine.ApproveContent(context.Background(), editorActor, rec.ID, ApproveInput{
		Rating: 4,
		Notes:  "solid draft",
	})
	if err != nil {
		t.Fatalf("ApproveContent: %v", err)
	}
	if out.Stage != model.StageApprovedContent {
		t.Errorf("stage = %s, want approved_content", out.Stage)
	}
	if out.AssignedTo != editorActor.UserID {
		t.Errorf("assigned_to = %q, want approver %q", out.AssignedTo, editorActor.UserID)
	}
	if out.UserFeedback == nil || out.UserFeedback.Rating != 4 || out.UserFeedback.Approver != editorActor.UserID {
		t.Errorf("feedback = %+v", out.UserFeedback)
	}
}

func TestApproveContentRatingValidation(t *testing.T) {
	env := newTestEnv()
	rec := env.seed(model.StageAnalyzed)

	for _, rating := range []int{0, 6, -1} {
		_, err := env.engine.ApproveContent(context.Background(), editorActor, rec.ID, ApproveInput{Rating: rating})
		var validation *ValidationError
		if !errors.As(err, &validation) {
			t.Errorf("rating %d: err = %v, want ValidationError", rating, err)
		}
	}
}

func TestPreparePublishMergesEditsOverDraft(t *testing.T) {
	env := newTestEnv()
	rec := env.seed(model.StageApprovedContent)

	out, err := env.engine.PreparePublish(context.Background(), editorActor, rec.ID, PrepareInput{
		Title: "Edited Title",
	})
	if err != nil {
		t.Fatalf("PreparePublish: %v", err)
	}
	if out.Stage != model.StageReadyPublish {
		t.Errorf("stage = %s, want ready_publish", out.Stage)
	}
	final := out.AIAnalysis.FinalContent
	if final == nil {
		t.Fatal("final content missing")
	}
	if final.Title != "Edited Title" {
		t.Errorf("title = %q, want the edited title", final.Title)
	}
	if final.Body != "The festival is back this July." {
		t.Errorf("body = %q, want the draft body carried over", final.Body)
	}
	if final.PreparedBy != editorActor.UserID {
		t.Errorf("prepared_by = %q", final.PreparedBy)
	}
}

func TestPreparePublishRequiresTitleAndBody(t *testing.T) {
	env := newTestEnv()
	rec := env.seed(model.StageApprovedContent)
	// A record whose analysis produced no draft has nothing to fall back on.
	rec.AIAnalysis.Draft = nil
	env.store.put(rec)

	_, err := env.engine.PreparePublish(context.Background(), editorActor, rec.ID, PrepareInput{})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestPublishHappyPath(t *testing.T) {
	env := newTestEnv()
	rec := env.seed(model.StageReadyPublish)

	out, err := env.engine.Publish(context.Background(), editorActor, rec.ID)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if out.Stage != model.StagePublished {
		t.Errorf("stage = %s, want published", out.Stage)
	}
	if out.PublishedRef != "42" {
		t.Errorf("published_reference = %q, want 42", out.PublishedRef)
	}
	if env.cms.calls != 1 {
		t.Errorf("cms calls = %d, want 1", env.cms.calls)
	}
	if env.cms.lastPost.Title != "Summer Festival Returns" {
		t.Errorf("cms got title %q", env.cms.lastPost.Title)
	}
}

func TestPublishCMSFailureLeavesRecordUntouched(t *testing.T) {
	env := newTestEnv()
	env.cms.err = errors.New("wordpress 503")
	rec := env.seed(model.StageReadyPublish)

	_, err := env.engine.Publish(context.Background(), editorActor, rec.ID)
	var collab *CollaboratorError
	if !errors.As(err, &collab) {
		t.Fatalf("err = %v, want CollaboratorError", err)
	}

	fresh, _ := env.store.Get(context.Background(), rec.ID)
	if fresh.Stage != model.StageReadyPublish {
		t.Errorf("stage = %s, want ready_publish after CMS failure", fresh.Stage)
	}
	if fresh.PublishedRef != "" {
		t.Error("published_reference must stay empty after CMS failure")
	}
	if len(env.audit.forEmail(rec.ID)) != 0 {
		t.Error("failed publish must not leave an audit entry")
	}
}

func TestPublishRequiresWordPressPermission(t *testing.T) {
	env := newTestEnv()
	rec := env.seed(model.StageReadyPublish)

	_, err := env.engine.Publish(context.Background(), viewerActor, rec.ID)
	var forbidden *ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("err = %v, want ForbiddenError", err)
	}
	if env.cms.calls != 0 {
		t.Error("CMS must not be called for a forbidden actor")
	}
}

func TestRejectFromEachActiveStage(t *testing.T) {
	for _, stage := range []model.WorkflowStage{
		model.StageReceived,
		model.StageAnalyzed,
		model.StageApprovedContent,
		model.StageReadyPublish,
	} {
		t.Run(string(stage), func(t *testing.T) {
			env := newTestEnv()
			rec := env.seed(stage)

			out, err := env.engine.Reject(context.Background(), editorActor, rec.ID, "not newsworthy")
			if err != nil {
				t.Fatalf("Reject from %s: %v", stage, err)
			}
			if out.Stage != model.StageRejected {
				t.Errorf("stage = %s, want rejected", out.Stage)
			}
			if out.UserFeedback == nil || out.UserFeedback.RejectionReason != "not newsworthy" {
				t.Errorf("feedback = %+v", out.UserFeedback)
			}
		})
	}
}

func TestRejectTerminalStagesBlocked(t *testing.T) {
	for _, stage := range []model.WorkflowStage{
		model.StagePublished,
		model.StageRejected,
		model.StageArchived,
	} {
		t.Run(string(stage), func(t *testing.T) {
			env := newTestEnv()
			rec := env.seed(stage)

			_, err := env.engine.Reject(context.Background(), editorActor, rec.ID, "too late")
			var invalid *InvalidTransitionError
			if !errors.As(err, &invalid) {
				t.Fatalf("err = %v, want InvalidTransitionError", err)
			}
		})
	}
}

func TestRejectRequiresReason(t *testing.T) {
	env := newTestEnv()
	rec := env.seed(model.StageAnalyzed)

	_, err := env.engine.Reject(context.Background(), editorActor, rec.ID, "")
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestArchiveAdminOnly(t *testing.T) {
	env := newTestEnv()
	rec := env.seed(model.StagePublished)

	if _, err := env.engine.Archive(context.Background(), editorActor, rec.ID); err == nil {
		t.Fatal("editor archive must fail")
	}

	out, err := env.engine.Archive(context.Background(), adminActor, rec.ID)
	if err != nil {
		t.Fatalf("admin Archive: %v", err)
	}
	if out.Stage != model.StageArchived {
		t.Errorf("stage = %s, want archived", out.Stage)
	}
	if out.AutoProcess {
		t.Error("archive must clear the auto-process flag")
	}
}

func TestArchiveAlreadyArchived(t *testing.T) {
	env := newTestEnv()
	rec := env.seed(model.StageArchived)

	_, err := env.engine.Archive(context.Background(), adminActor, rec.ID)
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidTransitionError", err)
	}
}

func TestConcurrentApproveSingleWinner(t *testing.T) {
	env := newTestEnv()
	rec := env.seed(model.StageAnalyzed)

	second := auth.Identity{UserID: "editor-2", Role: auth.RoleEditor}
	results := make(chan error, 2)
	var wg sync.WaitGroup
	for _, actor := range []auth.Identity{editorActor, second} {
		wg.Add(1)
		go func(a auth.Identity) {
			defer wg.Done()
			_, err := env.engine.ApproveContent(context.Background(), a, rec.ID, ApproveInput{Rating: 5})
			results <- err
		}(actor)
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		switch {
		case err == nil:
			wins++
		default:
			var invalid *InvalidTransitionError
			if !errors.As(err, &invalid) {
				t.Fatalf("unexpected error: %v", err)
			}
			conflicts++
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Fatalf("wins = %d, conflicts = %d, want exactly one of each", wins, conflicts)
	}
	if got := len(env.audit.forEmail(rec.ID)); got != 1 {
		t.Errorf("audit entries = %d, want 1", got)
	}
}

func TestUpdatePriorityKeepsStage(t *testing.T) {
	env := newTestEnv()
	rec := env.seed(model.StagePublished)

	out, err := env.engine.UpdatePriority(context.Background(), editorActor, rec.ID, model.PriorityHigh)
	if err != nil {
		t.Fatalf("UpdatePriority: %v", err)
	}
	if out.Priority != model.PriorityHigh {
		t.Errorf("priority = %d, want high", out.Priority)
	}
	if out.Stage != model.StagePublished {
		t.Errorf("stage = %s, priority change must not move the stage", out.Stage)
	}

	entries := env.audit.forEmail(rec.ID)
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	if entries[0].FromStage != nil || entries[0].ToStage != nil {
		t.Error("priority audit entry must carry no stage change")
	}
}

func TestAssignAdminOnly(t *testing.T) {
	env := newTestEnv()
	rec := env.seed(model.StageAnalyzed)

	if _, err := env.engine.Assign(context.Background(), editorActor, rec.ID, "editor-2"); err == nil {
		t.Fatal("editor assign must fail")
	}

	out, err := env.engine.Assign(context.Background(), adminActor, rec.ID, "editor-2")
	if err != nil {
		t.Fatalf("admin Assign: %v", err)
	}
	if out.AssignedTo != "editor-2" {
		t.Errorf("assigned_to = %q, want editor-2", out.AssignedTo)
	}
}

func TestOwnershipBlocksOtherEditors(t *testing.T) {
	env := newTestEnv()
	rec := env.seed(model.StageAnalyzed)
	rec.AssignedTo = "editor-2"
	env.store.put(rec)

	_, err := env.engine.ApproveContent(context.Background(), editorActor, rec.ID, ApproveInput{Rating: 5})
	var forbidden *ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("err = %v, want ForbiddenError", err)
	}

	// Admins are exempt from the ownership rule.
	if _, err := env.engine.ApproveContent(context.Background(), adminActor, rec.ID, ApproveInput{Rating: 5}); err != nil {
		t.Fatalf("admin ApproveContent: %v", err)
	}
}

func TestListScopesNonAdmins(t *testing.T) {
	env := newTestEnv()
	env.seed(model.StageReceived)

	if _, _, err := env.engine.List(context.Background(), editorActor, ListFilter{}); err != nil {
		t.Fatalf("List: %v", err)
	}
	if env.store.lastFilter.AccessibleBy == nil || *env.store.lastFilter.AccessibleBy != editorActor.UserID {
		t.Error("editor list must be scoped to own assignments")
	}

	if _, _, err := env.engine.List(context.Background(), adminActor, ListFilter{}); err != nil {
		t.Fatalf("List: %v", err)
	}
	if env.store.lastFilter.AccessibleBy != nil {
		t.Error("admin list must not be scoped")
	}
}

func TestListCapsLimit(t *testing.T) {
	env := newTestEnv()
	env.seed(model.StageReceived)

	if _, _, err := env.engine.List(context.Background(), adminActor, ListFilter{Limit: 10000}); err != nil {
		t.Fatalf("List: %v", err)
	}
	if env.store.lastFilter.Limit != 50 {
		t.Errorf("limit = %d, want default 50", env.store.lastFilter.Limit)
	}
}

func TestGetReturnsHistoryNewestFirst(t *testing.T) {
	env := newTestEnv()
	rec := env.seed(model.StageReceived)

	ctx := context.Background()
	if _, err := env.engine.Analyze(ctx, editorActor, rec.ID); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if _, err := env.engine.ApproveContent(ctx, editorActor, rec.ID, ApproveInput{Rating: 5}); err != nil {
		t.Fatalf("ApproveContent: %v", err)
	}

	_, history, err := env.engine.Get(ctx, editorActor, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Action != ActionApproveContent || history[1].Action != ActionAnalyze {
		t.Errorf("history order = [%s, %s], want newest first", history[0].Action, history[1].Action)
	}
}

func TestFullLifecycleAuditTrail(t *testing.T) {
	env := newTestEnv()
	rec := env.seed(model.StageReceived)
	ctx := context.Background()

	steps := []func() error{
		func() error { _, err := env.engine.Analyze(ctx, editorActor, rec.ID); return err },
		func() error {
			_, err := env.engine.ApproveContent(ctx, editorActor, rec.ID, ApproveInput{Rating: 5})
			return err
		},
		func() error { _, err := env.engine.PreparePublish(ctx, editorActor, rec.ID, PrepareInput{}); return err },
		func() error { _, err := env.engine.Publish(ctx, editorActor, rec.ID); return err },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	fresh, _ := env.store.Get(ctx, rec.ID)
	if fresh.Stage != model.StagePublished {
		t.Fatalf("final stage = %s, want published", fresh.Stage)
	}

	entries := env.audit.forEmail(rec.ID)
	if len(entries) != 4 {
		t.Fatalf("audit entries = %d, want 4", len(entries))
	}
	wantChain := []struct {
		action string
		from   model.WorkflowStage
		to     model.WorkflowStage
	}{
		{ActionAnalyze, model.StageReceived, model.StageAnalyzed},
		{ActionApproveContent, model.StageAnalyzed, model.StageApprovedContent},
		{ActionPreparePublish, model.StageApprovedContent, model.StageReadyPublish},
		{ActionPublish, model.StageReadyPublish, model.StagePublished},
	}
	for i, want := range wantChain {
		got := entries[i]
		if got.Action != want.action || *got.FromStage != want.from || *got.ToStage != want.to {
			t.Errorf("entry %d = %s %s->%s, want %s %s->%s",
				i, got.Action, *got.FromStage, *got.ToStage, want.action, want.from, want.to)
		}
	}
}

func TestStoreFailureSurfacesAsStoreError(t *testing.T) {
	env := newTestEnv()
	rec := env.seed(model.StageReceived)
	env.store.updateErr = fmt.Errorf("connection reset")

	_, err := env.engine.Analyze(context.Background(), editorActor, rec.ID)
	var storeErr *StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("err = %v, want StoreError", err)
	}
}
