package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"pressroom/internal/model"
	"pressroom/internal/workflow"
	"pressroom/pkg/metrics"
)

const emailColumns = `
        id, fingerprint, sender, subject, body_text, received_at,
        stage, priority, assigned_to, auto_process,
        ai_analysis, user_feedback, published_reference,
        created_at, updated_at`

// EmailRepository is the pgx implementation of the engine's content store.
type EmailRepository struct {
	db *pgxpool.Pool
}

func NewEmailRepository(db *pgxpool.Pool) *EmailRepository {
	return &EmailRepository{db: db}
}

func (r *EmailRepository) Get(ctx context.Context, id string) (*model.EmailRecord, error) {
	query := `SELECT ` + emailColumns + ` FROM email_records WHERE id = $1`
	rec, err := scanEmail(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, workflow.ErrNotFound
	}
	return rec, err
}

func (r *EmailRepository) FindByFingerprint(ctx context.Context, fingerprint string) (*model.EmailRecord, error) {
	query := `SELECT ` + emailColumns + ` FROM email_records WHERE fingerprint = $1`
	rec, err := scanEmail(r.db.QueryRow(ctx, query, fingerprint))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, workflow.ErrNotFound
	}
	return rec, err
}

func (r *EmailRepository) Insert(ctx context.Context, e *model.EmailRecord) (*model.EmailRecord, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("insert", "email_records", time.Since(start)) }()

	analysis, feedback, err := marshalPayloads(e.AIAnalysis, e.UserFeedback)
	if err != nil {
		return nil, err
	}

	query := `
        INSERT INTO email_records (
            id, fingerprint, sender, subject, body_text, received_at,
            stage, priority, assigned_to, auto_process,
            ai_analysis, user_feedback, published_reference,
            created_at, updated_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
        RETURNING ` + emailColumns
	rec, err := scanEmail(r.db.QueryRow(ctx, query,
		e.ID, e.Fingerprint, e.Sender, e.Subject, e.BodyText, e.ReceivedAt,
		e.Stage, e.Priority, e.AssignedTo, e.AutoProcess,
		analysis, feedback, e.PublishedRef,
	))
	if isUniqueViolation(err) {
		return nil, workflow.ErrDuplicateFingerprint
	}
	return rec, err
}

// UpdateStageAndPayload is the compare-and-swap behind every stage change:
// the row is only touched while its stage still equals expected, so of two
// racing actions exactly one sees a row.
func (r *EmailRepository) UpdateStageAndPayload(ctx context.Context, id string, expected, next model.WorkflowStage, patch workflow.StagePatch) (*model.EmailRecord, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("update_stage", "email_records", time.Since(start)) }()

	sets := []string{"stage = $3", "updated_at = NOW()"}
	args := []any{id, expected, next}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.AIAnalysis != nil {
		body, err := json.Marshal(patch.AIAnalysis)
		if err != nil {
			return nil, err
		}
		add("ai_analysis", body)
	}
	if patch.UserFeedback != nil {
		body, err := json.Marshal(patch.UserFeedback)
		if err != nil {
			return nil, err
		}
		add("user_feedback", body)
	}
	if patch.PublishedRef != nil {
		add("published_reference", *patch.PublishedRef)
	}
	if patch.AssignedTo != nil {
		add("assigned_to", *patch.AssignedTo)
	}
	if patch.AutoProcess != nil {
		add("auto_process", *patch.AutoProcess)
	}

	query := `
        UPDATE email_records
        SET ` + strings.Join(sets, ", ") + `
        WHERE id = $1 AND stage = $2
        RETURNING ` + emailColumns
	rec, err := scanEmail(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the record is gone or another action moved it first.
		if _, gerr := r.Get(ctx, id); errors.Is(gerr, workflow.ErrNotFound) {
			return nil, workflow.ErrNotFound
		}
		return nil, workflow.ErrStageConflict
	}
	return rec, err
}

func (r *EmailRepository) UpdatePriority(ctx context.Context, id string, p model.Priority) (*model.EmailRecord, error) {
	query := `
        UPDATE email_records
        SET priority = $2, updated_at = NOW()
        WHERE id = $1
        RETURNING ` + emailColumns
	rec, err := scanEmail(r.db.QueryRow(ctx, query, id, p))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, workflow.ErrNotFound
	}
	return rec, err
}

func (r *EmailRepository) UpdateAssignee(ctx context.Context, id, assignee string) (*model.EmailRecord, error) {
	query := `
        UPDATE email_records
        SET assigned_to = $2, updated_at = NOW()
        WHERE id = $1
        RETURNING ` + emailColumns
	rec, err := scanEmail(r.db.QueryRow(ctx, query, id, assignee))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, workflow.ErrNotFound
	}
	return rec, err
}

func (r *EmailRepository) List(ctx context.Context, f workflow.ListFilter) ([]model.EmailRecord, int, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("list", "email_records", time.Since(start)) }()

	where := []string{"TRUE"}
	args := []any{}

	addCond := func(cond string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.Stage != nil {
		addCond("stage = $%d", *f.Stage)
	}
	if f.Priority != nil {
		addCond("priority = $%d", *f.Priority)
	}
	if f.AssignedTo != nil {
		addCond("assigned_to = $%d", *f.AssignedTo)
	}
	if f.AutoProcess != nil {
		addCond("auto_process = $%d", *f.AutoProcess)
	}
	if f.AccessibleBy != nil {
		addCond("(assigned_to = $%d OR assigned_to = '')", *f.AccessibleBy)
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM email_records WHERE ` + whereClause
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`
        SELECT `+emailColumns+`
        FROM email_records
        WHERE %s
        ORDER BY priority ASC, received_at DESC
        LIMIT $%d OFFSET $%d`, whereClause, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records := []model.EmailRecord{}
	for rows.Next() {
		rec, err := scanEmail(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, *rec)
	}
	return records, total, rows.Err()
}

func (r *EmailRepository) CountByStage(ctx context.Context) (map[model.WorkflowStage]int, error) {
	rows, err := r.db.Query(ctx, `SELECT stage, COUNT(*) FROM email_records GROUP BY stage`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.WorkflowStage]int)
	for rows.Next() {
		var stage model.WorkflowStage
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, err
		}
		counts[stage] = n
	}
	return counts, rows.Err()
}

func scanEmail(row pgx.Row) (*model.EmailRecord, error) {
	var e model.EmailRecord
	var analysis, feedback []byte

	err := row.Scan(
		&e.ID,
		&e.Fingerprint,
		&e.Sender,
		&e.Subject,
		&e.BodyText,
		&e.ReceivedAt,
		&e.Stage,
		&e.Priority,
		&e.AssignedTo,
		&e.AutoProcess,
		&analysis,
		&feedback,
		&e.PublishedRef,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(analysis) > 0 {
		e.AIAnalysis = &model.AIAnalysis{}
		if err := json.Unmarshal(analysis, e.AIAnalysis); err != nil {
			return nil, fmt.Errorf("failed to decode ai_analysis: %w", err)
		}
	}
	if len(feedback) > 0 {
		e.UserFeedback = &model.UserFeedback{}
		if err := json.Unmarshal(feedback, e.UserFeedback); err != nil {
			return nil, fmt.Errorf("failed to decode user_feedback: %w", err)
		}
	}
	return &e, nil
}

func marshalPayloads(analysis *model.AIAnalysis, feedback *model.UserFeedback) ([]byte, []byte, error) {
	var a, f []byte
	var err error
	if analysis != nil {
		if a, err = json.Marshal(analysis); err != nil {
			return nil, nil, err
		}
	}
	if feedback != nil {
		if f, err = json.Marshal(feedback); err != nil {
			return nil, nil, err
		}
	}
	return a, f, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
