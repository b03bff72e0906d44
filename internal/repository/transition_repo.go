package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"pressroom/internal/model"
)

// TransitionRepository is the append-only audit log. There is deliberately
// no update or delete here.
type TransitionRepository struct {
	db *pgxpool.Pool
}

func NewTransitionRepository(db *pgxpool.Pool) *TransitionRepository {
	return &TransitionRepository{db: db}
}

func (r *TransitionRepository) Append(ctx context.Context, t *model.WorkflowTransition) error {
	var metadata []byte
	if t.Metadata != nil {
		body, err := json.Marshal(t.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal transition metadata: %w", err)
		}
		metadata = body
	}

	query := `
        INSERT INTO workflow_transitions (email_id, actor_id, action, from_stage, to_stage, notes, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id
    `
	return r.db.QueryRow(ctx, query,
		t.EmailID, t.ActorID, t.Action, t.FromStage, t.ToStage, t.Notes, metadata, t.CreatedAt,
	).Scan(&t.ID)
}

func (r *TransitionRepository) ListForEmail(ctx context.Context, emailID string, newestFirst bool) ([]model.WorkflowTransition, error) {
	order := "ASC"
	if newestFirst {
		order = "DESC"
	}
	query := `
        SELECT id, email_id, actor_id, action, from_stage, to_stage, notes, metadata, created_at
        FROM workflow_transitions
        WHERE email_id = $1
        ORDER BY created_at ` + order + `, id ` + order

	rows, err := r.db.Query(ctx, query, emailID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transitions := []model.WorkflowTransition{}
	for rows.Next() {
		var t model.WorkflowTransition
		var notes *string
		var metadata []byte
		if err := rows.Scan(&t.ID, &t.EmailID, &t.ActorID, &t.Action, &t.FromStage, &t.ToStage, &notes, &metadata, &t.CreatedAt); err != nil {
			return nil, err
		}
		if notes != nil {
			t.Notes = *notes
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode transition metadata: %w", err)
			}
		}
		transitions = append(transitions, t)
	}
	return transitions, rows.Err()
}
