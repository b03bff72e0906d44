package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pressroom/internal/model"
	"pressroom/internal/mq"
	"pressroom/internal/workflow"
	"pressroom/pkg/metrics"
)

// Store is the slice of the content store the dedup gate needs.
type Store interface {
	FindByFingerprint(ctx context.Context, fingerprint string) (*model.EmailRecord, error)
	Insert(ctx context.Context, rec *model.EmailRecord) (*model.EmailRecord, error)
}

// EventSink records domain events for asynchronous publication. The outbox
// repository implements it.
type EventSink interface {
	Enqueue(ctx context.Context, routingKey string, payload any) error
}

type InboundEmail struct {
	Sender      string
	Subject     string
	Body        string
	ReceivedAt  time.Time
	AutoProcess bool
}

// Service is the deduplication gate: first sight of a fingerprint creates a
// record at the received stage, everything after returns the existing one.
type Service struct {
	store  Store
	events EventSink
	logger *zap.Logger
}

func NewService(store Store, events EventSink, logger *zap.Logger) *Service {
	return &Service{store: store, events: events, logger: logger}
}

// Ingest returns the record for the email and whether it was newly created.
// The duplicate path performs no writes; the new path performs exactly one
// insert plus one outbox event.
func (s *Service) Ingest(ctx context.Context, in InboundEmail) (*model.EmailRecord, bool, error) {
	if in.Sender == "" {
		return nil, false, &workflow.ValidationError{Field: "sender", Reason: "required"}
	}
	if in.Subject == "" && in.Body == "" {
		return nil, false, &workflow.ValidationError{Field: "subject", Reason: "subject or body required"}
	}

	fp := Fingerprint(in.Sender, in.Subject, in.Body)

	existing, err := s.store.FindByFingerprint(ctx, fp)
	if err != nil && !errors.Is(err, workflow.ErrNotFound) {
		metrics.RecordIngest("error")
		return nil, false, &workflow.StoreError{Op: "find_by_fingerprint", Err: err}
	}
	if existing != nil {
		metrics.RecordIngest("duplicate")
		s.logger.Info("Duplicate email ignored",
			zap.String("fingerprint", fp),
			zap.String("email_id", existing.ID),
		)
		return existing, false, nil
	}

	receivedAt := in.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	rec := &model.EmailRecord{
		ID:          uuid.NewString(),
		Fingerprint: fp,
		Sender:      in.Sender,
		Subject:     in.Subject,
		BodyText:    in.Body,
		ReceivedAt:  receivedAt,
		Stage:       model.StageReceived,
		Priority:    model.PriorityMedium,
		AutoProcess: in.AutoProcess,
	}

	created, err := s.store.Insert(ctx, rec)
	if errors.Is(err, workflow.ErrDuplicateFingerprint) {
		// Lost a concurrent ingest race; the winner's record is the truth.
		existing, ferr := s.store.FindByFingerprint(ctx, fp)
		if ferr != nil {
			return nil, false, &workflow.StoreError{Op: "find_by_fingerprint", Err: ferr}
		}
		metrics.RecordIngest("duplicate")
		return existing, false, nil
	}
	if err != nil {
		metrics.RecordIngest("error")
		return nil, false, &workflow.StoreError{Op: "insert", Err: err}
	}

	if s.events != nil {
		event := mq.EmailReceivedEvent{
			EmailID:     created.ID,
			Fingerprint: created.Fingerprint,
			Sender:      created.Sender,
			Subject:     created.Subject,
			AutoProcess: created.AutoProcess,
			ReceivedAt:  created.ReceivedAt,
		}
		if err := s.events.Enqueue(ctx, mq.RoutingKeyEmailReceived, event); err != nil {
			// The record exists; the event can be replayed from the outbox
			// tooling, so ingestion still succeeds.
			s.logger.Error("Failed to enqueue email.received event",
				zap.String("email_id", created.ID),
				zap.Error(err),
			)
		}
	}

	metrics.RecordIngest("new")
	s.logger.Info("Email ingested",
		zap.String("email_id", created.ID),
		zap.String("sender", created.Sender),
		zap.String("fingerprint", fp),
	)
	return created, true, nil
}
