package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"pressroom/internal/auth"
	"pressroom/internal/mq"
	"pressroom/internal/workflow"
)

// systemActor is the identity auto-processing runs under. It bypasses
// record ownership the same way a human admin would.
var systemActor = auth.Identity{UserID: "system", Role: auth.RoleAdmin}

// OnceGuard is the once-per-key gate; the redis deduper implements it.
type OnceGuard interface {
	AcquireOnce(ctx context.Context, handler, key string) bool
}

// EmailReceivedHandler consumes email.received events and triggers AI
// analysis for records flagged for auto-processing.
type EmailReceivedHandler struct {
	engine  *workflow.Engine
	deduper OnceGuard
	logger  *zap.Logger
}

func NewEmailReceivedHandler(engine *workflow.Engine, deduper OnceGuard, logger *zap.Logger) *EmailReceivedHandler {
	return &EmailReceivedHandler{engine: engine, deduper: deduper, logger: logger}
}

// Handle processes one event. Returning an error nacks the message.
func (h *EmailReceivedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var event mq.EmailReceivedEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		h.logger.Error("Dropping malformed email.received event", zap.Error(err))
		return nil
	}

	if !event.AutoProcess {
		return nil
	}

	if !h.deduper.AcquireOnce(ctx, "auto_analyze", event.EmailID) {
		h.logger.Info("Skipping already-processed event", zap.String("email_id", event.EmailID))
		return nil
	}

	_, err := h.engine.Analyze(ctx, systemActor, event.EmailID)

	// A stage mismatch means someone already moved the record on; that is
	// a successful no-op from the queue's point of view.
	var invalid *workflow.InvalidTransitionError
	if errors.As(err, &invalid) {
		h.logger.Info("Record already past received stage, skipping auto-analysis",
			zap.String("email_id", event.EmailID),
			zap.String("current_stage", string(invalid.Current)))
		return nil
	}
	if errors.Is(err, workflow.ErrNotFound) {
		h.logger.Warn("email.received event for unknown record", zap.String("email_id", event.EmailID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("auto-analysis of %s failed: %w", event.EmailID, err)
	}

	h.logger.Info("Auto-analysis completed", zap.String("email_id", event.EmailID))
	return nil
}
