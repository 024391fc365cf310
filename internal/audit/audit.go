// Package audit appends structured log entries after mutations. The
// recorder is fire-and-forget: append failures are logged and swallowed so
// that a broken audit trail never fails the request that triggered it.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/keydesk/keydesk/internal/model"
	"github.com/keydesk/keydesk/internal/store"
)

type Recorder struct {
	store *store.Store
	log   *slog.Logger
}

func NewRecorder(st *store.Store, log *slog.Logger) *Recorder {
	return &Recorder{store: st, log: log}
}

// Record appends one audit entry for a completed mutation.
func (r *Recorder) Record(ctx context.Context, actor, operation, resourceType, resourceID, detail string) {
	if r == nil || r.store == nil {
		return
	}
	id, err := uuid.NewV7()
	if err != nil {
		r.log.Warn("audit id generation failed", "error", err)
		return
	}
	entry := &model.AuditEntry{
		ID:           id.String(),
		OccurredAt:   time.Now().UTC(),
		Actor:        actor,
		Operation:    operation,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Detail:       detail,
	}
	if err := r.store.AppendAudit(ctx, entry); err != nil {
		r.log.Warn("audit append failed",
			"operation", operation,
			"resource_type", resourceType,
			"resource_id", resourceID,
			"error", err)
	}
}

// List returns recent audit entries, newest first.
func (r *Recorder) List(ctx context.Context, limit, offset int) ([]model.AuditEntry, int, error) {
	return r.store.ListAudit(ctx, limit, offset)
}
