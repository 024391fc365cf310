package store

import (
	"context"
	"fmt"

	"github.com/keydesk/keydesk/internal/model"
)

// AppendAudit writes one audit entry. Callers treat failures as
// non-fatal; the store just reports them.
func (s *Store) AppendAudit(ctx context.Context, e *model.AuditEntry) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO audit_log (id, occurred_at, actor, operation, resource_type, resource_id, detail)
		VALUES (:id, :occurred_at, :actor, :operation, :resource_type, :resource_id, :detail)`, e)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// ListAudit returns the most recent audit entries, newest first.
func (s *Store) ListAudit(ctx context.Context, limit, offset int) ([]model.AuditEntry, int, error) {
	entries := make([]model.AuditEntry, 0, limit)
	err := s.db.SelectContext(ctx, &entries, s.rebind(`
		SELECT id, occurred_at, actor, operation, resource_type, resource_id, detail
		FROM audit_log ORDER BY occurred_at DESC, id DESC LIMIT ? OFFSET ?`),
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM audit_log"); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}
	return entries, total, nil
}
