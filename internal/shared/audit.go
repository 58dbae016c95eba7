package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	EntityType string
	EntityID   string
	Action     string
	UserID     *int64
	Details    map[string]any
	At         time.Time
}

// AuditPort records ledger events for compliance. Implementations must be
// best-effort: a failed write never blocks the business operation.
type AuditPort interface {
	Record(ctx context.Context, log AuditLog) error
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool, logger *slog.Logger) *AuditLogger {
	return &AuditLogger{pool: pool, logger: logger}
}

// Record persists the log entry. Failures are reported to the internal
// logger and returned, but callers are expected to ignore the error.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.EntityType == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity_type/entity_id")
	}
	detailsJSON, err := json.Marshal(log.Details)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (entity_type, entity_id, action, user_id, details, created_at) VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		log.EntityType, log.EntityID, log.Action, log.UserID, detailsJSON, log.At)
	if err != nil && l.logger != nil {
		l.logger.Warn("audit write failed",
			slog.String("entity_type", log.EntityType),
			slog.String("entity_id", log.EntityID),
			slog.String("action", log.Action),
			slog.Any("error", err))
	}
	return err
}
