package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAuditIncomplete rejects entries without action, entity or entity id.
var ErrAuditIncomplete = errors.New("audit log requires action, entity and entity_id")

// AuditLog is one row of audit_logs.
type AuditLog struct {
	Actor    string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// Auditor records audit entries. Services depend on this port.
type Auditor interface {
	Record(ctx context.Context, log AuditLog) error
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type actorKey struct{}

// WithActor tags ctx with the actor audit entries should name when they carry none.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor on ctx, or "system".
func ActorFrom(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return "system"
}

// AuditLogger writes entries through the pool.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a pool-backed Auditor.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record implements Auditor.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	return RecordAudit(ctx, l.pool, log)
}

// RecordAudit inserts log through a pool or a transaction.
func RecordAudit(ctx context.Context, db execer, log AuditLog) error {
	row, err := prepareAudit(ctx, log)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(row.Meta)
	if err != nil {
		return fmt.Errorf("audit meta: %w", err)
	}
	_, err = db.Exec(ctx,
		`INSERT INTO audit_logs (actor, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		row.Actor, row.Action, row.Entity, row.EntityID, meta, row.At)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func prepareAudit(ctx context.Context, log AuditLog) (AuditLog, error) {
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return AuditLog{}, ErrAuditIncomplete
	}
	if log.Actor == "" {
		log.Actor = ActorFrom(ctx)
	}
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	if log.Meta == nil {
		log.Meta = map[string]any{}
	}
	return log, nil
}

// NopAuditor discards entries.
type NopAuditor struct{}

// Record implements Auditor.
func (NopAuditor) Record(context.Context, AuditLog) error { return nil }
