// Package audit implements the append-only audit log writer described by
// §4.G: every successful patient write produces exactly one immutable
// record carrying a before/after snapshot pair, queryable newest-first and
// capped at a configurable maximum.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelattice/mpi/internal/mpierr"
	"github.com/carelattice/mpi/internal/platform/db"
)

// Action is the closed set of audit actions.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	ActionMerge  Action = "MERGE"
	ActionLink   Action = "LINK"
	ActionUnlink Action = "UNLINK"
)

// ActorContext carries the caller identity an operation is attributed to.
// Absence of UserID defaults to "system"; SourceAddress and UserAgent are
// optional.
type ActorContext struct {
	UserID        string
	SourceAddress *string
	UserAgent     *string
}

// DefaultActorContext is used whenever no actor context provider supplies
// one.
func DefaultActorContext() ActorContext {
	return ActorContext{UserID: "system"}
}

// Record is one immutable audit entry.
type Record struct {
	ID         uuid.UUID
	Timestamp  time.Time
	Actor      ActorContext
	Action     Action
	EntityType string
	EntityID   uuid.UUID
	Before     json.RawMessage // nil if not applicable
	After      json.RawMessage // nil if not applicable
}

// Writer is the audit log's public contract.
type Writer interface {
	Log(ctx context.Context, action Action, entityType string, entityID uuid.UUID, before, after json.RawMessage, actor ActorContext) error
	LogsForEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]Record, error)
	Recent(ctx context.Context, limit int) ([]Record, error)
	ByUser(ctx context.Context, userID string, limit int) ([]Record, error)
}

// DefaultQueryCap is the hard ceiling every query method enforces
// regardless of the limit requested.
const DefaultQueryCap = 500

// PostgresWriter is the default Writer implementation, appending to an
// audit_record table that is never updated or deleted by the core.
type PostgresWriter struct {
	pool     *pgxpool.Pool
	queryCap int
}

// NewPostgresWriter constructs a PostgresWriter. queryCap bounds every
// query method; values <= 0 or greater than DefaultQueryCap fall back to
// DefaultQueryCap.
func NewPostgresWriter(pool *pgxpool.Pool, queryCap int) *PostgresWriter {
	if queryCap <= 0 || queryCap > DefaultQueryCap {
		queryCap = DefaultQueryCap
	}
	return &PostgresWriter{pool: pool, queryCap: queryCap}
}

func (w *PostgresWriter) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, w.pool)
}

func (w *PostgresWriter) cap(limit int) int {
	if limit <= 0 || limit > w.queryCap {
		return w.queryCap
	}
	return limit
}

func (w *PostgresWriter) Log(ctx context.Context, action Action, entityType string, entityID uuid.UUID, before, after json.RawMessage, actor ActorContext) error {
	if actor.UserID == "" {
		actor.UserID = "system"
	}
	_, err := w.conn(ctx).Exec(ctx, `
		INSERT INTO audit_record (id, ts, actor_user_id, actor_source_address, actor_user_agent, action, entity_type, entity_id, before_snapshot, after_snapshot)
		VALUES ($1, now(), $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.New(), actor.UserID, actor.SourceAddress, actor.UserAgent, action, entityType, entityID, before, after)
	if err != nil {
		return mpierr.Audit("append audit record", err)
	}
	return nil
}

const selectRecordCols = `id, ts, actor_user_id, actor_source_address, actor_user_agent, action, entity_type, entity_id, before_snapshot, after_snapshot`

func (w *PostgresWriter) LogsForEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]Record, error) {
	rows, err := w.conn(ctx).Query(ctx, `
		SELECT `+selectRecordCols+` FROM audit_record
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY ts DESC LIMIT $3`, entityType, entityID, w.cap(limit))
	if err != nil {
		return nil, mpierr.Audit("query logs for entity", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (w *PostgresWriter) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := w.conn(ctx).Query(ctx, `
		SELECT `+selectRecordCols+` FROM audit_record
		ORDER BY ts DESC LIMIT $1`, w.cap(limit))
	if err != nil {
		return nil, mpierr.Audit("query recent logs", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (w *PostgresWriter) ByUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	rows, err := w.conn(ctx).Query(ctx, `
		SELECT `+selectRecordCols+` FROM audit_record
		WHERE actor_user_id = $1
		ORDER BY ts DESC LIMIT $2`, userID, w.cap(limit))
	if err != nil {
		return nil, mpierr.Audit("query logs by user", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

type rowScanner interface {
	Next() bool
	Scan(...interface{}) error
	Err() error
}

func scanRecords(rows rowScanner) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var r Record
		var actor ActorContext
		if err := rows.Scan(&r.ID, &r.Timestamp, &actor.UserID, &actor.SourceAddress, &actor.UserAgent,
			&r.Action, &r.EntityType, &r.EntityID, &r.Before, &r.After); err != nil {
			return nil, mpierr.Audit("scan audit record", err)
		}
		r.Actor = actor
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, mpierr.Audit("iterate audit records", err)
	}
	return records, nil
}
