package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/caremesh/consentd/pkg/logger"
	"github.com/caremesh/consentd/pkg/types"
)

// Repository persists the off-chain mirror of the audit trail.
// Entries only ever get inserted; there is no update or delete.
type Repository interface {
	Insert(ctx context.Context, entry *types.AuditEntry) error
	MarkMirrored(ctx context.Context, entryID string) error
	ListByActor(ctx context.Context, actorID string, limit int) ([]*types.AuditEntry, error)
	ListByAction(ctx context.Context, action string, limit int) ([]*types.AuditEntry, error)
}

// SQLRepository implements Repository on PostgreSQL
type SQLRepository struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewRepository creates a new audit repository
func NewRepository(db *sql.DB, log *logger.Logger) *SQLRepository {
	return &SQLRepository{
		db:     db,
		logger: log,
	}
}

// Insert appends an audit entry to the off-chain mirror
func (r *SQLRepository) Insert(ctx context.Context, entry *types.AuditEntry) error {
	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	query := `
		INSERT INTO audit_entries (id, actor_id, target_id, action, resource_id, timestamp, details, mirrored)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.ActorID,
		entry.TargetID,
		entry.Action,
		nullable(entry.ResourceID),
		entry.Timestamp,
		detailsJSON,
		entry.Mirrored,
	)

	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	return nil
}

// MarkMirrored flags an entry whose ledger copy has been confirmed.
// The mirrored flag is the only column an entry ever has updated.
func (r *SQLRepository) MarkMirrored(ctx context.Context, entryID string) error {
	query := `UPDATE audit_entries SET mirrored = TRUE WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, entryID); err != nil {
		return fmt.Errorf("failed to mark audit entry mirrored: %w", err)
	}

	return nil
}

// ListByActor retrieves entries for an actor, most recent first
func (r *SQLRepository) ListByActor(ctx context.Context, actorID string, limit int) ([]*types.AuditEntry, error) {
	query := `
		SELECT id, actor_id, target_id, action, resource_id, timestamp, details, mirrored
		FROM audit_entries
		WHERE actor_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, actorID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries by actor: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListByAction retrieves entries for an action tag, most recent first
func (r *SQLRepository) ListByAction(ctx context.Context, action string, limit int) ([]*types.AuditEntry, error) {
	query := `
		SELECT id, actor_id, target_id, action, resource_id, timestamp, details, mirrored
		FROM audit_entries
		WHERE action = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, action, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries by action: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]*types.AuditEntry, error) {
	var entries []*types.AuditEntry
	for rows.Next() {
		var entry types.AuditEntry
		var resourceID sql.NullString
		var detailsJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.ActorID,
			&entry.TargetID,
			&entry.Action,
			&resourceID,
			&entry.Timestamp,
			&detailsJSON,
			&entry.Mirrored,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry row: %w", err)
		}

		entry.ResourceID = resourceID.String

		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &entry.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit details: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entry rows: %w", err)
	}

	return entries, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
