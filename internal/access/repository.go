package access

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/caremesh/consentd/pkg/logger"
	"github.com/caremesh/consentd/pkg/types"
)

// OverrideRepository persists emergency overrides. One override row
// exists per (subject, accessor) pair; re-granting reactivates it.
type OverrideRepository interface {
	Upsert(ctx context.Context, override *types.EmergencyOverride) (*types.EmergencyOverride, error)
	IsActive(ctx context.Context, subjectID, accessorID string) (bool, error)
	Deactivate(ctx context.Context, subjectID, accessorID string) (bool, error)
	ListActive(ctx context.Context) ([]*types.EmergencyOverride, error)
}

// SQLOverrideRepository implements OverrideRepository on PostgreSQL
type SQLOverrideRepository struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewOverrideRepository creates a new emergency override repository
func NewOverrideRepository(db *sql.DB, log *logger.Logger) *SQLOverrideRepository {
	return &SQLOverrideRepository{
		db:     db,
		logger: log,
	}
}

// Upsert activates an override for the pair, creating the row on first
// use and reactivating it with the new reason afterwards.
func (r *SQLOverrideRepository) Upsert(ctx context.Context, override *types.EmergencyOverride) (*types.EmergencyOverride, error) {
	query := `
		INSERT INTO emergency_overrides (id, subject_id, accessor_id, reason, granted_by, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT ON CONSTRAINT emergency_overrides_subject_accessor_key DO UPDATE
		SET reason = EXCLUDED.reason,
			granted_by = EXCLUDED.granted_by,
			active = TRUE,
			updated_at = NOW()
		RETURNING id, subject_id, accessor_id, reason, granted_by, active, created_at, updated_at`

	row := r.db.QueryRowContext(ctx, query,
		override.ID,
		override.SubjectID,
		override.AccessorID,
		override.Reason,
		override.GrantedBy,
	)

	stored, err := scanOverride(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert override: %w", err)
	}

	return stored, nil
}

// IsActive reports whether an active override exists for the pair
func (r *SQLOverrideRepository) IsActive(ctx context.Context, subjectID, accessorID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM emergency_overrides
			WHERE subject_id = $1 AND accessor_id = $2 AND active = TRUE
		)`

	var active bool
	if err := r.db.QueryRowContext(ctx, query, subjectID, accessorID).Scan(&active); err != nil {
		return false, fmt.Errorf("failed to check override: %w", err)
	}

	return active, nil
}

// Deactivate lifts an active override. Returns false when no active
// override exists for the pair.
func (r *SQLOverrideRepository) Deactivate(ctx context.Context, subjectID, accessorID string) (bool, error) {
	query := `
		UPDATE emergency_overrides
		SET active = FALSE, updated_at = NOW()
		WHERE subject_id = $1 AND accessor_id = $2 AND active = TRUE`

	result, err := r.db.ExecContext(ctx, query, subjectID, accessorID)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate override: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// ListActive returns all currently active overrides
func (r *SQLOverrideRepository) ListActive(ctx context.Context) ([]*types.EmergencyOverride, error) {
	query := `
		SELECT id, subject_id, accessor_id, reason, granted_by, active, created_at, updated_at
		FROM emergency_overrides
		WHERE active = TRUE
		ORDER BY updated_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	defer rows.Close()

	var overrides []*types.EmergencyOverride
	for rows.Next() {
		override, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		overrides = append(overrides, override)
	}

	return overrides, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOverride(row rowScanner) (*types.EmergencyOverride, error) {
	var override types.EmergencyOverride

	err := row.Scan(
		&override.ID,
		&override.SubjectID,
		&override.AccessorID,
		&override.Reason,
		&override.GrantedBy,
		&override.Active,
		&override.CreatedAt,
		&override.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &override, nil
}
