package consent

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/caremesh/consentd/pkg/logger"
	"github.com/caremesh/consentd/pkg/types"
)

// Repository persists consent records. All transition writes are
// conditional updates keyed on the current status so a grant and a
// concurrent revoke on the same pair can never both apply.
type Repository interface {
	GetByPair(ctx context.Context, subjectID, accessorID string) (*types.Consent, error)
	Insert(ctx context.Context, consent *types.Consent) error
	ResetToPending(ctx context.Context, subjectID, accessorID, message string, scope types.ConsentScope) (bool, error)
	MarkGranted(ctx context.Context, subjectID, accessorID string, scope types.ConsentScope, responseMessage string) (bool, error)
	MarkRevoked(ctx context.Context, subjectID, accessorID, responseMessage string) (bool, error)
	StampGrantMirror(ctx context.Context, subjectID, accessorID, txID string, block uint64, at time.Time) error
	StampRevokeMirror(ctx context.Context, subjectID, accessorID, txID string, block uint64, at time.Time) error
}

// SQLRepository implements Repository on PostgreSQL
type SQLRepository struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewRepository creates a new consent repository
func NewRepository(db *sql.DB, log *logger.Logger) *SQLRepository {
	return &SQLRepository{
		db:     db,
		logger: log,
	}
}

const consentColumns = `
	id, subject_id, accessor_id, status, scope, request_message, response_message,
	grant_tx_id, grant_block, grant_mirrored_at,
	revoke_tx_id, revoke_block, revoke_mirrored_at,
	created_at, updated_at`

// GetByPair retrieves the single consent record for a pair
func (r *SQLRepository) GetByPair(ctx context.Context, subjectID, accessorID string) (*types.Consent, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM consents
		WHERE subject_id = $1 AND accessor_id = $2`, consentColumns)

	row := r.db.QueryRowContext(ctx, query, subjectID, accessorID)
	consent, err := scanConsent(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(types.ErrCodeNotFound, "no consent record for pair")
		}
		return nil, fmt.Errorf("failed to get consent: %w", err)
	}

	return consent, nil
}

// Insert creates a new pending consent record. The unique constraint
// on (subject_id, accessor_id) turns a racing duplicate into Conflict.
func (r *SQLRepository) Insert(ctx context.Context, consent *types.Consent) error {
	scopeJSON, err := json.Marshal(consent.Scope)
	if err != nil {
		return fmt.Errorf("failed to marshal scope: %w", err)
	}

	query := `
		INSERT INTO consents (id, subject_id, accessor_id, status, scope, request_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.db.ExecContext(ctx, query,
		consent.ID,
		consent.SubjectID,
		consent.AccessorID,
		consent.Status,
		scopeJSON,
		consent.RequestMessage,
		consent.CreatedAt,
		consent.UpdatedAt,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return types.NewConflictError(types.ErrCodeConflict, "consent record already exists for pair")
		}
		return fmt.Errorf("failed to insert consent: %w", err)
	}

	return nil
}

// ResetToPending re-opens a revoked consent in place with the new
// request message and scope. Returns false when the record is not in
// revoked status anymore.
func (r *SQLRepository) ResetToPending(ctx context.Context, subjectID, accessorID, message string, scope types.ConsentScope) (bool, error) {
	scopeJSON, err := json.Marshal(scope)
	if err != nil {
		return false, fmt.Errorf("failed to marshal scope: %w", err)
	}

	query := `
		UPDATE consents
		SET status = 'pending', scope = $1, request_message = $2, response_message = NULL,
			grant_tx_id = NULL, grant_block = NULL, grant_mirrored_at = NULL,
			revoke_tx_id = NULL, revoke_block = NULL, revoke_mirrored_at = NULL,
			updated_at = NOW()
		WHERE subject_id = $3 AND accessor_id = $4 AND status = 'revoked'`

	return r.conditionalUpdate(ctx, query, scopeJSON, message, subjectID, accessorID)
}

// MarkGranted transitions pending -> granted. Returns false when the
// record is not pending, leaving it untouched.
func (r *SQLRepository) MarkGranted(ctx context.Context, subjectID, accessorID string, scope types.ConsentScope, responseMessage string) (bool, error) {
	scopeJSON, err := json.Marshal(scope)
	if err != nil {
		return false, fmt.Errorf("failed to marshal scope: %w", err)
	}

	query := `
		UPDATE consents
		SET status = 'granted', scope = $1, response_message = $2, updated_at = NOW()
		WHERE subject_id = $3 AND accessor_id = $4 AND status = 'pending'`

	return r.conditionalUpdate(ctx, query, scopeJSON, responseMessage, subjectID, accessorID)
}

// MarkRevoked transitions granted -> revoked. Returns false when the
// record is not granted, leaving it untouched.
func (r *SQLRepository) MarkRevoked(ctx context.Context, subjectID, accessorID, responseMessage string) (bool, error) {
	query := `
		UPDATE consents
		SET status = 'revoked', response_message = $1, updated_at = NOW()
		WHERE subject_id = $2 AND accessor_id = $3 AND status = 'granted'`

	result, err := r.db.ExecContext(ctx, query, responseMessage, subjectID, accessorID)
	if err != nil {
		return false, fmt.Errorf("failed to mark consent revoked: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// StampGrantMirror records the on-chain reference of a grant
func (r *SQLRepository) StampGrantMirror(ctx context.Context, subjectID, accessorID, txID string, block uint64, at time.Time) error {
	query := `
		UPDATE consents
		SET grant_tx_id = $1, grant_block = $2, grant_mirrored_at = $3, updated_at = NOW()
		WHERE subject_id = $4 AND accessor_id = $5`

	if _, err := r.db.ExecContext(ctx, query, txID, block, at, subjectID, accessorID); err != nil {
		return fmt.Errorf("failed to stamp grant mirror: %w", err)
	}
	return nil
}

// StampRevokeMirror records the on-chain reference of a revocation
func (r *SQLRepository) StampRevokeMirror(ctx context.Context, subjectID, accessorID, txID string, block uint64, at time.Time) error {
	query := `
		UPDATE consents
		SET revoke_tx_id = $1, revoke_block = $2, revoke_mirrored_at = $3, updated_at = NOW()
		WHERE subject_id = $4 AND accessor_id = $5`

	if _, err := r.db.ExecContext(ctx, query, txID, block, at, subjectID, accessorID); err != nil {
		return fmt.Errorf("failed to stamp revoke mirror: %w", err)
	}
	return nil
}

func (r *SQLRepository) conditionalUpdate(ctx context.Context, query string, scopeJSON []byte, message, subjectID, accessorID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, scopeJSON, message, subjectID, accessorID)
	if err != nil {
		return false, fmt.Errorf("failed to update consent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConsent(row rowScanner) (*types.Consent, error) {
	var consent types.Consent
	var scopeJSON []byte
	var requestMessage, responseMessage sql.NullString
	var grantTxID, revokeTxID sql.NullString
	var grantBlock, revokeBlock sql.NullInt64
	var grantMirroredAt, revokeMirroredAt sql.NullTime

	err := row.Scan(
		&consent.ID,
		&consent.SubjectID,
		&consent.AccessorID,
		&consent.Status,
		&scopeJSON,
		&requestMessage,
		&responseMessage,
		&grantTxID,
		&grantBlock,
		&grantMirroredAt,
		&revokeTxID,
		&revokeBlock,
		&revokeMirroredAt,
		&consent.CreatedAt,
		&consent.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(scopeJSON) > 0 {
		if err := json.Unmarshal(scopeJSON, &consent.Scope); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scope: %w", err)
		}
	}

	consent.RequestMessage = requestMessage.String
	consent.ResponseMessage = responseMessage.String
	consent.Mirror.GrantTxID = grantTxID.String
	consent.Mirror.RevokeTxID = revokeTxID.String
	if grantBlock.Valid {
		consent.Mirror.GrantBlock = uint64(grantBlock.Int64)
	}
	if revokeBlock.Valid {
		consent.Mirror.RevokeBlock = uint64(revokeBlock.Int64)
	}
	if grantMirroredAt.Valid {
		consent.Mirror.GrantMirrored = &grantMirroredAt.Time
	}
	if revokeMirroredAt.Valid {
		consent.Mirror.RevokeMirrored = &revokeMirroredAt.Time
	}

	return &consent, nil
}
