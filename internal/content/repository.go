package content

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/caremesh/consentd/pkg/logger"
	"github.com/caremesh/consentd/pkg/types"
)

// Repository persists content record metadata. The content hash column
// is written once at insert and never updated.
type Repository interface {
	Insert(ctx context.Context, record *types.ContentRecord) error
	Get(ctx context.Context, recordID string) (*types.ContentRecord, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*types.ContentRecord, error)
	StampRegistration(ctx context.Context, recordID, ledgerResourceID, txID string, block uint64, at time.Time) error
}

// SQLRepository implements Repository on PostgreSQL
type SQLRepository struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewRepository creates a new content record repository
func NewRepository(db *sql.DB, log *logger.Logger) *SQLRepository {
	return &SQLRepository{
		db:     db,
		logger: log,
	}
}

const recordColumns = `
	id, owner_id, name, media_type, content_hash, size, storage_locator,
	ledger_resource_id, ledger_tx_id, ledger_block, registered, registered_at, created_at`

// Insert stores a new content record
func (r *SQLRepository) Insert(ctx context.Context, record *types.ContentRecord) error {
	query := `
		INSERT INTO content_records (id, owner_id, name, media_type, content_hash, size, storage_locator, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.OwnerID,
		record.Name,
		record.MediaType,
		record.ContentHash,
		record.Size,
		record.StorageLocator,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert content record: %w", err)
	}

	return nil
}

// Get retrieves a content record by id
func (r *SQLRepository) Get(ctx context.Context, recordID string) (*types.ContentRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM content_records
		WHERE id = $1`, recordColumns)

	row := r.db.QueryRowContext(ctx, query, recordID)
	record, err := scanRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(types.ErrCodeNotFound, "content record not found")
		}
		return nil, fmt.Errorf("failed to get content record: %w", err)
	}

	return record, nil
}

// ListByOwner returns an owner's records, newest first
func (r *SQLRepository) ListByOwner(ctx context.Context, ownerID string) ([]*types.ContentRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM content_records
		WHERE owner_id = $1
		ORDER BY created_at DESC`, recordColumns)

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list content records: %w", err)
	}
	defer rows.Close()

	var records []*types.ContentRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content record: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// StampRegistration marks the record as registered on the ledger
func (r *SQLRepository) StampRegistration(ctx context.Context, recordID, ledgerResourceID, txID string, block uint64, at time.Time) error {
	query := `
		UPDATE content_records
		SET ledger_resource_id = $1, ledger_tx_id = $2, ledger_block = $3, registered = TRUE, registered_at = $4
		WHERE id = $5`

	if _, err := r.db.ExecContext(ctx, query, ledgerResourceID, txID, block, at, recordID); err != nil {
		return fmt.Errorf("failed to stamp registration: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*types.ContentRecord, error) {
	var record types.ContentRecord
	var ledgerResourceID, ledgerTxID sql.NullString
	var ledgerBlock sql.NullInt64
	var registeredAt sql.NullTime

	err := row.Scan(
		&record.ID,
		&record.OwnerID,
		&record.Name,
		&record.MediaType,
		&record.ContentHash,
		&record.Size,
		&record.StorageLocator,
		&ledgerResourceID,
		&ledgerTxID,
		&ledgerBlock,
		&record.Registration.Registered,
		&registeredAt,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Registration.LedgerResourceID = ledgerResourceID.String
	record.Registration.TxID = ledgerTxID.String
	if ledgerBlock.Valid {
		record.Registration.Block = uint64(ledgerBlock.Int64)
	}
	if registeredAt.Valid {
		record.Registration.RegisteredAt = registeredAt.Time
	}

	return &record, nil
}
