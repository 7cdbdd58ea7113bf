package content

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caremesh/consentd/pkg/logger"
	"github.com/caremesh/consentd/pkg/types"
)

func setupTestRepository(t *testing.T) (*SQLRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewRepository(db, logger.New("error"))

	cleanup := func() {
		db.Close()
	}

	return repo, mock, cleanup
}

func recordRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "owner_id", "name", "media_type", "content_hash", "size", "storage_locator",
		"ledger_resource_id", "ledger_tx_id", "ledger_block", "registered", "registered_at", "created_at",
	})
}

func TestSQLRepository_InsertAndGet(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	now := time.Now().UTC()
	record := &types.ContentRecord{
		ID:             "r-1",
		OwnerID:        "patient-1",
		Name:           "labs.pdf",
		MediaType:      "application/pdf",
		ContentHash:    helloWorldHash,
		Size:           11,
		StorageLocator: "s3://bucket/labs.pdf",
		CreatedAt:      now,
	}

	mock.ExpectExec("INSERT INTO content_records").
		WithArgs(record.ID, record.OwnerID, record.Name, record.MediaType, record.ContentHash, record.Size, record.StorageLocator, record.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Insert(context.Background(), record))

	mock.ExpectQuery("SELECT (.+) FROM content_records\\s+WHERE id = \\$1").
		WithArgs("r-1").
		WillReturnRows(recordRows().AddRow(
			"r-1", "patient-1", "labs.pdf", "application/pdf", helloWorldHash, int64(11), "s3://bucket/labs.pdf",
			nil, nil, nil, false, nil, now,
		))

	stored, err := repo.Get(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, helloWorldHash, stored.ContentHash)
	assert.False(t, stored.Registration.Registered)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepository_GetNotFound(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM content_records").
		WithArgs("missing").
		WillReturnRows(recordRows())

	_, err := repo.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeNotFound))
}

func TestSQLRepository_StampRegistration(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	at := time.Now().UTC()
	mock.ExpectExec("UPDATE content_records\\s+SET ledger_resource_id = \\$1").
		WithArgs("r-1", "tx-9", uint64(12), at, "r-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.StampRegistration(context.Background(), "r-1", "r-1", "tx-9", 12, at)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepository_ListByOwnerScansRegistration(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM content_records\\s+WHERE owner_id = \\$1").
		WithArgs("patient-1").
		WillReturnRows(recordRows().AddRow(
			"r-1", "patient-1", "labs.pdf", "application/pdf", helloWorldHash, int64(11), "s3://bucket/labs.pdf",
			"r-1", "tx-9", int64(12), true, now, now,
		))

	records, err := repo.ListByOwner(context.Background(), "patient-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Registration.Registered)
	assert.Equal(t, "tx-9", records[0].Registration.TxID)
	assert.Equal(t, uint64(12), records[0].Registration.Block)
}
