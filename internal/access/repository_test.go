package access

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

func setupTestRepository(t *testing.T) (*SQLOverrideRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewOverrideRepository(db, logger.New("error"))

	cleanup := func() {
		db.Close()
	}

	return repo, mock, cleanup
}

func TestSQLOverrideRepository_UpsertReactivates(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO emergency_overrides").
		WithArgs("o-1", "patient-1", "doctor-1", "icu admission", "admin-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "subject_id", "accessor_id", "reason", "granted_by", "active", "created_at", "updated_at",
		}).AddRow("o-1", "patient-1", "doctor-1", "icu admission", "admin-1", true, now, now))

	stored, err := repo.Upsert(context.Background(), &types.EmergencyOverride{
		ID:         "o-1",
		SubjectID:  "patient-1",
		AccessorID: "doctor-1",
		Reason:     "icu admission",
		GrantedBy:  "admin-1",
	})
	require.NoError(t, err)
	assert.True(t, stored.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLOverrideRepository_IsActive(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("patient-1", "doctor-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	active, err := repo.IsActive(context.Background(), "patient-1", "doctor-1")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestSQLOverrideRepository_DeactivateWithoutActiveOverride(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	mock.ExpectExec("UPDATE emergency_overrides\\s+SET active = FALSE").
		WithArgs("patient-1", "doctor-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	lifted, err := repo.Deactivate(context.Background(), "patient-1", "doctor-1")
	require.NoError(t, err)
	assert.False(t, lifted)
}

func TestSQLOverrideRepository_ListActive(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM emergency_overrides\\s+WHERE active = TRUE").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "subject_id", "accessor_id", "reason", "granted_by", "active", "created_at", "updated_at",
		}).AddRow("o-1", "patient-1", "doctor-1", "icu admission", "admin-1", true, now, now))

	overrides, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Equal(t, "admin-1", overrides[0].GrantedBy)
}
