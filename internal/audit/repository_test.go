package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
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

func TestSQLRepository_Insert(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	entry := &types.AuditEntry{
		ID:         uuid.New().String(),
		ActorID:    "doctor-1",
		TargetID:   "patient-1",
		Action:     types.ActionAccessChecked,
		ResourceID: "record-9",
		Timestamp:  time.Now().UTC(),
		Details:    map[string]interface{}{"allowed": true, "reason": "consent"},
	}

	detailsJSON, err := json.Marshal(entry.Details)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO audit_entries").
		WithArgs(
			entry.ID,
			entry.ActorID,
			entry.TargetID,
			entry.Action,
			entry.ResourceID,
			entry.Timestamp,
			detailsJSON,
			false,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = repo.Insert(context.Background(), entry)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepository_MarkMirrored(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	mock.ExpectExec("UPDATE audit_entries SET mirrored = TRUE").
		WithArgs("e-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkMirrored(context.Background(), "e-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepository_InsertWithoutResource(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	entry := &types.AuditEntry{
		ID:        uuid.New().String(),
		ActorID:   "admin-1",
		TargetID:  "patient-2",
		Action:    types.ActionEmergencyGranted,
		Timestamp: time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO audit_entries").
		WithArgs(
			entry.ID,
			entry.ActorID,
			entry.TargetID,
			entry.Action,
			nil,
			entry.Timestamp,
			[]byte("null"),
			false,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Insert(context.Background(), entry)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepository_ListByActor(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "actor_id", "target_id", "action", "resource_id", "timestamp", "details", "mirrored",
	}).AddRow(
		"e2", "doctor-1", "patient-1", types.ActionAccessChecked, "record-9", now, []byte(`{"allowed":true}`), true,
	).AddRow(
		"e1", "doctor-1", "patient-1", types.ActionConsentGranted, nil, now.Add(-time.Hour), nil, false,
	)

	mock.ExpectQuery("SELECT (.+) FROM audit_entries WHERE actor_id = \\$1").
		WithArgs("doctor-1", 50).
		WillReturnRows(rows)

	entries, err := repo.ListByActor(context.Background(), "doctor-1", 50)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "e2", entries[0].ID)
	assert.Equal(t, "record-9", entries[0].ResourceID)
	assert.Equal(t, true, entries[0].Details["allowed"])
	assert.True(t, entries[0].Mirrored)
	assert.Empty(t, entries[1].ResourceID)
	assert.False(t, entries[1].Mirrored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepository_ListByAction(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{
		"id", "actor_id", "target_id", "action", "resource_id", "timestamp", "details", "mirrored",
	}).AddRow(
		"e1", "patient-1", "doctor-1", types.ActionConsentRevoked, nil, time.Now().UTC(), nil, true,
	)

	mock.ExpectQuery("SELECT (.+) FROM audit_entries WHERE action = \\$1").
		WithArgs(types.ActionConsentRevoked, 10).
		WillReturnRows(rows)

	entries, err := repo.ListByAction(context.Background(), types.ActionConsentRevoked, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.ActionConsentRevoked, entries[0].Action)
	assert.NoError(t, mock.ExpectationsWereMet())
}
