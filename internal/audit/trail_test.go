package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/caremesh/consentd/internal/ledger"
	"github.com/caremesh/consentd/pkg/logger"
	"github.com/caremesh/consentd/pkg/types"
)

func setupTrail() (*Trail, *MockRepository, *ledger.MockGateway) {
	repo := &MockRepository{}
	gateway := &ledger.MockGateway{}
	signer := ledger.SigningIdentity{ID: "consentd-system", MSPID: "CareMeshMSP"}
	trail := NewTrail(repo, gateway, signer, logger.New("error"), nil)
	return trail, repo, gateway
}

func TestTrail_AppendMirrorsToLedger(t *testing.T) {
	trail, repo, gateway := setupTrail()

	entry := &types.AuditEntry{
		ActorID:  "doctor-1",
		TargetID: "patient-1",
		Action:   types.ActionConsentGranted,
	}

	repo.On("Insert", mock.Anything, entry).Return(nil)
	gateway.On("Submit", mock.Anything, ledger.TxAuditAppend, entry, mock.Anything).
		Return(&ledger.TxReceipt{TxID: "tx-1", Block: 7}, nil)
	repo.On("MarkMirrored", mock.Anything, mock.AnythingOfType("string")).Return(nil)

	warning, err := trail.Append(context.Background(), entry)
	require.NoError(t, err)
	assert.Nil(t, warning)

	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.Timestamp.IsZero())
	assert.True(t, entry.Mirrored)
	repo.AssertExpectations(t)
	gateway.AssertExpectations(t)
}

func TestTrail_AppendSurvivesLedgerFailure(t *testing.T) {
	trail, repo, gateway := setupTrail()

	entry := &types.AuditEntry{
		ActorID:  "doctor-1",
		TargetID: "patient-1",
		Action:   types.ActionAccessChecked,
	}

	repo.On("Insert", mock.Anything, entry).Return(nil)
	gateway.On("Submit", mock.Anything, ledger.TxAuditAppend, entry, mock.Anything).
		Return(nil, types.NewLedgerUnavailableError("peer unreachable", errors.New("dial timeout")))

	warning, err := trail.Append(context.Background(), entry)
	require.NoError(t, err)

	require.NotNil(t, warning)
	assert.Equal(t, types.ErrCodeLedgerUnavailable, warning.Code)
	assert.False(t, entry.Mirrored)
	repo.AssertNotCalled(t, "MarkMirrored")
	repo.AssertExpectations(t)
}

func TestTrail_AppendFailsWhenOffChainInsertFails(t *testing.T) {
	trail, repo, gateway := setupTrail()

	entry := &types.AuditEntry{ActorID: "a", TargetID: "b", Action: types.ActionGrantCreated}
	repo.On("Insert", mock.Anything, entry).Return(errors.New("connection refused"))

	_, err := trail.Append(context.Background(), entry)
	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeInternal))
	gateway.AssertNotCalled(t, "Submit")
}

func TestTrail_ByActorPrefersLedger(t *testing.T) {
	trail, repo, gateway := setupTrail()

	ledgerEntries := []*types.AuditEntry{
		{ID: "e2", ActorID: "doctor-1", Action: types.ActionAccessChecked, Timestamp: time.Now()},
		{ID: "e1", ActorID: "doctor-1", Action: types.ActionConsentGranted, Timestamp: time.Now().Add(-time.Hour)},
	}
	gateway.On("QueryAuditByActor", mock.Anything, "doctor-1", 100).Return(ledgerEntries, nil)

	entries, err := trail.ByActor(context.Background(), "doctor-1", 0)
	require.NoError(t, err)
	assert.Equal(t, ledgerEntries, entries)
	repo.AssertNotCalled(t, "ListByActor")
}

func TestTrail_ByActorFallsBackToMirror(t *testing.T) {
	trail, repo, gateway := setupTrail()

	mirror := []*types.AuditEntry{{ID: "e1", ActorID: "doctor-1", Action: types.ActionAccessChecked}}
	gateway.On("QueryAuditByActor", mock.Anything, "doctor-1", 25).
		Return(nil, types.NewLedgerUnavailableError("query timed out", nil))
	repo.On("ListByActor", mock.Anything, "doctor-1", 25).Return(mirror, nil)

	entries, err := trail.ByActor(context.Background(), "doctor-1", 25)
	require.NoError(t, err)
	assert.Equal(t, mirror, entries)
}

func TestTrail_ByAction(t *testing.T) {
	trail, repo, _ := setupTrail()

	mirror := []*types.AuditEntry{{ID: "e1", Action: types.ActionConsentRevoked}}
	repo.On("ListByAction", mock.Anything, types.ActionConsentRevoked, 100).Return(mirror, nil)

	entries, err := trail.ByAction(context.Background(), types.ActionConsentRevoked, 0)
	require.NoError(t, err)
	assert.Equal(t, mirror, entries)
}
