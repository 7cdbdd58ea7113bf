package content

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/caremesh/consentd/internal/audit"
	"github.com/caremesh/consentd/internal/hashing"
	"github.com/caremesh/consentd/internal/ledger"
	"github.com/caremesh/consentd/pkg/logger"
	"github.com/caremesh/consentd/pkg/types"
)

// SHA-256 of "hello world".
const helloWorldHash = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

func setupRegistry() (*Registry, *MockRepository, *ledger.MockGateway, *audit.MockRecorder) {
	repo := &MockRepository{}
	gateway := &ledger.MockGateway{}
	trail := &audit.MockRecorder{}
	registry := NewRegistry(repo, hashing.New(), gateway, trail, "CareMeshMSP", logger.New("error"))
	return registry, repo, gateway, trail
}

func TestRegistry_RegisterHashesAndAnchors(t *testing.T) {
	registry, repo, gateway, trail := setupRegistry()

	var insertedID string
	repo.On("Insert", mock.Anything, mock.MatchedBy(func(rec *types.ContentRecord) bool {
		insertedID = rec.ID
		return rec.ContentHash == helloWorldHash && rec.Size == 11 && rec.OwnerID == "patient-1"
	})).Return(nil)
	gateway.On("Submit", mock.Anything, ledger.TxRecordRegister, mock.MatchedBy(func(fact *ledger.RecordHashFact) bool {
		return fact.ContentHash == helloWorldHash
	}), mock.Anything).Return(&ledger.TxReceipt{TxID: "tx-1", Block: 4, Timestamp: time.Now().UTC()}, nil)
	repo.On("StampRegistration", mock.Anything, mock.Anything, mock.Anything, "tx-1", uint64(4), mock.Anything).Return(nil)
	trail.On("Append", mock.Anything, mock.MatchedBy(func(e *types.AuditEntry) bool {
		return e.Action == types.ActionRecordRegistered
	})).Return(nil, nil)
	repo.On("Get", mock.Anything, mock.Anything).Return(&types.ContentRecord{
		ID:          "r-1",
		ContentHash: helloWorldHash,
		Registration: types.RecordRegistration{
			Registered: true,
			TxID:       "tx-1",
		},
	}, nil)

	record, warning, err := registry.Register(context.Background(), "patient-1", "labs.pdf", "application/pdf", "s3://bucket/labs.pdf", strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Nil(t, warning)
	assert.True(t, record.Registration.Registered)
	assert.NotEmpty(t, insertedID)
	repo.AssertExpectations(t)
}

func TestRegistry_RegisterSurvivesLedgerFailure(t *testing.T) {
	registry, repo, gateway, trail := setupRegistry()

	repo.On("Insert", mock.Anything, mock.Anything).Return(nil)
	gateway.On("Submit", mock.Anything, ledger.TxRecordRegister, mock.Anything, mock.Anything).
		Return(nil, types.NewLedgerUnavailableError("peer unreachable", nil))
	trail.On("Append", mock.Anything, mock.MatchedBy(func(e *types.AuditEntry) bool {
		return e.Details["ledger_status"] == types.ErrCodeLedgerUnavailable
	})).Return(nil, nil)
	repo.On("Get", mock.Anything, mock.Anything).Return(&types.ContentRecord{ID: "r-1", ContentHash: helloWorldHash}, nil)

	record, warning, err := registry.Register(context.Background(), "patient-1", "labs.pdf", "application/pdf", "s3://bucket/labs.pdf", strings.NewReader("hello world"))
	require.NoError(t, err)
	require.NotNil(t, warning)
	assert.Equal(t, types.ErrCodeLedgerUnavailable, warning.Code)
	assert.False(t, record.Registration.Registered)
	repo.AssertNotCalled(t, "StampRegistration")
}

func TestRegistry_RegisterRejectsEmptyContent(t *testing.T) {
	registry, repo, _, _ := setupRegistry()

	_, _, err := registry.Register(context.Background(), "patient-1", "empty.pdf", "application/pdf", "s3://bucket/empty.pdf", strings.NewReader(""))
	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeValidation))
	repo.AssertNotCalled(t, "Insert")
}

func TestRegistry_VerifyIntegrityBothDomainsMatch(t *testing.T) {
	registry, repo, gateway, trail := setupRegistry()

	repo.On("Get", mock.Anything, "r-1").Return(&types.ContentRecord{
		ID: "r-1", OwnerID: "patient-1", ContentHash: helloWorldHash,
	}, nil)
	fact, _ := json.Marshal(&ledger.RecordHashFact{RecordID: "r-1", ContentHash: helloWorldHash})
	gateway.On("Query", mock.Anything, ledger.FactRecordHash, "r-1").Return(fact, nil)
	trail.On("Append", mock.Anything, mock.MatchedBy(func(e *types.AuditEntry) bool {
		return e.Action == types.ActionRecordVerified
	})).Return(nil, nil)

	report, err := registry.VerifyIntegrity(context.Background(), "doctor-1", "r-1", strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.True(t, report.StoredMatch)
	require.NotNil(t, report.LedgerMatch)
	assert.True(t, *report.LedgerMatch)
	assert.Nil(t, report.Warning)
}

func TestRegistry_VerifyIntegrityDetectsTamper(t *testing.T) {
	registry, repo, gateway, trail := setupRegistry()

	repo.On("Get", mock.Anything, "r-1").Return(&types.ContentRecord{
		ID: "r-1", OwnerID: "patient-1", ContentHash: helloWorldHash,
	}, nil)
	fact, _ := json.Marshal(&ledger.RecordHashFact{RecordID: "r-1", ContentHash: helloWorldHash})
	gateway.On("Query", mock.Anything, ledger.FactRecordHash, "r-1").Return(fact, nil)
	trail.On("Append", mock.Anything, mock.Anything).Return(nil, nil)

	report, err := registry.VerifyIntegrity(context.Background(), "doctor-1", "r-1", strings.NewReader("hello worlD"))
	require.NoError(t, err)
	assert.False(t, report.StoredMatch)
	require.NotNil(t, report.LedgerMatch)
	assert.False(t, *report.LedgerMatch)
	assert.NotEqual(t, helloWorldHash, report.ActualHash)
}

func TestRegistry_VerifyIntegrityDegradesWithoutLedger(t *testing.T) {
	registry, repo, gateway, trail := setupRegistry()

	repo.On("Get", mock.Anything, "r-1").Return(&types.ContentRecord{
		ID: "r-1", OwnerID: "patient-1", ContentHash: helloWorldHash,
	}, nil)
	gateway.On("Query", mock.Anything, ledger.FactRecordHash, "r-1").
		Return(nil, types.NewLedgerUnavailableError("query timed out", nil))
	trail.On("Append", mock.Anything, mock.Anything).Return(nil, nil)

	report, err := registry.VerifyIntegrity(context.Background(), "doctor-1", "r-1", strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.True(t, report.StoredMatch, "off-chain comparison must complete without the ledger")
	assert.Nil(t, report.LedgerMatch, "ledger verdict must stay open, not default to a boolean")
	require.NotNil(t, report.Warning)
	assert.Equal(t, types.ErrCodeLedgerUnavailable, report.Warning.Code)
}

func TestRegistry_VerifyIntegrityUnknownRecord(t *testing.T) {
	registry, repo, _, _ := setupRegistry()

	repo.On("Get", mock.Anything, "missing").
		Return(nil, types.NewNotFoundError(types.ErrCodeNotFound, "content record not found"))

	_, err := registry.VerifyIntegrity(context.Background(), "doctor-1", "missing", strings.NewReader("x"))
	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeNotFound))
}
