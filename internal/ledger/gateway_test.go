package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caremesh/consentd/pkg/config"
	"github.com/caremesh/consentd/pkg/logger"
	"github.com/caremesh/consentd/pkg/types"
)

func testGateway() *ChaincodeGateway {
	cfg := &config.LedgerConfig{
		ChannelName:   "healthcare",
		SubmitTimeout: 2,
		QueryTimeout:  1,
		Chaincodes:    map[string]string{"consent_registry": "consent-registry"},
	}
	return NewChaincodeGateway(cfg, logger.New("error"), nil)
}

func TestChaincodeGateway_SubmitRequiresSigner(t *testing.T) {
	g := testGateway()

	_, err := g.Submit(context.Background(), TxConsentGrant, map[string]string{"subject_id": "p1"}, SigningIdentity{})
	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeValidation))
}

func TestChaincodeGateway_SubmitReturnsReceipt(t *testing.T) {
	g := testGateway()
	signer := SigningIdentity{ID: "subject-1", MSPID: "CareMeshMSP"}

	first, err := g.Submit(context.Background(), TxConsentGrant, map[string]string{"subject_id": "p1"}, signer)
	require.NoError(t, err)
	assert.NotEmpty(t, first.TxID)
	assert.Equal(t, uint64(1), first.Block)

	second, err := g.Submit(context.Background(), TxConsentRevoke, map[string]string{"subject_id": "p1"}, signer)
	require.NoError(t, err)
	assert.NotEqual(t, first.TxID, second.TxID)
	assert.Equal(t, uint64(2), second.Block)
}

func TestChaincodeGateway_SubmitUnknownKind(t *testing.T) {
	g := testGateway()

	_, err := g.Submit(context.Background(), TxKind("transfer"), nil, SigningIdentity{ID: "x"})
	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeValidation))
}

func TestChaincodeGateway_SubmitTimeoutIsOutcomeUnknown(t *testing.T) {
	g := testGateway()

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := g.Submit(ctx, TxAuditAppend, map[string]string{}, SigningIdentity{ID: "sys"})
	require.Error(t, err)

	se, ok := err.(*types.ServiceError)
	require.True(t, ok)
	assert.Equal(t, types.ErrorTypeLedgerUnavailable, se.Type)
	assert.Equal(t, "unknown", se.Details["outcome"])
}

func TestChaincodeGateway_QueryMissingFact(t *testing.T) {
	g := testGateway()

	_, err := g.Query(context.Background(), FactConsentStatus, "p1|d1")
	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeNotFound))
}

func TestChaincodeGateway_QueryUnknownFactKind(t *testing.T) {
	g := testGateway()

	_, err := g.Query(context.Background(), FactKind("balance"), "key")
	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeValidation))
}

func TestChaincodeGateway_QueryAuditByActorEmpty(t *testing.T) {
	g := testGateway()

	entries, err := g.QueryAuditByActor(context.Background(), "doctor-1", 50)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
