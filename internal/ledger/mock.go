package ledger

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/caremesh/consentd/pkg/types"
)

// MockGateway is a testify mock of Gateway. Package tests across the
// engine program it with deterministic receipts and failures instead
// of talking to a chaincode.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Submit(ctx context.Context, kind TxKind, payload interface{}, signer SigningIdentity) (*TxReceipt, error) {
	args := m.Called(ctx, kind, payload, signer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TxReceipt), args.Error(1)
}

func (m *MockGateway) Query(ctx context.Context, kind FactKind, key string) ([]byte, error) {
	args := m.Called(ctx, kind, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockGateway) QueryAuditByActor(ctx context.Context, actorID string, limit int) ([]*types.AuditEntry, error) {
	args := m.Called(ctx, actorID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.AuditEntry), args.Error(1)
}
