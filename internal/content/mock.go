package content

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/caremesh/consentd/pkg/types"
)

// MockRepository is a testify mock of Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Insert(ctx context.Context, record *types.ContentRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockRepository) Get(ctx context.Context, recordID string) (*types.ContentRecord, error) {
	args := m.Called(ctx, recordID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.ContentRecord), args.Error(1)
}

func (m *MockRepository) ListByOwner(ctx context.Context, ownerID string) ([]*types.ContentRecord, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.ContentRecord), args.Error(1)
}

func (m *MockRepository) StampRegistration(ctx context.Context, recordID, ledgerResourceID, txID string, block uint64, at time.Time) error {
	args := m.Called(ctx, recordID, ledgerResourceID, txID, block, at)
	return args.Error(0)
}
