package sharing

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

func (m *MockRepository) Upsert(ctx context.Context, grant *types.CapabilityGrant) (*types.CapabilityGrant, error) {
	args := m.Called(ctx, grant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.CapabilityGrant), args.Error(1)
}

func (m *MockRepository) GetByPair(ctx context.Context, resourceID, walletAddress string) (*types.CapabilityGrant, error) {
	args := m.Called(ctx, resourceID, walletAddress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.CapabilityGrant), args.Error(1)
}

func (m *MockRepository) ListByWallet(ctx context.Context, walletAddress string) ([]*types.CapabilityGrant, error) {
	args := m.Called(ctx, walletAddress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.CapabilityGrant), args.Error(1)
}

func (m *MockRepository) Deactivate(ctx context.Context, resourceID, walletAddress string) (bool, error) {
	args := m.Called(ctx, resourceID, walletAddress)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) TouchAccess(ctx context.Context, resourceID, walletAddress string, at time.Time) error {
	args := m.Called(ctx, resourceID, walletAddress, at)
	return args.Error(0)
}
