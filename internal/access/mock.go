package access

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/caremesh/consentd/pkg/types"
)

// MockOverrideRepository is a testify mock of OverrideRepository
type MockOverrideRepository struct {
	mock.Mock
}

func (m *MockOverrideRepository) Upsert(ctx context.Context, override *types.EmergencyOverride) (*types.EmergencyOverride, error) {
	args := m.Called(ctx, override)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.EmergencyOverride), args.Error(1)
}

func (m *MockOverrideRepository) IsActive(ctx context.Context, subjectID, accessorID string) (bool, error) {
	args := m.Called(ctx, subjectID, accessorID)
	return args.Bool(0), args.Error(1)
}

func (m *MockOverrideRepository) Deactivate(ctx context.Context, subjectID, accessorID string) (bool, error) {
	args := m.Called(ctx, subjectID, accessorID)
	return args.Bool(0), args.Error(1)
}

func (m *MockOverrideRepository) ListActive(ctx context.Context) ([]*types.EmergencyOverride, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.EmergencyOverride), args.Error(1)
}

// MockConsentChecker is a testify mock of ConsentChecker
type MockConsentChecker struct {
	mock.Mock
}

func (m *MockConsentChecker) IsActive(ctx context.Context, subjectID, accessorID string, asOf time.Time) (bool, error) {
	args := m.Called(ctx, subjectID, accessorID, asOf)
	return args.Bool(0), args.Error(1)
}

// MockCapabilityChecker is a testify mock of CapabilityChecker
type MockCapabilityChecker struct {
	mock.Mock
}

func (m *MockCapabilityChecker) CheckAccess(ctx context.Context, resourceID, walletAddress string, asOf time.Time) (bool, error) {
	args := m.Called(ctx, resourceID, walletAddress, asOf)
	return args.Bool(0), args.Error(1)
}
