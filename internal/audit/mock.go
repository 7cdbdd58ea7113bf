package audit

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/caremesh/consentd/pkg/types"
)

// MockRecorder is a testify mock of Recorder
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Append(ctx context.Context, entry *types.AuditEntry) (*types.LedgerWarning, error) {
	args := m.Called(ctx, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.LedgerWarning), args.Error(1)
}

// MockRepository is a testify mock of Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Insert(ctx context.Context, entry *types.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockRepository) MarkMirrored(ctx context.Context, entryID string) error {
	args := m.Called(ctx, entryID)
	return args.Error(0)
}

func (m *MockRepository) ListByActor(ctx context.Context, actorID string, limit int) ([]*types.AuditEntry, error) {
	args := m.Called(ctx, actorID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.AuditEntry), args.Error(1)
}

func (m *MockRepository) ListByAction(ctx context.Context, action string, limit int) ([]*types.AuditEntry, error) {
	args := m.Called(ctx, action, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.AuditEntry), args.Error(1)
}
