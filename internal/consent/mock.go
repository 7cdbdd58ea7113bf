package consent

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

func (m *MockRepository) GetByPair(ctx context.Context, subjectID, accessorID string) (*types.Consent, error) {
	args := m.Called(ctx, subjectID, accessorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Consent), args.Error(1)
}

func (m *MockRepository) Insert(ctx context.Context, consent *types.Consent) error {
	args := m.Called(ctx, consent)
	return args.Error(0)
}

func (m *MockRepository) ResetToPending(ctx context.Context, subjectID, accessorID, message string, scope types.ConsentScope) (bool, error) {
	args := m.Called(ctx, subjectID, accessorID, message, scope)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) MarkGranted(ctx context.Context, subjectID, accessorID string, scope types.ConsentScope, responseMessage string) (bool, error) {
	args := m.Called(ctx, subjectID, accessorID, scope, responseMessage)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) MarkRevoked(ctx context.Context, subjectID, accessorID, responseMessage string) (bool, error) {
	args := m.Called(ctx, subjectID, accessorID, responseMessage)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) StampGrantMirror(ctx context.Context, subjectID, accessorID, txID string, block uint64, at time.Time) error {
	args := m.Called(ctx, subjectID, accessorID, txID, block, at)
	return args.Error(0)
}

func (m *MockRepository) StampRevokeMirror(ctx context.Context, subjectID, accessorID, txID string, block uint64, at time.Time) error {
	args := m.Called(ctx, subjectID, accessorID, txID, block, at)
	return args.Error(0)
}
