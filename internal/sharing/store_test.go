package sharing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/caremesh/consentd/internal/audit"
	"github.com/caremesh/consentd/pkg/logger"
	"github.com/caremesh/consentd/pkg/types"
)

const testWallet = "0xAbCd000000000000000000000000000000000001"
const testWalletLower = "0xabcd000000000000000000000000000000000001"

func setupStore() (*Store, *MockRepository, *audit.MockRecorder) {
	repo := &MockRepository{}
	trail := &audit.MockRecorder{}
	store := NewStore(repo, trail, logger.New("error"))
	return store, repo, trail
}

func TestStore_GrantNormalizesWallet(t *testing.T) {
	store, repo, trail := setupStore()

	repo.On("Upsert", mock.Anything, mock.MatchedBy(func(g *types.CapabilityGrant) bool {
		return g.WalletAddress == testWalletLower &&
			g.Active &&
			g.ExpirationDays == 30 &&
			g.ExpiresAt.Sub(g.GrantedAt) == 30*24*time.Hour
	})).Return(&types.CapabilityGrant{
		ID:            "g-1",
		ResourceID:    "record-1",
		WalletAddress: testWalletLower,
		Active:        true,
		ExpiresAt:     time.Now().UTC().AddDate(0, 0, 30),
	}, nil)
	trail.On("Append", mock.Anything, mock.MatchedBy(func(e *types.AuditEntry) bool {
		return e.Action == types.ActionGrantCreated && e.TargetID == testWalletLower
	})).Return(nil, nil)

	grant, warning, err := store.Grant(context.Background(), "patient-1", "record-1", testWallet, 30)
	require.NoError(t, err)
	assert.Nil(t, warning)
	assert.Equal(t, testWalletLower, grant.WalletAddress)
	repo.AssertExpectations(t)
	trail.AssertExpectations(t)
}

func TestStore_GrantValidation(t *testing.T) {
	store, repo, _ := setupStore()

	cases := []struct {
		name       string
		resourceID string
		wallet     string
		days       int
	}{
		{"malformed wallet", "record-1", "0x1234", 30},
		{"missing hex prefix", "record-1", "abcd000000000000000000000000000000000001ab", 30},
		{"zero days", "record-1", testWallet, 0},
		{"too many days", "record-1", testWallet, 366},
		{"missing resource", "", testWallet, 30},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := store.Grant(context.Background(), "patient-1", tc.resourceID, tc.wallet, tc.days)
			require.Error(t, err)
			assert.True(t, types.IsErrorType(err, types.ErrorTypeValidation))
		})
	}
	repo.AssertNotCalled(t, "Upsert")
}

func TestStore_RevokeInactiveGrantIsNotFound(t *testing.T) {
	store, repo, trail := setupStore()

	repo.On("Deactivate", mock.Anything, "record-1", testWalletLower).Return(false, nil)

	_, err := store.Revoke(context.Background(), "patient-1", "record-1", testWallet)
	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeNotFound))
	trail.AssertNotCalled(t, "Append")
}

func TestStore_RevokeDeactivates(t *testing.T) {
	store, repo, trail := setupStore()

	repo.On("Deactivate", mock.Anything, "record-1", testWalletLower).Return(true, nil)
	trail.On("Append", mock.Anything, mock.MatchedBy(func(e *types.AuditEntry) bool {
		return e.Action == types.ActionGrantRevoked && e.ResourceID == "record-1"
	})).Return(nil, nil)

	warning, err := store.Revoke(context.Background(), "patient-1", "record-1", testWallet)
	require.NoError(t, err)
	assert.Nil(t, warning)
	repo.AssertExpectations(t)
}

func TestStore_CheckAccessEvaluatesExpiryAtReadTime(t *testing.T) {
	store, repo, _ := setupStore()

	now := time.Now().UTC()
	expired := &types.CapabilityGrant{
		ResourceID:    "record-1",
		WalletAddress: testWalletLower,
		Active:        true,
		ExpiresAt:     now.Add(-time.Minute),
	}
	repo.On("GetByPair", mock.Anything, "record-1", testWalletLower).Return(expired, nil)

	allowed, err := store.CheckAccess(context.Background(), "record-1", testWallet, now)
	require.NoError(t, err)
	assert.False(t, allowed)
	repo.AssertNotCalled(t, "TouchAccess")
}

func TestStore_CheckAccessBumpsCounter(t *testing.T) {
	store, repo, _ := setupStore()

	now := time.Now().UTC()
	live := &types.CapabilityGrant{
		ResourceID:    "record-1",
		WalletAddress: testWalletLower,
		Active:        true,
		ExpiresAt:     now.Add(time.Hour),
	}
	repo.On("GetByPair", mock.Anything, "record-1", testWalletLower).Return(live, nil)
	repo.On("TouchAccess", mock.Anything, "record-1", testWalletLower, now).Return(nil)

	allowed, err := store.CheckAccess(context.Background(), "record-1", testWallet, now)
	require.NoError(t, err)
	assert.True(t, allowed)
	repo.AssertExpectations(t)
}

func TestStore_CheckAccessMissingGrantDenies(t *testing.T) {
	store, repo, _ := setupStore()

	repo.On("GetByPair", mock.Anything, "record-1", testWalletLower).
		Return(nil, types.NewNotFoundError(types.ErrCodeNotFound, "no grant for resource and wallet"))

	allowed, err := store.CheckAccess(context.Background(), "record-1", testWallet, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestStore_CheckAccessRevokedGrantDenies(t *testing.T) {
	store, repo, _ := setupStore()

	revoked := &types.CapabilityGrant{
		ResourceID:    "record-1",
		WalletAddress: testWalletLower,
		Active:        false,
		ExpiresAt:     time.Now().UTC().Add(time.Hour),
	}
	repo.On("GetByPair", mock.Anything, "record-1", testWalletLower).Return(revoked, nil)

	allowed, err := store.CheckAccess(context.Background(), "record-1", testWallet, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestStore_ListForWalletReturnsOnlyUsableGrants(t *testing.T) {
	store, repo, _ := setupStore()

	now := time.Now().UTC()
	grants := []*types.CapabilityGrant{
		{ID: "g-1", Active: true, ExpiresAt: now.Add(time.Hour)},
		{ID: "g-2", Active: true, ExpiresAt: now.Add(-time.Hour)},
		{ID: "g-3", Active: false, ExpiresAt: now.Add(time.Hour)},
	}
	repo.On("ListByWallet", mock.Anything, testWalletLower).Return(grants, nil)

	usable, err := store.ListForWallet(context.Background(), testWallet)
	require.NoError(t, err)
	require.Len(t, usable, 1)
	assert.Equal(t, "g-1", usable[0].ID)
}

func TestNormalizeWalletAddress(t *testing.T) {
	normalized, err := NormalizeWalletAddress(testWallet)
	require.NoError(t, err)
	assert.Equal(t, testWalletLower, normalized)

	_, err = NormalizeWalletAddress("0xZZZZ000000000000000000000000000000000001")
	require.Error(t, err)
}
