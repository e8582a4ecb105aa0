package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/jobforge/internal/apperr"
	"github.com/ternarybob/jobforge/internal/models"
)

func TestApiKeyStore_CreateAndFindByPrefix(t *testing.T) {
	store := NewApiKeyStore(newTestDB(t))
	ctx := context.Background()

	k := &models.ApiKey{ID: "key_1", UserID: 1, Name: "ci", Prefix: "jf_ab", KeyHash: "hashed", Permissions: []string{"jobs:write"}, IsActive: true}
	require.NoError(t, store.Create(ctx, k))

	found, err := store.FindByPrefix(ctx, "jf_ab")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, []string{"jobs:write"}, found[0].Permissions)
}

func TestApiKeyStore_GetByID_ScopedToOwner(t *testing.T) {
	store := NewApiKeyStore(newTestDB(t))
	ctx := context.Background()

	k := &models.ApiKey{ID: "key_1", UserID: 1, Name: "ci", Prefix: "jf_ab", KeyHash: "hashed", Permissions: []string{}, IsActive: true}
	require.NoError(t, store.Create(ctx, k))

	_, err := store.GetByID(ctx, "key_1", 2)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	own, err := store.GetByID(ctx, "key_1", 1)
	require.NoError(t, err)
	assert.Equal(t, "ci", own.Name)
}

func TestApiKeyStore_Update_RenamesAndReplacesPermissions(t *testing.T) {
	store := NewApiKeyStore(newTestDB(t))
	ctx := context.Background()

	k := &models.ApiKey{ID: "key_1", UserID: 1, Name: "ci", Prefix: "jf_ab", KeyHash: "hashed", Permissions: []string{"jobs:read"}, IsActive: true}
	require.NoError(t, store.Create(ctx, k))

	require.NoError(t, store.Update(ctx, "key_1", 1, "ci-renamed", []string{"jobs:read", "jobs:write"}))

	got, err := store.GetByID(ctx, "key_1", 1)
	require.NoError(t, err)
	assert.Equal(t, "ci-renamed", got.Name)
	assert.Equal(t, []string{"jobs:read", "jobs:write"}, got.Permissions)
}

func TestApiKeyStore_Update_NotFoundForWrongOwner(t *testing.T) {
	store := NewApiKeyStore(newTestDB(t))
	ctx := context.Background()

	k := &models.ApiKey{ID: "key_1", UserID: 1, Name: "ci", Prefix: "jf_ab", KeyHash: "hashed", Permissions: []string{}, IsActive: true}
	require.NoError(t, store.Create(ctx, k))

	err := store.Update(ctx, "key_1", 2, "renamed", []string{})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestApiKeyStore_Revoke_SetsInactiveAndExcludesFromUse(t *testing.T) {
	store := NewApiKeyStore(newTestDB(t))
	ctx := context.Background()

	k := &models.ApiKey{ID: "key_1", UserID: 1, Name: "ci", Prefix: "jf_ab", KeyHash: "hashed", Permissions: []string{}, IsActive: true}
	require.NoError(t, store.Create(ctx, k))

	require.NoError(t, store.Revoke(ctx, "key_1", 1))

	got, err := store.GetByID(ctx, "key_1", 1)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestApiKeyStore_ListByUser_OrdersNewestFirst(t *testing.T) {
	store := NewApiKeyStore(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &models.ApiKey{ID: "key_1", UserID: 1, Name: "first", Prefix: "jf_a1", KeyHash: "h", Permissions: []string{}, IsActive: true}))
	require.NoError(t, store.Create(ctx, &models.ApiKey{ID: "key_2", UserID: 1, Name: "second", Prefix: "jf_a2", KeyHash: "h", Permissions: []string{}, IsActive: true}))
	require.NoError(t, store.Create(ctx, &models.ApiKey{ID: "key_3", UserID: 2, Name: "other-user", Prefix: "jf_a3", KeyHash: "h", Permissions: []string{}, IsActive: true}))

	keys, err := store.ListByUser(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}
