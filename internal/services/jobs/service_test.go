package jobs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobforge/internal/apperr"
	"github.com/ternarybob/jobforge/internal/broker"
	"github.com/ternarybob/jobforge/internal/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	reg := broker.NewRegistry(rdb, arbor.NewLogger(), []string{"reports"})
	return NewService(reg)
}

func TestService_Submit_StampsCallerIdentity(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	job, err := svc.Submit(ctx, "reports", "generate", nil, nil, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), job.OwnerUserID())
}

func TestService_Submit_RejectsUnknownQueue(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Submit(context.Background(), "not-allowed", "generate", nil, nil, 1)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestService_Submit_FallsBackToDefaultOptsOnBadJSON(t *testing.T) {
	svc := newTestService(t)
	job, err := svc.Submit(context.Background(), "reports", "generate", nil, json.RawMessage(`not json`), 1)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultJobOpts(), job.Opts)
}

func TestService_Get_RejectsNonOwner(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	job, err := svc.Submit(ctx, "reports", "generate", nil, nil, 7)
	require.NoError(t, err)

	_, err = svc.Get(ctx, "reports", job.ID, 99)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	owned, err := svc.Get(ctx, "reports", job.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, job.ID, owned.ID)
}

func TestService_List_FiltersToCallerAndPaginates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Submit(ctx, "reports", "generate", nil, nil, 1)
		require.NoError(t, err)
	}
	_, err := svc.Submit(ctx, "reports", "generate", nil, nil, 2)
	require.NoError(t, err)

	list, pagination, err := svc.List(ctx, "reports", nil, 1, 1, 2)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 3, pagination.Total)
	assert.Equal(t, 2, pagination.Pages)

	for _, j := range list {
		assert.Equal(t, int64(1), j.OwnerUserID())
	}
}

func TestService_Delete_RejectsNonOwner(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	job, err := svc.Submit(ctx, "reports", "generate", nil, nil, 7)
	require.NoError(t, err)

	err = svc.Delete(ctx, "reports", job.ID, 99)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	require.NoError(t, svc.Delete(ctx, "reports", job.ID, 7))
	_, err = svc.Get(ctx, "reports", job.ID, 7)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
