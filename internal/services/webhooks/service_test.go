package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobforge/internal/apperr"
	"github.com/ternarybob/jobforge/internal/broker"
	"github.com/ternarybob/jobforge/internal/common"
	"github.com/ternarybob/jobforge/internal/models"
	"github.com/ternarybob/jobforge/internal/storage/sqlite"
)

func newTestService(t *testing.T, cfg *common.WebhookConfig) (*Service, *sqlite.UserStore) {
	t.Helper()
	logger := arbor.NewLogger()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	reg := broker.NewRegistry(rdb, logger, []string{"reports"})

	db, err := sqlite.New(logger, &common.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	seedUsers(t, db, 1, 7)

	store := sqlite.NewWebhookStore(db)
	users := sqlite.NewUserStore(db)

	if cfg == nil {
		cfg = &common.WebhookConfig{RequestTimeout: "2s", MaxRetries: 1, RateLimitPerHost: 1000}
	}
	return NewService(store, users, reg, cfg, logger), users
}

// seedUsers inserts users rows with the given ids: webhooks reference
// users(user_id) and foreign keys are enforced.
func seedUsers(t *testing.T, db *sqlite.DB, ids ...int64) {
	t.Helper()
	now := time.Now().UTC()
	for _, id := range ids {
		_, err := db.DB().Exec(`INSERT INTO users (user_id, username, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			id, "owner-"+strconv.FormatInt(id, 10), "h", now, now)
		require.NoError(t, err)
	}
}

func TestService_RegisterListGetUpdateDelete(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	w, err := svc.Register(ctx, 1, "https://example.com/hook", models.WebhookEventCompleted, "ci notifications")
	require.NoError(t, err)

	list, err := svc.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)

	got, err := svc.Get(ctx, w.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, w.URL, got.URL)

	updated, err := svc.Update(ctx, w.ID, 1, "https://example.com/hook2", models.WebhookEventFailed, "updated", false)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/hook2", updated.URL)
	assert.False(t, updated.Active)

	require.NoError(t, svc.Delete(ctx, w.ID, 1))
	_, err = svc.Get(ctx, w.ID, 1)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestService_Update_RejectsNonOwner(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	w, err := svc.Register(ctx, 1, "https://example.com/hook", models.WebhookEventCompleted, "")
	require.NoError(t, err)

	_, err = svc.Update(ctx, w.ID, 99, "https://example.com/other", models.WebhookEventCompleted, "", true)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestService_Deliver_PostsToRegisteredTarget(t *testing.T) {
	var received int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.Register(ctx, 7, server.URL, models.WebhookEventCompleted, "")
	require.NoError(t, err)

	deliveryJob := &models.Job{ID: "dj_1", Name: "deliver-webhook", Data: map[string]any{
		"userId": int64(7), "jobId": "job_1", "jobName": "generate", "eventType": "completed",
		"payload": map[string]any{"result": "ok"},
	}}
	svc.deliver(ctx, deliveryJob)

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&received) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestService_Deliver_FallsBackToLegacyUserWebhookURL(t *testing.T) {
	var received int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc, users := newTestService(t, nil)
	ctx := context.Background()

	u := &models.User{Username: "alice", PasswordHash: "h", WebhookURL: server.URL}
	require.NoError(t, users.Create(ctx, u))

	deliveryJob := &models.Job{ID: "dj_1", Name: "deliver-webhook", Data: map[string]any{
		"userId": u.UserID, "jobId": "job_1", "jobName": "generate", "eventType": "completed",
		"payload": map[string]any{"result": "ok"},
	}}
	svc.deliver(ctx, deliveryJob)

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&received) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestService_Post_DoesNotRetryOn4xx(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	svc, _ := newTestService(t, &common.WebhookConfig{RequestTimeout: "2s", MaxRetries: 3, RateLimitPerHost: 1000})

	svc.post(context.Background(), server.URL, "job_1", "generate", "completed", nil)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts), "4xx responses are permanent failures, not retried")
}

func TestService_Run_DrainsEnqueuedDeliveryJobs(t *testing.T) {
	var received int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	logger := arbor.NewLogger()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	reg := broker.NewRegistry(rdb, logger, []string{"webhooks"})

	db, err := sqlite.New(logger, &common.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	seedUsers(t, db, 7)

	store := sqlite.NewWebhookStore(db)
	users := sqlite.NewUserStore(db)
	svc := NewService(store, users, reg, &common.WebhookConfig{RequestTimeout: "2s", MaxRetries: 1, RateLimitPerHost: 1000}, logger)

	_, err = svc.Register(context.Background(), 7, server.URL, models.WebhookEventCompleted, "")
	require.NoError(t, err)

	wq, err := reg.GetQueue("webhooks")
	require.NoError(t, err)
	_, err = wq.Enqueue(context.Background(), "deliver-webhook", map[string]any{
		"userId": int64(7), "jobId": "job_1", "jobName": "generate", "eventType": "completed",
		"payload": map[string]any{"result": "ok"},
	}, models.DefaultJobOpts())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx, "webhooks")
		close(done)
	}()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&received) == 1 }, 2*time.Second, 10*time.Millisecond,
		"Run should dequeue and deliver the enqueued job without any pub/sub event firing")

	cancel()
	<-done
}

func TestService_LimiterFor_ReturnsSameLimiterForSameHost(t *testing.T) {
	svc, _ := newTestService(t, nil)
	a := svc.limiterFor("https://example.com/hook-a")
	b := svc.limiterFor("https://example.com/hook-b")
	c := svc.limiterFor("https://other.example.com/hook")

	assert.Same(t, a, b, "same host should share one token bucket regardless of path")
	assert.NotSame(t, a, c)
}
