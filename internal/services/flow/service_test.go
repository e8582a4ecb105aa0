package flow

import (
	"context"
	"testing"

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

// fakePublisher records every room/event pair it is asked to publish, so
// tests can assert on the documented push-fabric events without pulling
// in the realtime package.
type fakePublisher struct {
	published []publishedEvent
}

type publishedEvent struct {
	room  string
	event string
}

func (p *fakePublisher) PublishToRoom(room, event string, payload any) {
	p.published = append(p.published, publishedEvent{room: room, event: event})
}

func newTestService(t *testing.T) *Service {
	svc, _ := newTestServiceWithPublisher(t)
	return svc
}

func newTestServiceWithPublisher(t *testing.T) (*Service, *fakePublisher) {
	t.Helper()
	logger := arbor.NewLogger()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	reg := broker.NewRegistry(rdb, logger, []string{"reports"})

	db, err := sqlite.New(logger, &common.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	flows := sqlite.NewFlowStore(db)

	// flows reference users(user_id) with foreign keys enforced; seed
	// user 1, the owner these tests create flows for.
	require.NoError(t, sqlite.NewUserStore(db).Create(context.Background(), &models.User{Username: "owner", PasswordHash: "h"}))

	pub := &fakePublisher{}
	return NewService(reg, flows, pub, logger), pub
}

func TestService_CreateFlow_SubmitsOnlyRoot(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	req := models.CreateFlowRequest{
		FlowName: "nightly-batch",
		Root: models.JobNode{
			Name:      "aggregate",
			QueueName: "reports",
			Children: []models.JobNode{
				{Name: "child-a"},
				{Name: "child-b"},
			},
		},
	}

	f, err := svc.CreateFlow(ctx, req, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, f.RootJobID)
	assert.Equal(t, 3, f.Progress.Summary.Total)
	assert.Equal(t, 2, f.Progress.Summary.Waiting)
	assert.Equal(t, models.FlowStatusRunning, f.Status)
}

func TestService_GetByID_RejectsNonOwner(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	req := models.CreateFlowRequest{FlowName: "f", Root: models.JobNode{Name: "root", QueueName: "reports"}}
	f, err := svc.CreateFlow(ctx, req, 1)
	require.NoError(t, err)

	_, err = svc.GetByID(ctx, f.FlowID, 99)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestService_GetByIDUnauthenticated_IgnoresOwnership(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	req := models.CreateFlowRequest{FlowName: "f", Root: models.JobNode{Name: "root", QueueName: "reports"}}
	f, err := svc.CreateFlow(ctx, req, 1)
	require.NoError(t, err)

	got, err := svc.GetByIDUnauthenticated(ctx, f.FlowID)
	require.NoError(t, err)
	assert.Equal(t, f.FlowID, got.FlowID)
}

func TestService_UpdateFlowProgress_RecomputesStatusOnCompletion(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	req := models.CreateFlowRequest{FlowName: "f", Root: models.JobNode{Name: "root", QueueName: "reports"}}
	f, err := svc.CreateFlow(ctx, req, 1)
	require.NoError(t, err)

	updated, err := svc.UpdateFlowProgress(ctx, f.FlowID, ProgressReport{
		JobName:   "root",
		QueueName: "reports",
		Status:    models.JobStatusCompleted,
		Result:    map[string]any{"ok": true},
	})
	require.NoError(t, err)
	assert.Equal(t, models.FlowStatusCompleted, updated.Status)
	assert.NotNil(t, updated.CompletedAt)
	assert.Equal(t, map[string]any{"ok": true}, updated.Result)
}

func TestService_Delete_RejectsNonOwner(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	req := models.CreateFlowRequest{FlowName: "f", Root: models.JobNode{Name: "root", QueueName: "reports"}}
	f, err := svc.CreateFlow(ctx, req, 1)
	require.NoError(t, err)

	_, err = svc.Delete(ctx, f.FlowID, 99)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	summary, err := svc.Delete(ctx, f.FlowID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Successful)
	assert.Empty(t, summary.Failed)

	_, err = svc.GetByIDUnauthenticated(ctx, f.FlowID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestService_Delete_RemovesJobsReportedByChildren(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	req := models.CreateFlowRequest{
		FlowName: "f",
		Root: models.JobNode{
			Name:      "root",
			QueueName: "reports",
			Children:  []models.JobNode{{Name: "child"}},
		},
	}
	f, err := svc.CreateFlow(ctx, req, 1)
	require.NoError(t, err)

	_, err = svc.UpdateFlowProgress(ctx, f.FlowID, ProgressReport{
		JobID:     "child-job-1",
		JobName:   "child",
		QueueName: "reports",
		Status:    models.JobStatusActive,
	})
	require.NoError(t, err)

	summary, err := svc.Delete(ctx, f.FlowID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Successful)
}

func TestService_Events_EmittedAtDocumentedSteps(t *testing.T) {
	svc, pub := newTestServiceWithPublisher(t)
	ctx := context.Background()

	req := models.CreateFlowRequest{FlowName: "f", Root: models.JobNode{Name: "root", QueueName: "reports"}}
	f, err := svc.CreateFlow(ctx, req, 1)
	require.NoError(t, err)
	require.Contains(t, pub.published, publishedEvent{room: "flow:" + f.FlowID, event: "flow:created"})

	_, err = svc.UpdateFlowProgress(ctx, f.FlowID, ProgressReport{
		JobName:   "root",
		QueueName: "reports",
		Status:    models.JobStatusCompleted,
		Result:    map[string]any{"ok": true},
	})
	require.NoError(t, err)
	assert.Contains(t, pub.published, publishedEvent{room: "flow:" + f.FlowID, event: "flow:job:updated"})
	assert.Contains(t, pub.published, publishedEvent{room: "flow:" + f.FlowID, event: "flow:updated"})
	assert.Contains(t, pub.published, publishedEvent{room: "flow:" + f.FlowID, event: "flow:completed"})

	_, err = svc.Delete(ctx, f.FlowID, 1)
	require.NoError(t, err)
	assert.Contains(t, pub.published, publishedEvent{room: "flow:" + f.FlowID, event: "flow:deleted"})
}
