// Package flow implements the Flow Orchestrator (C4): creating a job
// tree as a single broker submission of its root, tracking per-job
// progress as children report in, and deriving flow-level status.
package flow

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobforge/internal/apperr"
	"github.com/ternarybob/jobforge/internal/broker"
	"github.com/ternarybob/jobforge/internal/common"
	"github.com/ternarybob/jobforge/internal/flowlock"
	"github.com/ternarybob/jobforge/internal/models"
	"github.com/ternarybob/jobforge/internal/storage/sqlite"
)

// Publisher is the subset of the push-channel hub this package depends
// on, kept narrow so flow does not need to import realtime directly.
type Publisher interface {
	PublishToRoom(room string, event string, payload any)
}

type Service struct {
	registry  *broker.Registry
	flows     *sqlite.FlowStore
	locks     *flowlock.Striped
	publisher Publisher
	logger    arbor.ILogger
}

func NewService(registry *broker.Registry, flows *sqlite.FlowStore, publisher Publisher, logger arbor.ILogger) *Service {
	return &Service{registry: registry, flows: flows, locks: flowlock.New(), publisher: publisher, logger: logger}
}

func roomForFlow(flowID string) string { return "flow:" + flowID }

// CreateFlow mints a flowId, stamps flow metadata into every node of
// the tree, submits only the root to the broker, and persists the
// resulting Flow row — per §4.4 step 1-2. Only the root is submitted;
// children are expected to be enqueued by the root job itself (or by
// workers downstream) as they become runnable.
func (s *Service) CreateFlow(ctx context.Context, req models.CreateFlowRequest, userID int64) (*models.Flow, error) {
	total, err := models.CountTotalJobs(&req.Root)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}

	flowID := common.NewFlowID()
	now := time.Now()

	if err := models.InjectFlowMetadata(&req.Root, flowID, req.FlowName, now.UnixMilli()); err != nil {
		return nil, apperr.Validation(err.Error())
	}

	q, err := s.registry.GetQueue(req.Root.QueueName)
	if err != nil {
		return nil, err
	}

	data := req.Root.Data
	if data == nil {
		data = map[string]any{}
	}
	data["userId"] = userID

	rootJob, err := q.Enqueue(ctx, req.Root.Name, data, req.Root.Opts)
	if err != nil {
		return nil, err
	}
	req.Root.JobID = rootJob.ID

	flowRow := &models.Flow{
		FlowID:       flowID,
		FlowName:     req.FlowName,
		Name:         req.Root.Name,
		QueueName:    req.Root.QueueName,
		UserID:       userID,
		RootJobID:    rootJob.ID,
		Status:       models.FlowStatusPending,
		JobStructure: req.Root,
		Progress:     models.InitializeProgress(total),
		StartedAt:    &now,
	}
	flowRow.Status = models.DeriveStatus(flowRow.Status, flowRow.Progress)

	if err := s.flows.Create(ctx, flowRow); err != nil {
		return nil, err
	}

	s.publisher.PublishToRoom(roomForFlow(flowID), "flow:created", flowRow)
	return flowRow, nil
}

// ProgressReport is what a reporting job (or the event demultiplexer on
// its behalf) supplies for one node of the tree.
type ProgressReport struct {
	JobID     string
	JobName   string
	QueueName string
	Status    models.JobStatus
	Result    any
	Error     string
	Progress  any
}

// UpdateFlowProgress applies one job's status report to the flow's
// progress document under the flowId's lock stripe, recomputes the
// summary and derived status, and mirrors a completed/failed root onto
// the flow row itself — per §4.4 steps 3-6.
func (s *Service) UpdateFlowProgress(ctx context.Context, flowID string, report ProgressReport) (*models.Flow, error) {
	var result *models.Flow

	err := s.locks.With(flowID, func() error {
		f, err := s.flows.GetByID(ctx, flowID)
		if err != nil {
			return err
		}

		total, err := models.CountTotalJobs(&f.JobStructure)
		if err != nil {
			return apperr.Fatal("flow job tree exceeds max depth", err)
		}

		entry := models.JobProgress{
			JobID:     report.JobID,
			Name:      report.JobName,
			QueueName: report.QueueName,
			Status:    report.Status,
			Result:    report.Result,
			Error:     report.Error,
			Progress:  report.Progress,
		}
		if report.Status == models.JobStatusCompleted || report.Status == models.JobStatusFailed {
			entry.CompletedAt = time.Now().UnixMilli()
		}
		f.Progress.Jobs[report.JobName] = entry
		f.Progress.Recount(total)

		prevStatus := f.Status
		f.Status = models.DeriveStatus(f.Status, f.Progress)

		if f.RootJobID != "" && report.JobName == f.JobStructure.Name {
			if report.Status == models.JobStatusCompleted {
				f.Result = report.Result
			}
			if report.Status == models.JobStatusFailed {
				f.Error = report.Error
			}
		}

		now := time.Now()
		if prevStatus == models.FlowStatusPending && f.Status == models.FlowStatusRunning {
			f.StartedAt = &now
		}
		if f.Status.Terminal() && f.CompletedAt == nil {
			f.CompletedAt = &now
		}

		if err := s.flows.Update(ctx, f); err != nil {
			return err
		}

		s.publisher.PublishToRoom(roomForFlow(flowID), "flow:job:updated", entry)
		s.publisher.PublishToRoom(roomForFlow(flowID), "flow:updated", f)
		if prevStatus != models.FlowStatusCompleted && f.Status == models.FlowStatusCompleted {
			s.publisher.PublishToRoom(roomForFlow(flowID), "flow:completed", f)
		}

		result = f
		return nil
	})

	return result, err
}

// GetByID loads a flow, rejecting access from a non-owner.
func (s *Service) GetByID(ctx context.Context, flowID string, userID int64) (*models.Flow, error) {
	f, err := s.flows.GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if f.UserID != userID {
		return nil, apperr.Forbidden("flow does not belong to caller")
	}
	return f, nil
}

// GetByIDUnauthenticated loads a flow with no ownership check, for the
// read-only GET /flows/{id} route, which §6 marks "— (read-only)":
// anything holding a flowId (including a reporting worker) may read it.
func (s *Service) GetByIDUnauthenticated(ctx context.Context, flowID string) (*models.Flow, error) {
	return s.flows.GetByID(ctx, flowID)
}

// List returns the caller's own flows.
func (s *Service) List(ctx context.Context, userID int64) ([]*models.Flow, error) {
	return s.flows.ListByUser(ctx, userID)
}

// AsCreateRequest reconstructs the original createFlow request shape
// from a persisted flow's jobStructure, for read-path callers that want
// to inspect or resubmit the tree.
func (s *Service) AsCreateRequest(f *models.Flow) models.CreateFlowRequest {
	return models.CreateFlowRequest{FlowName: f.FlowName, Root: f.JobStructure}
}

// JobRemovalResult records the outcome of removing one broker job during
// a flow delete.
type JobRemovalResult struct {
	JobID     string `json:"jobId"`
	QueueName string `json:"queueName"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// DeleteSummary is returned by Delete, per §4.4 step 4.
type DeleteSummary struct {
	Total      int                 `json:"total"`
	Successful int                 `json:"successful"`
	Failed     []string            `json:"failed"`
	Details    []JobRemovalResult  `json:"details"`
}

const (
	removalStatusSuccess  = "success"
	removalStatusNotFound = "not_found"
	removalStatusFailed   = "failed"
)

// Delete removes a flow and every broker job recorded against it — the
// root plus any child that has reported progress and so left a jobId
// behind in progress.jobs — per §4.4's delete-cascade. Each removal is
// independent and best-effort: one child failing to remove does not
// stop the rest or the flow row itself from being deleted.
func (s *Service) Delete(ctx context.Context, flowID string, userID int64) (DeleteSummary, error) {
	f, err := s.GetByID(ctx, flowID, userID)
	if err != nil {
		return DeleteSummary{}, err
	}

	jobs := map[string]JobRemovalResult{}
	if f.RootJobID != "" {
		jobs[f.RootJobID] = JobRemovalResult{JobID: f.RootJobID, QueueName: f.QueueName}
	}
	for _, entry := range f.Progress.Jobs {
		if entry.JobID == "" {
			continue
		}
		if _, exists := jobs[entry.JobID]; !exists {
			jobs[entry.JobID] = JobRemovalResult{JobID: entry.JobID, QueueName: entry.QueueName}
		}
	}

	summary := DeleteSummary{Total: len(jobs), Failed: []string{}, Details: make([]JobRemovalResult, 0, len(jobs))}
	for jobID, result := range jobs {
		q, err := s.registry.GetQueue(result.QueueName)
		if err != nil {
			result.Status = removalStatusFailed
			result.Error = err.Error()
			summary.Failed = append(summary.Failed, jobID)
			summary.Details = append(summary.Details, result)
			continue
		}

		if err := q.RemoveJob(ctx, jobID); err != nil {
			if apperr.KindOf(err) == apperr.KindNotFound {
				result.Status = removalStatusNotFound
				summary.Successful++
			} else {
				result.Status = removalStatusFailed
				result.Error = err.Error()
				summary.Failed = append(summary.Failed, jobID)
				s.logger.Warn().Err(err).Str("flow_id", flowID).Str("job_id", jobID).Msg("failed to remove job during flow delete")
			}
		} else {
			result.Status = removalStatusSuccess
			summary.Successful++
		}
		summary.Details = append(summary.Details, result)
	}

	if err := s.flows.Delete(ctx, flowID, userID); err != nil {
		return DeleteSummary{}, err
	}

	s.publisher.PublishToRoom(roomForFlow(flowID), "flow:deleted", summary)
	return summary, nil
}
