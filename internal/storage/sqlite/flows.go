package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/ternarybob/jobforge/internal/apperr"
	"github.com/ternarybob/jobforge/internal/models"
)

// FlowStore persists the Flow entity (C4). jobStructure and progress are
// stored as JSON blobs since their shape is a recursive tree / a
// dynamic per-job-name map, not a fixed relational shape.
type FlowStore struct{ db *DB }

func NewFlowStore(db *DB) *FlowStore { return &FlowStore{db: db} }

func (s *FlowStore) Create(ctx context.Context, f *models.Flow) error {
	structure, progress, result, err := marshalFlow(f)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt = now, now

	_, err = s.db.db.ExecContext(ctx, `
		INSERT INTO flows (flow_id, flow_name, name, queue_name, user_id, root_job_id, status,
		                    job_structure, progress, result, error, created_at, updated_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.FlowID, f.FlowName, f.Name, f.QueueName, f.UserID, f.RootJobID, string(f.Status),
		structure, progress, result, f.Error, f.CreatedAt, f.UpdatedAt, f.StartedAt, f.CompletedAt)
	if err != nil {
		return apperr.Transient("failed to create flow", err)
	}
	return nil
}

// Update persists the full row, used after every progress recomputation
// (caller holds the per-flowId flowlock stripe across read+Update).
func (s *FlowStore) Update(ctx context.Context, f *models.Flow) error {
	structure, progress, result, err := marshalFlow(f)
	if err != nil {
		return err
	}
	f.UpdatedAt = time.Now().UTC()

	res, err := s.db.db.ExecContext(ctx, `
		UPDATE flows SET root_job_id = ?, status = ?, job_structure = ?, progress = ?,
		                  result = ?, error = ?, updated_at = ?, started_at = ?, completed_at = ?
		WHERE flow_id = ?`,
		f.RootJobID, string(f.Status), structure, progress, result, f.Error,
		f.UpdatedAt, f.StartedAt, f.CompletedAt, f.FlowID)
	if err != nil {
		return apperr.Transient("failed to update flow", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.NotFound("flow not found")
	}
	return nil
}

func (s *FlowStore) GetByID(ctx context.Context, flowID string) (*models.Flow, error) {
	return s.scanOne(s.db.db.QueryRowContext(ctx, flowSelect+" WHERE flow_id = ?", flowID))
}

func (s *FlowStore) ListByUser(ctx context.Context, userID int64) ([]*models.Flow, error) {
	rows, err := s.db.db.QueryContext(ctx, flowSelect+" WHERE user_id = ? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, apperr.Transient("failed to list flows", err)
	}
	defer rows.Close()

	var out []*models.Flow
	for rows.Next() {
		f, err := scanFlow(rowsScanner{rows})
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *FlowStore) Delete(ctx context.Context, flowID string, userID int64) error {
	res, err := s.db.db.ExecContext(ctx, `DELETE FROM flows WHERE flow_id = ? AND user_id = ?`, flowID, userID)
	if err != nil {
		return apperr.Transient("failed to delete flow", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.NotFound("flow not found")
	}
	return nil
}

const flowSelect = `
	SELECT flow_id, flow_name, name, queue_name, user_id, COALESCE(root_job_id, ''), status,
	       job_structure, progress, result, COALESCE(error, ''), created_at, updated_at, started_at, completed_at
	FROM flows`

func marshalFlow(f *models.Flow) (structure, progress []byte, result sql.NullString, err error) {
	structure, err = json.Marshal(f.JobStructure)
	if err != nil {
		return nil, nil, result, apperr.Fatal("failed to marshal job structure", err)
	}
	progress, err = json.Marshal(f.Progress)
	if err != nil {
		return nil, nil, result, apperr.Fatal("failed to marshal flow progress", err)
	}
	if f.Result != nil {
		raw, err := json.Marshal(f.Result)
		if err != nil {
			return nil, nil, result, apperr.Fatal("failed to marshal flow result", err)
		}
		result = sql.NullString{String: string(raw), Valid: true}
	}
	return structure, progress, result, nil
}

// rowScanner abstracts over *sql.Row and *sql.Rows so scanFlow can serve
// both GetByID and ListByUser.
type rowScanner interface {
	Scan(dest ...any) error
}

type rowsScanner struct{ rows *sql.Rows }

func (r rowsScanner) Scan(dest ...any) error { return r.rows.Scan(dest...) }

func (s *FlowStore) scanOne(row *sql.Row) (*models.Flow, error) {
	f, err := scanFlow(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("flow not found")
	}
	return f, err
}

func scanFlow(row rowScanner) (*models.Flow, error) {
	var f models.Flow
	var status, structure, progress string
	var result sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&f.FlowID, &f.FlowName, &f.Name, &f.QueueName, &f.UserID, &f.RootJobID, &status,
		&structure, &progress, &result, &f.Error, &f.CreatedAt, &f.UpdatedAt, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, apperr.Transient("failed to load flow", err)
	}

	f.Status = models.FlowStatus(status)
	if err := json.Unmarshal([]byte(structure), &f.JobStructure); err != nil {
		return nil, apperr.Fatal("failed to decode job structure", err)
	}
	if err := json.Unmarshal([]byte(progress), &f.Progress); err != nil {
		return nil, apperr.Fatal("failed to decode flow progress", err)
	}
	if result.Valid {
		var v any
		if err := json.Unmarshal([]byte(result.String), &v); err != nil {
			return nil, apperr.Fatal("failed to decode flow result", err)
		}
		f.Result = v
	}
	if startedAt.Valid {
		f.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		f.CompletedAt = &completedAt.Time
	}
	return &f, nil
}
