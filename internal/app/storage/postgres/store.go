// Package postgres is the production StorageClient implementation: runs,
// metric points, and log batches persisted through sqlx over database/sql
// behind the narrow Query/Mutation capability.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/r3e-labs/rlstudio/internal/app/domain/runjob"
	"github.com/r3e-labs/rlstudio/internal/app/storage"
	"github.com/r3e-labs/rlstudio/pkg/apperrors"
)

// Store implements storage.Client backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.Client = (*Store)(nil)

// New wraps an already-open *sql.DB (migrated by internal/platform/migrations).
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

type runRow struct {
	RunID         string         `db:"run_id"`
	JobID         sql.NullString `db:"job_id"`
	Status        string         `db:"status"`
	Progress      float64        `db:"progress"`
	Accelerator   sql.NullString `db:"accelerator"`
	NumNodes      int            `db:"num_nodes"`
	SpotUsed      bool           `db:"spot_used"`
	CostPerHour   float64        `db:"cost_per_hour"`
	DurationMs    int64          `db:"duration_ms"`
	Cost          float64        `db:"cost"`
	LastLogUpdate sql.NullTime   `db:"last_log_update"`
	SubmittedAt   time.Time      `db:"submitted_at"`
	ConfigJSON    []byte         `db:"config_json"`
	Restarts      int            `db:"restarts"`
	Error         sql.NullString `db:"error"`
}

func (r runRow) toDomain() (runjob.Run, error) {
	var cfg runjob.RunConfig
	if len(r.ConfigJSON) > 0 {
		if err := json.Unmarshal(r.ConfigJSON, &cfg); err != nil {
			return runjob.Run{}, err
		}
	}
	run := runjob.Run{
		RunID:       r.RunID,
		JobID:       r.JobID.String,
		Status:      runjob.Status(r.Status),
		Progress:    r.Progress,
		Duration:    time.Duration(r.DurationMs) * time.Millisecond,
		Cost:        r.Cost,
		SubmittedAt: r.SubmittedAt,
		Config:      cfg,
		Restarts:    r.Restarts,
		Error:       r.Error.String,
		Resources: runjob.Resources{
			Accelerator: r.Accelerator.String,
			NumNodes:    r.NumNodes,
			SpotUsed:    r.SpotUsed,
			CostPerHour: r.CostPerHour,
		},
	}
	if r.LastLogUpdate.Valid {
		run.LastLogUpdate = r.LastLogUpdate.Time
	}
	return run, nil
}

func fromDomain(run runjob.Run) (runRow, error) {
	cfgJSON, err := json.Marshal(run.Config)
	if err != nil {
		return runRow{}, err
	}
	row := runRow{
		RunID:       run.RunID,
		JobID:       sql.NullString{String: run.JobID, Valid: run.JobID != ""},
		Status:      string(run.Status),
		Progress:    run.Progress,
		Accelerator: sql.NullString{String: run.Resources.Accelerator, Valid: run.Resources.Accelerator != ""},
		NumNodes:    run.Resources.NumNodes,
		SpotUsed:    run.Resources.SpotUsed,
		CostPerHour: run.Resources.CostPerHour,
		DurationMs:  run.Duration.Milliseconds(),
		Cost:        run.Cost,
		SubmittedAt: run.SubmittedAt,
		ConfigJSON:  cfgJSON,
		Restarts:    run.Restarts,
		Error:       sql.NullString{String: run.Error, Valid: run.Error != ""},
	}
	if !run.LastLogUpdate.IsZero() {
		row.LastLogUpdate = sql.NullTime{Time: run.LastLogUpdate, Valid: true}
	}
	return row, nil
}

type metricRow struct {
	RunID     string    `db:"run_id"`
	Step      int64     `db:"step"`
	Reward    float64   `db:"reward"`
	Loss      *float64  `db:"loss"`
	Entropy   *float64  `db:"entropy"`
	ValueLoss *float64  `db:"value_loss"`
	WallClock time.Time `db:"wall_clock"`
}

func (m metricRow) toDomain() runjob.MetricPoint {
	return runjob.MetricPoint{
		RunID:     m.RunID,
		Step:      m.Step,
		Reward:    m.Reward,
		Loss:      m.Loss,
		Entropy:   m.Entropy,
		ValueLoss: m.ValueLoss,
		WallClock: m.WallClock,
	}
}

type logRow struct {
	RunID     string    `db:"run_id"`
	Level     string    `db:"log_level"`
	Message   string    `db:"message"`
	Truncated bool      `db:"truncated"`
	WallClock time.Time `db:"wall_clock"`
}

func (l logRow) toDomain() runjob.LogBatch {
	return runjob.LogBatch{
		RunID:     l.RunID,
		Level:     runjob.LogLevel(l.Level),
		Message:   l.Message,
		Truncated: l.Truncated,
		WallClock: l.WallClock,
	}
}

// Query implements storage.Client.
func (s *Store) Query(ctx context.Context, path string, args storage.Args) (interface{}, error) {
	switch path {
	case "runs/get":
		runID, _ := args["runId"].(string)
		var row runRow
		err := s.db.GetContext(ctx, &row, `SELECT * FROM rl_runs WHERE run_id = $1`, runID)
		if err == sql.ErrNoRows {
			return nil, apperrors.ResourceNotFound("run", runID)
		}
		if err != nil {
			return nil, apperrors.External("postgres", err)
		}
		return row.toDomain()
	case "runs/list":
		var rows []runRow
		err := s.db.SelectContext(ctx, &rows, `SELECT * FROM rl_runs ORDER BY submitted_at ASC`)
		if err != nil {
			return nil, apperrors.External("postgres", err)
		}
		out := make([]runjob.Run, 0, len(rows))
		for _, row := range rows {
			run, err := row.toDomain()
			if err != nil {
				return nil, apperrors.External("postgres", err)
			}
			out = append(out, run)
		}
		return out, nil
	case "runs/metrics/list":
		runID, _ := args["runId"].(string)
		var rows []metricRow
		err := s.db.SelectContext(ctx, &rows, `
			SELECT run_id, step, reward, loss, entropy, value_loss, wall_clock
			FROM rl_run_metrics WHERE run_id = $1 ORDER BY step ASC`, runID)
		if err != nil {
			return nil, apperrors.External("postgres", err)
		}
		out := make([]runjob.MetricPoint, 0, len(rows))
		for _, row := range rows {
			out = append(out, row.toDomain())
		}
		return out, nil
	case "runs/logs/list":
		runID, _ := args["runId"].(string)
		var rows []logRow
		err := s.db.SelectContext(ctx, &rows, `
			SELECT run_id, log_level, message, truncated, wall_clock
			FROM rl_run_logs WHERE run_id = $1 ORDER BY wall_clock ASC`, runID)
		if err != nil {
			return nil, apperrors.External("postgres", err)
		}
		out := make([]runjob.LogBatch, 0, len(rows))
		for _, row := range rows {
			out = append(out, row.toDomain())
		}
		return out, nil
	default:
		return nil, apperrors.ResourceNotFound("query-path", path)
	}
}

// Mutation implements storage.Client.
func (s *Store) Mutation(ctx context.Context, path string, args storage.Args) (interface{}, error) {
	switch path {
	case "runs/create", "runs/update":
		run, _ := args["run"].(runjob.Run)
		row, err := fromDomain(run)
		if err != nil {
			return nil, apperrors.External("postgres", err)
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO rl_runs (
				run_id, job_id, status, progress, accelerator, num_nodes, spot_used,
				cost_per_hour, duration_ms, cost, last_log_update, submitted_at,
				config_json, restarts, error
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			ON CONFLICT (run_id) DO UPDATE SET
				job_id = EXCLUDED.job_id, status = EXCLUDED.status, progress = EXCLUDED.progress,
				accelerator = EXCLUDED.accelerator, num_nodes = EXCLUDED.num_nodes,
				spot_used = EXCLUDED.spot_used, cost_per_hour = EXCLUDED.cost_per_hour,
				duration_ms = EXCLUDED.duration_ms, cost = EXCLUDED.cost,
				last_log_update = EXCLUDED.last_log_update, config_json = EXCLUDED.config_json,
				restarts = EXCLUDED.restarts, error = EXCLUDED.error
		`, row.RunID, row.JobID, row.Status, row.Progress, row.Accelerator, row.NumNodes,
			row.SpotUsed, row.CostPerHour, row.DurationMs, row.Cost, row.LastLogUpdate,
			row.SubmittedAt, row.ConfigJSON, row.Restarts, row.Error)
		if err != nil {
			return nil, apperrors.External("postgres", err)
		}
		return run, nil
	case "runs/metrics/append":
		point, _ := args["point"].(runjob.MetricPoint)
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO rl_run_metrics (run_id, step, reward, loss, entropy, value_loss, wall_clock)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			point.RunID, point.Step, point.Reward, point.Loss, point.Entropy, point.ValueLoss, point.WallClock)
		if err != nil {
			return nil, apperrors.External("postgres", err)
		}
		return nil, nil
	case "runs/logs/append":
		batch, _ := args["batch"].(runjob.LogBatch)
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO rl_run_logs (run_id, log_level, message, truncated, wall_clock)
			VALUES ($1,$2,$3,$4,$5)`,
			batch.RunID, string(batch.Level), batch.Message, batch.Truncated, batch.WallClock)
		if err != nil {
			return nil, apperrors.External("postgres", err)
		}
		return nil, nil
	default:
		return nil, apperrors.ResourceNotFound("mutation-path", path)
	}
}
