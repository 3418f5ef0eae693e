package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/settleflow/settleflow/internal/bills"
	jobmetrics "github.com/settleflow/settleflow/internal/jobs"
	"github.com/settleflow/settleflow/internal/schedules"
)

// SweepDeps bundles what the daily sweeps need.
type SweepDeps struct {
	Pool      *pgxpool.Pool
	Bills     *bills.Service
	Schedules *schedules.Service
	Metrics   *jobmetrics.Metrics
	Logger    *slog.Logger
}

// NewOverdueRefreshHandler returns the handler for TaskOverdueRefresh.
func NewOverdueRefreshHandler(deps SweepDeps) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SweepPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}

		tracker := deps.Metrics.Track(TaskOverdueRefresh)
		return tracker.End(func() error {
			businessIDs, err := resolveBusinessIDs(ctx, deps.Pool, payload.BusinessID)
			if err != nil {
				return err
			}
			for _, businessID := range businessIDs {
				changed, err := deps.Bills.RefreshOverdueStatus(ctx, businessID)
				if err != nil {
					return err
				}
				deps.Metrics.AddChanges(TaskOverdueRefresh, businessID, changed)
				deps.Logger.Info("overdue refresh sweep",
					slog.Int64("business_id", businessID),
					slog.Int("bills_changed", changed),
				)
			}
			return nil
		}())
	}
}

// NewScheduleSweepHandler returns the handler for TaskScheduleSweep.
func NewScheduleSweepHandler(deps SweepDeps) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SweepPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}

		tracker := deps.Metrics.Track(TaskScheduleSweep)
		return tracker.End(func() error {
			businessIDs, err := resolveBusinessIDs(ctx, deps.Pool, payload.BusinessID)
			if err != nil {
				return err
			}
			for _, businessID := range businessIDs {
				changed, err := deps.Schedules.SweepDue(ctx, businessID)
				if err != nil {
					return err
				}
				deps.Metrics.AddChanges(TaskScheduleSweep, businessID, changed)
				deps.Logger.Info("schedule due sweep",
					slog.Int64("business_id", businessID),
					slog.Int("schedules_overdue", changed),
				)
			}
			return nil
		}())
	}
}

func resolveBusinessIDs(ctx context.Context, pool *pgxpool.Pool, businessID int64) ([]int64, error) {
	if businessID > 0 {
		return []int64{businessID}, nil
	}
	if pool == nil {
		return nil, nil
	}

	rows, err := pool.Query(ctx, `SELECT DISTINCT business_id FROM vendor_bills ORDER BY business_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
