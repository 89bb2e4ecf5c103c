package ingestion

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/r3e-labs/rlstudio/internal/app/domain/runjob"
	"github.com/r3e-labs/rlstudio/internal/app/storage"
	"github.com/r3e-labs/rlstudio/pkg/apperrors"
)

// enqueueOrWrite pushes payload onto the Redis list for (kind, runID) when a
// Redis client is configured, falling back to writeThrough otherwise. A push
// failure also falls back to writeThrough so ingestion degrades rather than
// drops data when Redis is unavailable.
func (s *Service) enqueueOrWrite(ctx context.Context, kind, runID string, payload interface{}, writeThrough func() error) error {
	if s.redis == nil {
		return writeThrough()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return apperrors.External("ingestion-queue", err)
	}

	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, queueKey(kind, runID), data)
	pipe.SAdd(ctx, queueIndex(kind), runID)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.WithError(err).WithField("run_id", runID).Warn("ingestion queue push failed, writing through")
		return writeThrough()
	}
	return nil
}

// consume runs a poll loop draining every known runId's queue for kind,
// hash-partitioned only in the sense that each runId's queue is drained
// independently so one slow run never blocks another's ingestion.
func (s *Service) consume(ctx context.Context, kind string, drain func(ctx context.Context, runID string) error) {
	defer s.wg.Done()
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.drainAll(ctx, kind, drain)
		}
	}
}

func (s *Service) drainAll(ctx context.Context, kind string, drain func(ctx context.Context, runID string) error) {
	runIDs, err := s.redis.SMembers(ctx, queueIndex(kind)).Result()
	if err != nil {
		s.log.WithError(err).Warn("list ingestion run ids failed")
		return
	}
	for _, runID := range runIDs {
		if err := drain(ctx, runID); err != nil {
			s.log.WithError(err).WithField("run_id", runID).Warn("drain ingestion queue failed")
		}
	}
}

func (s *Service) drainMetric(ctx context.Context, runID string) error {
	for {
		raw, err := s.redis.LPop(ctx, queueKey("metrics", runID)).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		var point runjob.MetricPoint
		if err := json.Unmarshal([]byte(raw), &point); err != nil {
			continue
		}
		if _, err := s.storage.Mutation(ctx, "runs/metrics/append", storage.Args{"point": point}); err != nil {
			return err
		}
	}
}

func (s *Service) drainLog(ctx context.Context, runID string) error {
	for {
		raw, err := s.redis.LPop(ctx, queueKey("logs", runID)).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		var batch runjob.LogBatch
		if err := json.Unmarshal([]byte(raw), &batch); err != nil {
			continue
		}
		if _, err := s.storage.Mutation(ctx, "runs/logs/append", storage.Args{"batch": batch}); err != nil {
			return err
		}
	}
}
