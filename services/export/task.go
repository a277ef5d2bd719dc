package export

import (
	"context"
	"fmt"
	"time"

	"github.com/gosimple/slug"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// HandleSnapshotTask runs the nightly standings upload. Without an object
// store the snapshot stays available over HTTP and the task is a logged
// no-op rather than a retry loop.
func (s *Service) HandleSnapshotTask(ctx context.Context, t *asynq.Task) error {
	data, stale, err := s.Snapshot(ctx)
	if err != nil {
		zap.L().Error("snapshot build failed", zap.String("task_type", t.Type()), zap.Error(err))
		return err
	}

	if s.blobs == nil {
		zap.L().Info("no object store configured, snapshot upload skipped")
		return nil
	}

	cycleID := time.Now().UTC().Format("2006-01")

	label := "standings"
	if s.seq != nil {
		if code, err := s.seq.NextExportCode(ctx, cycleID); err == nil {
			label = code
		}
	}

	key := fmt.Sprintf("reports/%s/%s.csv", cycleID, slug.Make(label))
	if _, err := s.blobs.Put(ctx, key, data, "text/csv"); err != nil {
		zap.L().Error("snapshot upload failed", zap.String("key", key), zap.Error(err))
		return err
	}

	zap.L().Info("standings snapshot uploaded",
		zap.String("key", key),
		zap.Int("bytes", len(data)),
		zap.Bool("stale", stale),
	)
	return nil
}
