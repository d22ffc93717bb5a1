package relayer

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultRetentionSpec runs the audit pruning job hourly.
const DefaultRetentionSpec = "@hourly"

type retentionJob struct {
	s         *Service
	retention time.Duration
	cron      *cron.Cron
}

func newRetentionJob(s *Service, spec string, retention time.Duration) (*retentionJob, error) {
	if spec == "" {
		spec = DefaultRetentionSpec
	}
	j := &retentionJob{s: s, retention: retention, cron: cron.New()}
	if _, err := j.cron.AddFunc(spec, func() { _, _ = j.prune(context.Background()) }); err != nil {
		return nil, fmt.Errorf("relayer: retention schedule %q: %w", spec, err)
	}
	return j, nil
}

// run is a BaseService worker: the cron scheduler lives as long as the service.
func (j *retentionJob) run(ctx context.Context) {
	j.cron.Start()
	select {
	case <-ctx.Done():
	case <-j.s.StopChan():
	}
	<-j.cron.Stop().Done()
}

func (j *retentionJob) prune(ctx context.Context) (int64, error) {
	cutoff := j.s.now().Add(-j.retention)
	n, err := j.s.store.PruneRelays(ctx, cutoff)
	if err != nil {
		j.s.Logger().WithContext(ctx).WithError(err).Warn("Audit retention failed")
		return 0, err
	}
	if j.s.metrics != nil {
		j.s.metrics.RecordPruned(n)
	}
	if n > 0 {
		j.s.Logger().WithFields(map[string]interface{}{
			"removed": n,
			"cutoff":  cutoff.UTC().Format(time.RFC3339),
		}).Info("Pruned relay audit records")
	}
	return n, nil
}
