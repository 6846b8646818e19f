package services

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"trusight/logger"
)

const purgeTimeout = time.Minute

type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Scheduler runs periodic maintenance jobs.
type Scheduler struct {
	cron *cron.Cron
}

func NewScheduler() *Scheduler {
	return &Scheduler{cron: cron.New()}
}

// SchedulePurge registers p to run on spec, e.g. "@hourly".
func (s *Scheduler) SchedulePurge(spec string, p Purger) (cron.EntryID, error) {
	return s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
		defer cancel()
		if _, err := p.PurgeExpired(ctx); err != nil {
			logger.Log.Errorf("[SCHEDULER] purge failed: %v", err)
		}
	})
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Log.Infof("[SCHEDULER] started with %d jobs", len(s.cron.Entries()))
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
