package scheduler

import (
	"context"
	"time"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Periodic enqueues the lead sync run on a cron schedule.
type Periodic struct {
	scheduler *asynq.Scheduler
	schedule  string
	log       *logger.Logger
}

// NewPeriodic registers TaskLeadSyncRun on the configured schedule.
func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*Periodic, error) {
	opt, err := connOpt(cfg)
	if err != nil {
		return nil, err
	}

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		Location: time.UTC,
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				log.Error("periodic lead sync enqueue failed", "error", err)
				return
			}
			log.Debug("periodic lead sync enqueued", "task_id", info.ID)
		},
	})

	task, err := NewLeadSyncRunTask(LeadSyncRunPayload{Trigger: "schedule"})
	if err != nil {
		return nil, err
	}

	schedule := cfg.GetLeadSyncSchedule()
	// Unique drops a tick while the previous run is still queued.
	if _, err := scheduler.Register(schedule, task, asynq.Queue(queueName(cfg)), asynq.Unique(time.Minute)); err != nil {
		return nil, err
	}

	return &Periodic{scheduler: scheduler, schedule: schedule, log: log}, nil
}

// Run starts the scheduler and stops it when ctx is done.
func (p *Periodic) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}

	if err := p.scheduler.Start(); err != nil {
		p.log.Error("periodic scheduler failed to start", "error", err)
		return
	}
	p.log.Info("periodic lead sync scheduled", "schedule", p.schedule)

	<-ctx.Done()
	p.scheduler.Shutdown()
}
