package dispatch

import (
	"context"
	"time"

	"go-whatsapp-crm/src/application/usecases/broadcast"
	"go-whatsapp-crm/src/application/usecases/scheduled"
	logger "go-whatsapp-crm/src/infrastructure/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Processor drives the periodic dispatch run. Each run works through three
// phases under a single run lease: reclaim stuck claims, dispatch due
// scheduled messages, then advance broadcast fan-out. A phase failure is
// logged and the later phases still run.
type Processor struct {
	scheduledUseCase scheduled.IScheduledMessageUseCase
	broadcastUseCase broadcast.IBroadcastUseCase
	lease            RunLease
	cronRunner       *cron.Cron
	Logger           *logger.Logger
}

func NewProcessor(
	scheduledUseCase scheduled.IScheduledMessageUseCase,
	broadcastUseCase broadcast.IBroadcastUseCase,
	lease RunLease,
	loggerInstance *logger.Logger,
) *Processor {
	return &Processor{
		scheduledUseCase: scheduledUseCase,
		broadcastUseCase: broadcastUseCase,
		lease:            lease,
		Logger:           loggerInstance,
	}
}

// RunOnce executes one full dispatch cycle. It returns nil when another
// instance holds the lease; overlapping invocations are expected under cron.
func (p *Processor) RunOnce(ctx context.Context) error {
	acquired, err := p.lease.Acquire(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		return nil
	}
	defer func() {
		if err := p.lease.Release(ctx); err != nil {
			p.Logger.Error("Error releasing run lease", zap.Error(err))
		}
	}()

	started := time.Now()
	p.Logger.Info("Dispatch run started")

	reclaimed, err := p.scheduledUseCase.ReclaimStuck(ctx)
	if err != nil {
		p.Logger.Error("Error reclaiming stuck scheduled messages", zap.Error(err))
	} else if reclaimed > 0 {
		p.Logger.Warn("Reclaimed stuck scheduled messages", zap.Int64("count", reclaimed))
	}

	scheduledReport, err := p.scheduledUseCase.Run(ctx)
	if err != nil {
		p.Logger.Error("Error running scheduled message dispatch", zap.Error(err))
		if ctx.Err() != nil {
			return err
		}
	}

	broadcastReport, err := p.broadcastUseCase.Run(ctx)
	if err != nil {
		p.Logger.Error("Error running broadcast fan-out", zap.Error(err))
		if ctx.Err() != nil {
			return err
		}
	}

	p.Logger.Info("Dispatch run completed",
		zap.Duration("elapsed", time.Since(started)),
		zap.Int64("reclaimed", reclaimed),
		zap.Int("scheduledSent", scheduledReport.Sent),
		zap.Int("scheduledFailed", scheduledReport.Failed),
		zap.Int("scheduledDeferred", scheduledReport.Deferred),
		zap.Int("scheduledSpawned", scheduledReport.Spawned),
		zap.Int("broadcastSent", broadcastReport.Sent),
		zap.Int("broadcastFailed", broadcastReport.Failed),
		zap.Int("broadcastCompleted", broadcastReport.Completed))
	return nil
}

// Start runs the processor on the given cron schedule until Shutdown
func (p *Processor) Start(cronSpec string) error {
	p.cronRunner = cron.New()
	_, err := p.cronRunner.AddFunc(cronSpec, func() {
		if err := p.RunOnce(context.Background()); err != nil {
			p.Logger.Error("Dispatch run failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	p.Logger.Info("Dispatch processor started", zap.String("cronSpec", cronSpec))
	p.cronRunner.Start()
	return nil
}

// Shutdown stops the cron schedule and waits for a running cycle to finish
func (p *Processor) Shutdown() {
	if p.cronRunner == nil {
		return
	}
	p.Logger.Info("Shutting down dispatch processor")
	<-p.cronRunner.Stop().Done()
	p.Logger.Info("Dispatch processor shutdown complete")
}
