package scheduling

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/clubsuite/notify/internal/delivery"
	"github.com/clubsuite/notify/pkg/metrics"
)

// Sender is the downstream the dispatcher hands due notifications to.
// *delivery.Cascade satisfies it.
type Sender interface {
	Send(ctx context.Context, req delivery.NotificationRequest) (*delivery.DeliveryResult, error)
}

// Dispatcher polls due pending records on a cron schedule and pushes them
// through the cascade, transitioning pending records to sent or failed.
type Dispatcher struct {
	logger    *zap.Logger
	store     ScheduleStore
	sender    Sender
	metrics   *metrics.Metrics
	cronSpec  string
	batchSize int
	engine    *cron.Cron
}

// NewDispatcher creates a dispatcher. cronSpec uses the standard five-field
// format or descriptors like "@every 1m". batchSize bounds one poll's work.
func NewDispatcher(logger *zap.Logger, store ScheduleStore, sender Sender, m *metrics.Metrics, cronSpec string, batchSize int) *Dispatcher {
	if m == nil {
		m = &metrics.Metrics{}
	}
	if cronSpec == "" {
		cronSpec = "@every 1m"
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Dispatcher{
		logger:    logger,
		store:     store,
		sender:    sender,
		metrics:   m,
		cronSpec:  cronSpec,
		batchSize: batchSize,
		engine:    cron.New(cron.WithLocation(time.UTC)),
	}
}

// Start registers the poll job and starts the cron engine.
func (d *Dispatcher) Start() error {
	_, err := d.engine.AddFunc(d.cronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		d.DispatchDue(ctx)
	})
	if err != nil {
		return err
	}
	d.engine.Start()
	d.logger.Info("dispatcher started", zap.String("cron_spec", d.cronSpec))
	return nil
}

// Stop stops the cron engine and waits for a running poll to finish.
func (d *Dispatcher) Stop() {
	stopCtx := d.engine.Stop()
	<-stopCtx.Done()
	d.logger.Info("dispatcher stopped")
}

// DispatchDue processes one batch of due pending notifications. It is called
// by the cron job and directly from tests.
func (d *Dispatcher) DispatchDue(ctx context.Context) {
	due, err := d.store.FetchDue(ctx, time.Now(), d.batchSize)
	if err != nil {
		d.logger.Error("failed to fetch due notifications", zap.Error(err))
		d.metrics.RecordError("dispatcher", "fetch_due")
		return
	}
	if len(due) == 0 {
		return
	}

	d.logger.Info("dispatching due notifications", zap.Int("count", len(due)))
	for _, n := range due {
		d.dispatch(ctx, n)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, n *ScheduledNotification) {
	req := delivery.NotificationRequest{
		ID:                  n.ID,
		UserID:              n.UserID,
		Payload:             n.Payload,
		Type:                n.Type,
		Priority:            n.Priority,
		RespectPreferences:  true,
		RespectQuietHours:   false,
		RespectFrequencyCap: false,
	}

	result, err := d.sender.Send(ctx, req)
	status := StatusSent
	if err != nil || result == nil || !result.Success {
		status = StatusFailed
		d.logger.Warn("scheduled delivery failed",
			zap.String("schedule_id", n.ID.String()),
			zap.String("user_id", n.UserID),
			zap.Error(err))
	}

	if err := d.store.UpdateStatus(ctx, n.ID, status); err != nil {
		d.logger.Error("failed to update scheduled notification status",
			zap.String("schedule_id", n.ID.String()),
			zap.String("status", string(status)),
			zap.Error(err))
		d.metrics.RecordError("dispatcher", "status_update")
		return
	}
	d.metrics.RecordDispatched(string(status))
}
