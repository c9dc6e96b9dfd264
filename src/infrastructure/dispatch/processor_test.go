package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"go-whatsapp-crm/src/application/usecases/broadcast"
	"go-whatsapp-crm/src/application/usecases/scheduled"
	domainDispatch "go-whatsapp-crm/src/domain/dispatch"
	logger "go-whatsapp-crm/src/infrastructure/logger"

	"github.com/stretchr/testify/assert"
)

type mockScheduledUseCase struct {
	runFn          func(ctx context.Context) (*scheduled.RunReport, error)
	reclaimStuckFn func(ctx context.Context) (int64, error)
}

func (m *mockScheduledUseCase) Run(ctx context.Context) (*scheduled.RunReport, error) {
	return m.runFn(ctx)
}

func (m *mockScheduledUseCase) ReclaimStuck(ctx context.Context) (int64, error) {
	return m.reclaimStuckFn(ctx)
}

func (m *mockScheduledUseCase) Create(request *scheduled.CreateRequest) (*domainDispatch.ScheduledMessage, error) {
	return nil, nil
}

func (m *mockScheduledUseCase) Cancel(id int) error { return nil }

func (m *mockScheduledUseCase) GetByID(id int) (*domainDispatch.ScheduledMessage, error) {
	return nil, nil
}

func (m *mockScheduledUseCase) ListByTenant(tenantID int, limit int, offset int) (*[]domainDispatch.ScheduledMessage, error) {
	return nil, nil
}

type mockBroadcastUseCase struct {
	runFn func(ctx context.Context) (*broadcast.RunReport, error)
}

func (m *mockBroadcastUseCase) Run(ctx context.Context) (*broadcast.RunReport, error) {
	return m.runFn(ctx)
}

func (m *mockBroadcastUseCase) Create(request *broadcast.CreateRequest) (*domainDispatch.Broadcast, error) {
	return nil, nil
}

func (m *mockBroadcastUseCase) Schedule(id int, scheduledAt time.Time) error { return nil }

func (m *mockBroadcastUseCase) Cancel(id int) error { return nil }

func (m *mockBroadcastUseCase) Delete(id int) error { return nil }

func (m *mockBroadcastUseCase) GetByID(id int) (*domainDispatch.Broadcast, error) { return nil, nil }

func (m *mockBroadcastUseCase) ListByTenant(tenantID int, limit int, offset int) (*[]domainDispatch.Broadcast, error) {
	return nil, nil
}

func TestRunOnceExecutesAllPhases(t *testing.T) {
	reclaimed, scheduledRan, broadcastRan := false, false, false

	scheduledUC := &mockScheduledUseCase{
		runFn: func(ctx context.Context) (*scheduled.RunReport, error) {
			scheduledRan = true
			return &scheduled.RunReport{Sent: 2}, nil
		},
		reclaimStuckFn: func(ctx context.Context) (int64, error) {
			reclaimed = true
			return 1, nil
		},
	}
	broadcastUC := &mockBroadcastUseCase{
		runFn: func(ctx context.Context) (*broadcast.RunReport, error) {
			broadcastRan = true
			return &broadcast.RunReport{Sent: 3}, nil
		},
	}
	processor := NewProcessor(scheduledUC, broadcastUC, NewLocalLease(), logger.NewNopLogger())

	err := processor.RunOnce(context.Background())

	assert.NoError(t, err)
	assert.True(t, reclaimed)
	assert.True(t, scheduledRan)
	assert.True(t, broadcastRan)
}

func TestRunOnceSkipsWhenLeaseHeld(t *testing.T) {
	scheduledRan := false
	scheduledUC := &mockScheduledUseCase{
		runFn: func(ctx context.Context) (*scheduled.RunReport, error) {
			scheduledRan = true
			return &scheduled.RunReport{}, nil
		},
		reclaimStuckFn: func(ctx context.Context) (int64, error) { return 0, nil },
	}
	broadcastUC := &mockBroadcastUseCase{
		runFn: func(ctx context.Context) (*broadcast.RunReport, error) {
			return &broadcast.RunReport{}, nil
		},
	}

	lease := NewLocalLease()
	ok, err := lease.Acquire(context.Background())
	assert.NoError(t, err)
	assert.True(t, ok)

	processor := NewProcessor(scheduledUC, broadcastUC, lease, logger.NewNopLogger())

	err = processor.RunOnce(context.Background())

	assert.NoError(t, err)
	assert.False(t, scheduledRan)
}

func TestRunOnceReleasesLeaseAfterRun(t *testing.T) {
	scheduledUC := &mockScheduledUseCase{
		runFn: func(ctx context.Context) (*scheduled.RunReport, error) {
			return &scheduled.RunReport{}, nil
		},
		reclaimStuckFn: func(ctx context.Context) (int64, error) { return 0, nil },
	}
	broadcastUC := &mockBroadcastUseCase{
		runFn: func(ctx context.Context) (*broadcast.RunReport, error) {
			return &broadcast.RunReport{}, nil
		},
	}
	lease := NewLocalLease()
	processor := NewProcessor(scheduledUC, broadcastUC, lease, logger.NewNopLogger())

	assert.NoError(t, processor.RunOnce(context.Background()))

	// the lease must be free again for the next invocation
	ok, err := lease.Acquire(context.Background())
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestRunOnceScheduledFailureStillRunsBroadcasts(t *testing.T) {
	broadcastRan := false
	scheduledUC := &mockScheduledUseCase{
		runFn: func(ctx context.Context) (*scheduled.RunReport, error) {
			return &scheduled.RunReport{}, errors.New("database gone")
		},
		reclaimStuckFn: func(ctx context.Context) (int64, error) { return 0, nil },
	}
	broadcastUC := &mockBroadcastUseCase{
		runFn: func(ctx context.Context) (*broadcast.RunReport, error) {
			broadcastRan = true
			return &broadcast.RunReport{}, nil
		},
	}
	processor := NewProcessor(scheduledUC, broadcastUC, NewLocalLease(), logger.NewNopLogger())

	err := processor.RunOnce(context.Background())

	assert.NoError(t, err)
	assert.True(t, broadcastRan)
}
