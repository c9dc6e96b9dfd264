package scheduled

import (
	"context"
	"errors"
	"testing"
	"time"

	"go-whatsapp-crm/src/application/usecases/quota"
	"go-whatsapp-crm/src/domain/dispatch"
	logger "go-whatsapp-crm/src/infrastructure/logger"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"
)

type mockScheduledMessageRepository struct {
	createFn          func(message *dispatch.ScheduledMessage) (*dispatch.ScheduledMessage, error)
	getByIDFn         func(id int) (*dispatch.ScheduledMessage, error)
	listByTenantFn    func(tenantID int, limit int, offset int) (*[]dispatch.ScheduledMessage, error)
	claimDuePendingFn func(now time.Time, limit int) (*[]dispatch.ScheduledMessage, error)
	markSentFn        func(id int, providerMessageID string, sentAt time.Time) error
	markFailedFn      func(id int, errorMessage string) error
	unclaimFn         func(id int) error
	reclaimStuckFn    func(olderThan time.Time) (int64, error)
	cancelPendingFn   func(id int) error
}

func (m *mockScheduledMessageRepository) Create(message *dispatch.ScheduledMessage) (*dispatch.ScheduledMessage, error) {
	return m.createFn(message)
}

func (m *mockScheduledMessageRepository) GetByID(id int) (*dispatch.ScheduledMessage, error) {
	return m.getByIDFn(id)
}

func (m *mockScheduledMessageRepository) ListByTenant(tenantID int, limit int, offset int) (*[]dispatch.ScheduledMessage, error) {
	return m.listByTenantFn(tenantID, limit, offset)
}

func (m *mockScheduledMessageRepository) ClaimDuePending(now time.Time, limit int) (*[]dispatch.ScheduledMessage, error) {
	return m.claimDuePendingFn(now, limit)
}

func (m *mockScheduledMessageRepository) MarkSent(id int, providerMessageID string, sentAt time.Time) error {
	return m.markSentFn(id, providerMessageID, sentAt)
}

func (m *mockScheduledMessageRepository) MarkFailed(id int, errorMessage string) error {
	return m.markFailedFn(id, errorMessage)
}

func (m *mockScheduledMessageRepository) Unclaim(id int) error {
	return m.unclaimFn(id)
}

func (m *mockScheduledMessageRepository) ReclaimStuck(olderThan time.Time) (int64, error) {
	return m.reclaimStuckFn(olderThan)
}

func (m *mockScheduledMessageRepository) CancelPending(id int) error {
	return m.cancelPendingFn(id)
}

type mockQuotaUseCase struct {
	tryReserveFn func(tenantID int) (bool, error)
	releaseFn    func(tenantID int) error
}

func (m *mockQuotaUseCase) Remaining(tenantID int) (int64, error) { return 0, nil }

func (m *mockQuotaUseCase) TryReserve(tenantID int) (bool, error) {
	return m.tryReserveFn(tenantID)
}

func (m *mockQuotaUseCase) Release(tenantID int) error {
	return m.releaseFn(tenantID)
}

func (m *mockQuotaUseCase) GetUsage(tenantID int) (*quota.Usage, error) { return nil, nil }

func (m *mockQuotaUseCase) ResetUsage(tenantID int) error { return nil }

func (m *mockQuotaUseCase) SetLimit(tenantID int, limit int64) error { return nil }

type mockGateway struct {
	sendTextFn     func(ctx context.Context, to string, body string) (*dispatch.SendResult, error)
	sendTemplateFn func(ctx context.Context, to string, params dispatch.TemplateParams) (*dispatch.SendResult, error)
}

func (m *mockGateway) SendText(ctx context.Context, to string, body string) (*dispatch.SendResult, error) {
	return m.sendTextFn(ctx, to, body)
}

func (m *mockGateway) SendTemplate(ctx context.Context, to string, params dispatch.TemplateParams) (*dispatch.SendResult, error) {
	return m.sendTemplateFn(ctx, to, params)
}

func (m *mockGateway) SendMedia(ctx context.Context, to string, payload dispatch.MediaPayload) (*dispatch.SendResult, error) {
	return nil, errors.New("not implemented")
}

func dueMessages(n int, tenantID int) *[]dispatch.ScheduledMessage {
	messages := make([]dispatch.ScheduledMessage, 0, n)
	for i := 1; i <= n; i++ {
		messages = append(messages, dispatch.ScheduledMessage{
			ID:          i,
			TenantID:    tenantID,
			Phone:       "+5215512345678",
			Body:        "hello",
			MessageType: dispatch.MessageTypeText,
			ScheduledAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
			Status:      dispatch.ScheduledStatusProcessing,
		})
	}
	return &messages
}

func newTestUseCase(repo *mockScheduledMessageRepository, quotaUC *mockQuotaUseCase, gateway *mockGateway) *ScheduledMessageUseCase {
	loggerInstance := logger.NewNopLogger()
	uc := NewScheduledMessageUseCase(repo, quotaUC, gateway, rate.NewLimiter(rate.Inf, 1), loggerInstance)
	impl := uc.(*ScheduledMessageUseCase)
	impl.now = func() time.Time { return time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC) }
	return impl
}

func TestRunSendsAllClaimedMessages(t *testing.T) {
	sent := make([]int, 0)
	repo := &mockScheduledMessageRepository{
		claimDuePendingFn: func(now time.Time, limit int) (*[]dispatch.ScheduledMessage, error) {
			return dueMessages(3, 7), nil
		},
		markSentFn: func(id int, providerMessageID string, sentAt time.Time) error {
			sent = append(sent, id)
			return nil
		},
	}
	quotaUC := &mockQuotaUseCase{
		tryReserveFn: func(tenantID int) (bool, error) { return true, nil },
	}
	gateway := &mockGateway{
		sendTextFn: func(ctx context.Context, to string, body string) (*dispatch.SendResult, error) {
			return &dispatch.SendResult{MessageID: "wamid.1"}, nil
		},
	}

	report, err := newTestUseCase(repo, quotaUC, gateway).Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 3, report.Claimed)
	assert.Equal(t, 3, report.Sent)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, []int{1, 2, 3}, sent)
}

func TestRunContainsGatewayFailures(t *testing.T) {
	failed := make([]int, 0)
	released := 0
	repo := &mockScheduledMessageRepository{
		claimDuePendingFn: func(now time.Time, limit int) (*[]dispatch.ScheduledMessage, error) {
			return dueMessages(3, 7), nil
		},
		markSentFn: func(id int, providerMessageID string, sentAt time.Time) error { return nil },
		markFailedFn: func(id int, errorMessage string) error {
			failed = append(failed, id)
			return nil
		},
	}
	quotaUC := &mockQuotaUseCase{
		tryReserveFn: func(tenantID int) (bool, error) { return true, nil },
		releaseFn: func(tenantID int) error {
			released++
			return nil
		},
	}
	calls := 0
	gateway := &mockGateway{
		sendTextFn: func(ctx context.Context, to string, body string) (*dispatch.SendResult, error) {
			calls++
			if calls == 2 {
				return nil, &dispatch.SendError{StatusCode: 400, Code: 100, Message: "Invalid parameter"}
			}
			return &dispatch.SendResult{MessageID: "wamid.ok"}, nil
		},
	}

	report, err := newTestUseCase(repo, quotaUC, gateway).Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []int{2}, failed)
	// the failed dispatch must give back its reservation
	assert.Equal(t, 1, released)
}

func TestRunDefersOnQuotaExhaustion(t *testing.T) {
	unclaimed := make([]int, 0)
	repo := &mockScheduledMessageRepository{
		claimDuePendingFn: func(now time.Time, limit int) (*[]dispatch.ScheduledMessage, error) {
			return dueMessages(6, 7), nil
		},
		markSentFn: func(id int, providerMessageID string, sentAt time.Time) error { return nil },
		unclaimFn: func(id int) error {
			unclaimed = append(unclaimed, id)
			return nil
		},
	}
	reservations := 0
	quotaUC := &mockQuotaUseCase{
		tryReserveFn: func(tenantID int) (bool, error) {
			reservations++
			return reservations <= 4, nil
		},
	}
	gatewayCalls := 0
	gateway := &mockGateway{
		sendTextFn: func(ctx context.Context, to string, body string) (*dispatch.SendResult, error) {
			gatewayCalls++
			return &dispatch.SendResult{MessageID: "wamid.ok"}, nil
		},
	}

	report, err := newTestUseCase(repo, quotaUC, gateway).Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 4, report.Sent)
	assert.Equal(t, 2, report.Deferred)
	assert.Equal(t, 4, gatewayCalls)
	// deferred messages go back to pending, never to failed
	assert.Equal(t, []int{5, 6}, unclaimed)
}

func TestRunLogsQuotaReservationErrors(t *testing.T) {
	unclaimed := make([]int, 0)
	repo := &mockScheduledMessageRepository{
		claimDuePendingFn: func(now time.Time, limit int) (*[]dispatch.ScheduledMessage, error) {
			return dueMessages(1, 7), nil
		},
		unclaimFn: func(id int) error {
			unclaimed = append(unclaimed, id)
			return nil
		},
	}
	quotaUC := &mockQuotaUseCase{
		tryReserveFn: func(tenantID int) (bool, error) {
			return false, errors.New("quota store unavailable")
		},
	}
	gatewayCalls := 0
	gateway := &mockGateway{
		sendTextFn: func(ctx context.Context, to string, body string) (*dispatch.SendResult, error) {
			gatewayCalls++
			return nil, nil
		},
	}

	core, logs := observer.New(zapcore.ErrorLevel)
	uc := newTestUseCase(repo, quotaUC, gateway)
	uc.Logger = &logger.Logger{Log: zap.New(core)}

	report, err := uc.Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, report.Deferred)
	assert.Equal(t, []int{1}, unclaimed)
	assert.Equal(t, 0, gatewayCalls)
	// a reservation failure must surface in the logs, not pass silently
	entries := logs.FilterMessage("Error reserving quota for scheduled message").All()
	assert.Len(t, entries, 1)
	assert.Equal(t, int64(7), entries[0].ContextMap()["tenantID"])
}

func TestRunSpawnsNextRecurringOccurrence(t *testing.T) {
	var created *dispatch.ScheduledMessage
	messages := dueMessages(1, 7)
	(*messages)[0].IsRecurring = true
	(*messages)[0].RecurrencePattern = dispatch.RecurrenceDaily

	repo := &mockScheduledMessageRepository{
		claimDuePendingFn: func(now time.Time, limit int) (*[]dispatch.ScheduledMessage, error) {
			return messages, nil
		},
		markSentFn: func(id int, providerMessageID string, sentAt time.Time) error { return nil },
		createFn: func(message *dispatch.ScheduledMessage) (*dispatch.ScheduledMessage, error) {
			created = message
			return message, nil
		},
	}
	quotaUC := &mockQuotaUseCase{tryReserveFn: func(tenantID int) (bool, error) { return true, nil }}
	gateway := &mockGateway{
		sendTextFn: func(ctx context.Context, to string, body string) (*dispatch.SendResult, error) {
			return &dispatch.SendResult{MessageID: "wamid.ok"}, nil
		},
	}

	report, err := newTestUseCase(repo, quotaUC, gateway).Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, report.Spawned)
	assert.NotNil(t, created)
	// anchored on the original schedule, not on the dispatch time
	assert.Equal(t, time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC), created.ScheduledAt)
	assert.Equal(t, dispatch.ScheduledStatusPending, created.Status)
	assert.True(t, created.IsRecurring)
}

func TestRunStopsRecurrenceAtSeriesEnd(t *testing.T) {
	endsAt := time.Date(2024, 3, 1, 23, 59, 59, 0, time.UTC)
	messages := dueMessages(1, 7)
	(*messages)[0].IsRecurring = true
	(*messages)[0].RecurrencePattern = dispatch.RecurrenceDaily
	(*messages)[0].RecurrenceEndsAt = &endsAt

	createCalls := 0
	repo := &mockScheduledMessageRepository{
		claimDuePendingFn: func(now time.Time, limit int) (*[]dispatch.ScheduledMessage, error) {
			return messages, nil
		},
		markSentFn: func(id int, providerMessageID string, sentAt time.Time) error { return nil },
		createFn: func(message *dispatch.ScheduledMessage) (*dispatch.ScheduledMessage, error) {
			createCalls++
			return message, nil
		},
	}
	quotaUC := &mockQuotaUseCase{tryReserveFn: func(tenantID int) (bool, error) { return true, nil }}
	gateway := &mockGateway{
		sendTextFn: func(ctx context.Context, to string, body string) (*dispatch.SendResult, error) {
			return &dispatch.SendResult{MessageID: "wamid.ok"}, nil
		},
	}

	report, err := newTestUseCase(repo, quotaUC, gateway).Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 0, report.Spawned)
	assert.Equal(t, 0, createCalls)
}

func TestReclaimStuckUsesClaimTimeout(t *testing.T) {
	var cutoff time.Time
	repo := &mockScheduledMessageRepository{
		reclaimStuckFn: func(olderThan time.Time) (int64, error) {
			cutoff = olderThan
			return 2, nil
		},
	}
	uc := newTestUseCase(repo, &mockQuotaUseCase{}, &mockGateway{})

	reclaimed, err := uc.ReclaimStuck(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, int64(2), reclaimed)
	assert.Equal(t, time.Date(2024, 3, 1, 8, 55, 0, 0, time.UTC), cutoff)
}

func TestCreateValidatesMessageType(t *testing.T) {
	uc := newTestUseCase(&mockScheduledMessageRepository{}, &mockQuotaUseCase{}, &mockGateway{})

	_, err := uc.Create(&CreateRequest{
		TenantID:    7,
		Phone:       "+5215512345678",
		MessageType: dispatch.MessageTypeText,
		ScheduledAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	})
	assert.Error(t, err)

	_, err = uc.Create(&CreateRequest{
		TenantID:    7,
		Phone:       "+5215512345678",
		MessageType: dispatch.MessageTypeTemplate,
		ScheduledAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	})
	assert.Error(t, err)
}

func TestCreateRequiresValidRecurrencePattern(t *testing.T) {
	uc := newTestUseCase(&mockScheduledMessageRepository{}, &mockQuotaUseCase{}, &mockGateway{})

	_, err := uc.Create(&CreateRequest{
		TenantID:          7,
		Phone:             "+5215512345678",
		Body:              "hi",
		MessageType:       dispatch.MessageTypeText,
		ScheduledAt:       time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		IsRecurring:       true,
		RecurrencePattern: "hourly",
	})
	assert.Error(t, err)
}
