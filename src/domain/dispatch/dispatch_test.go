package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduledStatusTransitions(t *testing.T) {
	assert.True(t, ScheduledStatusPending.CanTransition(ScheduledStatusProcessing))
	assert.True(t, ScheduledStatusPending.CanTransition(ScheduledStatusCancelled))
	assert.False(t, ScheduledStatusPending.CanTransition(ScheduledStatusSent))

	assert.True(t, ScheduledStatusProcessing.CanTransition(ScheduledStatusSent))
	assert.True(t, ScheduledStatusProcessing.CanTransition(ScheduledStatusFailed))
	assert.True(t, ScheduledStatusProcessing.CanTransition(ScheduledStatusPending))
	assert.False(t, ScheduledStatusProcessing.CanTransition(ScheduledStatusCancelled))
}

func TestScheduledStatusTerminalStatesHaveNoExits(t *testing.T) {
	terminals := []ScheduledMessageStatus{ScheduledStatusSent, ScheduledStatusFailed, ScheduledStatusCancelled}
	all := []ScheduledMessageStatus{
		ScheduledStatusPending, ScheduledStatusProcessing, ScheduledStatusSent,
		ScheduledStatusFailed, ScheduledStatusCancelled,
	}

	for _, from := range terminals {
		assert.True(t, from.IsTerminal())
		for _, to := range all {
			assert.False(t, from.CanTransition(to), "terminal status %s must not transition to %s", from, to)
		}
	}
	assert.False(t, ScheduledStatusPending.IsTerminal())
	assert.False(t, ScheduledStatusProcessing.IsTerminal())
}

func TestBroadcastStatusTransitions(t *testing.T) {
	assert.True(t, BroadcastStatusDraft.CanTransition(BroadcastStatusScheduled))
	assert.True(t, BroadcastStatusScheduled.CanTransition(BroadcastStatusSending))
	assert.True(t, BroadcastStatusSending.CanTransition(BroadcastStatusCompleted))
	assert.False(t, BroadcastStatusDraft.CanTransition(BroadcastStatusSending))
	assert.False(t, BroadcastStatusCompleted.CanTransition(BroadcastStatusSending))

	// Cancel is reachable from any non-terminal state
	assert.True(t, BroadcastStatusDraft.CanTransition(BroadcastStatusCancelled))
	assert.True(t, BroadcastStatusScheduled.CanTransition(BroadcastStatusCancelled))
	assert.True(t, BroadcastStatusSending.CanTransition(BroadcastStatusCancelled))
	assert.False(t, BroadcastStatusCancelled.CanTransition(BroadcastStatusScheduled))
}

func TestNextOccurrenceAnchorsOnSchedule(t *testing.T) {
	anchor := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), RecurrenceDaily.NextOccurrence(anchor))
	assert.Equal(t, time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC), RecurrenceWeekly.NextOccurrence(anchor))
	assert.Equal(t, time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC), RecurrenceMonthly.NextOccurrence(anchor))
}

func TestNextOccurrencePreservesTimeOfDay(t *testing.T) {
	anchor := time.Date(2024, 6, 15, 18, 30, 0, 0, time.UTC)

	next := RecurrenceDaily.NextOccurrence(anchor)
	assert.Equal(t, 18, next.Hour())
	assert.Equal(t, 30, next.Minute())
}

func TestRecurrencePatternIsValid(t *testing.T) {
	assert.True(t, RecurrenceDaily.IsValid())
	assert.True(t, RecurrenceWeekly.IsValid())
	assert.True(t, RecurrenceMonthly.IsValid())
	assert.False(t, RecurrencePattern("hourly").IsValid())
	assert.False(t, RecurrencePattern("").IsValid())
}

func TestBroadcastSuccessRate(t *testing.T) {
	b := &Broadcast{SentCount: 3, FailedCount: 1}
	assert.Equal(t, 0.75, b.SuccessRate())

	empty := &Broadcast{}
	assert.Equal(t, 0.0, empty.SuccessRate())
}

func TestQuotaCounterRemaining(t *testing.T) {
	q := &QuotaCounter{MessagesSent: 100, MessageLimit: 500}
	assert.Equal(t, int64(400), q.Remaining())

	exhausted := &QuotaCounter{MessagesSent: 500, MessageLimit: 500}
	assert.Equal(t, int64(0), exhausted.Remaining())

	over := &QuotaCounter{MessagesSent: 501, MessageLimit: 500}
	assert.Equal(t, int64(0), over.Remaining())
}

func TestIsReengagementRequired(t *testing.T) {
	windowErr := &SendError{StatusCode: 400, Code: ReengagementErrorCode, Message: "Re-engagement message"}
	assert.True(t, IsReengagementRequired(windowErr))

	otherErr := &SendError{StatusCode: 400, Code: 100, Message: "Invalid parameter"}
	assert.False(t, IsReengagementRequired(otherErr))
	assert.False(t, IsReengagementRequired(nil))
}
