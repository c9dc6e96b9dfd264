package dispatch

import (
	"time"
)

// ScheduledMessageStatus is the closed set of states for a scheduled message
type ScheduledMessageStatus string

const (
	ScheduledStatusPending    ScheduledMessageStatus = "pending"
	ScheduledStatusProcessing ScheduledMessageStatus = "processing"
	ScheduledStatusSent       ScheduledMessageStatus = "sent"
	ScheduledStatusFailed     ScheduledMessageStatus = "failed"
	ScheduledStatusCancelled  ScheduledMessageStatus = "cancelled"
)

// BroadcastStatus is the closed set of states for a broadcast
type BroadcastStatus string

const (
	BroadcastStatusDraft     BroadcastStatus = "draft"
	BroadcastStatusScheduled BroadcastStatus = "scheduled"
	BroadcastStatusSending   BroadcastStatus = "sending"
	BroadcastStatusCompleted BroadcastStatus = "completed"
	BroadcastStatusFailed    BroadcastStatus = "failed"
	BroadcastStatusCancelled BroadcastStatus = "cancelled"
)

// RecipientStatus is the closed set of states for a broadcast recipient
type RecipientStatus string

const (
	RecipientStatusPending    RecipientStatus = "pending"
	RecipientStatusProcessing RecipientStatus = "processing"
	RecipientStatusSent       RecipientStatus = "sent"
	RecipientStatusFailed     RecipientStatus = "failed"
)

// MessageType identifies the kind of outbound message
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeTemplate MessageType = "template"
	MessageTypeMedia    MessageType = "media"
)

// RecurrencePattern is the cadence of a recurring scheduled message
type RecurrencePattern string

const (
	RecurrenceDaily   RecurrencePattern = "daily"
	RecurrenceWeekly  RecurrencePattern = "weekly"
	RecurrenceMonthly RecurrencePattern = "monthly"
)

// scheduledTransitions is the transition table for scheduled message statuses.
// Terminal states have no outgoing edges, so a reverted status can never be
// constructed through CanTransition.
var scheduledTransitions = map[ScheduledMessageStatus][]ScheduledMessageStatus{
	ScheduledStatusPending:    {ScheduledStatusProcessing, ScheduledStatusCancelled},
	ScheduledStatusProcessing: {ScheduledStatusSent, ScheduledStatusFailed, ScheduledStatusPending},
	ScheduledStatusSent:       {},
	ScheduledStatusFailed:     {},
	ScheduledStatusCancelled:  {},
}

// broadcastTransitions is the transition table for broadcast statuses.
// Cancelled is the escape valve reachable from every non-terminal state.
var broadcastTransitions = map[BroadcastStatus][]BroadcastStatus{
	BroadcastStatusDraft:     {BroadcastStatusScheduled, BroadcastStatusCancelled},
	BroadcastStatusScheduled: {BroadcastStatusSending, BroadcastStatusCancelled},
	BroadcastStatusSending:   {BroadcastStatusCompleted, BroadcastStatusCancelled},
	BroadcastStatusCompleted: {},
	BroadcastStatusFailed:    {},
	BroadcastStatusCancelled: {},
}

// recipientTransitions is the transition table for broadcast recipient
// statuses. A dispatch claims the row first; sent and failed are terminal.
var recipientTransitions = map[RecipientStatus][]RecipientStatus{
	RecipientStatusPending:    {RecipientStatusProcessing},
	RecipientStatusProcessing: {RecipientStatusSent, RecipientStatusFailed, RecipientStatusPending},
	RecipientStatusSent:       {},
	RecipientStatusFailed:     {},
}

// CanTransition reports whether a scheduled message may move from one status to another
func (s ScheduledMessageStatus) CanTransition(to ScheduledMessageStatus) bool {
	for _, next := range scheduledTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status has no outgoing transitions
func (s ScheduledMessageStatus) IsTerminal() bool {
	return len(scheduledTransitions[s]) == 0
}

// CanTransition reports whether a broadcast may move from one status to another
func (s BroadcastStatus) CanTransition(to BroadcastStatus) bool {
	for _, next := range broadcastTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status has no outgoing transitions
func (s BroadcastStatus) IsTerminal() bool {
	return len(broadcastTransitions[s]) == 0
}

// CanTransition reports whether a broadcast recipient may move from one status to another
func (s RecipientStatus) CanTransition(to RecipientStatus) bool {
	for _, next := range recipientTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status has no outgoing transitions
func (s RecipientStatus) IsTerminal() bool {
	return len(recipientTransitions[s]) == 0
}

// IsValid reports whether the pattern is one of the supported cadences
func (p RecurrencePattern) IsValid() bool {
	switch p {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

// NextOccurrence computes the next scheduled time by adding one unit of the
// pattern to the original scheduled time. The anchor is the original
// schedule, not the wall clock, so the cadence stays stable regardless of
// when the runner actually executed.
func (p RecurrencePattern) NextOccurrence(from time.Time) time.Time {
	switch p {
	case RecurrenceDaily:
		return from.AddDate(0, 0, 1)
	case RecurrenceWeekly:
		return from.AddDate(0, 0, 7)
	case RecurrenceMonthly:
		return from.AddDate(0, 1, 0)
	}
	return from
}

// ScheduledMessage represents a one-off or recurring outbound message
type ScheduledMessage struct {
	ID                int
	TenantID          int
	ContactID         int
	Phone             string
	Body              string
	MessageType       MessageType
	TemplateName      string
	TemplateLanguage  string
	ScheduledAt       time.Time
	Status            ScheduledMessageStatus
	ClaimedAt         *time.Time
	DedupToken        string
	SentAt            *time.Time
	ProviderMessageID string
	ErrorMessage      string
	IsRecurring       bool
	RecurrencePattern RecurrencePattern
	RecurrenceEndsAt  *time.Time
	CreatedBy         int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Broadcast represents a fan-out of one message to many recipients
type Broadcast struct {
	ID               int
	TenantID         int
	Name             string
	Body             string
	MessageType      MessageType
	TemplateName     string
	TemplateLanguage string
	ScheduledAt      *time.Time
	Status           BroadcastStatus
	StartedAt        *time.Time
	CompletedAt      *time.Time
	TotalRecipients  int
	SentCount        int
	FailedCount      int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SuccessRate is a derived read-time statistic; it is never a status gate
func (b *Broadcast) SuccessRate() float64 {
	processed := b.SentCount + b.FailedCount
	if processed == 0 {
		return 0
	}
	return float64(b.SentCount) / float64(processed)
}

// BroadcastRecipient is one (broadcast, contact) pair. The recipient set is
// closed at broadcast creation time and each row is mutated exactly once.
type BroadcastRecipient struct {
	ID                int
	BroadcastID       int
	ContactID         int
	Phone             string
	Status            RecipientStatus
	ClaimedAt         *time.Time
	DedupToken        string
	SentAt            *time.Time
	ProviderMessageID string
	ErrorMessage      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// QuotaCounter is the per-tenant ledger of outbound messages against the plan limit
type QuotaCounter struct {
	ID           int
	TenantID     int
	MessagesSent int64
	MessageLimit int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Remaining returns how many messages the tenant may still send
func (q *QuotaCounter) Remaining() int64 {
	if q.MessagesSent >= q.MessageLimit {
		return 0
	}
	return q.MessageLimit - q.MessagesSent
}
