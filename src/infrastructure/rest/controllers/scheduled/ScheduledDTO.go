package scheduled

import "time"

type CreateScheduledMessageRequest struct {
	TenantID          int        `json:"tenant_id" binding:"required"`
	ContactID         int        `json:"contact_id" binding:"required"`
	Phone             string     `json:"phone" binding:"required,e164"`
	Type              string     `json:"type" binding:"required,oneof=text template"`
	Body              string     `json:"body"`
	TemplateName      string     `json:"template_name"`
	TemplateLanguage  string     `json:"template_language"`
	ScheduledAt       time.Time  `json:"scheduled_at" binding:"required"`
	IsRecurring       bool       `json:"is_recurring"`
	RecurrencePattern string     `json:"recurrence_pattern" binding:"omitempty,oneof=daily weekly monthly"`
	RecurrenceEndsAt  *time.Time `json:"recurrence_ends_at"`
}

type ScheduledMessageResponse struct {
	ID                int        `json:"id"`
	TenantID          int        `json:"tenant_id"`
	ContactID         int        `json:"contact_id"`
	Phone             string     `json:"phone"`
	Type              string     `json:"type"`
	Body              string     `json:"body,omitempty"`
	TemplateName      string     `json:"template_name,omitempty"`
	TemplateLanguage  string     `json:"template_language,omitempty"`
	ScheduledAt       time.Time  `json:"scheduled_at"`
	Status            string     `json:"status"`
	IsRecurring       bool       `json:"is_recurring"`
	RecurrencePattern string     `json:"recurrence_pattern,omitempty"`
	RecurrenceEndsAt  *time.Time `json:"recurrence_ends_at,omitempty"`
	ProviderMessageID string     `json:"provider_message_id,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

type IDURI struct {
	ID int `uri:"id" binding:"required"`
}

type ListQuery struct {
	TenantID int `form:"tenant_id" binding:"required"`
	Limit    int `form:"limit"`
	Offset   int `form:"offset"`
}
