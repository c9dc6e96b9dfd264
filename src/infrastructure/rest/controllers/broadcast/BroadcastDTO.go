package broadcast

import "time"

type RecipientRequest struct {
	ContactID int    `json:"contact_id" binding:"required"`
	Phone     string `json:"phone" binding:"required,e164"`
}

type CreateBroadcastRequest struct {
	TenantID         int                `json:"tenant_id" binding:"required"`
	Name             string             `json:"name" binding:"required,max=255"`
	Type             string             `json:"type" binding:"required,oneof=text template"`
	Body             string             `json:"body"`
	TemplateName     string             `json:"template_name"`
	TemplateLanguage string             `json:"template_language"`
	ScheduledAt      *time.Time         `json:"scheduled_at"`
	Recipients       []RecipientRequest `json:"recipients" binding:"required,min=1,dive"`
}

type ScheduleBroadcastRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
}

type BroadcastResponse struct {
	ID               int        `json:"id"`
	TenantID         int        `json:"tenant_id"`
	Name             string     `json:"name"`
	Type             string     `json:"type"`
	Body             string     `json:"body,omitempty"`
	TemplateName     string     `json:"template_name,omitempty"`
	TemplateLanguage string     `json:"template_language,omitempty"`
	ScheduledAt      *time.Time `json:"scheduled_at,omitempty"`
	Status           string     `json:"status"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	TotalRecipients  int        `json:"total_recipients"`
	SentCount        int        `json:"sent_count"`
	FailedCount      int        `json:"failed_count"`
	SuccessRate      float64    `json:"success_rate"`
	CreatedAt        time.Time  `json:"created_at"`
}

type IDURI struct {
	ID int `uri:"id" binding:"required"`
}

type ListQuery struct {
	TenantID int `form:"tenant_id" binding:"required"`
	Limit    int `form:"limit"`
	Offset   int `form:"offset"`
}
