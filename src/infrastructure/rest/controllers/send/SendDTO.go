package send

type MessageRequest struct {
	TenantID         int      `json:"tenant_id" binding:"required"`
	To               string   `json:"to" binding:"required,e164"`
	Type             string   `json:"type" binding:"required,oneof=text template media"`
	Body             string   `json:"body"`
	TemplateName     string   `json:"template_name"`
	TemplateLanguage string   `json:"template_language"`
	TemplateParams   []string `json:"template_params"`
	MediaLink        string   `json:"media_link"`
	MediaFilename    string   `json:"media_filename"`
	MediaCaption     string   `json:"media_caption"`
}

type MessageResponse struct {
	ProviderMessageID string `json:"provider_message_id"`
	Status            string `json:"status"`
}

type QuotaExceededResponse struct {
	Error     string `json:"error"`
	Sent      int64  `json:"sent"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
}
