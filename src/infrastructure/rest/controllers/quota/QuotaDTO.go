package quota

type TenantURI struct {
	TenantID int `uri:"tenantID" binding:"required"`
}

type UsageResponse struct {
	TenantID  int   `json:"tenant_id"`
	Sent      int64 `json:"sent"`
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
}

type SetLimitRequest struct {
	Limit int64 `json:"limit" binding:"required,gt=0"`
}
