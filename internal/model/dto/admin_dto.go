package dto

// ApplicationListRequest 管理端列表参数
type ApplicationListRequest struct {
	Status string `form:"status"`
	Search string `form:"search"`
	Limit  int    `form:"limit,default=50"`
}

// ApplicationListItem 列表项
type ApplicationListItem struct {
	Reference    string `json:"reference"`
	FullName     string `json:"full_name"`
	Mobile       string `json:"mobile"`
	ShopName     string `json:"shop_name"`
	BusinessType string `json:"business_type"`
	City         string `json:"city"`
	Status       string `json:"status"`
	VendorID     string `json:"vendor_id,omitempty"`
	SubmittedAt  string `json:"submitted_at"`
}

// AuditItem 审计记录
type AuditItem struct {
	ID         int64  `json:"id"`
	DocumentID int64  `json:"document_id,omitempty"`
	ActorID    int64  `json:"actor_id"`
	Action     string `json:"action"`
	Before     string `json:"before,omitempty"`
	After      string `json:"after,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// AdminApplicationDetail 管理端详情
type AdminApplicationDetail struct {
	*ApplicationDetail
	History  []*DocumentItem `json:"history"`
	AuditLog []*AuditItem    `json:"audit_log"`
}

// DashboardStats 看板统计
type DashboardStats struct {
	Total          int64 `json:"total"`
	Pending        int64 `json:"pending"`
	PaymentPending int64 `json:"payment_pending"`
	UnderReview    int64 `json:"under_review"`
	Approved       int64 `json:"approved"`
	Rejected       int64 `json:"rejected"`
}
