package dto

// SubmitApplicationRequest 供应商注册信息
// 必填校验在 service 层完成，以便返回逐字段的错误
type SubmitApplicationRequest struct {
	FullName     string `json:"full_name"`
	Mobile       string `json:"mobile"`
	Email        string `json:"email,omitempty"`
	Password     string `json:"password,omitempty"`
	ShopName     string `json:"shop_name"`
	BusinessType string `json:"business_type"`
	AddressLine  string `json:"address_line,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code"`
	GSTNumber    string `json:"gst_number,omitempty"`
}

// SubmitApplicationResponse 提交结果
type SubmitApplicationResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// DocumentItem 文件信息
type DocumentItem struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	Section     string `json:"section"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	URL         string `json:"url,omitempty"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
	Current     bool   `json:"current"`
	UploadedAt  string `json:"uploaded_at"`
}

// PaymentSummary 付款摘要
type PaymentSummary struct {
	TotalPaid   string `json:"total_paid"`
	Currency    string `json:"currency"`
	Count       int    `json:"count"`
	LastPaidAt  string `json:"last_paid_at,omitempty"`
	LastPayment string `json:"last_payment_id,omitempty"`
}

// SectionItem 分区审核状态
type SectionItem struct {
	Section    string `json:"section"`
	Verified   bool   `json:"verified"`
	VerifiedBy int64  `json:"verified_by,omitempty"`
	VerifiedAt string `json:"verified_at,omitempty"`
	Eligible   bool   `json:"eligible"`
}

// ApplicationDetail 按编号查询申请
type ApplicationDetail struct {
	Reference       string          `json:"reference"`
	Status          string          `json:"status"`
	FullName        string          `json:"full_name"`
	Mobile          string          `json:"mobile"`
	Email           string          `json:"email,omitempty"`
	ShopName        string          `json:"shop_name"`
	BusinessType    string          `json:"business_type"`
	City            string          `json:"city"`
	State           string          `json:"state"`
	PostalCode      string          `json:"postal_code"`
	VendorID        string          `json:"vendor_id,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	SubmittedAt     string          `json:"submitted_at"`
	ReviewedAt      string          `json:"reviewed_at,omitempty"`
	Documents       []*DocumentItem `json:"documents"`
	Sections        []*SectionItem  `json:"sections,omitempty"`
	Payment         *PaymentSummary `json:"payment"`
}

// DocumentActionRequest 标记问题 / 要求重传
type DocumentActionRequest struct {
	Reason string `json:"reason"`
}

// DecisionRequest 终审请求
type DecisionRequest struct {
	Outcome string `json:"outcome" binding:"required,oneof=approved rejected"`
	Reason  string `json:"reason,omitempty"`
}

// DecisionResponse 终审结果
type DecisionResponse struct {
	Reference       string `json:"reference"`
	Status          string `json:"status"`
	VendorID        string `json:"vendor_id,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	ReviewedAt      string `json:"reviewed_at"`
	ExpiresAt       string `json:"subscription_expires_at,omitempty"`
}
