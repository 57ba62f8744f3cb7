package dto

// SubscriptionStatusResponse 会员状态
type SubscriptionStatusResponse struct {
	VendorID        string `json:"vendor_id"`
	Status          string `json:"status"`
	DaysUntilExpiry int    `json:"days_until_expiry"`
	ExpiresAt       string `json:"expires_at,omitempty"`
	ActivatedAt     string `json:"activated_at,omitempty"`
	AutoRenew       bool   `json:"auto_renew"`
}

// RenewalOrderResponse 续费下单结果
type RenewalOrderResponse struct {
	OrderID  string `json:"order_id"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"key_id,omitempty"`
}

// PaymentConfirmRequest 支付回调确认
type PaymentConfirmRequest struct {
	OrderID   string `json:"order_id" binding:"required"`
	PaymentID string `json:"payment_id" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// CertificateVerification 证书校验结果
type CertificateVerification struct {
	Reference string `json:"reference"`
	VendorID  string `json:"vendor_id,omitempty"`
	ShopName  string `json:"shop_name,omitempty"`
	Valid     bool   `json:"valid"`
	Revoked   bool   `json:"revoked"`
	Status    string `json:"status"`
	IssuedAt  string `json:"issued_at,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}
