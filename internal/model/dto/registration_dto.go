package dto

// StartRegistrationResponse 注册暂存 + 支付下单
type StartRegistrationResponse struct {
	StagingID string `json:"staging_id"`
	OrderID   string `json:"order_id"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	KeyID     string `json:"key_id,omitempty"`
	ExpiresAt string `json:"expires_at"`
}

// CompleteRegistrationRequest 支付成功后完成注册
type CompleteRegistrationRequest struct {
	StagingID string `json:"staging_id" binding:"required"`
	PaymentConfirmRequest
}
