package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Payment struct {
	ID            int64           `gorm:"primaryKey" json:"id"`
	ApplicationID int64           `gorm:"not null;index" json:"application_id"`
	VendorID      *string         `gorm:"size:40;index" json:"vendor_id,omitempty"`
	Purpose       PaymentPurpose  `gorm:"size:20;not null" json:"purpose"`
	OrderID       string          `gorm:"size:100;not null" json:"order_id"`
	PaymentID     string          `gorm:"size:100;not null;uniqueIndex" json:"payment_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency      string          `gorm:"size:3;not null" json:"currency"`
	PaidAt        time.Time       `gorm:"not null" json:"paid_at"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (Payment) TableName() string {
	return "payments"
}
