package model

import (
	"time"
)

type Subscription struct {
	ID                 int64              `gorm:"primaryKey" json:"id"`
	ApplicationID      int64              `gorm:"not null;uniqueIndex" json:"application_id"`
	UserID             int64              `gorm:"not null;index" json:"user_id"`
	VendorID           string             `gorm:"size:40;not null;uniqueIndex" json:"vendor_id"`
	Status             SubscriptionStatus `gorm:"size:20;not null;default:active;index" json:"status"`
	ActivatedAt        time.Time          `gorm:"not null" json:"activated_at"`
	ExpiresAt          time.Time          `gorm:"not null;index" json:"expires_at"`
	AutoRenew          bool               `gorm:"not null;default:false" json:"auto_renew"`
	LastReminderSentAt *time.Time         `json:"last_reminder_sent_at,omitempty"`
	LastPaymentID      string             `gorm:"size:100" json:"last_payment_id,omitempty"`
	RenewalCount       int                `gorm:"not null;default:0" json:"renewal_count"`
	CancelledAt        *time.Time         `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}
