package model

import "time"

type ReminderCheckpoint struct {
	ID             int64            `gorm:"primaryKey" json:"id"`
	SubscriptionID int64            `gorm:"not null;index" json:"subscription_id"`
	VendorID       string           `gorm:"size:40;not null;index" json:"vendor_id"`
	Kind           CheckpointKind   `gorm:"size:20;not null" json:"kind"`
	KindRank       int              `gorm:"not null" json:"-"`
	ExpiresAt      time.Time        `gorm:"not null" json:"expires_at"`
	FireAt         time.Time        `gorm:"not null;index:idx_checkpoint_due" json:"fire_at"`
	Status         CheckpointStatus `gorm:"size:20;not null;default:pending;index:idx_checkpoint_due" json:"status"`
	Attempts       int              `gorm:"not null;default:0" json:"attempts"`
	LastError      string           `gorm:"type:text" json:"last_error,omitempty"`
	FiredAt        *time.Time       `json:"fired_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func (ReminderCheckpoint) TableName() string {
	return "reminder_checkpoints"
}
