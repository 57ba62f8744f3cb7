package model

import (
	"errors"
	"time"
)

// ErrInvariantViolated 申请记录的结果字段与状态不一致
var ErrInvariantViolated = errors.New("application invariant violated")

type Application struct {
	ID              int64             `gorm:"primaryKey" json:"id"`
	Reference       string            `gorm:"size:40;uniqueIndex;not null" json:"reference"`
	UserID          int64             `gorm:"not null;index" json:"user_id"`
	FullName        string            `gorm:"size:100;not null" json:"full_name"`
	Mobile          string            `gorm:"size:20;not null;index" json:"mobile"`
	Email           *string           `gorm:"size:100" json:"email,omitempty"`
	ShopName        string            `gorm:"size:200;not null" json:"shop_name"`
	BusinessType    string            `gorm:"size:50;not null" json:"business_type"`
	AddressLine     string            `gorm:"size:300" json:"address_line,omitempty"`
	City            string            `gorm:"size:100;not null" json:"city"`
	State           string            `gorm:"size:100;not null" json:"state"`
	PostalCode      string            `gorm:"size:12;not null" json:"postal_code"`
	GSTNumber       string            `gorm:"size:20" json:"gst_number,omitempty"`
	Status          ApplicationStatus `gorm:"size:20;not null;default:pending;index" json:"status"`
	VendorID        *string           `gorm:"size:40;uniqueIndex" json:"vendor_id,omitempty"`
	RejectionReason *string           `gorm:"type:text" json:"rejection_reason,omitempty"`
	ReviewedBy      *int64            `json:"reviewed_by,omitempty"`
	SubmittedAt     time.Time         `gorm:"not null;index" json:"submitted_at"`
	ReviewedAt      *time.Time        `json:"reviewed_at,omitempty"`
	Version         int64             `gorm:"not null;default:1" json:"-"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (Application) TableName() string {
	return "applications"
}

// CheckInvariants vendor_id 仅在 approved 时存在，rejection_reason 仅在 rejected 时存在，
// reviewed_at 仅在终态时存在
func (a *Application) CheckInvariants() error {
	if !a.Status.Valid() {
		return ErrInvariantViolated
	}
	approved := a.Status == ApplicationApproved
	rejected := a.Status == ApplicationRejected

	if (a.VendorID != nil && *a.VendorID != "") != approved {
		return ErrInvariantViolated
	}
	if (a.RejectionReason != nil && *a.RejectionReason != "") != rejected {
		return ErrInvariantViolated
	}
	if (a.ReviewedAt != nil) != a.Status.IsTerminal() {
		return ErrInvariantViolated
	}
	return nil
}
