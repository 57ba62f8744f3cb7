package model

import "time"

// SectionVerification 每个申请每个分区一条
type SectionVerification struct {
	ID            int64      `gorm:"primaryKey" json:"id"`
	ApplicationID int64      `gorm:"not null;uniqueIndex:idx_section_app" json:"application_id"`
	Section       Section    `gorm:"size:20;not null;uniqueIndex:idx_section_app" json:"section"`
	Verified      bool       `gorm:"not null;default:false" json:"verified"`
	VerifiedBy    *int64     `json:"verified_by,omitempty"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (SectionVerification) TableName() string {
	return "section_verifications"
}
