package model

import "time"

// AuditLog 审核动作流水，只追加
type AuditLog struct {
	ID            int64     `gorm:"primaryKey" json:"id"`
	ApplicationID int64     `gorm:"not null;index" json:"application_id"`
	DocumentID    *int64    `gorm:"index" json:"document_id,omitempty"`
	ActorID       int64     `gorm:"not null" json:"actor_id"`
	Action        string    `gorm:"size:50;not null" json:"action"`
	Before        string    `gorm:"type:text" json:"before,omitempty"`
	After         string    `gorm:"type:text" json:"after,omitempty"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// 审计动作
const (
	AuditApplicationSubmitted = "application.submitted"
	AuditApplicationStatus    = "application.status_changed"
	AuditApplicationApproved  = "application.approved"
	AuditApplicationRejected  = "application.rejected"
	AuditDocumentUploaded     = "document.uploaded"
	AuditDocumentFlagged      = "document.flagged"
	AuditDocumentReupload     = "document.reupload_requested"
	AuditDocumentVerified     = "document.verified"
	AuditSectionVerified      = "section.verified"
)
