package model

import "time"

type Document struct {
	ID            int64          `gorm:"primaryKey" json:"id"`
	ApplicationID int64          `gorm:"not null;index:idx_doc_app_type" json:"application_id"`
	Type          DocumentType   `gorm:"size:40;not null;index:idx_doc_app_type" json:"type"`
	Section       Section        `gorm:"size:20;not null;index" json:"section"`
	ObjectKey     string         `gorm:"size:500;not null" json:"-"`
	URL           string         `gorm:"size:500" json:"url,omitempty"`
	FileName      string         `gorm:"size:255" json:"file_name"`
	ContentType   string         `gorm:"size:50" json:"content_type"`
	Size          int64          `json:"size"`
	Status        DocumentStatus `gorm:"size:30;not null;default:pending;index" json:"status"`
	Reason        *string        `gorm:"type:text" json:"reason,omitempty"`
	UploadedBy    int64          `json:"uploaded_by"`
	LastActionBy  *int64         `json:"last_action_by,omitempty"`
	SupersededAt  *time.Time     `gorm:"index" json:"superseded_at,omitempty"`
	SupersededBy  *int64         `json:"superseded_by,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (Document) TableName() string {
	return "documents"
}

// IsCurrent 未被同类型新文件替换
func (d *Document) IsCurrent() bool {
	return d.SupersededAt == nil
}
