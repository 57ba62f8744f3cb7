package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/vendor_portal_server/internal/model"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) WithTx(tx *gorm.DB) *AuditRepository {
	return &AuditRepository{db: tx}
}

func (r *AuditRepository) Append(ctx context.Context, entry *model.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *AuditRepository) ListByApplication(ctx context.Context, appID int64) ([]*model.AuditLog, error) {
	var list []*model.AuditLog
	err := r.db.WithContext(ctx).
		Where("application_id = ?", appID).
		Order("created_at ASC, id ASC").
		Find(&list).Error
	return list, err
}
