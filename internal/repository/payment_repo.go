package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/vendor_portal_server/internal/model"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) WithTx(tx *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: tx}
}

func (r *PaymentRepository) Create(ctx context.Context, p *model.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PaymentRepository) ExistsByPaymentID(ctx context.Context, paymentID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Payment{}).Where("payment_id = ?", paymentID).Count(&count).Error
	return count > 0, err
}

func (r *PaymentRepository) ListByApplication(ctx context.Context, appID int64) ([]*model.Payment, error) {
	var list []*model.Payment
	err := r.db.WithContext(ctx).
		Where("application_id = ?", appID).
		Order("paid_at ASC, id ASC").
		Find(&list).Error
	return list, err
}
