package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/vendor_portal_server/internal/model"
)

type ReminderRepository struct {
	db *gorm.DB
}

func NewReminderRepository(db *gorm.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

func (r *ReminderRepository) WithTx(tx *gorm.DB) *ReminderRepository {
	return &ReminderRepository{db: tx}
}

func (r *ReminderRepository) CreateBatch(ctx context.Context, checkpoints []*model.ReminderCheckpoint) error {
	if len(checkpoints) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&checkpoints).Error
}

func (r *ReminderRepository) GetByID(ctx context.Context, id int64) (*model.ReminderCheckpoint, error) {
	var cp model.ReminderCheckpoint
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&cp).Error
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (r *ReminderRepository) ListByVendor(ctx context.Context, vendorID string) ([]*model.ReminderCheckpoint, error) {
	var list []*model.ReminderCheckpoint
	err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("fire_at ASC, kind_rank ASC").
		Find(&list).Error
	return list, err
}

// DeleteByVendor 删除该供应商的全部提醒节点
func (r *ReminderRepository) DeleteByVendor(ctx context.Context, vendorID string) error {
	return r.db.WithContext(ctx).Where("vendor_id = ?", vendorID).Delete(&model.ReminderCheckpoint{}).Error
}

// DueIDs 到期且仍待发送的节点 ID，按触发时间、节点顺序排序
func (r *ReminderRepository) DueIDs(ctx context.Context, now time.Time) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&model.ReminderCheckpoint{}).
		Where("status = ? AND fire_at <= ?", model.CheckpointPending, now).
		Order("fire_at ASC, kind_rank ASC, id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// MarkFired 仅当节点仍为 pending 时写入终态，返回是否命中
func (r *ReminderRepository) MarkFired(ctx context.Context, id int64, status model.CheckpointStatus, at time.Time, lastErr string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.ReminderCheckpoint{}).
		Where("id = ? AND status = ?", id, model.CheckpointPending).
		Updates(map[string]interface{}{
			"status":     status,
			"fired_at":   at,
			"last_error": lastErr,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// RecordAttempt 记录一次失败的投递，节点保持 pending
func (r *ReminderRepository) RecordAttempt(ctx context.Context, id int64, lastErr string) error {
	return r.db.WithContext(ctx).Model(&model.ReminderCheckpoint{}).
		Where("id = ? AND status = ?", id, model.CheckpointPending).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": lastErr,
		}).Error
}

// CancelPendingByVendor 取消该供应商所有待发送节点
func (r *ReminderRepository) CancelPendingByVendor(ctx context.Context, vendorID string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.ReminderCheckpoint{}).
		Where("vendor_id = ? AND status = ?", vendorID, model.CheckpointPending).
		Update("status", model.CheckpointCancelled)
	return result.RowsAffected, result.Error
}

func (r *ReminderRepository) ExistsKind(ctx context.Context, subscriptionID int64, kind model.CheckpointKind) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ReminderCheckpoint{}).
		Where("subscription_id = ? AND kind = ?", subscriptionID, kind).
		Count(&count).Error
	return count > 0, err
}
