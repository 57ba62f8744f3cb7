package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/vendor_portal_server/internal/model"
)

type SectionRepository struct {
	db *gorm.DB
}

func NewSectionRepository(db *gorm.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

func (r *SectionRepository) WithTx(tx *gorm.DB) *SectionRepository {
	return &SectionRepository{db: tx}
}

func (r *SectionRepository) Get(ctx context.Context, appID int64, section model.Section) (*model.SectionVerification, error) {
	var sv model.SectionVerification
	err := r.db.WithContext(ctx).
		Where("application_id = ? AND section = ?", appID, section).
		First(&sv).Error
	if err != nil {
		return nil, err
	}
	return &sv, nil
}

func (r *SectionRepository) ListByApplication(ctx context.Context, appID int64) ([]*model.SectionVerification, error) {
	var list []*model.SectionVerification
	err := r.db.WithContext(ctx).Where("application_id = ?", appID).Order("section ASC").Find(&list).Error
	return list, err
}

// MarkVerified 先写者生效：已核验的记录不会被覆盖，返回本次是否写入
func (r *SectionRepository) MarkVerified(ctx context.Context, appID int64, section model.Section, by int64, at time.Time) (bool, error) {
	db := r.db.WithContext(ctx)

	row := &model.SectionVerification{ApplicationID: appID, Section: section, Verified: false}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
		return false, err
	}

	result := db.Model(&model.SectionVerification{}).
		Where("application_id = ? AND section = ? AND verified = ?", appID, section, false).
		Updates(map[string]interface{}{
			"verified":    true,
			"verified_by": by,
			"verified_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// CountVerified 已核验的分区数
func (r *SectionRepository) CountVerified(ctx context.Context, appID int64, sections []model.Section) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.SectionVerification{}).
		Where("application_id = ? AND section IN ? AND verified = ?", appID, sections, true).
		Count(&count).Error
	return count, err
}
