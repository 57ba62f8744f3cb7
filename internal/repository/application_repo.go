package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/vendor_portal_server/internal/model"
)

// ApplicationFilter 管理端列表过滤条件
type ApplicationFilter struct {
	Status model.ApplicationStatus
	Search string
	Limit  int
}

type ApplicationRepository struct {
	db *gorm.DB
}

func NewApplicationRepository(db *gorm.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

func (r *ApplicationRepository) WithTx(tx *gorm.DB) *ApplicationRepository {
	return &ApplicationRepository{db: tx}
}

func (r *ApplicationRepository) Create(ctx context.Context, app *model.Application) error {
	return r.db.WithContext(ctx).Create(app).Error
}

func (r *ApplicationRepository) GetByID(ctx context.Context, id int64) (*model.Application, error) {
	var app model.Application
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&app).Error
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *ApplicationRepository) GetByReference(ctx context.Context, ref string) (*model.Application, error) {
	var app model.Application
	err := r.db.WithContext(ctx).Where("reference = ?", ref).First(&app).Error
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *ApplicationRepository) GetByVendorID(ctx context.Context, vendorID string) (*model.Application, error) {
	var app model.Application
	err := r.db.WithContext(ctx).Where("vendor_id = ?", vendorID).First(&app).Error
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *ApplicationRepository) ExistsByReference(ctx context.Context, ref string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Application{}).Where("reference = ?", ref).Count(&count).Error
	return count > 0, err
}

func (r *ApplicationRepository) ExistsByVendorID(ctx context.Context, vendorID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Application{}).Where("vendor_id = ?", vendorID).Count(&count).Error
	return count > 0, err
}

// CompareAndSwap 仅当状态与版本号都未变化时更新，返回是否命中
func (r *ApplicationRepository) CompareAndSwap(ctx context.Context, app *model.Application, from model.ApplicationStatus, fields map[string]interface{}) (bool, error) {
	fields["version"] = gorm.Expr("version + 1")
	result := r.db.WithContext(ctx).Model(&model.Application{}).
		Where("id = ? AND status = ? AND version = ?", app.ID, from, app.Version).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *ApplicationRepository) List(ctx context.Context, filter ApplicationFilter) ([]*model.Application, error) {
	query := r.db.WithContext(ctx).Model(&model.Application{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where(
			"reference LIKE ? OR full_name LIKE ? OR shop_name LIKE ? OR mobile LIKE ? OR vendor_id LIKE ?",
			like, like, like, like, like,
		)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var apps []*model.Application
	err := query.Order("submitted_at DESC, id DESC").Find(&apps).Error
	return apps, err
}

// CountByStatus 按状态分组计数
func (r *ApplicationRepository) CountByStatus(ctx context.Context) (map[model.ApplicationStatus]int64, error) {
	var rows []struct {
		Status model.ApplicationStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&model.Application{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[model.ApplicationStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
