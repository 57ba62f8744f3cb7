package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/vendor_portal_server/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) WithTx(tx *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *DocumentRepository) GetByID(ctx context.Context, id int64) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// UpdateIfCurrent 只更新仍为当前版本的文件，返回是否命中
func (r *DocumentRepository) UpdateIfCurrent(ctx context.Context, id int64, fields map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ? AND superseded_at IS NULL", id).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// SupersedeCurrent 把同一申请同一类型、ID 更小的当前文件标记为被 newID 替换，
// 并发上传时 ID 最大的一份保留为当前文件
func (r *DocumentRepository) SupersedeCurrent(ctx context.Context, appID int64, docType model.DocumentType, newID int64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Document{}).
		Where("application_id = ? AND type = ? AND superseded_at IS NULL AND id < ?", appID, docType, newID).
		Updates(map[string]interface{}{
			"superseded_at": at,
			"superseded_by": newID,
		}).Error
}

// ListCurrent 当前有效的文件
func (r *DocumentRepository) ListCurrent(ctx context.Context, appID int64) ([]*model.Document, error) {
	var docs []*model.Document
	err := r.db.WithContext(ctx).
		Where("application_id = ? AND superseded_at IS NULL", appID).
		Order("section ASC, type ASC").
		Find(&docs).Error
	return docs, err
}

func (r *DocumentRepository) ListCurrentBySection(ctx context.Context, appID int64, section model.Section) ([]*model.Document, error) {
	var docs []*model.Document
	err := r.db.WithContext(ctx).
		Where("application_id = ? AND section = ? AND superseded_at IS NULL", appID, section).
		Order("type ASC").
		Find(&docs).Error
	return docs, err
}

// ListHistory 全部文件（含已替换），按上传时间倒序
func (r *DocumentRepository) ListHistory(ctx context.Context, appID int64) ([]*model.Document, error) {
	var docs []*model.Document
	err := r.db.WithContext(ctx).
		Where("application_id = ?", appID).
		Order("created_at DESC, id DESC").
		Find(&docs).Error
	return docs, err
}
