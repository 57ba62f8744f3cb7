package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/qs3c/vendor_portal_server/config"
	"github.com/qs3c/vendor_portal_server/internal/model"
	"github.com/qs3c/vendor_portal_server/internal/pkg/oss"
	"github.com/qs3c/vendor_portal_server/internal/repository"
)

// DocumentService 申请材料登记
type DocumentService struct {
	repos   *repository.Repositories
	storage oss.Storage
	cfg     *config.Config
	rt      Runtime
}

func NewDocumentService(repos *repository.Repositories, storage oss.Storage, cfg *config.Config, rt Runtime) *DocumentService {
	return &DocumentService{repos: repos, storage: storage, cfg: cfg, rt: rt}
}

// documentState 审计记录中的文件状态快照
type documentState struct {
	Status model.DocumentStatus `json:"status"`
	Reason string               `json:"reason,omitempty"`
}

func stateOf(d *model.Document) documentState {
	st := documentState{Status: d.Status}
	if d.Reason != nil {
		st.Reason = *d.Reason
	}
	return st
}

// sniff 按文件内容识别类型并校验大小
func (s *DocumentService) sniff(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fieldError("file", "is empty")
	}

	detected := mimetype.Detect(data)
	contentType := ""
	for _, allowed := range s.cfg.Upload.AllowedTypes {
		if detected.Is(allowed) {
			contentType = allowed
			break
		}
	}
	if contentType == "" {
		return "", fieldError("file", fmt.Sprintf("unsupported file type %s, expected JPEG, PNG or PDF", detected.String()))
	}

	limit := s.cfg.Upload.MaxDocumentSize
	if strings.HasPrefix(contentType, "image/") {
		limit = s.cfg.Upload.MaxImageSize
	}
	if limit > 0 && int64(len(data)) > limit {
		return "", fieldError("file", fmt.Sprintf("exceeds the %d KB limit for %s", limit>>10, contentType))
	}
	return contentType, nil
}

// Upload 上传新文件，同类型的旧文件标记为已替换但保留
func (s *DocumentService) Upload(ctx context.Context, actorID int64, ref string, docType model.DocumentType, data []byte, filename string) (*model.Document, error) {
	if !docType.Valid() {
		return nil, fieldError("document_type", "unknown document type")
	}
	contentType, err := s.sniff(data)
	if err != nil {
		return nil, err
	}

	app, err := s.repos.Applications.GetByReference(ctx, ref)
	if err != nil {
		return nil, translate(err, "application")
	}
	if app.Status.IsTerminal() {
		return nil, invalidState("application %s is already %s", app.Reference, app.Status)
	}

	now := s.rt.now()
	objectKey := oss.DocumentKey(app.Reference, string(docType), oss.ExtensionFor(contentType), now)
	url, err := s.storage.UploadFile(objectKey, data, contentType)
	if err != nil {
		return nil, downstream("document storage", err)
	}

	doc := &model.Document{
		ApplicationID: app.ID,
		Type:          docType,
		Section:       docType.Section(),
		ObjectKey:     objectKey,
		URL:           url,
		FileName:      filepath.Base(filename),
		ContentType:   contentType,
		Size:          int64(len(data)),
		Status:        model.DocumentPending,
		UploadedBy:    actorID,
	}

	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Documents.Create(ctx, doc); err != nil {
			return err
		}
		if err := tx.Documents.SupersedeCurrent(ctx, app.ID, docType, doc.ID, now); err != nil {
			return err
		}
		return appendAudit(ctx, tx, &model.AuditLog{
			ApplicationID: app.ID,
			DocumentID:    &doc.ID,
			ActorID:       actorID,
			Action:        model.AuditDocumentUploaded,
			CreatedAt:     now,
		}, nil, map[string]interface{}{
			"type":         docType,
			"status":       doc.Status,
			"size":         doc.Size,
			"content_type": contentType,
		})
	})
	if err != nil {
		if delErr := s.storage.Delete(objectKey); delErr != nil {
			s.rt.log().Warn("remove orphan object failed", "object_key", objectKey, "error", delErr)
		}
		return nil, err
	}

	s.rt.log().Info("document uploaded",
		"reference", app.Reference,
		"type", docType,
		"document_id", doc.ID,
		"size", doc.Size)
	return doc, nil
}

// Flag 标记文件有问题，覆盖之前的重传要求
func (s *DocumentService) Flag(ctx context.Context, actorID, docID int64, reason string) (*model.Document, error) {
	return s.setStatus(ctx, actorID, docID, model.DocumentFlagged, reason, model.AuditDocumentFlagged)
}

// RequestReupload 要求重新上传，覆盖之前的问题标记
func (s *DocumentService) RequestReupload(ctx context.Context, actorID, docID int64, reason string) (*model.Document, error) {
	return s.setStatus(ctx, actorID, docID, model.DocumentReuploadRequested, reason, model.AuditDocumentReupload)
}

// Verify 文件核验通过，清除原因
func (s *DocumentService) Verify(ctx context.Context, actorID, docID int64) (*model.Document, error) {
	return s.setStatus(ctx, actorID, docID, model.DocumentVerified, "", model.AuditDocumentVerified)
}

func (s *DocumentService) setStatus(ctx context.Context, actorID, docID int64, status model.DocumentStatus, reason, action string) (*model.Document, error) {
	reason = strings.TrimSpace(reason)
	if status.RequiresReason() && reason == "" {
		return nil, fieldError("reason", "is required")
	}

	var doc *model.Document
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		doc, err = tx.Documents.GetByID(ctx, docID)
		if err != nil {
			return translate(err, "document")
		}
		if !doc.IsCurrent() {
			return invalidState("document %d has been replaced by a newer upload", docID)
		}

		app, err := tx.Applications.GetByID(ctx, doc.ApplicationID)
		if err != nil {
			return translate(err, "application")
		}
		if app.Status.IsTerminal() {
			return invalidState("application %s is already %s", app.Reference, app.Status)
		}

		before := stateOf(doc)
		doc.Status = status
		doc.Reason = nil
		if status.RequiresReason() {
			doc.Reason = &reason
		}
		doc.LastActionBy = &actorID

		// 读取之后被新上传替换的文件不再改写
		ok, err := tx.Documents.UpdateIfCurrent(ctx, doc.ID, map[string]interface{}{
			"status":         doc.Status,
			"reason":         doc.Reason,
			"last_action_by": doc.LastActionBy,
		})
		if err != nil {
			return err
		}
		if !ok {
			// MySQL 对值未变化的行返回 0，需要重新确认
			current, err := tx.Documents.GetByID(ctx, doc.ID)
			if err != nil {
				return translate(err, "document")
			}
			if !current.IsCurrent() {
				return invalidState("document %d has been replaced by a newer upload", docID)
			}
		}

		return appendAudit(ctx, tx, &model.AuditLog{
			ApplicationID: app.ID,
			DocumentID:    &doc.ID,
			ActorID:       actorID,
			Action:        action,
			CreatedAt:     s.rt.now(),
		}, before, stateOf(doc))
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Current 当前有效文件
func (s *DocumentService) Current(ctx context.Context, appID int64) ([]*model.Document, error) {
	return s.repos.Documents.ListCurrent(ctx, appID)
}

// History 全部文件，含已替换的版本
func (s *DocumentService) History(ctx context.Context, appID int64) ([]*model.Document, error) {
	return s.repos.Documents.ListHistory(ctx, appID)
}

// PreviewURL 审核页面使用的临时访问地址
func (s *DocumentService) PreviewURL(ctx context.Context, docID int64) (string, error) {
	doc, err := s.repos.Documents.GetByID(ctx, docID)
	if err != nil {
		return "", translate(err, "document")
	}
	url, err := s.storage.GetSignedURL(doc.ObjectKey)
	if err != nil {
		return "", downstream("document storage", err)
	}
	return url, nil
}
