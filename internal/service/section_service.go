package service

import (
	"context"
	"errors"

	"github.com/qs3c/vendor_portal_server/config"
	"github.com/qs3c/vendor_portal_server/internal/model"
	"github.com/qs3c/vendor_portal_server/internal/model/dto"
	"github.com/qs3c/vendor_portal_server/internal/repository"
)

// SectionService 分区核验
type SectionService struct {
	repos *repository.Repositories
	cfg   *config.Config
	rt    Runtime
}

func NewSectionService(repos *repository.Repositories, cfg *config.Config, rt Runtime) *SectionService {
	return &SectionService{repos: repos, cfg: cfg, rt: rt}
}

// SectionEligibility 分区内当前文件全部 verified 时可核验，没有文件视为可核验
func (s *SectionService) SectionEligibility(ctx context.Context, appID int64, section model.Section) (bool, error) {
	return sectionEligible(ctx, s.repos, appID, section)
}

func sectionEligible(ctx context.Context, r *repository.Repositories, appID int64, section model.Section) (bool, error) {
	docs, err := r.Documents.ListCurrentBySection(ctx, appID, section)
	if err != nil {
		return false, err
	}
	for _, d := range docs {
		if d.Status != model.DocumentVerified {
			return false, nil
		}
	}
	return true, nil
}

// MarkSectionVerified 审核人员确认分区，先写者生效，重复调用返回首次的结果
func (s *SectionService) MarkSectionVerified(ctx context.Context, ref string, section model.Section, verifiedBy int64) (*model.SectionVerification, error) {
	if !section.Valid() {
		return nil, fieldError("section", "must be personal or business")
	}

	var result *model.SectionVerification
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		app, err := tx.Applications.GetByReference(ctx, ref)
		if err != nil {
			return translate(err, "application")
		}

		existing, err := tx.Sections.Get(ctx, app.ID, section)
		if err == nil && existing.Verified {
			result = existing
			return nil
		}
		if err != nil && !errors.Is(translate(err, "section"), ErrNotFound) {
			return err
		}

		if app.Status.IsTerminal() {
			return invalidState("application %s is already %s", app.Reference, app.Status)
		}

		if !s.cfg.Review.AllowSectionOverride {
			eligible, err := sectionEligible(ctx, tx, app.ID, section)
			if err != nil {
				return err
			}
			if !eligible {
				return invalidState("%s section has documents that are not verified", section)
			}
		}

		now := s.rt.now()
		won, err := tx.Sections.MarkVerified(ctx, app.ID, section, verifiedBy, now)
		if err != nil {
			return err
		}
		result, err = tx.Sections.Get(ctx, app.ID, section)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}

		return appendAudit(ctx, tx, &model.AuditLog{
			ApplicationID: app.ID,
			ActorID:       verifiedBy,
			Action:        model.AuditSectionVerified,
			CreatedAt:     now,
		}, map[string]interface{}{"section": section, "verified": false},
			map[string]interface{}{"section": section, "verified": true})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// IsApplicationFullyVerified 两个分区都已核验
func (s *SectionService) IsApplicationFullyVerified(ctx context.Context, appID int64) (bool, error) {
	return fullyVerified(ctx, s.repos, appID)
}

func fullyVerified(ctx context.Context, r *repository.Repositories, appID int64) (bool, error) {
	sections := model.AllSections()
	n, err := r.Sections.CountVerified(ctx, appID, sections)
	if err != nil {
		return false, err
	}
	return n == int64(len(sections)), nil
}

// Summary 每个分区的核验状态与自动检查结果
func (s *SectionService) Summary(ctx context.Context, appID int64) ([]*dto.SectionItem, error) {
	rows, err := s.repos.Sections.ListByApplication(ctx, appID)
	if err != nil {
		return nil, err
	}
	bySection := make(map[model.Section]*model.SectionVerification, len(rows))
	for _, r := range rows {
		bySection[r.Section] = r
	}

	items := make([]*dto.SectionItem, 0, len(model.AllSections()))
	for _, section := range model.AllSections() {
		eligible, err := s.SectionEligibility(ctx, appID, section)
		if err != nil {
			return nil, err
		}
		item := &dto.SectionItem{Section: string(section), Eligible: eligible}
		if sv, ok := bySection[section]; ok && sv.Verified {
			item.Verified = true
			if sv.VerifiedBy != nil {
				item.VerifiedBy = *sv.VerifiedBy
			}
			if sv.VerifiedAt != nil {
				item.VerifiedAt = formatTime(*sv.VerifiedAt)
			}
		}
		items = append(items, item)
	}
	return items, nil
}
