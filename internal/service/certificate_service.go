package service

import (
	"context"
	"errors"
	"strings"

	"github.com/qs3c/vendor_portal_server/internal/model"
	"github.com/qs3c/vendor_portal_server/internal/model/dto"
	"github.com/qs3c/vendor_portal_server/internal/repository"
)

// CertificateService 公开的会员证书校验，只读
type CertificateService struct {
	repos         *repository.Repositories
	subscriptions *SubscriptionService
	rt            Runtime
}

func NewCertificateService(repos *repository.Repositories, subscriptions *SubscriptionService, rt Runtime) *CertificateService {
	return &CertificateService{repos: repos, subscriptions: subscriptions, rt: rt}
}

// Verify 按申请编号或 vendor ID 校验证书；证书仅在申请通过且会员未过期、未取消时有效
func (s *CertificateService) Verify(ctx context.Context, id string) (*dto.CertificateVerification, error) {
	id = strings.ToUpper(strings.TrimSpace(id))
	if id == "" {
		return nil, fieldError("id", "is required")
	}

	var app *model.Application
	var err error
	if strings.HasPrefix(id, "VND-") {
		app, err = s.repos.Applications.GetByVendorID(ctx, id)
	} else {
		app, err = s.repos.Applications.GetByReference(ctx, id)
	}
	if err != nil {
		if errors.Is(translate(err, "application"), ErrNotFound) {
			return nil, notFound("no certificate found for %s", id)
		}
		return nil, err
	}

	result := &dto.CertificateVerification{
		Reference: app.Reference,
		ShopName:  app.ShopName,
		Status:    string(model.SubscriptionNone),
	}
	if app.Status != model.ApplicationApproved || app.VendorID == nil {
		result.Status = string(app.Status)
		return result, nil
	}
	result.VendorID = *app.VendorID

	sub, err := s.repos.Subscriptions.GetByApplicationID(ctx, app.ID)
	if err != nil {
		if errors.Is(translate(err, "subscription"), ErrNotFound) {
			return result, nil
		}
		return nil, err
	}

	status := s.subscriptions.DeriveStatus(sub, s.rt.now())
	result.Status = string(status)
	result.IssuedAt = formatTime(sub.ActivatedAt)
	result.ExpiresAt = formatTime(sub.ExpiresAt)
	result.Revoked = status == model.SubscriptionCancelled
	result.Valid = status == model.SubscriptionActive || status == model.SubscriptionExpiringSoon
	return result, nil
}
