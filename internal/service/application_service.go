package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/qs3c/vendor_portal_server/config"
	"github.com/qs3c/vendor_portal_server/internal/model"
	"github.com/qs3c/vendor_portal_server/internal/model/dto"
	"github.com/qs3c/vendor_portal_server/internal/pkg/pubsub"
	"github.com/qs3c/vendor_portal_server/internal/repository"
)

var mobilePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

// StatusPublisher 申请状态变更的实时推送
type StatusPublisher interface {
	PublishStatus(ctx context.Context, msg *pubsub.StatusMessage) error
}

// ApplicationService 申请状态机
type ApplicationService struct {
	repos     *repository.Repositories
	sections  *SectionService
	publisher StatusPublisher
	cfg       *config.Config
	rt        Runtime
}

func NewApplicationService(repos *repository.Repositories, sections *SectionService, publisher StatusPublisher, cfg *config.Config, rt Runtime) *ApplicationService {
	return &ApplicationService{
		repos:     repos,
		sections:  sections,
		publisher: publisher,
		cfg:       cfg,
		rt:        rt,
	}
}

// ValidateSubmission 校验注册信息，返回逐字段错误
func ValidateSubmission(req *dto.SubmitApplicationRequest) error {
	normalizeSubmission(req)

	verr := &ValidationError{}
	required := []struct {
		field string
		value string
	}{
		{"full_name", req.FullName},
		{"mobile", req.Mobile},
		{"shop_name", req.ShopName},
		{"business_type", req.BusinessType},
		{"city", req.City},
		{"state", req.State},
		{"postal_code", req.PostalCode},
	}
	for _, r := range required {
		if r.value == "" {
			verr.Add(r.field, "is required")
		}
	}

	if req.Mobile != "" && !mobilePattern.MatchString(req.Mobile) {
		verr.Add("mobile", "must be 10 to 15 digits")
	}
	if req.Email != "" && !strings.Contains(req.Email, "@") {
		verr.Add("email", "is not a valid email address")
	}
	if req.Password != "" && len(req.Password) < 8 {
		verr.Add("password", "must be at least 8 characters")
	}
	return verr.OrNil()
}

func normalizeSubmission(req *dto.SubmitApplicationRequest) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Mobile = strings.ReplaceAll(strings.TrimSpace(req.Mobile), " ", "")
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.ShopName = strings.TrimSpace(req.ShopName)
	req.BusinessType = strings.TrimSpace(req.BusinessType)
	req.AddressLine = strings.TrimSpace(req.AddressLine)
	req.City = strings.TrimSpace(req.City)
	req.State = strings.TrimSpace(req.State)
	req.PostalCode = strings.TrimSpace(req.PostalCode)
	req.GSTNumber = strings.ToUpper(strings.TrimSpace(req.GSTNumber))
}

// CheckIdentityAvailable 手机号或邮箱已绑定账号时返回 ConflictError
func (s *ApplicationService) CheckIdentityAvailable(ctx context.Context, mobile, email string) error {
	return checkIdentityAvailable(ctx, s.repos, mobile, email)
}

func checkIdentityAvailable(ctx context.Context, r *repository.Repositories, mobile, email string) error {
	exists, err := r.Users.ExistsByMobile(ctx, mobile)
	if err != nil {
		return err
	}
	if exists {
		return conflict("mobile number %s is already registered", mobile)
	}
	if email == "" {
		return nil
	}
	exists, err = r.Users.ExistsByEmail(ctx, email)
	if err != nil {
		return err
	}
	if exists {
		return conflict("email %s is already registered", email)
	}
	return nil
}

// Submit 创建供应商账号与 pending 状态的申请
func (s *ApplicationService) Submit(ctx context.Context, req *dto.SubmitApplicationRequest) (*dto.SubmitApplicationResponse, error) {
	if err := ValidateSubmission(req); err != nil {
		return nil, err
	}

	var app *model.Application
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		app, err = s.create(ctx, tx, req, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	s.rt.log().Info("application submitted", "reference", app.Reference, "user_id", app.UserID)
	return &dto.SubmitApplicationResponse{
		Reference: app.Reference,
		Status:    string(app.Status),
	}, nil
}

// create 在事务中创建账号和申请，调用方负责提前校验。
// passwordHash 非空时直接使用（注册暂存区只保存哈希）
func (s *ApplicationService) create(ctx context.Context, r *repository.Repositories, req *dto.SubmitApplicationRequest, passwordHash string) (*model.Application, error) {
	now := s.rt.now()

	// 并发注册由唯一索引兜底
	if err := checkIdentityAvailable(ctx, r, req.Mobile, req.Email); err != nil {
		return nil, err
	}

	mobile := req.Mobile
	user := &model.User{
		Name:   req.FullName,
		Mobile: &mobile,
		Role:   model.RoleVendor,
	}
	var email *string
	if req.Email != "" {
		e := req.Email
		email = &e
		user.Email = &e
	}
	if passwordHash == "" && req.Password != "" {
		var err error
		if passwordHash, err = hashPassword(req.Password); err != nil {
			return nil, err
		}
	}
	if passwordHash != "" {
		user.PasswordHash = &passwordHash
	}
	if err := r.Users.Create(ctx, user); err != nil {
		return nil, translate(err, "account")
	}

	app := &model.Application{
		UserID:       user.ID,
		FullName:     req.FullName,
		Mobile:       req.Mobile,
		Email:        email,
		ShopName:     req.ShopName,
		BusinessType: req.BusinessType,
		AddressLine:  req.AddressLine,
		City:         req.City,
		State:        req.State,
		PostalCode:   req.PostalCode,
		GSTNumber:    req.GSTNumber,
		Status:       model.ApplicationPending,
		SubmittedAt:  now,
		Version:      1,
	}
	for attempt := 0; ; attempt++ {
		app.Reference = newReference(now)
		exists, err := r.Applications.ExistsByReference(ctx, app.Reference)
		if err != nil {
			return nil, err
		}
		if !exists {
			break
		}
		if attempt >= 4 {
			return nil, conflict("could not allocate application reference")
		}
	}
	if err := r.Applications.Create(ctx, app); err != nil {
		return nil, translate(err, "application")
	}
	if err := app.CheckInvariants(); err != nil {
		return nil, err
	}

	err := appendAudit(ctx, r, &model.AuditLog{
		ApplicationID: app.ID,
		ActorID:       user.ID,
		Action:        model.AuditApplicationSubmitted,
		CreatedAt:     now,
	}, nil, map[string]string{"status": string(app.Status), "reference": app.Reference})
	if err != nil {
		return nil, err
	}
	return app, nil
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// MarkPaymentPending pending -> payment_pending
func (s *ApplicationService) MarkPaymentPending(ctx context.Context, actorID int64, ref string) (*model.Application, error) {
	return s.Transition(ctx, actorID, ref, model.ApplicationPaymentPending)
}

// MarkUnderReview pending/payment_pending -> under_review
func (s *ApplicationService) MarkUnderReview(ctx context.Context, actorID int64, ref string) (*model.Application, error) {
	return s.Transition(ctx, actorID, ref, model.ApplicationUnderReview)
}

// Transition 非终态之间的前向迁移，终审只能走 ReviewService
func (s *ApplicationService) Transition(ctx context.Context, actorID int64, ref string, to model.ApplicationStatus) (*model.Application, error) {
	if to.IsTerminal() {
		return nil, newError(ErrInvalidTransition, "status %s can only be set by a review decision", to)
	}

	var app *model.Application
	var from model.ApplicationStatus
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		app, err = tx.Applications.GetByReference(ctx, ref)
		if err != nil {
			return translate(err, "application")
		}
		from = app.Status
		return s.transitionTx(ctx, tx, app, actorID, to, nil)
	})
	if err != nil {
		return nil, err
	}

	s.rt.Metrics.IncTransition(string(from), string(to))
	s.publish(ctx, app)
	return app, nil
}

// transitionTx 校验迁移表并以 (status, version) 做比较交换，成功后校验不变量
func (s *ApplicationService) transitionTx(ctx context.Context, r *repository.Repositories, app *model.Application, actorID int64, to model.ApplicationStatus, fields map[string]interface{}) error {
	from := app.Status
	if !model.CanTransition(from, to) {
		return newError(ErrInvalidTransition, "cannot move application from %s to %s", from, to)
	}

	now := s.rt.now()
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["status"] = to
	fields["updated_at"] = now

	ok, err := r.Applications.CompareAndSwap(ctx, app, from, fields)
	if err != nil {
		return translate(err, "application")
	}
	if !ok {
		return conflict("application %s was modified concurrently", app.Reference)
	}

	updated, err := r.Applications.GetByID(ctx, app.ID)
	if err != nil {
		return err
	}
	if err := updated.CheckInvariants(); err != nil {
		return err
	}
	*app = *updated

	return appendAudit(ctx, r, &model.AuditLog{
		ApplicationID: app.ID,
		ActorID:       actorID,
		Action:        model.AuditApplicationStatus,
		CreatedAt:     now,
	}, map[string]string{"status": string(from)}, map[string]string{"status": string(to)})
}

func (s *ApplicationService) publish(ctx context.Context, app *model.Application) {
	if s.publisher == nil {
		return
	}
	msg := &pubsub.StatusMessage{
		UserID:    app.UserID,
		Reference: app.Reference,
		Status:    string(app.Status),
		At:        s.rt.now(),
	}
	if app.VendorID != nil {
		msg.VendorID = *app.VendorID
	}
	if app.RejectionReason != nil {
		msg.Reason = *app.RejectionReason
	}
	if err := s.publisher.PublishStatus(ctx, msg); err != nil {
		s.rt.log().Warn("publish status failed", "reference", app.Reference, "error", err)
	}
}

// GetByReference 按编号查询申请记录
func (s *ApplicationService) GetByReference(ctx context.Context, ref string) (*model.Application, error) {
	app, err := s.repos.Applications.GetByReference(ctx, ref)
	if err != nil {
		return nil, translate(err, "application")
	}
	return app, nil
}

// Authorize 申请人本人或审核人员才能操作该申请
func (s *ApplicationService) Authorize(ctx context.Context, userID int64, role model.UserRole, ref string) (*model.Application, error) {
	app, err := s.GetByReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !role.IsStaff() && app.UserID != userID {
		return nil, ErrForbidden
	}
	return app, nil
}

// Detail 申请状态、当前文件、付款摘要
func (s *ApplicationService) Detail(ctx context.Context, ref string) (*dto.ApplicationDetail, error) {
	app, err := s.GetByReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, app)
}

func (s *ApplicationService) detail(ctx context.Context, app *model.Application) (*dto.ApplicationDetail, error) {
	docs, err := s.repos.Documents.ListCurrent(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	payments, err := s.repos.Payments.ListByApplication(ctx, app.ID)
	if err != nil {
		return nil, err
	}

	detail := &dto.ApplicationDetail{
		Reference:    app.Reference,
		Status:       string(app.Status),
		FullName:     app.FullName,
		Mobile:       app.Mobile,
		ShopName:     app.ShopName,
		BusinessType: app.BusinessType,
		City:         app.City,
		State:        app.State,
		PostalCode:   app.PostalCode,
		SubmittedAt:  formatTime(app.SubmittedAt),
		Documents:    make([]*dto.DocumentItem, 0, len(docs)),
		Payment:      s.paymentSummary(payments),
	}
	if app.Email != nil {
		detail.Email = *app.Email
	}
	if app.VendorID != nil {
		detail.VendorID = *app.VendorID
	}
	if app.RejectionReason != nil {
		detail.RejectionReason = *app.RejectionReason
	}
	if app.ReviewedAt != nil {
		detail.ReviewedAt = formatTime(*app.ReviewedAt)
	}
	for _, d := range docs {
		detail.Documents = append(detail.Documents, ToDocumentItem(d))
	}

	if s.sections != nil {
		detail.Sections, err = s.sections.Summary(ctx, app.ID)
		if err != nil {
			return nil, err
		}
	}
	return detail, nil
}

func (s *ApplicationService) paymentSummary(payments []*model.Payment) *dto.PaymentSummary {
	summary := &dto.PaymentSummary{
		TotalPaid: decimal.Zero.StringFixed(2),
		Currency:  s.cfg.Subscription.Currency,
		Count:     len(payments),
	}
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
		summary.Currency = p.Currency
	}
	summary.TotalPaid = total.StringFixed(2)
	if n := len(payments); n > 0 {
		last := payments[n-1]
		summary.LastPaidAt = formatTime(last.PaidAt)
		summary.LastPayment = last.PaymentID
	}
	return summary
}

// List 管理端列表
func (s *ApplicationService) List(ctx context.Context, req *dto.ApplicationListRequest) ([]*dto.ApplicationListItem, error) {
	status := model.ApplicationStatus(strings.TrimSpace(req.Status))
	if status != "" && !status.Valid() {
		return nil, fieldError("status", "unknown application status")
	}
	limit := req.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	apps, err := s.repos.Applications.List(ctx, repository.ApplicationFilter{
		Status: status,
		Search: strings.TrimSpace(req.Search),
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}

	items := make([]*dto.ApplicationListItem, 0, len(apps))
	for _, a := range apps {
		item := &dto.ApplicationListItem{
			Reference:    a.Reference,
			FullName:     a.FullName,
			Mobile:       a.Mobile,
			ShopName:     a.ShopName,
			BusinessType: a.BusinessType,
			City:         a.City,
			Status:       string(a.Status),
			SubmittedAt:  formatTime(a.SubmittedAt),
		}
		if a.VendorID != nil {
			item.VendorID = *a.VendorID
		}
		items = append(items, item)
	}
	return items, nil
}

// AdminDetail 管理端详情：当前文件、历史文件、审计流水
func (s *ApplicationService) AdminDetail(ctx context.Context, ref string) (*dto.AdminApplicationDetail, error) {
	app, err := s.GetByReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	detail, err := s.detail(ctx, app)
	if err != nil {
		return nil, err
	}

	history, err := s.repos.Documents.ListHistory(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	audits, err := s.repos.Audits.ListByApplication(ctx, app.ID)
	if err != nil {
		return nil, err
	}

	out := &dto.AdminApplicationDetail{
		ApplicationDetail: detail,
		History:           make([]*dto.DocumentItem, 0, len(history)),
		AuditLog:          make([]*dto.AuditItem, 0, len(audits)),
	}
	for _, d := range history {
		out.History = append(out.History, ToDocumentItem(d))
	}
	for _, a := range audits {
		item := &dto.AuditItem{
			ID:        a.ID,
			ActorID:   a.ActorID,
			Action:    a.Action,
			Before:    a.Before,
			After:     a.After,
			CreatedAt: formatTime(a.CreatedAt),
		}
		if a.DocumentID != nil {
			item.DocumentID = *a.DocumentID
		}
		out.AuditLog = append(out.AuditLog, item)
	}
	return out, nil
}

// Dashboard 看板计数
func (s *ApplicationService) Dashboard(ctx context.Context) (*dto.DashboardStats, error) {
	counts, err := s.repos.Applications.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	stats := &dto.DashboardStats{
		Pending:        counts[model.ApplicationPending],
		PaymentPending: counts[model.ApplicationPaymentPending],
		UnderReview:    counts[model.ApplicationUnderReview],
		Approved:       counts[model.ApplicationApproved],
		Rejected:       counts[model.ApplicationRejected],
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

// recipientFor 通知收件人：优先使用申请表中的邮箱，其次是账号邮箱
func recipientFor(ctx context.Context, r *repository.Repositories, app *model.Application) (string, error) {
	if app.Email != nil && *app.Email != "" {
		return *app.Email, nil
	}
	user, err := r.Users.GetByID(ctx, app.UserID)
	if err != nil {
		if errors.Is(translate(err, "user"), ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	if user.Email != nil {
		return *user.Email, nil
	}
	return "", nil
}

func ToDocumentItem(d *model.Document) *dto.DocumentItem {
	item := &dto.DocumentItem{
		ID:          d.ID,
		Type:        string(d.Type),
		Section:     string(d.Section),
		FileName:    d.FileName,
		ContentType: d.ContentType,
		Size:        d.Size,
		URL:         d.URL,
		Status:      string(d.Status),
		Current:     d.IsCurrent(),
		UploadedAt:  formatTime(d.CreatedAt),
	}
	if d.Reason != nil {
		item.Reason = *d.Reason
	}
	return item
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
