package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/vendor_portal_server/internal/model"
)

var seq int64

func next() int64 {
	return atomic.AddInt64(&seq, 1)
}

// TestUser 创建测试用户
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	n := next()
	email := fmt.Sprintf("vendor_%d@example.com", n)
	mobile := fmt.Sprintf("90000%05d", n)
	user := &model.User{
		Name:   fmt.Sprintf("Vendor %d", n),
		Email:  &email,
		Mobile: &mobile,
		Role:   model.RoleVendor,
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// WithRole 设置角色
func WithRole(role model.UserRole) func(*model.User) {
	return func(u *model.User) {
		u.Role = role
	}
}

// WithMobile 设置手机号
func WithMobile(mobile string) func(*model.User) {
	return func(u *model.User) {
		u.Mobile = &mobile
	}
}

// WithEmail 设置邮箱
func WithEmail(email string) func(*model.User) {
	return func(u *model.User) {
		u.Email = &email
	}
}

// WithPasswordHash 设置 bcrypt 哈希
func WithPasswordHash(hash string) func(*model.User) {
	return func(u *model.User) {
		u.PasswordHash = &hash
	}
}

// TestApplication 创建测试申请
func TestApplication(t *testing.T, db *gorm.DB, userID int64, opts ...func(*model.Application)) *model.Application {
	t.Helper()

	n := next()
	app := &model.Application{
		Reference:    fmt.Sprintf("APP-TEST-%06d", n),
		UserID:       userID,
		FullName:     fmt.Sprintf("Applicant %d", n),
		Mobile:       fmt.Sprintf("98000%05d", n),
		ShopName:     fmt.Sprintf("Shop %d", n),
		BusinessType: "retail",
		City:         "Pune",
		State:        "Maharashtra",
		PostalCode:   "411001",
		Status:       model.ApplicationPending,
		SubmittedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Version:      1,
	}

	for _, opt := range opts {
		opt(app)
	}

	if err := db.Create(app).Error; err != nil {
		t.Fatalf("Failed to create test application: %v", err)
	}

	return app
}

// WithStatus 设置申请状态
func WithStatus(status model.ApplicationStatus) func(*model.Application) {
	return func(a *model.Application) {
		a.Status = status
	}
}

// WithApproved 设置为已通过
func WithApproved(vendorID string, reviewedAt time.Time) func(*model.Application) {
	return func(a *model.Application) {
		a.Status = model.ApplicationApproved
		a.VendorID = &vendorID
		a.ReviewedAt = &reviewedAt
	}
}

// WithApplicantEmail 设置申请人邮箱
func WithApplicantEmail(email string) func(*model.Application) {
	return func(a *model.Application) {
		a.Email = &email
	}
}

// TestDocument 创建当前有效的测试文件
func TestDocument(t *testing.T, db *gorm.DB, appID int64, docType model.DocumentType, status model.DocumentStatus) *model.Document {
	t.Helper()

	doc := &model.Document{
		ApplicationID: appID,
		Type:          docType,
		Section:       docType.Section(),
		ObjectKey:     fmt.Sprintf("documents/%d/%s/%d.pdf", appID, docType, next()),
		FileName:      string(docType) + ".pdf",
		ContentType:   "application/pdf",
		Size:          1024,
		Status:        status,
	}
	if status.RequiresReason() {
		reason := "unreadable scan"
		doc.Reason = &reason
	}

	if err := db.Create(doc).Error; err != nil {
		t.Fatalf("Failed to create test document: %v", err)
	}

	return doc
}

// TestSubscription 创建测试会员
func TestSubscription(t *testing.T, db *gorm.DB, app *model.Application, activatedAt time.Time, opts ...func(*model.Subscription)) *model.Subscription {
	t.Helper()

	vendorID := ""
	if app.VendorID != nil {
		vendorID = *app.VendorID
	}
	sub := &model.Subscription{
		ApplicationID: app.ID,
		UserID:        app.UserID,
		VendorID:      vendorID,
		Status:        model.SubscriptionActive,
		ActivatedAt:   activatedAt,
		ExpiresAt:     activatedAt.AddDate(0, 0, 365),
	}

	for _, opt := range opts {
		opt(sub)
	}

	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("Failed to create test subscription: %v", err)
	}

	return sub
}

// WithSubscriptionStatus 设置会员状态
func WithSubscriptionStatus(status model.SubscriptionStatus) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.Status = status
	}
}
