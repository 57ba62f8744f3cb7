package service

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/qs3c/vendor_portal_server/internal/model"
	"github.com/qs3c/vendor_portal_server/internal/model/dto"
	"github.com/qs3c/vendor_portal_server/internal/testutil"
)

func validSubmission() *dto.SubmitApplicationRequest {
	return &dto.SubmitApplicationRequest{
		FullName:     "Asha Patel",
		Mobile:       "9876543210",
		Email:        "asha@example.com",
		Password:     "password123",
		ShopName:     "Patel Provisions",
		BusinessType: "grocery",
		City:         "Pune",
		State:        "Maharashtra",
		PostalCode:   "411001",
	}
}

func TestApplicationService_Submit_Success(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp, err := env.apps.Submit(ctx, validSubmission())
	require.NoError(t, err)
	assert.Equal(t, string(model.ApplicationPending), resp.Status)
	assert.Regexp(t, regexp.MustCompile(`^APP-20240301-[0-9A-F]{8}$`), resp.Reference)

	app, err := env.apps.GetByReference(ctx, resp.Reference)
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationPending, app.Status)
	assert.True(t, testStart.Equal(app.SubmittedAt))
	assert.Nil(t, app.VendorID)
	assert.NoError(t, app.CheckInvariants())

	user, err := env.repos.Users.GetByID(ctx, app.UserID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleVendor, user.Role)
	require.NotNil(t, user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte("password123")))

	assert.Equal(t, []string{model.AuditApplicationSubmitted}, env.auditActions(t, app.ID))
}

func TestApplicationService_Submit_DuplicateMobile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.apps.Submit(ctx, validSubmission())
	require.NoError(t, err)

	second := validSubmission()
	second.Email = "other@example.com"
	_, err = env.apps.Submit(ctx, second)
	assert.ErrorIs(t, err, ErrConflict)

	var count int64
	require.NoError(t, env.db.Model(&model.Application{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestApplicationService_Submit_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.apps.Submit(ctx, validSubmission())
	require.NoError(t, err)

	second := validSubmission()
	second.Mobile = "9123456780"
	second.Email = "  ASHA@example.com "
	_, err = env.apps.Submit(ctx, second)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestApplicationService_Submit_MissingFields(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.apps.Submit(context.Background(), &dto.SubmitApplicationRequest{
		FullName: "  ",
		Mobile:   "9876543210",
	})
	require.ErrorIs(t, err, ErrValidation)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	for _, field := range []string{"full_name", "shop_name", "business_type", "city", "state", "postal_code"} {
		assert.Contains(t, verr.Fields, field)
	}
	assert.NotContains(t, verr.Fields, "mobile")
}

func TestValidateSubmission_Formats(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*dto.SubmitApplicationRequest)
		field  string
	}{
		{"short mobile", func(r *dto.SubmitApplicationRequest) { r.Mobile = "12345" }, "mobile"},
		{"letters in mobile", func(r *dto.SubmitApplicationRequest) { r.Mobile = "98765abcde" }, "mobile"},
		{"bad email", func(r *dto.SubmitApplicationRequest) { r.Email = "not-an-email" }, "email"},
		{"short password", func(r *dto.SubmitApplicationRequest) { r.Password = "short" }, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validSubmission()
			tt.mutate(req)

			var verr *ValidationError
			require.True(t, errors.As(ValidateSubmission(req), &verr))
			assert.Contains(t, verr.Fields, tt.field)
		})
	}

	req := validSubmission()
	req.Mobile = "+91 98765 43210"
	assert.NoError(t, ValidateSubmission(req))
	assert.Equal(t, "+919876543210", req.Mobile)
}

func TestApplicationService_ForwardTransitions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp, err := env.apps.Submit(ctx, validSubmission())
	require.NoError(t, err)

	app, err := env.apps.MarkPaymentPending(ctx, 1, resp.Reference)
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationPaymentPending, app.Status)
	assert.Equal(t, int64(2), app.Version)

	app, err = env.apps.MarkUnderReview(ctx, 1, resp.Reference)
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationUnderReview, app.Status)

	_, err = env.apps.MarkPaymentPending(ctx, 1, resp.Reference)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.Equal(t, []string{"payment_pending", "under_review"}, env.publisher.Statuses())
	assert.Equal(t, []string{
		model.AuditApplicationSubmitted,
		model.AuditApplicationStatus,
		model.AuditApplicationStatus,
	}, env.auditActions(t, app.ID))
}

func TestApplicationService_PendingDirectlyToUnderReview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp, err := env.apps.Submit(ctx, validSubmission())
	require.NoError(t, err)

	app, err := env.apps.MarkUnderReview(ctx, 1, resp.Reference)
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationUnderReview, app.Status)
}

func TestApplicationService_TerminalTargetsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	app := env.underReview(t)

	for _, to := range []model.ApplicationStatus{model.ApplicationApproved, model.ApplicationRejected} {
		_, err := env.apps.Transition(ctx, 1, app.Reference, to)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}

	reloaded, err := env.apps.GetByReference(ctx, app.Reference)
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationUnderReview, reloaded.Status)
}

func TestApplicationService_StaleVersionConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := testutil.TestUser(t, env.db)
	app := testutil.TestApplication(t, env.db, user.ID)

	stale := *app
	_, err := env.apps.MarkPaymentPending(ctx, 1, app.Reference)
	require.NoError(t, err)

	// 旧版本号上的比较交换不会命中
	stale.Status = model.ApplicationPaymentPending
	err = env.apps.transitionTx(ctx, env.repos, &stale, 1, model.ApplicationUnderReview, nil)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestApplicationService_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.apps.MarkUnderReview(context.Background(), 1, "APP-MISSING")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.apps.Detail(context.Background(), "APP-MISSING")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplicationService_Detail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	app := env.underReview(t)

	_, err := env.documents.Upload(ctx, app.UserID, app.Reference, model.DocPhoto, pngBytes, "photo.png")
	require.NoError(t, err)

	detail, err := env.apps.Detail(ctx, app.Reference)
	require.NoError(t, err)
	assert.Equal(t, app.Reference, detail.Reference)
	assert.Equal(t, string(model.ApplicationUnderReview), detail.Status)
	require.Len(t, detail.Documents, 1)
	assert.Equal(t, string(model.DocPhoto), detail.Documents[0].Type)
	assert.Equal(t, "0.00", detail.Payment.TotalPaid)
	require.Len(t, detail.Sections, 2)
	assert.False(t, detail.Sections[0].Eligible)
	assert.True(t, detail.Sections[1].Eligible)
}

func TestApplicationService_ListAndDashboard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := testutil.TestUser(t, env.db)
	testutil.TestApplication(t, env.db, user.ID)
	testutil.TestApplication(t, env.db, user.ID, testutil.WithStatus(model.ApplicationUnderReview))
	target := testutil.TestApplication(t, env.db, user.ID, func(a *model.Application) {
		a.ShopName = "Sunrise Hardware"
	})

	items, err := env.apps.List(ctx, &dto.ApplicationListRequest{Status: "pending"})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = env.apps.List(ctx, &dto.ApplicationListRequest{Search: "Sunrise"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, target.Reference, items[0].Reference)

	_, err = env.apps.List(ctx, &dto.ApplicationListRequest{Status: "archived"})
	assert.ErrorIs(t, err, ErrValidation)

	stats, err := env.apps.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.Pending)
	assert.Equal(t, int64(1), stats.UnderReview)
}

func TestApplicationService_Authorize(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	app := env.underReview(t)

	got, err := env.apps.Authorize(ctx, app.UserID, model.RoleVendor, app.Reference)
	require.NoError(t, err)
	assert.Equal(t, app.ID, got.ID)

	_, err = env.apps.Authorize(ctx, app.UserID+1, model.RoleVendor, app.Reference)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.apps.Authorize(ctx, 900, model.RoleReviewer, app.Reference)
	assert.NoError(t, err)

	_, err = env.apps.Authorize(ctx, app.UserID, model.RoleVendor, "APP-MISSING")
	assert.ErrorIs(t, err, ErrNotFound)
}
