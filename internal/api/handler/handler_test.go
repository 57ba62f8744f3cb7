package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/vendor_portal_server/config"
	"github.com/qs3c/vendor_portal_server/internal/api/middleware"
	"github.com/qs3c/vendor_portal_server/internal/model"
	"github.com/qs3c/vendor_portal_server/internal/pkg/jwt"
	"github.com/qs3c/vendor_portal_server/internal/pkg/notify"
	"github.com/qs3c/vendor_portal_server/internal/pkg/oss"
	"github.com/qs3c/vendor_portal_server/internal/pkg/payment"
	"github.com/qs3c/vendor_portal_server/internal/pkg/response"
	"github.com/qs3c/vendor_portal_server/internal/pkg/staging"
	"github.com/qs3c/vendor_portal_server/internal/repository"
	"github.com/qs3c/vendor_portal_server/internal/service"
	"github.com/qs3c/vendor_portal_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "test-secret-key"

type handlerEnv struct {
	db     *gorm.DB
	repos  *repository.Repositories
	cfg    *config.Config
	engine *gin.Engine
}

// newHandlerEnv 用真实的 service 组装路由，数据库为 sqlite 内存库，Redis 为 miniredis
func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })
	client, _ := testutil.SetupTestRedis(t)

	cfg := config.Defaults()
	cfg.JWT = config.JWTConfig{Secret: testSecret, ExpireHours: 24}
	cfg.Payment = config.PaymentConfig{KeyID: "rzp_test_key", KeySecret: "test-payment-secret"}

	storage, err := oss.NewLocalStorage(t.TempDir(), "/files")
	require.NoError(t, err)

	rt := service.Runtime{}
	repos := repository.NewRepositories(db)
	dispatcher := notify.NewLogDispatcher(nil)
	gateway := payment.NewLocalGateway(cfg.Payment)
	staged := staging.NewStore(client, "registration:", 30*time.Minute)
	orders := staging.NewStore(client, "order:", 30*time.Minute)

	sections := service.NewSectionService(repos, cfg, rt)
	apps := service.NewApplicationService(repos, sections, nil, cfg, rt)
	documents := service.NewDocumentService(repos, storage, cfg, rt)
	reminders := service.NewReminderService(repos, dispatcher, cfg, rt)
	subscriptions := service.NewSubscriptionService(repos, reminders, dispatcher, cfg, rt)
	reviews := service.NewReviewService(repos, apps, subscriptions, dispatcher, cfg, rt)
	registration := service.NewRegistrationService(repos, apps, gateway, staged, orders, cfg, rt)
	renewals := service.NewRenewalService(subscriptions, gateway, orders, cfg, rt)
	auth := service.NewAuthService(service.NewCredentialStore(cfg, repos.Users), cfg, rt)
	certificates := service.NewCertificateService(repos, subscriptions, rt)

	authHandler := NewAuthHandler(auth)
	appHandler := NewApplicationHandler(apps, registration, documents, cfg)
	adminHandler := NewAdminHandler(apps, documents, sections, reviews, subscriptions, nil)
	subHandler := NewSubscriptionHandler(subscriptions, renewals)
	certHandler := NewCertificateHandler(certificates)

	engine := gin.New()
	api := engine.Group("/api/v1")
	api.POST("/auth/login", authHandler.Login)
	api.POST("/applications", appHandler.Submit)
	api.POST("/registrations", appHandler.StartRegistration)
	api.POST("/registrations/complete", appHandler.CompleteRegistration)
	api.GET("/applications/:reference", appHandler.Get)
	api.GET("/certificates/:id", certHandler.Verify)

	authed := api.Group("", middleware.Auth(testSecret))
	authed.GET("/auth/me", authHandler.Me)
	authed.POST("/applications/:reference/documents", appHandler.UploadDocument)
	authed.POST("/applications/:reference/payment-order", appHandler.CreatePaymentOrder)
	authed.POST("/applications/:reference/payment", appHandler.ConfirmPayment)
	authed.GET("/vendor/subscription", subHandler.Get)
	authed.PUT("/vendor/subscription/auto-renew", subHandler.SetAutoRenew)
	authed.POST("/vendor/renewal/order", subHandler.CreateRenewalOrder)
	authed.POST("/vendor/renewal/complete", subHandler.CompleteRenewal)
	authed.GET("/subscriptions/:vendor_id", subHandler.GetByVendorID)

	admin := authed.Group("/admin", middleware.RequireRole(model.RoleReviewer, model.RoleAdmin))
	admin.GET("/applications", adminHandler.List)
	admin.GET("/applications/:reference", adminHandler.Get)
	admin.GET("/dashboard", adminHandler.Dashboard)
	admin.POST("/applications/:reference/sections/:section/verify", adminHandler.VerifySection)
	admin.POST("/applications/:reference/decision", adminHandler.Decide)
	admin.GET("/documents/:id/preview", adminHandler.PreviewDocument)
	admin.POST("/documents/:id/flag", adminHandler.FlagDocument)
	admin.POST("/documents/:id/reupload", adminHandler.RequestReupload)
	admin.POST("/documents/:id/verify", adminHandler.VerifyDocument)
	admin.POST("/subscriptions/:vendor_id/cancel", adminHandler.CancelSubscription)
	admin.POST("/jobs/reminders", adminHandler.RunJobs)

	return &handlerEnv{db: db, repos: repos, cfg: cfg, engine: engine}
}

func (e *handlerEnv) token(t *testing.T, userID int64, role model.UserRole) string {
	t.Helper()
	token, err := jwt.GenerateToken(userID, string(role), testSecret, 1)
	require.NoError(t, err)
	return token
}

func (e *handlerEnv) do(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func (e *handlerEnv) upload(t *testing.T, path, token, docType, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("document_type", docType))
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

// dataOf 把 data 字段解成 map
func dataOf(t *testing.T, resp response.Response) map[string]interface{} {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", resp.Data)
	return data
}

func submission(mobile string) map[string]interface{} {
	return map[string]interface{}{
		"full_name":     "Asha Patel",
		"mobile":        mobile,
		"email":         "asha." + mobile + "@example.com",
		"password":      "password123",
		"shop_name":     "Patel Provisions",
		"business_type": "grocery",
		"city":          "Pune",
		"state":         "Maharashtra",
		"postal_code":   "411001",
	}
}

// submit 提交申请并返回编号和申请人 ID
func (e *handlerEnv) submit(t *testing.T, mobile string) (string, int64) {
	t.Helper()
	w := e.do(http.MethodPost, "/api/v1/applications", submission(mobile), "")
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	ref := dataOf(t, resp)["reference"].(string)

	app, err := e.repos.Applications.GetByReference(context.Background(), ref)
	require.NoError(t, err)
	return ref, app.UserID
}

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)
