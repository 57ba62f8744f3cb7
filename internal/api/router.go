package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qs3c/vendor_portal_server/config"
	"github.com/qs3c/vendor_portal_server/internal/api/handler"
	"github.com/qs3c/vendor_portal_server/internal/api/middleware"
	"github.com/qs3c/vendor_portal_server/internal/model"
)

type Handlers struct {
	Auth         *handler.AuthHandler
	Application  *handler.ApplicationHandler
	Admin        *handler.AdminHandler
	Subscription *handler.SubscriptionHandler
	Certificate  *handler.CertificateHandler
	WebSocket    *handler.WebSocketHandler
}

type Router struct {
	handlers Handlers
	cfg      *config.Config

	// 可选：指标出口与本地文件目录
	gatherer prometheus.Gatherer
	filesDir string
}

func NewRouter(handlers Handlers, cfg *config.Config) *Router {
	return &Router{handlers: handlers, cfg: cfg}
}

// WithMetrics 在 /metrics 暴露 gatherer 中的指标
func (r *Router) WithMetrics(g prometheus.Gatherer) *Router {
	r.gatherer = g
	return r
}

// WithLocalFiles 未接 OSS 时通过 /files 提供已上传的材料
func (r *Router) WithLocalFiles(dir string) *Router {
	r.filesDir = dir
	return r
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	if r.gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))
	}
	if r.filesDir != "" {
		engine.Static("/files", r.filesDir)
	}

	h := r.handlers
	api := engine.Group("/api/v1")
	{
		// WebSocket
		if h.WebSocket != nil {
			api.GET("/ws", h.WebSocket.Handle)
		}

		// 公开接口
		api.POST("/auth/login", h.Auth.Login)
		api.POST("/applications", h.Application.Submit)
		api.GET("/applications/:reference", h.Application.Get)
		api.POST("/registrations", h.Application.StartRegistration)
		api.POST("/registrations/complete", h.Application.CompleteRegistration)
		api.GET("/certificates/:id", h.Certificate.Verify)

		// 需要认证的接口
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			authenticated.GET("/auth/me", h.Auth.Me)

			// 申请人
			applications := authenticated.Group("/applications/:reference")
			{
				applications.POST("/documents", h.Application.UploadDocument)
				applications.POST("/payment-order", h.Application.CreatePaymentOrder)
				applications.POST("/payment", h.Application.ConfirmPayment)
			}

			// 会员
			vendor := authenticated.Group("/vendor")
			{
				vendor.GET("/subscription", h.Subscription.Get)
				vendor.PUT("/subscription/auto-renew", h.Subscription.SetAutoRenew)
				vendor.POST("/renewal/order", h.Subscription.CreateRenewalOrder)
				vendor.POST("/renewal/complete", h.Subscription.CompleteRenewal)
			}
			authenticated.GET("/subscriptions/:vendor_id", h.Subscription.GetByVendorID)

			// 审核后台
			admin := authenticated.Group("/admin")
			admin.Use(middleware.RequireRole(model.RoleReviewer, model.RoleAdmin))
			{
				admin.GET("/dashboard", h.Admin.Dashboard)
				admin.GET("/applications", h.Admin.List)
				admin.GET("/applications/:reference", h.Admin.Get)
				admin.POST("/applications/:reference/sections/:section/verify", h.Admin.VerifySection)
				admin.POST("/applications/:reference/decision", h.Admin.Decide)

				admin.GET("/documents/:id/preview", h.Admin.PreviewDocument)
				admin.POST("/documents/:id/flag", h.Admin.FlagDocument)
				admin.POST("/documents/:id/reupload", h.Admin.RequestReupload)
				admin.POST("/documents/:id/verify", h.Admin.VerifyDocument)

				admin.POST("/subscriptions/:vendor_id/cancel", h.Admin.CancelSubscription)
			}

			// 手动触发后台任务只对管理员开放
			authenticated.POST("/admin/jobs/reminders", middleware.RequireRole(model.RoleAdmin), h.Admin.RunJobs)
		}
	}

	return engine
}
