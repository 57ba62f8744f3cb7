package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/vendor_portal_server/internal/model"
	"github.com/qs3c/vendor_portal_server/internal/model/dto"
	"github.com/qs3c/vendor_portal_server/internal/pkg/response"
	"github.com/qs3c/vendor_portal_server/internal/service"
)

// JobRunner 手动触发会员状态刷新和提醒投递
type JobRunner interface {
	RunNow(ctx context.Context) (service.SweepResult, service.BatchResult, error)
}

type AdminHandler struct {
	applications  *service.ApplicationService
	documents     *service.DocumentService
	sections      *service.SectionService
	reviews       *service.ReviewService
	subscriptions *service.SubscriptionService
	jobs          JobRunner
}

func NewAdminHandler(
	applications *service.ApplicationService,
	documents *service.DocumentService,
	sections *service.SectionService,
	reviews *service.ReviewService,
	subscriptions *service.SubscriptionService,
	jobs JobRunner,
) *AdminHandler {
	return &AdminHandler{
		applications:  applications,
		documents:     documents,
		sections:      sections,
		reviews:       reviews,
		subscriptions: subscriptions,
		jobs:          jobs,
	}
}

// List 按状态、关键字过滤申请
// GET /api/v1/admin/applications
func (h *AdminHandler) List(c *gin.Context) {
	var req dto.ApplicationListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	items, err := h.applications.List(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	// 列表只按 limit 截断，不分页
	response.SuccessPage(c, int64(len(items)), 1, req.Limit, items)
}

// Get 申请详情，含文件历史与审计记录
// GET /api/v1/admin/applications/:reference
func (h *AdminHandler) Get(c *gin.Context) {
	detail, err := h.applications.AdminDetail(c.Request.Context(), c.Param("reference"))
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, detail)
}

// Dashboard 看板统计
// GET /api/v1/admin/dashboard
func (h *AdminHandler) Dashboard(c *gin.Context) {
	stats, err := h.applications.Dashboard(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, stats)
}

// FlagDocument 标记文件有问题
// POST /api/v1/admin/documents/:id/flag
func (h *AdminHandler) FlagDocument(c *gin.Context) {
	h.documentAction(c, func(ctx context.Context, actorID, docID int64, reason string) (*model.Document, error) {
		return h.documents.Flag(ctx, actorID, docID, reason)
	})
}

// RequestReupload 要求重新上传
// POST /api/v1/admin/documents/:id/reupload
func (h *AdminHandler) RequestReupload(c *gin.Context) {
	h.documentAction(c, func(ctx context.Context, actorID, docID int64, reason string) (*model.Document, error) {
		return h.documents.RequestReupload(ctx, actorID, docID, reason)
	})
}

// VerifyDocument 文件审核通过
// POST /api/v1/admin/documents/:id/verify
func (h *AdminHandler) VerifyDocument(c *gin.Context) {
	h.documentAction(c, func(ctx context.Context, actorID, docID int64, _ string) (*model.Document, error) {
		return h.documents.Verify(ctx, actorID, docID)
	})
}

func (h *AdminHandler) documentAction(c *gin.Context, act func(ctx context.Context, actorID, docID int64, reason string) (*model.Document, error)) {
	actorID, _, ok := currentUser(c)
	if !ok {
		return
	}
	docID, ok := idParam(c, "id")
	if !ok {
		return
	}

	// 请求体可以为空（verify 不需要原因）
	var req dto.DocumentActionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ParamError(c, err.Error())
			return
		}
	}

	doc, err := act(c.Request.Context(), actorID, docID, req.Reason)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, service.ToDocumentItem(doc))
}

// PreviewDocument 文件临时访问地址
// GET /api/v1/admin/documents/:id/preview
func (h *AdminHandler) PreviewDocument(c *gin.Context) {
	docID, ok := idParam(c, "id")
	if !ok {
		return
	}

	url, err := h.documents.PreviewURL(c.Request.Context(), docID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{"url": url})
}

// VerifySection 确认分区审核通过
// POST /api/v1/admin/applications/:reference/sections/:section/verify
func (h *AdminHandler) VerifySection(c *gin.Context) {
	actorID, _, ok := currentUser(c)
	if !ok {
		return
	}

	sv, err := h.sections.MarkSectionVerified(c.Request.Context(), c.Param("reference"), model.Section(c.Param("section")), actorID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, sv)
}

// Decide 终审
// POST /api/v1/admin/applications/:reference/decision
func (h *AdminHandler) Decide(c *gin.Context) {
	reviewerID, _, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.reviews.Decide(c.Request.Context(), reviewerID, c.Param("reference"), model.ApplicationStatus(req.Outcome), req.Reason)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, resp)
}

// CancelSubscription 取消会员
// POST /api/v1/admin/subscriptions/:vendor_id/cancel
func (h *AdminHandler) CancelSubscription(c *gin.Context) {
	sub, err := h.subscriptions.Cancel(c.Request.Context(), c.Param("vendor_id"))
	if err != nil {
		handleError(c, err)
		return
	}

	status, err := h.subscriptions.GetStatus(c.Request.Context(), sub.VendorID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, status)
}

// RunJobs 立即执行一次状态刷新和提醒投递
// POST /api/v1/admin/jobs/reminders
func (h *AdminHandler) RunJobs(c *gin.Context) {
	if h.jobs == nil {
		response.StateError(c, "background jobs are not enabled")
		return
	}

	swept, batch, err := h.jobs.RunNow(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{"sweep": swept, "reminders": batch})
}
