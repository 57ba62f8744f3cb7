package handler

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/vendor_portal_server/config"
	"github.com/qs3c/vendor_portal_server/internal/model"
	"github.com/qs3c/vendor_portal_server/internal/model/dto"
	"github.com/qs3c/vendor_portal_server/internal/pkg/response"
	"github.com/qs3c/vendor_portal_server/internal/service"
)

type ApplicationHandler struct {
	applications *service.ApplicationService
	registration *service.RegistrationService
	documents    *service.DocumentService
	cfg          *config.Config
}

func NewApplicationHandler(
	applications *service.ApplicationService,
	registration *service.RegistrationService,
	documents *service.DocumentService,
	cfg *config.Config,
) *ApplicationHandler {
	return &ApplicationHandler{
		applications: applications,
		registration: registration,
		documents:    documents,
		cfg:          cfg,
	}
}

// Submit 直接创建待付款的申请
// POST /api/v1/applications
func (h *ApplicationHandler) Submit(c *gin.Context) {
	var req dto.SubmitApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.applications.Submit(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, resp)
}

// StartRegistration 暂存注册信息并创建支付订单
// POST /api/v1/registrations
func (h *ApplicationHandler) StartRegistration(c *gin.Context) {
	var req dto.SubmitApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.registration.Start(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, resp)
}

// CompleteRegistration 支付成功后落库
// POST /api/v1/registrations/complete
func (h *ApplicationHandler) CompleteRegistration(c *gin.Context) {
	var req dto.CompleteRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.registration.Complete(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	response.SuccessWithMessage(c, "registration completed, application is under review", resp)
}

// Get 按编号查询状态、文件和付款摘要
// GET /api/v1/applications/:reference
func (h *ApplicationHandler) Get(c *gin.Context) {
	detail, err := h.applications.Detail(c.Request.Context(), c.Param("reference"))
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, detail)
}

// CreatePaymentOrder 为已提交的申请创建注册费订单
// POST /api/v1/applications/:reference/payment-order
func (h *ApplicationHandler) CreatePaymentOrder(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	order, err := h.registration.CreateOrder(c.Request.Context(), userID, c.Param("reference"))
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, order)
}

// ConfirmPayment 注册费支付回调
// POST /api/v1/applications/:reference/payment
func (h *ApplicationHandler) ConfirmPayment(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.PaymentConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	app, err := h.registration.PayRegistration(c.Request.Context(), userID, c.Param("reference"), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, dto.SubmitApplicationResponse{
		Reference: app.Reference,
		Status:    string(app.Status),
	})
}

// UploadDocument 上传或替换一份文件
// POST /api/v1/applications/:reference/documents
func (h *ApplicationHandler) UploadDocument(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}

	app, err := h.applications.Authorize(c.Request.Context(), userID, role, c.Param("reference"))
	if err != nil {
		handleError(c, err)
		return
	}

	docType := model.DocumentType(c.PostForm("document_type"))
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.ParamError(c, "file is required")
		return
	}
	defer file.Close()

	// 多读一个字节，超限的文件交给 service 给出明确的错误
	limit := h.cfg.Upload.MaxDocumentSize
	if h.cfg.Upload.MaxImageSize > limit {
		limit = h.cfg.Upload.MaxImageSize
	}
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		response.ParamError(c, "failed to read file")
		return
	}

	doc, err := h.documents.Upload(c.Request.Context(), userID, app.Reference, docType, data, header.Filename)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, service.ToDocumentItem(doc))
}
