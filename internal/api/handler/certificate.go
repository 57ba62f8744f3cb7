package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/vendor_portal_server/internal/pkg/response"
	"github.com/qs3c/vendor_portal_server/internal/service"
)

type CertificateHandler struct {
	certificates *service.CertificateService
}

func NewCertificateHandler(certificates *service.CertificateService) *CertificateHandler {
	return &CertificateHandler{certificates: certificates}
}

// Verify 公开的证书校验
// GET /api/v1/certificates/:id
func (h *CertificateHandler) Verify(c *gin.Context) {
	result, err := h.certificates.Verify(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, result)
}
