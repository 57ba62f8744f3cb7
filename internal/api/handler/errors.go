package handler

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/vendor_portal_server/internal/api/middleware"
	"github.com/qs3c/vendor_portal_server/internal/model"
	"github.com/qs3c/vendor_portal_server/internal/pkg/response"
	"github.com/qs3c/vendor_portal_server/internal/service"
)

// handleError 把 service 的分类错误映射为响应码
func handleError(c *gin.Context, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		response.FieldError(c, verr.Error(), verr.Fields)
	case errors.Is(err, service.ErrValidation):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		response.AuthError(c, err.Error())
	case errors.Is(err, service.ErrForbidden):
		response.PermissionError(c, "")
	case errors.Is(err, service.ErrNotFound):
		response.NotFoundError(c, err.Error())
	case errors.Is(err, service.ErrConflict):
		response.DuplicateError(c, err.Error())
	case errors.Is(err, service.ErrInvalidState), errors.Is(err, service.ErrInvalidTransition):
		response.StateError(c, err.Error())
	case errors.Is(err, service.ErrDownstream):
		slog.Warn("downstream failure", "path", c.FullPath(), "error", err)
		response.ServerError(c, "upstream service unavailable, please retry")
	default:
		slog.Error("request failed", "path", c.FullPath(), "error", err)
		response.ServerError(c, "")
	}
}

// currentUser 已认证请求的用户 ID 与角色
func currentUser(c *gin.Context) (int64, model.UserRole, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return 0, "", false
	}
	role, _ := middleware.GetRole(c)
	return userID, role, true
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "invalid "+name)
		return 0, false
	}
	return id, true
}
