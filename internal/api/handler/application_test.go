package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/vendor_portal_server/internal/model"
	"github.com/qs3c/vendor_portal_server/internal/pkg/payment"
	"github.com/qs3c/vendor_portal_server/internal/pkg/response"
)

func TestApplicationHandler_Submit(t *testing.T) {
	env := newHandlerEnv(t)
	ref, _ := env.submit(t, "9876543210")
	assert.NotEmpty(t, ref)

	// 同一手机号再次提交
	w := env.do(http.MethodPost, "/api/v1/applications", submission("9876543210"), "")
	assert.Equal(t, response.CodeDuplicateAction, parseResponse(t, w).Code)
}

func TestApplicationHandler_Submit_MissingFields(t *testing.T) {
	env := newHandlerEnv(t)

	body := submission("9876543210")
	delete(body, "city")
	body["postal_code"] = ""

	w := env.do(http.MethodPost, "/api/v1/applications", body, "")
	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeParamError, resp.Code)

	fields := dataOf(t, resp)["fields"].(map[string]interface{})
	assert.Contains(t, fields, "city")
	assert.Contains(t, fields, "postal_code")
	assert.NotContains(t, fields, "mobile")
}

func TestApplicationHandler_Get(t *testing.T) {
	env := newHandlerEnv(t)
	ref, _ := env.submit(t, "9876543210")

	w := env.do(http.MethodGet, "/api/v1/applications/"+ref, nil, "")
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	data := dataOf(t, resp)
	assert.Equal(t, "pending", data["status"])
	assert.NotNil(t, data["payment"])

	w = env.do(http.MethodGet, "/api/v1/applications/APP-MISSING", nil, "")
	assert.Equal(t, response.CodeResourceNotFound, parseResponse(t, w).Code)
}

func TestApplicationHandler_UploadDocument(t *testing.T) {
	env := newHandlerEnv(t)
	ref, owner := env.submit(t, "9876543210")
	path := "/api/v1/applications/" + ref + "/documents"

	w := env.upload(t, path, env.token(t, owner, model.RoleVendor), "photo", "me.png", pngBytes)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	data := dataOf(t, resp)
	assert.Equal(t, "image/png", data["content_type"])
	assert.Equal(t, "personal", data["section"])
	assert.Equal(t, true, data["current"])

	// 其他供应商不能给别人的申请传文件
	w = env.upload(t, path, env.token(t, owner+100, model.RoleVendor), "photo", "me.png", pngBytes)
	assert.Equal(t, response.CodePermissionDenied, parseResponse(t, w).Code)

	w = env.upload(t, path, env.token(t, owner, model.RoleVendor), "selfie", "me.png", pngBytes)
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)

	w = env.upload(t, path, env.token(t, owner, model.RoleVendor), "id_proof", "id.txt", []byte("plain text"))
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)
}

func TestApplicationHandler_RegistrationPayment(t *testing.T) {
	env := newHandlerEnv(t)
	ref, owner := env.submit(t, "9876543210")
	token := env.token(t, owner, model.RoleVendor)

	w := env.do(http.MethodPost, "/api/v1/applications/"+ref+"/payment-order", nil, token)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	orderID := dataOf(t, resp)["order_id"].(string)

	confirm := map[string]string{
		"order_id":   orderID,
		"payment_id": "pay_h1",
		"signature":  "bad",
	}
	w = env.do(http.MethodPost, "/api/v1/applications/"+ref+"/payment", confirm, token)
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)

	confirm["signature"] = payment.Sign(env.cfg.Payment.KeySecret, orderID, "pay_h1")
	w = env.do(http.MethodPost, "/api/v1/applications/"+ref+"/payment", confirm, token)
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	assert.Equal(t, "under_review", dataOf(t, resp)["status"])
}

func TestApplicationHandler_StartRegistration(t *testing.T) {
	env := newHandlerEnv(t)

	w := env.do(http.MethodPost, "/api/v1/registrations", submission("9876543210"), "")
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	data := dataOf(t, resp)
	stagingID := data["staging_id"].(string)
	orderID := data["order_id"].(string)
	assert.Equal(t, "999.00", data["amount"])

	w = env.do(http.MethodPost, "/api/v1/registrations/complete", map[string]string{
		"staging_id": stagingID,
		"order_id":   orderID,
		"payment_id": "pay_reg_h1",
		"signature":  payment.Sign(env.cfg.Payment.KeySecret, orderID, "pay_reg_h1"),
	}, "")
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	assert.Equal(t, "under_review", dataOf(t, resp)["status"])

	// 暂存记录已消费
	w = env.do(http.MethodPost, "/api/v1/registrations/complete", map[string]string{
		"staging_id": stagingID,
		"order_id":   orderID,
		"payment_id": "pay_reg_h2",
		"signature":  payment.Sign(env.cfg.Payment.KeySecret, orderID, "pay_reg_h2"),
	}, "")
	assert.Equal(t, response.CodeResourceNotFound, parseResponse(t, w).Code)
}
