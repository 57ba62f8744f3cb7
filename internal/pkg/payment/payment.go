package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/qs3c/vendor_portal_server/config"
)

var (
	ErrInvalidAmount    = errors.New("payment amount must be positive")
	ErrInvalidSignature = errors.New("invalid payment signature")
)

// Order 支付订单
type Order struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Receipt   string          `json:"receipt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Gateway 支付网关
type Gateway interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (*Order, error)
	VerifySignature(orderID, paymentID, signature string) error
	KeyID() string
}

// LocalGateway 本地签名网关，签名算法与线上网关一致：HMAC-SHA256(order_id|payment_id)
type LocalGateway struct {
	keyID  string
	secret string
}

func NewLocalGateway(cfg config.PaymentConfig) *LocalGateway {
	return &LocalGateway{keyID: cfg.KeyID, secret: cfg.KeySecret}
}

func (g *LocalGateway) KeyID() string {
	return g.keyID
}

func (g *LocalGateway) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	return &Order{
		ID:        "order_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14],
		Amount:    amount.Round(2),
		Currency:  currency,
		Receipt:   receipt,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (g *LocalGateway) VerifySignature(orderID, paymentID, signature string) error {
	if orderID == "" || paymentID == "" || signature == "" {
		return ErrInvalidSignature
	}
	expected := Sign(g.secret, orderID, paymentID)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign 计算支付签名
func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
