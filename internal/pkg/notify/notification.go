package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qs3c/vendor_portal_server/internal/pkg/email"
)

// ErrNoRecipient 通知缺少收件人，重试也不会成功
var ErrNoRecipient = errors.New("notification has no recipient")

// Kind 通知模板
type Kind string

const (
	KindApproved        Kind = "application_approved"
	KindRejected        Kind = "application_rejected"
	KindRenewalReminder Kind = "renewal_reminder"
	KindExpired         Kind = "subscription_expired"
	KindRenewed         Kind = "subscription_renewed"
)

// Notification 发给供应商的一条通知
type Notification struct {
	Kind          Kind       `json:"kind"`
	UserID        int64      `json:"user_id"`
	Recipient     string     `json:"recipient"`
	Name          string     `json:"name,omitempty"`
	Reference     string     `json:"reference,omitempty"`
	VendorID      string     `json:"vendor_id,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Checkpoint    string     `json:"checkpoint,omitempty"`
	DaysRemaining int        `json:"days_remaining,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	// DedupKey 同一事件的唯一键，消费端据此去重
	DedupKey string `json:"dedup_key"`
}

// Dispatcher 通知投递
type Dispatcher interface {
	Dispatch(ctx context.Context, n *Notification) error
}

// Validate 投递前的基本检查
func (n *Notification) Validate() error {
	if n == nil {
		return errors.New("nil notification")
	}
	if n.Recipient == "" {
		return fmt.Errorf("%w: %s %s", ErrNoRecipient, n.Kind, n.DedupKey)
	}
	return nil
}

// Render 生成邮件标题与正文
func (n *Notification) Render() (subject, body string) {
	greeting := "Hello,"
	if n.Name != "" {
		greeting = fmt.Sprintf("Hello %s,", n.Name)
	}

	switch n.Kind {
	case KindApproved:
		subject = "Your vendor application has been approved"
		body = email.Layout("Application approved",
			greeting,
			fmt.Sprintf("Your application %s has been approved. Your vendor ID is %s.", n.Reference, n.VendorID),
			fmt.Sprintf("Your membership is valid until %s.", formatDate(n.ExpiresAt)),
		)
	case KindRejected:
		subject = "Update on your vendor application"
		body = email.Layout("Application rejected",
			greeting,
			fmt.Sprintf("Your application %s could not be approved.", n.Reference),
			"Reason: "+n.Reason,
		)
	case KindRenewalReminder:
		subject = fmt.Sprintf("Your vendor membership expires in %d day(s)", n.DaysRemaining)
		body = email.Layout("Membership renewal reminder",
			greeting,
			fmt.Sprintf("The membership for vendor ID %s expires on %s.", n.VendorID, formatDate(n.ExpiresAt)),
			"Renew before the expiry date to keep your vendor certificate valid.",
		)
	case KindExpired:
		subject = "Your vendor membership has expired"
		body = email.Layout("Membership expired",
			greeting,
			fmt.Sprintf("The membership for vendor ID %s expired on %s.", n.VendorID, formatDate(n.ExpiresAt)),
			"Renew now to restore your vendor certificate.",
		)
	case KindRenewed:
		subject = "Your vendor membership has been renewed"
		body = email.Layout("Membership renewed",
			greeting,
			fmt.Sprintf("The membership for vendor ID %s is now valid until %s.", n.VendorID, formatDate(n.ExpiresAt)),
		)
	default:
		subject = "Vendor portal notification"
		body = email.Layout("Notification", greeting)
	}
	return subject, body
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("02 Jan 2006")
}
