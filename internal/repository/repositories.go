package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repositories 全部仓储，Transaction 内拿到的是绑定事务的副本
type Repositories struct {
	db *gorm.DB

	Users         *UserRepository
	Applications  *ApplicationRepository
	Documents     *DocumentRepository
	Sections      *SectionRepository
	Subscriptions *SubscriptionRepository
	Reminders     *ReminderRepository
	Audits        *AuditRepository
	Payments      *PaymentRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:            db,
		Users:         NewUserRepository(db),
		Applications:  NewApplicationRepository(db),
		Documents:     NewDocumentRepository(db),
		Sections:      NewSectionRepository(db),
		Subscriptions: NewSubscriptionRepository(db),
		Reminders:     NewReminderRepository(db),
		Audits:        NewAuditRepository(db),
		Payments:      NewPaymentRepository(db),
	}
}

// Transaction 在一个数据库事务中执行 fn，fn 返回错误时整体回滚
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}
