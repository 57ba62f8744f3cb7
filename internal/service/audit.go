package service

import (
	"context"
	"encoding/json"

	"github.com/qs3c/vendor_portal_server/internal/model"
	"github.com/qs3c/vendor_portal_server/internal/repository"
)

// appendAudit 在当前事务中追加一条审计记录，before/after 以 JSON 保存
func appendAudit(ctx context.Context, r *repository.Repositories, entry *model.AuditLog, before, after interface{}) error {
	var err error
	if entry.Before, err = snapshot(before); err != nil {
		return err
	}
	if entry.After, err = snapshot(after); err != nil {
		return err
	}
	return r.Audits.Append(ctx, entry)
}

func snapshot(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
