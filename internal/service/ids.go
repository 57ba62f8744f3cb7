package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

func randomHex(n int) string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:n])
}

// newReference 申请编号：APP-<日期>-<8 位随机>
func newReference(now time.Time) string {
	return fmt.Sprintf("APP-%s-%s", now.UTC().Format("20060102"), randomHex(8))
}

// newVendorID 供应商编号：VND-<年份>-<8 位随机>，唯一性由数据库索引兜底
func newVendorID(now time.Time) string {
	return fmt.Sprintf("VND-%d-%s", now.UTC().Year(), randomHex(8))
}
