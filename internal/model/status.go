package model

// ApplicationStatus 申请状态
type ApplicationStatus string

const (
	ApplicationPending        ApplicationStatus = "pending"
	ApplicationPaymentPending ApplicationStatus = "payment_pending"
	ApplicationUnderReview    ApplicationStatus = "under_review"
	ApplicationApproved       ApplicationStatus = "approved"
	ApplicationRejected       ApplicationStatus = "rejected"
)

// applicationTransitions 合法的状态迁移，终态没有出边
var applicationTransitions = map[ApplicationStatus][]ApplicationStatus{
	ApplicationPending:        {ApplicationPaymentPending, ApplicationUnderReview},
	ApplicationPaymentPending: {ApplicationUnderReview},
	ApplicationUnderReview:    {ApplicationApproved, ApplicationRejected},
	ApplicationApproved:       nil,
	ApplicationRejected:       nil,
}

func (s ApplicationStatus) Valid() bool {
	_, ok := applicationTransitions[s]
	return ok
}

// IsTerminal 审核结束后的状态
func (s ApplicationStatus) IsTerminal() bool {
	return s == ApplicationApproved || s == ApplicationRejected
}

// CanTransition 检查 from -> to 是否在迁移表中
func CanTransition(from, to ApplicationStatus) bool {
	for _, next := range applicationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllApplicationStatuses 按流程顺序排列
func AllApplicationStatuses() []ApplicationStatus {
	return []ApplicationStatus{
		ApplicationPending,
		ApplicationPaymentPending,
		ApplicationUnderReview,
		ApplicationApproved,
		ApplicationRejected,
	}
}

// DocumentStatus 单个文件的审核状态
type DocumentStatus string

const (
	DocumentPending           DocumentStatus = "pending"
	DocumentVerified          DocumentStatus = "verified"
	DocumentFlagged           DocumentStatus = "flagged"
	DocumentReuploadRequested DocumentStatus = "reupload_requested"
)

func (s DocumentStatus) Valid() bool {
	switch s {
	case DocumentPending, DocumentVerified, DocumentFlagged, DocumentReuploadRequested:
		return true
	}
	return false
}

// RequiresReason flagged 与 reupload_requested 必须附带原因
func (s DocumentStatus) RequiresReason() bool {
	return s == DocumentFlagged || s == DocumentReuploadRequested
}

// Section 申请的两个审核分区
type Section string

const (
	SectionPersonal Section = "personal"
	SectionBusiness Section = "business"
)

func (s Section) Valid() bool {
	return s == SectionPersonal || s == SectionBusiness
}

// AllSections 终审前必须全部通过的分区
func AllSections() []Section {
	return []Section{SectionPersonal, SectionBusiness}
}

// DocumentType 文件类型，每种类型归属固定的分区
type DocumentType string

const (
	DocPhoto                DocumentType = "photo"
	DocIDProof              DocumentType = "id_proof"
	DocAddressProof         DocumentType = "address_proof"
	DocShopLicense          DocumentType = "shop_license"
	DocGSTCertificate       DocumentType = "gst_certificate"
	DocBusinessAddressProof DocumentType = "business_address_proof"
)

var documentSections = map[DocumentType]Section{
	DocPhoto:                SectionPersonal,
	DocIDProof:              SectionPersonal,
	DocAddressProof:         SectionPersonal,
	DocShopLicense:          SectionBusiness,
	DocGSTCertificate:       SectionBusiness,
	DocBusinessAddressProof: SectionBusiness,
}

func (t DocumentType) Valid() bool {
	_, ok := documentSections[t]
	return ok
}

// Section 返回文件类型所属分区，未知类型返回空串
func (t DocumentType) Section() Section {
	return documentSections[t]
}

// SubscriptionStatus 会员状态，除 cancelled 外都由到期时间推导
type SubscriptionStatus string

const (
	SubscriptionActive       SubscriptionStatus = "active"
	SubscriptionExpiringSoon SubscriptionStatus = "expiring_soon"
	SubscriptionExpired      SubscriptionStatus = "expired"
	SubscriptionCancelled    SubscriptionStatus = "cancelled"

	// SubscriptionNone 仅用于查询结果，表示尚无会员记录
	SubscriptionNone SubscriptionStatus = "no_subscription"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionActive, SubscriptionExpiringSoon, SubscriptionExpired, SubscriptionCancelled:
		return true
	}
	return false
}

// CheckpointKind 续费提醒节点
type CheckpointKind string

const (
	Checkpoint30Days  CheckpointKind = "30_days"
	Checkpoint15Days  CheckpointKind = "15_days"
	Checkpoint7Days   CheckpointKind = "7_days"
	Checkpoint1Day    CheckpointKind = "1_day"
	CheckpointExpired CheckpointKind = "expired"
)

var checkpointRanks = map[CheckpointKind]int{
	Checkpoint30Days:  0,
	Checkpoint15Days:  1,
	Checkpoint7Days:   2,
	Checkpoint1Day:    3,
	CheckpointExpired: 4,
}

func (k CheckpointKind) Valid() bool {
	_, ok := checkpointRanks[k]
	return ok
}

// Rank 同一触发时间下的排序位次
func (k CheckpointKind) Rank() int {
	if r, ok := checkpointRanks[k]; ok {
		return r
	}
	return len(checkpointRanks)
}

// ReminderOffsetDays 到期前固定的四个提醒节点
var ReminderOffsetDays = [...]int{30, 15, 7, 1}

// CheckpointKindForOffset 把提前天数映射为提醒节点
func CheckpointKindForOffset(days int) (CheckpointKind, bool) {
	switch days {
	case 30:
		return Checkpoint30Days, true
	case 15:
		return Checkpoint15Days, true
	case 7:
		return Checkpoint7Days, true
	case 1:
		return Checkpoint1Day, true
	}
	return "", false
}

// CheckpointStatus 提醒节点状态
type CheckpointStatus string

const (
	CheckpointPending   CheckpointStatus = "pending"
	CheckpointSent      CheckpointStatus = "sent"
	CheckpointFailed    CheckpointStatus = "failed"
	CheckpointCancelled CheckpointStatus = "cancelled"
)

func (s CheckpointStatus) Valid() bool {
	switch s {
	case CheckpointPending, CheckpointSent, CheckpointFailed, CheckpointCancelled:
		return true
	}
	return false
}

// IsTerminal sent/failed/cancelled 之后不再触发
func (s CheckpointStatus) IsTerminal() bool {
	return s != CheckpointPending
}

// UserRole 账号角色
type UserRole string

const (
	RoleVendor   UserRole = "vendor"
	RoleReviewer UserRole = "reviewer"
	RoleAdmin    UserRole = "admin"
)

func (r UserRole) Valid() bool {
	return r == RoleVendor || r == RoleReviewer || r == RoleAdmin
}

// IsStaff 审核人员与管理员
func (r UserRole) IsStaff() bool {
	return r == RoleReviewer || r == RoleAdmin
}

// PaymentPurpose 付款用途
type PaymentPurpose string

const (
	PaymentRegistration PaymentPurpose = "registration"
	PaymentRenewal      PaymentPurpose = "renewal"
)
