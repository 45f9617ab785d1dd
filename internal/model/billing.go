package model

import (
	"time"

	"gorm.io/datatypes"
)

// BillingRules 计费规则：每种考勤状态折算的计费课次数
// 字段为空时使用 defaultWeight 中的默认值
type BillingRules struct {
	PresentCountsAs         *int `json:"presentCountsAs,omitempty"`
	LateCountsAs            *int `json:"lateCountsAs,omitempty"`
	AbsentExcusedCountsAs   *int `json:"absentExcusedCountsAs,omitempty"`
	AbsentUnexcusedCountsAs *int `json:"absentUnexcusedCountsAs,omitempty"`
	MakeupCountsAs          *int `json:"makeupCountsAs,omitempty"`
	OnlineCountsAs          *int `json:"onlineCountsAs,omitempty"`
}

// defaultWeight 未配置时各考勤状态的默认计费权重；未知状态返回 false
func defaultWeight(status AttendanceStatus) (int, bool) {
	switch status {
	case AttendancePresent, AttendanceLate, AttendanceAbsentUnexcused, AttendanceOnline:
		return 1, true
	case AttendanceAbsentExcused, AttendanceMakeup:
		return 0, true
	}
	return 0, false
}

// field 返回状态对应的配置字段；未知状态返回 nil
func (r BillingRules) field(status AttendanceStatus) *int {
	switch status {
	case AttendancePresent:
		return r.PresentCountsAs
	case AttendanceLate:
		return r.LateCountsAs
	case AttendanceAbsentExcused:
		return r.AbsentExcusedCountsAs
	case AttendanceAbsentUnexcused:
		return r.AbsentUnexcusedCountsAs
	case AttendanceMakeup:
		return r.MakeupCountsAs
	case AttendanceOnline:
		return r.OnlineCountsAs
	}
	return nil
}

// Weight 解析考勤状态的计费权重
// status 为 nil（无考勤记录）按无故缺勤计；负数权重按 0 计；未知状态计 0
func (r BillingRules) Weight(status *AttendanceStatus) int {
	s := AttendanceAbsentUnexcused
	if status != nil {
		s = *status
	}
	w, ok := defaultWeight(s)
	if !ok {
		return 0
	}
	if v := r.field(s); v != nil {
		w = *v
	}
	if w < 0 {
		return 0
	}
	return w
}

// Effective 返回六种状态的生效权重
func (r BillingRules) Effective() map[AttendanceStatus]int {
	out := make(map[AttendanceStatus]int, len(AttendanceStatuses))
	for i := range AttendanceStatuses {
		out[AttendanceStatuses[i]] = r.Weight(&AttendanceStatuses[i])
	}
	return out
}

// NegativeFields 返回配置为负数的字段（json 名）
func (r BillingRules) NegativeFields() []string {
	var fields []string
	check := func(name string, v *int) {
		if v != nil && *v < 0 {
			fields = append(fields, name)
		}
	}
	check("presentCountsAs", r.PresentCountsAs)
	check("lateCountsAs", r.LateCountsAs)
	check("absentExcusedCountsAs", r.AbsentExcusedCountsAs)
	check("absentUnexcusedCountsAs", r.AbsentUnexcusedCountsAs)
	check("makeupCountsAs", r.MakeupCountsAs)
	check("onlineCountsAs", r.OnlineCountsAs)
	return fields
}

// BillingPlan 计费方案表 — 对应 billing_plans
// 每个班级同一时间只允许一个 ACTIVE 方案
type BillingPlan struct {
	BillingPlanID   string                           `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"billing_plan_id"`
	ClassID         string                           `gorm:"type:uuid;not null;index"                       json:"class_id"`
	PricePerSession int64                            `gorm:"not null"                                       json:"price_per_session"`
	Rules           datatypes.JSONType[BillingRules] `gorm:"column:rules_json;type:jsonb;not null"          json:"rules"`
	Status          string                           `gorm:"type:varchar(20);not null;default:'ACTIVE'"     json:"status"`
	BaseModel
}

// TableName 指定表名
func (BillingPlan) TableName() string { return "billing_plans" }

// 收费单状态
const (
	ChargeStatusPending   = "PENDING"
	ChargeStatusPaid      = "PAID"
	ChargeStatusPartial   = "PARTIAL"
	ChargeStatusCancelled = "CANCELLED"
)

// ChargeSessionLine 收费明细中单个课次的计算结果
type ChargeSessionLine struct {
	SessionID string `json:"sessionId"`
	Date      string `json:"date"`   // YYYY-MM-DD
	Status    string `json:"status"` // 考勤状态；无记录时为 NO_RECORD
	CountAs   int    `json:"countAs"`
}

// ChargeCalculation 收费单计算明细（calc_json）
type ChargeCalculation struct {
	Sessions           []ChargeSessionLine `json:"sessions"`
	ChargeableSessions int                 `json:"chargeableSessions"`
	PricePerSession    int64               `json:"pricePerSession"`
	Rules              BillingRules        `json:"rules"`
}

// NoRecordStatus 明细中表示"无考勤记录"的占位状态
const NoRecordStatus = "NO_RECORD"

// Charge 收费单表 — 对应 charges
// 主键由 (student_id, class_id, period_start) 确定性生成，重复生成时原地更新
type Charge struct {
	ChargeID    string                                `gorm:"type:uuid;primaryKey"                                   json:"charge_id"`
	StudentID   string                                `gorm:"type:uuid;not null;uniqueIndex:uq_charge_period_key"   json:"student_id"`
	ClassID     string                                `gorm:"type:uuid;not null;uniqueIndex:uq_charge_period_key"   json:"class_id"`
	PeriodStart time.Time                             `gorm:"type:date;not null;uniqueIndex:uq_charge_period_key"   json:"period_start"`
	PeriodEnd   time.Time                             `gorm:"type:date;not null"                                     json:"period_end"`
	Amount      int64                                 `gorm:"not null"                                               json:"amount"`
	CalcJSON    datatypes.JSONType[ChargeCalculation] `gorm:"column:calc_json;type:jsonb;not null"                   json:"calc"`
	Status      string                                `gorm:"type:varchar(20);not null;default:'PENDING'"            json:"status"`
	VersionedModel

	// 关联
	Student *Student `gorm:"foreignKey:StudentID;references:StudentID" json:"student,omitempty"`
}

// TableName 指定表名
func (Charge) TableName() string { return "charges" }
