package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nclamvn/english-center-cms/internal/model"
)

const (
	// ManualLockReason 手动锁定未填写原因时的默认原因
	ManualLockReason = "manual lock"
	// DefaultAutoLockAfter 已完成课次下课后的默认锁定时限
	DefaultAutoLockAfter = 2 * time.Hour
)

// LockPolicy 考勤锁定判定
// 课次日期 + 下课时间按中心时区解释；只做判定，不落库
type LockPolicy struct {
	loc   *time.Location
	grace time.Duration
}

// NewLockPolicy 创建锁定判定器；loc 为空时使用 UTC，grace 非正数时使用默认 2 小时
func NewLockPolicy(loc *time.Location, grace time.Duration) *LockPolicy {
	if loc == nil {
		loc = time.UTC
	}
	if grace <= 0 {
		grace = DefaultAutoLockAfter
	}
	return &LockPolicy{loc: loc, grace: grace}
}

// Location 中心时区
func (p *LockPolicy) Location() *time.Location { return p.loc }

// AutoLockReason 自动锁定时写入的原因
func (p *LockPolicy) AutoLockReason() string {
	if p.grace%time.Hour == 0 {
		return fmt.Sprintf("auto-locked after %d hours", int(p.grace/time.Hour))
	}
	return fmt.Sprintf("auto-locked after %s", p.grace)
}

// SessionTime 将课次日期与 HH:MM 组合为中心时区的时刻
func (p *LockPolicy) SessionTime(date time.Time, hhmm string) (time.Time, error) {
	h, m, err := parseClock(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	y, mon, d := date.Date()
	return time.Date(y, mon, d, h, m, 0, 0, p.loc), nil
}

// LockDeadline 自动锁定时限：课次日期 @ 下课时间 + grace
func (p *LockPolicy) LockDeadline(s *model.Session) (time.Time, error) {
	end, err := p.SessionTime(s.Date, s.EndTime)
	if err != nil {
		return time.Time{}, err
	}
	return end.Add(p.grace), nil
}

// ShouldAutoLock 未显式锁定、已完成且已过时限
// 非 COMPLETED 课次无论过去多久都不会自动锁定
func (p *LockPolicy) ShouldAutoLock(s *model.Session, now time.Time) bool {
	if s.IsExplicitlyLocked() || s.Status != model.SessionStatusCompleted {
		return false
	}
	deadline, err := p.LockDeadline(s)
	if err != nil {
		return false
	}
	return now.After(deadline)
}

// IsLocked 当前是否禁止修改考勤
func (p *LockPolicy) IsLocked(s *model.Session, now time.Time) bool {
	return s.IsExplicitlyLocked() || p.ShouldAutoLock(s, now)
}

// parseClock 解析 HH:MM（兼容数据库 time 类型的 HH:MM:SS）
func parseClock(hhmm string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(hhmm), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, fmt.Errorf("无效的时间 %q", hhmm)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("无效的时间 %q", hhmm)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("无效的时间 %q", hhmm)
	}
	return h, m, nil
}
