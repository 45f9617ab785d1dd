package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
)

// ── 通用业务错误 ──

var (
	ErrSessionNotFound          = errors.New("课次不存在")
	ErrClassNotFound            = errors.New("班级不存在")
	ErrChargeNotFound           = errors.New("收费单不存在")
	ErrNoBillingPlan            = errors.New("该班级没有生效的计费方案")
	ErrAmbiguousBillingPlan     = errors.New("该班级存在多个生效的计费方案")
	ErrUnlockForbidden          = errors.New("当前角色无权解锁考勤")
	ErrInvalidSessionTransition = errors.New("无效的课次状态流转")
)

// LockedError 课次已锁定，考勤不可修改
// 携带锁定信息，调用方据此展示解锁入口
type LockedError struct {
	LockedAt   *time.Time
	LockReason *string
	// AutoLocked 为 true 表示本次请求触发了自动锁定
	AutoLocked bool
}

func (e *LockedError) Error() string {
	if e.AutoLocked {
		return "课次已自动锁定（下课后超过锁定时限），无法修改考勤"
	}
	return "课次已锁定，无法修改考勤"
}

// ValidationError 请求数据不合法，key 为字段路径
type ValidationError struct {
	Fields map[string]string
}

func newValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
}

func (e *ValidationError) empty() bool { return len(e.Fields) == 0 }

func (e *ValidationError) Error() string {
	keys := lo.Keys(e.Fields)
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "参数校验失败: " + strings.Join(parts, "; ")
}
