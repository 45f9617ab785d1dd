package handler

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/nclamvn/english-center-cms/internal/model"
	"github.com/nclamvn/english-center-cms/internal/service"
	"github.com/nclamvn/english-center-cms/pkg/response"
)

var registerOnce sync.Once

// RegisterValidators 向 gin 的校验引擎注册业务校验规则，进程内只执行一次
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
			return model.AttendanceStatus(fl.Field().String()).Valid()
		})
	})
}

// bindingDetails 将 validator 错误转换为 字段路径 → 规则 的映射
func bindingDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fieldPath(fe.Namespace())] = fe.Tag()
	}
	return details
}

// fieldPath SaveAttendanceRequest.Attendances[0].StudentID → Attendances[0].StudentID
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// badBinding 请求体绑定失败统一返回 400
func badBinding(c *gin.Context, code int, err error) {
	if details := bindingDetails(err); len(details) > 0 {
		response.ErrorWithData(c, http.StatusBadRequest, code, "参数校验失败", details)
		return
	}
	response.BadRequest(c, code, "参数校验失败")
}

// writeValidationError 业务层校验失败，data 为字段级错误
func writeValidationError(c *gin.Context, code int, verr *service.ValidationError) {
	response.ErrorWithData(c, http.StatusBadRequest, code, "参数校验失败", verr.Fields)
}
