package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nclamvn/english-center-cms/config"
	"github.com/nclamvn/english-center-cms/internal/api/handler"
	"github.com/nclamvn/english-center-cms/internal/api/middleware"
	"github.com/nclamvn/english-center-cms/pkg/jwt"
	"github.com/nclamvn/english-center-cms/pkg/redis"
)

// 教务与财务角色，教师只能点名与查看
var staffRoles = []string{"admin", "manager"}

// Setup 初始化并返回 Gin 路由引擎
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	handler.RegisterValidators()

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwtMgr, rdb))
	{
		// 课次与考勤
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", middleware.RoleAuth(staffRoles...), h.Session.Create)
			sessions.PUT("/:id/status", h.Session.UpdateStatus)
			sessions.GET("/:id/lock", h.Session.GetLockStatus)
			sessions.POST("/:id/lock", h.Session.SetLock) // 解锁角色由 Service 层按配置校验

			sessions.GET("/:id/attendance", h.Attendance.GetSessionAttendance)
			sessions.POST("/:id/attendance", h.Attendance.SaveAttendance)
			sessions.GET("/:id/attendance/logs", h.Attendance.ListChangeLogs)
		}

		// 计费
		billing := v1.Group("", middleware.RoleAuth(staffRoles...))
		{
			billing.POST("/billing/generate",
				middleware.RateLimit(rdb, cfg.Billing.GenerateRateLimit, cfg.Billing.GenerateRateWindow),
				h.Billing.GenerateCharges,
			)
			billing.GET("/charges", h.Billing.ListCharges)
			billing.PUT("/charges/:id/status", h.Billing.UpdateChargeStatus)
			billing.PUT("/classes/:id/billing-plan", h.Billing.SetBillingPlan)
		}

		// 导出
		export := v1.Group("/export", middleware.RoleAuth(staffRoles...))
		{
			export.GET("/charges", h.Export.ExportCharges)
			export.GET("/classes/:id/sessions.ics", h.Export.ExportClassCalendar)
		}
	}

	return r
}
