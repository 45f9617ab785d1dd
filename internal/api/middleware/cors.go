package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

const (
	corsAllowHeaders = "Content-Type, Authorization, X-Requested-With, " + requestIDHeader
	// 前端需要读取导出文件名与追踪 ID
	corsExposeHeaders = "Content-Disposition, " + requestIDHeader
	corsAllowMethods  = "GET, POST, PUT, OPTIONS"
)

// CORS 仅对白名单内的管理后台域名放行；配置尾部的 "/" 会被忽略
func CORS(allowOrigins []string) gin.HandlerFunc {
	allowed := lo.SliceToMap(allowOrigins, func(o string) (string, struct{}) {
		return strings.TrimRight(o, "/"), struct{}{}
	})

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if _, ok := allowed[origin]; ok && origin != "" {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Max-Age", "86400")
			h.Add("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
