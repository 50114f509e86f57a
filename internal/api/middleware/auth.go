package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// bearerPrefix Authorization头的Bearer前缀
const bearerPrefix = "Bearer "

// BearerAuth 校验内部通信的共享密钥
// 缺少头、格式错误和密钥不匹配分别返回不同的401消息
func BearerAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authorization := c.Request().Header.Get(echo.HeaderAuthorization)
			if authorization == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"success": false,
					"message": "缺少Authorization头",
				})
			}

			if !strings.HasPrefix(authorization, bearerPrefix) {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"success": false,
					"message": "Authorization头格式无效，应为Bearer <secret>",
				})
			}

			if authorization[len(bearerPrefix):] != secret {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"success": false,
					"message": "密钥无效",
				})
			}

			return next(c)
		}
	}
}
