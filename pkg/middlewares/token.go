package middlewares

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	//QueryToken token in query name
	QueryToken = "auth"

	//CookieToken token in cookie name
	CookieToken = "auth_token"

	//TokenInspect set c.locals name when the caller passed the inspect token
	TokenInspect = "inspect"
)

// InspectAuth guard the local inspect api with a static token.
// empty expected 表示不檢查
func InspectAuth(expected string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if expected == "" {
			return c.Next()
		}

		tokenStr := c.Query(QueryToken)

		// 如果查詢參數中沒有 token，則嘗試從 Cookie 中獲取
		if tokenStr == "" {
			tokenStr = c.Cookies(CookieToken)
		}

		// 最後嘗試 Authorization header
		if tokenStr == "" {
			if h := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
				tokenStr = h[7:]
			}
		}

		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing token",
			})
		}

		if subtle.ConstantTimeCompare([]byte(tokenStr), []byte(expected)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}

		c.Locals(TokenInspect, true)
		return c.Next()
	}
}
