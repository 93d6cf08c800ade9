package router

import (
	"realtime_chat_client/internal/chat/app"
	"realtime_chat_client/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes 注册 inspect 路由, /metrics 不需要 token
func RegisterRoutes(r *fiber.App, h *app.InspectHandler, inspectToken string) {
	r.Use(recover.New())
	r.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	r.Use(middlewares.InspectAuth(inspectToken))

	r.Get("/status", h.Status)
	r.Post("/reconnect", h.Reconnect)
	r.Post("/debug", h.Debug)

	r.Get("/chats", h.Chats)

	r.Post("/rooms/:id", h.OpenRoom)
	r.Delete("/rooms/:id", h.CloseRoom)
	r.Get("/rooms/:id/messages", h.Messages)
	r.Post("/rooms/:id/messages", h.SendMessage)
	r.Post("/rooms/:id/older", h.LoadOlder)
	r.Post("/rooms/:id/retry", h.Retry)
	r.Get("/rooms/:id/typing", h.Typing)

	r.Get("/presence", h.Presence)
	r.Get("/presence/:userId", h.PresenceUser)
}
