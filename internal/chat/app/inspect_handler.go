package app

import (
	"errors"
	"strconv"

	"realtime_chat_client/internal/chat/domain"
	"realtime_chat_client/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// InspectHandler local http view of the sync state
type InspectHandler struct {
	client *SyncClient
}

// NewInspectHandler create InspectHandler
func NewInspectHandler(client *SyncClient) *InspectHandler {
	return &InspectHandler{client: client}
}

// Status GET /status
func (h *InspectHandler) Status(c *fiber.Ctx) error {
	return c.JSON(h.client.Status())
}

// Reconnect POST /reconnect
func (h *InspectHandler) Reconnect(c *fiber.Ctx) error {
	if err := h.client.Reconnect(c.UserContext()); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(h.client.Status())
}

// OpenRoom POST /rooms/:id
func (h *InspectHandler) OpenRoom(c *fiber.Ctx) error {
	roomID := c.Params("id")
	if _, err := h.client.OpenRoom(c.UserContext(), roomID); err != nil {
		return errorJSON(c, err)
	}
	return h.window(c, roomID)
}

// Chats GET /chats, ?refresh=true 先重新查 userChats
func (h *InspectHandler) Chats(c *fiber.Ctx) error {
	if c.QueryBool("refresh") {
		if err := h.client.Chats.Load(c.UserContext()); err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
		}
	}
	return c.JSON(h.client.Chats.View(h.client.UserID()))
}

// CloseRoom DELETE /rooms/:id
func (h *InspectHandler) CloseRoom(c *fiber.Ctx) error {
	h.client.CloseRoom(c.Params("id"))
	return c.SendStatus(fiber.StatusNoContent)
}

// Messages GET /rooms/:id/messages
func (h *InspectHandler) Messages(c *fiber.Ctx) error {
	return h.window(c, c.Params("id"))
}

// SendMessage POST /rooms/:id/messages {content}
func (h *InspectHandler) SendMessage(c *fiber.Ctx) error {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil || req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "content required"})
	}
	msg, err := h.client.SendMessage(c.UserContext(), c.Params("id"), req.Content)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// LoadOlder POST /rooms/:id/older
func (h *InspectHandler) LoadOlder(c *fiber.Ctx) error {
	roomID := c.Params("id")
	rs := h.client.Room(roomID)
	if rs == nil {
		return errorJSON(c, domain.ErrRoomNotOpen)
	}
	triggered, err := rs.Backfill.TopItemVisible(c.UserContext())
	if err != nil {
		return errorJSON(c, err)
	}
	w, _ := h.client.Buffer.Window(roomID)
	return c.JSON(fiber.Map{"triggered": triggered, "window": w})
}

// Retry POST /rooms/:id/retry
func (h *InspectHandler) Retry(c *fiber.Ctx) error {
	roomID := c.Params("id")
	if err := h.client.Buffer.Retry(c.UserContext(), roomID); err != nil {
		return errorJSON(c, err)
	}
	return h.window(c, roomID)
}

// Typing GET /rooms/:id/typing
func (h *InspectHandler) Typing(c *fiber.Ctx) error {
	rs := h.client.Room(c.Params("id"))
	if rs == nil {
		return errorJSON(c, domain.ErrRoomNotOpen)
	}
	entries := rs.Typing.Entries()
	return c.JSON(fiber.Map{"text": TypingText(entries), "entries": entries})
}

// Presence GET /presence?all=true
func (h *InspectHandler) Presence(c *fiber.Ctx) error {
	if c.QueryBool("all") {
		return c.JSON(h.client.Presence.All())
	}
	return c.JSON(h.client.Presence.Online())
}

// PresenceUser GET /presence/:userId
func (h *InspectHandler) PresenceUser(c *fiber.Ctx) error {
	e, ok := h.client.Presence.Get(c.Params("userId"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not present"})
	}
	return c.JSON(fiber.Map{"online": e.Status == domain.StatusOnline, "entry": e})
}

// Debug POST /debug?status=true
func (h *InspectHandler) Debug(c *fiber.Ctx) error {
	status, err := strconv.ParseBool(c.Query("status"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "status must be true or false"})
	}
	logger.Log.SetDebugMode(status)
	logger.Log.Info("debug mode", zap.Bool("status", status))
	return c.JSON(fiber.Map{"debug": status})
}

func (h *InspectHandler) window(c *fiber.Ctx, roomID string) error {
	w, ok := h.client.Buffer.Window(roomID)
	if !ok {
		return errorJSON(c, domain.ErrRoomNotOpen)
	}
	return c.JSON(w)
}

func errorJSON(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	var (
		joinErr  *domain.JoinError
		fetchErr *domain.FetchError
	)
	switch {
	case errors.Is(err, domain.ErrRoomNotOpen):
		status = fiber.StatusNotFound
	case errors.Is(err, domain.ErrNoToken):
		status = fiber.StatusUnauthorized
	case errors.Is(err, domain.ErrNotConnected), errors.Is(err, domain.ErrJoinTimeout):
		status = fiber.StatusServiceUnavailable
	case errors.As(err, &joinErr), errors.As(err, &fetchErr):
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
