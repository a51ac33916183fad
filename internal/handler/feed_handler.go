package handler

import (
	"emergency-dispatch-be/internal/pkg/logger"
	"emergency-dispatch-be/internal/pkg/serverutils"
	"emergency-dispatch-be/internal/service"
	internalWS "emergency-dispatch-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const module = "FeedHandler"

// FeedHandler upgrades dispatcher and citizen connections to live session feeds.
type FeedHandler struct {
	sessions  service.ISessionService
	hub       *internalWS.Hub
	jwtSecret string
	logger    logger.ILogger
}

func NewFeedHandler(sessions service.ISessionService, hub *internalWS.Hub, jwtSecret string, log logger.ILogger) *FeedHandler {
	return &FeedHandler{
		sessions:  sessions,
		hub:       hub,
		jwtSecret: jwtSecret,
		logger:    log,
	}
}

func (h *FeedHandler) RegisterRoutes(r fiber.Router) {
	r.Get("/ws", h.ServeDispatcherWs)
	r.Get("/sessions/:id/ws", h.ServeSessionWs)
}

// ServeDispatcherWs streams every session to an authenticated dispatcher.
func (h *FeedHandler) ServeDispatcherWs(c *fiber.Ctx) error {
	tokenStr := serverutils.BearerToken(c)
	if tokenStr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Missing token (query 'token' or header 'Authorization')"))
	}

	dispatcherId, err := serverutils.ParseDispatcherToken(tokenStr, h.jwtSecret)
	if err != nil {
		h.logger.Warn(module, "Invalid token in WS handshake", map[string]interface{}{"error": err.Error()})
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
	}

	return h.upgrade(c, dispatcherId, "")
}

// ServeSessionWs streams one session to the citizen holding its id.
func (h *FeedHandler) ServeSessionWs(c *fiber.Ctx) error {
	sessionId := c.Params("id")
	if _, err := h.sessions.Show(c.UserContext(), sessionId); err != nil {
		return err
	}
	return h.upgrade(c, sessionId, sessionId)
}

func (h *FeedHandler) upgrade(c *fiber.Ctx, subscriberId, sessionId string) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info(module, "Starting WebSocket session", map[string]interface{}{
			"subscriber": subscriberId,
			"session_id": sessionId,
		})
		internalWS.ServeWs(h.hub, conn, subscriberId, sessionId)
		h.logger.Info(module, "WebSocket session ended", map[string]interface{}{"subscriber": subscriberId})
	})(c)
}
