package controllers

import (
	"context"

	"educenter_go/middleware"
	"educenter_go/services/websocket"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

type WebSocketController struct {
	hub *websocket.Hub
}

func NewWebSocketController(hub *websocket.Hub) *WebSocketController {
	return &WebSocketController{hub: hub}
}

// Upgrade rejects plain HTTP requests to the websocket endpoint.
func (wsc *WebSocketController) Upgrade(c *fiber.Ctx) error {
	if !fiberws.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
			"error": "Use the WebSocket endpoint: ws://<host>/ws?token=YOUR_JWT",
		})
	}
	return c.Next()
}

// WebSocketHandler authenticates the ?token= query parameter and attaches
// the connection to the hub. Blocked users and frozen organizations are
// refused the same way as on the REST API.
func (wsc *WebSocketController) WebSocketHandler() fiber.Handler {
	return fiberws.New(func(c *fiberws.Conn) {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("panic", r).Error("websocket handler panic")
			}
		}()

		token := c.Query("token")
		if token == "" {
			logrus.Debug("websocket rejected: missing token")
			_ = c.WriteMessage(fiberws.CloseMessage, []byte("Missing token"))
			_ = c.Close()
			return
		}

		user, err := middleware.Authenticate(context.Background(), token)
		if err != nil {
			logrus.WithError(err).Debug("websocket rejected")
			_ = c.WriteMessage(fiberws.CloseMessage, []byte("Invalid token"))
			_ = c.Close()
			return
		}

		logrus.WithFields(logrus.Fields{"user_id": user.ID, "username": user.Username}).Info("websocket connected")
		wsc.hub.ServeFiberWS(c, user.ID)
	})
}

// GetWebSocketStats handles GET /ws/stats.
func (wsc *WebSocketController) GetWebSocketStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"connected_clients": wsc.hub.GetClientCount(),
		"status":            "active",
	})
}
