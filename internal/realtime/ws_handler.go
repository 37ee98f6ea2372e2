package realtime

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/knotapp/knot/internal/models"
)

const (
	presenceKeyPrefix = "knot:presence:user:"
	presenceTTL       = 2 * time.Minute // 2x ping interval
	pingInterval      = 45 * time.Second
	readTimeout       = 90 * time.Second
	writeTimeout      = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades authenticated HTTP requests to websocket channels and
// bridges them to the Hub. The token is the same JWT the HTTP API uses, so a
// channel always carries the same trusted user id as the caller's other
// requests.
type WSHandler struct {
	hub       *Hub
	redis     *redis.Client
	jwtSecret string
	logger    *zap.Logger
}

// NewWSHandler creates a new WSHandler
func NewWSHandler(hub *Hub, redisClient *redis.Client, jwtSecret string, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{hub: hub, redis: redisClient, jwtSecret: jwtSecret, logger: logger}
}

// Serve handles GET /ws
func (h *WSHandler) Serve(c echo.Context) error {
	userID, err := h.authenticate(c)
	if err != nil {
		return err
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	ch := h.hub.Register(userID)
	h.setPresence(userID, true)
	h.logger.Info("realtime channel opened", zap.Uint("user_id", userID))

	defer func() {
		h.hub.Unregister(ch)
		if !h.hub.HasChannels(userID) {
			h.setPresence(userID, false)
		}
		conn.Close()
		h.logger.Info("realtime channel closed", zap.Uint("user_id", userID))
	}()

	// Writer: drain the hub outbox and keep the connection alive with pings
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case msg, ok := <-ch.Outbox():
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
					return
				}
			}
		}
	}()

	// Reader: consume pongs and client frames; any read error ends the session
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		h.refreshPresence(userID)
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	}

	// The transport is gone. Unregister now so publishes stop targeting this
	// channel and the closed outbox unblocks the writer; waiting for its next
	// ping would pin the registration for up to a full ping interval.
	h.hub.Unregister(ch)
	conn.Close()

	<-done
	return nil
}

// authenticate extracts and validates the JWT from the query string or the
// Authorization header
func (h *WSHandler) authenticate(c echo.Context) (uint, error) {
	tokenString := c.QueryParam("token")
	if tokenString == "" {
		authHeader := c.Request().Header.Get("Authorization")
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			tokenString = parts[1]
		}
	}
	if tokenString == "" {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "Missing token")
	}

	claims := &models.JwtCustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, echo.NewHTTPError(http.StatusUnauthorized, "Unexpected signing method")
		}
		return []byte(h.jwtSecret), nil
	})
	if err != nil || !token.Valid || claims.UserID == 0 {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
	}
	return claims.UserID, nil
}

func (h *WSHandler) setPresence(userID uint, online bool) {
	if h.redis == nil {
		return
	}
	ctx := context.Background()
	key := fmt.Sprintf("%s%d", presenceKeyPrefix, userID)
	if online {
		if err := h.redis.Set(ctx, key, time.Now().Unix(), presenceTTL).Err(); err != nil {
			h.logger.Warn("failed to set presence", zap.Uint("user_id", userID), zap.Error(err))
		}
		return
	}
	if err := h.redis.Del(ctx, key).Err(); err != nil {
		h.logger.Warn("failed to clear presence", zap.Uint("user_id", userID), zap.Error(err))
	}
}

func (h *WSHandler) refreshPresence(userID uint) {
	if h.redis == nil {
		return
	}
	key := fmt.Sprintf("%s%d", presenceKeyPrefix, userID)
	_ = h.redis.Expire(context.Background(), key, presenceTTL).Err()
}
