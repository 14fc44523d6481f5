package handlers

import (
	"collab-service/internal/collab"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// WSHandler upgrades client connections and hands them to the hub.
type WSHandler struct {
	hub       *collab.Hub
	jwtSecret string
	logger    *zap.SugaredLogger
}

func NewWSHandler(hub *collab.Hub, jwtSecret string, logger *zap.SugaredLogger) *WSHandler {
	return &WSHandler{
		hub:       hub,
		jwtSecret: jwtSecret,
		logger:    logger,
	}
}

// HandleWebSocket resolves the caller's identity and upgrades the connection.
// Identity is taken from an optional token query parameter; a missing or
// unparsable token yields the anonymous identity rather than a rejection,
// since the coordinator trusts caller-supplied identity by design.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	identity := h.identityFromRequest(c)
	collab.ServeWS(h.hub, c.Writer, c.Request, identity)
}

func (h *WSHandler) identityFromRequest(c *gin.Context) collab.Identity {
	tokenString := c.Query("token")
	if tokenString == "" {
		return collab.AnonymousIdentity()
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(h.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		h.logger.Debugw("unparsable token on websocket connect, using anonymous identity", "error", err)
		return collab.AnonymousIdentity()
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return collab.AnonymousIdentity()
	}

	identity := collab.AnonymousIdentity()
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		identity.ID = sub
	}
	if name, ok := claims["name"].(string); ok && name != "" {
		identity.Name = name
	}
	return identity
}
