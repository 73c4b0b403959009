package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"floodgate.io/floodgate/internal/pkg/logger"
)

// upgrader accepts any origin: the dashboard is served from a different
// host, mirroring the API's permissive CORS policy.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// GetWS handles GET /ws: upgrades the connection and subscribes it to the
// live stats:update and event:new push channel. Blocks until the client
// disconnects.
func (s *Server) GetWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	s.hub.Handle(conn)
}
