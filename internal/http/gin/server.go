package ginserver

import (
	"log/slog"
	"net/http"

	cors "github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/vyktorion/pwa-sub000/internal/chat"
	"github.com/vyktorion/pwa-sub000/internal/relay"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origin checks happen at the gateway
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewRouter wires all routes onto a gin engine.
func NewRouter(env string, service *chat.Service, hub *relay.Hub, logger *slog.Logger) *gin.Engine {
	if env != "dev" && env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.Default())

	handler := ChatHandler{Service: service, Logger: logger}

	api := engine.Group("/api/v1")
	{
		api.POST("/conversations", handler.CreateConversation)
		api.GET("/conversations", handler.ListConversations)
		api.GET("/conversations/:id/messages", handler.ListMessages)
		api.POST("/conversations/:id/messages", handler.SendMessage)
		api.POST("/conversations/:id/read", handler.MarkRead)
		api.DELETE("/conversations/:id", handler.DeleteConversation)
		api.DELETE("/messages/:id", handler.DeleteMessage)
		api.GET("/me/unread-count", handler.UnreadCount)
		api.POST("/push/subscriptions", handler.Subscribe)
		api.DELETE("/push/subscriptions", handler.Unsubscribe)
	}

	engine.GET("/ws", wsHandler(hub, logger))
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return engine
}

// wsHandler attaches a live client session to the relay hub.
func wsHandler(hub *relay.Hub, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := requirePrincipal(c)
		if !ok {
			return
		}
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			if logger != nil {
				logger.Warn("websocket upgrade failed", "error", err, "user_id", principal)
			}
			return
		}
		conn := relay.NewConn(principal, ws)
		hub.Attach(conn)
		conn.Start()

		// inbound traffic is ignored; the read loop only notices disconnects
		go func() {
			defer func() {
				hub.Detach(conn)
				conn.Close(websocket.CloseNormalClosure, "bye")
			}()
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}
