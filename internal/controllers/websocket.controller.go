package controllers

import (
	"context"
	"net/http"
	"time"

	"pulse/internal/middleware"
	"pulse/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// clientMessage is what subscribers may send over the socket
type clientMessage struct {
	Type string `json:"type"`
}

// WebSocketController streams engine events to subscribers
type WebSocketController struct {
	engine   *services.Engine
	security *middleware.SecurityLogger
	logger   *logrus.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketController creates a websocket controller. Origins are checked
// against allowedOrigins the same way CORS is.
func NewWebSocketController(engine *services.Engine, security *middleware.SecurityLogger, logger *logrus.Logger, allowedOrigins []string) *WebSocketController {
	return &WebSocketController{
		engine:   engine,
		security: security,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return middleware.OriginAllowed(r.Header.Get("Origin"), allowedOrigins)
			},
		},
	}
}

// HandleWebSocket upgrades the connection and subscribes it to the caller's
// tenant. The first message is always the snapshot.
func (wc *WebSocketController) HandleWebSocket(c *gin.Context) {
	tenant := middleware.Tenant(c)

	ws, err := wc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		wc.logger.WithError(err).Warn("[WS] Upgrade error")
		return
	}
	wc.security.LogWebSocketConnected(c.ClientIP(), tenant)

	// the request context ends when this handler returns, so the stream
	// gets its own
	ctx, cancel := context.WithCancel(context.Background())
	sub := wc.engine.Subscribe(ctx, tenant)
	pongs := make(chan struct{}, 1)

	go wc.readPump(ws, cancel, pongs)
	go wc.writePump(ws, sub, cancel, pongs, c.ClientIP())
}

// readPump consumes client messages until the connection fails
func (wc *WebSocketController) readPump(ws *websocket.Conn, cancel context.CancelFunc, pongs chan<- struct{}) {
	defer cancel()

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wc.logger.WithError(err).Debug("[WS] Read error")
			}
			return
		}

		switch msg.Type {
		case "ping":
			select {
			case pongs <- struct{}{}:
			default:
			}
		case "unsubscribe":
			return
		default:
			wc.logger.Debugf("[WS] Unknown message type: %s", msg.Type)
		}
	}
}

// writePump is the only writer on ws. It ends when the subscription stream
// closes or a write fails.
func (wc *WebSocketController) writePump(ws *websocket.Conn, sub *services.Subscription, cancel context.CancelFunc, pongs <-chan struct{}, ip string) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		ws.Close()
		wc.security.LogWebSocketDisconnected(ip, sub.ID)
	}()

	for {
		select {
		case ev, ok := <-sub.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := ws.WriteJSON(ev); err != nil {
				wc.logger.WithError(err).Debug("[WS] Write error")
				return
			}

		case <-pongs:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(clientMessage{Type: "pong"}); err != nil {
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
