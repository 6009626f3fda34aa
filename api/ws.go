package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsDetect runs one detection per text frame and replies with the same
// envelope POST /detect would return. The session closes after
// WSIdleTimeout without a frame.
func (h *handler) wsDetect(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already wrote the error response
		return
	}
	defer conn.Close()
	conn.SetReadLimit(int64(h.cfg.MaxBodyMB) << 20)

	idle := h.cfg.WSIdleTimeout
	if idle <= 0 {
		idle = DefaultConfig().WSIdleTimeout
	}
	log := h.log.With(zap.String("remote", c.ClientIP()))
	log.Debug("websocket session opened")

	for {
		_ = conn.SetReadDeadline(time.Now().Add(idle))
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "idle timeout"),
					time.Now().Add(time.Second))
			}
			log.Debug("websocket session closed", zap.Error(err))
			return
		}

		var reply any
		switch mt {
		case websocket.TextMessage:
			resp, err := h.svc.Detect(c.Request.Context(), string(msg), "ws")
			if err != nil {
				_, reply = errorReply(err)
			} else {
				reply = resp
			}
		default:
			reply = gin.H{"success": false, "error": "unsupported message type", "detections": []any{}}
		}
		if err := conn.WriteJSON(reply); err != nil {
			log.Debug("websocket write failed", zap.Error(err))
			return
		}
	}
}
