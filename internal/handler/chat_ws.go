package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"jabbr/config"
	"jabbr/internal/auth"
	"jabbr/internal/chat"
	"jabbr/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var chatUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientFrame is what the browser sends: an action plus its arguments.
type clientFrame struct {
	Action  string `json:"action"`
	Room    string `json:"room"`
	Content string `json:"content"`
	// ID is the client's provisional message id, echoed back in replaceMessage.
	ID     string `json:"id"`
	Target string `json:"target"`
	Reason string `json:"reason"`
}

// UpgradeChatWS upgrades to WebSocket for chat; query: token, reconnect.
func UpgradeChatWS(cfg *config.JWTConfig, registry *ws.Registry, coordinator *chat.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
			return
		}
		claims, err := auth.ParseAccessToken(cfg, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		reconnecting := c.Query("reconnect") == "1"

		wsConn, err := chatUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer wsConn.Close()

		connID := uuid.NewString()
		conn := ws.NewConn(connID, claims.UserID)
		registry.Register(conn)

		userAgent := c.Request.UserAgent()
		if reconnecting {
			err = coordinator.Reconnect(claims.UserID, connID, userAgent)
		} else {
			err = coordinator.Connect(claims.UserID, connID, userAgent)
		}
		if err != nil {
			log.Printf("ws: attach %s for user %d: %v", connID, claims.UserID, err)
			registry.Drop(connID)
			return
		}
		defer coordinator.Disconnect(connID, true)

		wsConn.SetReadDeadline(time.Now().Add(ws.PongWait))
		wsConn.SetPongHandler(func(string) error {
			wsConn.SetReadDeadline(time.Now().Add(ws.PongWait))
			return nil
		})

		go writePump(wsConn, conn)

		for {
			_, raw, err := wsConn.ReadMessage()
			if err != nil {
				break
			}
			var frame clientFrame
			if json.Unmarshal(raw, &frame) != nil {
				continue
			}
			dispatch(coordinator, conn, claims.UserID, connID, frame)
		}
	}
}

func writePump(wsConn *websocket.Conn, conn *ws.Conn) {
	ticker := time.NewTicker(ws.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-conn.Send:
			if !ok {
				return
			}
			wsConn.SetWriteDeadline(time.Now().Add(ws.WriteWait))
			if err := wsConn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(ws.WriteWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func dispatch(coordinator *chat.Coordinator, conn *ws.Conn, userID uint, connID string, frame clientFrame) {
	var err error
	switch frame.Action {
	case "send":
		err = coordinator.Send(userID, connID, frame.Room, frame.Content, frame.ID)
	case "join":
		err = coordinator.Join(userID, frame.Room)
	case "leave":
		err = coordinator.Leave(userID, frame.Room)
	case "typing":
		err = coordinator.Typing(userID, frame.Room)
	case "kick":
		err = coordinator.Kick(userID, frame.Target, frame.Room, frame.Reason)
	case "allow":
		err = coordinator.Allow(userID, frame.Target, frame.Room)
	case "lock":
		err = coordinator.LockRoom(userID, frame.Room)
	default:
		return
	}
	if err == nil {
		return
	}
	if isValidationError(err) {
		sendError(conn, err.Error())
		return
	}
	log.Printf("ws: %s from %s: %v", frame.Action, connID, err)
	sendError(conn, "something went wrong")
}

func isValidationError(err error) bool {
	for _, v := range []error{
		chat.ErrRoomNotFound,
		chat.ErrRoomClosed,
		chat.ErrRoomNotPrivate,
		chat.ErrAccessDenied,
		chat.ErrNotInRoom,
		chat.ErrUserNotFound,
		chat.ErrMessageTooLong,
	} {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}

func sendError(conn *ws.Conn, message string) {
	data, err := json.Marshal(map[string]interface{}{
		"event": "error",
		"args":  []interface{}{message},
	})
	if err != nil {
		return
	}
	conn.Push(data)
}
