package ws

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/tiputa/apuri/internal/auth"
	"github.com/tiputa/apuri/internal/config"
	"github.com/tiputa/apuri/internal/metrics"
	"github.com/tiputa/apuri/internal/models"
	"github.com/tiputa/apuri/internal/service"
	"gorm.io/gorm"
)

type Client struct {
	room   *RoomHub
	conn   *websocket.Conn
	send   chan []byte
	msgSvc *service.MessageService
	userID uint
	uname  string
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type InboundMessage struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	IsTyping bool   `json:"is_typing"`
}

type OutboundMessage struct {
	Type      string    `json:"type"`
	ID        uint      `json:"id"`
	RoomID    uint      `json:"room_id"`
	UserID    uint      `json:"user_id"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Serve 升级 ws 连接。入室前走与 HTTP 相同的判定：host 或已批准的申请，
// 未获批准的连接直接拒绝。
func Serve(h *Hub, db *gorm.DB, roomSvc *service.RoomService, msgSvc *service.MessageService, cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomIDStr := c.Query("room_id")
		rid64, err := strconv.ParseUint(roomIDStr, 10, 64)
		if err != nil || rid64 == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room_id"})
			return
		}
		room, err := roomSvc.Get(uint(rid64))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}

		// token 允许通过 Authorization 头或 query 参数传入。
		authz := c.GetHeader("Authorization")
		token := c.Query("token")
		if token == "" && len(authz) > 7 && (authz[:7] == "Bearer " || authz[:7] == "bearer ") {
			token = authz[7:]
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := auth.ParseAccessToken(token, cfg.JWTSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		var user models.User
		if err := db.First(&user, claims.UserID).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}

		allowed, err := roomSvc.CanEnter(user.ID, room)
		if err != nil || !allowed {
			c.JSON(http.StatusForbidden, gin.H{"error": service.ErrRoomAccessDenied.Error()})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		rh := h.GetRoom(room.ID)
		client := &Client{room: rh, conn: conn, send: make(chan []byte, 256), msgSvc: msgSvc, userID: user.ID, uname: user.Username}
		rh.register <- client

		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.room.unregister <- c
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(1 << 20) // 1MB
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var in InboundMessage
		if err := json.Unmarshal(data, &in); err != nil {
			continue
		}
		// typing 信号只转发不落库
		if in.Type == "typing" {
			evt := map[string]interface{}{"type": "typing", "room_id": c.room.roomID, "user_id": c.userID, "username": c.uname, "is_typing": in.IsTyping}
			if b, err := json.Marshal(evt); err == nil {
				c.room.broadcast <- b
			}
			continue
		}
		msg, err := c.msgSvc.Post(c.room.roomID, c.userID, in.Text)
		if err != nil {
			continue
		}
		out := OutboundMessage{Type: "message", ID: msg.ID, RoomID: msg.RoomID, UserID: msg.UserID, Username: c.uname, Text: msg.Text, CreatedAt: msg.CreatedAt}
		b, _ := json.Marshal(out)
		metrics.WsMessagesTotal.Inc()
		c.room.broadcast <- b
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			_ = w.Close()
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
