package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tiputa/apuri/internal/metrics"
)

// Hub 管理房间级别的子 Hub，实现延迟创建与并发安全。
type Hub struct {
	mu    sync.RWMutex
	rooms map[uint]*RoomHub
}

func NewHub() *Hub { return &Hub{rooms: make(map[uint]*RoomHub)} }

// GetRoom 若房间未初始化则懒加载一个 RoomHub。
func (h *Hub) GetRoom(roomID uint) *RoomHub {
	h.mu.RLock()
	room := h.rooms[roomID]
	h.mu.RUnlock()
	if room != nil {
		return room
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	room = h.rooms[roomID]
	if room != nil {
		return room
	}
	room = NewRoomHub(roomID)
	h.rooms[roomID] = room
	go room.run()
	return room
}

func (h *Hub) Online(roomID uint) int {
	h.mu.RLock()
	room := h.rooms[roomID]
	h.mu.RUnlock()
	if room == nil {
		return 0
	}
	return room.Online()
}

// BroadcastMessage 把一条已落库的房间消息推给该房间的在线客户端。
// REST 发言和 ws 发言共用这一出口；房间没有监听者时直接丢弃。
func (h *Hub) BroadcastMessage(roomID, msgID, userID uint, username, text string, createdAt time.Time) {
	h.mu.RLock()
	room := h.rooms[roomID]
	h.mu.RUnlock()
	if room == nil {
		return
	}
	out := OutboundMessage{
		Type:      "message",
		ID:        msgID,
		RoomID:    roomID,
		UserID:    userID,
		Username:  username,
		Text:      text,
		CreatedAt: createdAt,
	}
	b, err := json.Marshal(out)
	if err != nil {
		return
	}
	metrics.WsMessagesTotal.Inc()
	room.broadcast <- b
}

type RoomHub struct {
	roomID     uint
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	online     int32
}

func NewRoomHub(roomID uint) *RoomHub {
	return &RoomHub{
		roomID:     roomID,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
	}
}

func (rh *RoomHub) run() {
	for {
		select {
		case c := <-rh.register:
			rh.clients[c] = true
			atomic.StoreInt32(&rh.online, int32(len(rh.clients)))
			metrics.WsConnections.Inc()
			rh.notify("join", c)
		case c := <-rh.unregister:
			if _, ok := rh.clients[c]; ok {
				delete(rh.clients, c)
				close(c.send)
				atomic.StoreInt32(&rh.online, int32(len(rh.clients)))
				metrics.WsConnections.Dec()
				rh.notify("leave", c)
			}
		case msg := <-rh.broadcast:
			for c := range rh.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(rh.clients, c)
					metrics.WsConnections.Dec()
				}
			}
		}
	}
}

// notify 向房间内全部客户端发送进出事件与最新在线人数。
func (rh *RoomHub) notify(event string, c *Client) {
	evt := map[string]interface{}{
		"type":     event,
		"room_id":  rh.roomID,
		"user_id":  c.userID,
		"username": c.uname,
		"online":   int(atomic.LoadInt32(&rh.online)),
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return
	}
	for cli := range rh.clients {
		select {
		case cli.send <- b:
		default:
			close(cli.send)
			delete(rh.clients, cli)
		}
	}
}

// Online 返回房间在线客户端数量，供 REST 接口复用。
func (rh *RoomHub) Online() int { return int(atomic.LoadInt32(&rh.online)) }
