// Package realtime implements the push channel described in §6: a
// WebSocket hub organized around rooms ("user:{userId}", "flow:{flowId}",
// "job:{jobId}") that C5 publishes queue events into. Generalized from
// the teacher's broadcast-to-all-clients websocket handler into a
// room-scoped one, since per-caller/per-flow/per-job isolation is a
// hard requirement here that the teacher's single status feed did not
// have.
package realtime

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobforge/internal/common"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the envelope written to every connected client.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// command is what a client sends to join/leave a room.
type command struct {
	Type string `json:"type"` // "join-flow", "leave-flow", "subscribe:job", "unsubscribe:job"
	ID   string `json:"id"`   // flowId or jobId
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	rooms   map[string]bool
}

func (c *client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub is the process-wide room registry and connection set.
type Hub struct {
	logger      arbor.ILogger
	mu          sync.RWMutex
	clients     map[*client]bool
	rooms       map[string]map[*client]bool
	pingEvery   time.Duration
	writeLimit  time.Duration
	readLimit   int64
}

func NewHub(logger arbor.ILogger, cfg *common.WebSocketConfig) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*client]bool),
		rooms:      make(map[string]map[*client]bool),
		pingEvery:  common.ParseDurationDefault(cfg.PingInterval, 30*time.Second),
		writeLimit: common.ParseDurationDefault(cfg.WriteTimeout, 10*time.Second),
		readLimit:  cfg.ReadLimit,
	}
}

// RoomForUser, RoomForFlow and RoomForJob build this hub's canonical
// room identifiers, shared with C5's event demultiplexer.
func RoomForUser(userID int64) string { return "user:" + strconv.FormatInt(userID, 10) }
func RoomForFlow(flowID string) string { return "flow:" + flowID }
func RoomForJob(jobID string) string   { return "job:" + jobID }

// HandleUpgrade upgrades the HTTP connection, joins the caller's own
// user room automatically, and services join/leave commands until the
// client disconnects.
func (h *Hub) HandleUpgrade(w http.ResponseWriter, r *http.Request, userID int64) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("realtime: failed to upgrade websocket connection")
		return
	}

	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}

	c := &client{conn: conn, rooms: map[string]bool{}}
	h.register(c, RoomForUser(userID))

	h.logger.Info().Int64("user_id", userID).Msg("realtime: client connected")

	stop := make(chan struct{})
	go h.pingLoop(c, stop)

	defer func() {
		close(stop)
		h.unregisterAll(c)
		conn.Close()
		h.logger.Info().Int64("user_id", userID).Msg("realtime: client disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("realtime: websocket read error")
			}
			return
		}
		h.handleCommand(c, data)
	}
}

func (h *Hub) pingLoop(c *client, stop chan struct{}) {
	if h.pingEvery <= 0 {
		return
	}
	ticker := time.NewTicker(h.pingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeLimit))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (h *Hub) handleCommand(c *client, data []byte) {
	var cmd command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return
	}

	switch cmd.Type {
	case "join-flow":
		h.register(c, RoomForFlow(cmd.ID))
	case "leave-flow":
		h.unregister(c, RoomForFlow(cmd.ID))
	case "subscribe:job":
		h.register(c, RoomForJob(cmd.ID))
	case "unsubscribe:job":
		h.unregister(c, RoomForJob(cmd.ID))
	}
}

func (h *Hub) register(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	c.rooms[room] = true
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*client]bool)
	}
	h.rooms[room][c] = true
}

func (h *Hub) unregister(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(c.rooms, room)
	if members := h.rooms[room]; members != nil {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) unregisterAll(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range c.rooms {
		if members := h.rooms[room]; members != nil {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	delete(h.clients, c)
}

// PublishToRoom writes event/payload to every client currently joined
// to room. Satisfies the events.Publisher interface.
func (h *Hub) PublishToRoom(room string, event string, payload any) {
	data, err := json.Marshal(Message{Type: event, Payload: payload})
	if err != nil {
		h.logger.Warn().Err(err).Str("room", room).Msg("realtime: failed to marshal message")
		return
	}

	h.mu.RLock()
	members := make([]*client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		if err := c.write(data); err != nil {
			h.logger.Warn().Err(err).Str("room", room).Msg("realtime: failed to write to client")
		}
	}
}
