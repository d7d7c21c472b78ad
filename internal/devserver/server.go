// Package devserver is an in-memory coordination server implementing
// the room wire protocol. It backs local development and the
// integration tests; the production server lives elsewhere.
package devserver

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/convoy/internal/domain"
	"github.com/dkeye/convoy/internal/protocol"
)

// Options tweak protocol emission, mostly for tests.
type Options struct {
	// IdentityFirst makes USER_ID_ASSIGNED precede JOIN_SUCCESS. Real
	// servers emit the two independently; both orders must be handled
	// by clients, so tests run each.
	IdentityFirst bool
}

type Server struct {
	opts Options

	mu    sync.Mutex
	rooms map[domain.RoomID]*roomState
}

type roomState struct {
	room    *domain.Room
	members map[domain.UserID]*client
}

func New(opts Options) *Server {
	return &Server{
		opts:  opts,
		rooms: make(map[domain.RoomID]*roomState),
	}
}

// Router builds the HTTP surface: the upgrade endpoint plus a room
// listing for debugging.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/ws", func(c *gin.Context) {
		s.handleUpgrade(c.Writer, c.Request)
	})
	r.GET("/api/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.listRooms())
	})
	return r
}

type roomInfo struct {
	RoomID      domain.RoomID `json:"roomId"`
	MemberCount int           `json:"memberCount"`
	CreatedAt   int64         `json:"createdAt"`
}

func (s *Server) listRooms() []roomInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]roomInfo, 0, len(s.rooms))
	for id, st := range s.rooms {
		out = append(out, roomInfo{RoomID: id, MemberCount: len(st.members), CreatedAt: st.room.CreatedAt})
	}
	return out
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "devserver").Msg("ws upgrade")
		return
	}
	c := &client{conn: ws, send: make(chan []byte, 32)}
	go s.writePump(c)
	go s.readPump(c)
}

func (s *Server) writePump(c *client) {
	for data := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (s *Server) readPump(c *client) {
	defer func() {
		s.reap(c)
		c.close()
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.Decode(data)
		if err != nil {
			log.Error().Err(err).Str("module", "devserver").Msg("bad frame")
			continue
		}
		s.handleFrame(c, env)
	}
}

// reap removes a member whose socket closed without a LEAVE_ROOM, the
// reconciliation a real server performs for dropped leave frames.
func (s *Server) reap(c *client) {
	roomID, userID := c.identity()
	if roomID == "" || userID == "" {
		return
	}
	s.removeMember(roomID, userID)
}

type client struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
	roomID domain.RoomID
	userID domain.UserID
}

func (c *client) bind(roomID domain.RoomID, userID domain.UserID) {
	c.mu.Lock()
	c.roomID, c.userID = roomID, userID
	c.mu.Unlock()
}

func (c *client) unbind() {
	c.bind("", "")
}

func (c *client) identity() (domain.RoomID, domain.UserID) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID, c.userID
}

var errClosed = errors.New("connection closed")

func (c *client) trySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errClosed
	}
	select {
	case c.send <- data:
	default:
		return errors.New("backpressure")
	}
	return nil
}

func (c *client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}
