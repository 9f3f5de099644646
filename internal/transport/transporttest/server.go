package transporttest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"chatsync/internal/domain/message"
	"chatsync/internal/events"
	"chatsync/internal/transport"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Server is an in-process chat backend speaking the same REST and push
// protocol as the real one. Every mutation is broadcast to all connected
// websocket clients as an event envelope.
type Server struct {
	store *Memory
	http  *httptest.Server

	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

func NewServer() *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{
		store: NewMemory(),
		conns: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	r := gin.New()
	api := r.Group("/api")
	api.GET("/conversations/:id/messages", s.handleFetch)
	api.POST("/conversations/:id/messages", s.handleSend)
	api.POST("/conversations/:id/typing", s.handleTyping)
	api.GET("/conversations/:id/pins", s.handleGetPins)
	api.POST("/conversations/:id/pins/:messageId", s.handlePin)
	api.DELETE("/conversations/:id/pins/:messageId", s.handleUnpin)
	api.PATCH("/messages/:id", s.handleEdit)
	api.DELETE("/messages/:id", s.handleDelete)
	api.GET("/messages/:id/reactions", s.handleGetReactions)
	api.POST("/messages/:id/reactions", s.handleAddReaction)
	api.DELETE("/messages/:id/reactions", s.handleRemoveReaction)
	r.GET("/ws", s.handleWS)

	s.http = httptest.NewServer(r)
	return s
}

// Store exposes the backing Memory for seeding and failure injection.
func (s *Server) Store() *Memory {
	return s.store
}

func (s *Server) URL() string {
	return s.http.URL
}

func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.http.URL, "http") + "/ws"
}

func (s *Server) Close() {
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.conns = make(map[*websocket.Conn]bool)
	s.mu.Unlock()
	s.http.Close()
}

// Broadcast pushes an envelope to every connected client, for tests that
// simulate server-originated events directly.
func (s *Server) Broadcast(eventType, aggregateID string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	env := events.Envelope{
		EventType:   eventType,
		AggregateID: aggregateID,
		OccurredAt:  time.Now(),
		Payload:     data,
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			conn.Close()
			delete(s.conns, conn)
		}
	}
}

func (s *Server) handleWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns[conn] = true
	s.mu.Unlock()

	// Drain control frames until the peer goes away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.mu.Lock()
				delete(s.conns, conn)
				s.mu.Unlock()
				conn.Close()
				return
			}
		}
	}()
}

func (s *Server) handleFetch(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad conversation id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad cursor"})
			return
		}
		before = &t
	}
	page, err := s.store.FetchMessages(c.Request.Context(), conversationID, limit, before)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": page})
}

func (s *Server) handleSend(c *gin.Context) {
	var req transport.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := s.store.SendMessage(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.Broadcast(events.EventTypeMessageCreated, msg.ID, msg)
	c.JSON(http.StatusCreated, msg)
}

func (s *Server) handleEdit(c *gin.Context) {
	var req struct {
		ConversationID uuid.UUID `json:"conversation_id"`
		Content        string    `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := s.store.EditMessage(c.Request.Context(), c.Param("id"), req.ConversationID, req.Content)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	s.Broadcast(events.EventTypeMessageUpdated, msg.ID, msg)
	c.JSON(http.StatusOK, msg)
}

func (s *Server) handleDelete(c *gin.Context) {
	conversationID, _ := uuid.Parse(c.Query("conversation_id"))
	forEveryone := c.Query("for_everyone") == "true"
	if err := s.store.DeleteMessage(c.Request.Context(), c.Param("id"), conversationID, forEveryone); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if forEveryone {
		if msg, ok := s.storeMessage(c.Param("id")); ok {
			s.Broadcast(events.EventTypeMessageDeleted, msg.ID, msg)
		}
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) storeMessage(id string) (message.Message, bool) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	for _, m := range s.store.messages {
		if m.ID == id {
			return m, true
		}
	}
	return message.Message{}, false
}

func (s *Server) handleGetReactions(c *gin.Context) {
	list, _ := s.store.GetReactions(c.Request.Context(), c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"reactions": list})
}

func (s *Server) handleAddReaction(c *gin.Context) {
	var req struct {
		UserID uuid.UUID `json:"user_id"`
		Emoji  string    `json:"emoji"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	_ = s.store.AddReaction(c.Request.Context(), c.Param("id"), req.UserID, req.Emoji)
	s.Broadcast(events.EventTypeReactionAdded, c.Param("id"), message.Reaction{
		MessageID: c.Param("id"), UserID: req.UserID, Emoji: req.Emoji, CreatedAt: time.Now(),
	})
	c.Status(http.StatusNoContent)
}

func (s *Server) handleRemoveReaction(c *gin.Context) {
	userID, _ := uuid.Parse(c.Query("user_id"))
	emoji := c.Query("emoji")
	_ = s.store.RemoveReaction(c.Request.Context(), c.Param("id"), userID, emoji)
	s.Broadcast(events.EventTypeReactionRemoved, c.Param("id"), message.Reaction{
		MessageID: c.Param("id"), UserID: userID, Emoji: emoji,
	})
	c.Status(http.StatusNoContent)
}

func (s *Server) handlePin(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad conversation id"})
		return
	}
	_ = s.store.PinMessage(c.Request.Context(), conversationID, c.Param("messageId"))
	s.Broadcast(events.EventTypeMessagePinned, c.Param("messageId"), gin.H{
		"conversation_id": conversationID, "message_id": c.Param("messageId"),
	})
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUnpin(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad conversation id"})
		return
	}
	_ = s.store.UnpinMessage(c.Request.Context(), conversationID, c.Param("messageId"))
	s.Broadcast(events.EventTypeMessageUnpinned, c.Param("messageId"), gin.H{
		"conversation_id": conversationID, "message_id": c.Param("messageId"),
	})
	c.Status(http.StatusNoContent)
}

func (s *Server) handleGetPins(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad conversation id"})
		return
	}
	msgs, _ := s.store.GetPinnedMessages(c.Request.Context(), conversationID)
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (s *Server) handleTyping(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad conversation id"})
		return
	}
	var req struct {
		UserID uuid.UUID `json:"user_id"`
		Typing bool      `json:"typing"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	eventType := events.EventTypeTypingStarted
	if !req.Typing {
		eventType = events.EventTypeTypingStopped
	}
	s.Broadcast(eventType, req.UserID.String(), gin.H{
		"conversation_id": conversationID, "user_id": req.UserID, "typing": req.Typing,
	})
	c.Status(http.StatusNoContent)
}
