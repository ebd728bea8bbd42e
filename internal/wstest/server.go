// Package wstest provides an in-process workflow backend double: a
// gin-served websocket stream endpoint plus the REST checkpoint/status
// routes, scriptable from tests.
package wstest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"inkwell/internal/jsonx"
)

// Inbound is a frame a client sent to the fake backend.
type Inbound struct {
	WorkflowID string
	Data       []byte
}

// Decision records a checkpoint approval or rejection received over REST.
type Decision struct {
	WorkflowID   string
	CheckpointID string
	Approved     bool
	Feedback     string
}

// Server is the scriptable backend double.
type Server struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    map[string][]*websocket.Conn
	writeMu  sync.Mutex
	statuses map[string]map[string]any
	history  map[string][]map[string]any
	failREST bool
	refuseWS bool

	inbound   chan Inbound
	decisions chan Decision
}

// NewServer starts the double on an ephemeral port.
func NewServer() *Server {
	gin.SetMode(gin.TestMode)

	s := &Server{
		upgrader:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		conns:     make(map[string][]*websocket.Conn),
		statuses:  make(map[string]map[string]any),
		history:   make(map[string][]map[string]any),
		inbound:   make(chan Inbound, 256),
		decisions: make(chan Decision, 16),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowWebSockets = true
	engine.Use(cors.New(corsConfig))

	api := engine.Group("/api/workflows")
	{
		api.GET("/:id/stream", s.handleStream)
		api.GET("/:id/status", s.handleStatus)
		api.GET("/:id/messages", s.handleMessages)
		api.POST("/:id/checkpoints/:checkpointID/approve", s.handleDecision(true))
		api.POST("/:id/checkpoints/:checkpointID/reject", s.handleDecision(false))
	}

	s.srv = httptest.NewServer(engine)
	return s
}

// URL returns the HTTP base URL, e.g. http://127.0.0.1:PORT.
func (s *Server) URL() string {
	return s.srv.URL
}

// StreamBase returns the websocket endpoint base expected by the
// transport registry (ws://host/api/workflows).
func (s *Server) StreamBase() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/api/workflows"
}

// Inbound exposes frames received from clients.
func (s *Server) Inbound() <-chan Inbound {
	return s.inbound
}

// Decisions exposes checkpoint decisions received over REST.
func (s *Server) Decisions() <-chan Decision {
	return s.decisions
}

// Push broadcasts an event to every connection of the workflow.
func (s *Server) Push(workflowID string, event any) error {
	data, err := jsonx.Marshal(event)
	if err != nil {
		return err
	}

	s.mu.Lock()
	conns := append([]*websocket.Conn(nil), s.conns[workflowID]...)
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return err
		}
	}
	return nil
}

// ConnectionCount reports how many live sockets the workflow has.
func (s *Server) ConnectionCount(workflowID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns[workflowID])
}

// DropConnections severs the workflow's sockets without a close
// handshake, which clients observe as an abnormal close.
func (s *Server) DropConnections(workflowID string) {
	s.mu.Lock()
	conns := s.conns[workflowID]
	s.conns[workflowID] = nil
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.UnderlyingConn().Close()
	}
}

// CloseConnectionsGracefully sends a normal close frame first.
func (s *Server) CloseConnectionsGracefully(workflowID, reason string) {
	s.mu.Lock()
	conns := s.conns[workflowID]
	s.conns[workflowID] = nil
	s.mu.Unlock()

	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	for _, conn := range conns {
		s.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage, message)
		s.writeMu.Unlock()
		_ = conn.Close()
	}
}

// SetStatus scripts the REST status snapshot for a workflow.
func (s *Server) SetStatus(workflowID string, status map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[workflowID] = status
}

// SetHistory scripts the REST message-history response for a workflow.
func (s *Server) SetHistory(workflowID string, messages []map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[workflowID] = messages
}

// FailREST makes the REST endpoints answer 500 until reset, for
// pending-state-preserved-on-failure tests.
func (s *Server) FailREST(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failREST = fail
}

// RefuseUpgrades makes the stream endpoint answer 503 instead of
// upgrading, so client dials fail while the server stays up.
func (s *Server) RefuseUpgrades(refuse bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refuseWS = refuse
}

// Close shuts the double down.
func (s *Server) Close() {
	s.mu.Lock()
	all := s.conns
	s.conns = make(map[string][]*websocket.Conn)
	s.mu.Unlock()

	for _, conns := range all {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}
	s.srv.Close()
}

func (s *Server) handleStream(c *gin.Context) {
	s.mu.Lock()
	refuse := s.refuseWS
	s.mu.Unlock()
	if refuse {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scripted refusal"})
		return
	}

	workflowID := c.Param("id")
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns[workflowID] = append(s.conns[workflowID], conn)
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			remaining := s.conns[workflowID][:0]
			for _, other := range s.conns[workflowID] {
				if other != conn {
					remaining = append(remaining, other)
				}
			}
			s.conns[workflowID] = remaining
			s.mu.Unlock()
			_ = conn.Close()
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case s.inbound <- Inbound{WorkflowID: workflowID, Data: data}:
			default:
			}
		}
	}()
}

func (s *Server) handleStatus(c *gin.Context) {
	if s.restFailing() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "scripted failure"})
		return
	}
	s.mu.Lock()
	status := s.statuses[c.Param("id")]
	s.mu.Unlock()
	if status == nil {
		status = map[string]any{"workflow_id": c.Param("id"), "status": "running"}
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleMessages(c *gin.Context) {
	if s.restFailing() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "scripted failure"})
		return
	}
	s.mu.Lock()
	messages := s.history[c.Param("id")]
	s.mu.Unlock()
	if messages == nil {
		messages = []map[string]any{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (s *Server) handleDecision(approved bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.restFailing() {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "scripted failure"})
			return
		}
		var body struct {
			Feedback string `json:"feedback"`
		}
		_ = c.ShouldBindJSON(&body)

		decision := Decision{
			WorkflowID:   c.Param("id"),
			CheckpointID: c.Param("checkpointID"),
			Approved:     approved,
			Feedback:     body.Feedback,
		}
		select {
		case s.decisions <- decision:
		default:
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func (s *Server) restFailing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failREST
}
