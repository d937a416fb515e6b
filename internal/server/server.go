package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"hue-controller/internal/core"
	"hue-controller/internal/log"
)

// Snapshot provides what a freshly connected client needs to render the UI.
type Snapshot interface {
	DeviceState() map[string]interface{}
	Patterns() ([]string, error)
	RunningPattern() string
	Schedules() interface{}
}

// Server manages the HTTP and WebSocket services.
type Server struct {
	Hub        *Hub
	intents    core.CommandChannel
	eventBus   *core.EventBus
	snapshot   Snapshot
	httpServer *http.Server

	staticFilesDir string
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewServer creates a new server instance and starts its hub.
func NewServer(intents core.CommandChannel, eb *core.EventBus, snapshot Snapshot, port, staticFilesDir string, allowedOrigins []string) *Server {
	hub := NewHub()
	go hub.Run()

	s := &Server{
		Hub:            hub,
		intents:        intents,
		eventBus:       eb,
		snapshot:       snapshot,
		staticFilesDir: staticFilesDir,
		allowedOrigins: allowedOrigins,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}

	s.httpServer = &http.Server{Addr: ":" + port, Handler: s.Handler()}

	if eb != nil {
		types := make([]core.EventType, 0, len(eventMessages))
		for t := range eventMessages {
			types = append(types, t)
		}
		go s.forwardEvents(eb.Subscribe(types...), types)
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(s.staticFilesDir)))
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || strings.EqualFold(origin, allowed) {
			return true
		}
	}
	log.WithComponent("server").Warnf("WebSocket connection blocked: Origin '%s' not in allowed list.", origin)
	return false
}

// ListenAndServe serves until Shutdown.
func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server and disconnects WebSocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) forwardEvents(sub core.Subscriber, types []core.EventType) {
	defer s.eventBus.Unsubscribe(sub, types...)

	for {
		select {
		case <-s.Hub.quit:
			return
		case ev := <-sub:
			s.Hub.Broadcast(NewMessage(eventMessages[ev.Type], ev.Payload))
		}
	}
}

func (s *Server) sendSnapshot(conn *websocket.Conn) error {
	if s.snapshot == nil {
		return nil
	}
	if err := conn.WriteJSON(NewMessage("device_state", s.snapshot.DeviceState())); err != nil {
		return err
	}
	if patterns, err := s.snapshot.Patterns(); err == nil {
		if err := conn.WriteJSON(NewMessage("pattern_list", patterns)); err != nil {
			return err
		}
	}
	if err := conn.WriteJSON(NewMessage("pattern_status", map[string]string{"running": s.snapshot.RunningPattern()})); err != nil {
		return err
	}
	return conn.WriteJSON(NewMessage("schedule_list", s.snapshot.Schedules()))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponent("server")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("WebSocket upgrade error: %v", err)
		return
	}

	if err := s.sendSnapshot(conn); err != nil {
		logger.Warnf("WebSocket snapshot failed: %v", err)
		conn.Close()
		return
	}

	if !s.Hub.add(conn) {
		conn.Close()
		return
	}
	defer s.Hub.remove(conn)

	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			logger.Debugf("WebSocket read ended: %v", err)
			return
		}
		if cmd.Type == "" {
			continue
		}
		select {
		case s.intents <- cmd.Intent():
		case <-r.Context().Done():
			return
		}
	}
}
