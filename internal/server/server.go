package server

import (
	"context"
	"log"
	"net/http"
	"strings"

	"lightshow-agent/internal/core"
	"lightshow-agent/internal/lua"
	"lightshow-agent/internal/scheduler"

	"github.com/gorilla/websocket"
)

// ClientConn defines an interface for a WebSocket connection.
type ClientConn interface {
	WriteJSON(v interface{}) error
}

// CommandHandler defines the interface for handling client commands.
type CommandHandler interface {
	Handle(msg Message, hub *Hub)
}

// Server manages the HTTP and WebSocket services.
type Server struct {
	Hub        *Hub
	handler    CommandHandler
	luaEngine  *lua.Engine
	httpServer *http.Server
	state      *core.State
	scheduler  *scheduler.Scheduler
	listShows  func() []string

	staticFilesDir string
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewServer creates a new server instance.
func NewServer(luaEngine *lua.Engine, state *core.State, sched *scheduler.Scheduler, listShows func() []string, port, staticFilesDir string, allowedOrigins []string) *Server {
	hub := NewHub()
	go hub.Run()

	s := &Server{
		Hub:       hub,
		luaEngine: luaEngine,
		state:     state,
		scheduler: sched,
		listShows: listShows,

		staticFilesDir: staticFilesDir,
		allowedOrigins: allowedOrigins,
	}

	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				log.Println("Warning: WebSocket CheckOrigin is disabled.")
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			log.Printf("WebSocket connection blocked: Origin '%s' not in allowed list.", origin)
			return false
		},
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(s.staticFilesDir)))
	mux.HandleFunc("/ws", s.handleWebSocket)
	s.httpServer = &http.Server{Addr: ":" + port, Handler: mux}

	return s
}

// SetHandler installs the command handler.
func (s *Server) SetHandler(h CommandHandler) {
	s.handler = h
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// StatusPayload builds the full state snapshot sent to clients.
func StatusPayload(st core.State) map[string]interface{} {
	return map[string]interface{}{
		"show":           st.ShowName,
		"audio":          st.AudioFile,
		"playing":        st.Playing,
		"paused":         st.Paused,
		"position_ms":    st.Position.Milliseconds(),
		"bpm":            st.BPM,
		"active_effects": st.ActiveEffects,
		"running_script": st.RunningScript,
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	// New clients get a full snapshot before joining the broadcast set.
	_ = conn.WriteJSON(NewMessage("status", StatusPayload(s.state.Clone())))

	if s.listShows != nil {
		_ = conn.WriteJSON(NewMessage("show_list", s.listShows()))
	}

	scripts, err := s.luaEngine.GetScriptList()
	if err == nil {
		_ = conn.WriteJSON(NewMessage("script_list", scripts))
	}

	_ = conn.WriteJSON(NewMessage("schedule_list", s.scheduler.GetAll()))

	s.Hub.register <- conn

	defer func() {
		s.Hub.unregister <- conn
	}()

	for {
		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if s.handler != nil {
			s.handler.Handle(Message{Raw: msgBytes}, s.Hub)
		}
	}
}
