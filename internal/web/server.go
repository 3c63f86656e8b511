// Package web exposes huddle over HTTP: WebSocket endpoints for chat rooms
// and checklists, a small JSON API for login and rooms, and the admin
// message endpoint.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/codefionn/huddle/internal/admin"
	"github.com/codefionn/huddle/internal/chat"
	"github.com/codefionn/huddle/internal/checklist"
	"github.com/codefionn/huddle/internal/config"
	"github.com/codefionn/huddle/internal/fabric"
	"github.com/codefionn/huddle/internal/identity"
	"github.com/codefionn/huddle/internal/logger"
	"github.com/codefionn/huddle/internal/protocol"
	"github.com/codefionn/huddle/internal/session"
	"github.com/codefionn/huddle/internal/store"
)

const maxBodySize = 64 << 10

// Server represents the web server
type Server struct {
	cfg        *config.Config
	store      *store.Store
	fabric     fabric.Fabric
	tokens     *identity.Tokens
	resolver   identity.Resolver
	auth       *identity.Authenticator
	chat       *chat.Consumer
	checklist  *checklist.Consumer
	injector   *admin.Injector
	hub        *Hub
	upgrader   websocket.Upgrader
	httpServer *http.Server
	listener   net.Listener
	baseCtx    context.Context
	cancel     context.CancelFunc
}

// NewServer creates a new web server. The returned server tracks clients
// until Stop is called, even if Start never is.
func NewServer(cfg *config.Config, st *store.Store, f fabric.Fabric, tokens *identity.Tokens) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		store:     st,
		fabric:    f,
		tokens:    tokens,
		resolver:  tokens,
		auth:      identity.NewAuthenticator(st, tokens),
		chat:      chat.NewConsumer(st),
		checklist: checklist.NewConsumer(st),
		injector:  admin.NewInjector(f, cfg.AdminToken),
		hub:       NewHub(),
		baseCtx:   ctx,
		cancel:    cancel,
	}
	go s.hub.Run()

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(cfg.AllowedOrigins),
	}
	return s
}

// checkOrigin allows the configured origins. With none configured the
// gorilla default applies: the Origin host must match the request host.
func checkOrigin(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	router := httprouter.New()
	router.GET("/ws/chat/:room_name/", s.handleChat)
	router.GET("/ws/checklist/", s.handleChecklist)
	router.POST("/api/login", s.handleLogin)
	router.GET("/api/rooms", s.handleListRooms)
	router.POST("/api/rooms", s.handleCreateRoom)
	router.POST("/admin/rooms/:room/messages", s.handleAdminMessage)
	router.GET("/healthz", s.handleHealth)
	return router
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.NewStdLogger(logger.Global().WithPrefix("http"), slog.LevelWarn),
	}

	go func() {
		logger.Info("Web server listening on %s", ln.Addr())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error: %v", err)
		}
	}()

	return nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.ListenAddr
	}
	return s.listener.Addr().String()
}

// Stop stops the web server
func (s *Server) Stop() error {
	logger.Info("Stopping web server...")

	s.cancel()
	s.hub.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// Run starts the server and stops it once ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

// ConnectionCount returns the number of live WebSocket clients.
func (s *Server) ConnectionCount() int {
	return s.hub.ClientCount()
}

// accept upgrades the request and prepares a client and its session.
func (s *Server) accept(w http.ResponseWriter, r *http.Request, p identity.Principal) (*Client, *session.Session, bool) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Failed to upgrade WebSocket: %v", err)
		return nil, nil, false
	}
	client := NewClient(s.hub, conn, s.cfg.SendQueueSize, s.cfg.MaxMessageSize)
	return client, session.New(client, p, s.fabric), true
}

// serve starts the pumps of an activated client.
func (s *Server) serve(client *Client, sess *session.Session, r Receiver) {
	client.attach(sess, r)
	if !s.hub.Register(client) {
		sess.Close()
		client.closeSend()
		client.Close()
		return
	}
	go client.WritePump()
	go client.ReadPump(s.baseCtx)
}

// abort tears down a client whose handshake failed after the upgrade.
func (s *Server) abort(client *Client, sess *session.Session, err error) {
	logger.Error("WebSocket handshake failed: %v", err)
	sess.Close()
	client.closeSend()
	_ = client.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "handshake failed"),
		time.Now().Add(writeWait))
	client.Close()
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	p := s.resolver.Resolve(r)
	room, err := s.chat.Admit(r.Context(), p, ps.ByName("room_name"))
	switch {
	case errors.Is(err, protocol.ErrUnauthenticated):
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	case errors.Is(err, chat.ErrRoomNotFound):
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	case err != nil:
		logger.Error("Chat handshake failed: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	client, sess, ok := s.accept(w, r, p)
	if !ok {
		return
	}
	h, err := s.chat.Connect(s.baseCtx, sess, room)
	if err != nil {
		s.abort(client, sess, err)
		return
	}
	s.serve(client, sess, h)
}

func (s *Server) handleChecklist(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	p := s.resolver.Resolve(r)
	client, sess, ok := s.accept(w, r, p)
	if !ok {
		return
	}
	h, err := s.checklist.Connect(s.baseCtx, sess)
	if err != nil {
		s.abort(client, sess, err)
		return
	}
	s.serve(client, sess, h)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, p, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, identity.ErrBadCredentials) {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		logger.Error("Login failed: %v", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     identity.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.tokens.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, Username: p.Username, UserID: p.ID})
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	rooms, err := s.store.ListRooms(r.Context())
	if err != nil {
		logger.Error("List rooms failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list rooms")
		return
	}
	out := make([]RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, RoomResponse{ID: room.ID, Name: room.Name, CreatedAt: room.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !s.resolver.Resolve(r).Authenticated() {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req RoomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !store.ValidRoomName(strings.TrimSpace(req.Name)) {
		writeError(w, http.StatusBadRequest, "room names may only contain letters, digits, '-', '_' and '.'")
		return
	}

	room, created, err := s.store.GetOrCreateRoom(r.Context(), req.Name)
	if err != nil {
		logger.Error("Create room failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, RoomResponse{ID: room.ID, Name: room.Name, CreatedAt: room.CreatedAt, Created: created})
}

func (s *Server) handleAdminMessage(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !s.injector.Authorize(strings.TrimSpace(token)) {
		writeError(w, http.StatusUnauthorized, "invalid admin token")
		return
	}
	var req AdminMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	room := ps.ByName("room")
	res, err := s.injector.Inject(room, req.Message)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, AdminMessageResponse{Room: room, Delivered: res.Delivered, Dropped: res.Dropped})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "database unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Connections: s.hub.ClientCount(),
		Groups:      len(s.fabric.Groups()),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
