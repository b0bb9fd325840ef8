// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package statusfeed

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/bridge"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Endpoint paths
const (
	PathWrite  = "/write"
	PathStatus = "/status"
)

const (
	clientBuffer = 16
	writeWait    = 5 * time.Second
)

// ServerOptions configures a Server
type ServerOptions struct {
	Username string // HTTP Basic auth, disabled when empty
	Password string
	Logger   zerolog.Logger
}

// Server serves the /write ingress and /status feed for one bridge
type Server struct {
	bridge   *bridge.Bridge
	log      zerolog.Logger
	username string
	password string
	upgrader websocket.Upgrader

	// ctx bounds forwarding for payloads received over /write
	ctx context.Context

	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

// NewServer creates a server and subscribes it to the bridge's reports
func NewServer(ctx context.Context, b *bridge.Bridge, opts ServerOptions) *Server {
	s := &Server{
		bridge:   b,
		log:      opts.Logger,
		username: opts.Username,
		password: opts.Password,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		ctx:     ctx,
		clients: make(map[chan []byte]struct{}),
	}
	unsubscribe := b.Subscribe(s.broadcast)
	go func() {
		<-ctx.Done()
		unsubscribe()
	}()
	return s
}

// Handler returns the HTTP handler serving both endpoints
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(PathWrite, s.withAuth(s.handleWrite))
	mux.HandleFunc(PathStatus, s.withAuth(s.handleStatus))
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("websocket feed listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	if s.username == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(s.username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(s.password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="whv-bridge"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// handleWrite feeds each received message to the bridge write path
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("write upgrade failed")
		return
	}
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	s.log.Info().Str("remote", remote).Msg("write client connected")

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			s.log.Info().Str("remote", remote).Msg("write client disconnected")
			return
		}
		if messageType != websocket.BinaryMessage && messageType != websocket.TextMessage {
			continue
		}
		s.bridge.HandleWrite(s.ctx, data)
	}
}

// handleStatus streams CBOR frames, starting with a snapshot
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("status upgrade failed")
		return
	}
	defer conn.Close()

	send := make(chan []byte, clientBuffer)
	if data, err := EncodeFrame(SnapshotFrame(s.bridge)); err == nil {
		send <- data
	}
	s.addClient(send)
	defer s.removeClient(send)

	// Reader only detects the peer going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case data := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}
		case <-closed:
			return
		case <-s.ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "bridge stopping"),
				time.Now().Add(time.Second))
			return
		}
	}
}

func (s *Server) addClient(ch chan []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[ch] = struct{}{}
}

func (s *Server) removeClient(ch chan []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, ch)
}

// Clients returns the number of connected status clients
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// broadcast queues a frame for every status client.
// Slow clients drop frames instead of stalling the write path.
func (s *Server) broadcast(rep bridge.Report) {
	data, err := EncodeFrame(FromReport(rep, s.bridge.Status(), s.bridge.Statistics()))
	if err != nil {
		s.log.Error().Err(err).Msg("status frame encode failed")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- data:
		default:
			s.log.Debug().Msg("status client slow, frame dropped")
		}
	}
}
