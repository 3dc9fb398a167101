// Package devserver hosts a development gateway: the REST snapshot
// endpoint, the websocket push socket, and a PTY-backed terminal
// bridge. It lets the whole sync loop run locally without the
// production gateway.
package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Server is the development gateway.
type Server struct {
	logger   *logrus.Entry
	sim      *Simulator
	upgrader websocket.Upgrader
	server   *http.Server
	shell    string

	simCancel context.CancelFunc
}

// New creates a Server simulating n sessions. shell is the command run
// behind the terminal endpoint; empty means $SHELL.
func New(n int, shell string, logger *logrus.Entry) *Server {
	return &Server{
		logger: logger,
		sim:    NewSimulator(n, logger.WithField("component", "simulator")),
		shell:  shell,
		upgrader: websocket.Upgrader{
			// Development only; the dashboard dev server runs on a
			// different port.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the gateway's HTTP mux, usable directly with
// httptest in tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/ws", s.handlePush)
	mux.HandleFunc("/ws/terminal", s.handleTerminal)
	return mux
}

// ListenAndServe starts the simulator and serves on addr until
// Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	simCtx, cancel := context.WithCancel(context.Background())
	s.simCancel = cancel
	go s.sim.Run(simCtx)

	s.server = &http.Server{Addr: addr, Handler: s.Handler()}
	s.logger.WithField("addr", addr).Info("Development gateway listening")
	return s.server.ListenAndServe()
}

// Shutdown stops the simulator and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.simCancel != nil {
		s.simCancel()
	}
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Simulator exposes the roster, for tests.
func (s *Server) Simulator() *Simulator { return s.sim }

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.sim.Snapshot()); err != nil {
		s.logger.WithError(err).Error("Failed to encode snapshot")
	}
}

// handlePush upgrades to the push socket and streams simulator
// envelopes until the client goes away.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Push upgrade failed")
		return
	}
	defer conn.Close()

	frames := s.sim.Subscribe()
	defer s.sim.Unsubscribe(frames)

	// Reader goroutine: the client never sends data frames, but reads
	// are required to notice the close handshake.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
	}
}
