package devserver

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// terminalFrame mirrors gateway.ControlFrame: the JSON control frames
// a client sends on the terminal socket.
type terminalFrame struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

// handleTerminal bridges one terminal websocket to a local PTY:
// control frames in (input bytes, resize), raw binary PTY output out.
func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "missing session parameter", http.StatusBadRequest)
		return
	}
	logger := s.logger.WithField("session", sessionID)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).Warn("Terminal upgrade failed")
		return
	}
	defer conn.Close()

	shell := s.shell
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}

	cmd := exec.Command(shell)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	// A real initial size arrives with the client's first resize
	// frame; starting at 80x24 keeps programs that query the terminal
	// at startup from seeing 0x0.
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: 80, Rows: 24})
	if err != nil {
		logger.WithError(err).Error("Failed to start PTY")
		return
	}
	defer func() {
		ptmx.Close()
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		cmd.Wait()
	}()

	logger.WithField("shell", shell).Info("Terminal attached")

	var writeMu sync.Mutex
	done := make(chan struct{})

	// PTY output pump.
	go func() {
		defer close(done)
		buf := make([]byte, 32*1024)
		for {
			n, err := ptmx.Read(buf)
			if n > 0 {
				writeMu.Lock()
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				werr := conn.WriteMessage(websocket.BinaryMessage, buf[:n])
				writeMu.Unlock()
				if werr != nil {
					return
				}
			}
			if err != nil {
				if err != io.EOF {
					logger.WithError(err).Debug("PTY read ended")
				}
				return
			}
		}
	}()

	// Control frame pump.
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var frame terminalFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			logger.WithError(err).Warn("Dropping malformed control frame")
			continue
		}

		switch frame.Type {
		case "input":
			raw, err := base64.StdEncoding.DecodeString(frame.Data)
			if err != nil {
				logger.WithError(err).Warn("Dropping undecodable input frame")
				continue
			}
			if _, err := ptmx.Write(raw); err != nil {
				logger.WithError(err).Debug("PTY write failed")
			}
		case "resize":
			if frame.Cols <= 0 || frame.Rows <= 0 {
				continue
			}
			size := &pty.Winsize{Cols: uint16(frame.Cols), Rows: uint16(frame.Rows)}
			if err := pty.Setsize(ptmx, size); err != nil {
				logger.WithError(err).Warn("PTY resize failed")
			} else {
				logger.WithFields(logrus.Fields{
					"cols": frame.Cols,
					"rows": frame.Rows,
				}).Debug("PTY resized")
			}
		default:
			logger.WithField("type", frame.Type).Debug("Ignoring control frame")
		}
	}

	<-done
	logger.Info("Terminal detached")
}
