// Package ipc is the daemon's control socket: one JSON request and one JSON
// reply per connection over a unix socket.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"sync"
	"time"
)

const (
	CmdPress   = "press"
	CmdRelease = "release"
	CmdToggle  = "toggle"
	CmdStatus  = "status"
)

const ioTimeout = 5 * time.Second

type Request struct {
	Cmd string `json:"cmd"`
}

// Reply always carries the controller state after the command ran.
type Reply struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	State    string   `json:"state"`
	Status   string   `json:"status"`
	DeviceID int64    `json:"device_id"`
	History  []string `json:"history,omitempty"`
	Dropped  int64    `json:"dropped_frames,omitempty"`
}

type Handler func(Request) Reply

type Server struct {
	path string
	ln   net.Listener
	h    Handler
	wg   sync.WaitGroup
}

// Listen replaces any stale socket at path and serves h until Close.
func Listen(path string, h Handler) (*Server, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	s := &Server{path: path, ln: ln, h: h}
	s.wg.Add(1)
	go s.serve()
	return s, nil
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn("Control socket accept failed", "err", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(ioTimeout))

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		log.Debug("Bad control request", "err", err)
		json.NewEncoder(conn).Encode(Reply{Error: "bad request: " + err.Error()})
		return
	}
	log.Debug("Control request", "cmd", req.Cmd)

	if err := json.NewEncoder(conn).Encode(s.h(req)); err != nil {
		log.Debug("Control reply failed", "err", err)
	}
}

func (s *Server) Close() error {
	err := s.ln.Close()
	s.wg.Wait()
	os.Remove(s.path)
	return err
}

// Send issues cmd to the daemon listening on path.
func Send(ctx context.Context, path, cmd string) (Reply, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return Reply{}, err
	}
	defer conn.Close()

	deadline := time.Now().Add(ioTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetDeadline(deadline)

	if err := json.NewEncoder(conn).Encode(Request{Cmd: cmd}); err != nil {
		return Reply{}, err
	}
	var rep Reply
	if err := json.NewDecoder(conn).Decode(&rep); err != nil {
		return Reply{}, fmt.Errorf("read reply: %w", err)
	}
	return rep, nil
}
