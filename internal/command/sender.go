package command

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/amirgeek/Bot-Arbitraje/internal/domain"
)

// Sender signs routes and writes them to the executor's listen address.
// It keeps one connection alive across sends and redials on failure; the
// channel is fire-and-forget, so no response is ever read.
type Sender struct {
	addr        string
	secret      []byte
	dialTimeout time.Duration
	logger      *slog.Logger

	mu   sync.Mutex
	conn net.Conn
}

// NewSender creates a Sender targeting addr (host:port) with the shared
// signing secret.
func NewSender(addr string, secret []byte, logger *slog.Logger) *Sender {
	return &Sender{
		addr:        addr,
		secret:      secret,
		dialTimeout: 5 * time.Second,
		logger:      logger.With(slog.String("component", "command_sender")),
	}
}

// Send signs the route and delivers one newline-terminated envelope. A
// stale connection gets one redial before the error is returned.
func (s *Sender) Send(ctx context.Context, route domain.Route) error {
	cmd, err := Sign(s.secret, route, time.Now())
	if err != nil {
		return err
	}
	line, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("command: marshal envelope: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(ctx, line); err != nil {
		// Connection may have gone stale between sends; redial once.
		s.closeLocked()
		if err = s.write(ctx, line); err != nil {
			return err
		}
	}

	s.logger.InfoContext(ctx, "command sent",
		slog.String("route", route.String()),
	)
	return nil
}

// write delivers the line on the current connection, dialing first when
// necessary. Caller holds s.mu.
func (s *Sender) write(ctx context.Context, line []byte) error {
	if s.conn == nil {
		d := net.Dialer{Timeout: s.dialTimeout}
		conn, err := d.DialContext(ctx, "tcp", s.addr)
		if err != nil {
			return fmt.Errorf("command: dial %s: %w", s.addr, err)
		}
		s.conn = conn
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(deadline)
	} else {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.dialTimeout))
	}

	if _, err := s.conn.Write(line); err != nil {
		return fmt.Errorf("command: write: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (s *Sender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Sender) closeLocked() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}
