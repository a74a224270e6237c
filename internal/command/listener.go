package command

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/amirgeek/Bot-Arbitraje/internal/domain"
)

// maxLineBytes bounds a single envelope line so a misbehaving peer cannot
// grow the read buffer without limit.
const maxLineBytes = 64 * 1024

// dedupSweepInterval is how often expired signatures are evicted from the
// dedup map. Shorter TTLs sweep on the TTL itself.
const dedupSweepInterval = 30 * time.Second

// ListenerConfig tunes the command listener.
type ListenerConfig struct {
	Addr      string
	Secret    []byte
	QueueSize int           // buffered commands awaiting execution
	MaxAge    time.Duration // 0 disables the freshness check
	DedupTTL  time.Duration // 0 disables duplicate suppression
}

// Listener accepts detector connections, reads newline-terminated
// envelopes, verifies each signature, and queues verified commands for the
// execution engine. Invalid envelopes are dropped and logged; the
// connection is not penalized.
type Listener struct {
	cfg      ListenerConfig
	commands chan domain.RouteCommand
	dedup    *Dedup
	logger   *slog.Logger
}

// NewListener creates a Listener. Commands() yields verified commands in
// arrival order.
func NewListener(cfg ListenerConfig, logger *slog.Logger) *Listener {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 8
	}
	l := &Listener{
		cfg:      cfg,
		commands: make(chan domain.RouteCommand, cfg.QueueSize),
		logger:   logger.With(slog.String("component", "command_listener")),
	}
	if cfg.DedupTTL > 0 {
		l.dedup = NewDedup(cfg.DedupTTL)
	}
	return l
}

// Commands returns the queue of verified commands.
func (l *Listener) Commands() <-chan domain.RouteCommand {
	return l.commands
}

// Run listens on the configured address until ctx is cancelled. Each
// accepted connection is served on its own goroutine; the command queue
// itself stays strictly ordered through the single channel.
func (l *Listener) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", l.cfg.Addr)
	if err != nil {
		return fmt.Errorf("command: listen %s: %w", l.cfg.Addr, err)
	}
	l.logger.Info("command listener started", slog.String("addr", l.cfg.Addr))
	defer l.logger.Info("command listener stopped")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	if l.dedup != nil {
		go l.sweepDedup(ctx)
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Warn("accept failed", slog.String("error", err.Error()))
			continue
		}
		go l.serve(ctx, conn)
	}
}

// sweepDedup evicts expired signatures on a fixed cadence so the dedup map
// stays bounded over a long-running process.
func (l *Listener) sweepDedup(ctx context.Context) {
	interval := dedupSweepInterval
	if l.cfg.DedupTTL < interval {
		interval = l.cfg.DedupTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.dedup.Cleanup()
		}
	}
}

// serve reads envelopes off one connection until EOF or cancellation.
func (l *Listener) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	peer := conn.RemoteAddr().String()
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 4096), maxLineBytes)

	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		l.handleLine(ctx, peer, sc.Bytes())
	}
	if err := sc.Err(); err != nil {
		l.logger.Debug("connection read ended",
			slog.String("peer", peer),
			slog.String("error", err.Error()),
		)
	}
}

// handleLine parses, authenticates, and queues one envelope. Every failure
// path drops the line; none of them terminates the connection.
func (l *Listener) handleLine(ctx context.Context, peer string, line []byte) {
	log := l.logger.With(slog.String("peer", peer))

	var cmd domain.SignedCommand
	if err := json.Unmarshal(line, &cmd); err != nil {
		log.Warn("malformed envelope dropped", slog.String("error", err.Error()))
		return
	}

	payload, err := Verify(l.cfg.Secret, cmd)
	if err != nil {
		log.Warn("command dropped", slog.String("error", err.Error()))
		return
	}

	if l.cfg.MaxAge > 0 {
		sent := time.Unix(0, int64(payload.Timestamp*float64(time.Second)))
		if age := time.Since(sent); age > l.cfg.MaxAge {
			log.Warn("command dropped",
				slog.String("error", domain.ErrCommandStale.Error()),
				slog.Duration("age", age),
			)
			return
		}
	}

	if l.dedup != nil && l.dedup.IsDuplicate(cmd.Signature) {
		log.Warn("duplicate command dropped", slog.String("route", payload.Route().String()))
		return
	}

	rc := domain.RouteCommand{
		ID:         cmd.Signature[:16],
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	}

	select {
	case l.commands <- rc:
		log.Info("command accepted", slog.String("route", payload.Route().String()))
	case <-ctx.Done():
	default:
		// The capital pool admits one execution at a time; when the queue
		// is full the command is rejected rather than run concurrently.
		log.Warn("command rejected, execution queue full",
			slog.String("route", payload.Route().String()),
		)
	}
}
