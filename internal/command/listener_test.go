package command

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/amirgeek/Bot-Arbitraje/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startListener runs a Listener on an ephemeral port and returns its
// address and command channel.
func startListener(t *testing.T, cfg ListenerConfig) (string, <-chan domain.RouteCommand) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	cfg.Addr = addr
	l := NewListener(cfg, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = l.Run(ctx) }()

	// Wait until the listener accepts connections.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			_ = conn.Close()
			return addr, l.Commands()
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("listener never came up on %s", addr)
	return "", nil
}

func TestListener_DeliversSignedCommand(t *testing.T) {
	secret := []byte("channel-secret")
	addr, commands := startListener(t, ListenerConfig{Secret: secret})

	sender := NewSender(addr, secret, discardLogger())
	defer sender.Close()

	if err := sender.Send(context.Background(), testRoute); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case rc := <-commands:
		if rc.Payload.Ruta != testRoute.Symbols {
			t.Errorf("route = %v, want %v", rc.Payload.Ruta, testRoute.Symbols)
		}
		if rc.ID == "" {
			t.Error("command ID is empty")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command never delivered")
	}
}

func TestListener_DropsTamperedEnvelope(t *testing.T) {
	secret := []byte("channel-secret")
	addr, commands := startListener(t, ListenerConfig{Secret: secret})

	cmd, err := Sign(secret, testRoute, time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	// Valid JSON, valid-length signature, wrong content.
	cmd.Data = `{"ruta":["EVIL/USDT","EVIL/ETH","ETH/USDT"],"timestamp":1.0}`

	line, _ := json.Marshal(cmd)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write(append(line, '\n')); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case rc := <-commands:
		t.Fatalf("tampered command delivered: %+v", rc)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestListener_SuppressesReplay(t *testing.T) {
	secret := []byte("channel-secret")
	addr, commands := startListener(t, ListenerConfig{
		Secret:   secret,
		DedupTTL: time.Minute,
	})

	cmd, err := Sign(secret, testRoute, time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	line, _ := json.Marshal(cmd)
	line = append(line, '\n')

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write(append(append([]byte{}, line...), line...)); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := 0
	timeout := time.After(time.Second)
	for {
		select {
		case <-commands:
			got++
		case <-timeout:
			if got != 1 {
				t.Fatalf("delivered %d commands, want exactly 1", got)
			}
			return
		}
	}
}

func TestListener_EvictsExpiredSignatures(t *testing.T) {
	secret := []byte("channel-secret")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	l := NewListener(ListenerConfig{
		Addr:     addr,
		Secret:   secret,
		DedupTTL: 25 * time.Millisecond,
	}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = l.Run(ctx) }()

	cmd, err := Sign(secret, testRoute, time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	line, _ := json.Marshal(cmd)
	line = append(line, '\n')

	var conn net.Conn
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("listener never came up on %s", addr)
		}
		time.Sleep(10 * time.Millisecond)
	}
	defer conn.Close()
	if _, err := conn.Write(line); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-l.Commands():
	case <-time.After(2 * time.Second):
		t.Fatal("command never delivered")
	}

	// The accepted signature expires after the TTL; the sweep must remove
	// it without any further traffic.
	deadline = time.Now().Add(2 * time.Second)
	for {
		l.dedup.mu.Lock()
		n := len(l.dedup.seen)
		l.dedup.mu.Unlock()
		if n == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("%d expired signatures still recorded", n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestListener_DropsStaleCommand(t *testing.T) {
	secret := []byte("channel-secret")
	addr, commands := startListener(t, ListenerConfig{
		Secret: secret,
		MaxAge: time.Second,
	})

	cmd, err := Sign(secret, testRoute, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	line, _ := json.Marshal(cmd)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write(append(line, '\n')); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case rc := <-commands:
		t.Fatalf("stale command delivered: %+v", rc)
	case <-time.After(300 * time.Millisecond):
	}
}
