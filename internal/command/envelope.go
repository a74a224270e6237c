// Package command implements the authenticated one-way channel between the
// scanner and the execution engine: HMAC-SHA256 envelopes over a persistent
// TCP connection, one newline-terminated JSON message per command.
package command

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amirgeek/Bot-Arbitraje/internal/domain"
)

// Sign serializes the route into the inner payload, signs the payload bytes
// with the shared secret, and returns the envelope.
func Sign(secret []byte, route domain.Route, at time.Time) (domain.SignedCommand, error) {
	payload := domain.RoutePayload{
		Ruta:      route.Symbols,
		Timestamp: float64(at.UnixNano()) / float64(time.Second),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.SignedCommand{}, fmt.Errorf("command: marshal payload: %w", err)
	}
	return domain.SignedCommand{
		Data:      string(data),
		Signature: hmacSHA256Hex(secret, data),
	}, nil
}

// Verify recomputes the signature over the received data bytes and compares
// it in constant time. On success it returns the decoded payload; any
// mismatch, malformed hex, or wrong-length signature yields
// domain.ErrSignatureInvalid.
func Verify(secret []byte, cmd domain.SignedCommand) (domain.RoutePayload, error) {
	got, err := hex.DecodeString(cmd.Signature)
	if err != nil || len(got) != sha256.Size {
		return domain.RoutePayload{}, domain.ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(cmd.Data))
	if !hmac.Equal(got, mac.Sum(nil)) {
		return domain.RoutePayload{}, domain.ErrSignatureInvalid
	}

	var payload domain.RoutePayload
	if err := json.Unmarshal([]byte(cmd.Data), &payload); err != nil {
		return domain.RoutePayload{}, fmt.Errorf("command: decode payload: %w", err)
	}
	return payload, nil
}

// hmacSHA256Hex computes HMAC-SHA256 of data using key and returns the
// result hex-encoded (64 characters).
func hmacSHA256Hex(key, data []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}
