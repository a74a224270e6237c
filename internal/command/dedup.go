package command

import (
	"sync"
	"time"
)

// Dedup rejects commands whose envelope signature was already accepted
// within a time-to-live window. The channel carries no replay protection on
// the wire, so this guard keeps a captured-and-resent valid envelope from
// running twice. Safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time
	ttl  time.Duration
	mu   sync.Mutex
}

// NewDedup creates a Dedup that considers a command a duplicate when its
// signature was seen within ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// IsDuplicate returns true when the signature was seen within the TTL
// window. A fresh (or expired) signature is recorded and false is returned.
func (d *Dedup) IsDuplicate(signature string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if last, ok := d.seen[signature]; ok && now.Sub(last) < d.ttl {
		return true
	}
	d.seen[signature] = now
	return false
}

// Cleanup drops entries older than the TTL. Call periodically to bound the
// map.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for sig, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, sig)
		}
	}
}
