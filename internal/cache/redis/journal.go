package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/amirgeek/Bot-Arbitraje/internal/domain"
)

// journalStream is the capped stream of emitted opportunities.
const journalStream = "arbot:opportunities"

// journalMaxLen is the approximate maximum stream length, enforced via
// XADD MAXLEN ~.
const journalMaxLen int64 = 10000

// Journal implements domain.OpportunityJournal on a Redis stream. Entries
// are flat field maps so they stay readable from redis-cli.
type Journal struct {
	rdb *redis.Client
}

// NewJournal creates a Journal backed by the given Client.
func NewJournal(c *Client) *Journal {
	return &Journal{rdb: c.Underlying()}
}

// Append records one opportunity. Failures are the caller's to log; the
// scanner treats the journal as best-effort.
func (j *Journal) Append(ctx context.Context, opp domain.Opportunity) error {
	err := j.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: journalStream,
		MaxLen: journalMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"id":          opp.ID,
			"route":       strings.Join(opp.Route.Symbols[:], ">"),
			"fast_roi":    opp.FastROI.String(),
			"net_roi":     opp.NetROI.String(),
			"detected_at": opp.DetectedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: journal append: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.OpportunityJournal = (*Journal)(nil)
