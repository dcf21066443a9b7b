package llm

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/chadiek/aura-companion/internal/i18n"
	"github.com/chadiek/aura-companion/internal/session"
)

// DefaultCannedDelay is the pause before a canned reply.
const DefaultCannedDelay = 1500 * time.Millisecond

// CannedReplier answers with one of the stock responses after a fixed delay.
type CannedReplier struct {
	Delay time.Duration
	// Pick chooses an index in [0, n); defaults to a uniform random pick.
	Pick func(n int) int
}

var _ session.Replier = (*CannedReplier)(nil)

func NewCannedReplier(delay time.Duration) *CannedReplier {
	return &CannedReplier{Delay: delay}
}

func (c *CannedReplier) Reply(ctx context.Context, req session.ReplyRequest) (string, error) {
	if c.Delay > 0 {
		t := time.NewTimer(c.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}
	pick := c.Pick
	if pick == nil {
		pick = rand.IntN
	}
	key := i18n.Responses[pick(len(i18n.Responses))]
	return i18n.T(req.Settings.Language, key), nil
}
