package exchange

import (
	"context"
	"time"

	"github.com/uhyunpark/simex/pkg/util"
)

// RunMatcher runs a matching pass every interval until ctx is cancelled.
// It always returns a non-nil error (ctx.Err()).
func (e *Exchange) RunMatcher(ctx context.Context, interval time.Duration, clock util.Clock) error {
	if clock == nil {
		clock = util.RealClock{}
	}

	e.logger.Infow("matcher_started", "interval", interval)
	passes := 0
	for {
		select {
		case <-ctx.Done():
			e.logger.Infow("matcher_stopped", "passes", passes)
			return ctx.Err()
		case <-clock.After(interval):
			e.RunMatchingPass()
			passes++
		}
	}
}
