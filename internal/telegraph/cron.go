package telegraph

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// schedule is a parsed cron expression.
type schedule struct {
	expr  string
	sched cron.Schedule
}

func parseSchedule(expr string) (*schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("telegraph: cron %q: %w", expr, err)
	}
	return &schedule{expr: expr, sched: sched}, nil
}

// until returns the wait from now to the next fire time, never negative.
func (s *schedule) until(now time.Time) time.Duration {
	d := s.sched.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// run calls fn at every fire time until ctx is done. after supplies the
// timer so tests can fire it by hand.
func (s *schedule) run(ctx context.Context, now func() time.Time, after func(time.Duration) <-chan time.Time, fn func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-after(s.until(now())):
			fn()
		}
	}
}
