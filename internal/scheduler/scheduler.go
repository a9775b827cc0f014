package scheduler

import (
	"context"
	"time"
)

// IntervalScheduler runs a job on a fixed interval, passing the tick time
// so the job's logic stays independent of the wall clock.
type IntervalScheduler struct {
	interval time.Duration
	stop     chan struct{}
}

func NewIntervalScheduler(interval time.Duration) *IntervalScheduler {
	return &IntervalScheduler{interval: interval}
}

// Start begins ticking. The job runs once immediately, then once per
// interval until the context is canceled or Stop is called.
func (s *IntervalScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}
	if s.stop != nil {
		return nil
	}
	s.stop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		job(time.Now())
		for {
			select {
			case t := <-ticker.C:
				job(t)
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			}
		}
	}()
	return nil
}

// Stop halts the ticker goroutine.
func (s *IntervalScheduler) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	s.stop = nil
}
