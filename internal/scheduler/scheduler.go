// Package scheduler runs cooperative background loops: proposal
// auto-close, auction deadline sweep, validator rotation, execution-log
// journaling, reputation decay, common-tool maintenance, and the health
// monitor. It has no peer-manager heartbeat, pub/sub heartbeat or
// digest-sync loop.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LoopFunc is one tick of a cooperative background loop.
type LoopFunc func(ctx context.Context) error

// Scheduler owns a set of named, independently-periodic loops sharing
// one cancellation signal (spec §5 "multi-threaded with cooperative
// task loops per subsystem").
type Scheduler struct {
	log    *logrus.Entry
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs an empty Scheduler.
func New(log *logrus.Entry) *Scheduler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Scheduler{log: log.WithField("component", "scheduler")}
}

// Register starts a goroutine that calls fn every period until the
// scheduler is stopped, logging (not panicking on) per-tick errors so
// one failing loop never halts the others.
func (s *Scheduler) Register(ctx context.Context, name string, period time.Duration, fn LoopFunc) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					s.log.WithError(err).WithField("loop", name).Warn("loop tick failed")
				}
			}
		}
	}()
}

// Wait blocks until every registered loop has returned, which happens
// once Stop is called or the loops' context is cancelled.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// WithCancel returns a child context whose cancellation is also
// Scheduler.Stop's signal, so callers can Register loops against it.
func (s *Scheduler) WithCancel(ctx context.Context) context.Context {
	child, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	return child
}

// Stop cancels every registered loop's context and waits for them to
// return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}
