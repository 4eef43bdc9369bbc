// Package jobs runs periodic background work.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/nexus/core"
)

type Job func(ctx context.Context) error

type Runner struct {
	ctx    context.Context
	logger core.Logger
	wg     sync.WaitGroup
}

// New returns a Runner whose jobs stop when ctx is done.
func New(ctx context.Context, logger core.Logger) *Runner {
	return &Runner{ctx: ctx, logger: logger}
}

// Every runs fn every interval until the runner's context is done.
func (r *Runner) Every(interval time.Duration, name string, fn Job) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-t.C:
				if err := r.Run(name, fn); err != nil {
					r.logger.Error("job failed", err, map[string]interface{}{"job": name})
				}
			}
		}
	}()
}

// Run runs fn once, recording its metrics. A panic is turned into an error.
func (r *Runner) Run(name string, fn Job) (err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Errorf("panic in job %s: %v", name, rec)
		}
		if err != nil {
			jobErrors.WithLabelValues(name).Inc()
		}
		jobRuns.WithLabelValues(name).Inc()
		jobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()
	return fn(r.ctx)
}

// Wait blocks until every job has stopped.
func (r *Runner) Wait() {
	r.wg.Wait()
}
