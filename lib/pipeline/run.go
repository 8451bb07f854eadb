// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"

	"github.com/engram-foundation/engram/lib/fault"
	"github.com/engram-foundation/engram/lib/jobqueue"
)

// Run drives the job queue until ctx is cancelled. Jobs execute
// sequentially: a single worker keeps upload and anchor ordering
// trivially correct, and throughput is bounded by the network calls
// inside the jobs, not by local parallelism. When the queue is empty
// the loop sleeps for the idle poll interval.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		processed, err := o.Step(ctx)
		if err != nil {
			return err
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.clock.After(o.idlePoll):
		}
	}
}

// Step claims and executes at most one job, reporting whether one was
// processed. Job failures are routed to the queue, not returned: only
// queue bookkeeping errors surface here, and those mean the log file
// itself is broken.
func (o *Orchestrator) Step(ctx context.Context) (bool, error) {
	job := o.queue.ClaimNext()
	if job == nil {
		return false, nil
	}

	var jobErr error
	switch job.Kind {
	case jobqueue.KindUpload:
		jobErr = o.ProcessUploadJob(ctx, job)
	case jobqueue.KindAnchor:
		jobErr = o.ProcessAnchorJob(ctx, job)
	default:
		jobErr = fault.Newf(fault.Permanent, "pipeline.run", "unknown job kind %s", job.Kind)
	}

	if jobErr == nil {
		if err := o.queue.Complete(job.ID); err != nil {
			return true, err
		}
		return true, nil
	}

	if fault.Retryable(jobErr) {
		o.logger.Warn("job failed, will retry",
			"job_id", job.ID,
			"kind", job.Kind.String(),
			"attempts", job.Attempts+1,
			"error", jobErr)
		return true, o.queue.Fail(job.ID, jobErr)
	}

	// Permanent, integrity, authentication, and format failures do
	// not improve with retries. Abandon immediately so the job is
	// visible to operators instead of burning its backoff budget.
	o.logger.Error("job abandoned",
		"job_id", job.ID,
		"kind", job.Kind.String(),
		"class", fault.ClassOf(jobErr).String(),
		"error", jobErr)
	return true, o.queue.Abandon(job.ID, jobErr)
}
