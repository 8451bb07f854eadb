// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

package jobqueue

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/engram-foundation/engram/lib/clock"
)

// Defaults applied when Options fields are zero.
const (
	DefaultMaxAttempts = 8
	DefaultBaseBackoff = 5 * time.Second
)

// Options configures a Queue.
type Options struct {
	// Clock supplies time for eligibility checks and backoff
	// scheduling. Required.
	Clock clock.Clock

	// MaxAttempts is the default attempt budget for new jobs.
	MaxAttempts int

	// BaseBackoff is the first retry delay; attempt n waits
	// BaseBackoff·2^(n-1) plus jitter.
	BaseBackoff time.Duration
}

// Queue is the durable job log. One Queue owns its log file
// exclusively; see the package comment for the single-process
// invariant.
//
// Queue is safe for concurrent use within one process.
type Queue struct {
	mu          sync.Mutex
	path        string
	clock       clock.Clock
	maxAttempts int
	baseBackoff time.Duration
	jobs        []*Job          // FIFO, insertion order
	claimed     map[string]bool // in-memory only
	appendFile  *os.File
	rng         *rand.Rand
}

// Open replays the job log at path (creating it if absent) and
// returns a queue ready to claim from, with pending jobs in their
// original insertion order.
func Open(path string, options Options) (*Queue, error) {
	if options.Clock == nil {
		return nil, fmt.Errorf("jobqueue: Clock is required")
	}
	if options.MaxAttempts <= 0 {
		options.MaxAttempts = DefaultMaxAttempts
	}
	if options.BaseBackoff <= 0 {
		options.BaseBackoff = DefaultBaseBackoff
	}

	queue := &Queue{
		path:        path,
		clock:       options.Clock,
		maxAttempts: options.MaxAttempts,
		baseBackoff: options.BaseBackoff,
		claimed:     make(map[string]bool),
		rng:         rand.New(rand.NewSource(options.Clock.Now().UnixNano())),
	}

	if err := queue.replay(); err != nil {
		return nil, err
	}

	appendFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("jobqueue: opening log for append: %w", err)
	}
	queue.appendFile = appendFile
	return queue, nil
}

// Close releases the log file handle. Pending jobs stay in the log.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.appendFile == nil {
		return nil
	}
	err := q.appendFile.Close()
	q.appendFile = nil
	return err
}

// Enqueue appends a new job and syncs the log before returning. If
// dedupKey is non-empty and matches a job already in the log
// (completed jobs are removed, so any match is not-completed), the
// existing job is returned unchanged and nothing is written —
// re-saving identical content creates no duplicate work.
func (q *Queue) Enqueue(kind Kind, payload json.RawMessage, dedupKey string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if dedupKey != "" {
		for _, existing := range q.jobs {
			if existing.DedupKey == dedupKey {
				duplicate := *existing
				return &duplicate, nil
			}
		}
	}

	job := &Job{
		ID:          uuid.NewString(),
		Kind:        kind,
		Payload:     payload,
		DedupKey:    dedupKey,
		MaxAttempts: q.maxAttempts,
		EnqueuedAt:  q.clock.Now(),
	}

	if err := q.appendLocked(job); err != nil {
		return nil, fmt.Errorf("jobqueue: enqueue: %w", err)
	}
	q.jobs = append(q.jobs, job)

	result := *job
	return &result, nil
}

// ClaimNext returns the first claimable job in FIFO insertion order:
// unclaimed, eligible (NextEligibleAt has passed), and with attempt
// budget remaining. Returns nil when nothing is claimable. The claim
// is held until Complete, Fail, or Abandon; claims do not survive a
// restart.
func (q *Queue) ClaimNext() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	for _, job := range q.jobs {
		if q.claimed[job.ID] || job.Abandoned() || now.Before(job.NextEligibleAt) {
			continue
		}
		q.claimed[job.ID] = true
		claimedCopy := *job
		return &claimedCopy
	}
	return nil
}

// Complete removes the job from the log and rewrites it durably.
func (q *Queue) Complete(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	index := q.indexLocked(jobID)
	if index < 0 {
		return fmt.Errorf("jobqueue: complete: unknown job %s", jobID)
	}
	q.jobs = append(q.jobs[:index], q.jobs[index+1:]...)
	delete(q.claimed, jobID)

	if err := q.rewriteLocked(); err != nil {
		return fmt.Errorf("jobqueue: complete %s: %w", jobID, err)
	}
	return nil
}

// Fail records a failed attempt. While budget remains, the job goes
// back to queued with NextEligibleAt pushed out by exponential
// backoff (base·2^(attempts-1) plus up to 25% jitter). Once the
// budget is exhausted the job is abandoned: never claimable again,
// last error preserved for inspection. The log is rewritten durably
// either way.
func (q *Queue) Fail(jobID string, jobErr error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	index := q.indexLocked(jobID)
	if index < 0 {
		return fmt.Errorf("jobqueue: fail: unknown job %s", jobID)
	}
	job := q.jobs[index]

	job.Attempts++
	if jobErr != nil {
		job.LastError = jobErr.Error()
	}
	if !job.Abandoned() {
		backoff := q.baseBackoff << (job.Attempts - 1)
		jitter := time.Duration(q.rng.Int63n(int64(backoff)/4 + 1))
		job.NextEligibleAt = q.clock.Now().Add(backoff + jitter)
	}
	delete(q.claimed, jobID)

	if err := q.rewriteLocked(); err != nil {
		return fmt.Errorf("jobqueue: fail %s: %w", jobID, err)
	}
	return nil
}

// Abandon exhausts the job's attempt budget immediately. The caller
// uses this for failures that retrying cannot fix (integrity,
// authentication, format faults) instead of burning the budget one
// backoff at a time.
func (q *Queue) Abandon(jobID string, jobErr error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	index := q.indexLocked(jobID)
	if index < 0 {
		return fmt.Errorf("jobqueue: abandon: unknown job %s", jobID)
	}
	job := q.jobs[index]

	job.Attempts = job.MaxAttempts
	if jobErr != nil {
		job.LastError = jobErr.Error()
	}
	delete(q.claimed, jobID)

	if err := q.rewriteLocked(); err != nil {
		return fmt.Errorf("jobqueue: abandon %s: %w", jobID, err)
	}
	return nil
}

// Abandoned returns the jobs that have exhausted their attempt
// budget, in insertion order, for operator inspection and replay.
func (q *Queue) Abandoned() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	var abandoned []*Job
	for _, job := range q.jobs {
		if job.Abandoned() {
			jobCopy := *job
			abandoned = append(abandoned, &jobCopy)
		}
	}
	return abandoned
}

// Len returns the number of jobs in the log, abandoned included.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *Queue) indexLocked(jobID string) int {
	for index, job := range q.jobs {
		if job.ID == jobID {
			return index
		}
	}
	return -1
}

// replay loads the log file in order. Missing file means empty queue.
func (q *Queue) replay() error {
	file, err := os.Open(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("jobqueue: opening log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var job Job
		if err := json.Unmarshal(line, &job); err != nil {
			return fmt.Errorf("jobqueue: log line %d is corrupt: %w", lineNumber, err)
		}
		q.jobs = append(q.jobs, &job)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("jobqueue: reading log: %w", err)
	}
	return nil
}

// appendLocked writes one job line and syncs.
func (q *Queue) appendLocked(job *Job) error {
	line, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}
	line = append(line, '\n')
	if _, err := q.appendFile.Write(line); err != nil {
		return fmt.Errorf("appending to log: %w", err)
	}
	if err := q.appendFile.Sync(); err != nil {
		return fmt.Errorf("syncing log: %w", err)
	}
	return nil
}

// rewriteLocked atomically replaces the log with the current job set
// and reopens the append handle.
func (q *Queue) rewriteLocked() error {
	directory := filepath.Dir(q.path)
	temp, err := os.CreateTemp(directory, ".jobs-*")
	if err != nil {
		return fmt.Errorf("creating temp log: %w", err)
	}
	tempPath := temp.Name()
	defer os.Remove(tempPath)

	writer := bufio.NewWriter(temp)
	for _, job := range q.jobs {
		line, err := json.Marshal(job)
		if err != nil {
			temp.Close()
			return fmt.Errorf("encoding job %s: %w", job.ID, err)
		}
		if _, err := writer.Write(append(line, '\n')); err != nil {
			temp.Close()
			return fmt.Errorf("writing temp log: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		temp.Close()
		return fmt.Errorf("flushing temp log: %w", err)
	}
	if err := temp.Sync(); err != nil {
		temp.Close()
		return fmt.Errorf("syncing temp log: %w", err)
	}
	if err := temp.Close(); err != nil {
		return fmt.Errorf("closing temp log: %w", err)
	}
	if err := os.Rename(tempPath, q.path); err != nil {
		return fmt.Errorf("renaming temp log: %w", err)
	}

	if q.appendFile != nil {
		q.appendFile.Close()
	}
	appendFile, err := os.OpenFile(q.path, os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("reopening log for append: %w", err)
	}
	q.appendFile = appendFile
	return nil
}
