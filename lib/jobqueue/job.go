// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

package jobqueue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind is the closed set of job types. The pipeline executor switches
// exhaustively over these values; adding a kind means extending that
// switch, which the default-case error makes impossible to forget.
type Kind int

const (
	// KindUpload encrypts a captured record and uploads it to the
	// content store.
	KindUpload Kind = iota + 1

	// KindAnchor submits a chain-integrity proof to the ledger.
	KindAnchor
)

// String returns the kind's wire name.
func (k Kind) String() string {
	switch k {
	case KindUpload:
		return "upload"
	case KindAnchor:
		return "anchor"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText serializes the kind as its wire name.
func (k Kind) MarshalText() ([]byte, error) {
	switch k {
	case KindUpload, KindAnchor:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("jobqueue: cannot marshal unknown kind %d", int(k))
	}
}

// UnmarshalText parses a kind from its wire name.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "upload":
		*k = KindUpload
	case "anchor":
		*k = KindAnchor
	default:
		return fmt.Errorf("jobqueue: unknown job kind %q", text)
	}
	return nil
}

// Job is one unit of durable work. All fields are persisted; the
// claimed flag is not (a restart releases every claim).
type Job struct {
	// ID is a UUID assigned at enqueue time.
	ID string `json:"id"`

	// Kind selects the executor.
	Kind Kind `json:"kind"`

	// Payload is the kind-specific job body.
	Payload json.RawMessage `json:"payload"`

	// DedupKey, when non-empty, makes enqueue idempotent: a second
	// enqueue with the same key returns the existing job.
	DedupKey string `json:"dedupKey,omitempty"`

	// Attempts counts executions so far (successful claim followed
	// by Fail or Abandon).
	Attempts int `json:"attempts"`

	// MaxAttempts is the attempt budget. Once Attempts reaches it
	// the job is abandoned.
	MaxAttempts int `json:"maxAttempts"`

	// NextEligibleAt rate-limits retries; ClaimNext skips the job
	// until this instant.
	NextEligibleAt time.Time `json:"nextEligibleAt"`

	// LastError preserves the most recent failure for operator
	// inspection. Never cleared on abandonment.
	LastError string `json:"lastError,omitempty"`

	// EnqueuedAt records insertion time (FIFO order is positional,
	// this is informational).
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Abandoned reports whether the job has exhausted its attempt budget.
func (j *Job) Abandoned() bool {
	return j.Attempts >= j.MaxAttempts
}
