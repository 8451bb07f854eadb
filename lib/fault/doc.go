// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

// Package fault classifies errors crossing the persistence pipeline.
//
// Every failure that influences retry behavior is wrapped in a
// [*Error] carrying a [Class]:
//
//   - [Transient]: timeouts, 5xx, 429 — worth retrying with backoff.
//   - [Permanent]: malformed requests, other 4xx — retrying will not
//     help.
//   - [Integrity]: hash, checksum, or chain mismatch — never retried,
//     surfaced as a data-integrity finding.
//   - [Authentication]: AEAD tag failure — never retried.
//   - [Format]: unrecognized envelope version or algorithm — never
//     retried.
//
// The durable queue itself is policy-free; the orchestrator consults
// [Retryable] when deciding between backoff and immediate abandonment.
// Callers classify with errors.As:
//
//	var f *fault.Error
//	if errors.As(err, &f) && f.Class == fault.Integrity { ... }
//
// or the [ClassOf] shorthand. Unwrapped errors classify as Permanent:
// retrying an unknown failure burns attempt budget against an error
// that was never marked safe to retry.
package fault
