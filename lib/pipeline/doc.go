// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline wires capture, encryption, upload, and anchoring
// into the durable save path.
//
// Save is deliberately tiny: it builds the record, hashes it, and
// enqueues a durable upload job. Everything that can fail for external
// reasons (the store, the ledger) happens inside job executors driven
// by Run, where the queue's retry and abandonment machinery applies.
// State only ever advances when an external operation has succeeded,
// so a crash at any point leaves either the old state with a pending
// job or the new state with the job completed.
//
// One pipeline instance owns its state store, queue file, and key
// cache exclusively. Running two daemons against the same data
// directory corrupts chain order; process-level locking is the
// deployment's responsibility.
package pipeline
