// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

// Package streamstate persists each stream's chain position: the
// pointer and content hash of the newest uploaded record, and the
// calendar date of the last anchor.
//
// The store is the single source of truth the orchestrator reads
// before extending a chain, so every mutation is durable before Set
// returns — a crash immediately after a confirmed upload can never
// lose the pointer that upload produced. State only advances; there
// is no delete.
//
// Two implementations share the [Store] interface: [FileStore] keeps
// everything in one JSON file rewritten atomically per mutation
// (adequate at the scale of one daemon), and [SQLiteStore] offers the
// same contract on an embedded database for deployments that want
// transactional durability. Callers cannot tell them apart.
//
// A store belongs to exactly one running orchestrator. Two processes
// sharing one storage path is an operational invariant violation, not
// a handled case.
package streamstate
