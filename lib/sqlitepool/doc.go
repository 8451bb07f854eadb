// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides a fixed-size SQLite connection pool with
// engram-standard pragmas (WAL journaling, NORMAL synchronous, busy
// timeout). The SQLite stream-state store runs on it; the pool exists
// as its own package so any future embedded-store swap-in (queue
// compaction, index tables) reuses one pragma configuration.
package sqlitepool
