// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

// Package jobqueue implements the durable job log that carries every
// record through the upload and anchor stages.
//
// The log is one JSON job per line, append-only. Enqueue appends and
// syncs; completion and failure rewrite the whole file atomically.
// On startup the log is replayed in file order, so jobs survive
// crashes and are claimed again in their original FIFO order.
//
// Job lifecycle: queued → claimed → completed | queued(retry) |
// abandoned. Claims are in-memory only — a crash releases every
// claim, which is exactly the at-least-once behavior the pipeline
// wants. Failure applies bounded exponential backoff with jitter;
// once attempts reach the budget the job is abandoned: never claimed
// again, but retained in the log with its last error so an operator
// can inspect and replay it. Nothing is silently dropped.
//
// The queue does not look inside errors: whether a failure is worth
// retrying is the caller's decision ([Queue.Fail] for backoff,
// [Queue.Abandon] to give up immediately).
package jobqueue
