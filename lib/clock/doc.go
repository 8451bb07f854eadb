// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability. Production code
// injects [Real]; tests inject [Fake] and drive time explicitly with
// Advance. Every engram component that reads the current time or
// waits (queue eligibility, backoff scheduling, key cache TTL, the
// worker loop's idle poll) takes a Clock instead of calling the time
// package directly.
package clock
