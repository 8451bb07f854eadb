// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

package anchor

import (
	"fmt"
	"time"

	"github.com/engram-foundation/engram/lib/streamstate"
)

// dateLayout is the UTC calendar-date form stored in stream state and
// embedded in anchor payloads.
const dateLayout = "2006-01-02"

// Policy controls how often a stream's chain head is anchored to the
// ledger.
type Policy int

const (
	// PolicyDisabled never anchors.
	PolicyDisabled Policy = iota

	// PolicyEveryRecord anchors after every successful upload.
	PolicyEveryRecord

	// PolicyDaily anchors at most once per UTC calendar day per
	// stream, on the first upload of that day.
	PolicyDaily
)

// String returns the policy's configuration name.
func (p Policy) String() string {
	switch p {
	case PolicyDisabled:
		return "disabled"
	case PolicyEveryRecord:
		return "every_record"
	case PolicyDaily:
		return "daily"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// MarshalText serializes the policy as its configuration name.
func (p Policy) MarshalText() ([]byte, error) {
	switch p {
	case PolicyDisabled, PolicyEveryRecord, PolicyDaily:
		return []byte(p.String()), nil
	default:
		return nil, fmt.Errorf("anchor: cannot marshal unknown policy %d", int(p))
	}
}

// UnmarshalText parses a policy from its configuration name.
func (p *Policy) UnmarshalText(text []byte) error {
	switch string(text) {
	case "disabled":
		*p = PolicyDisabled
	case "every_record":
		*p = PolicyEveryRecord
	case "daily":
		*p = PolicyDaily
	default:
		return fmt.Errorf("anchor: unknown anchor policy %q", text)
	}
	return nil
}

// DateOf formats an instant as the UTC calendar date used for anchor
// scheduling and dedup keys.
func DateOf(instant time.Time) string {
	return instant.UTC().Format(dateLayout)
}

// ShouldAnchor reports whether a stream in the given state needs an
// anchor under the policy at the given instant. Daily comparison is by
// UTC calendar date, not a 24-hour window: a stream anchored at 23:59
// is due again at 00:00.
func ShouldAnchor(state streamstate.State, policy Policy, now time.Time) bool {
	switch policy {
	case PolicyEveryRecord:
		return true
	case PolicyDaily:
		return state.LastAnchorDate != DateOf(now)
	default:
		return false
	}
}
