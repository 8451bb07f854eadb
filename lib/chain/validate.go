// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

package chain

import "fmt"

// Condition names a chain-link rule that a record pair can violate.
type Condition string

const (
	// ConditionPrevPointer: current.ChainPrev must equal the
	// predecessor's assigned pointer.
	ConditionPrevPointer Condition = "prev_pointer"

	// ConditionPrevHash: current.ChainPrevHash must equal the
	// predecessor's content hash.
	ConditionPrevHash Condition = "prev_hash"

	// ConditionStreamMatch: both records must belong to the same
	// stream.
	ConditionStreamMatch Condition = "stream_match"

	// ConditionTimeOrder: current.CreatedAt must not precede the
	// predecessor's CreatedAt.
	ConditionTimeOrder Condition = "time_order"

	// ConditionHeadHasNoPrev: a record with no predecessor must not
	// carry a chain-prev pointer or hash.
	ConditionHeadHasNoPrev Condition = "head_has_no_prev"
)

// Violation describes one failed chain condition with enough context
// for an operator to locate the damage.
type Violation struct {
	Condition Condition
	Detail    string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Condition, v.Detail)
}

// Validate decides whether current correctly extends previous.
// With previous == nil, current must be a chain head (no prev pointer
// or hash). Returns every violated condition, not just the first.
func Validate(current, previous *Record) []Violation {
	var violations []Violation

	if previous == nil {
		if current.ChainPrev != "" {
			violations = append(violations, Violation{
				Condition: ConditionHeadHasNoPrev,
				Detail:    fmt.Sprintf("chain head carries prev pointer %q", current.ChainPrev),
			})
		}
		if !current.ChainPrevHash.IsZero() {
			violations = append(violations, Violation{
				Condition: ConditionHeadHasNoPrev,
				Detail:    fmt.Sprintf("chain head carries prev hash %s", current.ChainPrevHash),
			})
		}
		return violations
	}

	if current.ChainPrev != previous.StorePointer {
		violations = append(violations, Violation{
			Condition: ConditionPrevPointer,
			Detail:    fmt.Sprintf("prev pointer %q does not match predecessor pointer %q", current.ChainPrev, previous.StorePointer),
		})
	}
	if current.ChainPrevHash != previous.ContentHash {
		violations = append(violations, Violation{
			Condition: ConditionPrevHash,
			Detail:    fmt.Sprintf("prev hash %s does not match predecessor content hash %s", current.ChainPrevHash, previous.ContentHash),
		})
	}
	if current.StreamID != previous.StreamID {
		violations = append(violations, Violation{
			Condition: ConditionStreamMatch,
			Detail:    fmt.Sprintf("stream %q does not match predecessor stream %q", current.StreamID, previous.StreamID),
		})
	}
	if current.CreatedAt.Before(previous.CreatedAt) {
		violations = append(violations, Violation{
			Condition: ConditionTimeOrder,
			Detail:    fmt.Sprintf("created %s before predecessor %s", current.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), previous.CreatedAt.Format("2006-01-02T15:04:05Z07:00")),
		})
	}
	return violations
}

// Break reports all violated conditions at one position in a chain
// walk. Index is the position of the offending record in the input
// slice.
type Break struct {
	Index      int
	Violations []Violation
}

// VerifyChainIntegrity walks orderedRecords from head to tail and
// reports every break in one pass. Record 0 is validated as a chain
// head; each subsequent record is validated against its predecessor.
// An empty or single-valid-record chain yields no breaks.
func VerifyChainIntegrity(orderedRecords []*Record) []Break {
	var breaks []Break
	var previous *Record
	for index, record := range orderedRecords {
		if violations := Validate(record, previous); len(violations) > 0 {
			breaks = append(breaks, Break{Index: index, Violations: violations})
		}
		previous = record
	}
	return breaks
}
