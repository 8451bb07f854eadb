// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

func TestMapEncodingIsKeyOrderIndependent(t *testing.T) {
	// Go map iteration order is randomized, so repeated encoding of
	// the same map exercises different insertion/iteration orders.
	value := map[string]any{"alpha": 1, "beta": 2, "gamma": []any{"x", "y"}}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 50; i++ {
		again, err := Marshal(map[string]any{"gamma": []any{"x", "y"}, "beta": 2, "alpha": 1})
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding differs across key orders:\n%x\n%x", first, again)
		}
	}
}

func TestNestedStructuresEncodeIdentically(t *testing.T) {
	a := map[string]any{
		"outer": map[string]any{"b": 2, "a": 1},
		"list":  []any{map[string]any{"z": 1, "y": 2}},
	}
	b := map[string]any{
		"list":  []any{map[string]any{"y": 2, "z": 1}},
		"outer": map[string]any{"a": 1, "b": 2},
	}

	encodedA, err := Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	encodedB, err := Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(encodedA, encodedB) {
		t.Errorf("structurally equal nested values encode differently:\n%x\n%x", encodedA, encodedB)
	}
}

func TestRoundTrip(t *testing.T) {
	type payload struct {
		Text  string         `cbor:"text"`
		Count int            `cbor:"count"`
		Tags  []string       `cbor:"tags"`
		Meta  map[string]any `cbor:"meta"`
	}
	original := payload{
		Text:  "hello",
		Count: 3,
		Tags:  []string{"a", "b"},
		Meta:  map[string]any{"k": "v"},
	}

	encoded, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded payload
	if err := Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Text != original.Text || decoded.Count != original.Count {
		t.Errorf("round trip mismatch: %+v != %+v", decoded, original)
	}
	if len(decoded.Tags) != 2 || decoded.Tags[0] != "a" {
		t.Errorf("tags round trip mismatch: %v", decoded.Tags)
	}
	if decoded.Meta["k"] != "v" {
		t.Errorf("meta round trip mismatch: %v", decoded.Meta)
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	encoded, err := Marshal(map[string]any{"known": "x", "unknown": 42})
	if err != nil {
		t.Fatal(err)
	}
	var target struct {
		Known string `cbor:"known"`
	}
	if err := Unmarshal(encoded, &target); err != nil {
		t.Fatalf("Unmarshal with unknown field: %v", err)
	}
	if target.Known != "x" {
		t.Errorf("Known = %q, want %q", target.Known, "x")
	}
}
