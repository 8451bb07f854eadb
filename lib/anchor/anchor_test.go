// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

package anchor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/engram-foundation/engram/lib/chain"
	"github.com/engram-foundation/engram/lib/fault"
	"github.com/engram-foundation/engram/lib/memcrypt"
	"github.com/engram-foundation/engram/lib/streamstate"
)

func TestShouldAnchor(t *testing.T) {
	now := time.Date(2026, 2, 18, 15, 30, 0, 0, time.UTC)
	tests := []struct {
		name   string
		policy Policy
		state  streamstate.State
		want   bool
	}{
		{"disabled never anchors", PolicyDisabled, streamstate.State{}, false},
		{"every record always anchors", PolicyEveryRecord, streamstate.State{LastAnchorDate: "2026-02-18"}, true},
		{"daily with no prior anchor", PolicyDaily, streamstate.State{}, true},
		{"daily anchored yesterday", PolicyDaily, streamstate.State{LastAnchorDate: "2026-02-17"}, true},
		{"daily already anchored today", PolicyDaily, streamstate.State{LastAnchorDate: "2026-02-18"}, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := ShouldAnchor(test.state, test.policy, now)
			if got != test.want {
				t.Errorf("ShouldAnchor = %v, want %v", got, test.want)
			}
		})
	}
}

func TestShouldAnchorUsesCalendarDateNotWindow(t *testing.T) {
	// Anchored at 23:59; one minute later is a new calendar day and
	// a new anchor is due, even though 24 hours have not passed.
	state := streamstate.State{LastAnchorDate: "2026-02-18"}
	justAfterMidnight := time.Date(2026, 2, 19, 0, 0, 30, 0, time.UTC)
	if !ShouldAnchor(state, PolicyDaily, justAfterMidnight) {
		t.Error("new calendar day did not trigger a daily anchor")
	}
}

func TestDateOfNormalizesToUTC(t *testing.T) {
	// 23:00 in UTC-5 is 04:00 the next day in UTC.
	eastern := time.FixedZone("UTC-5", -5*60*60)
	instant := time.Date(2026, 2, 18, 23, 0, 0, 0, eastern)
	if got := DateOf(instant); got != "2026-02-19" {
		t.Errorf("DateOf = %q, want 2026-02-19", got)
	}
}

func TestBuildPayloadRoundTrip(t *testing.T) {
	original := Payload{
		Date:         "2026-02-18",
		Pointer:      chain.Pointer("mem/alice/agent-1/2026-02-18/abc123"),
		ContentHash:  memcrypt.Hash([]byte("record body")),
		PreviousHash: memcrypt.Hash([]byte("previous body")),
	}
	encoded := BuildPayload(original)
	if !strings.HasPrefix(encoded, "engram|1|2026-02-18|") {
		t.Fatalf("payload prefix wrong: %s", encoded)
	}

	decoded, err := ParsePayload(encoded)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if decoded != original {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", decoded, original)
	}
}

func TestBuildPayloadHeadUsesNull(t *testing.T) {
	payload := Payload{
		Date:        "2026-02-18",
		Pointer:     chain.Pointer("ptr"),
		ContentHash: memcrypt.Hash([]byte("first record")),
	}
	encoded := BuildPayload(payload)
	if !strings.HasSuffix(encoded, "|null") {
		t.Errorf("head anchor payload = %s, want null previous", encoded)
	}

	decoded, err := ParsePayload(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if !decoded.PreviousHash.IsZero() {
		t.Errorf("decoded previous hash = %s, want zero", decoded.PreviousHash)
	}
}

func TestParsePayloadRejectsMalformed(t *testing.T) {
	for _, encoded := range []string{
		"",
		"engram|1|2026-02-18",
		"other|1|2026-02-18|ptr|deadbeef|null",
		"engram|2|2026-02-18|ptr|deadbeef|null",
		"engram|1|2026-02-18|ptr|nothex|null",
	} {
		if _, err := ParsePayload(encoded); err == nil {
			t.Errorf("ParsePayload(%q) accepted malformed payload", encoded)
		}
	}
}

func TestHTTPClientSubmit(t *testing.T) {
	var received submitRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/anchors" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decoding submit body: %v", err)
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Receipt{
			ID:       "rcpt-42",
			Sequence: 42,
			Time:     time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC),
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 0)
	receipt, err := client.Submit(context.Background(), "engram|1|2026-02-18|ptr|hash|null", "abcd1234")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if receipt.ID != "rcpt-42" || receipt.Sequence != 42 {
		t.Errorf("receipt = %+v", receipt)
	}
	if received.Payload != "engram|1|2026-02-18|ptr|hash|null" {
		t.Errorf("server received payload %q", received.Payload)
	}
	if received.Identity != "abcd1234" {
		t.Errorf("server received identity %q", received.Identity)
	}
}

func TestHTTPClientSubmitFaultClasses(t *testing.T) {
	tests := []struct {
		status int
		want   fault.Class
	}{
		{http.StatusInternalServerError, fault.Transient},
		{http.StatusTooManyRequests, fault.Transient},
		{http.StatusBadRequest, fault.Permanent},
		{http.StatusForbidden, fault.Permanent},
	}
	for _, test := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(test.status)
		}))
		client := NewHTTPClient(server.URL, 0)
		_, err := client.Submit(context.Background(), "payload", "identity")
		server.Close()
		if err == nil {
			t.Errorf("status %d: Submit succeeded", test.status)
			continue
		}
		if got := fault.ClassOf(err); got != test.want {
			t.Errorf("status %d: class = %s, want %s", test.status, got, test.want)
		}
	}
}

func TestHTTPClientSubmitTransportFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	client := NewHTTPClient(server.URL, 0)
	_, err := client.Submit(context.Background(), "payload", "identity")
	if err == nil {
		t.Fatal("Submit to closed server succeeded")
	}
	if !fault.Retryable(err) {
		t.Errorf("transport failure not retryable: %v", err)
	}
}

func TestHTTPClientVerify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/anchors/rcpt-42" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(entryResponse{
			Receipt: Receipt{ID: "rcpt-42", Sequence: 42},
			Payload: "the-anchored-payload",
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 0)

	verification, err := client.Verify(context.Background(), "rcpt-42", "the-anchored-payload")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !verification.Valid {
		t.Error("Valid = false for matching payload")
	}

	verification, err = client.Verify(context.Background(), "rcpt-42", "a-different-payload")
	if err != nil {
		t.Fatal(err)
	}
	if verification.Valid {
		t.Error("Valid = true for mismatched payload")
	}
	if verification.Payload != "the-anchored-payload" {
		t.Errorf("Payload = %q, want the ledger's actual entry", verification.Payload)
	}

	_, err = client.Verify(context.Background(), "rcpt-missing", "payload")
	if err == nil {
		t.Fatal("Verify of unknown receipt succeeded")
	}
	if fault.ClassOf(err) != fault.Permanent {
		t.Errorf("404 class = %s, want permanent", fault.ClassOf(err))
	}
}
