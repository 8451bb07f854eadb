// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/engram-foundation/engram/lib/fault"
)

// Client timeouts and limits.
const (
	// clientRequestTimeout bounds a single ledger round trip. The
	// ledger is append-only and cheap to serve; anything slower than
	// this is treated as a transient failure and retried by the queue.
	clientRequestTimeout = 30 * time.Second

	// defaultSubmitRate caps ledger submissions per second. Anchoring
	// is at most once per stream per day under the daily policy, so
	// this only matters for every-record policies and backfills.
	defaultSubmitRate = 5
)

// Receipt is the ledger's acknowledgement of an anchor submission. The
// sequence number is the ledger's own total order and is what makes an
// anchor independently verifiable later.
type Receipt struct {
	ID       string    `json:"id"`
	Sequence int64     `json:"sequence"`
	Time     time.Time `json:"time"`
}

// Verification is the result of checking a ledger entry against an
// expected payload. Payload is what the ledger actually holds, which
// on mismatch is the evidence an operator needs.
type Verification struct {
	Valid   bool
	Payload string
}

// Client submits anchor payloads to a ledger and verifies previously
// submitted ones.
type Client interface {
	// Submit appends the payload to the ledger under the given
	// signing identity and returns its receipt. Submission is not
	// idempotent at this layer; the job queue's dedup key prevents
	// duplicate submissions for the same stream and day.
	Submit(ctx context.Context, payload string, identity string) (*Receipt, error)

	// Verify fetches the ledger entry for receiptID and compares it
	// against the expected payload.
	Verify(ctx context.Context, receiptID string, expected string) (*Verification, error)
}

// HTTPClient talks to a ledger over its HTTP API.
type HTTPClient struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPClient creates a ledger client for the given base endpoint
// (scheme and host, no trailing slash). submitRate caps requests per
// second; zero applies the default.
func NewHTTPClient(endpoint string, submitRate float64) *HTTPClient {
	if submitRate <= 0 {
		submitRate = defaultSubmitRate
	}
	return &HTTPClient{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: clientRequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(submitRate), 1),
	}
}

type submitRequest struct {
	Payload  string `json:"payload"`
	Identity string `json:"identity"`
}

type entryResponse struct {
	Receipt
	Payload string `json:"payload"`
}

// Submit implements [Client].
func (c *HTTPClient) Submit(ctx context.Context, payload string, identity string) (*Receipt, error) {
	const op = "anchor.submit"

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fault.FromTransport(op, err)
	}

	body, err := json.Marshal(submitRequest{Payload: payload, Identity: identity})
	if err != nil {
		return nil, fault.New(fault.Permanent, op, err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/anchors", bytes.NewReader(body))
	if err != nil {
		return nil, fault.New(fault.Permanent, op, err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fault.FromTransport(op, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusCreated {
		io.Copy(io.Discard, io.LimitReader(response.Body, 4096))
		return nil, fault.FromHTTPStatus(op, response.StatusCode)
	}

	var receipt Receipt
	if err := json.NewDecoder(response.Body).Decode(&receipt); err != nil {
		return nil, fault.Newf(fault.Format, op, "decoding receipt: %v", err)
	}
	if receipt.ID == "" {
		return nil, fault.Newf(fault.Format, op, "ledger returned receipt without id")
	}
	return &receipt, nil
}

// Verify implements [Client].
func (c *HTTPClient) Verify(ctx context.Context, receiptID string, expected string) (*Verification, error) {
	const op = "anchor.verify"

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fault.FromTransport(op, err)
	}

	url := fmt.Sprintf("%s/v1/anchors/%s", c.endpoint, receiptID)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fault.New(fault.Permanent, op, err)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fault.FromTransport(op, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(response.Body, 4096))
		return nil, fault.FromHTTPStatus(op, response.StatusCode)
	}

	var entry entryResponse
	if err := json.NewDecoder(response.Body).Decode(&entry); err != nil {
		return nil, fault.Newf(fault.Format, op, "decoding ledger entry: %v", err)
	}
	return &Verification{
		Valid:   entry.Payload == expected,
		Payload: entry.Payload,
	}, nil
}
