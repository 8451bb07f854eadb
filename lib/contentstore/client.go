// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

package contentstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/engram-foundation/engram/lib/chain"
	"github.com/engram-foundation/engram/lib/fault"
	"github.com/engram-foundation/engram/lib/memcrypt"
)

// Client timeouts and limits.
const (
	// clientRequestTimeout bounds one round trip to one endpoint.
	// With endpoint fallback the worst-case latency for a call is
	// this times the number of configured endpoints.
	clientRequestTimeout = 60 * time.Second

	// defaultRequestRate caps store requests per second across all
	// endpoints. Recall fan-out is the only bursty caller.
	defaultRequestRate = 20

	// maxBlobSize rejects absurd fetch responses before buffering
	// them. Uploads are size-checked by the daemon's capture layer.
	maxBlobSize = 256 << 20
)

// StreamPrefix returns the pointer prefix under which every blob of a
// stream is listed. Pointers are store-assigned but the namespace
// layout (mem/owner/agent/date/hash) is part of the store contract.
func StreamPrefix(streamID string) string {
	return "mem/" + streamID + "/"
}

// Meta is the indexing metadata attached to an uploaded blob. The
// store uses it to build pointers and serve prefix listings; it never
// sees plaintext.
type Meta struct {
	// Owner and Agent identify the stream.
	Owner string
	Agent string

	// Date is the UTC calendar date of capture.
	Date string

	// ContentHash is the record's content hash (computed over the
	// canonical plaintext, before encryption). Part of the pointer,
	// which is what makes uploads idempotent.
	ContentHash memcrypt.Digest
}

// Client stores and retrieves encrypted record blobs.
type Client interface {
	// Upload stores the blob and returns its pointer. Uploading the
	// same blob under the same metadata returns the same pointer;
	// the store is content-addressed and never overwrites.
	Upload(ctx context.Context, blob []byte, meta Meta) (chain.Pointer, error)

	// Fetch retrieves the blob at pointer.
	Fetch(ctx context.Context, pointer chain.Pointer) ([]byte, error)

	// FetchAndVerify retrieves the blob and checks its digest
	// against expected, returning an integrity fault on mismatch.
	FetchAndVerify(ctx context.Context, pointer chain.Pointer, expected memcrypt.Digest) ([]byte, error)

	// List returns pointers under the given prefix in
	// lexicographic order, at most limit of them (0 means no limit).
	List(ctx context.Context, prefix string, limit int) ([]chain.Pointer, error)
}

// HTTPClient talks to one or more content store endpoints over HTTP.
// Endpoints are tried in order; a transient failure on one falls
// through to the next, so a degraded primary does not stall uploads
// as long as a mirror is reachable. Permanent failures return
// immediately — a 400 from the primary will be a 400 everywhere.
type HTTPClient struct {
	endpoints  []string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPClient creates a store client for the given base endpoints,
// tried in order. requestRate caps requests per second; zero applies
// the default.
func NewHTTPClient(endpoints []string, requestRate float64) (*HTTPClient, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("contentstore: at least one endpoint is required")
	}
	if requestRate <= 0 {
		requestRate = defaultRequestRate
	}
	trimmed := make([]string, len(endpoints))
	for i, endpoint := range endpoints {
		trimmed[i] = strings.TrimRight(endpoint, "/")
	}
	return &HTTPClient{
		endpoints:  trimmed,
		httpClient: &http.Client{Timeout: clientRequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(requestRate), 1),
	}, nil
}

type uploadResponse struct {
	Pointer string `json:"pointer"`
}

type listResponse struct {
	Pointers []string `json:"pointers"`
}

// eachEndpoint runs call against each endpoint in order until one
// succeeds or fails permanently. Transient failures fall through to
// the next endpoint; the last failure is returned when all are down.
func (c *HTTPClient) eachEndpoint(ctx context.Context, call func(endpoint string) error) error {
	var lastErr error
	for _, endpoint := range c.endpoints {
		if err := c.limiter.Wait(ctx); err != nil {
			return fault.FromTransport("contentstore.ratelimit", err)
		}
		err := call(endpoint)
		if err == nil {
			return nil
		}
		if !fault.Retryable(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// Upload implements [Client].
func (c *HTTPClient) Upload(ctx context.Context, blob []byte, meta Meta) (chain.Pointer, error) {
	const op = "contentstore.upload"

	if meta.Owner == "" || meta.Agent == "" || meta.Date == "" {
		return "", fault.Newf(fault.Permanent, op, "incomplete metadata: %+v", meta)
	}
	if meta.ContentHash.IsZero() {
		return "", fault.Newf(fault.Permanent, op, "zero content hash")
	}

	var pointer chain.Pointer
	err := c.eachEndpoint(ctx, func(endpoint string) error {
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/v1/blobs", bytes.NewReader(blob))
		if err != nil {
			return fault.New(fault.Permanent, op, err)
		}
		request.Header.Set("Content-Type", "application/octet-stream")
		request.Header.Set("X-Engram-Owner", meta.Owner)
		request.Header.Set("X-Engram-Agent", meta.Agent)
		request.Header.Set("X-Engram-Date", meta.Date)
		request.Header.Set("X-Engram-Content-Hash", meta.ContentHash.String())

		response, err := c.httpClient.Do(request)
		if err != nil {
			return fault.FromTransport(op, err)
		}
		defer response.Body.Close()

		if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusCreated {
			io.Copy(io.Discard, io.LimitReader(response.Body, 4096))
			return fault.FromHTTPStatus(op, response.StatusCode)
		}

		var decoded uploadResponse
		if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
			return fault.Newf(fault.Format, op, "decoding upload response: %v", err)
		}
		if decoded.Pointer == "" {
			return fault.Newf(fault.Format, op, "store returned empty pointer")
		}
		pointer = chain.Pointer(decoded.Pointer)
		return nil
	})
	if err != nil {
		return "", err
	}
	return pointer, nil
}

// Fetch implements [Client].
func (c *HTTPClient) Fetch(ctx context.Context, pointer chain.Pointer) ([]byte, error) {
	const op = "contentstore.fetch"

	if pointer == "" {
		return nil, fault.Newf(fault.Permanent, op, "empty pointer")
	}

	var blob []byte
	err := c.eachEndpoint(ctx, func(endpoint string) error {
		request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/v1/blobs/"+string(pointer), nil)
		if err != nil {
			return fault.New(fault.Permanent, op, err)
		}

		response, err := c.httpClient.Do(request)
		if err != nil {
			return fault.FromTransport(op, err)
		}
		defer response.Body.Close()

		if response.StatusCode != http.StatusOK {
			io.Copy(io.Discard, io.LimitReader(response.Body, 4096))
			return fault.FromHTTPStatus(op, response.StatusCode)
		}

		body, err := io.ReadAll(io.LimitReader(response.Body, maxBlobSize+1))
		if err != nil {
			return fault.FromTransport(op, err)
		}
		if len(body) > maxBlobSize {
			return fault.Newf(fault.Format, op, "blob at %s exceeds %d bytes", pointer, maxBlobSize)
		}
		blob = body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blob, nil
}

// FetchAndVerify implements [Client].
func (c *HTTPClient) FetchAndVerify(ctx context.Context, pointer chain.Pointer, expected memcrypt.Digest) ([]byte, error) {
	blob, err := c.Fetch(ctx, pointer)
	if err != nil {
		return nil, err
	}
	if actual := memcrypt.Hash(blob); actual != expected {
		return nil, fault.Newf(fault.Integrity, "contentstore.verify",
			"blob at %s hashes to %s, want %s", pointer, actual, expected)
	}
	return blob, nil
}

// List implements [Client].
func (c *HTTPClient) List(ctx context.Context, prefix string, limit int) ([]chain.Pointer, error) {
	const op = "contentstore.list"

	query := url.Values{}
	if prefix != "" {
		query.Set("prefix", prefix)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var pointers []chain.Pointer
	err := c.eachEndpoint(ctx, func(endpoint string) error {
		listURL := endpoint + "/v1/blobs"
		if encoded := query.Encode(); encoded != "" {
			listURL += "?" + encoded
		}
		request, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
		if err != nil {
			return fault.New(fault.Permanent, op, err)
		}

		response, err := c.httpClient.Do(request)
		if err != nil {
			return fault.FromTransport(op, err)
		}
		defer response.Body.Close()

		if response.StatusCode != http.StatusOK {
			io.Copy(io.Discard, io.LimitReader(response.Body, 4096))
			return fault.FromHTTPStatus(op, response.StatusCode)
		}

		var decoded listResponse
		if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
			return fault.Newf(fault.Format, op, "decoding list response: %v", err)
		}
		pointers = pointers[:0]
		for _, raw := range decoded.Pointers {
			pointers = append(pointers, chain.Pointer(raw))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pointers, nil
}
