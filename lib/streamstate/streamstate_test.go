// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

package streamstate

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/engram-foundation/engram/lib/chain"
	"github.com/engram-foundation/engram/lib/memcrypt"
)

// storeUnderTest runs the shared Store contract tests against both
// implementations.
func storeUnderTest(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"file": func(t *testing.T) Store {
			store, err := OpenFileStore(filepath.Join(t.TempDir(), "state.json"))
			if err != nil {
				t.Fatalf("OpenFileStore: %v", err)
			}
			return store
		},
		"sqlite": func(t *testing.T) Store {
			store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "state.db"), nil)
			if err != nil {
				t.Fatalf("OpenSQLiteStore: %v", err)
			}
			t.Cleanup(func() { store.Close() })
			return store
		},
	}
}

func pointer(p string) *chain.Pointer {
	converted := chain.Pointer(p)
	return &converted
}

func digest(seed string) *memcrypt.Digest {
	computed := memcrypt.Hash([]byte(seed))
	return &computed
}

func stringPtr(s string) *string { return &s }

func TestGetUnseenStreamReturnsZeroState(t *testing.T) {
	for name, open := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			state, err := store.Get(context.Background(), "alice/agent-1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			want := State{StreamID: "alice/agent-1"}
			if !reflect.DeepEqual(state, want) {
				t.Errorf("Get unseen = %+v, want %+v", state, want)
			}
		})
	}
}

func TestSetMergesPartialUpdates(t *testing.T) {
	for name, open := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()

			if err := store.Set(ctx, "s", Update{
				LastPointer:     pointer("ptr-1"),
				LastContentHash: digest("hash-1"),
			}); err != nil {
				t.Fatalf("Set upload fields: %v", err)
			}
			if err := store.Set(ctx, "s", Update{
				LastAnchorDate: stringPtr("2026-02-18"),
			}); err != nil {
				t.Fatalf("Set anchor date: %v", err)
			}

			state, err := store.Get(ctx, "s")
			if err != nil {
				t.Fatal(err)
			}
			if state.LastPointer != "ptr-1" {
				t.Errorf("LastPointer = %q, want ptr-1 (anchor update must not clobber)", state.LastPointer)
			}
			if state.LastContentHash != *digest("hash-1") {
				t.Errorf("LastContentHash clobbered: %s", state.LastContentHash)
			}
			if state.LastAnchorDate != "2026-02-18" {
				t.Errorf("LastAnchorDate = %q", state.LastAnchorDate)
			}
		})
	}
}

func TestListSorted(t *testing.T) {
	for name, open := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()

			for _, streamID := range []string{"charlie/a", "alice/a", "bob/a"} {
				if err := store.Set(ctx, streamID, Update{LastPointer: pointer("p")}); err != nil {
					t.Fatal(err)
				}
			}
			streamIDs, err := store.List(ctx)
			if err != nil {
				t.Fatal(err)
			}
			want := []string{"alice/a", "bob/a", "charlie/a"}
			if !reflect.DeepEqual(streamIDs, want) {
				t.Errorf("List = %v, want %v", streamIDs, want)
			}
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()

	store, err := OpenFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Set(ctx, "s", Update{
		LastPointer:     pointer("ptr-9"),
		LastContentHash: digest("hash-9"),
		LastAnchorDate:  stringPtr("2026-02-18"),
	}); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	state, err := reopened.Get(ctx, "s")
	if err != nil {
		t.Fatal(err)
	}
	if state.LastPointer != "ptr-9" || state.LastAnchorDate != "2026-02-18" {
		t.Errorf("state lost across reopen: %+v", state)
	}
	if state.LastContentHash != *digest("hash-9") {
		t.Errorf("content hash lost across reopen: %s", state.LastContentHash)
	}
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	store, err := OpenSQLiteStore(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Set(ctx, "s", Update{LastPointer: pointer("ptr-7")}); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenSQLiteStore(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	state, err := reopened.Get(ctx, "s")
	if err != nil {
		t.Fatal(err)
	}
	if state.LastPointer != "ptr-7" {
		t.Errorf("state lost across reopen: %+v", state)
	}
}
