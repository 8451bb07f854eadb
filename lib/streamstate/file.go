// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

package streamstate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileStore persists all stream states in a single JSON file keyed by
// stream ID. Every mutation rewrites the file atomically: write to a
// temp file in the same directory, fsync, rename over the original,
// fsync the directory. A crash at any point leaves either the old or
// the new complete file, never a torn one.
type FileStore struct {
	mu     sync.Mutex
	path   string
	states map[string]*State
}

// OpenFileStore loads (or creates) the state file at path. The parent
// directory must exist.
func OpenFileStore(path string) (*FileStore, error) {
	store := &FileStore{
		path:   path,
		states: make(map[string]*State),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, fmt.Errorf("streamstate: reading %s: %w", path, err)
	}
	if len(data) == 0 {
		return store, nil
	}

	if err := json.Unmarshal(data, &store.states); err != nil {
		return nil, fmt.Errorf("streamstate: parsing %s: %w", path, err)
	}
	// The map key is authoritative; keep the embedded ID consistent.
	for streamID, state := range store.states {
		state.StreamID = streamID
	}
	return store, nil
}

// Get returns the state for streamID, or the zero state if unseen.
func (s *FileStore) Get(_ context.Context, streamID string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.states[streamID]; ok {
		return *state, nil
	}
	return State{StreamID: streamID}, nil
}

// Set merges update into the stream's state and rewrites the file
// before returning.
func (s *FileStore) Set(_ context.Context, streamID string, update Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[streamID]
	if !ok {
		state = &State{StreamID: streamID}
		s.states[streamID] = state
	}
	merge(state, update)

	if err := s.persistLocked(); err != nil {
		return fmt.Errorf("streamstate: persisting %s: %w", streamID, err)
	}
	return nil
}

// List returns all known stream IDs in lexicographic order.
func (s *FileStore) List(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	streamIDs := make([]string, 0, len(s.states))
	for streamID := range s.states {
		streamIDs = append(streamIDs, streamID)
	}
	sort.Strings(streamIDs)
	return streamIDs, nil
}

func (s *FileStore) persistLocked() error {
	encoded, err := json.MarshalIndent(s.states, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	directory := filepath.Dir(s.path)
	temp, err := os.CreateTemp(directory, ".state-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()
	defer os.Remove(tempPath)

	if _, err := temp.Write(encoded); err != nil {
		temp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Sync(); err != nil {
		temp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		return fmt.Errorf("renaming into place: %w", err)
	}

	// fsync the directory so the rename itself is durable.
	directoryFile, err := os.Open(directory)
	if err != nil {
		return fmt.Errorf("opening directory for sync: %w", err)
	}
	defer directoryFile.Close()
	if err := directoryFile.Sync(); err != nil {
		return fmt.Errorf("syncing directory: %w", err)
	}
	return nil
}
