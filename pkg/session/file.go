package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/matzehuels/forcelayout/pkg/graph"
	pkgio "github.com/matzehuels/forcelayout/pkg/io"
)

// snapshot is the on-disk form of a session.
type snapshot struct {
	ID      string            `json:"id"`
	SavedAt time.Time         `json:"saved_at"`
	Graph   pkgio.Description `json:"graph"`
}

// FileStore persists session graphs as JSON files in a directory.
type FileStore struct {
	mu      sync.RWMutex
	baseDir string
}

// NewFileStore creates a file-based session store.
// If baseDir is empty, defaults to ~/.config/forcelayout/sessions/
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		baseDir = filepath.Join(home, ".config", "forcelayout", "sessions")
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) sessionPath(sessionID string) string {
	return filepath.Join(s.baseDir, sessionID+".json")
}

// Save writes the session's current graph. It fails while a run holds the
// store, since positions are about to change.
func (s *FileStore) Save(ctx context.Context, sess *Session) error {
	var desc pkgio.Description
	err := sess.View(func(g *graph.Graph) error {
		if sess.run != nil && !sess.run.finished {
			return fmt.Errorf("session %s has a layout run in flight", sess.ID())
		}
		desc = pkgio.Describe(g)
		return nil
	})
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(snapshot{ID: sess.ID(), SavedAt: time.Now(), Graph: desc}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(s.sessionPath(sess.ID()), data, 0600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// Load restores a saved session. Returns nil, nil if none is stored under
// sessionID.
func (s *FileStore) Load(ctx context.Context, sessionID string, opts Options) (*Session, error) {
	s.mu.RLock()
	data, err := os.ReadFile(s.sessionPath(sessionID))
	s.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	opts.ID = sessionID
	sess := New(opts)
	nodes, edges := snap.Graph.Elements()
	if err := sess.Add(nodes, edges); err != nil {
		return nil, fmt.Errorf("restore session %s: %w", sessionID, err)
	}
	return sess, nil
}

// Delete removes a saved session.
func (s *FileStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.sessionPath(sessionID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// List returns the ids of all saved sessions, sorted.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read session dir: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
	}
	slices.Sort(ids)
	return ids, nil
}

// Cleanup removes snapshots saved before now-maxAge.
func (s *FileStore) Cleanup(ctx context.Context, maxAge time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return fmt.Errorf("read session dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(s.baseDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var snap snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			continue
		}
		if snap.SavedAt.Before(cutoff) {
			os.Remove(path)
		}
	}
	return nil
}

// Path returns the base directory for session files.
func (s *FileStore) Path() string {
	return s.baseDir
}
