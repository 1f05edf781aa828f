package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Storage persists sessions. Save timing is the caller's responsibility;
// the agent core never persists directly.
type Storage interface {
	Save(sess *Session) error
	Load(id string) (*Session, error)
	ListSummaries() ([]Summary, error)
	Delete(id string) (bool, error)
}

// ErrNotFound is returned by Load when no session exists with the given id.
var ErrNotFound = fmt.Errorf("session not found")

// FileStorage stores each session as a JSON file in a directory.
type FileStorage struct {
	dir string
}

// NewFileStorage creates a FileStorage rooted at dir, creating it if needed.
// An empty dir defaults to ~/.local/share/forge/sessions.
func NewFileStorage(dir string) (*FileStorage, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".local", "share", "forge", "sessions")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	return &FileStorage{dir: dir}, nil
}

func (s *FileStorage) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStorage) Save(sess *Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	tmp := s.path(sess.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session %s: %w", sess.ID, err)
	}
	return os.Rename(tmp, s.path(sess.ID))
}

func (s *FileStorage) Load(id string) (*Session, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, nil
}

// ListSummaries returns summaries of all stored sessions, newest first.
// Corrupted or unreadable files are skipped.
func (s *FileStorage) ListSummaries() ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var summaries []Summary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		summaries = append(summaries, sess.Summarize())
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

func (s *FileStorage) Delete(id string) (bool, error) {
	err := os.Remove(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("delete session %s: %w", id, err)
	}
	return true, nil
}
