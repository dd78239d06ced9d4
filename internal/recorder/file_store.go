package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/Kaushals112/shadow-aiims-defender/internal/models"
)

// FileStore persists the event log as append-only JSONL, one event per
// line. It wraps a MemoryStore for queries and replays the file on open, so
// a restarted process sees the full history in insertion order.
type FileStore struct {
	mu   sync.Mutex
	mem  *MemoryStore
	file *os.File
	w    *bufio.Writer
}

// NewFileStore opens (or creates) the JSONL log at path and replays any
// existing records into memory.
func NewFileStore(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}

	s := &FileStore{
		mem:  NewMemoryStore(),
		file: f,
		w:    bufio.NewWriter(f),
	}
	if err := s.replay(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *FileStore) replay() error {
	if _, err := s.file.Seek(0, 0); err != nil {
		return fmt.Errorf("failed to seek event log: %w", err)
	}
	scanner := bufio.NewScanner(s.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event models.AttackEvent
		if err := json.Unmarshal(line, &event); err != nil {
			// A torn trailing line from a crashed process is skipped, not fatal.
			continue
		}
		if err := s.mem.Append(context.Background(), event); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to replay event log: %w", err)
	}
	if _, err := s.file.Seek(0, 2); err != nil {
		return fmt.Errorf("failed to seek event log tail: %w", err)
	}
	return nil
}

func (s *FileStore) Append(ctx context.Context, event models.AttackEvent) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush event log: %w", err)
	}
	return s.mem.Append(ctx, event)
}

func (s *FileStore) EventsForSession(ctx context.Context, sessionID string) ([]models.AttackEvent, error) {
	return s.mem.EventsForSession(ctx, sessionID)
}

func (s *FileStore) EventsByKind(ctx context.Context, kind models.EventKind) ([]models.AttackEvent, error) {
	return s.mem.EventsByKind(ctx, kind)
}

func (s *FileStore) All(ctx context.Context) ([]models.AttackEvent, error) {
	return s.mem.All(ctx)
}

func (s *FileStore) Count(ctx context.Context) (int, error) {
	return s.mem.Count(ctx)
}

// Close flushes and closes the underlying log file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		return err
	}
	return s.file.Close()
}
