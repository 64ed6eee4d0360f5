package server

import (
	"sync"

	"github.com/waveform-computing/compoundpi"
)

// FileRecord is one entry in the server's in-memory file store (§3).
type FileRecord struct {
	Type      compoundpi.FileType
	Timestamp float64
	Payload   []byte
}

// FileStore is the server's file list: appended by CAPTURE/RECORD, drained
// by CLEAR, read by LIST/SEND. §5 notes the dispatcher is the only task
// that touches it, so a lock is not strictly required — FileStore carries
// one anyway so it stays safe to reuse from tests that poke it directly off
// the dispatcher goroutine.
type FileStore struct {
	mu    sync.Mutex
	files []FileRecord
}

// Append adds a record and returns its index.
func (s *FileStore) Append(rec FileRecord) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, rec)
	return len(s.files) - 1
}

// Clear truncates the file list (CLEAR).
func (s *FileStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = nil
}

// List returns a snapshot of the current file list in index order.
func (s *FileStore) List() []FileRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FileRecord, len(s.files))
	copy(out, s.files)
	return out
}

// Get returns the record at index, if any.
func (s *FileStore) Get(index int) (FileRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.files) {
		return FileRecord{}, false
	}
	return s.files[index], true
}

// Len reports the number of stored files.
func (s *FileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}
