package daemon

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gitlab.com/tinyland/lab/statebar/pkg/state"
)

// StateEntry is the on-disk snapshot of the aggregated state. Shell widgets
// and `statebar state` read it without talking to the daemon.
type StateEntry struct {
	State     state.AggregatedState `json:"state"`
	Timestamp time.Time             `json:"timestamp"`
	Hash      string                `json:"hash"`
}

// StateFile writes the aggregated state atomically, skipping writes whose
// content matches the previous one.
type StateFile struct {
	path string
	now  func() time.Time

	mu       sync.Mutex
	lastHash string
}

// NewStateFile creates a StateFile backed by path.
func NewStateFile(path string) *StateFile {
	return &StateFile{path: path, now: time.Now}
}

// Path returns the file location.
func (sf *StateFile) Path() string { return sf.path }

// Write stores st unless it is identical to the last state written. It
// reports whether the file changed.
func (sf *StateFile) Write(st state.AggregatedState) (bool, error) {
	body, err := json.Marshal(st)
	if err != nil {
		return false, fmt.Errorf("marshal state: %w", err)
	}
	hash := computeHash(body)

	sf.mu.Lock()
	defer sf.mu.Unlock()
	if hash == sf.lastHash {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(sf.path), 0o700); err != nil {
		return false, fmt.Errorf("create state directory: %w", err)
	}
	data, err := json.MarshalIndent(StateEntry{State: st, Timestamp: sf.now(), Hash: hash}, "", "  ")
	if err != nil {
		return false, fmt.Errorf("marshal state entry: %w", err)
	}
	if err := writeFileAtomic(sf.path, data, 0o644); err != nil {
		return false, fmt.Errorf("write state file: %w", err)
	}
	sf.lastHash = hash
	return true, nil
}

// Remove deletes the file and forgets the last hash.
func (sf *StateFile) Remove() error {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	sf.lastHash = ""
	if err := os.Remove(sf.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove state file: %w", err)
	}
	return nil
}

// ReadStateFile parses the snapshot at path.
func ReadStateFile(path string) (*StateEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	var entry StateEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal state file: %w", err)
	}
	return &entry, nil
}

// IsStale reports whether the entry is older than maxAge at now.
func (e *StateEntry) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(e.Timestamp) > maxAge
}

// computeHash returns a hex-encoded SHA-256 hash of the content.
func computeHash(content []byte) string {
	h := sha256.Sum256(content)
	return fmt.Sprintf("%x", h)
}
