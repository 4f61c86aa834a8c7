package capture

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DiskStore keeps captures on the local filesystem, one PNG plus a JSON
// metadata sidecar per capture.
type DiskStore struct {
	dir     string
	maxSize int64

	mu    sync.RWMutex
	metas map[string]*diskMeta
}

type diskMeta struct {
	TakenAt time.Time `json:"taken_at"`
	Width   int       `json:"width"`
	Height  int       `json:"height"`
	Windows int       `json:"windows"`
	Size    int64     `json:"size"`
}

// NewDiskStore creates a DiskStore rooted at dir.
//
// Parameters:
//   - dir: directory to store captures
//   - maxSize: maximum encoded size in bytes (0 = no limit)
func NewDiskStore(dir string, maxSize int64) (*DiskStore, error) {
	// Ensure directory exists
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	return &DiskStore{
		dir:     dir,
		maxSize: maxSize,
		metas:   make(map[string]*diskMeta),
	}, nil
}

// Save persists the capture and returns its id.
func (s *DiskStore) Save(ctx context.Context, snap *Snapshot) (string, error) {
	if s.maxSize > 0 && int64(len(snap.PNG)) > s.maxSize {
		return "", ErrTooLarge
	}

	id := newCaptureID()
	if err := os.WriteFile(s.pngPath(id), snap.PNG, 0644); err != nil {
		return "", err
	}

	meta := &diskMeta{
		TakenAt: snap.TakenAt,
		Width:   snap.Width,
		Height:  snap.Height,
		Windows: snap.Windows,
		Size:    int64(len(snap.PNG)),
	}

	s.mu.Lock()
	s.metas[id] = meta
	s.mu.Unlock()

	// Also save metadata to disk so captures survive the process
	if err := s.saveMeta(id, meta); err != nil {
		return "", err
	}

	snap.ID = id
	return id, nil
}

// Open retrieves a stored capture by id.
func (s *DiskStore) Open(ctx context.Context, id string) (*Snapshot, error) {
	// Ids come from URLs; reject anything that is not one of ours before
	// touching the filesystem.
	if !validCaptureID(id) {
		return nil, ErrNotFound
	}

	s.mu.RLock()
	meta, ok := s.metas[id]
	s.mu.RUnlock()

	// Fall back to the sidecar for captures from a previous process
	if !ok {
		var err error
		meta, err = s.loadMeta(id)
		if err != nil {
			return nil, ErrNotFound
		}
	}

	png, err := os.ReadFile(s.pngPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &Snapshot{
		ID:      id,
		TakenAt: meta.TakenAt,
		Width:   meta.Width,
		Height:  meta.Height,
		Windows: meta.Windows,
		PNG:     png,
	}, nil
}

// Cleanup removes captures older than maxAge.
func (s *DiskStore) Cleanup(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)

	s.mu.Lock()
	for id, meta := range s.metas {
		if meta.TakenAt.Before(cutoff) {
			delete(s.metas, id)
			os.Remove(s.pngPath(id))
			os.Remove(s.metaPath(id))
		}
	}
	s.mu.Unlock()

	// Also scan the directory for captures left behind by previous processes
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(s.dir, entry.Name()))
		}
	}

	return nil
}

func (s *DiskStore) pngPath(id string) string {
	return filepath.Join(s.dir, id+".png")
}

func (s *DiskStore) metaPath(id string) string {
	return filepath.Join(s.dir, id+".meta")
}

func (s *DiskStore) saveMeta(id string, meta *diskMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(s.metaPath(id), data, 0644)
}

func (s *DiskStore) loadMeta(id string) (*diskMeta, error) {
	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		return nil, err
	}
	var meta diskMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// newCaptureID generates a cryptographically random capture id.
func newCaptureID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// validCaptureID reports whether id has the exact shape newCaptureID
// produces.
func validCaptureID(id string) bool {
	if len(id) != 32 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
