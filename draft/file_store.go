package draft

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/moyoez/submitsession/types"
)

// FileStore keeps the draft as one JSON document on disk.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// fileRecord wraps the draft with its key so the file is self-describing.
type fileRecord struct {
	Key   string      `json:"key"`
	Draft types.Draft `json:"draft"`
}

func (s *FileStore) Load(ctx context.Context) (types.Draft, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return types.Draft{}, false, nil
	}
	if err != nil {
		return types.Draft{}, false, fmt.Errorf("read draft file: %w", err)
	}
	var rec fileRecord
	if err := sonic.Unmarshal(data, &rec); err != nil {
		return types.Draft{}, false, fmt.Errorf("unmarshal draft: %w", err)
	}
	if rec.Key != Key {
		return types.Draft{}, false, nil
	}
	return rec.Draft, true, nil
}

func (s *FileStore) Save(ctx context.Context, d types.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := sonic.Marshal(fileRecord{Key: Key, Draft: d})
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create draft dir: %w", err)
	}

	// Write atomically via temp file
	tmpFile, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp")
	if err != nil {
		return fmt.Errorf("create temp draft file: %w", err)
	}
	name := tmpFile.Name()
	_, err = tmpFile.Write(data)
	if err1 := tmpFile.Close(); err1 != nil && err == nil {
		err = err1
	}
	if err != nil {
		os.Remove(name)
		return fmt.Errorf("write temp draft file: %w", err)
	}
	if err := os.Rename(name, s.path); err != nil {
		os.Remove(name)
		return fmt.Errorf("rename draft file: %w", err)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove draft file: %w", err)
	}
	return nil
}
