package publish

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
)

// MemoryPublisher keeps published documents in memory. For tests and local runs.
type MemoryPublisher struct {
	mu    sync.RWMutex
	docs  map[string][]byte
	types map[string]string
}

// NewMemoryPublisher creates an empty MemoryPublisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{
		docs:  make(map[string][]byte),
		types: make(map[string]string),
	}
}

// Publish copies localPath under name, replacing any previous document.
func (m *MemoryPublisher) Publish(ctx context.Context, localPath, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", localPath, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[name] = data
	m.types[name] = ContentTypeFor(name)

	return "memory://" + name, nil
}

// Get returns a reader over a published document.
func (m *MemoryPublisher) Get(name string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.docs[name]
	if !ok {
		return nil, fmt.Errorf("document not found: %s", name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// List returns the published documents sorted by name.
func (m *MemoryPublisher) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]Info, 0, len(m.docs))
	for name, data := range m.docs {
		infos = append(infos, Info{
			Name:        name,
			Size:        int64(len(data)),
			ContentType: m.types[name],
			URL:         "memory://" + name,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
