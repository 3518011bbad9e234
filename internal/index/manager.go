package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const ArtifactName = "index.json"

type Embedder interface {
	EmbeddingModel() string
	Embed(ctx context.Context, credential string, texts []string) ([][]float32, error)
}

// Manager owns the per-user index directories under a root directory.
type Manager struct {
	root      string
	embedder  Embedder
	batchSize int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewManager(root string, embedder Embedder, batchSize int) (*Manager, error) {
	if batchSize <= 0 {
		batchSize = 64
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index root %s: %w", root, err)
	}
	return &Manager{
		root:      root,
		embedder:  embedder,
		batchSize: batchSize,
		locks:     make(map[string]*sync.Mutex),
	}, nil
}

// PathFor returns the directory holding owner's index.
func (m *Manager) PathFor(owner string) (string, error) {
	if owner == "" || owner == "." || owner == ".." || strings.HasPrefix(owner, ".") ||
		strings.ContainsAny(owner, `/\`) || filepath.Base(owner) != owner {
		return "", fmt.Errorf("%w: %q", ErrInvalidOwner, owner)
	}
	return filepath.Join(m.root, owner), nil
}

func (m *Manager) lockFor(owner string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[owner]
	if !ok {
		l = &sync.Mutex{}
		m.locks[owner] = l
	}
	return l
}

// Build embeds chunks and replaces owner's index with the result. With no
// chunks it returns ErrEmptyInput and leaves the filesystem untouched. The
// artifact is written to a temporary file and renamed over the previous one,
// so a failure at any point leaves the old index in place.
func (m *Manager) Build(ctx context.Context, owner, source string, chunks []string, credential string) (*Index, error) {
	if len(chunks) == 0 {
		return nil, ErrEmptyInput
	}
	dir, err := m.PathFor(owner)
	if err != nil {
		return nil, err
	}

	vectors, err := m.embedAll(ctx, credential, chunks)
	if err != nil {
		return nil, err
	}

	idx := &Index{
		Version:        formatVersion,
		Owner:          owner,
		Source:         source,
		EmbeddingModel: m.embedder.EmbeddingModel(),
		Dimension:      len(vectors[0]),
		BuiltAt:        time.Now().UTC(),
		Chunks:         make([]Chunk, len(chunks)),
		Path:           dir,
	}
	for i, text := range chunks {
		if len(vectors[i]) != idx.Dimension {
			return nil, fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(vectors[i]), idx.Dimension)
		}
		idx.Chunks[i] = Chunk{ID: i, Text: text, Vector: vectors[i]}
	}

	lock := m.lockFor(owner)
	lock.Lock()
	defer lock.Unlock()

	if err := m.persist(dir, idx); err != nil {
		return nil, err
	}
	slog.Info("Index built", "user", owner, "chunks", idx.ChunkCount(), "dimension", idx.Dimension)
	return idx, nil
}

func (m *Manager) embedAll(ctx context.Context, credential string, chunks []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += m.batchSize {
		end := min(start+m.batchSize, len(chunks))
		batch, err := m.embedder.Embed(ctx, credential, chunks[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(batch), end-start)
		}
		vectors = append(vectors, batch...)
	}
	if len(vectors[0]) == 0 {
		return nil, errors.New("embedder returned an empty vector")
	}
	return vectors, nil
}

func (m *Manager) persist(dir string, idx *Index) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}

	tmp := filepath.Join(dir, "."+ArtifactName+".tmp-"+uuid.NewString())
	if err := writeFileSync(tmp, data); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, ArtifactName)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace index: %w", err)
	}

	// Anything else in the directory belongs to a previous document or to a
	// write that never completed. The owner lock is held, so no other write
	// for this directory is in flight.
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Warn("Could not list index directory for cleanup", "dir", dir, "error", err)
		return nil
	}
	for _, e := range entries {
		if e.Name() == ArtifactName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			slog.Warn("Could not remove stale index file", "path", e.Name(), "error", err)
		}
	}
	return nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load returns nil, nil when owner has no index. A present but unusable
// artifact yields an error wrapping ErrIndexCorrupt; callers treat that as
// "no index" and let the user upload again.
func (m *Manager) Load(owner string) (*Index, error) {
	dir, err := m.PathFor(owner)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, ArtifactName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}

	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}
	if err := idx.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}
	if idx.Owner != owner {
		return nil, fmt.Errorf("%w: built for %q", ErrIndexCorrupt, idx.Owner)
	}
	if model := m.embedder.EmbeddingModel(); idx.EmbeddingModel != model {
		return nil, fmt.Errorf("%w: built with embedding model %q, current model is %q", ErrIndexCorrupt, idx.EmbeddingModel, model)
	}
	idx.Path = dir
	return &idx, nil
}

// Remove deletes owner's index directory, if any.
func (m *Manager) Remove(owner string) error {
	dir, err := m.PathFor(owner)
	if err != nil {
		return err
	}

	lock := m.lockFor(owner)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove index: %w", err)
	}
	return nil
}
