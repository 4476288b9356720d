package vectorstore

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"studyqa/internal/contextutil"
)

var namespacePattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// flatIndex is an immutable snapshot of one namespace. Writers build a new
// snapshot and swap it in, so readers never need to lock.
type flatIndex struct {
	dimension int
	ids       []int64
	vectors   [][]float32
}

// FlatStore is an exact L2 index store with one file per namespace under dir.
// Indexes are loaded lazily and cached.
type FlatStore struct {
	dir string

	mu      sync.RWMutex
	indexes map[string]*flatIndex
	writers map[string]*sync.Mutex
}

// NewFlatStore creates a FlatStore rooted at dir, creating it if needed.
func NewFlatStore(dir string) (*FlatStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	return &FlatStore{
		dir:     dir,
		indexes: make(map[string]*flatIndex),
		writers: make(map[string]*sync.Mutex),
	}, nil
}

// Add appends vectors to a namespace and persists the result before it becomes visible.
func (s *FlatStore) Add(ctx context.Context, namespace string, ids []int64, vectors [][]float32) error {
	logger := contextutil.LoggerFromContext(ctx)

	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil
	}
	if err := checkNamespace(namespace); err != nil {
		return err
	}

	w := s.writer(namespace)
	w.Lock()
	defer w.Unlock()

	current, err := s.loadLocked(namespace)
	if err != nil {
		return err
	}

	dim := len(vectors[0])
	if current != nil {
		dim = current.dimension
	}
	if dim == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}

	next := &flatIndex{dimension: dim}
	used := make(map[int64]struct{}, len(ids))
	if current != nil {
		next.ids = append(make([]int64, 0, len(current.ids)+len(ids)), current.ids...)
		next.vectors = append(make([][]float32, 0, len(current.vectors)+len(vectors)), current.vectors...)
		for _, id := range current.ids {
			used[id] = struct{}{}
		}
	}
	for i, id := range ids {
		if len(vectors[i]) != dim {
			return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vectors[i]), dim)
		}
		if _, dup := used[id]; dup {
			return fmt.Errorf("vector id %d already used in %s", id, namespace)
		}
		used[id] = struct{}{}
		vec := make([]float32, dim)
		copy(vec, vectors[i])
		next.ids = append(next.ids, id)
		next.vectors = append(next.vectors, vec)
	}

	if err := s.persist(namespace, next); err != nil {
		return err
	}

	s.mu.Lock()
	s.indexes[namespace] = next
	s.mu.Unlock()

	logger.DebugContext(ctx, "vectors added", "namespace", namespace, "added", len(ids), "total", len(next.ids))
	return nil
}

// Search returns the k nearest vectors by exact L2 distance.
func (s *FlatStore) Search(ctx context.Context, namespace string, query []float32, k int) ([]Neighbor, error) {
	if err := checkNamespace(namespace); err != nil {
		return nil, err
	}
	idx, err := s.snapshot(namespace)
	if err != nil {
		return nil, err
	}
	if idx == nil || k <= 0 || len(idx.ids) == 0 {
		return nil, nil
	}
	if len(query) != idx.dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), idx.dimension)
	}

	hits := make([]Neighbor, len(idx.ids))
	for i, vec := range idx.vectors {
		hits[i] = Neighbor{ID: idx.ids[i], Distance: l2(query, vec)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Stats reports the dimension and size of a namespace's index.
func (s *FlatStore) Stats(ctx context.Context, namespace string) (IndexStats, error) {
	if err := checkNamespace(namespace); err != nil {
		return IndexStats{}, err
	}
	idx, err := s.snapshot(namespace)
	if err != nil || idx == nil {
		return IndexStats{}, err
	}
	return IndexStats{Dimension: idx.dimension, Count: len(idx.ids)}, nil
}

// Drop removes the namespace's file and cached snapshot.
func (s *FlatStore) Drop(ctx context.Context, namespace string) error {
	if err := checkNamespace(namespace); err != nil {
		return err
	}
	w := s.writer(namespace)
	w.Lock()
	defer w.Unlock()

	if err := os.Remove(s.path(namespace)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove index file: %w", err)
	}
	s.mu.Lock()
	delete(s.indexes, namespace)
	s.mu.Unlock()

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "index dropped", "namespace", namespace)
	return nil
}

func (s *FlatStore) writer(namespace string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.writers[namespace]
	if !ok {
		w = &sync.Mutex{}
		s.writers[namespace] = w
	}
	return w
}

// snapshot returns the cached index, loading it from disk on first use.
// A nil index with nil error means the namespace has no index yet.
func (s *FlatStore) snapshot(namespace string) (*flatIndex, error) {
	s.mu.RLock()
	idx, ok := s.indexes[namespace]
	s.mu.RUnlock()
	if ok {
		return idx, nil
	}

	// Loading under the writer lock keeps a concurrent Drop from being undone
	// by a stale read landing in the cache afterwards.
	w := s.writer(namespace)
	w.Lock()
	defer w.Unlock()
	return s.loadLocked(namespace)
}

// loadLocked is snapshot for callers already holding the namespace's writer lock.
func (s *FlatStore) loadLocked(namespace string) (*flatIndex, error) {
	s.mu.RLock()
	idx, ok := s.indexes[namespace]
	s.mu.RUnlock()
	if ok {
		return idx, nil
	}

	idx, err := load(s.path(namespace))
	if err != nil {
		return nil, err
	}
	if idx == nil {
		return nil, nil
	}

	s.mu.Lock()
	s.indexes[namespace] = idx
	s.mu.Unlock()
	return idx, nil
}

func (s *FlatStore) path(namespace string) string {
	return filepath.Join(s.dir, namespace+".idx")
}

// persist writes idx to a temp file, fsyncs it, then renames it over the namespace file.
// Format: dimension (4), n (4), then per vector: id (8), vector (dimension*4 bytes).
func (s *FlatStore) persist(namespace string, idx *flatIndex) error {
	f, err := os.CreateTemp(s.dir, namespace+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		_ = os.Remove(tmp)
	}()

	w := bufio.NewWriter(f)
	err = writeIndex(w, idx)
	if err == nil {
		err = w.Flush()
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write index file: %w", err)
	}

	if err := os.Rename(tmp, s.path(namespace)); err != nil {
		return fmt.Errorf("replace index file: %w", err)
	}
	return nil
}

func writeIndex(w io.Writer, idx *flatIndex) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(idx.dimension)); err != nil {
		return fmt.Errorf("write dimension: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(idx.ids))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	buf := make([]byte, 8+idx.dimension*4)
	for i, id := range idx.ids {
		binary.LittleEndian.PutUint64(buf[:8], uint64(id))
		for j, v := range idx.vectors[i] {
			binary.LittleEndian.PutUint32(buf[8+j*4:], math.Float32bits(v))
		}
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("write vector %d: %w", id, err)
		}
	}
	return nil
}

// load reads an index file. A missing file yields a nil index.
func load(path string) (*flatIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	r := bufio.NewReader(f)
	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("read dimension: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}

	idx := &flatIndex{
		dimension: int(dim),
		ids:       make([]int64, 0, n),
		vectors:   make([][]float32, 0, n),
	}
	buf := make([]byte, 8+int(dim)*4)
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[8+j*4:]))
		}
		idx.ids = append(idx.ids, int64(binary.LittleEndian.Uint64(buf[:8])))
		idx.vectors = append(idx.vectors, vec)
	}
	return idx, nil
}

func l2(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

func checkNamespace(namespace string) error {
	if !namespacePattern.MatchString(namespace) {
		return fmt.Errorf("invalid namespace %q", namespace)
	}
	return nil
}
