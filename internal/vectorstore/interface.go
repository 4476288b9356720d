package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_index_store.go -package=mocks studyqa/internal/vectorstore IndexStore

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when a vector does not match the dimension of its index.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Neighbor is one k-NN hit: the caller-assigned vector id and its L2 distance to the query.
type Neighbor struct {
	ID       int64
	Distance float32
}

// IndexStats describes a namespace's index. A missing index has zero stats.
type IndexStats struct {
	Dimension int
	Count     int
}

// IndexStore persists one nearest-neighbor index per namespace.
// A Search concurrent with an Add sees the index either before or after the Add, never in between.
type IndexStore interface {
	// Add appends vectors under the given ids. Ids must be unused within the namespace.
	Add(ctx context.Context, namespace string, ids []int64, vectors [][]float32) error
	// Search returns up to k neighbors ordered by ascending distance.
	Search(ctx context.Context, namespace string, query []float32, k int) ([]Neighbor, error)
	// Stats reports the dimension and size of a namespace's index.
	Stats(ctx context.Context, namespace string) (IndexStats, error)
	// Drop deletes a namespace's index. Dropping a missing index is not an error.
	Drop(ctx context.Context, namespace string) error
}
