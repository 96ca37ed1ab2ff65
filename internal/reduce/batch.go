package reduce

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/docpipe/internal/vectorize"
)

// DefaultBatchSize is the partition size used when none is configured.
const DefaultBatchSize = 100

// BatchReducer vectorizes many documents in parallel partitions and projects
// them with t-SNE.
type BatchReducer struct {
	BatchSize   int
	Workers     int
	MaxFeatures int
	TSNE        TSNEOptions

	// transform vectorizes one partition; tests replace it to inject failures.
	transform func(ctx context.Context, v *vectorize.Vocabulary, batch []string) ([][]float64, error)
}

// BatchResult is the output of a batch reduction. Rows are in input order.
type BatchResult struct {
	Embedding      [][]float64
	FeatureVectors [][]float64
	BatchSizes     []int
}

// Partition splits n items into consecutive chunks of at most size.
func Partition(n, size int) []int {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var sizes []int
	for n > 0 {
		s := min(size, n)
		sizes = append(sizes, s)
		n -= s
	}
	return sizes
}

// Reduce fits one vocabulary over all texts, transforms each partition on a
// bounded worker pool and runs t-SNE over the joined rows. Any partition
// failure fails the whole reduction.
func (b *BatchReducer) Reduce(ctx context.Context, texts []string) (*BatchResult, error) {
	vocab, err := vectorize.Fit(texts, b.MaxFeatures)
	if err != nil {
		return nil, err
	}

	sizes := Partition(len(texts), b.BatchSize)
	parts := make([][][]float64, len(sizes))
	transform := b.transform
	if transform == nil {
		transform = func(_ context.Context, v *vectorize.Vocabulary, batch []string) ([][]float64, error) {
			return v.Transform(batch), nil
		}
	}

	workers := b.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	start := 0
	for i, size := range sizes {
		batch := texts[start : start+size]
		start += size
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows, err := transform(gctx, vocab, batch)
			if err != nil {
				return fmt.Errorf("batch %d: %w", i, err)
			}
			if len(rows) != len(batch) {
				return fmt.Errorf("batch %d: got %d rows for %d documents", i, len(rows), len(batch))
			}
			parts[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	features := make([][]float64, 0, len(texts))
	for _, rows := range parts {
		features = append(features, rows...)
	}
	embedding, err := TSNE(ctx, features, b.TSNE)
	if err != nil {
		return nil, fmt.Errorf("projecting embedding: %w", err)
	}
	return &BatchResult{Embedding: embedding, FeatureVectors: features, BatchSizes: sizes}, nil
}
