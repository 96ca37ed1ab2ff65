package reduce

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/docpipe/internal/vectorize"
)

func TestTopKSelectsHeaviestColumns(t *testing.T) {
	features := [][]float64{
		{0.1, 0.9, 0.0, 0.5},
		{0.2, 0.8, 0.1, 0.6},
	}
	got := TopK(features, 2)
	assert.Equal(t, [][]float64{{0.9, 0.5}, {0.8, 0.6}}, got)
}

func TestTopKTiesKeepColumnOrder(t *testing.T) {
	got := TopK([][]float64{{1, 3, 3, 2}}, 2)
	assert.Equal(t, [][]float64{{3, 3}}, got)

	got = TopK([][]float64{{0.5, 0.5, 0.5}}, 2)
	assert.Equal(t, [][]float64{{0.5, 0.5}}, got)
}

func TestTopKNarrowVocabulary(t *testing.T) {
	got := TopK([][]float64{{1}, {0.4}}, 2)
	assert.Equal(t, [][]float64{{1, 0}, {0.4, 0}}, got)
}

func TestTopKAlwaysTwoColumns(t *testing.T) {
	for width := 1; width <= 6; width++ {
		row := make([]float64, width)
		for i := range row {
			row[i] = float64(width - i)
		}
		got := TopK([][]float64{row}, Dims)
		require.Len(t, got, 1)
		assert.Len(t, got[0], Dims, "width %d", width)
	}
}

func TestTopKEmpty(t *testing.T) {
	assert.Empty(t, TopK(nil, 2))
}

func TestPartition(t *testing.T) {
	tests := []struct {
		n, size int
		want    []int
	}{
		{250, 100, []int{100, 100, 50}},
		{200, 100, []int{100, 100}},
		{5, 100, []int{5}},
		{0, 100, nil},
		{3, 0, []int{3}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Partition(tt.n, tt.size), "Partition(%d, %d)", tt.n, tt.size)
	}
}

func TestTSNEDegenerate(t *testing.T) {
	out, err := TSNE(context.Background(), nil, DefaultTSNEOptions())
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = TSNE(context.Background(), [][]float64{{1, 2, 3}}, DefaultTSNEOptions())
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 0}}, out)
}

func TestTSNEDeterministicAndSeparates(t *testing.T) {
	var x [][]float64
	for i := 0; i < 10; i++ {
		x = append(x, []float64{1, 0, float64(i) * 0.01})
	}
	for i := 0; i < 10; i++ {
		x = append(x, []float64{0, 1, float64(i) * 0.01})
	}
	opts := TSNEOptions{Perplexity: 5, Iterations: 200, LearningRate: 100, Seed: 42}

	a, err := TSNE(context.Background(), x, opts)
	require.NoError(t, err)
	b, err := TSNE(context.Background(), x, opts)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	require.Len(t, a, 20)

	centroid := func(rows [][]float64) [2]float64 {
		var c [2]float64
		for _, r := range rows {
			c[0] += r[0] / float64(len(rows))
			c[1] += r[1] / float64(len(rows))
		}
		return c
	}
	spread := func(rows [][]float64, c [2]float64) float64 {
		var s float64
		for _, r := range rows {
			s += math.Hypot(r[0]-c[0], r[1]-c[1])
		}
		return s / float64(len(rows))
	}
	c1, c2 := centroid(a[:10]), centroid(a[10:])
	gap := math.Hypot(c1[0]-c2[0], c1[1]-c2[1])
	assert.Greater(t, gap, spread(a[:10], c1), "clusters should not overlap")
	assert.Greater(t, gap, spread(a[10:], c2), "clusters should not overlap")
}

func TestTSNECancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := TSNE(ctx, [][]float64{{0}, {1}, {2}}, DefaultTSNEOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func corpus(n int) []string {
	topics := []string{"network packet routing latency", "database index query planner", "garden tomato soil compost"}
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("%s document%d", topics[i%len(topics)], i%7)
	}
	return texts
}

func fastReducer(batchSize int) *BatchReducer {
	return &BatchReducer{
		BatchSize: batchSize,
		Workers:   4,
		TSNE:      TSNEOptions{Perplexity: 30, Iterations: 20, LearningRate: 200, Seed: 42},
	}
}

func TestBatchReduceRowCounts(t *testing.T) {
	tests := []struct {
		n, size   int
		wantSizes []int
	}{
		{250, 100, []int{100, 100, 50}},
		{200, 100, []int{100, 100}},
		{7, 100, []int{7}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.n, tt.size), func(t *testing.T) {
			res, err := fastReducer(tt.size).Reduce(context.Background(), corpus(tt.n))
			require.NoError(t, err)
			assert.Equal(t, tt.wantSizes, res.BatchSizes)
			assert.Len(t, res.Embedding, tt.n)
			assert.Len(t, res.FeatureVectors, tt.n)
			for _, row := range res.Embedding {
				assert.Len(t, row, Dims)
			}
		})
	}
}

func TestBatchReducePreservesOrder(t *testing.T) {
	texts := corpus(45)
	res, err := fastReducer(10).Reduce(context.Background(), texts)
	require.NoError(t, err)

	vocab, err := vectorize.Fit(texts, 0)
	require.NoError(t, err)
	assert.Equal(t, vocab.Transform(texts), res.FeatureVectors)
}

func TestBatchReduceFailsWhole(t *testing.T) {
	r := fastReducer(10)
	boom := errors.New("worker crashed")
	r.transform = func(ctx context.Context, v *vectorize.Vocabulary, batch []string) ([][]float64, error) {
		if batch[0] == corpus(30)[20] {
			return nil, boom
		}
		return v.Transform(batch), nil
	}
	res, err := r.Reduce(context.Background(), corpus(30))
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, res)
}

func TestBatchReduceEmptyVocabulary(t *testing.T) {
	_, err := fastReducer(10).Reduce(context.Background(), []string{"the", "and"})
	assert.ErrorIs(t, err, vectorize.ErrEmptyVocabulary)
}
