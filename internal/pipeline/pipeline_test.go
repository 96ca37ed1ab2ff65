package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/docpipe/internal/apierror"
	"github.com/ziadkadry99/docpipe/internal/document"
	"github.com/ziadkadry99/docpipe/internal/extract"
	"github.com/ziadkadry99/docpipe/internal/jobstore"
	"github.com/ziadkadry99/docpipe/internal/logging"
	"github.com/ziadkadry99/docpipe/internal/reduce"
)

func newOrchestrator(t *testing.T, opts Options) (*Orchestrator, *jobstore.Store) {
	t.Helper()
	ex, err := extract.New(nil)
	require.NoError(t, err)
	store := jobstore.New(jobstore.NewMemoryBackend(), time.Hour)
	if opts.TSNE.Iterations == 0 {
		opts.TSNE = reduce.TSNEOptions{Perplexity: 30, Iterations: 20, LearningRate: 200, Seed: 42}
	}
	return New(ex, store, opts, logging.Discard()), store
}

func TestComputeStats(t *testing.T) {
	assert.Equal(t, document.Stats{TotalLength: 17, WordCount: 3, UniqueWords: 2}, ComputeStats("hello hello world"))
	assert.Equal(t, document.Stats{TotalLength: 11, WordCount: 2, UniqueWords: 2}, ComputeStats("Hello\thello"), "unique words are case-sensitive")
	assert.Equal(t, document.Stats{TotalLength: 4, WordCount: 1, UniqueWords: 1}, ComputeStats("café"))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "héllo", Preview("héllo wörld", 5))
	assert.Equal(t, "short", Preview("short", 200))
	assert.Equal(t, "", Preview("abc", 0))
}

func TestProcessDocument(t *testing.T) {
	o, store := newOrchestrator(t, Options{})
	ctx := context.Background()

	sum, err := o.ProcessDocument(ctx, &document.RawUpload{Filename: "doc.txt", Content: []byte("hello hello world")})
	require.NoError(t, err)
	assert.Equal(t, "success", sum.Status)
	assert.Equal(t, "doc.txt", sum.Filename)
	assert.Equal(t, "hello hello world", sum.TextPreview)
	assert.Equal(t, document.Stats{TotalLength: 17, WordCount: 3, UniqueWords: 2}, sum.Stats)

	stored, err := store.Get(ctx, sum.JobID)
	require.NoError(t, err)
	assert.Equal(t, document.ModeSingle, stored.Mode)
	assert.Equal(t, document.StatusCompleted, stored.Status)
	assert.Equal(t, "utf-8", stored.Encoding)
	require.Len(t, stored.Embedding, 1)
	assert.Len(t, stored.Embedding[0], 2)
	require.Len(t, stored.FeatureVectors, 1)
	assert.Len(t, stored.FeatureVectors[0], 2)
}

func TestProcessDocumentPreviewLengths(t *testing.T) {
	o, store := newOrchestrator(t, Options{})
	text := strings.Repeat("lorem ipsum ", 200)

	sum, err := o.ProcessDocument(context.Background(), &document.RawUpload{Filename: "long.txt", Content: []byte(text)})
	require.NoError(t, err)
	assert.Len(t, sum.TextPreview, 200)

	stored, err := store.Get(context.Background(), sum.JobID)
	require.NoError(t, err)
	assert.Len(t, stored.TextPreview, 1000)
}

func TestProcessDocumentSummaryHasNoVectors(t *testing.T) {
	o, _ := newOrchestrator(t, Options{})
	sum, err := o.ProcessDocument(context.Background(), &document.RawUpload{Filename: "doc.txt", Content: []byte("alpha beta")})
	require.NoError(t, err)

	data, err := json.Marshal(sum)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "embedding")
	assert.NotContains(t, string(data), "feature_vectors")
}

func TestProcessDocumentFailures(t *testing.T) {
	tests := []struct {
		name   string
		upload *document.RawUpload
		kind   apierror.Kind
		status int
	}{
		{"missing", nil, apierror.Validation, 400},
		{"empty file", &document.RawUpload{Filename: "doc.txt"}, apierror.Validation, 400},
		{"unsupported", &document.RawUpload{Filename: "report.pdf", Content: []byte("%PDF-1.4")}, apierror.Extraction, 400},
		{"undecodable", &document.RawUpload{Filename: "bin.txt", Content: []byte{0x81, 0x8d}}, apierror.Extraction, 400},
		{"stop words only", &document.RawUpload{Filename: "doc.txt", Content: []byte("the and of")}, apierror.Processing, 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _ := newOrchestrator(t, Options{})
			_, err := o.ProcessDocument(context.Background(), tt.upload)
			require.Error(t, err)
			assert.True(t, apierror.Is(err, tt.kind), "got %v", err)
			assert.Equal(t, tt.status, apierror.Status(err))
		})
	}
}

func TestProcessDocumentLogsFailedStage(t *testing.T) {
	var buf bytes.Buffer
	ex, err := extract.New(nil)
	require.NoError(t, err)
	o := New(ex, jobstore.New(jobstore.NewMemoryBackend(), time.Hour), Options{}, logging.New("debug", "json", &buf))

	_, err = o.ProcessDocument(context.Background(), &document.RawUpload{Filename: "x.txt", Content: []byte{0x81}})
	require.Error(t, err)

	var failed map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		if rec["msg"] == "pipeline failed" {
			failed = rec
		}
	}
	require.NotNil(t, failed, "expected a failure record in %s", buf.String())
	assert.Equal(t, "extracting", failed["stage"])
	assert.Equal(t, "x.txt", failed["filename"])
}

func TestProcessDocumentStorageUnavailable(t *testing.T) {
	ex, err := extract.New(nil)
	require.NoError(t, err)
	o := New(ex, jobstore.New(failingBackend{}, time.Hour), Options{}, logging.Discard())

	_, err = o.ProcessDocument(context.Background(), &document.RawUpload{Filename: "doc.txt", Content: []byte("hello world")})
	assert.True(t, apierror.Is(err, apierror.StorageUnavailable), "got %v", err)
}

func corpus(n int) []string {
	docs := make([]string, n)
	for i := range docs {
		docs[i] = fmt.Sprintf("report %d about topic%d and subject%d", i, i%5, i%3)
	}
	return docs
}

func intPtr(v int) *int { return &v }

func TestSubmitBatch(t *testing.T) {
	o, _ := newOrchestrator(t, Options{})
	ctx := context.Background()

	id, err := o.SubmitBatch(ctx, BatchRequest{Documents: corpus(250), BatchSize: intPtr(100)})
	require.NoError(t, err)
	o.Wait()

	res, err := o.Result(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, document.ModeBatch, res.Mode)
	assert.Equal(t, document.StatusCompleted, res.Status)
	assert.Equal(t, []int{100, 100, 50}, res.BatchSizes)
	assert.Equal(t, 250, res.DocumentCount)
	assert.Len(t, res.Embedding, 250)
	assert.Len(t, res.FeatureVectors, 250)
	for _, row := range res.Embedding {
		assert.Len(t, row, 2)
	}
}

func TestSubmitBatchDefaultSize(t *testing.T) {
	o, _ := newOrchestrator(t, Options{BatchSize: 4})
	id, err := o.SubmitBatch(context.Background(), BatchRequest{Documents: corpus(10)})
	require.NoError(t, err)
	o.Wait()

	res, err := o.Result(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 4, 2}, res.BatchSizes)
}

func TestSubmitBatchValidation(t *testing.T) {
	o, _ := newOrchestrator(t, Options{})
	_, err := o.SubmitBatch(context.Background(), BatchRequest{})
	assert.True(t, apierror.Is(err, apierror.Validation))

	_, err = o.SubmitBatch(context.Background(), BatchRequest{Documents: []string{"a b"}, BatchSize: intPtr(0)})
	assert.True(t, apierror.Is(err, apierror.Validation))
}

func TestSubmitBatchDocumentLimit(t *testing.T) {
	o, _ := newOrchestrator(t, Options{MaxBatchDocuments: 10})
	ctx := context.Background()

	_, err := o.SubmitBatch(ctx, BatchRequest{Documents: corpus(11)})
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.Validation))

	id, err := o.SubmitBatch(ctx, BatchRequest{Documents: corpus(10)})
	require.NoError(t, err)
	o.Wait()
	res, err := o.Result(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 10, res.DocumentCount)
}

type blockingReducer struct {
	release chan struct{}
	err     error
}

func (b *blockingReducer) Reduce(ctx context.Context, texts []string) (*reduce.BatchResult, error) {
	<-b.release
	if b.err != nil {
		return nil, b.err
	}
	rows := make([][]float64, len(texts))
	for i := range rows {
		rows[i] = []float64{0, 0}
	}
	return &reduce.BatchResult{Embedding: rows, FeatureVectors: rows, BatchSizes: []int{len(texts)}}, nil
}

func TestSubmitBatchPendingThenReady(t *testing.T) {
	o, _ := newOrchestrator(t, Options{})
	br := &blockingReducer{release: make(chan struct{})}
	o.reducer = func(int) batchReducer { return br }
	ctx := context.Background()

	id, err := o.SubmitBatch(ctx, BatchRequest{Documents: []string{"one doc", "two doc"}})
	require.NoError(t, err)

	_, err = o.Result(ctx, id)
	assert.True(t, apierror.Is(err, apierror.NotFound), "pending result should be NotFound, got %v", err)

	job, err := o.Job(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, document.StatusPending, job.Status)

	close(br.release)
	o.Wait()

	res, err := o.Result(ctx, id)
	require.NoError(t, err)
	assert.Len(t, res.Embedding, 2)
}

func TestSubmitBatchBackpressure(t *testing.T) {
	o, _ := newOrchestrator(t, Options{MaxInflightBatches: 1})
	br := &blockingReducer{release: make(chan struct{})}
	o.reducer = func(int) batchReducer { return br }
	ctx := context.Background()

	_, err := o.SubmitBatch(ctx, BatchRequest{Documents: []string{"first"}})
	require.NoError(t, err)

	_, err = o.SubmitBatch(ctx, BatchRequest{Documents: []string{"second"}})
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.Busy))
	assert.Equal(t, 503, apierror.Status(err))

	close(br.release)
	o.Wait()

	_, err = o.SubmitBatch(ctx, BatchRequest{Documents: []string{"third"}})
	assert.NoError(t, err, "slot should be released after completion")
	o.Wait()
}

func TestSubmitBatchFailureStored(t *testing.T) {
	o, _ := newOrchestrator(t, Options{})
	br := &blockingReducer{release: make(chan struct{}), err: errors.New("batch 2: worker crashed")}
	close(br.release)
	o.reducer = func(int) batchReducer { return br }
	ctx := context.Background()

	id, err := o.SubmitBatch(ctx, BatchRequest{Documents: corpus(5)})
	require.NoError(t, err)
	o.Wait()

	res, err := o.Result(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, document.StatusFailed, res.Status)
	assert.Contains(t, res.Error, "worker crashed")
	assert.Empty(t, res.Embedding)
}

func TestResultUnknown(t *testing.T) {
	o, _ := newOrchestrator(t, Options{})
	_, err := o.Result(context.Background(), "nope")
	assert.Equal(t, 404, apierror.Status(err))
}

type failingBackend struct{}

var errDown = errors.New("connection refused")

func (failingBackend) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, errDown
}
func (failingBackend) SetXX(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, errDown
}
func (failingBackend) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errDown }
func (failingBackend) Ping(context.Context) error                        { return errDown }
func (failingBackend) Close() error                                      { return nil }
