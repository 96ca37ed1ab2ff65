// Package pipeline drives uploads through extraction, vectorization,
// reduction and storage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ziadkadry99/docpipe/internal/apierror"
	"github.com/ziadkadry99/docpipe/internal/document"
	"github.com/ziadkadry99/docpipe/internal/extract"
	"github.com/ziadkadry99/docpipe/internal/jobstore"
	"github.com/ziadkadry99/docpipe/internal/reduce"
	"github.com/ziadkadry99/docpipe/internal/vectorize"
)

// Options configures an Orchestrator. Zero values take defaults.
type Options struct {
	MaxFeatures        int
	PreviewChars       int
	StoredPreviewChars int
	BatchSize          int
	Workers            int
	MaxInflightBatches int64
	MaxBatchDocuments  int
	TSNE               reduce.TSNEOptions
}

func (o *Options) applyDefaults() {
	if o.MaxFeatures <= 0 {
		o.MaxFeatures = vectorize.DefaultMaxFeatures
	}
	if o.PreviewChars <= 0 {
		o.PreviewChars = 200
	}
	if o.StoredPreviewChars <= 0 {
		o.StoredPreviewChars = 1000
	}
	if o.BatchSize <= 0 {
		o.BatchSize = reduce.DefaultBatchSize
	}
	if o.MaxInflightBatches <= 0 {
		o.MaxInflightBatches = 4
	}
	if o.MaxBatchDocuments <= 0 {
		o.MaxBatchDocuments = DefaultMaxBatchDocuments
	}
}

// DefaultMaxBatchDocuments caps the number of documents in one batch job.
const DefaultMaxBatchDocuments = 5000

// Orchestrator runs the document pipeline. It keeps no per-request state
// between calls; the job store is the only shared resource.
type Orchestrator struct {
	opts      Options
	extractor *extract.Extractor
	store     *jobstore.Store
	logger    *slog.Logger

	inflight *semaphore.Weighted
	wg       sync.WaitGroup

	// reducer builds the batch reducer; tests swap it to inject failures.
	reducer func(batchSize int) batchReducer
}

type batchReducer interface {
	Reduce(ctx context.Context, texts []string) (*reduce.BatchResult, error)
}

// New returns an orchestrator writing results to store.
func New(extractor *extract.Extractor, store *jobstore.Store, opts Options, logger *slog.Logger) *Orchestrator {
	opts.applyDefaults()
	o := &Orchestrator{
		opts:      opts,
		extractor: extractor,
		store:     store,
		logger:    logger.With("component", "pipeline"),
		inflight:  semaphore.NewWeighted(opts.MaxInflightBatches),
	}
	o.reducer = func(batchSize int) batchReducer {
		return &reduce.BatchReducer{
			BatchSize:   batchSize,
			Workers:     o.opts.Workers,
			MaxFeatures: o.opts.MaxFeatures,
			TSNE:        o.opts.TSNE,
		}
	}
	return o
}

// ComputeStats counts characters and whitespace-separated words.
func ComputeStats(text string) document.Stats {
	words := strings.Fields(text)
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}
	return document.Stats{
		TotalLength: len([]rune(text)),
		WordCount:   len(words),
		UniqueWords: len(unique),
	}
}

// Preview returns at most n runes of text.
func Preview(text string, n int) string {
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}

// ProcessDocument runs one upload through the single-document path and
// stores the full result. The returned summary leaves out the vectors.
func (o *Orchestrator) ProcessDocument(ctx context.Context, upload *document.RawUpload) (*document.Summary, error) {
	if upload == nil || upload.Filename == "" {
		r := newRun(o.logger)
		return nil, r.fail(apierror.Validation, "No document provided", errors.New("request has no document"))
	}
	r := newRun(o.logger.With("filename", upload.Filename))
	if len(upload.Content) == 0 {
		return nil, r.fail(apierror.Validation, "Empty file", errors.New("uploaded file has no content"))
	}

	r.enter(StageExtracting)
	text, err := o.extractor.Extract(upload.Content, upload.Filename)
	if err != nil {
		return nil, r.fail(apierror.Extraction, "Could not extract text from document", err)
	}

	r.enter(StageVectorizing)
	features, _, err := vectorize.Vectorize([]string{text.Content}, o.opts.MaxFeatures)
	if err != nil {
		return nil, r.fail(apierror.Processing, "Error processing text", err)
	}

	r.enter(StageReducing)
	embedding := reduce.TopK(features, reduce.Dims)

	r.enter(StageStoring)
	stats := ComputeStats(text.Content)
	id, err := o.store.Put(ctx, &document.ProcessingResult{
		Mode:           document.ModeSingle,
		Status:         document.StatusCompleted,
		Embedding:      embedding,
		FeatureVectors: features,
		TextPreview:    Preview(text.Content, o.opts.StoredPreviewChars),
		Filename:       upload.Filename,
		Encoding:       text.Encoding,
		Stats:          &stats,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return nil, r.fail(apierror.StorageUnavailable, "Could not store result", err)
	}

	r.enter(StageCompleted)
	r.logger.Info("document processed", "job_id", id, "encoding", text.Encoding, "words", stats.WordCount)
	return &document.Summary{
		JobID:       id,
		Status:      "success",
		Filename:    upload.Filename,
		TextPreview: Preview(text.Content, o.opts.PreviewChars),
		Stats:       stats,
	}, nil
}

// BatchRequest is a multi-document submission. BatchSize is optional.
type BatchRequest struct {
	Mode      document.Mode `json:"mode,omitempty"`
	Documents []string      `json:"documents"`
	BatchSize *int          `json:"batch_size,omitempty"`
}

// SubmitBatch validates req, reserves a job id and reduces the documents in
// the background. It returns a Busy error when too many batches are running.
func (o *Orchestrator) SubmitBatch(ctx context.Context, req BatchRequest) (string, error) {
	r := newRun(o.logger.With("mode", document.ModeBatch))
	if len(req.Documents) == 0 {
		return "", r.fail(apierror.Validation, "No documents provided", errors.New("documents must be a non-empty list"))
	}
	if len(req.Documents) > o.opts.MaxBatchDocuments {
		return "", r.fail(apierror.Validation, "Too many documents", fmt.Errorf("batch has %d documents, limit is %d", len(req.Documents), o.opts.MaxBatchDocuments))
	}
	batchSize := o.opts.BatchSize
	if req.BatchSize != nil {
		if *req.BatchSize < 1 {
			return "", r.fail(apierror.Validation, "Invalid batch_size", fmt.Errorf("batch_size must be at least 1, got %d", *req.BatchSize))
		}
		batchSize = *req.BatchSize
	}

	if !o.inflight.TryAcquire(1) {
		return "", r.fail(apierror.Busy, "Too many batch jobs in progress", fmt.Errorf("limit of %d concurrent batches reached", o.opts.MaxInflightBatches))
	}
	id, err := o.store.Reserve(ctx, document.ModeBatch)
	if err != nil {
		o.inflight.Release(1)
		return "", r.fail(apierror.StorageUnavailable, "Could not store result", err)
	}

	docs := append([]string(nil), req.Documents...)
	logger := r.logger.With("job_id", id)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.inflight.Release(1)
		o.runBatch(context.WithoutCancel(ctx), &run{logger: logger, stage: StageReceived}, id, docs, batchSize)
	}()
	logger.Info("batch accepted", "documents", len(docs), "batch_size", batchSize)
	return id, nil
}

func (o *Orchestrator) runBatch(ctx context.Context, r *run, id string, docs []string, batchSize int) {
	started := time.Now()
	r.enter(StageVectorizing)
	res, err := o.reducer(batchSize).Reduce(ctx, docs)

	var result *document.ProcessingResult
	if err != nil {
		r.fail(apierror.Processing, "Batch processing failed", err)
		result = &document.ProcessingResult{
			Mode:          document.ModeBatch,
			Status:        document.StatusFailed,
			DocumentCount: len(docs),
			Error:         err.Error(),
		}
	} else {
		r.enter(StageReducing)
		result = &document.ProcessingResult{
			Mode:           document.ModeBatch,
			Status:         document.StatusCompleted,
			Embedding:      res.Embedding,
			FeatureVectors: res.FeatureVectors,
			DocumentCount:  len(docs),
			BatchSizes:     res.BatchSizes,
		}
	}
	result.CreatedAt = time.Now().UTC()

	r.enter(StageStoring)
	if err := o.store.Complete(ctx, id, result); err != nil {
		r.fail(apierror.StorageUnavailable, "Could not store result", err)
		return
	}
	if result.Status == document.StatusCompleted {
		r.enter(StageCompleted)
		r.logger.Info("batch completed", "documents", len(docs), "batches", len(res.BatchSizes), "duration", time.Since(started))
	}
}

// Job returns the stored record for id, pending or not.
func (o *Orchestrator) Job(ctx context.Context, id string) (*document.ProcessingResult, error) {
	res, err := o.store.Lookup(ctx, id)
	return res, classifyStoreErr(id, err)
}

// Result returns the finished record for id. Pending jobs are NotFound.
func (o *Orchestrator) Result(ctx context.Context, id string) (*document.ProcessingResult, error) {
	res, err := o.store.Get(ctx, id)
	return res, classifyStoreErr(id, err)
}

func classifyStoreErr(id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jobstore.ErrNotFound):
		return apierror.Wrap(apierror.NotFound, "Job not found or expired", fmt.Errorf("job %s: %w", id, err))
	case errors.Is(err, jobstore.ErrUnavailable):
		return apierror.Wrap(apierror.StorageUnavailable, "Job store unavailable", err)
	default:
		return apierror.Wrap(apierror.Processing, "Could not read job", err)
	}
}

// Wait blocks until every accepted batch has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}
