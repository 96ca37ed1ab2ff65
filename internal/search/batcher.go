package search

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ziadkadry99/docpipe/internal/document"
)

// ProgressFunc is called after each document with the number done so far.
type ProgressFunc func(done, total int, jobID string)

// Report counts the outcome of an indexing request.
type Report struct {
	Indexed int
	Failed  int
	Errors  []error
}

// Batcher indexes documents concurrently with a bounded number of workers.
// A failed document is counted and does not stop the others.
type Batcher struct {
	concurrency int
	index       *Index
	onProgress  ProgressFunc
}

// NewBatcher creates a Batcher with the given concurrency limit.
func NewBatcher(concurrency int, index *Index, onProgress ProgressFunc) *Batcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Batcher{concurrency: concurrency, index: index, onProgress: onProgress}
}

// IndexAll adds every document and reports how many succeeded.
func (b *Batcher) IndexAll(ctx context.Context, docs []document.IndexableDocument) *Report {
	total := len(docs)
	report := &Report{}
	if total == 0 {
		return report
	}

	sem := make(chan struct{}, b.concurrency)
	var mu sync.Mutex
	var processed int64

	record := func(jobID string, err error) {
		mu.Lock()
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, err)
		} else {
			report.Indexed++
		}
		mu.Unlock()
		count := atomic.AddInt64(&processed, 1)
		if b.onProgress != nil {
			b.onProgress(int(count), total, jobID)
		}
	}

	var wg sync.WaitGroup
	for _, doc := range docs {
		select {
		case <-ctx.Done():
			record(doc.JobID, fmt.Errorf("index %s: %w", doc.JobID, ctx.Err()))
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(d document.IndexableDocument) {
			defer wg.Done()
			defer func() { <-sem }()

			err := b.index.Add(ctx, d)
			if err != nil {
				err = fmt.Errorf("index %s: %w", d.JobID, err)
			}
			record(d.JobID, err)
		}(doc)
	}

	wg.Wait()
	return report
}
