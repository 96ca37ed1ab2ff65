package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ziadkadry99/docpipe/internal/document"
	"github.com/ziadkadry99/docpipe/internal/pipeline"
	"github.com/ziadkadry99/docpipe/internal/processor"
	"github.com/ziadkadry99/docpipe/internal/search"
)

// ProcessorClient talks to the processor service.
type ProcessorClient struct {
	c *client
}

// NewProcessorClient returns a client for the processor at baseURL.
func NewProcessorClient(baseURL string, opts ClientOptions, logger *slog.Logger) *ProcessorClient {
	return &ProcessorClient{c: newClient("document_processor", baseURL, opts, logger)}
}

// Process uploads one file for single-mode processing.
func (p *ProcessorClient) Process(ctx context.Context, filename string, content []byte) (*document.Summary, error) {
	resp, err := p.c.do(ctx, http.MethodPost, "/process", nil, func() (io.Reader, string, error) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("document", filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := fw.Write(content); err != nil {
			return nil, "", err
		}
		if err := mw.Close(); err != nil {
			return nil, "", err
		}
		return &buf, mw.FormDataContentType(), nil
	})
	if err != nil {
		return nil, err
	}
	var summary document.Summary
	if err := p.c.decode(resp, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Job fetches the full stored record for a job id.
func (p *ProcessorClient) Job(ctx context.Context, id string) (*document.ProcessingResult, error) {
	resp, err := p.c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}
	var res document.ProcessingResult
	if err := p.c.decode(resp, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SubmitBatch starts an asynchronous batch job.
func (p *ProcessorClient) SubmitBatch(ctx context.Context, req pipeline.BatchRequest) (*processor.JobAccepted, error) {
	resp, err := p.c.do(ctx, http.MethodPost, "/batch", nil, jsonBody(req))
	if err != nil {
		return nil, err
	}
	var accepted processor.JobAccepted
	if err := p.c.decode(resp, &accepted); err != nil {
		return nil, err
	}
	return &accepted, nil
}

// Embedding fetches a finished batch result. A pending job is a 404
// StatusError.
func (p *ProcessorClient) Embedding(ctx context.Context, id string) (*processor.EmbeddingResponse, error) {
	resp, err := p.c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id)+"/embedding", nil, nil)
	if err != nil {
		return nil, err
	}
	var emb processor.EmbeddingResponse
	if err := p.c.decode(resp, &emb); err != nil {
		return nil, err
	}
	return &emb, nil
}

// Health probes the processor's health endpoint.
func (p *ProcessorClient) Health(ctx context.Context) error {
	resp, err := p.c.do(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return err
	}
	return p.c.decode(resp, nil)
}

// SearchClient talks to the search service.
type SearchClient struct {
	c *client
}

// NewSearchClient returns a client for the search service at baseURL.
func NewSearchClient(baseURL string, opts ClientOptions, logger *slog.Logger) *SearchClient {
	return &SearchClient{c: newClient("search", baseURL, opts, logger)}
}

// Index hands processed documents to the search service.
func (s *SearchClient) Index(ctx context.Context, docs []document.IndexableDocument) (*search.IndexResponse, error) {
	resp, err := s.c.do(ctx, http.MethodPost, "/index", nil, jsonBody(search.IndexRequest{Documents: docs}))
	if err != nil {
		return nil, err
	}
	var out search.IndexResponse
	if err := s.c.decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Search runs a full-text query.
func (s *SearchClient) Search(ctx context.Context, query string, limit int) (*search.Results, error) {
	q := url.Values{"query": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return s.results(ctx, "/search", q)
}

// Similar lists documents near the given job in embedding space.
func (s *SearchClient) Similar(ctx context.Context, jobID string, limit int) (*search.Results, error) {
	q := url.Values{"job_id": {jobID}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return s.results(ctx, "/similar", q)
}

func (s *SearchClient) results(ctx context.Context, path string, q url.Values) (*search.Results, error) {
	resp, err := s.c.do(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return nil, err
	}
	var out search.Results
	if err := s.c.decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Clusters returns the 2-D points of every indexed document.
func (s *SearchClient) Clusters(ctx context.Context) (*search.Clusters, error) {
	resp, err := s.c.do(ctx, http.MethodGet, "/clusters", nil, nil)
	if err != nil {
		return nil, err
	}
	var out search.Clusters
	if err := s.c.decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status probes the search service's status endpoint.
func (s *SearchClient) Status(ctx context.Context) error {
	resp, err := s.c.do(ctx, http.MethodGet, "/status", nil, nil)
	if err != nil {
		return err
	}
	if err := s.c.decode(resp, nil); err != nil {
		return fmt.Errorf("status check: %w", err)
	}
	return nil
}
