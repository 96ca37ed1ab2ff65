package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/docpipe/internal/apierror"
	"github.com/ziadkadry99/docpipe/internal/document"
	"github.com/ziadkadry99/docpipe/internal/pipeline"
)

const healthProbeTimeout = 5 * time.Second

// Options configures the gateway handlers.
type Options struct {
	MaxUploadBytes    int64
	AllowedExtensions []string
	WatchInterval     time.Duration
}

// Gateway relays public API calls to the processor and search services.
type Gateway struct {
	processor *ProcessorClient
	search    *SearchClient
	opts      Options
	allowed   map[string]bool
	logger    *slog.Logger
}

// New returns a Gateway over the given downstream clients.
func New(processor *ProcessorClient, search *SearchClient, opts Options, logger *slog.Logger) *Gateway {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 16 << 20
	}
	if opts.WatchInterval <= 0 {
		opts.WatchInterval = time.Second
	}
	allowed := make(map[string]bool, len(opts.AllowedExtensions))
	for _, ext := range opts.AllowedExtensions {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	return &Gateway{
		processor: processor,
		search:    search,
		opts:      opts,
		allowed:   allowed,
		logger:    logger.With("component", "gateway"),
	}
}

// ProcessResponse is the body of a successful upload.
type ProcessResponse struct {
	Status             string             `json:"status"`
	ProcessedDocuments int                `json:"processed_documents"`
	Documents          []document.Summary `json:"documents"`
	IndexedCount       int                `json:"indexed_count"`
	FailedCount        int                `json:"failed_count"`
}

// HealthResponse is the combined health of the gateway and its dependencies.
type HealthResponse struct {
	API               string `json:"api"`
	DocumentProcessor string `json:"document_processor"`
	Search            string `json:"search"`
}

// RegisterRoutes mounts the public API on the given router.
func (g *Gateway) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/documents/process", g.handleProcess)
		r.Post("/documents/batch", g.handleSubmitBatch)
		r.Get("/documents/batch/{id}", g.handleBatchResult)
		r.Get("/jobs/{id}", g.handleJob)
		r.Get("/search", g.handleSearch)
		r.Get("/search/similar", g.handleSimilar)
		r.Get("/clusters", g.handleClusters)
		r.Get("/health", g.handleHealth)
	})
	r.Get("/ws/jobs/{id}", g.handleWatch)
}

// Allowed reports whether filename carries an accepted extension.
func (g *Gateway) Allowed(filename string) bool {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	return ext != "" && g.allowed[strings.ToLower(ext)]
}

func (g *Gateway) handleProcess(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, g.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(g.opts.MaxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apierror.Write(w, &apierror.Error{Kind: apierror.Validation, Message: "File too large", Details: err.Error(), Code: http.StatusRequestEntityTooLarge})
			return
		}
		apierror.Write(w, apierror.Wrap(apierror.Validation, "Invalid upload", err))
		return
	}
	var files []*multipart.FileHeader
	if r.MultipartForm != nil {
		files = r.MultipartForm.File["documents"]
	}
	if len(files) == 0 {
		apierror.Write(w, apierror.New(apierror.Validation, "No documents provided"))
		return
	}
	for _, fh := range files {
		if !g.Allowed(fh.Filename) {
			apierror.Write(w, &apierror.Error{
				Kind:    apierror.Validation,
				Message: "File type not allowed",
				Details: fmt.Sprintf("%s: allowed extensions are %s", fh.Filename, strings.Join(g.opts.AllowedExtensions, ", ")),
			})
			return
		}
	}

	ctx := r.Context()
	summaries := make([]document.Summary, 0, len(files))
	docs := make([]document.IndexableDocument, 0, len(files))
	for _, fh := range files {
		name := filepath.Base(fh.Filename)
		summary, doc, err := g.processFile(ctx, fh)
		if err != nil {
			g.logger.Warn("processing failed", "filename", name, "error", err)
			apierror.Write(w, processError(name, err))
			return
		}
		summaries = append(summaries, *summary)
		docs = append(docs, doc)
	}

	report, err := g.search.Index(ctx, docs)
	if err != nil {
		g.logger.Error("indexing failed", "documents", len(docs), "error", err)
		apierror.Write(w, apierror.Wrap(apierror.UpstreamUnavailable, "Error indexing documents", err))
		return
	}
	g.logger.Info("documents processed", "documents", len(docs), "indexed", report.IndexedCount, "failed", report.FailedCount)
	apierror.WriteJSON(w, http.StatusOK, ProcessResponse{
		Status:             "success",
		ProcessedDocuments: len(summaries),
		Documents:          summaries,
		IndexedCount:       report.IndexedCount,
		FailedCount:        report.FailedCount,
	})
}

func (g *Gateway) processFile(ctx context.Context, fh *multipart.FileHeader) (*document.Summary, document.IndexableDocument, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, document.IndexableDocument{}, err
	}
	content, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return nil, document.IndexableDocument{}, err
	}

	summary, err := g.processor.Process(ctx, filepath.Base(fh.Filename), content)
	if err != nil {
		return nil, document.IndexableDocument{}, err
	}
	record, err := g.processor.Job(ctx, summary.JobID)
	if err != nil {
		return nil, document.IndexableDocument{}, err
	}
	return summary, document.NewIndexable(summary.JobID, record), nil
}

// processError maps a per-file failure to a 400 when the processor rejected
// the document and a 500 otherwise.
func processError(name string, err error) error {
	msg := "Error processing document " + name
	var se *StatusError
	if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 {
		details := se.Message
		if se.Details != "" {
			details += ": " + se.Details
		}
		return &apierror.Error{Kind: apierror.Validation, Message: msg, Details: details, Err: err}
	}
	return apierror.Wrap(apierror.UpstreamUnavailable, msg, err)
}

// proxyError keeps a downstream status and message where there is one.
func proxyError(msg string, err error) error {
	var se *StatusError
	if !errors.As(err, &se) {
		return apierror.Wrap(apierror.UpstreamUnavailable, msg, err)
	}
	kind := apierror.UpstreamUnavailable
	switch {
	case se.Code == http.StatusNotFound:
		kind = apierror.NotFound
	case se.Code == http.StatusServiceUnavailable:
		kind = apierror.Busy
	case se.Code >= 400 && se.Code < 500:
		kind = apierror.Validation
	}
	if se.Message != "" {
		msg = se.Message
	}
	return &apierror.Error{Kind: kind, Message: msg, Details: se.Details, Code: se.Code, Err: err}
}

func (g *Gateway) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, g.opts.MaxUploadBytes)
	var req pipeline.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apierror.Write(w, &apierror.Error{Kind: apierror.Validation, Message: "Request too large", Details: err.Error(), Code: http.StatusRequestEntityTooLarge})
			return
		}
		apierror.Write(w, apierror.Wrap(apierror.Validation, "Request must be JSON", err))
		return
	}
	if len(req.Documents) == 0 {
		apierror.Write(w, apierror.New(apierror.Validation, "No documents provided"))
		return
	}
	accepted, err := g.processor.SubmitBatch(r.Context(), req)
	if err != nil {
		apierror.Write(w, proxyError("Error submitting batch", err))
		return
	}
	apierror.WriteJSON(w, http.StatusAccepted, accepted)
}

func (g *Gateway) handleBatchResult(w http.ResponseWriter, r *http.Request) {
	emb, err := g.processor.Embedding(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apierror.Write(w, proxyError("Error retrieving batch result", err))
		return
	}
	apierror.WriteJSON(w, http.StatusOK, emb)
}

func (g *Gateway) handleJob(w http.ResponseWriter, r *http.Request) {
	res, err := g.processor.Job(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apierror.Write(w, proxyError("Error retrieving job", err))
		return
	}
	apierror.WriteJSON(w, http.StatusOK, res)
}

func limitParam(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return n
}

func (g *Gateway) handleSearch(w http.ResponseWriter, r *http.Request) {
	res, err := g.search.Search(r.Context(), r.URL.Query().Get("query"), limitParam(r))
	if err != nil {
		apierror.Write(w, proxyError("Search failed", err))
		return
	}
	apierror.WriteJSON(w, http.StatusOK, res)
}

func (g *Gateway) handleSimilar(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		apierror.Write(w, apierror.New(apierror.Validation, "job_id is required"))
		return
	}
	res, err := g.search.Similar(r.Context(), jobID, limitParam(r))
	if err != nil {
		apierror.Write(w, proxyError("Similarity search failed", err))
		return
	}
	apierror.WriteJSON(w, http.StatusOK, res)
}

func (g *Gateway) handleClusters(w http.ResponseWriter, r *http.Request) {
	res, err := g.search.Clusters(r.Context())
	if err != nil {
		apierror.Write(w, proxyError("Failed to retrieve clusters", err))
		return
	}
	apierror.WriteJSON(w, http.StatusOK, res)
}

// Health probes both dependencies concurrently. It never fails.
func (g *Gateway) Health(ctx context.Context) HealthResponse {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	resp := HealthResponse{API: "healthy"}
	var eg errgroup.Group
	eg.Go(func() error {
		resp.DocumentProcessor = healthString(g.processor.Health(ctx))
		return nil
	})
	eg.Go(func() error {
		resp.Search = healthString(g.search.Status(ctx))
		return nil
	})
	_ = eg.Wait()
	return resp
}

func healthString(err error) string {
	if err != nil {
		return "unhealthy: " + err.Error()
	}
	return "healthy"
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	apierror.WriteJSON(w, http.StatusOK, g.Health(r.Context()))
}
