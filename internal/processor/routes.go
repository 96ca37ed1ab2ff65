// Package processor exposes the document pipeline over HTTP.
package processor

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/docpipe/internal/apierror"
	"github.com/ziadkadry99/docpipe/internal/document"
	"github.com/ziadkadry99/docpipe/internal/pipeline"
)

// Health reports the state of a supervised dependency.
type Health interface {
	Healthy() bool
	LastError() error
}

// JobAccepted is the response to a batch submission.
type JobAccepted struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// EmbeddingResponse is the body of GET /jobs/{id}/embedding.
type EmbeddingResponse struct {
	Embedding      [][]float64 `json:"embedding"`
	FeatureVectors [][]float64 `json:"feature_vectors"`
}

// RegisterRoutes mounts processor endpoints on the given router.
func RegisterRoutes(r chi.Router, o *pipeline.Orchestrator, jobStore Health, maxUploadBytes int64) {
	r.Post("/process", processHandler(o, maxUploadBytes))
	r.Post("/batch", batchHandler(o, maxUploadBytes))
	r.Get("/jobs/{id}", jobHandler(o))
	r.Get("/jobs/{id}/embedding", embeddingHandler(o))
	r.Get("/health", healthHandler(jobStore))
}

func processHandler(o *pipeline.Orchestrator, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType == "application/json" {
			submitBatch(w, r, o, maxUploadBytes, true)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		upload, err := readUpload(r, maxUploadBytes)
		if err != nil {
			apierror.Write(w, err)
			return
		}
		summary, err := o.ProcessDocument(r.Context(), upload)
		if err != nil {
			apierror.Write(w, err)
			return
		}
		apierror.WriteJSON(w, http.StatusOK, summary)
	}
}

// readUpload returns the "document" part, or nil if the request has none.
func readUpload(r *http.Request, maxUploadBytes int64) (*document.RawUpload, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &apierror.Error{Kind: apierror.Validation, Message: "File too large", Details: err.Error(), Code: http.StatusRequestEntityTooLarge}
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, apierror.Wrap(apierror.Validation, "Invalid upload", err)
	}
	f, hdr, err := r.FormFile("document")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, apierror.Wrap(apierror.Validation, "Invalid upload", err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, apierror.Wrap(apierror.Validation, "Invalid upload", err)
	}
	return &document.RawUpload{Filename: filepath.Base(hdr.Filename), Content: content}, nil
}

func batchHandler(o *pipeline.Orchestrator, maxBodyBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		submitBatch(w, r, o, maxBodyBytes, false)
	}
}

func submitBatch(w http.ResponseWriter, r *http.Request, o *pipeline.Orchestrator, maxBodyBytes int64, requireMode bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
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
	if requireMode && req.Mode != document.ModeBatch {
		apierror.Write(w, &apierror.Error{
			Kind:    apierror.Validation,
			Message: "Unsupported mode",
			Details: `JSON requests to /process must set "mode": "batch"; single documents are uploaded as multipart`,
		})
		return
	}
	id, err := o.SubmitBatch(r.Context(), req)
	if err != nil {
		apierror.Write(w, err)
		return
	}
	apierror.WriteJSON(w, http.StatusAccepted, JobAccepted{JobID: id, Status: string(document.StatusPending)})
}

func jobHandler(o *pipeline.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := o.Job(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			apierror.Write(w, err)
			return
		}
		apierror.WriteJSON(w, http.StatusOK, res)
	}
}

func embeddingHandler(o *pipeline.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := o.Result(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			apierror.Write(w, err)
			return
		}
		if res.Status == document.StatusFailed {
			apierror.Write(w, &apierror.Error{Kind: apierror.Processing, Message: "Batch processing failed", Details: res.Error})
			return
		}
		apierror.WriteJSON(w, http.StatusOK, EmbeddingResponse{Embedding: res.Embedding, FeatureVectors: res.FeatureVectors})
	}
}

func healthHandler(jobStore Health) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !jobStore.Healthy() {
			detail := "unhealthy"
			if err := jobStore.LastError(); err != nil {
				detail = "unhealthy: " + err.Error()
			}
			apierror.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "job_store": detail})
			return
		}
		apierror.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy", "job_store": "healthy"})
	}
}
