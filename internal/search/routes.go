package search

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/docpipe/internal/apierror"
	"github.com/ziadkadry99/docpipe/internal/document"
)

// IndexRequest is the body of POST /index.
type IndexRequest struct {
	Documents []document.IndexableDocument `json:"documents"`
}

// IndexResponse reports per-document outcomes of POST /index.
type IndexResponse struct {
	Status         string `json:"status"`
	IndexedCount   int    `json:"indexed_count"`
	FailedCount    int    `json:"failed_count"`
	TotalDocuments int    `json:"total_documents"`
}

// Results is the body of search and similarity responses.
type Results struct {
	Results []Hit `json:"results"`
	Total   int   `json:"total"`
}

// RegisterRoutes mounts the search service endpoints on the given router.
func RegisterRoutes(r chi.Router, index *Index, batcher *Batcher) {
	r.Post("/index", indexHandler(batcher))
	r.Get("/search", searchHandler(index))
	r.Get("/similar", similarHandler(index))
	r.Get("/clusters", clustersHandler(index))
	r.Get("/status", statusHandler(index))
}

func indexHandler(batcher *Batcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req IndexRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apierror.Write(w, apierror.Wrap(apierror.Validation, "Request must be JSON", err))
			return
		}
		if len(req.Documents) == 0 {
			apierror.Write(w, apierror.New(apierror.Validation, "No documents provided"))
			return
		}

		report := batcher.IndexAll(r.Context(), req.Documents)
		apierror.WriteJSON(w, http.StatusOK, IndexResponse{
			Status:         "success",
			IndexedCount:   report.Indexed,
			FailedCount:    report.Failed,
			TotalDocuments: len(req.Documents),
		})
	}
}

func limitParam(r *http.Request, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		return min(n, 100)
	}
	return def
}

func searchHandler(index *Index) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hits, err := index.Search(r.Context(), r.URL.Query().Get("query"), limitParam(r, 10))
		if err != nil {
			apierror.Write(w, apierror.Wrap(apierror.Processing, "Search failed", err))
			return
		}
		apierror.WriteJSON(w, http.StatusOK, Results{Results: hits, Total: len(hits)})
	}
}

func similarHandler(index *Index) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := r.URL.Query().Get("job_id")
		if jobID == "" {
			apierror.Write(w, apierror.New(apierror.Validation, "job_id is required"))
			return
		}
		hits, err := index.Similar(r.Context(), jobID, limitParam(r, 5))
		if errors.Is(err, ErrNotFound) {
			apierror.Write(w, apierror.Wrap(apierror.NotFound, "Document not indexed", err))
			return
		}
		if err != nil {
			apierror.Write(w, apierror.Wrap(apierror.Processing, "Similarity search failed", err))
			return
		}
		apierror.WriteJSON(w, http.StatusOK, Results{Results: hits, Total: len(hits)})
	}
}

func clustersHandler(index *Index) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := index.Clusters(r.Context())
		if err != nil {
			apierror.Write(w, apierror.Wrap(apierror.Processing, "Failed to retrieve clusters", err))
			return
		}
		apierror.WriteJSON(w, http.StatusOK, c)
	}
}

func statusHandler(index *Index) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := index.Status(r.Context())
		if err != nil {
			apierror.WriteJSON(w, http.StatusInternalServerError, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		apierror.WriteJSON(w, http.StatusOK, map[string]any{
			"status":     "healthy",
			"documents":  st.Documents,
			"embeddings": st.Embeddings,
		})
	}
}
