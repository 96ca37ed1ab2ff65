// Package document holds the data model shared by the processor, search and
// gateway services.
package document

import "time"

// Mode selects how a processing request is reduced to an embedding.
type Mode string

const (
	// ModeSingle is the synchronous per-upload path (top-k projection).
	ModeSingle Mode = "single"
	// ModeBatch is the asynchronous multi-document path (t-SNE projection).
	ModeBatch Mode = "batch"
)

// Status is the lifecycle state of a stored job record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// RawUpload is an uploaded file before extraction.
type RawUpload struct {
	Filename string
	Content  []byte
}

// Stats are simple whitespace-token statistics over the extracted text.
type Stats struct {
	TotalLength int `json:"total_length"`
	WordCount   int `json:"word_count"`
	UniqueWords int `json:"unique_words"`
}

// ProcessingResult is the record kept in the job store under a job id.
// Single-mode records carry one embedding row; batch records one row per
// submitted document.
type ProcessingResult struct {
	Mode           Mode        `json:"mode"`
	Status         Status      `json:"status"`
	Embedding      [][]float64 `json:"embedding,omitempty"`
	FeatureVectors [][]float64 `json:"feature_vectors,omitempty"`
	TextPreview    string      `json:"text_preview,omitempty"`
	Filename       string      `json:"filename,omitempty"`
	Encoding       string      `json:"encoding,omitempty"`
	Stats          *Stats      `json:"stats,omitempty"`
	DocumentCount  int         `json:"document_count,omitempty"`
	BatchSizes     []int       `json:"batch_sizes,omitempty"`
	Error          string      `json:"error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Summary is the synchronous response for a single-document run. It leaves
// out the embedding and feature vectors, which stay in the job store.
type Summary struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	Filename    string `json:"filename"`
	TextPreview string `json:"text_preview"`
	Stats       Stats  `json:"stats"`
}

// IndexableDocument is what the gateway forwards to the search service.
type IndexableDocument struct {
	JobID     string      `json:"job_id"`
	Title     string      `json:"title"`
	Content   string      `json:"content"`
	Embedding [][]float64 `json:"embedding"`
	Stats     Stats       `json:"stats"`
}

// NewIndexable builds the search hand-off record from a stored result.
func NewIndexable(jobID string, r *ProcessingResult) IndexableDocument {
	doc := IndexableDocument{
		JobID:     jobID,
		Title:     r.Filename,
		Content:   r.TextPreview,
		Embedding: r.Embedding,
	}
	if r.Stats != nil {
		doc.Stats = *r.Stats
	}
	return doc
}
