// Package search indexes processed documents for full-text and embedding
// neighbourhood queries.
package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ziadkadry99/docpipe/internal/db"
	"github.com/ziadkadry99/docpipe/internal/document"
	"github.com/ziadkadry99/docpipe/internal/vectorize"
)

// timeLayout is fixed-width so indexed_at sorts chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrNotFound is returned when a job id has not been indexed.
var ErrNotFound = errors.New("document not indexed")

// Hit is one search result.
type Hit struct {
	ID        string         `json:"id"`
	JobID     string         `json:"job_id"`
	Title     string         `json:"title"`
	Excerpt   string         `json:"excerpt"`
	Score     float64        `json:"score"`
	Embedding [][]float64    `json:"embedding"`
	Stats     document.Stats `json:"stats"`
}

// Clusters is the embedding layout of every indexed document.
type Clusters struct {
	Embedding [][]float64 `json:"embedding"`
	Titles    []string    `json:"titles"`
	JobIDs    []string    `json:"job_ids"`
}

// Status summarises index health.
type Status struct {
	Documents  int `json:"documents"`
	Embeddings int `json:"embeddings"`
}

// Index stores documents in SQLite (FTS5) and their embeddings in chromem.
type Index struct {
	db      *db.DB
	vectors *vectorStore
	logger  *slog.Logger
}

// NewIndex opens an index over d and loads stored embeddings into memory.
func NewIndex(ctx context.Context, d *db.DB, logger *slog.Logger) (*Index, error) {
	vs, err := newVectorStore()
	if err != nil {
		return nil, err
	}
	ix := &Index{db: d, vectors: vs, logger: logger.With("component", "search")}
	if err := ix.loadVectors(ctx); err != nil {
		return nil, fmt.Errorf("loading embeddings: %w", err)
	}
	return ix, nil
}

func (ix *Index) loadVectors(ctx context.Context) error {
	rows, err := ix.db.QueryContext(ctx, `SELECT job_id, title, embedding FROM documents`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id, title, raw string
		if err := rows.Scan(&id, &title, &raw); err != nil {
			return err
		}
		var emb [][]float64
		if err := json.Unmarshal([]byte(raw), &emb); err != nil {
			ix.logger.Warn("skipping stored embedding", "job_id", id, "error", err)
			continue
		}
		if err := ix.vectors.Upsert(ctx, id, title, emb); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Add indexes doc, replacing any earlier version with the same job id.
func (ix *Index) Add(ctx context.Context, doc document.IndexableDocument) error {
	if doc.JobID == "" {
		return errors.New("document has no job_id")
	}
	emb, err := json.Marshal(doc.Embedding)
	if err != nil {
		return fmt.Errorf("encoding embedding: %w", err)
	}
	stats, err := json.Marshal(doc.Stats)
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (job_id, title, content, embedding, stats, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			embedding = excluded.embedding,
			stats = excluded.stats,
			indexed_at = excluded.indexed_at`,
		doc.JobID, doc.Title, doc.Content, string(emb), string(stats), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("upserting document: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents_fts WHERE job_id = ?`, doc.JobID); err != nil {
		return fmt.Errorf("clearing full-text row: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO documents_fts (job_id, title, content) VALUES (?, ?, ?)`,
		doc.JobID, doc.Title, doc.Content); err != nil {
		return fmt.Errorf("indexing full text: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	if err := ix.vectors.Upsert(ctx, doc.JobID, doc.Title, doc.Embedding); err != nil {
		return fmt.Errorf("storing embedding: %w", err)
	}
	return nil
}

// matchExpr turns free text into an FTS5 query matching any of its terms.
func matchExpr(query string) string {
	terms := vectorize.Tokenize(query)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}

// Search returns documents matching query ranked by bm25. A query with no
// searchable terms lists the most recently indexed documents.
func (ix *Index) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	expr := matchExpr(query)

	var (
		rows *sql.Rows
		err  error
	)
	if expr == "" {
		rows, err = ix.db.QueryContext(ctx, `
			SELECT job_id, title, substr(content, 1, 200), 0.0, embedding, stats
			FROM documents
			ORDER BY indexed_at DESC, job_id
			LIMIT ?`, limit)
	} else {
		rows, err = ix.db.QueryContext(ctx, `
			SELECT d.job_id, d.title,
				snippet(documents_fts, 2, '<em>', '</em>', '...', 24),
				-bm25(documents_fts), d.embedding, d.stats
			FROM documents_fts
			JOIN documents d ON d.job_id = documents_fts.job_id
			WHERE documents_fts MATCH ?
			ORDER BY bm25(documents_fts)
			LIMIT ?`, expr, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}
	defer rows.Close()

	hits := []Hit{}
	for rows.Next() {
		var h Hit
		var emb, stats string
		if err := rows.Scan(&h.JobID, &h.Title, &h.Excerpt, &h.Score, &emb, &stats); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		h.ID = h.JobID
		if err := decodeStored(emb, stats, &h.Embedding, &h.Stats); err != nil {
			ix.logger.Warn("skipping unreadable document", "job_id", h.JobID, "error", err)
			continue
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Get returns the indexed document for jobID.
func (ix *Index) Get(ctx context.Context, jobID string) (*document.IndexableDocument, error) {
	var doc document.IndexableDocument
	var emb, stats string
	err := ix.db.QueryRowContext(ctx,
		`SELECT job_id, title, content, embedding, stats FROM documents WHERE job_id = ?`, jobID).
		Scan(&doc.JobID, &doc.Title, &doc.Content, &emb, &stats)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading document: %w", err)
	}
	if err := decodeStored(emb, stats, &doc.Embedding, &doc.Stats); err != nil {
		return nil, fmt.Errorf("loading document %s: %w", jobID, err)
	}
	return &doc, nil
}

func decodeStored(emb, stats string, embedding *[][]float64, st *document.Stats) error {
	if err := json.Unmarshal([]byte(emb), embedding); err != nil {
		return fmt.Errorf("decoding embedding: %w", err)
	}
	if err := json.Unmarshal([]byte(stats), st); err != nil {
		return fmt.Errorf("decoding stats: %w", err)
	}
	return nil
}

// Similar returns the documents whose embeddings point closest to jobID's.
func (ix *Index) Similar(ctx context.Context, jobID string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 5
	}
	doc, err := ix.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	results, err := ix.vectors.Nearest(ctx, doc.Embedding, limit+1)
	if err != nil {
		return nil, err
	}

	hits := []Hit{}
	for _, r := range results {
		if r.ID == jobID {
			continue
		}
		if len(hits) == limit {
			break
		}
		other, err := ix.Get(ctx, r.ID)
		if err != nil {
			ix.logger.Warn("similar document missing from store", "job_id", r.ID, "error", err)
			continue
		}
		hits = append(hits, Hit{
			ID:        other.JobID,
			JobID:     other.JobID,
			Title:     other.Title,
			Excerpt:   previewRunes(other.Content, 200),
			Score:     float64(r.Similarity),
			Embedding: other.Embedding,
			Stats:     other.Stats,
		})
	}
	return hits, nil
}

// Clusters returns every document's first embedding row, oldest first.
func (ix *Index) Clusters(ctx context.Context) (*Clusters, error) {
	rows, err := ix.db.QueryContext(ctx, `SELECT job_id, title, embedding FROM documents ORDER BY indexed_at, job_id`)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	out := &Clusters{Embedding: [][]float64{}, Titles: []string{}, JobIDs: []string{}}
	for rows.Next() {
		var id, title, raw string
		if err := rows.Scan(&id, &title, &raw); err != nil {
			return nil, fmt.Errorf("scanning embedding: %w", err)
		}
		var emb [][]float64
		if err := json.Unmarshal([]byte(raw), &emb); err != nil || len(emb) == 0 {
			continue
		}
		out.Embedding = append(out.Embedding, emb[0])
		out.Titles = append(out.Titles, title)
		out.JobIDs = append(out.JobIDs, id)
	}
	return out, rows.Err()
}

// Status pings the database and counts indexed documents.
func (ix *Index) Status(ctx context.Context) (*Status, error) {
	if err := ix.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	var n int
	if err := ix.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}
	return &Status{Documents: n, Embeddings: ix.vectors.Count()}, nil
}

func previewRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
