package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/docpipe/internal/document"
	"github.com/ziadkadry99/docpipe/internal/search"
)

type mockSearcher struct {
	hits []search.Hit
	err  error
}

func (m *mockSearcher) Search(_ context.Context, query string, limit int) (*search.Results, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []search.Hit
	for _, h := range m.hits {
		if strings.Contains(strings.ToLower(h.Excerpt), strings.ToLower(query)) {
			out = append(out, h)
		}
		if len(out) >= limit {
			break
		}
	}
	return &search.Results{Results: out, Total: len(out)}, nil
}

func (m *mockSearcher) Similar(_ context.Context, jobID string, limit int) (*search.Results, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []search.Hit
	for _, h := range m.hits {
		if h.JobID != jobID && len(out) < limit {
			out = append(out, h)
		}
	}
	return &search.Results{Results: out, Total: len(out)}, nil
}

type mockJobs map[string]*document.ProcessingResult

func (m mockJobs) Job(_ context.Context, id string) (*document.ProcessingResult, error) {
	if r, ok := m[id]; ok {
		return r, nil
	}
	return nil, errors.New("Job not found or expired")
}

func testHits() []search.Hit {
	return []search.Hit{
		{ID: "1", JobID: "job-a", Title: "gophers.txt", Excerpt: "Gophers dig tunnels.", Score: 1.5,
			Embedding: [][]float64{{0.1, 0.2}}, Stats: document.Stats{TotalLength: 20, WordCount: 3, UniqueWords: 3}},
		{ID: "2", JobID: "job-b", Title: "crabs.txt", Excerpt: "Crabs walk sideways.", Score: 0.5,
			Embedding: [][]float64{{0.9, 0.8}}, Stats: document.Stats{TotalLength: 20, WordCount: 3, UniqueWords: 3}},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return tc.Text
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name     string
		tool     mcp.Tool
		wantName string
	}{
		{"search_documents", searchDocumentsTool, "search_documents"},
		{"similar_documents", similarDocumentsTool, "similar_documents"},
		{"get_job", getJobTool, "get_job"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.tool.Name != tt.wantName {
				t.Errorf("tool name = %q, want %q", tt.tool.Name, tt.wantName)
			}
			if tt.tool.Description == "" {
				t.Error("tool description should not be empty")
			}
		})
	}
}

func TestNewServer(t *testing.T) {
	searcher := &mockSearcher{}
	srv := NewServer(searcher, mockJobs{})
	if srv == nil {
		t.Fatal("NewServer returned nil")
	}
	if srv.mcp == nil {
		t.Fatal("MCP server not initialized")
	}
	if srv.search != searcher {
		t.Error("searcher not set correctly")
	}
}

func TestHandleSearchDocuments(t *testing.T) {
	srv := NewServer(&mockSearcher{hits: testHits()}, mockJobs{})
	ctx := context.Background()

	t.Run("basic search", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"query": "gophers"}

		result, err := srv.handleSearchDocuments(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("unexpected tool error: %v", result.Content)
		}
		text := resultText(t, result)
		if !strings.Contains(text, "gophers.txt") || !strings.Contains(text, "Position: (0.1000, 0.2000)") {
			t.Errorf("unexpected result text:\n%s", text)
		}
	})

	t.Run("missing query", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{}

		result, err := srv.handleSearchDocuments(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error for missing query")
		}
	})

	t.Run("no matches", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"query": "zebra"}

		result, err := srv.handleSearchDocuments(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Error("empty results should not be an error")
		}
	})

	t.Run("search service down", func(t *testing.T) {
		down := NewServer(&mockSearcher{err: errors.New("search unreachable")}, mockJobs{})
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"query": "gophers"}

		result, err := down.handleSearchDocuments(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected tool error when search fails")
		}
	})
}

func TestHandleSimilarDocuments(t *testing.T) {
	srv := NewServer(&mockSearcher{hits: testHits()}, mockJobs{})
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"job_id": "job-a"}

	result, err := srv.handleSimilarDocuments(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := resultText(t, result)
	if strings.Contains(text, "gophers.txt") || !strings.Contains(text, "crabs.txt") {
		t.Errorf("expected only the other document:\n%s", text)
	}
}

func TestHandleGetJob(t *testing.T) {
	jobs := mockJobs{"job-a": {
		Mode:     document.ModeSingle,
		Status:   document.StatusCompleted,
		Filename: "gophers.txt",
	}}
	srv := NewServer(&mockSearcher{}, jobs)
	ctx := context.Background()

	t.Run("known job", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"job_id": "job-a"}

		result, err := srv.handleGetJob(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("unexpected tool error: %v", result.Content)
		}
		if text := resultText(t, result); !strings.Contains(text, `"filename": "gophers.txt"`) {
			t.Errorf("unexpected job text:\n%s", text)
		}
	})

	t.Run("unknown job", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"job_id": "nope"}

		result, err := srv.handleGetJob(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error for unknown job")
		}
	})
}
