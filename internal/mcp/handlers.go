package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/docpipe/internal/search"
)

func (s *Server) handleSearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}
	limit := request.GetInt("limit", 10)
	if limit <= 0 {
		limit = 10
	}

	res, err := s.search.Search(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(res.Results) == 0 {
		return mcp.NewToolResultText("No results found. Upload documents with `docpipe submit` first."), nil
	}
	return mcp.NewToolResultText(formatHits(res.Results)), nil
}

func (s *Server) handleSimilarDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID, err := request.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: job_id"), nil
	}
	limit := request.GetInt("limit", 5)
	if limit <= 0 {
		limit = 5
	}

	res, err := s.search.Similar(ctx, jobID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("similarity search failed: %v", err)), nil
	}
	if len(res.Results) == 0 {
		return mcp.NewToolResultText("No similar documents found."), nil
	}
	return mcp.NewToolResultText(formatHits(res.Results)), nil
}

func (s *Server) handleGetJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID, err := request.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: job_id"), nil
	}

	res, err := s.jobs.Job(ctx, jobID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("job lookup failed: %v", err)), nil
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding job: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// formatHits renders search hits as plain text for agent consumption.
func formatHits(hits []search.Hit) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d result(s):\n", len(hits))

	for i, h := range hits {
		fmt.Fprintf(&sb, "\n--- Result %d ---\n", i+1)
		fmt.Fprintf(&sb, "Title: %s\n", h.Title)
		fmt.Fprintf(&sb, "Job: %s\n", h.JobID)
		if len(h.Embedding) > 0 && len(h.Embedding[0]) >= 2 {
			fmt.Fprintf(&sb, "Position: (%.4f, %.4f)\n", h.Embedding[0][0], h.Embedding[0][1])
		}
		fmt.Fprintf(&sb, "Score: %.4f\n", h.Score)
		fmt.Fprintf(&sb, "Words: %d (%d unique)\n", h.Stats.WordCount, h.Stats.UniqueWords)
		if h.Excerpt != "" {
			sb.WriteString("\n")
			sb.WriteString(h.Excerpt)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}
