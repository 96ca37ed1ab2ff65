// Package mcp exposes document search and job lookup as MCP tools.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ziadkadry99/docpipe/internal/document"
	"github.com/ziadkadry99/docpipe/internal/search"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Searcher queries the search service.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) (*search.Results, error)
	Similar(ctx context.Context, jobID string, limit int) (*search.Results, error)
}

// Jobs looks up processing results.
type Jobs interface {
	Job(ctx context.Context, id string) (*document.ProcessingResult, error)
}

// Server wraps an MCP server backed by the search and processor services.
type Server struct {
	search Searcher
	jobs   Jobs
	mcp    *server.MCPServer
}

// NewServer creates a new MCP server with the given dependencies.
func NewServer(searcher Searcher, jobs Jobs) *Server {
	s := &Server{
		search: searcher,
		jobs:   jobs,
	}

	s.mcp = server.NewMCPServer(
		"docpipe",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(searchDocumentsTool, s.handleSearchDocuments)
	s.mcp.AddTool(similarDocumentsTool, s.handleSimilarDocuments)
	s.mcp.AddTool(getJobTool, s.handleGetJob)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
