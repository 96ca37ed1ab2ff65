package mcp

import "github.com/mark3labs/mcp-go/mcp"

var searchDocumentsTool = mcp.NewTool("search_documents",
	mcp.WithDescription("Full-text search over processed documents. Returns titles, excerpts and 2-D embeddings."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Search terms"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of results to return (default 10)"),
	),
)

var similarDocumentsTool = mcp.NewTool("similar_documents",
	mcp.WithDescription("List documents closest to a processed document in embedding space."),
	mcp.WithString("job_id",
		mcp.Required(),
		mcp.Description("Job id of an indexed document"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of results to return (default 5)"),
	),
)

var getJobTool = mcp.NewTool("get_job",
	mcp.WithDescription("Get the stored processing result for a job id, including batch status."),
	mcp.WithString("job_id",
		mcp.Required(),
		mcp.Description("Job id returned by an upload or batch submission"),
	),
)
