package gateway

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ziadkadry99/docpipe/internal/logging"
	"github.com/ziadkadry99/docpipe/internal/pipeline"
)

func TestAPIClientUpload(t *testing.T) {
	gw := newGateway(t, newProcessorServer(t).URL, newSearchServer(t).URL)
	api := NewAPIClient(gw.URL, testClientOpts, logging.Discard())

	out, err := api.Upload(context.Background(), map[string][]byte{"a.txt": []byte("tunnels and gardens")})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if out.ProcessedDocuments != 1 || out.IndexedCount != 1 {
		t.Errorf("unexpected response: %+v", out)
	}
	if out.Documents[0].Stats.WordCount != 3 {
		t.Errorf("expected 3 words, got %d", out.Documents[0].Stats.WordCount)
	}
}

func TestAPIClientUploadRejected(t *testing.T) {
	gw := newGateway(t, closedURL(), closedURL())
	api := NewAPIClient(gw.URL, testClientOpts, logging.Discard())

	_, err := api.Upload(context.Background(), map[string][]byte{"tool.exe": []byte("MZ")})
	se, ok := err.(*StatusError)
	if !ok {
		t.Fatalf("expected *StatusError, got %T: %v", err, err)
	}
	if se.Code != 400 || se.Message != "File type not allowed" {
		t.Errorf("unexpected error: %+v", se)
	}
}

func TestAPIClientBatchWatch(t *testing.T) {
	gw := newGateway(t, newProcessorServer(t).URL, closedURL())
	api := NewAPIClient(gw.URL, testClientOpts, logging.Discard())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	accepted, err := api.SubmitBatch(ctx, pipeline.BatchRequest{Documents: []string{
		"red apples and green pears",
		"green pears and yellow bananas",
		"engines pistons and gears",
	}})
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	msg, err := api.Watch(ctx, accepted.JobID, nil)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if len(msg.Embedding) != 3 || len(msg.Embedding[0]) != 2 {
		t.Errorf("expected 3x2 embedding, got %v", msg.Embedding)
	}
}

func TestAPIClientWatchUnknownJob(t *testing.T) {
	gw := newGateway(t, newProcessorServer(t).URL, closedURL())
	api := NewAPIClient(gw.URL, testClientOpts, logging.Discard())

	_, err := api.Watch(context.Background(), "missing", nil)
	if err == nil || !strings.Contains(err.Error(), "Job not found or expired") {
		t.Errorf("expected not-found error, got %v", err)
	}
}
