package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/ziadkadry99/docpipe/internal/pipeline"
	"github.com/ziadkadry99/docpipe/internal/processor"
)

// APIClient calls the gateway's public API. The submit command uses it.
type APIClient struct {
	c *client
}

// NewAPIClient returns a client for the gateway at baseURL.
func NewAPIClient(baseURL string, opts ClientOptions, logger *slog.Logger) *APIClient {
	return &APIClient{c: newClient("gateway", baseURL, opts, logger)}
}

// Upload sends files for processing and indexing in one request.
func (a *APIClient) Upload(ctx context.Context, files map[string][]byte) (*ProcessResponse, error) {
	resp, err := a.c.do(ctx, http.MethodPost, "/api/documents/process", nil, func() (io.Reader, string, error) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		for name, content := range files {
			fw, err := mw.CreateFormFile("documents", name)
			if err != nil {
				return nil, "", err
			}
			if _, err := fw.Write(content); err != nil {
				return nil, "", err
			}
		}
		if err := mw.Close(); err != nil {
			return nil, "", err
		}
		return &buf, mw.FormDataContentType(), nil
	})
	if err != nil {
		return nil, err
	}
	var out ProcessResponse
	if err := a.c.decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitBatch starts a batch job through the gateway.
func (a *APIClient) SubmitBatch(ctx context.Context, req pipeline.BatchRequest) (*processor.JobAccepted, error) {
	resp, err := a.c.do(ctx, http.MethodPost, "/api/documents/batch", nil, jsonBody(req))
	if err != nil {
		return nil, err
	}
	var accepted processor.JobAccepted
	if err := a.c.decode(resp, &accepted); err != nil {
		return nil, err
	}
	return &accepted, nil
}

// Watch follows a batch job over the websocket until it finishes. onStatus
// sees every intermediate status message. A job that failed or expired is
// returned as an error.
func (a *APIClient) Watch(ctx context.Context, jobID string, onStatus func(WatchMessage)) (*WatchMessage, error) {
	u, err := url.Parse(a.c.baseURL + "/ws/jobs/" + url.PathEscape(jobID))
	if err != nil {
		return nil, err
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("watching job %s: %w", jobID, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var msg WatchMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("watching job %s: %w", jobID, err)
		}
		switch msg.Type {
		case "status":
			if onStatus != nil {
				onStatus(msg)
			}
		case "result":
			return &msg, nil
		default:
			return nil, fmt.Errorf("job %s: %s", jobID, msg.Error)
		}
	}
}
