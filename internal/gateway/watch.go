package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ziadkadry99/docpipe/internal/document"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WatchMessage is pushed to websocket clients watching a batch job.
type WatchMessage struct {
	Type           string          `json:"type"` // "status", "result" or "error"
	JobID          string          `json:"job_id"`
	Status         document.Status `json:"status,omitempty"`
	Embedding      [][]float64     `json:"embedding,omitempty"`
	FeatureVectors [][]float64     `json:"feature_vectors,omitempty"`
	BatchSizes     []int           `json:"batch_sizes,omitempty"`
	Error          string          `json:"error,omitempty"`
}

func (g *Gateway) handleWatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// The client never sends anything; reading notices when it goes away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(g.opts.WatchInterval)
	defer ticker.Stop()
	for {
		msg := g.poll(ctx, id)
		if err := conn.WriteJSON(msg); err != nil {
			g.logger.Debug("websocket write failed", "job_id", id, "error", err)
			return
		}
		if msg.Type != "status" {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll turns the current job record into the next message for a watcher.
func (g *Gateway) poll(ctx context.Context, id string) WatchMessage {
	res, err := g.processor.Job(ctx, id)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return WatchMessage{Type: "error", JobID: id, Error: "Job not found or expired"}
		}
		return WatchMessage{Type: "error", JobID: id, Error: err.Error()}
	}
	switch res.Status {
	case document.StatusCompleted:
		return WatchMessage{
			Type:           "result",
			JobID:          id,
			Status:         res.Status,
			Embedding:      res.Embedding,
			FeatureVectors: res.FeatureVectors,
			BatchSizes:     res.BatchSizes,
		}
	case document.StatusFailed:
		return WatchMessage{Type: "error", JobID: id, Status: res.Status, Error: res.Error}
	default:
		return WatchMessage{Type: "status", JobID: id, Status: res.Status}
	}
}
