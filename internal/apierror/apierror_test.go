package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatusByKind(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{Validation, http.StatusBadRequest},
		{Extraction, http.StatusBadRequest},
		{Processing, http.StatusInternalServerError},
		{StorageUnavailable, http.StatusInternalServerError},
		{UpstreamUnavailable, http.StatusInternalServerError},
		{NotFound, http.StatusNotFound},
		{Busy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		if got := Status(New(tt.kind, "x")); got != tt.want {
			t.Errorf("Status(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestStatusUnclassified(t *testing.T) {
	if got := Status(errors.New("boom")); got != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", got)
	}
}

func TestWrappedKind(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("storing: %w", Wrap(StorageUnavailable, "Storage unavailable", cause))

	if !Is(err, StorageUnavailable) {
		t.Fatal("expected StorageUnavailable in chain")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable via errors.Is")
	}
}

func TestCodeOverride(t *testing.T) {
	err := &Error{Kind: UpstreamUnavailable, Message: "x", Code: http.StatusBadRequest}
	if got := Status(err); got != http.StatusBadRequest {
		t.Errorf("expected override 400, got %d", got)
	}
}

func TestWrite(t *testing.T) {
	w := httptest.NewRecorder()
	Write(w, Wrap(Extraction, "Could not extract text from document", errors.New("unsupported type")))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %q", ct)
	}
	var body Body
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Error != "Could not extract text from document" {
		t.Errorf("unexpected error %q", body.Error)
	}
	if body.Details != "unsupported type" {
		t.Errorf("unexpected details %q", body.Details)
	}
}
