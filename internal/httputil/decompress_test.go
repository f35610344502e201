package httputil

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/pierrec/lz4/v4"
)

func echo(w http.ResponseWriter, r *http.Request) {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	_, _ = w.Write(b)
}

func TestDecompressPayload(t *testing.T) {
	payload := []byte(`{"name":"startup","events":[]}`)

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	_, _ = bw.Write(payload)
	_ = bw.Close()

	var lz bytes.Buffer
	lw := lz4.NewWriter(&lz)
	_, _ = lw.Write(payload)
	_ = lw.Close()

	tests := []struct {
		name     string
		encoding string
		body     []byte
		status   int
	}{
		{"plain", "", payload, http.StatusOK},
		{"brotli", "br", br.Bytes(), http.StatusOK},
		{"lz4", "lz4", lz.Bytes(), http.StatusOK},
		{"unknown", "zstd", payload, http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/traces", bytes.NewReader(tt.body))
			if tt.encoding != "" {
				req.Header.Set("Content-Encoding", tt.encoding)
			}
			rec := httptest.NewRecorder()
			DecompressPayload(http.HandlerFunc(echo)).ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("got status %d, want %d", rec.Code, tt.status)
			}
			if tt.status == http.StatusOK && !bytes.Equal(rec.Body.Bytes(), payload) {
				t.Fatalf("got body %q, want %q", rec.Body.String(), payload)
			}
		})
	}
}
