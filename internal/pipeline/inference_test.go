package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeBytes(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}
	return path
}

func TestHTTPInference(t *testing.T) {
	t.Run("Classify", func(t *testing.T) {
		var gotRoute string
		var gotBody []byte
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotRoute = r.URL.Path
			gotBody, _ = io.ReadAll(r.Body)
			fmt.Fprint(w, `{"label":"person"}`)
		}))
		defer server.Close()

		path := writeBytes(t, "img.jpg", []byte("jpeg-bytes"))
		inf := NewHTTPInference(server.URL, 5*time.Second)

		label, err := inf.Classify(context.Background(), path)
		if err != nil {
			t.Fatalf("Classify failed: %v", err)
		}
		if label != "person" {
			t.Errorf("Expected label person, got %q", label)
		}
		if gotRoute != "/classify" {
			t.Errorf("Expected POST /classify, got %q", gotRoute)
		}
		if string(gotBody) != "jpeg-bytes" {
			t.Errorf("Expected raw image bytes in body, got %q", gotBody)
		}
	})

	t.Run("ClassifyEmptyLabelIsError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"label":""}`)
		}))
		defer server.Close()

		path := writeBytes(t, "img.jpg", []byte("x"))
		inf := NewHTTPInference(server.URL, 5*time.Second)

		if _, err := inf.Classify(context.Background(), path); err == nil {
			t.Error("Expected error for empty label")
		}
	})

	t.Run("CaptionPerImage", func(t *testing.T) {
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if r.URL.Path != "/caption" {
				t.Errorf("Expected POST /caption, got %q", r.URL.Path)
			}
			fmt.Fprintf(w, `{"captions":["caption %d"]}`, calls)
		}))
		defer server.Close()

		a := writeBytes(t, "a.jpg", []byte("a"))
		b := writeBytes(t, "b.jpg", []byte("b"))
		inf := NewHTTPInference(server.URL, 5*time.Second)

		captions, err := inf.Caption(context.Background(), []string{a, b})
		if err != nil {
			t.Fatalf("Caption failed: %v", err)
		}
		if len(captions) != 2 || captions[0] != "caption 1" || captions[1] != "caption 2" {
			t.Errorf("Unexpected captions %v", captions)
		}
		if calls != 2 {
			t.Errorf("Expected one request per image, got %d", calls)
		}
	})

	t.Run("ServiceErrorFailsBatch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		path := writeBytes(t, "img.jpg", []byte("x"))
		inf := NewHTTPInference(server.URL, 5*time.Second)

		if _, err := inf.Caption(context.Background(), []string{path}); err == nil {
			t.Error("Expected error for 500 response")
		}
	})

	t.Run("MissingFileIsError", func(t *testing.T) {
		inf := NewHTTPInference("http://127.0.0.1:0", time.Second)
		if _, err := inf.Classify(context.Background(), "/no/such/file.jpg"); err == nil {
			t.Error("Expected error for missing file")
		}
	})
}
