package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// pngData はPNG画像のヘッダー（最小限のテストデータ）。
var pngData = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// mockClientFactory は通常のHTTPクライアントを返し、呼び出しを記録する。
type mockClientFactory struct {
	called  bool
	timeout time.Duration
}

func (m *mockClientFactory) NewSafeClient(timeout time.Duration) *http.Client {
	m.called = true
	m.timeout = timeout
	return &http.Client{Timeout: timeout}
}

func TestNewFetcher_UsesSafeClientFactory(t *testing.T) {
	factory := &mockClientFactory{}
	NewFetcher(factory, 3*time.Second, 0)

	if !factory.called {
		t.Fatal("expected NewSafeClient to be called")
	}
	if factory.timeout != 3*time.Second {
		t.Errorf("timeout = %v, want %v", factory.timeout, 3*time.Second)
	}
}

func TestFetcher_Fetch_ReturnsDataURI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngData)
	}))
	defer server.Close()

	fetcher := NewFetcher(&mockClientFactory{}, time.Second, 1024)

	got, err := fetcher.Fetch(context.Background(), server.URL+"/cat.png")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	want := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData)
	if got != want {
		t.Errorf("Fetch() = %q, want %q", got, want)
	}
}

func TestFetcher_Fetch_SniffsMissingContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(pngData)
	}))
	defer server.Close()

	fetcher := NewFetcher(nil, time.Second, 1024)

	got, err := fetcher.Fetch(context.Background(), server.URL+"/cat")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !strings.HasPrefix(got, "data:image/png;base64,") {
		t.Errorf("Fetch() = %q, want sniffed image/png", got)
	}
}

func TestFetcher_Fetch_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			wantErr: ErrBadResponse,
		},
		{
			name: "html page",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.Write([]byte("<html></html>"))
			},
			wantErr: ErrNotAnImage,
		},
		{
			name: "too large",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "image/jpeg")
				w.Write(bytes.Repeat([]byte{0xFF}, 2048))
			},
			wantErr: ErrTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			fetcher := NewFetcher(nil, time.Second, 1024)

			_, err := fetcher.Fetch(context.Background(), server.URL+"/img.jpg")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Fetch() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFetcher_Fetch_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngData)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := NewFetcher(nil, time.Second, 1024)
	if _, err := fetcher.Fetch(ctx, server.URL+"/cat.png"); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestExtractMimeType(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"image/png", "image/png"},
		{"Image/JPEG; charset=binary", "image/jpeg"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := extractMimeType(tt.input); got != tt.want {
			t.Errorf("extractMimeType(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
