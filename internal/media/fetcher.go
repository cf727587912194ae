// Package media はコメント中の画像を取得し、分類エンジンに渡せる形式へ変換する。
package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultMaxSize は画像の既定の最大サイズ（5MB）。
const DefaultMaxSize = 5 * 1024 * 1024

// defaultTimeout は画像取得のタイムアウト。
const defaultTimeout = 10 * time.Second

// 画像取得の失敗理由
var (
	ErrTooLarge    = errors.New("image exceeds size limit")
	ErrNotAnImage  = errors.New("response is not an image")
	ErrBadResponse = errors.New("unexpected response status")
)

// SafeClientFactory はSSRF防止付きHTTPクライアントを生成する。
type SafeClientFactory interface {
	NewSafeClient(timeout time.Duration) *http.Client
}

// Fetcher は画像URLを取得してdata URIに変換する。
type Fetcher struct {
	client  *http.Client
	maxSize int64
}

// NewFetcher はFetcherを生成する。
// factoryがnilの場合は通常のHTTPクライアントを使う（テスト用）。
// maxSizeが0以下の場合はDefaultMaxSizeを使う。
func NewFetcher(factory SafeClientFactory, timeout time.Duration, maxSize int64) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	var client *http.Client
	if factory != nil {
		client = factory.NewSafeClient(timeout)
	} else {
		client = &http.Client{Timeout: timeout}
	}

	return &Fetcher{
		client:  client,
		maxSize: maxSize,
	}
}

// Fetch は画像を取得し、data:<mime>;base64,... 形式の文字列を返す。
// 2xx以外、サイズ超過、画像以外のContent-Typeはエラーとする。
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("image request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: %d", ErrBadResponse, resp.StatusCode)
	}

	if resp.ContentLength > f.maxSize {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(body)) > f.maxSize {
		return "", fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxSize)
	}

	mimeType := extractMimeType(resp.Header.Get("Content-Type"))
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = extractMimeType(http.DetectContentType(body))
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return "", fmt.Errorf("%w: %q", ErrNotAnImage, mimeType)
	}

	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(body), nil
}

// extractMimeType はContent-Typeヘッダーからメディアタイプを抽出する。
func extractMimeType(contentType string) string {
	if contentType == "" {
		return ""
	}
	// セミコロンの前の部分（charset等を除去）
	parts := strings.SplitN(contentType, ";", 2)
	return strings.TrimSpace(strings.ToLower(parts[0]))
}
