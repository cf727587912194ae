// Package graph はFacebook Graph APIのプロキシ機能を提供する。
// 認証済みユーザーの委任クレデンシャルで投稿とコメントを取得する。
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/socialsense/internal/metrics"
	"github.com/hitoshi/socialsense/internal/model"
	"github.com/hitoshi/socialsense/internal/security"
)

const (
	// postFields は投稿取得時に要求するフィールド。
	postFields = "id,message,story,created_time,permalink_url,full_picture,from,shares,status_type,type"
	// commentFields はコメント取得時に要求するフィールド。
	commentFields = "id,message,created_time,from{id,name,picture},attachment"

	// DefaultPostLimit は投稿一覧の既定の取得件数。
	DefaultPostLimit = 10
	// DefaultCommentLimit はコメントの既定の1ページあたり件数。
	DefaultCommentLimit = 50

	// maxResponseSize はレスポンスボディの読み取り上限。
	maxResponseSize = 10 << 20
)

var htmlSanitizer security.ContentSanitizerService = security.NewContentSanitizer()

// メトリクスのendpointラベル
const (
	endpointPosts    = "posts"
	endpointPost     = "post"
	endpointComments = "comments"
)

// Client はGraph APIのクライアント。
// リトライ・キャッシュ・永続化は行わない。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	baseURL    string
	host       string
}

// NewClient はClientの新しいインスタンスを生成する。
// collectorはnilでもよい。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL string, collector metrics.MetricsCollector) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid graph api url %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		metrics:    collector,
		baseURL:    baseURL,
		host:       u.Host,
	}, nil
}

// postsResponse は/me/postsのレスポンス。
type postsResponse struct {
	Data   []model.Post `json:"data"`
	Paging model.Paging `json:"paging"`
}

// commentsResponse は/{id}/commentsのレスポンス。
type commentsResponse struct {
	Data   []model.Comment `json:"data"`
	Paging model.Paging    `json:"paging"`
}

// ListPosts はユーザー自身の投稿を1ページ分取得する。
// 上流へのリクエストは必ず1回だけ行う。
func (c *Client) ListPosts(ctx context.Context, credential string, limit int, after string) (*model.PostPage, error) {
	if limit <= 0 {
		limit = DefaultPostLimit
	}

	q := url.Values{
		"fields": {postFields},
		"limit":  {strconv.Itoa(limit)},
	}
	if after != "" {
		q.Set("after", after)
	}

	var resp postsResponse
	if err := c.getJSON(ctx, endpointPosts, c.baseURL+"/me/posts?"+q.Encode(), credential, &resp); err != nil {
		return nil, err
	}

	page := &model.PostPage{
		Data:        resp.Data,
		Paging:      resp.Paging,
		HasNextPage: resp.Paging.Next != "",
	}
	if page.Data == nil {
		page.Data = []model.Post{}
	}
	if resp.Paging.Cursors != nil {
		page.NextCursor = resp.Paging.Cursors.After
	}
	return page, nil
}

// GetPost は投稿を1件取得する。上流へのリクエストは必ず1回だけ行う。
func (c *Client) GetPost(ctx context.Context, credential, postID string) (*model.Post, error) {
	q := url.Values{"fields": {postFields}}

	var post model.Post
	if err := c.getJSON(ctx, endpointPost, c.baseURL+"/"+url.PathEscape(postID)+"?"+q.Encode(), credential, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// ListComments は投稿のコメントを新しい順に取得する。
// fetchAllがfalseの場合は1ページのみ、trueの場合はpaging.nextを辿って最後まで取得する。
// どのページで失敗してもエラーにはせず、そこで打ち切ってそれまでのコメントを
// Truncated=trueで返す。1ページ目で失敗した場合は空のリストになる。
func (c *Client) ListComments(ctx context.Context, credential, postID string, limit int, fetchAll bool) (*model.CommentList, error) {
	if limit <= 0 {
		limit = DefaultCommentLimit
	}

	q := url.Values{
		"fields": {commentFields},
		"limit":  {strconv.Itoa(limit)},
		"order":  {"reverse_chronological"},
	}
	nextURL := c.baseURL + "/" + url.PathEscape(postID) + "/comments?" + q.Encode()

	result := &model.CommentList{Comments: []model.Comment{}}
	for page := 1; nextURL != ""; page++ {
		var resp commentsResponse
		if err := c.getJSON(ctx, endpointComments, nextURL, credential, &resp); err != nil {
			c.logger.Warn("コメント取得を途中で打ち切りました",
				slog.String("post_id", postID),
				slog.Int("page", page),
				slog.Int("comments_count", len(result.Comments)),
				slog.String("error", err.Error()),
			)
			if c.metrics != nil {
				c.metrics.RecordCommentsTruncated()
			}
			result.Truncated = true
			break
		}

		result.Comments = append(result.Comments, resp.Data...)

		if !fetchAll {
			break
		}

		nextURL = resp.Paging.Next
		if nextURL != "" && !c.sameHost(nextURL) {
			// クレデンシャルを設定済みのGraph API以外へ送らない
			c.logger.Warn("Graph API以外のホストを指すnextリンクを無視しました",
				slog.String("post_id", postID),
				slog.String("next", redactURL(nextURL)),
			)
			break
		}
	}

	return result, nil
}

// sameHost はrawURLが設定済みのGraph APIと同じホストを指すかを判定する。
func (c *Client) sameHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, c.host)
}

// getJSON はGETリクエストを送り、2xxのレスポンスをoutにデコードする。
// 2xx以外は*model.UpstreamAPIError、通信・読み取り・デコードの失敗は*model.TransportErrorを返す。
func (c *Client) getJSON(ctx context.Context, endpoint, rawURL, credential string, out interface{}) error {
	logURL := redactURL(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &model.TransportError{URL: logURL, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(endpoint, 0, start)
		c.logger.Error("Graph APIの呼び出しに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("url", logURL),
			slog.String("error", err.Error()),
		)
		return &model.TransportError{URL: logURL, Err: err}
	}
	defer resp.Body.Close()
	c.record(endpoint, resp.StatusCode, start)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.logger.Error("Graph APIのレスポンスボディの読み取りに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("url", logURL),
			slog.String("error", err.Error()),
		)
		return &model.TransportError{URL: logURL, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Graph APIがエラーステータスを返しました",
			slog.String("endpoint", endpoint),
			slog.Int("http_status", resp.StatusCode),
			slog.String("url", logURL),
			slog.String("body", string(body)),
		)
		return &model.UpstreamAPIError{StatusCode: resp.StatusCode, Body: upstreamBody(resp.Header.Get("Content-Type"), body), URL: logURL}
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Error("Graph APIのレスポンスのパースに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("url", logURL),
			slog.String("error", err.Error()),
		)
		return &model.TransportError{URL: logURL, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	return nil
}

// upstreamBody はエラーレスポンスのボディを呼び出し元に返す形にする。
// プロキシやロードバランサーが返すHTMLのエラーページはタグを除いたテキストにする。
func upstreamBody(contentType string, body []byte) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err == nil && (mediaType == "text/html" || mediaType == "application/xhtml+xml") {
		return htmlSanitizer.PlainText(string(body))
	}
	return string(body)
}

func (c *Client) record(endpoint string, status int, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordUpstreamRequest(endpoint, status, time.Since(start))
	}
}

// redactURL はログ出力用にaccess_tokenクエリを伏せたURLを返す。
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "(unparseable url)"
	}
	q := u.Query()
	if q.Has("access_token") {
		q.Set("access_token", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
