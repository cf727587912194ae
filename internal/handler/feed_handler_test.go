package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/socialsense/internal/graph"
	"github.com/hitoshi/socialsense/internal/middleware"
	"github.com/hitoshi/socialsense/internal/model"
)

// --- モック定義 ---

type mockGraphClient struct {
	listPostsFn    func(ctx context.Context, credential string, limit int, after string) (*model.PostPage, error)
	getPostFn      func(ctx context.Context, credential, postID string) (*model.Post, error)
	listCommentsFn func(ctx context.Context, credential, postID string, limit int, fetchAll bool) (*model.CommentList, error)
}

func (m *mockGraphClient) ListPosts(ctx context.Context, credential string, limit int, after string) (*model.PostPage, error) {
	if m.listPostsFn != nil {
		return m.listPostsFn(ctx, credential, limit, after)
	}
	return &model.PostPage{Data: []model.Post{}}, nil
}

func (m *mockGraphClient) GetPost(ctx context.Context, credential, postID string) (*model.Post, error) {
	if m.getPostFn != nil {
		return m.getPostFn(ctx, credential, postID)
	}
	return &model.Post{ID: postID}, nil
}

func (m *mockGraphClient) ListComments(ctx context.Context, credential, postID string, limit int, fetchAll bool) (*model.CommentList, error) {
	if m.listCommentsFn != nil {
		return m.listCommentsFn(ctx, credential, postID, limit, fetchAll)
	}
	return &model.CommentList{}, nil
}

// newFeedRouter はchiのURLパラメータを解決するためにハンドラーをルーターに載せる。
func newFeedRouter(client GraphClientInterface) http.Handler {
	h := NewFeedHandler(client)
	r := chi.NewRouter()
	r.Get("/posts", h.ListPosts)
	r.Get("/posts/{postID}", h.GetPost)
	r.Get("/posts/{postID}/comments", h.ListComments)
	return r
}

// authedRequest はセッションクレーム付きのリクエストを生成する。
func authedRequest(method, target, credential string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	claims := &model.SessionClaims{
		Subject:             "fb-123",
		Name:                "Alice",
		DelegatedCredential: credential,
		ExpiresAt:           time.Now().Add(time.Hour),
	}
	return req.WithContext(middleware.ContextWithClaims(req.Context(), claims))
}

// --- テスト ---

func TestFeedHandler_ListPosts_PassesParameters(t *testing.T) {
	var gotCredential, gotAfter string
	var gotLimit int
	client := &mockGraphClient{
		listPostsFn: func(ctx context.Context, credential string, limit int, after string) (*model.PostPage, error) {
			gotCredential, gotLimit, gotAfter = credential, limit, after
			return &model.PostPage{
				Data:        []model.Post{{ID: "p1", Message: "hello"}},
				HasNextPage: true,
				NextCursor:  "cursor-2",
			}, nil
		},
	}

	w := httptest.NewRecorder()
	newFeedRouter(client).ServeHTTP(w, authedRequest(http.MethodGet, "/posts?limit=5&after=cursor-1", "fb-token"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotCredential != "fb-token" || gotLimit != 5 || gotAfter != "cursor-1" {
		t.Errorf("got credential=%q limit=%d after=%q", gotCredential, gotLimit, gotAfter)
	}

	var page model.PostPage
	if err := json.NewDecoder(w.Body).Decode(&page); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(page.Data) != 1 || page.Data[0].ID != "p1" || !page.HasNextPage || page.NextCursor != "cursor-2" {
		t.Errorf("unexpected page: %+v", page)
	}
}

func TestFeedHandler_ListPosts_DefaultLimit(t *testing.T) {
	var gotLimit int
	client := &mockGraphClient{
		listPostsFn: func(ctx context.Context, credential string, limit int, after string) (*model.PostPage, error) {
			gotLimit = limit
			return &model.PostPage{}, nil
		},
	}

	w := httptest.NewRecorder()
	newFeedRouter(client).ServeHTTP(w, authedRequest(http.MethodGet, "/posts", "fb-token"))

	if gotLimit != graph.DefaultPostLimit {
		t.Errorf("limit = %d, want %d", gotLimit, graph.DefaultPostLimit)
	}
}

func TestFeedHandler_InvalidLimit(t *testing.T) {
	for _, raw := range []string{"0", "-1", "101", "abc"} {
		t.Run(raw, func(t *testing.T) {
			called := false
			client := &mockGraphClient{
				listPostsFn: func(ctx context.Context, credential string, limit int, after string) (*model.PostPage, error) {
					called = true
					return &model.PostPage{}, nil
				},
			}

			w := httptest.NewRecorder()
			newFeedRouter(client).ServeHTTP(w, authedRequest(http.MethodGet, "/posts?limit="+raw, "fb-token"))

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if called {
				t.Error("client should not be called")
			}
		})
	}
}

func TestFeedHandler_MissingDelegatedCredential(t *testing.T) {
	w := httptest.NewRecorder()
	newFeedRouter(&mockGraphClient{}).ServeHTTP(w, authedRequest(http.MethodGet, "/posts", ""))

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if got := decodeDetail(t, w); got != "Facebook access token not found in session token." {
		t.Errorf("detail = %q", got)
	}
}

func TestFeedHandler_WithoutClaims(t *testing.T) {
	w := httptest.NewRecorder()
	newFeedRouter(&mockGraphClient{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/posts", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestFeedHandler_UpstreamErrors(t *testing.T) {
	upstream := &model.UpstreamAPIError{StatusCode: http.StatusBadRequest, Body: `{"error":{"message":"Invalid OAuth access token."}}`}
	client := &mockGraphClient{
		listPostsFn: func(ctx context.Context, credential string, limit int, after string) (*model.PostPage, error) {
			return nil, upstream
		},
		getPostFn: func(ctx context.Context, credential, postID string) (*model.Post, error) {
			return nil, upstream
		},
		listCommentsFn: func(ctx context.Context, credential, postID string, limit int, fetchAll bool) (*model.CommentList, error) {
			return nil, upstream
		},
	}

	tests := []struct {
		target     string
		wantPrefix string
	}{
		{"/posts", "Error fetching Facebook posts: "},
		{"/posts/p1", "Error fetching Facebook post: "},
		{"/posts/p1/comments", "Error fetching comments: "},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := httptest.NewRecorder()
			newFeedRouter(client).ServeHTTP(w, authedRequest(http.MethodGet, tt.target, "fb-token"))

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if got := decodeDetail(t, w); got != tt.wantPrefix+upstream.Body {
				t.Errorf("detail = %q", got)
			}
		})
	}
}

func TestFeedHandler_TransportError(t *testing.T) {
	client := &mockGraphClient{
		getPostFn: func(ctx context.Context, credential, postID string) (*model.Post, error) {
			return nil, &model.TransportError{URL: "https://graph.facebook.com/p1", Err: context.DeadlineExceeded}
		},
	}

	w := httptest.NewRecorder()
	newFeedRouter(client).ServeHTTP(w, authedRequest(http.MethodGet, "/posts/p1", "fb-token"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if got := w.Header().Get("X-Error-Code"); got != model.ErrCodeUpstreamTransport {
		t.Errorf("X-Error-Code = %q, want %q", got, model.ErrCodeUpstreamTransport)
	}
}

func TestFeedHandler_GetPost_UsesPathParameter(t *testing.T) {
	var gotID string
	client := &mockGraphClient{
		getPostFn: func(ctx context.Context, credential, postID string) (*model.Post, error) {
			gotID = postID
			return &model.Post{ID: postID, Message: "hi"}, nil
		},
	}

	w := httptest.NewRecorder()
	newFeedRouter(client).ServeHTTP(w, authedRequest(http.MethodGet, "/posts/123_456", "fb-token"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotID != "123_456" {
		t.Errorf("postID = %q, want 123_456", gotID)
	}
}

func TestFeedHandler_ListComments_Parameters(t *testing.T) {
	var gotLimit int
	var gotFetchAll bool
	client := &mockGraphClient{
		listCommentsFn: func(ctx context.Context, credential, postID string, limit int, fetchAll bool) (*model.CommentList, error) {
			gotLimit, gotFetchAll = limit, fetchAll
			return &model.CommentList{Comments: []model.Comment{{ID: "c1", Message: "nice"}}}, nil
		},
	}

	w := httptest.NewRecorder()
	newFeedRouter(client).ServeHTTP(w, authedRequest(http.MethodGet, "/posts/p1/comments?fetch_all=true", "fb-token"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotLimit != graph.DefaultCommentLimit || !gotFetchAll {
		t.Errorf("limit=%d fetchAll=%v", gotLimit, gotFetchAll)
	}
	if w.Header().Get("X-Comments-Truncated") != "" {
		t.Error("complete result should not be marked truncated")
	}

	var comments []model.Comment
	if err := json.NewDecoder(w.Body).Decode(&comments); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(comments) != 1 || comments[0].ID != "c1" {
		t.Errorf("unexpected comments: %+v", comments)
	}
}

func TestFeedHandler_ListComments_Truncated(t *testing.T) {
	client := &mockGraphClient{
		listCommentsFn: func(ctx context.Context, credential, postID string, limit int, fetchAll bool) (*model.CommentList, error) {
			return &model.CommentList{Comments: []model.Comment{{ID: "c1"}}, Truncated: true}, nil
		},
	}

	w := httptest.NewRecorder()
	newFeedRouter(client).ServeHTTP(w, authedRequest(http.MethodGet, "/posts/p1/comments?fetch_all=1", "fb-token"))

	if got := w.Header().Get("X-Comments-Truncated"); got != "true" {
		t.Errorf("X-Comments-Truncated = %q, want true", got)
	}
}

func TestFeedHandler_ListComments_EmptyIsArray(t *testing.T) {
	w := httptest.NewRecorder()
	newFeedRouter(&mockGraphClient{}).ServeHTTP(w, authedRequest(http.MethodGet, "/posts/p1/comments", "fb-token"))

	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestFeedHandler_ListComments_InvalidFetchAll(t *testing.T) {
	w := httptest.NewRecorder()
	newFeedRouter(&mockGraphClient{}).ServeHTTP(w, authedRequest(http.MethodGet, "/posts/p1/comments?fetch_all=maybe", "fb-token"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
