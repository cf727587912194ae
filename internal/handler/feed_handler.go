package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/socialsense/internal/graph"
	"github.com/hitoshi/socialsense/internal/middleware"
	"github.com/hitoshi/socialsense/internal/model"
)

// maxPageLimit はlimitパラメータの上限。Graph APIの1ページの上限に合わせる。
const maxPageLimit = 100

// GraphClientInterface はフィードハンドラーが必要とするGraph APIクライアントのインターフェース。
type GraphClientInterface interface {
	ListPosts(ctx context.Context, credential string, limit int, after string) (*model.PostPage, error)
	GetPost(ctx context.Context, credential, postID string) (*model.Post, error)
	ListComments(ctx context.Context, credential, postID string, limit int, fetchAll bool) (*model.CommentList, error)
}

// FeedHandler はGraph APIプロキシのHTTPハンドラー。
type FeedHandler struct {
	client GraphClientInterface
}

// NewFeedHandler はFeedHandlerを生成する。
func NewFeedHandler(client GraphClientInterface) *FeedHandler {
	return &FeedHandler{client: client}
}

// ListPosts はログインユーザーの投稿を1ページ返す。
// GET /api/v1/feed/posts?limit=10&after=xxx
func (h *FeedHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	credential, ok := delegatedCredential(w, r)
	if !ok {
		return
	}

	limit, ok := parseLimit(w, r, graph.DefaultPostLimit)
	if !ok {
		return
	}

	page, err := h.client.ListPosts(r.Context(), credential, limit, r.URL.Query().Get("after"))
	if err != nil {
		handleServiceError(w, err, "Error fetching Facebook posts: ")
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// GetPost は投稿を1件返す。
// GET /api/v1/feed/posts/{postID}
func (h *FeedHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	credential, ok := delegatedCredential(w, r)
	if !ok {
		return
	}

	post, err := h.client.GetPost(r.Context(), credential, chi.URLParam(r, "postID"))
	if err != nil {
		handleServiceError(w, err, "Error fetching Facebook post: ")
		return
	}

	writeJSON(w, http.StatusOK, post)
}

// ListComments は投稿のコメントを配列で返す。
// 2ページ目以降の取得に失敗した場合は取得済みの分を返し、X-Comments-Truncated: true を付ける。
// GET /api/v1/feed/posts/{postID}/comments?limit=50&fetch_all=false
func (h *FeedHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	credential, ok := delegatedCredential(w, r)
	if !ok {
		return
	}

	limit, ok := parseLimit(w, r, graph.DefaultCommentLimit)
	if !ok {
		return
	}

	fetchAll := false
	if raw := r.URL.Query().Get("fetch_all"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidQueryParamError("fetch_all"))
			return
		}
		fetchAll = v
	}

	list, err := h.client.ListComments(r.Context(), credential, chi.URLParam(r, "postID"), limit, fetchAll)
	if err != nil {
		handleServiceError(w, err, "Error fetching comments: ")
		return
	}

	if list.Truncated {
		w.Header().Set("X-Comments-Truncated", "true")
	}
	comments := list.Comments
	if comments == nil {
		comments = []model.Comment{}
	}
	writeJSON(w, http.StatusOK, comments)
}

// delegatedCredential はセッションクレームからFacebookアクセストークンを取り出す。
// 取り出せない場合はエラーレスポンスを書き込んでfalseを返す。
func delegatedCredential(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		middleware.WriteUnauthorized(w)
		return "", false
	}
	if claims.DelegatedCredential == "" {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewMissingCredentialError())
		return "", false
	}
	return claims.DelegatedCredential, true
}

// parseLimit はlimitクエリパラメータを1〜maxPageLimitの整数として解釈する。
func parseLimit(w http.ResponseWriter, r *http.Request, defaultLimit int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxPageLimit {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidQueryParamError("limit"))
		return 0, false
	}
	return limit, true
}
