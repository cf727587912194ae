package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/socialsense/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenValidator    middleware.TokenValidator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 認証
	AuthService  AuthServiceInterface
	AuthConfig   AuthHandlerConfig
	LoginMetrics LoginMetrics

	// Graph APIプロキシ
	GraphClient GraphClientInterface

	// センチメント分類
	SentimentService SentimentServiceInterface
	ModelStatus      ModelStatus

	// nilの場合は/metricsを公開しない
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Bearer → RateLimit(General) [→ RateLimit(Sentiment)]
//
// 認証フロー・ヘルスチェック・メトリクスはBearerの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	healthHandler := NewHealthHandler(deps.ModelStatus)
	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, deps.LoginMetrics)
	feedHandler := NewFeedHandler(deps.GraphClient)
	sentimentHandler := NewSentimentHandler(deps.SentimentService)

	// --- 認証不要のルート ---
	r.Get("/", healthHandler.Root)
	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Get("/login", authHandler.Login)
			r.Get("/callback", authHandler.Callback)

			// 旧クライアント向けのパス
			r.Get("/login/facebook", authHandler.Login)
			r.Get("/facebook/callback", authHandler.Callback)
		})

		// --- 認証が必要なルート ---
		// ミドルウェアスタック: Bearer → RateLimit(General)
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewBearerMiddleware(deps.TokenValidator))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/auth/me", authHandler.Me)

			postRoutes := func(r chi.Router) {
				r.Get("/", feedHandler.ListPosts)
				r.Route("/{postID}", func(r chi.Router) {
					r.Get("/", feedHandler.GetPost)
					r.Get("/comments", feedHandler.ListComments)
				})
			}
			r.Route("/feed/posts", postRoutes)
			r.Route("/facebook/posts", postRoutes)

			// センチメント分類は専用のレート制限を追加
			r.With(deps.RateLimiter.SentimentMiddleware()).Post("/sentiment/predict", sentimentHandler.Predict)
		})
	})

	return r
}
