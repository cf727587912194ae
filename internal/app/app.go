package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/socialsense/internal/auth"
	"github.com/hitoshi/socialsense/internal/config"
	"github.com/hitoshi/socialsense/internal/database"
	"github.com/hitoshi/socialsense/internal/graph"
	"github.com/hitoshi/socialsense/internal/handler"
	"github.com/hitoshi/socialsense/internal/logger"
	"github.com/hitoshi/socialsense/internal/media"
	"github.com/hitoshi/socialsense/internal/metrics"
	"github.com/hitoshi/socialsense/internal/middleware"
	"github.com/hitoshi/socialsense/internal/repository"
	"github.com/hitoshi/socialsense/internal/security"
	"github.com/hitoshi/socialsense/internal/sentiment"
	"github.com/hitoshi/socialsense/internal/worker/cleanup"
)

const (
	defaultHealthcheckPort = "8000"
	dbConnectTimeout       = 10 * time.Second
	shutdownTimeout        = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_FORMATに応じた構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログ形式に切り替える
	logger.SetupDefaultFormat(w, cfg.LogFormat)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = defaultHealthcheckPort
		}
		return runHealthcheck("http://localhost:" + port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("model_backend", cfg.ModelBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// api はAPIサーバーの構成要素。
type api struct {
	router      http.Handler
	runtime     *sentiment.Runtime
	loader      sentiment.Loader
	rateLimiter *middleware.RateLimiter
}

// close はバックグラウンド処理を停止する。
func (a *api) close() {
	a.rateLimiter.Stop()
}

// newAPI は全依存関係をワイヤリングする。dbがnilの場合はログインを記録しない。
func newAPI(cfg *config.Config, db *sql.DB, registry *prometheus.Registry) (*api, error) {
	collector := metrics.NewCollector(registry)

	// 1. 認証
	oauthProvider := auth.NewFacebookOAuthProvider(auth.FacebookOAuthConfig{
		AppID:       cfg.FacebookAppID,
		AppSecret:   cfg.FacebookAppSecret,
		RedirectURL: cfg.FacebookRedirectURI,
		DialogURL:   cfg.FacebookDialogURL,
		GraphURL:    cfg.GraphAPIURL,
		HTTPClient:  &http.Client{Timeout: cfg.GraphTimeout},
	})
	issuer := auth.NewTokenIssuer(cfg.AppSecretKey)

	var recorder auth.LoginRecorder
	if db != nil {
		recorder = repository.NewPostgresUserRepo(db)
	}
	authService := auth.NewService(oauthProvider, issuer, recorder, auth.ServiceConfig{
		SessionTTL: cfg.SessionTTL,
	})

	// 2. Graph APIプロキシ
	graphClient, err := graph.NewClient(&http.Client{Timeout: cfg.GraphTimeout}, slog.Default(), cfg.GraphAPIURL, collector)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph client: %w", err)
	}

	// 3. センチメント分類
	ssrfGuard := security.NewSSRFGuard()

	var fetcher sentiment.MediaFetcher
	if cfg.ModelInlineMedia {
		fetcher = media.NewFetcher(ssrfGuard, cfg.ModelTimeout, cfg.MediaMaxSize)
	}

	runtime := sentiment.NewRuntime(slog.Default())
	executor := sentiment.NewExecutor(sentiment.DefaultQueueDepth, collector)
	classifier := sentiment.NewClassifier(runtime, executor, ssrfGuard, fetcher, collector, slog.Default())
	sentimentService := sentiment.NewService(classifier, runtime, slog.Default())

	// 4. ルーター
	rateLimiter := middleware.NewRateLimiter(
		middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitSentiment),
	)

	router := handler.NewRouter(&handler.RouterDeps{
		TokenValidator:    issuer,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			FrontendURL:  cfg.FrontendURL,
			CookieSecure: isHTTPS(cfg.FacebookRedirectURI),
		},
		LoginMetrics: collector,

		GraphClient: graphClient,

		SentimentService: sentimentService,
		ModelStatus:      runtime,

		MetricsHandler: metrics.Handler(registry),
	})

	return &api{
		router:      router,
		runtime:     runtime,
		loader:      newEngineLoader(cfg),
		rateLimiter: rateLimiter,
	}, nil
}

// newEngineLoader は設定されたバックエンドの分類エンジンローダーを返す。
func newEngineLoader(cfg *config.Config) sentiment.Loader {
	if cfg.ModelBackend == config.BackendVader {
		return sentiment.NewVaderLoader()
	}
	return sentiment.NewOpenAILoader(sentiment.OpenAIConfig{
		BaseURL:   cfg.ModelBaseURL,
		APIKey:    cfg.ModelAPIKey,
		Model:     cfg.ModelName,
		MaxTokens: cfg.ModelMaxTokens,
		Timeout:   cfg.ModelTimeout,
	})
}

// runServe はAPIサーバーモードで起動する。
// 分類エンジンはバックグラウンドで準備し、準備完了までは分類リクエストに503を返す。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続（任意）
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = database.OpenAndPing(ctx, cfg.DatabaseURL, dbConnectTimeout)
		if err != nil {
			return err
		}
		defer db.Close()
		slog.Info("database connection established")
	} else {
		slog.Info("DATABASE_URL is not set; logins will not be recorded")
	}

	// 2. 依存関係のワイヤリング
	a, err := newAPI(cfg, db, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer a.close()

	// 3. 分類エンジンの準備をバックグラウンドで開始
	go func() {
		if err := a.runtime.Load(ctx, a.loader, cfg.ModelProbeInterval); err != nil && ctx.Err() == nil {
			slog.Error("classification engine failed to load", slog.String("error", err.Error()))
		}
	}()

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      a.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ModelTimeout + 30*time.Second, // 分類は1コメントずつエンジンを呼ぶため長め
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 保持期間を超過したログインイベントを定期的に削除する。ctxがキャンセルされるまでブロックする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("worker requires DATABASE_URL")
	}

	db, err := database.OpenAndPing(ctx, cfg.DatabaseURL, dbConnectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	job := cleanup.NewJob(db, slog.Default(), cfg.LogRetentionDays)

	slog.Info("worker starting",
		slog.Int("retention_days", job.RetentionDays()),
		slog.Duration("interval", cleanup.DefaultInterval),
	)

	job.Start(ctx, cleanup.DefaultInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("migrate requires DATABASE_URL")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// 分類エンジンの準備中でもプロセスが応答していれば成功とする。
func runHealthcheck(baseURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("health check returned invalid body: %w", err)
	}
	if body.Status != "ok" {
		return fmt.Errorf("health check returned status %q", body.Status)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}

func isHTTPS(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme == "https"
}
