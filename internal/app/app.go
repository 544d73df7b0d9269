// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
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

	"github.com/hitoshi/calman/internal/assist"
	"github.com/hitoshi/calman/internal/auth"
	"github.com/hitoshi/calman/internal/calendars"
	"github.com/hitoshi/calman/internal/conference"
	"github.com/hitoshi/calman/internal/config"
	"github.com/hitoshi/calman/internal/database"
	"github.com/hitoshi/calman/internal/event"
	"github.com/hitoshi/calman/internal/gcal"
	"github.com/hitoshi/calman/internal/handler"
	"github.com/hitoshi/calman/internal/logger"
	"github.com/hitoshi/calman/internal/mail"
	"github.com/hitoshi/calman/internal/metrics"
	"github.com/hitoshi/calman/internal/middleware"
	"github.com/hitoshi/calman/internal/model"
	"github.com/hitoshi/calman/internal/repository"
	"github.com/hitoshi/calman/internal/security"
	assistworker "github.com/hitoshi/calman/internal/worker/assist"
	"github.com/hitoshi/calman/internal/worker/cleanup"
	"github.com/hitoshi/calman/internal/zoom"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// newGoogleClientFactory はユーザーごとの認証済みGoogleカレンダークライアントを
// 生成するファクトリを返す。Google連携が存在しない場合は
// GOOGLE_NOT_CONNECTEDの型付きエラーを返す。
func newGoogleClientFactory(cfg *config.Config, integrationRepo repository.IntegrationRepository) event.GoogleClientFactory {
	return func(ctx context.Context, userID string) (event.GoogleCalendarClient, error) {
		integ, err := integrationRepo.FindActiveByUserAndResource(ctx, userID, model.IntegrationGoogle)
		if err != nil {
			return nil, err
		}
		if integ == nil {
			return nil, model.NewGoogleNotConnectedError(userID)
		}
		return gcal.NewClient(ctx, slog.Default(), cfg.GoogleClientID, cfg.GoogleClientSecret, integ)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	integrationRepo := repository.NewPostgresIntegrationRepo(db)
	userPrefRepo := repository.NewPostgresUserPreferenceRepo(db)
	calendarRepo := repository.NewPostgresCalendarRepo(db)
	eventRepo := repository.NewPostgresEventRepo(db)
	attendeeRepo := repository.NewPostgresAttendeeRepo(db)
	reminderRepo := repository.NewPostgresReminderRepo(db)
	categoryRepo := repository.NewPostgresCategoryRepo(db)
	conferenceRepo := repository.NewPostgresConferenceRepo(db)
	assistRepo := repository.NewPostgresMeetingAssistRepo(db)
	assistAttendeeRepo := repository.NewPostgresMeetingAssistAttendeeRepo(db)
	assistEventRepo := repository.NewPostgresMeetingAssistEventRepo(db)
	prefTimeRepo := repository.NewPostgresPreferredTimeRangeRepo(db)

	// 3. プロバイダクライアントとセキュリティサービスの初期化
	sanitizer := security.NewNotesSanitizer()
	zoomClient := zoom.NewClient(
		&http.Client{Timeout: cfg.ProviderTimeout},
		slog.Default(),
		cfg.ZoomAccountID, cfg.ZoomClientID, cfg.ZoomClientSecret,
	)

	// 4. ドメインサービスの初期化
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(
		oauthProvider, userRepo, sessionRepo, integrationRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	calendarService := calendars.NewService(calendarRepo)
	conferenceService := conference.NewService(
		conferenceRepo, integrationRepo, zoomClient, slog.Default(),
	)
	googleFactory := newGoogleClientFactory(cfg, integrationRepo)
	eventService := event.NewService(
		eventRepo, attendeeRepo, reminderRepo, categoryRepo, assistRepo,
		calendarService, conferenceService, googleFactory, sanitizer,
		slog.Default(),
	)
	assistService := assist.NewService(
		assistRepo, assistAttendeeRepo, assistEventRepo, prefTimeRepo,
		eventRepo, userPrefRepo, slog.Default(),
	)
	graphFactory := mail.NewGraphClientFactory(integrationRepo, mail.GraphCredentials{
		TenantID:     cfg.GraphTenantID,
		ClientID:     cfg.GraphClientID,
		ClientSecret: cfg.GraphClientSecret,
	}, slog.Default())
	mailService := mail.NewService(graphFactory, sanitizer, slog.Default())

	// 5. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 6. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()

	deps := &handler.RouterDeps{
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       middleware.NewRateLimiter(rateLimiterCfg),

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(registry),
		StatusRecorder: collector,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		EventService:    eventService,
		CalendarService: calendarService,
		AssistService:   assistService,
		MailService:     mailService,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、日程調整スケジューラとクリーンアップジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	sessionRepo := repository.NewPostgresSessionRepo(db)
	eventRepo := repository.NewPostgresEventRepo(db)
	assistRepo := repository.NewPostgresMeetingAssistRepo(db)
	assistAttendeeRepo := repository.NewPostgresMeetingAssistAttendeeRepo(db)
	assistEventRepo := repository.NewPostgresMeetingAssistEventRepo(db)
	prefTimeRepo := repository.NewPostgresPreferredTimeRangeRepo(db)
	userPrefRepo := repository.NewPostgresUserPreferenceRepo(db)

	// 3. 日程調整サービスの初期化
	assistService := assist.NewService(
		assistRepo, assistAttendeeRepo, assistEventRepo, prefTimeRepo,
		eventRepo, userPrefRepo, slog.Default(),
	)

	// 4. スケジューラの初期化
	scheduler := assistworker.NewScheduler(
		assistRepo, assistService, slog.Default(), cfg.AssistMaxConcurrent,
	)

	// 5. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(sessionRepo, eventRepo, slog.Default())
	cleanupJob.RetentionDays = cfg.EventRetentionDays

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("sweep_interval", cfg.AssistSweepInterval),
		slog.Int("max_concurrent", cfg.AssistMaxConcurrent),
	)

	// クリーンアップジョブを日次でバックグラウンド実行
	go func() {
		// 起動直後に1回実行
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(cfg.SessionSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.Run(ctx); err != nil {
					slog.Error("cleanup job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// 日程調整スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.AssistSweepInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はログ出力用にDB接続文字列のパスワードをマスクする。
func maskDatabaseURL(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.User(u.User.Username())
	}
	return u.String()
}
