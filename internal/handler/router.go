package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/calman/internal/middleware"
)

// HealthChecker はヘルスチェックでDB疎通を確認するためのインターフェース。
// *sql.DBがそのまま満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
	StatusRecorder middleware.HTTPStatusRecorder

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// イベント
	EventService EventServiceInterface

	// カレンダー
	CalendarService CalendarServiceInterface

	// 日程調整
	AssistService AssistServiceInterface

	// 会議依頼メール検索
	MailService MailServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → Recovery → Logging → SecurityHeaders → (Metrics)
//	→ Session → CSRF → RateLimit(General)
//
// 運用ルート（/health、/metrics）と認証ルート（/auth）はセッションチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// CORS ミドルウェアを最上位に適用（全ルートに効く）
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	eventHandler := NewEventHandler(deps.EventService)
	calendarHandler := NewCalendarHandler(deps.CalendarService)
	assistHandler := NewAssistHandler(deps.AssistService)
	mailHandler := NewMailHandler(deps.MailService)

	// --- 認証不要のルート ---

	// ヘルスチェック（コンテナオーケストレータ用）
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.PingContext(req.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	// Prometheusスクレイプ
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// CSRFトークン取得（フロントエンドが書き込み前に取得する）
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(middleware.CSRFConfig{
		CookieSecure: deps.AuthConfig.CookieSecure,
		CookieDomain: deps.AuthConfig.CookieDomain,
	}))

	// OAuth認証フロー（セッション確立前なのでチェーンの外）
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(middleware.CSRFConfig{
			CookieSecure: deps.AuthConfig.CookieSecure,
			CookieDomain: deps.AuthConfig.CookieDomain,
		}))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// イベント管理
		r.Route("/api/events", func(r chi.Router) {
			// POST /api/events - イベント作成（書き込み専用レート制限を追加）
			r.With(deps.RateLimiter.EventWriteMiddleware()).Post("/", eventHandler.CreateEvent)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", eventHandler.GetEvent)
				r.With(deps.RateLimiter.EventWriteMiddleware()).Patch("/", eventHandler.UpdateEvent)
				r.Delete("/", eventHandler.DeleteEvent)
			})
		})

		// カレンダー管理
		r.Route("/api/calendars", func(r chi.Router) {
			r.Get("/", calendarHandler.ListCalendars)
			r.Get("/resolve", calendarHandler.ResolveCalendar)
		})

		// 日程調整
		r.Route("/api/meeting-assists/{id}", func(r chi.Router) {
			r.Get("/", assistHandler.GetAssist)
			r.Get("/attendees", assistHandler.ListAttendees)
			r.Post("/slots", assistHandler.GenerateSlots)
			r.Post("/attendees/{attendeeId}/preferred-times", assistHandler.SubmitPreferredTimes)
			r.Post("/start", assistHandler.StartAssist)
		})

		// 会議依頼メール検索（Outlook連携）
		r.Route("/api/emails", func(r chi.Router) {
			r.Get("/search", mailHandler.SearchEmails)
			r.Get("/{id}", mailHandler.GetEmailContent)
		})
	})

	return r
}
