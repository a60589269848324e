package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

const banner = "Helios API with Telegram Bot"

// RouterConfig carries the cross-cutting settings of the HTTP surface.
type RouterConfig struct {
	AllowedOrigins []string
	Limiter        RateLimiter // nil disables rate limiting
	RateLimit      int         // requests per minute per user on mutation routes
	Live           http.Handler
}

// NewRouter registers every route of the service.
func NewRouter(h *Handler, log *zap.Logger, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(banner))
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	if cfg.Live != nil {
		r.Handle("/ws", cfg.Live)
	}

	limit := func(scope string) func(http.Handler) http.Handler {
		return rateLimit(cfg.Limiter, scope, cfg.RateLimit, log)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Route("/referral", func(r chi.Router) {
			r.With(limit("referral_token")).Post("/token/{telegramId}", h.UpdateReferralToken)
			r.With(limit("referral_token")).Post("/token/create/{telegramId}", h.CreateReferralToken)
			r.Get("/users/{telegramId}", h.ListReferrals)
			r.Get("/referrer/{telegramId}", h.GetReferrer)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/minerate/{telegramId}", h.GetMinerate)
			r.With(limit("minerate")).Patch("/increase-minerate/{telegramId}/{amount}", h.IncreaseMinerate)
		})
	})

	return r
}

// requestLogger logs one line per request through zap.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("took", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
