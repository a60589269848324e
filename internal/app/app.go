package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/DaddyBoye/helios-server-1/internal/airdrop"
	"github.com/DaddyBoye/helios-server-1/internal/api"
	"github.com/DaddyBoye/helios-server-1/internal/config"
	"github.com/DaddyBoye/helios-server-1/internal/hub"
	"github.com/DaddyBoye/helios-server-1/internal/notify"
	"github.com/DaddyBoye/helios-server-1/internal/progress"
	"github.com/DaddyBoye/helios-server-1/internal/store"
	"github.com/DaddyBoye/helios-server-1/internal/telegram"
)

const (
	httpShutdownTimeout  = 5 * time.Second
	cycleShutdownTimeout = 10 * time.Second
)

type App struct {
	cfg         config.Config
	log         *zap.Logger
	bot         *tgbotapi.BotAPI
	httpSrv     *http.Server
	repo        store.Repo
	redis       *redis.Client
	router      *telegram.Router
	hub         *hub.Hub
	broadcaster *progress.Broadcaster
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &App{cfg: cfg, log: log, bot: bot, httpSrv: srv}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting helios",
		zap.String("bot", a.bot.Self.UserName),
		zap.String("http", a.cfg.HTTPAddr),
		zap.String("db_driver", a.cfg.DBDriver),
	)

	repo, err := openStore(ctx, a.cfg)
	if err != nil {
		a.log.Error("open store failed", zap.Error(err))
		return err
	}
	a.repo = repo
	a.log.Info("store ready")

	counter := progress.NewCounter(a.cfg.CycleLength)
	a.router = telegram.NewRouter(a.bot, a.log.Named("telegram"), a.cfg.WebAppURL, a.cfg.OnboardingImageURL)
	gate := notify.NewGate(repo, a.router, a.log.Named("notify"), a.cfg.NotifyCooldown, a.cfg.WebAppURL)
	distributor := airdrop.New(repo, gate, a.log.Named("airdrop"), a.cfg.AirdropLimit, a.cfg.DistributionWorkers)
	a.hub = hub.New(a.log.Named("hub"), counter, a.cfg.CORSOrigins)
	a.broadcaster = progress.NewBroadcaster(counter, distributor, a.hub, repo, a.log.Named("progress"), a.cfg.TickInterval)

	if a.cfg.ResumeProgress {
		if err := a.broadcaster.Resume(ctx); err != nil {
			a.log.Warn("progress resume failed, starting from zero", zap.Error(err))
		}
	}

	limiter := a.rateLimiter(ctx)
	a.httpSrv.Handler = api.NewRouter(api.NewHandler(repo, a.log.Named("api")), a.log.Named("http"), api.RouterConfig{
		AllowedOrigins: a.cfg.CORSOrigins,
		Limiter:        limiter,
		RateLimit:      a.cfg.RateLimitPerMinute,
		Live:           a.hub,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go a.hub.Run(ctx)
	go a.broadcaster.Run(ctx)
	if err := a.broadcaster.StartCheckpoints(ctx, a.cfg.CheckpointSchedule); err != nil {
		a.log.Error("schedule progress checkpoint failed", zap.Error(err))
		a.close()
		return err
	}

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updCh := a.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")
			a.shutdown()
			return nil

		case upd := <-updCh:
			a.router.HandleUpdate(ctx, upd)
		}
	}
}

func (a *App) shutdown() {
	a.bot.StopReceivingUpdates()
	a.broadcaster.StopCheckpoints()

	shCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	err := a.httpSrv.Shutdown(shCtx)
	cancel()
	if err != nil {
		a.log.Warn("http server shutdown error", zap.Error(err))
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), cycleShutdownTimeout)
	if err := a.broadcaster.Wait(waitCtx); err != nil {
		a.log.Warn("distribution cycle still running at shutdown", zap.Error(err))
	}
	cancel()

	cpCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	a.broadcaster.Checkpoint(cpCtx)
	cancel()

	a.close()
}

func (a *App) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.repo != nil {
		_ = a.repo.Close()
	}
}

// rateLimiter returns nil when REDIS_URL is unset or invalid.
func (a *App) rateLimiter(ctx context.Context) api.RateLimiter {
	if a.cfg.RedisURL == "" {
		a.log.Info("rate limiting disabled")
		return nil
	}
	opts, err := redis.ParseURL(a.cfg.RedisURL)
	if err != nil {
		a.log.Warn("invalid REDIS_URL, rate limiting disabled", zap.Error(err))
		return nil
	}
	a.redis = redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := a.redis.Ping(pingCtx).Err(); err != nil {
		a.log.Warn("redis unreachable, limiter will fail open", zap.Error(err))
	}
	return api.NewRedisRateLimiter(a.redis, "helios:rate_limit")
}

func openStore(ctx context.Context, cfg config.Config) (store.Repo, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		r, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		r, err := store.OpenSQLite(ctx, cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
}
