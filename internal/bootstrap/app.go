package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pdfchat/internal/app"
	"pdfchat/internal/backend"
	"pdfchat/internal/config"
	"pdfchat/internal/model"
	"pdfchat/internal/pkg/logger"
	"pdfchat/internal/pkg/sessiontoken"
	redisClient "pdfchat/internal/platform/redis"
	"pdfchat/internal/screenstore"
)

type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Redis   *redis.Client
	Backend *backend.Client
	Screens *app.ScreenService
	Signer  *sessiontoken.Signer

	StartedAt time.Time
}

func New(ctx context.Context, configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Production: cfg.IsProduction(),
	})
	if err != nil {
		return nil, fmt.Errorf("build logger failed: %w", err)
	}

	a := &App{
		Config:    cfg,
		Logger:    log,
		Signer:    sessiontoken.NewSigner(cfg.Session.Secret, cfg.SessionTTL()),
		StartedAt: time.Now(),
	}

	var store app.ScreenStore
	switch cfg.Screen.Store {
	case config.StoreRedis:
		redisCli, err := redisClient.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.Redis = redisCli
		store = screenstore.NewRedisStore(redisCli, cfg.ScreenTTL())
	default:
		store = screenstore.NewMemoryStore(cfg.ScreenTTL())
	}

	a.Backend = backend.NewClient(BackendConfig(cfg))
	a.Screens = app.NewScreenService(a.Backend, store, InitialDocument(cfg), log.Named("screen"))

	log.Info("application wired",
		zap.String("backend", a.Backend.BaseURL()),
		zap.String("screen_store", cfg.Screen.Store),
		zap.String("env", cfg.App.Env),
	)
	return a, nil
}

// BackendConfig maps configuration onto the remote service client.
func BackendConfig(cfg *config.Config) backend.Config {
	headers := map[string]string{}
	if cfg.Backend.SkipWarningHeader != "" {
		headers[cfg.Backend.SkipWarningHeader] = "true"
	}
	return backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Headers: headers,
		Timeout: cfg.BackendTimeout(),
	}
}

// InitialDocument is the preselected document for new screens, if configured.
func InitialDocument(cfg *config.Config) *model.Document {
	if cfg.Screen.InitialDocumentID == 0 {
		return nil
	}
	return &model.Document{
		ID:       cfg.Screen.InitialDocumentID,
		Filename: cfg.Screen.InitialDocumentFilename,
	}
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return closeErr
}
