// Package chessbuilder assembles the session service from configuration.
package chessbuilder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/park285/chess-session-api/internal/archive"
	"github.com/park285/chess-session-api/internal/config"
	"github.com/park285/chess-session-api/internal/domain"
	"github.com/park285/chess-session-api/internal/httpapi"
	"github.com/park285/chess-session-api/internal/livefeed"
	"github.com/park285/chess-session-api/internal/msgcat"
	"github.com/park285/chess-session-api/internal/rules"
	"github.com/park285/chess-session-api/internal/session"
	"github.com/park285/chess-session-api/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Deps struct {
	Machine *session.Machine
	Engine  *rules.Engine
	Store   domain.SessionStore
	Redis   *redis.Client
	Archive *archive.Repository
	API     *httpapi.Server
	Live    *http.Server
}

func New(ctx context.Context, cfg *config.AppConfig, version string, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	messages, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	d := &Deps{Engine: rules.NewEngine()}

	if cfg.RedisURL != "" {
		rdb, err := store.Dial(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		d.Redis = rdb
	}

	switch cfg.StoreBackend {
	case config.BackendRedis:
		if d.Redis == nil {
			return nil, errors.New("redis store backend requires REDIS_URL")
		}
		d.Store = store.NewRedisStore(d.Redis, cfg.SessionTTL)
	default:
		logger.Warn("store_memory", zap.String("reason", "sessions are lost on restart"))
		d.Store = store.NewMemoryStore()
	}

	opts := []session.Option{
		session.WithLogger(logger.Named("session")),
		session.WithListLimit(cfg.ListLimit),
	}
	if d.Redis != nil {
		opts = append(opts, session.WithNotifier(livefeed.NewPublisher(d.Redis)))
	}

	if cfg.DatabaseURL != "" {
		repo, err := archive.NewRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("init archive: %w", err)
		}
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = repo.Close()
			d.Close()
			return nil, err
		}
		d.Archive = repo
		opts = append(opts, session.WithArchiver(repo))
	}

	machine, err := session.NewMachine(d.Store, d.Engine, opts...)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Machine = machine

	d.API = httpapi.NewServer(machine, httpapi.Options{
		Prefix:          cfg.APIPrefix,
		Version:         version,
		MaxBodyBytes:    cfg.MaxBodyBytes,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Logger:          logger.Named("http"),
		Openings:        d.Engine,
		Messages:        messages,
	})

	if cfg.LiveAddr != "" {
		live := livefeed.NewHandler(d.Redis, machine, cfg.APIPrefix, logger.Named("live"))
		d.Live = &http.Server{
			Addr:              cfg.LiveAddr,
			Handler:           live.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return d, nil
}

// Shutdown stops the listeners; Close releases the clients afterwards.
func (d *Deps) Shutdown(ctx context.Context) error {
	var errs []error
	if d.API != nil {
		errs = append(errs, d.API.Shutdown(ctx))
	}
	if d.Live != nil {
		errs = append(errs, d.Live.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func (d *Deps) Close() {
	if d.Archive != nil {
		_ = d.Archive.Close()
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
}
