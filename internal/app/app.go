package app

import (
	"context"
	"fmt"
	"log/slog"

	httpapp "token_keeper/internal/app/http"
	"token_keeper/internal/config"
	"token_keeper/internal/lib/hasher"
	jwtlib "token_keeper/internal/lib/jwt"
	"token_keeper/internal/repository"
	tokenservice "token_keeper/internal/services/token_service"
	userservice "token_keeper/internal/services/user_service"
	"token_keeper/internal/storage/postgresql"
	redisapp "token_keeper/internal/storage/redis"
	httprouters "token_keeper/internal/transport/http"
)

type App struct {
	HTTPServer *httpapp.Server

	stop func()
}

// New wires repositories, services and the HTTP server from config.
// The refresh token store backend is chosen by cfg.TokenStorage.
func New(ctx context.Context, log *slog.Logger, cfg *config.Config) (*App, error) {
	const op = "app.New"

	db, err := postgresql.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	stop := func() { db.Close() }

	var tokenRepo repository.TokenRepository
	switch cfg.TokenStorage {
	case "redis":
		rdb := redisapp.NewClient(cfg.Redis.RedisAddr, cfg.Redis.RedisPassword, cfg.Redis.RedisDB)
		if err := rdb.HealthCheck(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: redis: %w", op, err)
		}
		tokenRepo = repository.NewRedisTokenRepo(rdb)
		stop = func() {
			_ = rdb.Close()
			db.Close()
		}
	case "postgres":
		tokenRepo = repository.NewPostgresTokenRepo(db)
	default:
		db.Close()
		return nil, fmt.Errorf("%s: unknown token storage %q", op, cfg.TokenStorage)
	}

	codec := jwtlib.NewCodec([]byte(cfg.Auth.Secret))

	tokenService := tokenservice.NewTokenService(log, tokenRepo, codec, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	userService := userservice.NewUserService(log, repository.NewUserRepository(db), hasher.NewBcrypt(), tokenService)

	routers := httprouters.NewRouter(log, userService, tokenService)
	server := httpapp.New(log, codec, cfg.HTTP.Host, cfg.HTTP.Port, routers)

	return &App{
		HTTPServer: server,
		stop:       stop,
	}, nil
}

// Stop shuts the HTTP server down and closes storage connections.
func (a *App) Stop() {
	_ = a.HTTPServer.Stop()
	if a.stop != nil {
		a.stop()
	}
}
