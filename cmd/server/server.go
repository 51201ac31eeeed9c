package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/thereayou/abstrio/internal/config"
	"github.com/thereayou/abstrio/internal/database"
	"github.com/thereayou/abstrio/internal/indexer"
	"github.com/thereayou/abstrio/internal/mailer"
	"github.com/thereayou/abstrio/internal/revocation"
	"github.com/thereayou/abstrio/internal/services"
	"github.com/thereayou/abstrio/internal/storage"
	ws "github.com/thereayou/abstrio/internal/websocket"
	"github.com/thereayou/abstrio/pkg/auth"
)

const (
	memoryDSN       = "memory"
	signupLockTTL   = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

type Server struct {
	cfg    config.Config
	logger *zap.Logger

	Router *gin.Engine
	DB     *database.Database // nil with DATABASE_URL=memory
	Users  services.UserStore
	Redis  *redis.Client
	Hub    *ws.Hub

	Sessions      *auth.SessionManager
	Verifications *auth.VerificationManager

	http *http.Server
}

func NewServer(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}

	if cfg.DatabaseURL == memoryDSN {
		logger.Warn("using in-memory user store, data is lost on restart")
		s.Users = database.NewMemoryStore()
	} else {
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres connect failed: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("postgres migrate failed: %w", err)
		}
		s.DB = db
		s.Users = db
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	s.Redis = redis.NewClient(redisOpts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Redis.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis connect failed: %w", err)
	}
	revoker := revocation.New(s.Redis, signupLockTTL)

	s.Sessions = auth.NewSessionManager(cfg.SessionSecret, cfg.SessionTokenTTL)
	s.Verifications = auth.NewVerificationManager(cfg.VerificationSecret)

	mail := mailer.New(mailer.Config{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		Username:    cfg.SMTPUser,
		Password:    cfg.SMTPPass,
		From:        cfg.MailFrom,
		FrontendURL: cfg.FrontendURL,
		Timeout:     cfg.UpstreamTimeout,
	}, logger.Named("mailer"))

	images, err := storage.New(ctx, storage.Config{
		Bucket:        cfg.S3Bucket,
		Region:        cfg.S3Region,
		Endpoint:      cfg.S3Endpoint,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		PublicBaseURL: cfg.S3PublicBaseURL,
		Timeout:       cfg.UpstreamTimeout,
	})
	if err != nil {
		return nil, err
	}

	idx := indexer.New(indexer.Config{
		WalletAPI:   cfg.WalletAPI,
		ActivityAPI: cfg.ActivityAPI,
		FloorAPI:    cfg.FloorAPI,
		StatAPI:     cfg.StatAPI,
		TrendingAPI: cfg.TrendingAPI,
		FavoriteAPI: cfg.FavoriteAPI,
		Timeout:     cfg.UpstreamTimeout,
	})

	s.Hub = ws.NewHub(logger.Named("ws"))

	s.Router = s.newRouter(revoker, mail, images, idx)
	s.http = &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           s.Router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go s.Hub.Run()
	defer s.close()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", s.http.Addr), zap.String("env", s.cfg.Environment))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// hijacked websocket connections are not tracked by Shutdown
	s.Hub.Stop()
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := gin.H{"status": "ok"}
	code := http.StatusOK
	if err := s.Redis.Ping(ctx).Err(); err != nil {
		status["redis"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	if s.DB != nil {
		if err := s.DB.Ping(ctx); err != nil {
			status["database"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	if code != http.StatusOK {
		status["status"] = "degraded"
	}
	c.JSON(code, status)
}

func (s *Server) close() {
	if err := s.Redis.Close(); err != nil {
		s.logger.Warn("redis close", zap.Error(err))
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			s.logger.Warn("postgres close", zap.Error(err))
		}
	}
}

// runDropUsers is the maintenance path behind -drop-users.
func runDropUsers(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.DatabaseURL == memoryDSN {
		return errors.New("nothing to drop for the in-memory store")
	}
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.DropUsers(ctx); err != nil {
		return err
	}
	logger.Info("users table dropped")
	return nil
}
