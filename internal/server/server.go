package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"callcenter-service/internal/config"
	"callcenter-service/internal/events"
	"callcenter-service/internal/handler"
	authmw "callcenter-service/internal/middleware"
	"callcenter-service/internal/repository"
	"callcenter-service/internal/repository/memory"
	"callcenter-service/internal/repository/postgres"
	"callcenter-service/internal/router"
	"callcenter-service/internal/usecase"
	"callcenter-service/internal/worker"
	"callcenter-service/pkg/cache"
	"callcenter-service/pkg/id"
	"callcenter-service/pkg/jwtutil"
	"callcenter-service/pkg/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Server owns the HTTP listener and every resource it was built from.
type Server struct {
	HTTP    *http.Server
	logger  *zap.Logger
	worker  *worker.ReconcileWorker
	closers []func()
}

func NewServer(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (*Server, error) {
	s := &Server{logger: logger}
	ok := false
	defer func() {
		if !ok {
			s.close()
		}
	}()

	accounts, contacts, err := s.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	trusted, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	rdb := s.openRedis(ctx, cfg)
	var (
		c       *cache.Cache
		limiter middleware.Limiter
	)
	if rdb != nil {
		c = cache.NewCache(rdb)
		limiter = c
	}

	pub, err := s.openPublisher(cfg, rdb)
	if err != nil {
		return nil, err
	}

	sf, err := id.NewSnowflake(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("init snowflake: %w", err)
	}
	gen, ver, err := jwtutil.LoadAndBuild(cfg.JWT)
	if err != nil {
		return nil, err
	}

	authUC := usecase.NewAuthUsecase(accounts, gen, ver, sf, c, logger)
	assignUC := usecase.NewAssignmentUsecase(accounts, contacts, pub, logger)
	callsUC := usecase.NewCallStatusUsecase(accounts, contacts, pub, logger)
	queryUC := usecase.NewQueryUsecase(accounts, contacts, logger)
	contactUC := usecase.NewContactUsecase(contacts, sf, logger)
	accountUC := usecase.NewAccountUsecase(accounts, assignUC, authUC, pub, logger)
	reconcileUC := usecase.NewReconcileUsecase(accounts, contacts, pub, logger)

	if err := authUC.SeedAdmin(ctx, cfg.SystemAdminEmail, cfg.SystemAdminPassword, cfg.SystemAdminName); err != nil {
		logger.Warn("failed to seed system admin", zap.Error(err))
	}

	h := handler.NewHandler(authUC, assignUC, callsUC, queryUC, contactUC, accountUC, reconcileUC, logger, cfg.IsProduction())
	auth := authmw.NewAuthMiddleware(authUC, logger)

	r := chi.NewRouter()
	router.SetupRoutes(r, h, auth, limiter, router.Options{
		CORSOrigins:     cfg.CORSOrigins,
		LoginRateLimit:  cfg.LoginRateLimit,
		LoginRateWindow: cfg.LoginRateWindow,
		TrustedProxies:  trusted,
	}, logger)

	if cfg.ReconcileInterval > 0 {
		s.worker = worker.NewReconcileWorker(reconcileUC, cfg.ReconcileInterval, logger)
	}

	s.HTTP = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	ok = true
	return s, nil
}

func (s *Server) openStore(ctx context.Context, cfg config.AppConfig) (repository.AccountRepository, repository.ContactRepository, error) {
	if cfg.StoreDriver == "memory" {
		s.logger.Warn("using in-memory store; data is lost on restart")
		store := memory.NewStore()
		return store, store.Contacts(), nil
	}

	pool, err := config.ConnectDB(ctx, cfg.DB, s.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	s.closers = append(s.closers, pool.Close)
	if err := postgres.Migrate(ctx, pool); err != nil {
		return nil, nil, fmt.Errorf("migrate schema: %w", err)
	}
	return postgres.NewAccountRepository(pool), postgres.NewContactRepository(pool), nil
}

// openRedis returns nil when Redis is not configured or unreachable; the
// service then runs without caching or rate limiting.
func (s *Server) openRedis(ctx context.Context, cfg config.AppConfig) redis.UniversalClient {
	if cfg.RedisAddr == "" {
		s.logger.Info("redis not configured, caching and rate limiting disabled")
		return nil
	}
	addrs := strings.Split(cfg.RedisAddr, ",")
	rdb := cache.NewRedisClient(addrs, cfg.RedisPass, len(addrs) > 1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		s.logger.Warn("redis connection failed, caching and rate limiting disabled", zap.Error(err))
		_ = rdb.Close()
		return nil
	}
	s.closers = append(s.closers, func() { _ = rdb.Close() })
	s.logger.Info("redis connected", zap.Strings("addrs", addrs))
	return rdb
}

func (s *Server) openPublisher(cfg config.AppConfig, rdb redis.UniversalClient) (events.Publisher, error) {
	switch cfg.EventsDriver {
	case "redis":
		if rdb == nil {
			s.logger.Warn("events driver redis requested but redis is unavailable, events disabled")
			return events.NopPublisher{}, nil
		}
		return events.NewRedisPublisher(rdb, cfg.EventsChannel, s.logger), nil
	case "kafka":
		pub := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic, s.logger), s.logger)
		s.closers = append(s.closers, func() {
			if err := pub.Close(); err != nil {
				s.logger.Warn("kafka writer close failed", zap.Error(err))
			}
		})
		s.logger.Info("kafka publisher ready", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
		return pub, nil
	case "none", "":
		return events.NopPublisher{}, nil
	}
	return nil, fmt.Errorf("unknown events driver %q", cfg.EventsDriver)
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run(ctx context.Context) error {
	if s.worker != nil {
		go s.worker.Start(ctx)
	}
	s.logger.Info("http server listening", zap.String("addr", s.HTTP.Addr))
	if err := s.HTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.worker != nil {
		s.worker.Stop()
	}
	err := s.HTTP.Shutdown(ctx)
	s.close()
	return err
}

// close releases resources in reverse order of acquisition.
func (s *Server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
