package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/port"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/config"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/database"
	kafkainfra "github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/kafka"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/logger"
	redisinfra "github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/redis"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/security"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/telemetry"
	postgresrepo "github.com/Leonidas-maker/TheStudentMaster-sub000/internal/repository/postgres"
	redisrepo "github.com/Leonidas-maker/TheStudentMaster-sub000/internal/repository/redis"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/transport/http/routes"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/usecase"
)

// Application bundles the wired service graph and its long-lived resources.
type Application struct {
	cfg       *config.AppConfig
	engine    *gin.Engine
	logger    *zap.Logger
	pool      *pgxpool.Pool
	redis     *redisinfra.Client
	producer  *kafkainfra.Producer
	telemetry *telemetry.TracerProvider
}

// New wires configuration into a ready-to-run application.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	tracerProvider, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	if err := security.ConfigureArgon2(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}); err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	keys := security.NewKeyManager(cfg.Auth.KeyDirectory)
	codec := security.NewTokenCodec(keys, cfg.Auth.Issuer)
	totp := security.NewTOTPProvider(cfg.App.Name)
	validator := security.NewPasswordValidator(
		security.MinLengthRule(cfg.Auth.PasswordMinLength),
		security.RequireCharacterClassesRule(cfg.Auth.PasswordMinClasses),
		security.MinStrengthRule(cfg.Auth.PasswordMinZxcvbn),
	)

	repos := postgresrepo.NewRepositories(pool)

	var (
		redisClient *redisinfra.Client
		revocations usecase.RevocationStore
	)
	if cfg.Redis.Enabled {
		redisClient, err = redisinfra.NewClient(cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		revocations = redisrepo.NewRevocationCache(redisClient.Raw(), cfg.Redis.RevocationPrefix)
	} else {
		log.Info("redis disabled, revocation cache off")
	}

	var (
		publisher port.EventPublisher
		producer  *kafkainfra.Producer
	)
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			publisher = kafkainfra.NewStubPublisher(log)
		} else {
			publisher = producer
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka not configured, using stub publisher")
		publisher = kafkainfra.NewStubPublisher(log)
	}

	lockout := usecase.NewLockout(&cfg.Auth, repos.Security, repos.Users, publisher, log)
	tokens := usecase.NewTokenService(&cfg.Auth, codec, repos.Tokens, lockout, revocations, log)
	onecode := usecase.NewOneCodeEngine(&cfg.Auth, repos.Security, lockout)
	twofactor := usecase.NewTwoFactorService(&cfg.Auth, repos.Users, repos.Security, repos.TwoFactor, totp, tokens, lockout, publisher, log)
	auth := usecase.NewAuthService(&cfg.Auth, repos.Users, repos.Security, repos.Applications, tokens, twofactor, lockout, log)
	registration := usecase.NewRegistrationService(repos.Users, repos.Security, onecode, lockout, validator, publisher, log)
	passwordReset := usecase.NewPasswordResetService(repos.Users, repos.Security, onecode, tokens, lockout, validator, publisher, log)

	deps := routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Database: pool,
		Services: routes.ServiceSet{
			Auth:          auth,
			Tokens:        tokens,
			TwoFactor:     twofactor,
			Registration:  registration,
			PasswordReset: passwordReset,
		},
	}
	if redisClient != nil {
		deps.Cache = redisClient
	}

	engine, err := routes.Register(deps)
	if err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	return &Application{
		cfg:       cfg,
		engine:    engine,
		logger:    log,
		pool:      pool,
		redis:     redisClient,
		producer:  producer,
		telemetry: tracerProvider,
	}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			_ = a.producer.Close()
		}
	}()
	defer func() {
		if a.telemetry != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = a.telemetry.Shutdown(shutdownCtx)
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
			return
		}
		serverErrCh <- nil
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down auth API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}

	return <-serverErrCh
}
