package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/config"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/transport/http/handlers"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/transport/http/middleware"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth          *usecase.AuthService
	Tokens        *usecase.TokenService
	TwoFactor     *usecase.TwoFactorService
	Registration  *usecase.RegistrationService
	PasswordReset *usecase.PasswordResetService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Services ServiceSet
	Database DatabaseChecker
	Cache    CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) (*gin.Engine, error) {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Namespace: "auth"})
	if err != nil {
		return nil, err
	}
	r.Use(metrics.Handler())

	requireAuth := middleware.RequireAuth(deps.Services.Tokens)

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := handlers.NewAuthHandler(deps.Services.Auth)
	registrationHandler := handlers.NewRegistrationHandler(deps.Services.Registration)
	passwordHandler := handlers.NewPasswordHandler(deps.Services.PasswordReset)
	twoFactorHandler := handlers.NewTwoFactorHandler(deps.Services.TwoFactor)

	v1 := r.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/login/2fa", authHandler.CompleteTwoFactorLogin)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", authHandler.Logout)
			auth.POST("/logout/all", requireAuth, authHandler.LogoutAll)

			auth.POST("/register", registrationHandler.Register)
			auth.POST("/verify", registrationHandler.VerifyAccount)
			auth.POST("/verify/resend", registrationHandler.ResendVerification)

			auth.POST("/password/forgot", passwordHandler.Forgot)
			auth.POST("/password/reset", passwordHandler.Reset)
		}

		twofactor := v1.Group("/2fa", requireAuth)
		{
			twofactor.POST("/add", twoFactorHandler.Add)
			twofactor.POST("/confirm", twoFactorHandler.ConfirmFirst)
			twofactor.POST("/verify", twoFactorHandler.Verify)
			twofactor.POST("/backup", twoFactorHandler.VerifyBackup)
			twofactor.DELETE("", twoFactorHandler.Remove)
		}
	}

	return r, nil
}
