// Package main runs the production step-up verification service backed by
// PostgreSQL for durable state and Redis for in-flight SMS codes.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/chi-demo/app"

	"github.com/licensemart/stepup-auth/pkg/audit"
	"github.com/licensemart/stepup-auth/pkg/backupcode"
	"github.com/licensemart/stepup-auth/pkg/challenge"
	challengeapi "github.com/licensemart/stepup-auth/pkg/challenge/api"
	"github.com/licensemart/stepup-auth/pkg/client"
	"github.com/licensemart/stepup-auth/pkg/compliance"
	complianceapi "github.com/licensemart/stepup-auth/pkg/compliance/api"
	pkgconfig "github.com/licensemart/stepup-auth/pkg/config"
	"github.com/licensemart/stepup-auth/pkg/credentials"
	credentialsapi "github.com/licensemart/stepup-auth/pkg/credentials/api"
	"github.com/licensemart/stepup-auth/pkg/lockout"
	"github.com/licensemart/stepup-auth/pkg/notification"
	"github.com/licensemart/stepup-auth/pkg/override"
	overrideapi "github.com/licensemart/stepup-auth/pkg/override/api"
	"github.com/licensemart/stepup-auth/pkg/ratelimit"
	"github.com/licensemart/stepup-auth/pkg/sessiongrant"
	"github.com/licensemart/stepup-auth/pkg/smscode"
	"github.com/licensemart/stepup-auth/pkg/totp"
)

type Config struct {
	BaseUrl string `env:"BASE_URL" env-default:"http://localhost:4000"`

	// Persistence backend for credentials, challenges, backup codes,
	// lockouts and the audit log: postgres, file or memory
	Persistence string `env:"STEPUP_PERSISTENCE" env-default:"postgres"`

	// Store for in-flight SMS codes: redis, file or memory
	CodeStore string `env:"STEPUP_CODE_STORE" env-default:"redis"`

	// DataDir backs the file persistence types
	DataDir string `env:"STEPUP_DATA_DIR" env-default:"./data"`

	// EncryptionKey protects TOTP secrets at rest. Required.
	EncryptionKey string `env:"STEPUP_ENCRYPTION_KEY"`

	// DbInit creates missing tables and indexes at startup
	DbInit bool `env:"STEPUP_DB_INIT" env-default:"false"`

	// TwoFaEnabled wires no-op challenge endpoints when false
	TwoFaEnabled bool `env:"STEPUP_TWOFA_ENABLED" env-default:"true"`

	LockoutSweepInterval time.Duration `env:"STEPUP_LOCKOUT_SWEEP_INTERVAL" env-default:"15m"`

	// AuditRetentionDays moves audit entries older than this many days to the
	// archive store once a day. Zero disables archival.
	AuditRetentionDays int `env:"STEPUP_AUDIT_RETENTION_DAYS" env-default:"0"`

	DbConfig     pkgconfig.DatabaseConfig
	RedisConfig  pkgconfig.RedisConfig
	GrantConfig  pkgconfig.GrantConfig
	EmailConfig  pkgconfig.EmailConfig
	TwilioConfig pkgconfig.TwilioConfig
}

// loadEnvFile loads environment variables from .env file if it exists
// Only sets variables that are not already set in the environment
func loadEnvFile() {
	execPath, err := os.Executable()
	if err != nil {
		slog.Error("Failed to get executable path", "error", err)
		return
	}

	execDir := filepath.Dir(execPath)
	envFile := filepath.Join(execDir, ".env")

	// Also check current working directory
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		cwd, err := os.Getwd()
		if err != nil {
			slog.Error("Failed to get current working directory", "error", err)
			return
		}
		envFile = filepath.Join(cwd, ".env")
	}

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		slog.Info("No .env file found, using environment variables", "path", envFile)
		return
	}

	slog.Info("Loading configuration from .env file", "path", envFile)

	if err := godotenv.Load(envFile); err != nil {
		slog.Error("Failed to load .env file", "error", err, "path", envFile)
		return
	}

	slog.Info("Configuration loaded from .env file successfully")
}

func main() {

	// Create a logger with source enabled
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	}))
	slog.SetDefault(logger)

	// Load .env file if it exists (before reading environment variables)
	loadEnvFile()

	config := Config{}
	cleanenv.ReadEnv(&config)

	twofaConfig := pkgconfig.NewTwoFaConfigFromEnv()
	if err := twofaConfig.Validate(); err != nil {
		slog.Error("Invalid two-factor configuration", "error", err)
		os.Exit(-1)
	}
	rateLimitConfig := pkgconfig.NewRateLimitConfigFromEnv()

	if err := config.GrantConfig.Validate(); err != nil {
		slog.Error("Invalid grant configuration", "error", err)
		os.Exit(-1)
	}

	// Load API endpoint prefix configuration
	prefixConfig := pkgconfig.LoadPrefixConfig()
	if err := prefixConfig.Validate(); err != nil {
		slog.Error("Invalid prefix configuration", "error", err)
		os.Exit(-1)
	}
	slog.Info("API endpoint prefixes configured", "challenge", prefixConfig.Challenge,
		"credentials", prefixConfig.Credentials, "admin", prefixConfig.Admin, "compliance", prefixConfig.Compliance)

	server := app.DefaultApp()

	app.RegisterHealthzRoutes(server.R)

	// Configure and add rate limiting middleware
	rateLimitMiddleware := createRateLimitMiddleware(rateLimitConfig, prefixConfig)
	server.R.Use(rateLimitMiddleware.Handler)
	slog.Info("Rate limiting configured",
		"global", rateLimitConfig.GlobalEnabled,
		"per_ip", rateLimitConfig.PerIPEnabled,
		"per_user", rateLimitConfig.PerUserEnabled)

	// Capture transport metadata for audit entries
	server.R.Use(audit.CaptureRequestInfo)

	// Initialize persistence
	var pool *pgxpool.Pool
	switch config.Persistence {
	case "postgres", "postgresql":
		var err error
		pool, err = pgxpool.New(context.Background(), config.DbConfig.ToDatabaseURL())
		if err != nil {
			slog.Error("Failed creating dbpool", "db", config.DbConfig.Database, "host", config.DbConfig.Host,
				"port", config.DbConfig.Port, "user", config.DbConfig.User, "schema", config.DbConfig.Schema)
			os.Exit(-1)
		}
	}

	credentialRepo, err := credentials.NewCredentialRepository(config.Persistence, credentials.RepositoryConfig{Pool: pool, DataDir: config.DataDir})
	if err != nil {
		slog.Error("Failed creating credential repository", "persistence", config.Persistence, "error", err)
		os.Exit(-1)
	}
	challengeRepo, err := challenge.NewChallengeRepository(config.Persistence, challenge.RepositoryConfig{Pool: pool, DataDir: config.DataDir})
	if err != nil {
		slog.Error("Failed creating challenge repository", "persistence", config.Persistence, "error", err)
		os.Exit(-1)
	}
	backupCodeRepo, err := backupcode.NewBackupCodeRepository(config.Persistence, backupcode.RepositoryConfig{Pool: pool, DataDir: config.DataDir})
	if err != nil {
		slog.Error("Failed creating backup code repository", "persistence", config.Persistence, "error", err)
		os.Exit(-1)
	}
	lockoutRepo, err := lockout.NewLockoutRepository(config.Persistence, lockout.RepositoryConfig{Pool: pool, DataDir: config.DataDir})
	if err != nil {
		slog.Error("Failed creating lockout repository", "persistence", config.Persistence, "error", err)
		os.Exit(-1)
	}
	auditRepo, err := audit.NewAuditRepository(config.Persistence, audit.RepositoryConfig{Pool: pool, DataDir: config.DataDir})
	if err != nil {
		slog.Error("Failed creating audit repository", "persistence", config.Persistence, "error", err)
		os.Exit(-1)
	}

	if config.DbInit && pool != nil {
		for _, repo := range []any{credentialRepo, challengeRepo, backupCodeRepo, lockoutRepo, auditRepo} {
			initializer, ok := repo.(interface{ EnsureSchema(context.Context) error })
			if !ok {
				continue
			}
			if err := initializer.EnsureSchema(context.Background()); err != nil {
				slog.Error("Failed initializing database schema", "error", err)
				os.Exit(-1)
			}
		}
		slog.Info("Database schema initialized")
	}

	// In-flight SMS codes live in Redis so instances can share them
	var redisClient *redis.Client
	if config.CodeStore == "redis" {
		redisClient = redis.NewClient(config.RedisConfig.ToRedisOptions())
	}
	codeStore, err := smscode.NewCodeStore(config.CodeStore, smscode.StoreConfig{RedisClient: redisClient, DataDir: config.DataDir})
	if err != nil {
		slog.Error("Failed creating SMS code store", "store", config.CodeStore, "error", err)
		os.Exit(-1)
	}

	// Initialize NotificationManager with email and SMS notifiers
	notificationManager, err := notification.NewNotificationManagerWithConfigs(
		config.BaseUrl,
		config.EmailConfig.ToSMTPConfig(),
		config.TwilioConfig.ToNotificationTwilioConfig(),
	)
	if err != nil {
		slog.Error("Failed initialize notification manager", "err", err)
	}

	smsCodeTTL, err := twofaConfig.ParseSmsCodeExpiration()
	if err != nil {
		slog.Error("Failed to parse SMS code expiration", "err", err)
		os.Exit(-1)
	}
	challengeTTL, err := twofaConfig.ParseChallengeExpiration()
	if err != nil {
		slog.Error("Failed to parse challenge expiration", "err", err)
		os.Exit(-1)
	}
	emergencyCodeTTL, err := twofaConfig.ParseEmergencyCodeExpiration()
	if err != nil {
		slog.Error("Failed to parse emergency code expiration", "err", err)
		os.Exit(-1)
	}
	failureWindow, err := twofaConfig.ParseFailureWindow()
	if err != nil {
		slog.Error("Failed to parse failure window", "err", err)
		os.Exit(-1)
	}
	lockDuration, err := twofaConfig.ParseLockoutDuration()
	if err != nil {
		slog.Error("Failed to parse lockout duration", "err", err)
		os.Exit(-1)
	}
	grantExpiry, err := config.GrantConfig.ParseGrantExpiry()
	if err != nil {
		slog.Error("Failed to parse grant expiry", "err", err)
		os.Exit(-1)
	}

	auditService := audit.NewAuditService(auditRepo)

	totpVerifier := totp.NewVerifier(totp.WithIssuer(twofaConfig.Issuer))

	smsCodeService := smscode.NewSmsCodeService(
		codeStore,
		smscode.WithNotificationManager(notificationManager),
		smscode.WithCodeTTL(smsCodeTTL),
		smscode.WithMaxAttempts(twofaConfig.SmsCodeMaxAttempts),
		smscode.WithCodeLength(twofaConfig.SmsCodeLength),
	)

	backupCodeService := backupcode.NewBackupCodeService(backupCodeRepo)

	cipher, err := credentials.NewSecretCipher(config.EncryptionKey)
	if err != nil {
		slog.Error("Failed to initialize secret cipher, set STEPUP_ENCRYPTION_KEY", "error", err)
		os.Exit(-1)
	}

	// Email notices carry no contact resolver here: the marketplace wires its
	// own resolver when embedding these services. SMS delivery reads the
	// verified phone from the credential record and is unaffected.
	credentialService := credentials.NewCredentialService(
		credentialRepo,
		cipher,
		credentials.WithTotpVerifier(totpVerifier),
		credentials.WithSmsCodeService(smsCodeService),
		credentials.WithBackupCodeService(backupCodeService),
		credentials.WithAuditService(auditService),
		credentials.WithNotificationManager(notificationManager),
		credentials.WithBackupBatchSize(twofaConfig.BackupCodeCount),
	)

	lockoutService := lockout.NewLockoutService(
		lockoutRepo,
		lockout.WithPolicy(lockout.FailurePolicy{
			Threshold:    twofaConfig.MaxFailedAttempts,
			Window:       failureWindow,
			LockDuration: lockDuration,
		}),
		lockout.WithAuditService(auditService),
		lockout.WithNotificationManager(notificationManager),
		lockout.WithRetryConfig(pkgconfig.NewRetryConfigFromEnv()),
	)
	slog.Info("Lockout policy configured", "threshold", twofaConfig.MaxFailedAttempts,
		"window", failureWindow, "lock_duration", lockDuration)

	grantService := sessiongrant.NewGrantService(
		sessiongrant.NewJwtTokenGenerator(config.GrantConfig.Secret, config.GrantConfig.Issuer, config.GrantConfig.Audience),
		sessiongrant.WithExpiry(grantExpiry),
	)
	grantCookies := sessiongrant.NewGrantCookieServiceFromConfig(config.GrantConfig)

	var challengeService challenge.ChallengeService
	if config.TwoFaEnabled {
		challengeService = challenge.NewChallengeOrchestrator(
			challengeRepo,
			credentialService,
			lockoutService,
			grantService,
			challenge.WithTotpVerifier(totpVerifier),
			challenge.WithSmsCodeService(smsCodeService),
			challenge.WithBackupCodeService(backupCodeService),
			challenge.WithAuditService(auditService),
			challenge.WithChallengeTTL(challengeTTL),
			challenge.WithMaxAttempts(twofaConfig.ChallengeMaxAttempts),
			challenge.WithRateLimiter(ratelimit.NewRateLimiter(
				rateLimitConfig.ChallengeCapacity,
				rateLimitConfig.ChallengeRefillRate,
				time.Hour,
			)),
		)
	} else {
		challengeService = challenge.NewNoOpChallengeService()
		slog.Warn("Two-factor verification disabled, challenge endpoints are no-ops")
	}

	overrideService := override.NewOverrideService(
		credentialRepo,
		backupCodeService,
		override.WithAuditService(auditService),
		override.WithNotificationManager(notificationManager),
		override.WithEmergencyCodeCount(twofaConfig.EmergencyCodeCount),
		override.WithEmergencyCodeTTL(emergencyCodeTTL),
	)

	complianceService := compliance.NewComplianceService(credentialRepo, auditService)

	// Background maintenance
	go lockoutService.StartSweep(context.Background(), config.LockoutSweepInterval)
	if config.AuditRetentionDays > 0 {
		go runAuditArchival(auditService, config.AuditRetentionDays)
		slog.Info("Audit archival enabled", "retention_days", config.AuditRetentionDays)
	}

	tokenAuth := jwtauth.New("HS256", []byte(config.GrantConfig.Secret), nil)

	challengeHandle := challengeapi.NewHandle(challengeService, grantCookies)
	credentialHandle := credentialsapi.NewHandle(credentialService, grantService)
	overrideHandle := overrideapi.NewHandle(overrideService)
	complianceHandle := complianceapi.NewHandle(complianceService)

	// Challenge routes: verify is authenticated by the challenge token itself,
	// initiate requires a first-factor access token
	server.R.Route(prefixConfig.Challenge, func(r chi.Router) {
		r.Post("/verify", challengeHandle.Verify)

		r.Group(func(r chi.Router) {
			r.Use(client.Verifier(tokenAuth))
			r.Use(jwtauth.Authenticator(tokenAuth))
			r.Use(client.AuthUserMiddleware)
			r.Post("/initiate", challengeHandle.Initiate)
		})
	})

	server.R.Group(func(r chi.Router) {
		r.Use(client.Verifier(tokenAuth))
		r.Use(jwtauth.Authenticator(tokenAuth))
		r.Use(client.AuthUserMiddleware)

		r.Mount(prefixConfig.Credentials, credentialsapi.Handler(credentialHandle))

		// Admin overrides get an extra per-IP throttle so a compromised admin
		// token cannot mass-reset accounts quickly
		adminRouter := chi.NewRouter()
		adminRouter.Group(func(r chi.Router) {
			r.Use(client.AdminRoleMiddleware)
			if rateLimitConfig.AdminResetEnabled {
				r.Use(adminThrottle(rateLimitConfig.AdminResetCapacity, time.Hour))
			}
			r.Mount("/", overrideapi.Handler(overrideHandle))
		})
		r.Mount(prefixConfig.Admin, adminRouter)

		complianceRouter := chi.NewRouter()
		complianceRouter.Group(func(r chi.Router) {
			r.Use(client.AdminRoleMiddleware)
			r.Mount("/", complianceapi.Handler(complianceHandle))
		})
		r.Mount(prefixConfig.Compliance, complianceRouter)
	})

	slog.Info("Step-up verification service ready",
		"base_url", config.BaseUrl,
		"persistence", config.Persistence,
		"code_store", config.CodeStore)

	server.Run()
}

// adminThrottle caps requests per client IP on the admin route group.
func adminThrottle(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requests,
		window,
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			slog.Warn("Admin rate limit exceeded",
				"ip", r.RemoteAddr,
				"path", r.URL.Path,
				"method", r.Method)
			render.Status(r, http.StatusTooManyRequests)
			render.JSON(w, r, map[string]string{
				"error": "rate limit exceeded, please try again later",
				"code":  "RATE_LIMITED",
			})
		}),
	)
}

// runAuditArchival moves audit entries past the retention window to the
// archive store once a day. The hash chain stays verifiable across both.
func runAuditArchival(auditService *audit.AuditService, retentionDays int) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
		moved, err := auditService.ArchiveBefore(context.Background(), cutoff)
		if err != nil {
			slog.Error("Audit archival failed", "cutoff", cutoff, "error", err)
			continue
		}
		if moved > 0 {
			slog.Info("Archived audit entries", "count", moved, "cutoff", cutoff)
		}
	}
}

// createRateLimitMiddleware creates and configures the rate limiting middleware
func createRateLimitMiddleware(cfg pkgconfig.RateLimitConfig, prefixConfig pkgconfig.PrefixConfig) *ratelimit.Middleware {
	mwConfig := &ratelimit.Config{
		GlobalEnabled:    cfg.GlobalEnabled,
		GlobalCapacity:   cfg.GlobalCapacity,
		GlobalRefillRate: cfg.GlobalRefillRate,

		PerIPEnabled:    cfg.PerIPEnabled,
		PerIPCapacity:   cfg.PerIPCapacity,
		PerIPRefillRate: cfg.PerIPRefillRate,

		PerUserEnabled:    cfg.PerUserEnabled,
		PerUserCapacity:   cfg.PerUserCapacity,
		PerUserRefillRate: cfg.PerUserRefillRate,

		IncludeHeaders: cfg.IncludeHeaders,
		BucketTTL:      1 * time.Hour, // Keep inactive buckets for 1 hour

		EndpointLimits: make(map[string]ratelimit.EndpointLimit),
	}

	// Per-IP endpoint limits on the challenge routes. Issuance is limited
	// per user inside the orchestrator as well; this caps anonymous abuse.
	if cfg.ChallengeEnabled {
		mwConfig.EndpointLimits["POST "+prefixConfig.Challenge+"/initiate"] = ratelimit.EndpointLimit{
			Capacity:   cfg.ChallengeCapacity,
			RefillRate: cfg.ChallengeRefillRate,
		}
	}

	if cfg.VerifyEnabled {
		mwConfig.EndpointLimits["POST "+prefixConfig.Challenge+"/verify"] = ratelimit.EndpointLimit{
			Capacity:   cfg.VerifyCapacity,
			RefillRate: cfg.VerifyRefillRate,
		}
	}

	return ratelimit.NewMiddleware(mwConfig)
}
