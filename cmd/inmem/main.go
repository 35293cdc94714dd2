// Package main demonstrates running the step-up verification service without a database using in-memory repositories.
// This is useful for:
// - Quick development and testing
// - Demo/prototype environments
// - Integration testing
// - Learning the API without database setup
//
// Note: All data is lost when the server stops. For production, use cmd/stepup with PostgreSQL.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	otpgen "github.com/pquerna/otp/totp"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/cors"

	"github.com/licensemart/stepup-auth/pkg/audit"
	"github.com/licensemart/stepup-auth/pkg/backupcode"
	"github.com/licensemart/stepup-auth/pkg/challenge"
	challengeapi "github.com/licensemart/stepup-auth/pkg/challenge/api"
	"github.com/licensemart/stepup-auth/pkg/client"
	"github.com/licensemart/stepup-auth/pkg/compliance"
	complianceapi "github.com/licensemart/stepup-auth/pkg/compliance/api"
	"github.com/licensemart/stepup-auth/pkg/credentials"
	credentialsapi "github.com/licensemart/stepup-auth/pkg/credentials/api"
	"github.com/licensemart/stepup-auth/pkg/lockout"
	"github.com/licensemart/stepup-auth/pkg/notification"
	"github.com/licensemart/stepup-auth/pkg/override"
	overrideapi "github.com/licensemart/stepup-auth/pkg/override/api"
	"github.com/licensemart/stepup-auth/pkg/sessiongrant"
	"github.com/licensemart/stepup-auth/pkg/smscode"
	"github.com/licensemart/stepup-auth/pkg/totp"
)

const (
	jwtSecret     = "inmem-dev-secret-change-in-production"
	encryptionKey = "inmem-dev-encryption-key"
	baseURL       = "http://localhost:4000"
	issuer        = "stepup-auth"
	audience      = "licensemart"
)

func main() {
	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: false,
		Level:     slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting In-Memory Step-Up Verification Service (no database required)")
	slog.Info(strings.Repeat("=", 60))

	// Initialize all in-memory repositories
	credentialRepo := credentials.NewInMemoryCredentialRepository()
	challengeRepo := challenge.NewInMemoryChallengeRepository()
	backupCodeRepo := backupcode.NewInMemoryBackupCodeRepository()
	lockoutRepo := lockout.NewInMemoryLockoutRepository()
	auditRepo := audit.NewInMemoryAuditRepository()
	codeStore := smscode.NewInMemoryCodeStore()

	contacts := notification.NewStaticContactResolver()

	// Create services
	services := createServices(credentialRepo, challengeRepo, backupCodeRepo, lockoutRepo, auditRepo, codeStore, contacts)

	// Seed initial data
	demoUserID, adminUserID, demoTotpSecret := seedInitialData(services, contacts)

	demoToken, err := mintAccessToken(demoUserID, "demo@licensemart.example", "user")
	if err != nil {
		slog.Error("Failed to mint demo token", "err", err)
		os.Exit(-1)
	}
	adminToken, err := mintAccessToken(adminUserID, "admin@licensemart.example", "admin")
	if err != nil {
		slog.Error("Failed to mint admin token", "err", err)
		os.Exit(-1)
	}

	// Setup HTTP server
	server := app.NewApp(
		app.WithPort(4000),
		app.WithCORS(&cors.Options{
			AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000", "http://localhost:4040"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization", sessiongrant.GRANT_HEADER_NAME},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
	)

	// Setup routes
	setupRoutes(server.R, services)

	slog.Info(strings.Repeat("=", 60))
	slog.Info("In-Memory Step-Up Verification Service Ready")
	slog.Info("Base URL: " + baseURL)
	slog.Info("")
	slog.Info("Demo user (TOTP enrolled):")
	slog.Info("  User ID:     " + demoUserID.String())
	slog.Info("  TOTP secret: " + demoTotpSecret + " (add to an authenticator app)")
	slog.Info("  Token:       " + demoToken)
	slog.Info("")
	slog.Info("Admin user (no 2FA yet):")
	slog.Info("  User ID: " + adminUserID.String())
	slog.Info("  Token:   " + adminToken)
	slog.Info("")
	slog.Info("API Endpoints:")
	slog.Info("  POST /api/v1/2fa/challenge/initiate        - Issue a challenge (auth required)")
	slog.Info("  POST /api/v1/2fa/challenge/verify          - Verify a code against a challenge")
	slog.Info("  GET  /api/v1/2fa/credentials/status        - Enrollment status (auth required)")
	slog.Info("  POST /api/v1/2fa/credentials/totp/setup    - Begin TOTP enrollment (auth required)")
	slog.Info("  POST /api/v1/2fa/credentials/totp/confirm  - Confirm TOTP enrollment (auth required)")
	slog.Info("  POST /api/v1/2fa/credentials/sms/setup     - Begin SMS enrollment (auth required)")
	slog.Info("  POST /api/v1/admin/2fa/users/{user_id}/reset - Admin 2FA reset (admin required)")
	slog.Info("  GET  /api/v1/compliance/2fa/adoption       - Adoption metrics (admin required)")
	slog.Info("")
	slog.Info("Notices (SMS codes included) are logged instead of delivered.")
	slog.Info(strings.Repeat("=", 60))

	server.Run()
}

type Services struct {
	credentialService *credentials.CredentialService
	challengeService  *challenge.ChallengeOrchestrator
	grantService      *sessiongrant.GrantService
	grantCookies      *sessiongrant.GrantCookieService
	overrideService   *override.OverrideService
	complianceService *compliance.ComplianceService
	auditService      *audit.AuditService
	backupCodeService *backupcode.BackupCodeService
	lockoutService    *lockout.LockoutService
	jwtAuth           *jwtauth.JWTAuth
}

// logNotifier writes notices to the server log instead of delivering them,
// so SMS enrollment and challenge flows can complete without Twilio or SMTP.
type logNotifier struct {
	system notification.NotificationSystem
}

func (n *logNotifier) Send(noticeType notification.NoticeType, data notification.NotificationData, template notification.NoticeTemplate) error {
	slog.Info("Notice (logged, not delivered)",
		"system", string(n.system),
		"type", string(noticeType),
		"to", data.To,
		"data", fmt.Sprintf("%v", data.Data))
	return nil
}

func createServices(
	credentialRepo *credentials.InMemoryCredentialRepository,
	challengeRepo *challenge.InMemoryChallengeRepository,
	backupCodeRepo *backupcode.InMemoryBackupCodeRepository,
	lockoutRepo *lockout.InMemoryLockoutRepository,
	auditRepo *audit.InMemoryAuditRepository,
	codeStore *smscode.InMemoryCodeStore,
	contacts *notification.StaticContactResolver,
) *Services {
	auditService := audit.NewAuditService(auditRepo)

	// Notification manager with log-only notifiers (no SMTP/Twilio in dev mode)
	notificationManager, err := notification.NewNotificationManagerWithOptions(
		baseURL,
		notification.WithDefaultTemplates(),
	)
	if err != nil {
		slog.Error("Failed to initialize notification manager", "err", err)
		os.Exit(-1)
	}
	notificationManager.RegisterNotifier(notification.EmailSystem, &logNotifier{system: notification.EmailSystem})
	notificationManager.RegisterNotifier(notification.SMSSystem, &logNotifier{system: notification.SMSSystem})
	notificationManager.RegisterNotifier(notification.SlackSystem, &logNotifier{system: notification.SlackSystem})

	smsCodeService := smscode.NewSmsCodeService(
		codeStore,
		smscode.WithNotificationManager(notificationManager),
	)

	totpVerifier := totp.NewVerifier(totp.WithIssuer("LicenseMart"))

	backupCodeService := backupcode.NewBackupCodeService(backupCodeRepo)

	cipher, err := credentials.NewSecretCipher(encryptionKey)
	if err != nil {
		slog.Error("Failed to initialize secret cipher", "err", err)
		os.Exit(-1)
	}

	credentialService := credentials.NewCredentialService(
		credentialRepo,
		cipher,
		credentials.WithTotpVerifier(totpVerifier),
		credentials.WithSmsCodeService(smsCodeService),
		credentials.WithBackupCodeService(backupCodeService),
		credentials.WithAuditService(auditService),
		credentials.WithNotificationManager(notificationManager),
		credentials.WithContactResolver(contacts),
	)

	lockoutService := lockout.NewLockoutService(
		lockoutRepo,
		lockout.WithAuditService(auditService),
		lockout.WithNotificationManager(notificationManager),
		lockout.WithContactResolver(contacts),
	)

	grantService := sessiongrant.NewGrantService(
		sessiongrant.NewJwtTokenGenerator(jwtSecret, issuer, audience),
	)

	// Cookies are not Secure in dev mode so the demo works over plain http
	grantCookies := sessiongrant.NewGrantCookieService(true, false, http.SameSiteLaxMode)

	challengeService := challenge.NewChallengeOrchestrator(
		challengeRepo,
		credentialService,
		lockoutService,
		grantService,
		challenge.WithTotpVerifier(totpVerifier),
		challenge.WithSmsCodeService(smsCodeService),
		challenge.WithBackupCodeService(backupCodeService),
		challenge.WithAuditService(auditService),
	)

	overrideService := override.NewOverrideService(
		credentialRepo,
		backupCodeService,
		override.WithAuditService(auditService),
		override.WithNotificationManager(notificationManager),
		override.WithContactResolver(contacts),
	)

	complianceService := compliance.NewComplianceService(credentialRepo, auditService)

	// JWT auth for middleware
	jwtAuth := jwtauth.New("HS256", []byte(jwtSecret), nil)

	return &Services{
		credentialService: credentialService,
		challengeService:  challengeService,
		grantService:      grantService,
		grantCookies:      grantCookies,
		overrideService:   overrideService,
		complianceService: complianceService,
		auditService:      auditService,
		backupCodeService: backupCodeService,
		lockoutService:    lockoutService,
		jwtAuth:           jwtAuth,
	}
}

func setupRoutes(r *chi.Mux, services *Services) {
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(audit.CaptureRequestInfo)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	challengeHandle := challengeapi.NewHandle(services.challengeService, services.grantCookies)
	credentialHandle := credentialsapi.NewHandle(services.credentialService, services.grantService)
	overrideHandle := overrideapi.NewHandle(services.overrideService)
	complianceHandle := complianceapi.NewHandle(services.complianceService)

	// Challenge routes: verify is authenticated by the challenge token itself,
	// initiate requires a first-factor access token
	r.Route("/api/v1/2fa/challenge", func(r chi.Router) {
		r.Post("/verify", challengeHandle.Verify)

		r.Group(func(r chi.Router) {
			r.Use(client.Verifier(services.jwtAuth))
			r.Use(jwtauth.Authenticator(services.jwtAuth))
			r.Use(client.AuthUserMiddleware)
			r.Post("/initiate", challengeHandle.Initiate)
		})
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(client.Verifier(services.jwtAuth))
		r.Use(jwtauth.Authenticator(services.jwtAuth))
		r.Use(client.AuthUserMiddleware)

		r.Mount("/api/v1/2fa/credentials", credentialsapi.Handler(credentialHandle))

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(client.AdminRoleMiddleware)
			r.Mount("/api/v1/admin/2fa", overrideapi.Handler(overrideHandle))
			r.Mount("/api/v1/compliance/2fa", complianceapi.Handler(complianceHandle))
		})
	})
}

func seedInitialData(services *Services, contacts *notification.StaticContactResolver) (demoUserID, adminUserID uuid.UUID, totpSecret string) {
	slog.Info("Seeding initial data...")
	ctx := context.Background()

	demoUserID = uuid.New()
	adminUserID = uuid.New()

	contacts.SetEmail(demoUserID, "demo@licensemart.example")
	contacts.SetEmail(adminUserID, "admin@licensemart.example")

	// Enroll the demo user in TOTP confirming with a freshly generated code
	setup, err := services.credentialService.EnableTotp(ctx, demoUserID)
	if err != nil {
		slog.Error("Failed to begin demo TOTP enrollment", "err", err)
		os.Exit(-1)
	}
	code, err := otpgen.GenerateCode(setup.Secret, time.Now())
	if err != nil {
		slog.Error("Failed to generate demo TOTP code", "err", err)
		os.Exit(-1)
	}
	result, err := services.credentialService.ConfirmTotpSetup(ctx, demoUserID, code)
	if err != nil {
		slog.Error("Failed to confirm demo TOTP enrollment", "err", err)
		os.Exit(-1)
	}
	slog.Info("Created demo user with TOTP enrolled", "id", demoUserID)
	slog.Info("Demo backup codes", "codes", strings.Join(result.BackupCodes, " "))

	slog.Info("Created admin user", "id", adminUserID)

	slog.Info("Initial data seeded successfully")
	return demoUserID, adminUserID, setup.Secret
}

// mintAccessToken signs a development access token carrying the claim layout
// AuthUserMiddleware expects. In production the session service issues these.
func mintAccessToken(userID uuid.UUID, email string, roles ...string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":     userID.String(),
		"user_id": userID.String(),
		"iss":     issuer,
		"aud":     audience,
		"iat":     now.Unix(),
		"exp":     now.Add(24 * time.Hour).Unix(),
		"extra_claims": map[string]interface{}{
			"email": email,
			"roles": roles,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtSecret))
}
