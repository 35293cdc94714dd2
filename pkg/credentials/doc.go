// Package credentials manages a user's second-factor configuration for
// stepup-auth.
//
// This package owns the credential record behind every step-up challenge:
// which methods a user has enrolled in, the encrypted TOTP secret, the
// verified phone number, the preferred method, and the time of the last
// successful verification.
//
// # Overview
//
// The credentials package provides:
//   - TOTP enrollment with an explicit confirm step
//   - SMS enrollment with phone verification via pkg/smscode
//   - AES-256-GCM encryption of TOTP secrets at rest
//   - Preferred method selection with enablement checks
//   - Automatic backup-code issuance on a user's first enabled method
//   - Status reporting with masked destinations
//   - Full disable with backup-code invalidation and a security alert
//
// # Supported 2FA Methods
//
//   - **TOTP** - Time-based codes from authenticator apps (Google Authenticator, Authy, etc.)
//   - **SMS** - Codes sent via SMS to the user's verified phone
//
// Backup codes are a recovery path managed by pkg/backupcode, not an
// enrollable method; this package only triggers their issuance.
//
// # Basic Usage
//
//	import "github.com/licensemart/stepup-auth/pkg/credentials"
//
//	cipher, err := credentials.NewSecretCipher(cfg.EncryptionKey)
//	if err != nil {
//		return err
//	}
//
//	service := credentials.NewCredentialService(
//		repo,
//		cipher,
//		credentials.WithTotpVerifier(totpVerifier),
//		credentials.WithSmsCodeService(smsCodeService),
//		credentials.WithBackupCodeService(backupCodeService),
//		credentials.WithAuditService(auditService),
//	)
//
// # TOTP Setup
//
// Enrollment is a two-step flow. The secret is returned exactly once and is
// not usable for login until the user proves they captured it:
//
//	// Step 1: generate and store the pending secret
//	setup, err := service.EnableTotp(ctx, userID)
//	if err != nil {
//		return err
//	}
//	// Show setup.Secret / setup.ProvisioningURI to the user
//
//	// Step 2: the user enters a code from their authenticator app
//	result, err := service.ConfirmTotpSetup(ctx, userID, userEnteredCode)
//	if err != nil {
//		return err
//	}
//	if len(result.BackupCodes) > 0 {
//		// First enabled method: show the backup codes exactly once
//	}
//
// # SMS Setup
//
// The same confirm pattern, with delivery handled by pkg/smscode:
//
//	masked, err := service.EnableSms(ctx, userID, "+15551234567")
//	// Tell the user a code was sent to masked, e.g. "*******4567"
//
//	result, err := service.ConfirmSmsSetup(ctx, userID, deliveredCode)
//
// # Backup Codes
//
// The first confirmed method mints a batch automatically; users can rotate
// the batch at any time:
//
//	codes, err := service.RegenerateBackupCodes(ctx, userID)
//	// Previous unused codes are now dead; show the new batch exactly once
//
// # Secret Storage
//
// TOTP secrets are encrypted with AES-256-GCM before they reach the
// repository. The key is derived from the configured encryption key with
// PBKDF2, so neither the database nor the JSON file persistence ever holds a
// plaintext secret. See SecretCipher.
//
// # Persistence Options
//
// Repositories are created through the factory:
//
//	repo, err := credentials.NewCredentialRepository("postgres", credentials.RepositoryConfig{Pool: pool})
//	repo, err := credentials.NewCredentialRepository("file", credentials.RepositoryConfig{DataDir: "./data"})
//	repo, err := credentials.NewCredentialRepository("memory", credentials.RepositoryConfig{})
package credentials
