// Package challenge orchestrates step-up verification round trips.
//
// A challenge is one pending request to prove a second factor. The
// orchestrator issues it against the user's enrolled methods, checks
// submitted codes, enforces the per-challenge attempt budget and the
// account lockout policy, and converts a correct code into a short-lived
// session grant.
//
// # Challenge Lifecycle
//
// Every challenge starts as issued and ends in exactly one terminal state:
//
//   - consumed - one submission carried a valid code
//   - locked - the attempt budget ran out
//   - expired - the expiry passed before a valid code arrived
//
// The transitions run as single conditional updates in the repository, so
// two submissions racing on the same token cannot both win and no failed
// attempt is ever lost.
//
// # Basic Usage
//
//	import "github.com/licensemart/stepup-auth/pkg/challenge"
//
//	orchestrator := challenge.NewChallengeOrchestrator(
//		repo,
//		credentialService,
//		lockoutService,
//		grantService,
//		challenge.WithSmsCodeService(smsCodes),
//		challenge.WithBackupCodeService(backupCodes),
//		challenge.WithAuditService(auditService),
//		challenge.WithRateLimiter(limiter),
//	)
//
//	// Open a challenge; the method follows the user's enrollment.
//	info, err := orchestrator.InitiateChallenge(ctx, userID, requestInfo)
//
//	// Verify the code the user typed.
//	result, err := orchestrator.VerifyChallenge(ctx, info.Token, "123456", requestInfo)
//	if err == nil && result.Success {
//		// result.Grant proves the step-up for downstream services.
//	}
//
// Backup codes are recognized by their format (XXXX-XXXX-XXXX) and accepted
// on any challenge regardless of its method, so a user who lost their phone
// can still get through.
//
// Deployments that run without 2FA wire NewNoOpChallengeService instead; it
// satisfies ChallengeService and rejects every call.
package challenge
