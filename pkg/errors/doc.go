// Package errors provides structured error handling with error codes for stepup-auth.
//
// This package standardizes error handling across all services with typed error codes,
// structured error details, and automatic HTTP status code mapping. The codes double
// as the contract surfaced to API callers: handlers serialize Code and Message, and
// anything that is not a structured Error collapses into INTERNAL_ERROR so storage
// faults never leak detail to unauthenticated callers.
//
// # Basic Usage
//
// Creating errors with codes:
//
//	import "github.com/licensemart/stepup-auth/pkg/errors"
//
//	// Create a simple error
//	err := errors.New(errors.ErrCodeNotEnabled, "two-factor authentication is not enabled")
//
//	// Wrap an existing error
//	err := errors.Wrap(dbErr, errors.ErrCodeInternal, "failed to load credential record")
//
//	// Use convenience constructors
//	err := errors.ChallengeExpired()
//	err := errors.InvalidCode(attemptsRemaining)
//	err := errors.AccountLocked(lockedUntil)
//
// # Error Codes
//
// Enrollment:
//   - ErrCodeNotEnabled: an operation required a configured 2FA method and none exists
//
// Challenge lifecycle:
//   - ErrCodeChallengeExpired: the challenge token is past its expiry
//   - ErrCodeChallengeNotFound: unknown or already-consumed token
//   - ErrCodeInvalidCode: verification failed, attempts remain
//
// Throttling:
//   - ErrCodeRateLimited: too many challenge issuances in a window
//   - ErrCodeAccountLocked: the lockout tracker has locked the account
//
// Generic:
//   - ErrCodeForbidden, ErrCodeNotFound, ErrCodeValidation, ErrCodeConflict,
//     ErrCodeUnauthorized, ErrCodeInternal
//
// # Error Inspection
//
// Check error codes and extract information:
//
//	if errors.IsCode(err, errors.ErrCodeAccountLocked) {
//		// tell the caller when to retry
//	}
//
//	code := errors.GetCode(err)
//	details := errors.GetDetails(err)
//
//	// Standard error wrapping still works
//	if errors.Is(err, pgx.ErrNoRows) {
//		// handle no rows
//	}
//
// # HTTP Status Code Mapping
//
// Error code to HTTP status mapping:
//   - ErrCodeValidation, ErrCodeNotEnabled → 400 Bad Request
//   - ErrCodeInvalidCode, ErrCodeChallengeExpired, ErrCodeChallengeNotFound → 401 Unauthorized
//   - ErrCodeForbidden, ErrCodeAccountLocked → 403 Forbidden
//   - ErrCodeNotFound → 404 Not Found
//   - ErrCodeConflict → 409 Conflict
//   - ErrCodeRateLimited → 429 Too Many Requests
//   - ErrCodeInternal → 500 Internal Server Error
//
// Handlers should use HTTPStatusCode on the structured error rather than
// switching on codes themselves:
//
//	var structuredErr *errors.Error
//	if stderrors.As(err, &structuredErr) {
//		render.Status(r, structuredErr.HTTPStatusCode())
//		render.JSON(w, r, map[string]interface{}{
//			"code":    structuredErr.Code,
//			"message": structuredErr.Message,
//		})
//		return
//	}
//
// # Propagation Policy
//
// Verification failures are expected, recoverable conditions: services return
// structured results with attempts remaining instead of bare errors, so the
// orchestrator can re-prompt. Lockout and expiry are terminal for the current
// challenge but not for the account. Storage failures are wrapped with
// InternalWrap and propagate to the caller without silent retries.
package errors
