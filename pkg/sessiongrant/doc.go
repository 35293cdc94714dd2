// Package sessiongrant issues the short-lived proof that a step-up challenge
// was satisfied.
//
// A grant is a signed HS256 JWT with {sub, amr, twofa_verified, exp}. It is
// minted only by the challenge orchestrator's success path and exchanged by
// the session layer for a full session; this package never mints sessions.
// Delivery is either the response body or the grant cookie via
// GrantCookieService.
package sessiongrant
