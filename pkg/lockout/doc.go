// Package lockout counts failed verification attempts and temporarily locks
// verification once too many land inside the failure window. State transitions
// happen atomically in storage, expiry is computed lazily against the clock,
// and a background sweep clears stale records.
package lockout
