// Package override implements the privileged escape hatches around the
// normal 2FA flow: a full credential reset and short-lived emergency codes
// for locked-out users.
//
// Both operations demand a written justification and refuse to target the
// calling admin's own account, and both land in the audit trail with the
// admin's identity, so every use of the escape hatch is attributable.
package override
