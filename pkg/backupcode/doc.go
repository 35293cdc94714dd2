// Package backupcode issues and redeems single-use recovery codes.
//
// Codes look like "XHJM-29QD-LWTK": three groups of four characters from an
// alphabet without 0/O and 1/I. The shape is deliberate, letting a caller
// tell a backup code from a six-digit passcode before deciding how to verify
// it; IsBackupCodeFormat does that check.
//
// Plaintexts are returned exactly once at generation. Storage holds bcrypt
// hashes, a regular batch replaces all unused predecessors atomically, and a
// conditional update on redemption means a code can never be spent twice,
// however many clients race for it. Emergency codes are the same thing with
// an expiry, issued additively by admin-assisted recovery.
package backupcode
