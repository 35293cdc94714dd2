// Package compliance answers read-only reporting queries over the credential
// store and the audit log: enrollment adoption and time-bucketed
// verification failure trends.
package compliance
