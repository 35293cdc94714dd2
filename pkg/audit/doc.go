// Package audit provides a hash-chained, append-only audit log for
// two-factor authentication events.
//
// Every entry links to its predecessor: EntryHash is the SHA-256 of the
// entry's canonical serialization concatenated with the previous entry's
// hash. Editing, removing or reordering any stored entry therefore breaks
// verification for every entry that follows it.
//
// # Basic Usage
//
//	repo := audit.NewInMemoryAuditRepository()
//	service := audit.NewAuditService(repo)
//
//	event, err := service.Record(ctx, audit.RecordParams{
//		UserID:  uuid.NullUUID{UUID: userID, Valid: true},
//		Action:  audit.ACTION_SUCCESSFUL_AUTH,
//		Success: true,
//		Metadata: audit.EventMetadata{
//			IP:     "203.0.113.9",
//			Method: "totp",
//		},
//	})
//
//	report, err := service.VerifyChainIntegrity(ctx, 1, 0) // 0 = up to head
//	if !report.Valid {
//		log.Printf("chain broken at seq %d", report.FirstBrokenSeq)
//	}
//
// # Concurrency
//
// Appends are serialized through a per-instance mutex, and the repository
// only accepts an entry whose expected predecessor still is the stored head.
// Two service instances sharing one store can therefore never both claim the
// same predecessor; the loser re-reads the head and retries a bounded number
// of times. A single chain is a deliberate scaling limit: it trades write
// throughput for a total order over all security events.
//
// # Archival
//
// ArchiveBefore moves a contiguous prefix of old entries to the archive
// store with their hashes untouched. Ranged reads span archive and live
// storage, so verification keeps working across the boundary.
package audit
