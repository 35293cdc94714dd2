package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// hashableEvent fixes the field order and representation used for hashing.
// encoding/json emits struct fields in declaration order and sorts map keys,
// so serializing this struct is deterministic across processes.
type hashableEvent struct {
	ID        string        `json:"id"`
	Seq       int64         `json:"seq"`
	Timestamp string        `json:"timestamp"`
	UserID    string        `json:"user_id"`
	Action    string        `json:"action"`
	Success   bool          `json:"success"`
	Metadata  EventMetadata `json:"metadata"`
}

// ComputeEntryHash returns hex(SHA-256(canonicalJSON(event) + PreviousEntryHash)).
// The timestamp is rendered in RFC3339Nano UTC; events are created with
// microsecond precision so the rendering survives a database round trip.
func ComputeEntryHash(event AuditEvent) string {
	userID := ""
	if event.UserID.Valid {
		userID = event.UserID.UUID.String()
	}

	payload, err := json.Marshal(hashableEvent{
		ID:        event.ID.String(),
		Seq:       event.Seq,
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		UserID:    userID,
		Action:    event.Action,
		Success:   event.Success,
		Metadata:  event.Metadata,
	})
	if err != nil {
		// Marshalling a struct of strings, ints and bools cannot fail;
		// an empty hash would break the chain loudly on verification.
		return ""
	}

	sum := sha256.Sum256(append(payload, []byte(event.PreviousEntryHash)...))
	return hex.EncodeToString(sum[:])
}
