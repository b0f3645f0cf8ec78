package models

import (
	"encoding/json"
	"time"
)

type CommandType string

const (
	CmdRunDispatch     CommandType = "run_dispatch"
	CmdRunGeneration   CommandType = "run_generation"
	CmdRunVerification CommandType = "run_verification"
	CmdCancelListing      CommandType = "cancel_listing"
	CmdRetryEntry         CommandType = "retry_entry"
	CmdRetryVerification  CommandType = "retry_verification"
	CmdGenerateForListing CommandType = "generate_for_listing"
	CmdStatusChange       CommandType = "status_change"
)

// Command is an operator request queued through the local ops store.
type Command struct {
	ID          int64           `json:"id" db:"id"`
	Command     CommandType     `json:"command" db:"command"`
	Params      json.RawMessage `json:"params" db:"params"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at" db:"processed_at"`
}

type CommandParams struct {
	ListingID      string `json:"listing_id,omitempty"`
	EntryID        string `json:"entry_id,omitempty"`
	VerificationID string `json:"verification_id,omitempty"`
	OldStatus      string `json:"old_status,omitempty"`
	NewStatus      string `json:"new_status,omitempty"`
}
