// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package busrpc

// Ack status vocabulary shared by both services.
const (
	StatusOK              = "OK"
	StatusRetry           = "RETRY"
	StatusInvalid         = "INVALID"
	StatusUnauthorized    = "UNAUTHORIZED"
	StatusProcessingError = "PROCESSING_ERROR"
	StatusUnimplemented   = "UNIMPLEMENTED"
)

// PublishAck is the Legacy service's response message.
type PublishAck struct {
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	BackoffHintMs int64  `json:"backoff_hint_ms,omitempty"`
}

// UniversalAck is the Universal service's response message: the same
// status vocabulary plus PROCESSING_ERROR and batch-level accounting.
type UniversalAck struct {
	Status                string `json:"status"`
	Reason                string `json:"reason,omitempty"`
	BackoffHintMs         int64  `json:"backoff_hint_ms,omitempty"`
	ProcessedTimestampNs  uint64 `json:"processed_timestamp_ns,omitempty"`
	EventsAccepted        int32  `json:"events_accepted,omitempty"`
}
