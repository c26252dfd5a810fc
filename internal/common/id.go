package common

import (
	"github.com/google/uuid"
)

// NewOperationID generates a correlation ID for a dispatched operation
// Format: op_<uuid>
func NewOperationID() string {
	return "op_" + uuid.New().String()
}

// NewEventID generates a unique analytics event ID
// Format: evt_<uuid>
func NewEventID() string {
	return "evt_" + uuid.New().String()
}

// NewRequestID tags one HTTP request in the server logs
// Format: req_<uuid>
func NewRequestID() string {
	return "req_" + uuid.New().String()
}
