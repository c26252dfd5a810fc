package models

// OperationLogEntry is one log line emitted while the dispatcher ran an operation.
// Operations log through a logger carrying their operation ID as correlation ID,
// which is how entries are grouped.
//
// Timestamp Format:
//   - Timestamp: "15:04:05" for display
//   - FullTimestamp: RFC3339Nano for sorting
type OperationLogEntry struct {
	Timestamp     string `json:"timestamp"`
	FullTimestamp string `json:"full_timestamp"`
	Level         string `json:"level" badgerhold:"index"` // 3-letter level: DBG, INF, WRN, ERR
	Message       string `json:"message"`

	// Sequence orders entries written within the same timestamp
	Sequence string `json:"sequence" badgerhold:"index"`

	OperationID string `json:"operation_id" badgerhold:"index"`
	Operation   string `json:"operation,omitempty"` // Dispatcher operation name, e.g. "switch_account"
	AccountID   string `json:"account_id,omitempty"`
	Domain      string `json:"domain,omitempty"`
}
