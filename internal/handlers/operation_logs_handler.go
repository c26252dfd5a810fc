package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
)

const defaultOperationLogLimit = 100

// OperationLogsHandler serves the logs the dispatcher recorded per operation
type OperationLogsHandler struct {
	logs   OperationLogReader
	logger arbor.ILogger
}

func NewOperationLogsHandler(logs OperationLogReader, logger arbor.ILogger) *OperationLogsHandler {
	return &OperationLogsHandler{logs: logs, logger: logger}
}

// ListHandler handles GET /api/operations?id=&limit=.
// Without id it returns the newest entries across operations.
func (h *OperationLogsHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	limit := QueryInt(r, "limit", defaultOperationLogLimit)
	operationID := r.URL.Query().Get("id")

	var err error
	var entries interface{}
	if operationID != "" {
		entries, err = h.logs.GetOperationLogs(r.Context(), operationID, limit)
	} else {
		entries, err = h.logs.Recent(r.Context(), limit)
	}
	if err != nil {
		h.logger.Error().Err(err).Str("operation_id", operationID).Msg("Failed to read operation logs")
		WriteError(w, http.StatusInternalServerError, "Failed to read operation logs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"operation_id": operationID,
		"logs":         entries,
	})
}
