package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/lanwake/internal/audit"
)

// auditLog queues a trail entry for a registry change made through the API.
// It is a no-op when auditing is disabled.
func (s *Server) auditLog(r *http.Request, action, deviceID string, details map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(audit.Entry{
		Action:   action,
		DeviceID: deviceID,
		Subject:  subjectFromContext(r.Context()),
		Source:   audit.SourceAPI,
		Details:  details,
	})
}

// handleListAuditLogs returns paginated trail entries, newest first.
//
// Query parameters:
//   - action: create, update, delete, move or wake
//   - device_id: a single device
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeNotFound(w, "audit logging not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:   q.Get("action"),
		DeviceID: q.Get("device_id"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.audit.Repository().List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
