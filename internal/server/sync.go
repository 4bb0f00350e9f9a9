package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/salewatch/salewatch/internal/engine"
	"github.com/salewatch/salewatch/internal/types"
)

type startSyncRequest struct {
	APIKeyID  string   `json:"apiKeyId"`
	APIKeyIDs []string `json:"apiKeyIds"`
}

// handleSyncStart handles POST /api/sync/start. The sync runs in the
// background; the response carries a sync id for status polling. A single
// apiKeyId syncs one credential; apiKeyIds syncs a subset under one shared
// sync id; an empty body syncs every credential.
func (s *Server) handleSyncStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req startSyncRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.APIKeyID != "" && len(req.APIKeyIDs) > 0 {
		s.writeError(w, http.StatusBadRequest, "apiKeyId and apiKeyIds are mutually exclusive")
		return
	}

	// The run outlives this request; only the credential lookup uses r.Context.
	var syncID string
	var err error
	if req.APIKeyID != "" {
		syncID, err = s.engine.StartSync(s.runCtx(r), req.APIKeyID)
	} else {
		syncID, err = s.engine.StartSyncAll(s.runCtx(r), req.APIKeyIDs)
	}
	if err != nil {
		if errors.Is(err, engine.ErrSyncInProgress) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"syncId": syncID})
}

// handleSyncStatus handles GET /api/sync/status/{syncId}.
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	syncID := strings.TrimPrefix(r.URL.Path, "/api/sync/status/")
	if syncID == "" {
		s.writeError(w, http.StatusBadRequest, "missing sync id")
		return
	}
	prog, ok := s.engine.Status(syncID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown sync id")
		return
	}
	s.writeJSON(w, http.StatusOK, prog)
}

// handleSyncActive handles GET /api/sync/active.
func (s *Server) handleSyncActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	active := s.engine.ActiveRuns()
	if active == nil {
		active = []engine.Progress{}
	}
	s.writeJSON(w, http.StatusOK, active)
}

// handleSyncTasks handles GET /api/sync/tasks and /api/sync/tasks/{apiKeyId}.
func (s *Server) handleSyncTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/sync/tasks")
	id = strings.TrimPrefix(id, "/")
	if id != "" {
		counts, err := s.store.TaskCounts(r.Context(), id)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, counts)
		return
	}
	all, err := s.engine.QueueStatus(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if all == nil {
		all = map[string]types.TaskCounts{}
	}
	s.writeJSON(w, http.StatusOK, all)
}

// handleSyncFailed handles GET /api/sync/failed[?limit=N].
func (s *Server) handleSyncFailed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	tasks, err := s.store.ListFailedTasks(r.Context(), limit)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*types.SyncTask{}
	}
	s.writeJSON(w, http.StatusOK, tasks)
}

// handleSyncRetry handles POST /api/sync/retry/{apiKeyId}: failed tasks go
// back to pending.
func (s *Server) handleSyncRetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/sync/retry/")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "missing key id")
		return
	}
	n, err := s.engine.RetryFailed(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"reset": n})
}
