package server

import (
	"net/http"
	"strings"

	"github.com/salewatch/salewatch/internal/idgen"
	"github.com/salewatch/salewatch/internal/types"
)

type createKeyRequest struct {
	DisplayName string `json:"displayName"`
	Key         string `json:"key"`
}

type renameKeyRequest struct {
	DisplayName string `json:"displayName"`
}

// handleKeys handles GET /api/keys (list) and POST /api/keys (create).
func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		creds, err := s.store.ListCredentials(r.Context())
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		if creds == nil {
			creds = []*types.Credential{}
		}
		s.writeJSON(w, http.StatusOK, creds)

	case http.MethodPost:
		var req createKeyRequest
		if !s.decodeBody(w, r, &req) {
			return
		}
		if req.DisplayName == "" || req.Key == "" {
			s.writeError(w, http.StatusBadRequest, "displayName and key are required")
			return
		}
		cred, err := s.createCredential(r, req.DisplayName, req.Key)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, cred)

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) createCredential(r *http.Request, displayName, key string) (*types.Credential, error) {
	id, err := idgen.NewCredentialID()
	if err != nil {
		return nil, err
	}
	blob, err := s.secrets.Encrypt(key)
	if err != nil {
		return nil, err
	}
	cred := &types.Credential{
		ID:           id,
		DisplayName:  displayName,
		KeyHash:      keyHash(key),
		EncryptedKey: blob,
	}
	if err := s.store.CreateCredential(r.Context(), cred); err != nil {
		return nil, err
	}
	return cred, nil
}

// keyHash is the display suffix stored alongside a credential. Keys shorter
// than four characters are not truncated but also not worth protecting.
func keyHash(key string) string {
	const n = 4
	if len(key) <= n {
		return key
	}
	return key[len(key)-n:]
}

// handleKeyByID handles /api/keys/{id} (GET, PUT/PATCH rename, DELETE) and
// /api/keys/{id}/stats (GET).
func (s *Server) handleKeyByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/keys/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		s.writeError(w, http.StatusNotFound, "missing key id")
		return
	}

	if sub == "stats" {
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		stats, err := s.store.CredentialStats(r.Context(), id)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, stats)
		return
	}
	if sub != "" {
		s.writeError(w, http.StatusNotFound, "unknown endpoint")
		return
	}

	switch r.Method {
	case http.MethodGet:
		cred, err := s.store.GetCredential(r.Context(), id)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, cred)

	case http.MethodPut, http.MethodPatch:
		var req renameKeyRequest
		if !s.decodeBody(w, r, &req) {
			return
		}
		if req.DisplayName == "" {
			s.writeError(w, http.StatusBadRequest, "displayName is required")
			return
		}
		if err := s.store.RenameCredential(r.Context(), id, req.DisplayName); err != nil {
			s.writeStoreError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"id": id, "displayName": req.DisplayName})

	case http.MethodDelete:
		if err := s.store.DeleteCredential(r.Context(), id); err != nil {
			s.writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
