package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/drivekit/drivekit/internal/share"
	"github.com/gorilla/mux"
)

func (s *Server) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var opts share.CreateOptions
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	fileID := mux.Vars(r)["fileId"]
	grant, err := s.shareRegistry.CreateShare(r.Context(), user.ID, fileID, opts)
	if err != nil {
		s.shareError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, grant)
}

// handlePublicShare resolves a public token without authentication. The
// response embeds a signed URL so the caller can fetch the bytes directly.
func (s *Server) handlePublicShare(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	resolved, err := s.shareRegistry.ResolvePublicShare(r.Context(), token)
	if err != nil {
		s.shareError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, resolved)
}

func (s *Server) handleSignedURL(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var expiresIn int64
	if v := r.URL.Query().Get("expires_in"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid expires_in")
			return
		}
		expiresIn = parsed
	}

	fileID := mux.Vars(r)["fileId"]
	signed, err := s.shareRegistry.IssueSignedURL(r.Context(), user.ID, fileID, expiresIn)
	if err != nil {
		s.shareError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, signed)
}

func (s *Server) handleUpdateShare(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var patch share.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	shareID := mux.Vars(r)["shareId"]
	grant, err := s.shareRegistry.UpdateShare(r.Context(), user.ID, shareID, patch)
	if err != nil {
		s.shareError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, grant)
}

func (s *Server) handleDeleteShare(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	shareID := mux.Vars(r)["shareId"]
	if err := s.shareRegistry.DeleteShare(r.Context(), user.ID, shareID); err != nil {
		s.shareError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"message": "share revoked"})
}

func (s *Server) handleListShares(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	grants, err := s.shareRegistry.ListShares(r.Context(), user.ID)
	if err != nil {
		s.shareError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"shares": grants})
}
