package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/drivekit/drivekit/internal/files"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type createFolderRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id"`
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var req createFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "folder name is required")
		return
	}

	if req.ParentID != nil {
		parent, err := s.fileStore.GetFolder(r.Context(), *req.ParentID)
		if err != nil || parent.OwnerID != user.ID {
			s.writeError(w, http.StatusNotFound, files.ErrFolderNotFound.Error())
			return
		}
	}

	folder := &files.Folder{
		ID:        uuid.NewString(),
		OwnerID:   user.ID,
		ParentID:  req.ParentID,
		Name:      req.Name,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.fileStore.CreateFolder(r.Context(), folder); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to create folder")
		return
	}

	s.writeJSON(w, http.StatusCreated, folder)
}

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var parentID *string
	if v := r.URL.Query().Get("parent_id"); v != "" {
		parentID = &v
	}

	list, err := s.fileStore.ListFolders(r.Context(), user.ID, parentID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list folders")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"folders": list})
}

func (s *Server) handleGetFolder(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	folderID := mux.Vars(r)["folderId"]
	folder, err := s.fileStore.GetFolder(r.Context(), folderID)
	if err != nil {
		if errors.Is(err, files.ErrFolderNotFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to resolve folder")
		return
	}
	if folder.OwnerID != user.ID {
		s.writeError(w, http.StatusNotFound, files.ErrFolderNotFound.Error())
		return
	}

	contents, err := s.fileStore.ListFiles(r.Context(), user.ID, &folder.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list folder contents")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"folder": folder,
		"files":  contents,
	})
}
