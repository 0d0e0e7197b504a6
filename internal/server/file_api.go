package server

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/drivekit/drivekit/internal/files"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// maxUploadSize caps multipart uploads at 100 MiB.
const maxUploadSize = 100 << 20

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "" || name == "." {
		s.writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}

	var folderID *string
	if v := r.FormValue("folder_id"); v != "" {
		folder, err := s.fileStore.GetFolder(r.Context(), v)
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
		folderID = &folder.ID
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	storagePath := fmt.Sprintf("%s/%d-%s", user.ID, time.Now().UnixNano(), name)
	if err := s.objectStore.Put(r.Context(), storagePath, file, header.Size, contentType); err != nil {
		logrus.WithError(err).WithField("path", storagePath).Error("Failed to store uploaded object")
		s.writeError(w, http.StatusBadGateway, "failed to store file")
		return
	}

	now := time.Now().UTC()
	record := &files.FileRecord{
		ID:          uuid.NewString(),
		OwnerID:     user.ID,
		FolderID:    folderID,
		Name:        name,
		Size:        header.Size,
		ContentType: contentType,
		StoragePath: storagePath,
		PublicURL:   s.objectStore.PublicURL(storagePath),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.fileStore.InsertFile(r.Context(), record); err != nil {
		// Roll back the stored object so orphans do not accumulate.
		if delErr := s.objectStore.Delete(r.Context(), storagePath); delErr != nil {
			logrus.WithError(delErr).WithField("path", storagePath).Warn("Failed to remove orphaned object")
		}
		s.writeError(w, http.StatusInternalServerError, "failed to record file")
		return
	}

	logrus.WithFields(logrus.Fields{
		"file_id": record.ID,
		"owner":   user.ID,
		"size":    record.Size,
	}).Info("File uploaded")

	s.writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var folderID *string
	if v := r.URL.Query().Get("folder_id"); v != "" {
		folderID = &v
	}

	list, err := s.fileStore.ListFiles(r.Context(), user.ID, folderID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list files")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"files": list})
}

func (s *Server) handleSearchFiles(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	list, err := s.fileStore.SearchFiles(r.Context(), user.ID, query)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to search files")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"files": list})
}

// handleDownloadFile redirects the caller to a short-lived signed URL for the
// object. Access is resolved through the share registry, so both owners and
// grantees can download.
func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	fileID := mux.Vars(r)["fileId"]
	signed, err := s.shareRegistry.IssueSignedURL(r.Context(), user.ID, fileID, 0)
	if err != nil {
		s.shareError(w, err)
		return
	}

	http.Redirect(w, r, signed.URL, http.StatusFound)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	fileID := mux.Vars(r)["fileId"]
	record, err := s.fileStore.GetFile(r.Context(), fileID)
	if err != nil {
		if errors.Is(err, files.ErrFileNotFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to resolve file")
		return
	}
	if record.OwnerID != user.ID {
		s.writeError(w, http.StatusNotFound, files.ErrFileNotFound.Error())
		return
	}

	if err := s.fileStore.SoftDeleteFile(r.Context(), fileID); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to delete file")
		return
	}

	logrus.WithFields(logrus.Fields{
		"file_id": fileID,
		"owner":   user.ID,
	}).Info("File deleted")

	s.writeJSON(w, http.StatusOK, map[string]string{"message": "file deleted"})
}
