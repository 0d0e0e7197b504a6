package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/drivekit/drivekit/internal/storage"
	"github.com/sirupsen/logrus"
)

// handleSignedDownload serves objects referenced by locally signed URLs.
// It only exists for the filesystem backend; S3 deployments hand out
// presigned URLs that point at the bucket endpoint instead.
func (s *Server) handleSignedDownload(w http.ResponseWriter, r *http.Request) {
	fs, ok := s.objectStore.(*storage.FilesystemProvider)
	if !ok {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	valid, err := fs.ValidateSignedRequest(r)
	if err != nil || !valid {
		s.writeError(w, http.StatusForbidden, "invalid or expired signature")
		return
	}

	objectPath := strings.TrimPrefix(r.URL.Path, "/d/")
	if objectPath == "" {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	reader, err := fs.Open(r.Context(), objectPath)
	if err != nil {
		var storageErr *storage.Error
		if errors.As(err, &storageErr) {
			s.writeError(w, http.StatusNotFound, "object not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to open object")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, reader); err != nil {
		logrus.WithError(err).WithField("path", objectPath).Warn("Download interrupted")
	}
}
