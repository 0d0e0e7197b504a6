package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/drivekit/drivekit/internal/auth"
	"github.com/drivekit/drivekit/internal/files"
	"github.com/drivekit/drivekit/internal/share"
	"github.com/drivekit/drivekit/internal/storage"
	"github.com/sirupsen/logrus"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			logrus.WithError(err).Error("Failed to encode response")
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// shareStatus maps registry and store errors onto HTTP status codes. An
// expired public share is reported as 410 so clients can distinguish a
// dead link from one that never existed.
func shareStatus(err error) int {
	switch {
	case errors.Is(err, share.ErrInvalidRole),
		errors.Is(err, share.ErrMissingTarget),
		errors.Is(err, share.ErrInvalidExpiry):
		return http.StatusBadRequest
	case errors.Is(err, share.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, share.ErrFileNotFound),
		errors.Is(err, share.ErrShareNotFound),
		errors.Is(err, files.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, share.ErrShareExpired):
		return http.StatusGone
	}
	var storageErr *storage.Error
	if errors.As(err, &storageErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) shareError(w http.ResponseWriter, err error) {
	status := shareStatus(err)
	if status == http.StatusInternalServerError {
		logrus.WithError(err).Error("Share operation failed")
		s.writeError(w, status, "internal server error")
		return
	}
	s.writeError(w, status, err.Error())
}

// requireUser extracts the authenticated user from the request context. The
// auth middleware rejects unauthenticated requests on protected paths, so a
// missing user here is a routing bug rather than a client error.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (*auth.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	return user, true
}
