package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/drivekit/drivekit/internal/auth"
	"github.com/drivekit/drivekit/internal/config"
	"github.com/drivekit/drivekit/internal/db/migrations"
	"github.com/drivekit/drivekit/internal/files"
	"github.com/drivekit/drivekit/internal/metrics"
	"github.com/drivekit/drivekit/internal/middleware"
	"github.com/drivekit/drivekit/internal/share"
	"github.com/drivekit/drivekit/internal/storage"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Server represents the DriveKit server
type Server struct {
	config         *config.Config
	httpServer     *http.Server
	db             *sql.DB
	objectStore    storage.Provider
	fileStore      files.Store
	shareRegistry  share.Registry
	authManager    auth.Manager
	metricsManager *metrics.Manager
	startTime      time.Time
}

// New creates a new DriveKit server
func New(cfg *config.Config) (*Server, error) {
	dbPath := filepath.Join(cfg.DataDir, "drivekit.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	migrationManager := migrations.NewMigrationManager(db, logrus.StandardLogger())
	if err := migrationManager.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	objectStore, err := storage.NewProvider(cfg.Storage, cfg.PublicURL, cfg.Signing.Key)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create storage provider: %w", err)
	}

	fileStore := files.NewSQLiteStore(db)
	shareStore := share.NewSQLiteStore(db)
	userStore := auth.NewSQLiteStore(db)

	shareRegistry := share.NewRegistry(shareStore, fileStore, objectStore, share.SigningLimits{
		DefaultTTL: time.Duration(cfg.Signing.DefaultExpirySeconds) * time.Second,
		MaxTTL:     time.Duration(cfg.Signing.MaxExpirySeconds) * time.Second,
	})

	authManager := auth.NewManager(userStore, cfg.Auth)
	metricsManager := metrics.NewManager()

	httpServer := &http.Server{
		Addr:         cfg.Listen,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	server := &Server{
		config:         cfg,
		httpServer:     httpServer,
		db:             db,
		objectStore:    objectStore,
		fileStore:      fileStore,
		shareRegistry:  shareRegistry,
		authManager:    authManager,
		metricsManager: metricsManager,
		startTime:      time.Now(),
	}

	server.setupRoutes()

	return server, nil
}

// Start starts the server and blocks until the context is cancelled
func (s *Server) Start(ctx context.Context) error {
	logrus.WithFields(logrus.Fields{
		"address":  s.config.Listen,
		"data_dir": s.config.DataDir,
		"backend":  s.config.Storage.Backend,
	}).Info("Starting DriveKit server")

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.config.EnableTLS {
			err = s.httpServer.ListenAndServeTLS(s.config.CertFile, s.config.KeyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.shutdown()
	}
}

func (s *Server) shutdown() error {
	logrus.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Failed to shutdown HTTP server")
	}

	if err := s.objectStore.Close(); err != nil {
		logrus.WithError(err).Error("Failed to close storage provider")
	}

	return s.db.Close()
}

func (s *Server) setupRoutes() {
	router := mux.NewRouter()

	router.Use(middleware.CORS())
	router.Use(middleware.Logging())
	if s.config.Metrics.Enable {
		router.Use(s.metricsManager.Middleware())
	}
	router.Use(s.authManager.Middleware())

	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.config.Metrics.Enable {
		router.Handle(s.config.Metrics.Path, s.metricsManager.Handler()).Methods("GET")
	}

	api := router.PathPrefix("/api").Subrouter()

	// Auth
	api.HandleFunc("/auth/signup", s.handleSignup).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/login", s.handleLogin).Methods("POST", "OPTIONS")

	// Files
	api.HandleFunc("/files/upload", s.handleUploadFile).Methods("POST", "OPTIONS")
	api.HandleFunc("/files/search", s.handleSearchFiles).Methods("GET", "OPTIONS")
	api.HandleFunc("/files/download/{fileId}", s.handleDownloadFile).Methods("GET", "OPTIONS")
	api.HandleFunc("/files/{fileId}", s.handleDeleteFile).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/files", s.handleListFiles).Methods("GET", "OPTIONS")

	// Folders
	api.HandleFunc("/folders", s.handleCreateFolder).Methods("POST", "OPTIONS")
	api.HandleFunc("/folders", s.handleListFolders).Methods("GET", "OPTIONS")
	api.HandleFunc("/folders/{folderId}", s.handleGetFolder).Methods("GET", "OPTIONS")

	// Shares
	api.HandleFunc("/share/create/{fileId}", s.handleCreateShare).Methods("POST", "OPTIONS")
	api.HandleFunc("/share/public/{token}", s.handlePublicShare).Methods("GET", "OPTIONS")
	api.HandleFunc("/share/signed/{fileId}", s.handleSignedURL).Methods("GET", "OPTIONS")
	api.HandleFunc("/share/{shareId}", s.handleUpdateShare).Methods("PUT", "OPTIONS")
	api.HandleFunc("/share/{shareId}", s.handleDeleteShare).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/share", s.handleListShares).Methods("GET", "OPTIONS")

	// Locally signed downloads (filesystem backend)
	router.PathPrefix("/d/").HandlerFunc(s.handleSignedDownload).Methods("GET")

	s.httpServer.Handler = handlers.RecoveryHandler()(router)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "drivekit",
		"uptime":  time.Since(s.startTime).String(),
	})
}
