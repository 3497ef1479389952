package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"trackdrop/internal/auth"
	"trackdrop/internal/config"
	"trackdrop/internal/database"
	"trackdrop/internal/metadata"
	"trackdrop/internal/ngrok"
	"trackdrop/internal/storage"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ObjectStore is the subset of object storage the server uses
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (string, error)
	GetObject(ctx context.Context, bucket, key string) (*storage.Object, error)
	RemoveObject(ctx context.Context, bucket, key string) error
	KeyFromURL(bucket, rawURL string) (string, bool)
	CoversBucket() string
	MusicBucket() string
	Ping(ctx context.Context) error
}

// RemoteFetcher downloads audio and cover art from arbitrary URLs
type RemoteFetcher interface {
	FetchAudio(ctx context.Context, rawURL string) ([]byte, error)
	FetchCover(ctx context.Context, rawURL string) ([]byte, error)
}

// Dependencies are the collaborators a MusicServer is built from
type Dependencies struct {
	Config     *config.Config
	ConfigPath string
	DB         *database.Database
	Store      ObjectStore
	Fetcher    RemoteFetcher
	Codes      *auth.AccessCodes
	Logger     *logrus.Logger
}

// MusicServer serves the album catalog and tagged downloads
type MusicServer struct {
	config       *config.Config
	configPath   string
	db           *database.Database
	store        ObjectStore
	fetcher      RemoteFetcher
	codes        *auth.AccessCodes
	extractor    *metadata.Extractor
	ngrokService *ngrok.Service
	watcher      *fsnotify.Watcher
	codeLimiter  *rate.Limiter
	logger       *logrus.Logger
	httpServer   *http.Server
	now          func() time.Time
}

// NewMusicServer creates a new music server instance
func NewMusicServer(deps Dependencies) *MusicServer {
	ms := &MusicServer{
		config:      deps.Config,
		configPath:  deps.ConfigPath,
		db:          deps.DB,
		store:       deps.Store,
		fetcher:     deps.Fetcher,
		codes:       deps.Codes,
		extractor:   metadata.NewExtractor(deps.Config.Library.SupportedFormats, deps.Logger),
		codeLimiter: rate.NewLimiter(rate.Every(time.Second), 10),
		logger:      deps.Logger,
		now:         time.Now,
	}

	ngrokSvc, err := ngrok.NewService(&deps.Config.Ngrok, deps.Logger)
	if err != nil {
		ms.logger.WithError(err).Warn("Ngrok service not available")
	}
	ms.ngrokService = ngrokSvc

	return ms
}

// Handler builds the routed and middleware-wrapped HTTP handler
func (ms *MusicServer) Handler() http.Handler {
	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ms.respondWithError(w, r, http.StatusNotFound, "Not found", nil)
	})
	methodNotAllowed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ms.respondWithError(w, r, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})

	router := mux.NewRouter()
	router.NotFoundHandler = notFound
	router.MethodNotAllowedHandler = methodNotAllowed

	router.HandleFunc("/health", ms.handleHealthCheck).Methods(http.MethodGet)

	// Subrouters do not inherit the parent's fallback handlers
	api := router.PathPrefix("/api").Subrouter()
	api.NotFoundHandler = notFound
	api.MethodNotAllowedHandler = methodNotAllowed
	api.HandleFunc("/config", ms.handleGetConfig).Methods(http.MethodGet)
	api.HandleFunc("/auth/verify", ms.handleVerifyCode).Methods(http.MethodPost)

	api.HandleFunc("/download-with-metadata", ms.handleDownloadWithMetadata).Methods(http.MethodPost)
	api.HandleFunc("/tracks/{id}/download", ms.handleTrackDownload).Methods(http.MethodGet)
	api.HandleFunc("/tracks/{id}/direct", ms.handleTrackDirect).Methods(http.MethodGet)

	api.HandleFunc("/albums", ms.handleListAlbums).Methods(http.MethodGet)
	api.HandleFunc("/albums", ms.requireCode(auth.ScopeUpload, ms.handleCreateAlbum)).Methods(http.MethodPost)
	api.HandleFunc("/albums/{id}", ms.handleGetAlbum).Methods(http.MethodGet)
	api.HandleFunc("/albums/{id}", ms.requireCode(auth.ScopeEditor, ms.handleUpdateAlbum)).Methods(http.MethodPut)
	api.HandleFunc("/albums/{id}", ms.requireCode(auth.ScopeEditor, ms.handleDeleteAlbum)).Methods(http.MethodDelete)
	api.HandleFunc("/albums/{id}/cover", ms.handleAlbumCover).Methods(http.MethodGet)

	// Preflight is answered by the CORS middleware before routing
	var handler http.Handler = router
	handler = ms.corsMiddleware(handler)
	handler = ms.requestLoggingMiddleware(handler)
	handler = ms.panicRecoveryMiddleware(handler)
	return handler
}

// Start serves HTTP until the server is shut down. It returns nil after a
// graceful Shutdown.
func (ms *MusicServer) Start(ctx context.Context) error {
	if ms.config.Access.WatchConfig && ms.configPath != "" {
		if err := ms.startConfigWatcher(); err != nil {
			ms.logger.WithError(err).Warn("Could not start config watcher")
		}
	}

	ms.httpServer = &http.Server{
		Addr:         ms.config.GetAddress(),
		Handler:      ms.Handler(),
		ReadTimeout:  time.Duration(ms.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(ms.config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(ms.config.Server.IdleTimeout) * time.Second,
	}

	localAddress := fmt.Sprintf("http://%s", ms.config.GetAddress())

	albums, err := ms.db.ListAlbums()
	albumCount := 0
	if err == nil {
		albumCount = len(albums)
	}

	ms.logger.WithFields(logrus.Fields{
		"address": localAddress,
		"albums":  albumCount,
	}).Info("trackdrop server starting")

	if ms.ngrokService != nil {
		if err := ms.ngrokService.StartTunnel(ctx, localAddress); err != nil {
			ms.logger.WithError(err).Warn("Could not start ngrok tunnel")
		}
	}

	if err := ms.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the music server
func (ms *MusicServer) Shutdown(ctx context.Context) error {
	ms.logger.Info("Shutting down music server...")

	ms.stopConfigWatcher()

	if err := ms.ngrokService.Stop(); err != nil {
		ms.logger.WithError(err).Warn("Failed to stop ngrok tunnel")
	}

	var err error
	if ms.httpServer != nil {
		err = ms.httpServer.Shutdown(ctx)
	}

	ms.logger.Info("Music server shutdown complete")
	return err
}
