package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"trackdrop/internal/database"
	"trackdrop/internal/id3"
	"trackdrop/pkg/models"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const maxDownloadRequestBytes = 64 << 10

// downloadRequest is the body of POST /api/download-with-metadata
type downloadRequest struct {
	FileURL     string `json:"fileUrl"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	TrackNumber int    `json:"trackNumber,omitempty"`
	TotalTracks int    `json:"totalTracks,omitempty"`
	AlbumArtURL string `json:"albumArtUrl,omitempty"`
}

// normalize trims the URLs and applies the track number defaults. Title,
// artist and album are tagged exactly as sent.
func (req *downloadRequest) normalize() {
	req.FileURL = sanitizeInput(req.FileURL)
	req.AlbumArtURL = sanitizeInput(req.AlbumArtURL)
	if req.TrackNumber < 1 {
		req.TrackNumber = 1
	}
	if req.TotalTracks < 1 {
		req.TotalTracks = 1
	}
}

func (req *downloadRequest) missingFields() []string {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"fileUrl", req.FileURL},
		{"title", req.Title},
		{"artist", req.Artist},
		{"album", req.Album},
	} {
		if sanitizeInput(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// byteLoader produces the bytes of an audio file or cover image
type byteLoader func(ctx context.Context) ([]byte, error)

// handleDownloadWithMetadata fetches a remote MP3, writes a fresh ID3v2.3 tag
// in front of it and returns it as an attachment.
func (ms *MusicServer) handleDownloadWithMetadata(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxDownloadRequestBytes)).Decode(&req); err != nil {
		ms.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	req.normalize()
	if missing := req.missingFields(); len(missing) > 0 {
		ms.respondWithErrorDetails(w, r, http.StatusBadRequest, "Missing required fields", nil,
			map[string]interface{}{"fields": missing})
		return
	}

	if verr := validateURL("fileUrl", req.FileURL); verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	loadAudio := ms.sourceLoader(ms.store.MusicBucket(), req.FileURL, ms.fetcher.FetchAudio)

	var loadCover byteLoader
	if req.AlbumArtURL != "" {
		loadCover = ms.sourceLoader(ms.store.CoversBucket(), req.AlbumArtURL, ms.fetcher.FetchCover)
	}

	ms.serveTaggedDownload(w, r, &req, loadAudio, loadCover)
}

// handleTrackDownload serves a catalog track with tags derived from its album.
func (ms *MusicServer) handleTrackDownload(w http.ResponseWriter, r *http.Request) {
	track, album, ok := ms.loadAvailableTrack(w, r)
	if !ok {
		return
	}

	position, total, err := ms.db.TrackPosition(track)
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error resolving track position", err)
		return
	}

	req := &downloadRequest{
		FileURL:     track.FileURL,
		Title:       track.Title,
		Artist:      album.Artist,
		Album:       album.Title,
		TrackNumber: position,
		TotalTracks: total,
		AlbumArtURL: album.ImageURL,
	}
	req.normalize()

	loadAudio := ms.sourceLoader(ms.store.MusicBucket(), track.FileURL, ms.fetcher.FetchAudio)
	if track.ObjectKey != "" {
		loadAudio = ms.objectLoader(ms.store.MusicBucket(), track.ObjectKey)
	}

	var loadCover byteLoader
	switch {
	case album.ImageKey != "":
		loadCover = ms.objectLoader(ms.store.CoversBucket(), album.ImageKey)
	case album.ImageURL != "":
		loadCover = ms.sourceLoader(ms.store.CoversBucket(), album.ImageURL, ms.fetcher.FetchCover)
	}

	ms.serveTaggedDownload(w, r, req, loadAudio, loadCover)
}

// objectLoader reads key from bucket.
func (ms *MusicServer) objectLoader(bucket, key string) byteLoader {
	return func(ctx context.Context) ([]byte, error) {
		obj, err := ms.store.GetObject(ctx, bucket, key)
		if err != nil {
			return nil, err
		}
		return obj.Data, nil
	}
}

// sourceLoader reads rawURL straight from bucket when it is one of our own
// object URLs and downloads it with fetch otherwise.
func (ms *MusicServer) sourceLoader(bucket, rawURL string, fetch func(context.Context, string) ([]byte, error)) byteLoader {
	return func(ctx context.Context) ([]byte, error) {
		if key, ok := ms.store.KeyFromURL(bucket, rawURL); ok {
			return ms.objectLoader(bucket, key)(ctx)
		}
		return fetch(ctx, rawURL)
	}
}

// handleTrackDirect redirects to the stored file without tagging it.
func (ms *MusicServer) handleTrackDirect(w http.ResponseWriter, r *http.Request) {
	track, _, ok := ms.loadAvailableTrack(w, r)
	if !ok {
		return
	}
	http.Redirect(w, r, track.FileURL, http.StatusFound)
}

// loadAvailableTrack resolves {id} to a track whose album is released.
// It writes the error response and returns false otherwise.
func (ms *MusicServer) loadAvailableTrack(w http.ResponseWriter, r *http.Request) (*models.Track, *models.Album, bool) {
	id := mux.Vars(r)["id"]

	track, err := ms.db.GetTrack(id)
	if errors.Is(err, database.ErrNotFound) {
		ms.respondWithError(w, r, http.StatusNotFound, "Track not found", nil)
		return nil, nil, false
	}
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving track", err)
		return nil, nil, false
	}

	album, err := ms.db.GetAlbum(track.AlbumID)
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving album", err)
		return nil, nil, false
	}

	if !album.IsAvailable(ms.now()) {
		ms.respondWithError(w, r, http.StatusForbidden, "Album is not available yet", nil)
		return nil, nil, false
	}

	return track, album, true
}

// serveTaggedDownload loads the audio (and optionally the cover), injects
// the tag and writes the attachment. An audio failure answers 502 with a
// direct-download fallback; a cover failure only drops the picture.
func (ms *MusicServer) serveTaggedDownload(w http.ResponseWriter, r *http.Request, req *downloadRequest, loadAudio, loadCover byteLoader) {
	ctx := r.Context()
	logEntry := ms.logger.WithFields(logrus.Fields{
		"title":  req.Title,
		"album":  req.Album,
		"track":  req.TrackNumber,
		"source": req.FileURL,
	})

	audio, err := loadAudio(ctx)
	if err != nil {
		ms.respondWithErrorDetails(w, r, http.StatusBadGateway, "Failed to fetch audio file", err,
			map[string]interface{}{
				"fallbackUrl":      req.FileURL,
				"fallbackFilename": fallbackFilename(req.TrackNumber, req.Title),
			})
		return
	}

	var art []byte
	if loadCover != nil {
		art, err = loadCover(ctx)
		if err != nil {
			logEntry.WithError(err).Warn("Failed to fetch album art, continuing without it")
			art = nil
		}
	}

	tagged := id3.Inject(audio, id3.TagFields{
		Title:       req.Title,
		Artist:      req.Artist,
		Album:       req.Album,
		TrackNumber: req.TrackNumber,
		TotalTracks: req.TotalTracks,
		AlbumArt:    art,
	})

	filename := downloadFilename(req.TrackNumber, req.Title)
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", contentDisposition(filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(tagged)))
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(tagged); err != nil {
		logEntry.WithError(err).Warn("Client went away during download")
		return
	}

	logEntry.WithFields(logrus.Fields{
		"bytes":       len(tagged),
		"stripped":    id3.ExistingTagSize(audio),
		"has_artwork": len(art) > 0,
	}).Info("Served tagged download")
}
