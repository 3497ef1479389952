package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"trackdrop/internal/database"
	"trackdrop/internal/metadata"
	"trackdrop/internal/storage"
	"trackdrop/pkg/models"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	multipartMemory = 32 << 20
	bytesPerMB      = 1 << 20
)

var errUnsupportedCover = errors.New("unsupported cover image")

// albumSummary is an album as listed to clients
type albumSummary struct {
	models.Album
	Available bool `json:"available"`
}

// handleListAlbums returns every album, newest first.
func (ms *MusicServer) handleListAlbums(w http.ResponseWriter, r *http.Request) {
	albums, err := ms.db.ListAlbums()
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving albums", err)
		return
	}

	now := ms.now()
	summaries := make([]albumSummary, 0, len(albums))
	for _, album := range albums {
		summaries = append(summaries, albumSummary{
			Album:     album,
			Available: album.IsAvailable(now),
		})
	}

	ms.respondJSON(w, http.StatusOK, summaries)
}

// handleGetAlbum returns an album with its tracks. Tracks of albums that
// are not released yet are withheld.
func (ms *MusicServer) handleGetAlbum(w http.ResponseWriter, r *http.Request) {
	album, ok := ms.loadAlbum(w, r)
	if !ok {
		return
	}

	detail, err := ms.albumDetail(album)
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving tracks", err)
		return
	}

	ms.respondJSON(w, http.StatusOK, detail)
}

// handleCreateAlbum creates an album from a multipart upload of a cover
// and one or more audio files.
func (ms *MusicServer) handleCreateAlbum(w http.ResponseWriter, r *http.Request) {
	form, ok := ms.parseAlbumForm(w, r)
	if !ok {
		return
	}

	title := sanitizeInput(formValue(form, "title"))
	description := sanitizeInput(formValue(form, "description"))
	availableFrom, verr := parseAvailableFrom(sanitizeInput(formValue(form, "availableFrom")))

	var errs []ValidationError
	if e := validateAlbumTitle(title); e != nil {
		errs = append(errs, *e)
	}
	if e := validateDescription(description); e != nil {
		errs = append(errs, *e)
	}
	if verr != nil {
		errs = append(errs, *verr)
	}
	uploads := ms.audioUploads(form)
	if len(uploads) == 0 {
		errs = append(errs, ValidationError{
			Field:   "tracks",
			Message: "At least one supported audio file is required",
			Code:    "MISSING_TRACKS",
		})
	}
	if len(errs) > 0 {
		ms.respondWithValidationError(w, r, errs)
		return
	}

	album := &models.Album{
		Title:         title,
		Description:   description,
		Artist:        ms.config.Library.DefaultArtist,
		AvailableFrom: availableFrom,
		CreatedAt:     ms.now().UTC(),
	}

	if cover := firstFile(form, "cover"); cover != nil {
		if err := ms.uploadCover(r.Context(), album, cover); err != nil {
			ms.respondWithError(w, r, coverErrorStatus(err), "Failed to upload cover", err)
			return
		}
	}

	if err := ms.db.CreateAlbum(album); err != nil {
		ms.removeObjectQuietly(r.Context(), ms.store.CoversBucket(), album.ImageKey)
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error creating album", err)
		return
	}

	if err := ms.addTracks(r.Context(), album, uploads); err != nil {
		ms.respondWithError(w, r, http.StatusBadGateway, "Failed to upload tracks", err)
		return
	}

	ms.logger.WithFields(logrus.Fields{
		"album_id": album.ID,
		"title":    album.Title,
		"tracks":   len(uploads),
	}).Info("Album created")

	ms.respondAlbumDetail(w, r, album.ID, http.StatusCreated)
}

// handleUpdateAlbum edits album fields, optionally replacing the cover and
// appending tracks.
func (ms *MusicServer) handleUpdateAlbum(w http.ResponseWriter, r *http.Request) {
	album, ok := ms.loadAlbum(w, r)
	if !ok {
		return
	}

	form, ok := ms.parseAlbumForm(w, r)
	if !ok {
		return
	}

	var errs []ValidationError
	if values, present := form.Value["title"]; present && len(values) > 0 {
		title := sanitizeInput(values[0])
		if e := validateAlbumTitle(title); e != nil {
			errs = append(errs, *e)
		}
		album.Title = title
	}
	if values, present := form.Value["description"]; present && len(values) > 0 {
		description := sanitizeInput(values[0])
		if e := validateDescription(description); e != nil {
			errs = append(errs, *e)
		}
		album.Description = description
	}
	if values, present := form.Value["availableFrom"]; present && len(values) > 0 {
		availableFrom, e := parseAvailableFrom(sanitizeInput(values[0]))
		if e != nil {
			errs = append(errs, *e)
		}
		album.AvailableFrom = availableFrom
	}
	if len(errs) > 0 {
		ms.respondWithValidationError(w, r, errs)
		return
	}

	oldCoverKey := album.ImageKey
	if cover := firstFile(form, "cover"); cover != nil {
		if err := ms.uploadCover(r.Context(), album, cover); err != nil {
			ms.respondWithError(w, r, coverErrorStatus(err), "Failed to upload cover", err)
			return
		}
	}

	if err := ms.db.UpdateAlbum(album); err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error updating album", err)
		return
	}

	if album.ImageKey != oldCoverKey {
		ms.removeObjectQuietly(r.Context(), ms.store.CoversBucket(), oldCoverKey)
	}

	if uploads := ms.audioUploads(form); len(uploads) > 0 {
		if err := ms.addTracks(r.Context(), album, uploads); err != nil {
			ms.respondWithError(w, r, http.StatusBadGateway, "Failed to upload tracks", err)
			return
		}
	}

	ms.logger.WithField("album_id", album.ID).Info("Album updated")
	ms.respondAlbumDetail(w, r, album.ID, http.StatusOK)
}

// handleDeleteAlbum removes an album, its tracks and their stored objects.
func (ms *MusicServer) handleDeleteAlbum(w http.ResponseWriter, r *http.Request) {
	album, ok := ms.loadAlbum(w, r)
	if !ok {
		return
	}

	tracks, err := ms.db.GetAlbumTracks(album.ID)
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving tracks", err)
		return
	}

	if err := ms.db.DeleteAlbum(r.Context(), album.ID); err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error deleting album", err)
		return
	}

	for _, track := range tracks {
		ms.removeObjectQuietly(r.Context(), ms.store.MusicBucket(), track.ObjectKey)
	}
	ms.removeObjectQuietly(r.Context(), ms.store.CoversBucket(), album.ImageKey)

	ms.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"tracks_deleted": len(tracks),
	})
}

// handleAlbumCover proxies the album cover image from storage.
func (ms *MusicServer) handleAlbumCover(w http.ResponseWriter, r *http.Request) {
	album, ok := ms.loadAlbum(w, r)
	if !ok {
		return
	}

	if album.ImageKey == "" {
		ms.respondWithError(w, r, http.StatusNotFound, "Album has no cover", nil)
		return
	}

	obj, err := ms.store.GetObject(r.Context(), ms.store.CoversBucket(), album.ImageKey)
	if err != nil {
		ms.respondWithError(w, r, http.StatusBadGateway, "Error retrieving cover", err)
		return
	}

	w.Header().Set("Content-Type", metadata.GetAlbumArtMimeType(obj.Data))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if _, err := w.Write(obj.Data); err != nil {
		ms.logger.WithError(err).WithField("album_id", album.ID).Warn("Client went away during cover download")
	}
}

// loadAlbum resolves {id} to an album, writing a 404 or 500 on failure.
func (ms *MusicServer) loadAlbum(w http.ResponseWriter, r *http.Request) (*models.Album, bool) {
	album, err := ms.db.GetAlbum(mux.Vars(r)["id"])
	if errors.Is(err, database.ErrNotFound) {
		ms.respondWithError(w, r, http.StatusNotFound, "Album not found", nil)
		return nil, false
	}
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving album", err)
		return nil, false
	}
	return album, true
}

func (ms *MusicServer) albumDetail(album *models.Album) (*models.AlbumDetail, error) {
	detail := &models.AlbumDetail{
		Album:     *album,
		Available: album.IsAvailable(ms.now()),
		Tracks:    []models.Track{},
	}
	if !detail.Available {
		return detail, nil
	}

	tracks, err := ms.db.GetAlbumTracks(album.ID)
	if err != nil {
		return nil, err
	}
	detail.Tracks = tracks
	return detail, nil
}

func (ms *MusicServer) respondAlbumDetail(w http.ResponseWriter, r *http.Request, albumID string, status int) {
	album, err := ms.db.GetAlbum(albumID)
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving album", err)
		return
	}
	detail, err := ms.albumDetail(album)
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving tracks", err)
		return
	}
	ms.respondJSON(w, status, detail)
}

// parseAlbumForm parses a multipart body within the configured upload limit.
func (ms *MusicServer) parseAlbumForm(w http.ResponseWriter, r *http.Request) (*multipart.Form, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, ms.config.Library.MaxUploadMB*bytesPerMB)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			ms.respondWithError(w, r, http.StatusRequestEntityTooLarge, "Upload too large", err)
			return nil, false
		}
		ms.respondWithError(w, r, http.StatusBadRequest, "Invalid multipart form", err)
		return nil, false
	}
	return r.MultipartForm, true
}

// trackUpload is one audio file from an album form with its requested title
type trackUpload struct {
	header *multipart.FileHeader
	title  string
}

// audioUploads pairs the "tracks" files with the parallel "titles" values,
// skipping files that are not supported audio.
func (ms *MusicServer) audioUploads(form *multipart.Form) []trackUpload {
	titles := form.Value["titles"]
	var uploads []trackUpload
	for i, fh := range form.File["tracks"] {
		if !ms.extractor.IsAudioFile(fh.Filename) {
			ms.logger.WithField("file", fh.Filename).Warn("Skipping unsupported upload")
			continue
		}
		upload := trackUpload{header: fh}
		if i < len(titles) {
			upload.title = sanitizeInput(titles[i])
		}
		uploads = append(uploads, upload)
	}
	return uploads
}

// addTracks stores each upload and records it in the catalog in order.
func (ms *MusicServer) addTracks(ctx context.Context, album *models.Album, uploads []trackUpload) error {
	base := ms.now().UTC()
	for i, upload := range uploads {
		data, err := readFormFile(upload.header)
		if err != nil {
			return err
		}

		info := ms.extractor.Inspect(upload.header.Filename, data)
		title := metadata.TitleFor(upload.title, info, upload.header.Filename)
		createdAt := base.Add(time.Duration(i) * time.Millisecond)
		key := storage.TrackKey(album.ID, createdAt, title, upload.header.Filename)
		contentType := metadata.GetContentType(upload.header.Filename)

		fileURL, err := ms.store.PutObject(ctx, ms.store.MusicBucket(), key, bytes.NewReader(data), int64(len(data)), contentType)
		if err != nil {
			return err
		}

		track := &models.Track{
			AlbumID:     album.ID,
			Title:       title,
			FileURL:     fileURL,
			ObjectKey:   key,
			ContentType: contentType,
			Duration:    info.Duration,
			FileSize:    int64(len(data)),
			CreatedAt:   createdAt,
		}
		if err := ms.db.InsertTrack(track); err != nil {
			ms.removeObjectQuietly(ctx, ms.store.MusicBucket(), key)
			return err
		}
	}
	return nil
}

// uploadCover stores the cover image and points the album at it.
func (ms *MusicServer) uploadCover(ctx context.Context, album *models.Album, fh *multipart.FileHeader) error {
	data, err := readFormFile(fh)
	if err != nil {
		return err
	}

	contentType := metadata.GetAlbumArtMimeType(data)
	if contentType == "application/octet-stream" {
		return fmt.Errorf("%w: %s", errUnsupportedCover, fh.Filename)
	}

	key := storage.CoverKey(ms.now(), fh.Filename)
	imageURL, err := ms.store.PutObject(ctx, ms.store.CoversBucket(), key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return err
	}

	album.ImageKey = key
	album.ImageURL = imageURL
	return nil
}

func coverErrorStatus(err error) int {
	if errors.Is(err, errUnsupportedCover) {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func (ms *MusicServer) removeObjectQuietly(ctx context.Context, bucket, key string) {
	if key == "" {
		return
	}
	if err := ms.store.RemoveObject(ctx, bucket, key); err != nil {
		ms.logger.WithError(err).WithFields(logrus.Fields{
			"bucket": bucket,
			"key":    key,
		}).Warn("Failed to remove stored object")
	}
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	return data, nil
}

func formValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}

func firstFile(form *multipart.Form, key string) *multipart.FileHeader {
	if files := form.File[key]; len(files) > 0 {
		return files[0]
	}
	return nil
}
