package server

import (
	"net/http"

	"trackdrop/internal/auth"
)

// ConfigResponse represents the public configuration sent to the frontend
type ConfigResponse struct {
	DefaultArtist    string   `json:"default_artist"`
	SupportedFormats []string `json:"supported_formats"`
	MaxUploadSize    int64    `json:"max_upload_size_mb"`
	UploadsEnabled   bool     `json:"uploads_enabled"`
	EditingEnabled   bool     `json:"editing_enabled"`
	PublicURL        string   `json:"public_url,omitempty"`
}

// handleGetConfig returns public configuration settings for the frontend
func (ms *MusicServer) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	ms.respondJSON(w, http.StatusOK, ConfigResponse{
		DefaultArtist:    ms.config.Library.DefaultArtist,
		SupportedFormats: ms.config.Library.SupportedFormats,
		MaxUploadSize:    ms.config.Library.MaxUploadMB,
		UploadsEnabled:   ms.codes.Enabled(auth.ScopeUpload),
		EditingEnabled:   ms.codes.Enabled(auth.ScopeEditor),
		PublicURL:        ms.ngrokService.GetPublicURL(),
	})
}
