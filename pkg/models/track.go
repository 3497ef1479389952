package models

import "time"

// Album represents an uploaded album in the catalog
type Album struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	ImageURL      string     `json:"image_url,omitempty"`
	ImageKey      string     `json:"-"` // object key of the cover in storage
	Artist        string     `json:"artist"`
	AvailableFrom *time.Time `json:"available_from,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	TrackCount    int        `json:"track_count"`
}

// IsAvailable reports whether the album's release date has passed at now.
// Albums without a release date are always available.
func (a *Album) IsAvailable(now time.Time) bool {
	return a.AvailableFrom == nil || !a.AvailableFrom.After(now)
}

// Track represents a single audio file belonging to an album
type Track struct {
	ID          string    `json:"id"`
	AlbumID     string    `json:"album_id"`
	Title       string    `json:"title"`
	FileURL     string    `json:"file_url"`
	ObjectKey   string    `json:"-"` // don't expose storage layout to client
	ContentType string    `json:"content_type"`
	Duration    int       `json:"duration"` // in seconds
	FileSize    int64     `json:"file_size"`
	CreatedAt   time.Time `json:"created_at"`
}

// AlbumDetail is an album together with its ordered tracks
type AlbumDetail struct {
	Album
	Available bool    `json:"available"`
	Tracks    []Track `json:"tracks"`
}
