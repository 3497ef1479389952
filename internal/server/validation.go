package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	maxTitleLength       = 255
	maxDescriptionLength = 1000
	maxURLLength         = 2048
)

// ValidationError represents a validation error with details
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationResult contains validation results
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// respondJSON writes v as a JSON body with the given status
func (ms *MusicServer) respondJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		ms.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// respondWithValidationError sends a structured validation error response
func (ms *MusicServer) respondWithValidationError(w http.ResponseWriter, r *http.Request, errors []ValidationError) {
	ms.logger.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"errors": errors,
	}).Warn("Validation failed")

	ms.respondJSON(w, http.StatusBadRequest, ValidationResult{
		Valid:  false,
		Errors: errors,
	})
}

// respondWithError sends a structured error response
func (ms *MusicServer) respondWithError(w http.ResponseWriter, r *http.Request, statusCode int, message string, err error) {
	ms.respondWithErrorDetails(w, r, statusCode, message, err, nil)
}

// respondWithErrorDetails sends a structured error response with extra
// top-level fields merged into the body.
func (ms *MusicServer) respondWithErrorDetails(w http.ResponseWriter, r *http.Request, statusCode int, message string, err error, details map[string]interface{}) {
	logEntry := ms.logger.WithFields(logrus.Fields{
		"method":      r.Method,
		"path":        r.URL.Path,
		"status_code": statusCode,
		"message":     message,
	})

	if err != nil {
		logEntry = logEntry.WithError(err)
	}

	if statusCode >= 500 {
		logEntry.Error("Server error")
	} else {
		logEntry.Warn("Client error")
	}

	response := map[string]interface{}{
		"error":   message,
		"code":    statusCode,
		"success": false,
	}
	for k, v := range details {
		response[k] = v
	}

	ms.respondJSON(w, statusCode, response)
}

// validateURL validates remote file URLs
func validateURL(field, urlStr string) *ValidationError {
	if urlStr == "" {
		return &ValidationError{
			Field:   field,
			Message: "URL is required",
			Code:    "MISSING_URL",
		}
	}

	if len(urlStr) > maxURLLength {
		return &ValidationError{
			Field:   field,
			Message: "URL too long (max 2048 characters)",
			Code:    "URL_TOO_LONG",
		}
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return &ValidationError{
			Field:   field,
			Message: "Invalid URL format",
			Code:    "INVALID_URL_FORMAT",
		}
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return &ValidationError{
			Field:   field,
			Message: "URL must use HTTP or HTTPS protocol",
			Code:    "INVALID_URL_PROTOCOL",
		}
	}

	return nil
}

// validateAlbumTitle validates an album or track title
func validateAlbumTitle(title string) *ValidationError {
	if title == "" {
		return &ValidationError{
			Field:   "title",
			Message: "Album title is required",
			Code:    "MISSING_TITLE",
		}
	}

	if len(title) > maxTitleLength {
		return &ValidationError{
			Field:   "title",
			Message: "Album title too long (max 255 characters)",
			Code:    "TITLE_TOO_LONG",
		}
	}

	if strings.ContainsAny(title, "\n\r") {
		return &ValidationError{
			Field:   "title",
			Message: "Album title contains invalid characters",
			Code:    "INVALID_TITLE_CHARACTERS",
		}
	}

	return nil
}

// validateDescription validates an album description
func validateDescription(description string) *ValidationError {
	if len(description) > maxDescriptionLength {
		return &ValidationError{
			Field:   "description",
			Message: "Album description too long (max 1000 characters)",
			Code:    "DESCRIPTION_TOO_LONG",
		}
	}

	return nil
}

// parseAvailableFrom accepts a calendar date (YYYY-MM-DD, midnight UTC) or
// an RFC 3339 timestamp. An empty value means no release date.
func parseAvailableFrom(value string) (*time.Time, *ValidationError) {
	if value == "" {
		return nil, nil
	}

	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}

	return nil, &ValidationError{
		Field:   "availableFrom",
		Message: "Release date must be YYYY-MM-DD or RFC 3339",
		Code:    "INVALID_RELEASE_DATE",
	}
}

// sanitizeInput strips null bytes and surrounding whitespace
func sanitizeInput(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}
