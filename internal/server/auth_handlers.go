package server

import (
	"encoding/json"
	"io"
	"net/http"

	"trackdrop/internal/auth"

	"github.com/sirupsen/logrus"
)

// AccessCodeHeader carries the access code on mutating album requests
const AccessCodeHeader = "X-Access-Code"

type verifyRequest struct {
	Scope string `json:"scope"`
	Code  string `json:"code"`
}

// handleVerifyCode lets the client check an access code before showing
// upload or editor controls.
func (ms *MusicServer) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<10)).Decode(&req); err != nil {
		ms.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	scope, ok := auth.ParseScope(req.Scope)
	if !ok {
		ms.respondWithValidationError(w, r, []ValidationError{{
			Field:   "scope",
			Message: "Scope must be upload or editor",
			Code:    "INVALID_SCOPE",
		}})
		return
	}

	if !ms.allowCodeAttempt(w, r) {
		return
	}

	valid := ms.codes.Verify(scope, req.Code)
	ms.logger.WithFields(logrus.Fields{
		"scope":  scope,
		"valid":  valid,
		"remote": r.RemoteAddr,
	}).Info("Access code verification")

	ms.respondJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

// requireCode wraps next so it only runs with a valid code for scope.
func (ms *MusicServer) requireCode(scope auth.Scope, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !ms.allowCodeAttempt(w, r) {
			return
		}
		if !ms.codes.Verify(scope, r.Header.Get(AccessCodeHeader)) {
			ms.respondWithError(w, r, http.StatusUnauthorized, "Invalid or missing access code", nil)
			return
		}
		next(w, r)
	}
}

// allowCodeAttempt throttles code checks across all clients.
func (ms *MusicServer) allowCodeAttempt(w http.ResponseWriter, r *http.Request) bool {
	if ms.codeLimiter.Allow() {
		return true
	}
	w.Header().Set("Retry-After", "1")
	ms.respondWithError(w, r, http.StatusTooManyRequests, "Too many access code attempts", nil)
	return false
}
