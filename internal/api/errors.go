package api

import (
	"errors"
	"log/slog"
	"net/http"

	"gwi.com/pdf-chatbot/internal/core"
)

type errorStatus struct {
	target  error
	status  int
	message string
}

// Order matters: the first matching entry wins.
var errorStatuses = []errorStatus{
	{core.ErrInvalidCredentialFormat, http.StatusBadRequest, "API key has an invalid format"},
	{core.ErrInvalidUsername, http.StatusBadRequest, "Username may only contain letters, digits, '.', '_' and '-'"},
	{core.ErrMissingPassword, http.StatusBadRequest, "Password is required"},
	{core.ErrPasswordTooLong, http.StatusBadRequest, "Password must be at most 72 bytes"},
	{core.ErrEmptyQuestion, http.StatusBadRequest, "Question cannot be empty"},
	{core.ErrDuplicateAccount, http.StatusConflict, "Username already exists"},
	{core.ErrAuthenticationFailed, http.StatusUnauthorized, "Invalid username or password"},
	{core.ErrNotLoggedIn, http.StatusUnauthorized, "Not logged in"},
	{core.ErrEmptyDocument, http.StatusUnprocessableEntity, "No text could be extracted from the document"},
	{core.ErrUnreadableDocument, http.StatusUnprocessableEntity, "The document could not be read as a PDF"},
	{core.ErrIndexUnavailable, http.StatusConflict, "Upload a document before asking questions"},
	{core.ErrExternalService, http.StatusBadGateway, "The language model service failed. Check your API key and try again."},
}

// writeError maps err to a status code. Unknown errors are logged and
// reported as fallback with a 500.
func writeError(w http.ResponseWriter, err error, fallback string) {
	for _, es := range errorStatuses {
		if errors.Is(err, es.target) {
			if es.status >= http.StatusInternalServerError {
				slog.Warn("Upstream failure", "error", err)
			}
			http.Error(w, es.message, es.status)
			return
		}
	}
	slog.Error(fallback, "error", err)
	http.Error(w, fallback, http.StatusInternalServerError)
}
