package core

import (
	"errors"

	"gwi.com/pdf-chatbot/internal/auth"
	"gwi.com/pdf-chatbot/internal/ingest"
	"gwi.com/pdf-chatbot/internal/llm"
	"gwi.com/pdf-chatbot/internal/store"
)

var (
	ErrAuthenticationFailed = errors.New("invalid username or password")
	ErrEmptyDocument        = errors.New("no text could be extracted from the document")
	ErrIndexUnavailable     = errors.New("no document index is available")
	ErrNotLoggedIn          = errors.New("not logged in")
	ErrMissingPassword      = errors.New("password is required")
	ErrEmptyQuestion        = errors.New("question cannot be empty")
)

// Errors owned by lower layers, re-exported so callers only import core.
var (
	ErrInvalidCredentialFormat = auth.ErrInvalidCredentialFormat
	ErrInvalidUsername         = auth.ErrInvalidUsername
	ErrPasswordTooLong         = auth.ErrPasswordTooLong
	ErrDuplicateAccount        = store.ErrDuplicateAccount
	ErrUnreadableDocument      = ingest.ErrUnreadableDocument
	ErrExternalService         = llm.ErrExternalService
)
