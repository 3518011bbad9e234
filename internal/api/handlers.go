package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"gwi.com/pdf-chatbot/internal/core"
	"gwi.com/pdf-chatbot/internal/ingest"
	"gwi.com/pdf-chatbot/internal/store"
)

type contextKey string

const sessionKey contextKey = "session"

type APIHandler struct {
	service        *core.Service
	maxUploadBytes int64
}

func NewAPIHandler(svc *core.Service, maxUploadBytes int64) *APIHandler {
	return &APIHandler{service: svc, maxUploadBytes: maxUploadBytes}
}

func sessionFrom(ctx context.Context) *core.Session {
	sess, _ := ctx.Value(sessionKey).(*core.Session)
	return sess
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		sess, err := h.service.Authenticate(tokenString)
		if err != nil {
			http.Error(w, "Invalid or expired session", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type AccountRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	APIKey   string `json:"api_key"`
}

func decodeAccountRequest(w http.ResponseWriter, r *http.Request) (*AccountRequest, bool) {
	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return nil, false
	}
	return &req, true
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAccountRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.Signup(r.Context(), req.Username, req.Password, req.APIKey); err != nil {
		writeError(w, err, "Failed to create account")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"username": req.Username,
		"message":  "Account created. Please log in.",
	})
}

type LoginResponse struct {
	Token    string            `json:"token"`
	Username string            `json:"username"`
	Index    *core.IndexStatus `json:"index"`
	Warnings []string          `json:"warnings"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAccountRequest(w, r)
	if !ok {
		return
	}

	res, err := h.service.Login(r.Context(), req.Username, req.Password, req.APIKey)
	if err != nil {
		writeError(w, err, "Failed to log in")
		return
	}

	warnings := res.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	writeJSON(w, http.StatusOK, LoginResponse{
		Token:    res.Token,
		Username: req.Username,
		Index:    res.Index,
		Warnings: warnings,
	})
}

func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	h.service.Logout(sessionFrom(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

type PageErrorResponse struct {
	Page  int    `json:"page"`
	Error string `json:"error"`
}

type UploadResponse struct {
	Chunks     int                 `json:"chunks"`
	Pages      int                 `json:"pages"`
	PageErrors []PageErrorResponse `json:"page_errors"`
}

func (h *APIHandler) UploadDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxUploadBytes {
		http.Error(w, "Document is too large", http.StatusRequestEntityTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Document is too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "A PDF must be uploaded in the \"file\" form field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read uploaded document", http.StatusBadRequest)
		return
	}
	if !ingest.LooksLikePDF(data) {
		http.Error(w, "Uploaded file is not a PDF", http.StatusUnprocessableEntity)
		return
	}

	res, err := h.service.Upload(r.Context(), sessionFrom(r.Context()), header.Filename, data)
	if err != nil {
		writeError(w, err, "Failed to process document")
		return
	}

	resp := UploadResponse{Chunks: res.Chunks, Pages: res.Pages, PageErrors: []PageErrorResponse{}}
	for _, pe := range res.PageErrors {
		resp.PageErrors = append(resp.PageErrors, PageErrorResponse{Page: pe.Page, Error: pe.Err.Error()})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) DocumentStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]*core.IndexStatus{
		"index": h.service.IndexStatus(sessionFrom(r.Context())),
	})
}

type QuestionRequest struct {
	Question string `json:"question"`
}

func (h *APIHandler) AskHandler(w http.ResponseWriter, r *http.Request) {
	var req QuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		http.Error(w, "Question cannot be empty", http.StatusBadRequest)
		return
	}

	answer, err := h.service.Ask(r.Context(), sessionFrom(r.Context()), req.Question)
	if err != nil {
		writeError(w, err, "Failed to answer question")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (h *APIHandler) ChatHistoryHandler(w http.ResponseWriter, r *http.Request) {
	turns := h.service.ChatHistory(sessionFrom(r.Context()))
	if turns == nil {
		turns = []core.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string][]core.Turn{"turns": turns})
}

func (h *APIHandler) QueryHistoryHandler(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	entries, err := h.service.QueryHistory(r.Context(), sess.Username())
	if err != nil {
		writeError(w, err, "Failed to list query history")
		return
	}
	if entries == nil {
		entries = []store.QueryLogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string][]store.QueryLogEntry{"queries": entries})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
