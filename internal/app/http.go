package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withRequestLog)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/ready", s.handleReady)

		r.Post("/users/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)
		r.Post("/auth/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/users/me", s.handleMe)
			r.Put("/users/update", s.handleUpdateUser)
			r.Delete("/users/delete", s.handleDeleteUser)

			r.Route("/notes", func(r chi.Router) {
				r.Post("/", s.handleCreateNote)
				r.Get("/", s.handleListNotes)
				r.Get("/search", s.handleSearchNotes)
				r.Get("/{noteID}", s.handleGetNote)
				r.Put("/{noteID}", s.handleUpdateNote)
				r.Delete("/{noteID}", s.handleDeleteNote)
			})
		})
	})

	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
		"search":   map[string]any{"status": "ok"},
	}

	// A search outage degrades the service but keeps it in rotation: the
	// primary store still serves every non-search operation.
	if !s.service.SearchHealthy() {
		status = "degraded"
		checks["search"] = map[string]any{
			"status": "error",
			"error":  "search mirror unreachable",
		}
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	user, err := s.service.Users().Register(r.Context(), body.Email, body.Password)
	if err != nil {
		domain := toDomainError(err)
		writeError(w, domain.Status, domain.Code, domain.Message, domain.Details)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":    user.ID,
		"email": user.Email,
	})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		domain := toDomainError(err)
		writeError(w, domain.Status, domain.Code, domain.Message, domain.Details)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"expiresAt":    session.ExpiresAt,
		"user": map[string]any{
			"id":    session.UserID,
			"email": session.Email,
		},
	})
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		domain := toDomainError(err)
		writeError(w, domain.Status, domain.Code, domain.Message, domain.Details)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"expiresAt":    session.ExpiresAt,
	})
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	if err := s.service.Logout(r.Context(), body.RefreshToken); err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Logout failed", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.service.Users().GetUser(r.Context(), ownerID(r))
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        user.ID,
		"email":     user.Email,
		"createdAt": user.CreatedAt,
		"updatedAt": user.UpdatedAt,
	})
}

func (s *HTTPServer) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    *string `json:"email"`
		Password *string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	user, err := s.service.Users().UpdateProfile(r.Context(), ownerID(r), body.Email, body.Password)
	if err != nil {
		domain := toDomainError(err)
		writeError(w, domain.Status, domain.Code, domain.Message, domain.Details)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":    user.ID,
		"email": user.Email,
	})
}

func (s *HTTPServer) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Users().Delete(r.Context(), ownerID(r)); err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not delete user", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "User deleted"})
}

func (s *HTTPServer) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	note, err := s.service.Notes().Create(r.Context(), ownerID(r), body.Title, body.Content)
	if err != nil {
		domain := toDomainError(err)
		writeError(w, domain.Status, domain.Code, domain.Message, domain.Details)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func (s *HTTPServer) handleListNotes(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.Notes().List(r.Context(), ownerID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list notes", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": items})
}

func (s *HTTPServer) handleGetNote(w http.ResponseWriter, r *http.Request) {
	noteID, ok := notePathID(w, r)
	if !ok {
		return
	}
	note, err := s.service.Notes().Get(r.Context(), noteID, ownerID(r))
	if err != nil {
		domain := toDomainError(err)
		writeError(w, domain.Status, domain.Code, domain.Message, domain.Details)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *HTTPServer) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	noteID, ok := notePathID(w, r)
	if !ok {
		return
	}

	var body struct {
		Title   *string `json:"title"`
		Content *string `json:"content"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	note, err := s.service.Notes().Update(r.Context(), noteID, ownerID(r), body.Title, body.Content)
	if err != nil {
		domain := toDomainError(err)
		writeError(w, domain.Status, domain.Code, domain.Message, domain.Details)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *HTTPServer) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	noteID, ok := notePathID(w, r)
	if !ok {
		return
	}
	if err := s.service.Notes().Delete(r.Context(), noteID, ownerID(r)); err != nil {
		domain := toDomainError(err)
		writeError(w, domain.Status, domain.Code, domain.Message, domain.Details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleSearchNotes(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	entries, err := s.service.Notes().Search(r.Context(), query, ownerID(r))
	if err != nil {
		domain := toDomainError(err)
		writeError(w, domain.Status, domain.Code, domain.Message, domain.Details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": entries, "query": query})
}

type ownerIDKey struct{}

// requireAuth resolves the owner identity exclusively from the verified
// bearer token, never from a client-supplied field.
func (s *HTTPServer) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		userID, err := s.service.UserFromToken(token)
		if err != nil {
			domain := toDomainError(err)
			writeError(w, domain.Status, domain.Code, domain.Message, domain.Details)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerIDKey{}, userID)))
	})
}

func ownerID(r *http.Request) int64 {
	id, _ := r.Context().Value(ownerIDKey{}).(int64)
	return id
}

func notePathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "noteID")
	noteID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "note id must be an integer", nil)
		return 0, false
	}
	return noteID, true
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *HTTPServer) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

func setCORSHeaders(header http.Header, origin string) {
	header.Set("Access-Control-Allow-Origin", origin)
	header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
