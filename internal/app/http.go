package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pathman/api/internal/complex"
	"pathman/api/internal/export"
	"pathman/api/internal/plan"
	"pathman/api/internal/search"
	"pathman/api/internal/session"
	"pathman/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
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
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/projects" {
		out, err := s.service.ListProjects(r.Context())
		s.respond(w, out, err)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/projects" {
		var body struct {
			Name   string `json:"name"`
			Device string `json:"device"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		out, err := s.service.CreateProject(r.Context(), body.Name, body.Device)
		s.respond(w, out, err)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "projects" {
		projectID := parts[2]

		if len(parts) == 3 {
			if r.Method == http.MethodGet {
				out, err := s.service.GetProject(r.Context(), projectID)
				s.respond(w, out, err)
				return
			}
		}

		if len(parts) == 4 {
			s.handleProjectAction(w, r, projectID, parts[3])
			return
		}

		if len(parts) == 5 && parts[3] == "snapshots" && r.Method == http.MethodGet {
			out, err := s.service.GetSnapshot(r.Context(), projectID, parts[4])
			s.respond(w, out, err)
			return
		}

		if len(parts) >= 5 && parts[3] == "entries" {
			entryID, err := strconv.ParseInt(parts[4], 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_ID", "entry id must be numeric", nil)
				return
			}
			if len(parts) == 5 {
				s.handleEntry(w, r, projectID, entryID)
				return
			}
			if len(parts) == 6 {
				s.handleEntryAction(w, r, projectID, entryID, parts[5])
				return
			}
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleProjectAction(w http.ResponseWriter, r *http.Request, projectID, action string) {
	switch {
	case r.Method == http.MethodPost && action == "update":
		var body struct {
			CurrentVersion *int          `json:"currentVersion"`
			Changes        []plan.Change `json:"changes"`
			Device         string        `json:"device"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if body.CurrentVersion == nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "currentVersion is required", nil)
			return
		}
		out, err := s.service.UpdateProject(r.Context(), projectID, *body.CurrentVersion, body.Changes, body.Device)
		s.respond(w, out, err)

	case r.Method == http.MethodGet && action == "history":
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		out, err := s.service.GetHistory(r.Context(), projectID, limit)
		s.respond(w, out, err)

	case r.Method == http.MethodGet && action == "tree":
		actor, err := parseActor(r.URL.Query().Get("actor"))
		if err != nil {
			s.respondErr(w, err)
			return
		}
		filter := TreeFilter{
			Search:  r.URL.Query().Get("search"),
			Color:   r.URL.Query().Get("status"),
			NewOnly: r.URL.Query().Get("new_only") == "true",
			Actor:   actor,
		}
		out, err := s.service.GetTree(r.Context(), projectID, filter)
		s.respond(w, out, err)

	case r.Method == http.MethodGet && action == "siblings":
		parentID, err := optionalID(r.URL.Query().Get("parent_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ID", "parent_id must be numeric", nil)
			return
		}
		out, err := s.service.GetSiblings(r.Context(), projectID, parentID)
		s.respond(w, out, err)

	case r.Method == http.MethodPost && action == "entries":
		var body struct {
			EntryInput
			Device string `json:"device"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		out, err := s.service.AddEntry(r.Context(), projectID, body.EntryInput, body.Device)
		s.respond(w, out, err)

	case r.Method == http.MethodGet && action == "pending":
		actor, err := parseActor(r.URL.Query().Get("actor"))
		if err != nil {
			s.respondErr(w, err)
			return
		}
		out, err := s.service.GetPending(r.Context(), projectID, actor)
		s.respond(w, out, err)

	case r.Method == http.MethodPost && action == "reviewed":
		var body struct {
			Actor string `json:"actor"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		actor, err := parseActor(body.Actor)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		out, err := s.service.MarkReviewed(r.Context(), projectID, actor)
		s.respond(w, out, err)

	case r.Method == http.MethodGet && action == "working":
		out, err := s.service.GetWorking(r.Context(), projectID)
		s.respond(w, out, err)

	case r.Method == http.MethodGet && action == "search":
		query := search.Query{
			Text:            r.URL.Query().Get("q"),
			FilterProjectID: projectID,
			FilterType:      search.ResultEntry,
			FilterEntryType: r.URL.Query().Get("type"),
			FilterColor:     r.URL.Query().Get("color"),
		}
		query.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
		query.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
		writeJSON(w, http.StatusOK, s.service.Search(query))

	case r.Method == http.MethodGet && action == "export":
		s.handleExport(w, r, projectID)

	case r.Method == http.MethodPost && action == "snapshot":
		var body struct {
			Name   string `json:"name"`
			Device string `json:"device"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		out, err := s.service.CreateSnapshot(r.Context(), projectID, body.Name, body.Device)
		s.respond(w, out, err)

	case r.Method == http.MethodGet && action == "snapshots":
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		out, err := s.service.ListSnapshots(r.Context(), projectID, limit)
		s.respond(w, out, err)

	case action == "viewstate":
		s.handleViewState(w, r, projectID)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleEntry(w http.ResponseWriter, r *http.Request, projectID string, entryID int64) {
	switch r.Method {
	case http.MethodGet:
		out, err := s.service.GetEntry(r.Context(), projectID, entryID)
		s.respond(w, out, err)

	case http.MethodPut:
		var body struct {
			EntryInput
			Actor  string `json:"actor"`
			Device string `json:"device"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		actor, err := parseActor(body.Actor)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		out, err := s.service.UpdateEntry(r.Context(), projectID, entryID, body.EntryInput, actor, body.Device)
		s.respond(w, out, err)

	case http.MethodDelete:
		out, err := s.service.DeleteEntry(r.Context(), projectID, entryID, r.URL.Query().Get("device"))
		s.respond(w, out, err)

	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleEntryAction(w http.ResponseWriter, r *http.Request, projectID string, entryID int64, action string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	switch action {
	case "move":
		var body struct {
			ParentID *int64 `json:"parentId"`
			Device   string `json:"device"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		out, err := s.service.MoveEntry(r.Context(), projectID, entryID, body.ParentID, body.Device)
		s.respond(w, out, err)

	case "toggle":
		var body struct {
			Device string `json:"device"`
		}
		_ = decodeBody(r, &body)
		out, err := s.service.ToggleEntry(r.Context(), projectID, entryID, body.Device)
		s.respond(w, out, err)

	case "reviewed":
		var body struct {
			Actor  string `json:"actor"`
			Device string `json:"device"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		actor, err := parseActor(body.Actor)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		out, err := s.service.ReviewEntry(r.Context(), projectID, entryID, actor, body.Device)
		s.respond(w, out, err)

	case "status":
		var body struct {
			StatusColor string `json:"statusColor"`
			Device      string `json:"device"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		out, err := s.service.SetEntryStatus(r.Context(), projectID, entryID, body.StatusColor, body.Device)
		s.respond(w, out, err)

	case "interact":
		var body struct {
			complex.Event
			Actor  string `json:"actor"`
			Device string `json:"device"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		actor, err := parseActor(body.Actor)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		out, err := s.service.Interact(r.Context(), projectID, entryID, body.Event, actor, body.Device)
		s.respond(w, out, err)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, projectID string) {
	format := export.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = export.FormatHTML
	}
	result, err := s.service.Export(r.Context(), export.Request{
		ProjectID:   projectID,
		Format:      format,
		FilterColor: r.URL.Query().Get("color"),
	})
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) || errors.Is(err, export.ErrDOCXDependencyMissing) {
			writeError(w, http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil)
			return
		}
		if errors.Is(err, export.ErrUnsupportedFormat) {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be html, pdf or docx", nil)
			return
		}
		s.respondErr(w, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleViewState(w http.ResponseWriter, r *http.Request, projectID string) {
	switch r.Method {
	case http.MethodGet:
		actor, err := parseActor(r.URL.Query().Get("actor"))
		if err != nil {
			s.respondErr(w, err)
			return
		}
		out, err := s.service.GetViewState(r.Context(), projectID, actor)
		s.respond(w, out, err)

	case http.MethodPut:
		var body struct {
			Actor     string            `json:"actor"`
			ViewState session.ViewState `json:"viewState"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		actor, err := parseActor(body.Actor)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		out, err := s.service.SaveViewState(r.Context(), projectID, actor, body.ViewState)
		s.respond(w, out, err)

	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) respond(w http.ResponseWriter, payload map[string]any, err error) {
	if err != nil {
		s.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) respondErr(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

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

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
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

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func optionalID(value string) (*int64, error) {
	if value == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var conflict *store.ConflictError
	if errors.As(err, &conflict) {
		return http.StatusConflict, "CONFLICT", "Project was modified by someone else",
			map[string]any{"conflict": true, "latestVersion": conflict.Latest}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
