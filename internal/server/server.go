package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/audiolibrelab/whistle/internal/flow"
	"github.com/audiolibrelab/whistle/internal/genre"
	"github.com/audiolibrelab/whistle/internal/service"
	"github.com/audiolibrelab/whistle/internal/session"
	"github.com/audiolibrelab/whistle/internal/storage"
	"github.com/audiolibrelab/whistle/internal/store"
)

// Server exposes the whistle flow as a JSON API with a WebSocket status stream
type Server struct {
	service    service.Service
	port       string
	httpServer *http.Server
}

// StatusResponse represents the JSON response for status and action endpoints
type StatusResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Status  service.Status `json:"status"`
}

type GenresResponse struct {
	Success bool     `json:"success"`
	Genres  []string `json:"genres"`
}

type PermissionResponse struct {
	Success    bool                    `json:"success"`
	Permission session.PermissionState `json:"permission"`
	Message    string                  `json:"message,omitempty"`
}

type SourcesResponse struct {
	Success bool     `json:"success"`
	Sources []string `json:"sources"`
}

type SubmissionsResponse struct {
	Success     bool           `json:"success"`
	Submissions []store.Record `json:"submissions"`
	TotalCount  int            `json:"total_count"`
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

// New creates a new web server instance
func New(svc service.Service, port string) *Server {
	s := &Server{
		service: svc,
		port:    port,
	}
	s.httpServer = &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/genres", s.handleGenres).Methods(http.MethodGet)
	api.HandleFunc("/submissions", s.handleSubmissions).Methods(http.MethodGet)
	api.HandleFunc("/submissions/{id}/audio", s.handleSubmissionAudio).Methods(http.MethodGet)
	api.HandleFunc("/artifact", s.handleArtifact).Methods(http.MethodGet)
	api.HandleFunc("/sources", s.handleSources).Methods(http.MethodGet)

	api.HandleFunc("/flow/add", s.action("add_whistle", func(r *http.Request) error {
		return s.service.AddWhistle()
	})).Methods(http.MethodPost)
	api.HandleFunc("/flow/back", s.action("back", func(r *http.Request) error {
		return s.service.Back()
	})).Methods(http.MethodPost)
	api.HandleFunc("/flow/next", s.action("next", func(r *http.Request) error {
		return s.service.Next()
	})).Methods(http.MethodPost)

	api.HandleFunc("/record/permission", s.handlePermission).Methods(http.MethodPost)
	api.HandleFunc("/record/start", s.action("start_recording", func(r *http.Request) error {
		return s.service.StartRecording()
	})).Methods(http.MethodPost)
	api.HandleFunc("/record/stop", s.handleStopRecording).Methods(http.MethodPost)
	api.HandleFunc("/record/toggle", s.action("toggle_recording", func(r *http.Request) error {
		return s.service.ToggleRecording()
	})).Methods(http.MethodPost)
	api.HandleFunc("/record/play", s.action("play", func(r *http.Request) error {
		return s.service.Play()
	})).Methods(http.MethodPost)

	api.HandleFunc("/genre/{selection}", s.action("select_genre", func(r *http.Request) error {
		return s.service.SelectGenre(genre.Parse(mux.Vars(r)["selection"]))
	})).Methods(http.MethodPost)
	api.HandleFunc("/comments", s.action("submit_comments", func(r *http.Request) error {
		return s.service.SubmitComments(r.FormValue("comments"))
	})).Methods(http.MethodPost)
	api.HandleFunc("/submit/retry", s.action("retry", func(r *http.Request) error {
		return s.service.Retry()
	})).Methods(http.MethodPost)
	api.HandleFunc("/submit/cancel", s.action("cancel", func(r *http.Request) error {
		return s.service.Cancel()
	})).Methods(http.MethodPost)

	router.HandleFunc("/ws", s.handleWebSocket)

	return router
}

// Start starts the web server and blocks until it stops
func (s *Server) Start() error {
	localIP := getLocalIP()
	slog.Info("Starting whistle web server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// action wraps a service call in the standard status response
func (s *Server) action(op string, fn func(r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, "Failed to parse form data", "operation", op, "error", err)
			return
		}

		if err := fn(r); err != nil {
			s.sendActionError(w, op, err)
			return
		}

		slog.Debug("Action completed", "operation", op)
		s.sendStatus(w)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.sendStatus(w)
}

func (s *Server) sendStatus(w http.ResponseWriter) {
	st := s.service.Status()
	writeJSON(w, http.StatusOK, StatusResponse{
		Success: true,
		Message: st.Flow.Status,
		Status:  st,
	})
}

func (s *Server) handleGenres(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, GenresResponse{
		Success: true,
		Genres:  s.service.Genres(),
	})
}

func (s *Server) handlePermission(w http.ResponseWriter, r *http.Request) {
	timeout := s.service.GetConfig().Recorder.PermissionTimeout + time.Second
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	p, err := s.service.AwaitPermission(ctx)
	if err != nil {
		s.sendErrorResponse(w, http.StatusGatewayTimeout,
			fmt.Sprintf("Permission request did not complete: %v", err),
			"operation", "request_permission")
		return
	}

	resp := PermissionResponse{Success: p == session.PermissionGranted, Permission: p}
	if p == session.PermissionDenied {
		resp.Message = session.Message(session.ErrPermissionDenied)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Failed to parse form data", "operation", "stop_recording")
		return
	}

	success := true
	if v := r.FormValue("success"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest,
				fmt.Sprintf("Invalid success value: %s", v),
				"operation", "stop_recording")
			return
		}
		success = parsed
	}

	if err := s.service.StopRecording(success); err != nil {
		s.sendActionError(w, "stop_recording", err)
		return
	}
	s.sendStatus(w)
}

func (s *Server) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.sendErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid limit: %s", v))
			return
		}
		limit = n
	}

	records, err := s.service.ListSubmissions(r.Context(), limit)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, service.ErrUnavailable) {
			code = http.StatusServiceUnavailable
		}
		s.sendErrorResponse(w, code, fmt.Sprintf("Failed to list submissions: %v", err), "operation", "list_submissions")
		return
	}

	writeJSON(w, http.StatusOK, SubmissionsResponse{
		Success:     true,
		Submissions: records,
		TotalCount:  len(records),
	})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.service.ListSources()
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, service.ErrUnavailable) {
			code = http.StatusServiceUnavailable
		}
		s.sendErrorResponse(w, code, fmt.Sprintf("Failed to list sources: %v", err), "operation", "list_sources")
		return
	}
	writeJSON(w, http.StatusOK, SourcesResponse{Success: true, Sources: sources})
}

// handleSubmissionAudio streams an archived whistle
func (s *Server) handleSubmissionAudio(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	rec, body, err := s.service.SubmissionAudio(r.Context(), id)
	if err != nil {
		code := http.StatusInternalServerError
		switch {
		case errors.Is(err, store.ErrNotFound), errors.Is(err, storage.ErrObjectNotFound):
			code = http.StatusNotFound
		case errors.Is(err, service.ErrUnavailable):
			code = http.StatusServiceUnavailable
		}
		s.sendErrorResponse(w, code, fmt.Sprintf("Failed to open submission %s: %v", id, err), "operation", "submission_audio")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", storage.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", rec.ID+".m4a"))
	if _, err := io.Copy(w, body); err != nil {
		slog.Debug("Submission stream interrupted", "id", id, "error", err)
	}
}

// handleArtifact streams the finished whistle
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	path := s.service.ArtifactPath()
	if path == "" {
		http.Error(w, "No recorded whistle", http.StatusNotFound)
		return
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "File not found", http.StatusNotFound)
		} else {
			http.Error(w, "Error opening file", http.StatusInternalServerError)
		}
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		http.Error(w, "Error accessing file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", storage.ContentType)
	w.Header().Set("Accept-Ranges", "bytes")
	http.ServeContent(w, r, info.Name(), info.ModTime(), file)
}

// handleWebSocket pushes a Status on connect and after every transition
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.service.Subscribe()
	defer unsubscribe()

	// Reader only tracks liveness; clients send nothing meaningful
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(wsPongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("WebSocket read error", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	if err := writeWS(conn, s.service.Status()); err != nil {
		return
	}

	for {
		select {
		case st, ok := <-updates:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := writeWS(conn, st); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func writeWS(conn *websocket.Conn, st service.Status) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(st); err != nil {
		slog.Debug("WebSocket write failed", "error", err)
		return err
	}
	return nil
}

// sendActionError maps domain errors onto HTTP status codes
func (s *Server) sendActionError(w http.ResponseWriter, op string, err error) {
	s.sendErrorResponse(w, statusCode(err), flow.Message(err), "operation", op, "cause", err.Error())
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, session.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, flow.ErrWrongScreen),
		errors.Is(err, flow.ErrBackDisabled),
		errors.Is(err, flow.ErrAtRoot),
		errors.Is(err, flow.ErrNotRecorded),
		errors.Is(err, flow.ErrSubmissionInFlight),
		errors.Is(err, flow.ErrNothingToRetry),
		errors.Is(err, session.ErrInvalidState),
		errors.Is(err, session.ErrNotPlayable),
		errors.Is(err, session.ErrPermissionPending):
		return http.StatusConflict
	case errors.Is(err, service.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// sendErrorResponse sends a standardized JSON error response with logging
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	// Log the error with structured context
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	writeJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}

// getLocalIP returns the first non-loopback IPv4 address
func getLocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "localhost"
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			return ipnet.IP.String()
		}
	}
	return "localhost"
}
