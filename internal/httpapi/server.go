package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/agentworkforce/taskbridge/internal/bridge"
)

const signatureHeader = "X-Todoist-Hmac-SHA256"

type ServerOptions struct {
	Dispatcher   *bridge.Dispatcher
	Mapping      *bridge.MappingStore
	Gateway      *bridge.Gateway
	BackendKind  string
	MaxBodyBytes int64
	Logger       bridge.Logger
}

// Server exposes the webhook endpoint plus health and status probes. All
// sync decisions live in the dispatcher; this layer only translates
// dispatch outcomes into HTTP statuses.
type Server struct {
	dispatcher   *bridge.Dispatcher
	mapping      *bridge.MappingStore
	gateway      *bridge.Gateway
	backendKind  string
	maxBodyBytes int64
	logger       bridge.Logger
}

func NewServer(opts ServerOptions) *Server {
	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = bridge.NewDispatcher(bridge.DispatcherOptions{})
	}
	maxBodyBytes := opts.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	backendKind := strings.TrimSpace(opts.BackendKind)
	if backendKind == "" {
		backendKind = "none"
	}
	return &Server{
		dispatcher:   dispatcher,
		mapping:      opts.Mapping,
		gateway:      opts.Gateway,
		backendKind:  backendKind,
		maxBodyBytes: maxBodyBytes,
		logger:       opts.Logger,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/health" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case r.URL.Path == "/status" && r.Method == http.MethodGet:
		s.handleStatus(w)
	case r.URL.Path == "/webhook/todoist" && r.Method == http.MethodGet:
		s.handleVerification(w, r)
	case r.URL.Path == "/webhook/todoist" && r.Method == http.MethodPost:
		s.handleWebhook(w, r)
	case r.URL.Path == "/webhook/todoist":
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	default:
		writeError(w, http.StatusNotFound, "route not found")
	}
}

func (s *Server) handleStatus(w http.ResponseWriter) {
	mappings := 0
	if s.mapping != nil {
		mappings = s.mapping.Len()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"mappings":     mappings,
		"gatewayReady": s.gateway.Ready(),
		"backend":      s.backendKind,
	})
}

// handleVerification answers Todoist's initial endpoint check: echo the
// verification token back as a bare body.
func (s *Server) handleVerification(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("verification_token")
	if token == "" {
		s.logf("webhook verification request without token")
		writeError(w, http.StatusBadRequest, "no verification token provided")
		return
	}
	s.logf("answering webhook verification request")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, token)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	deliveryID := deliveryID(r)
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.logf("delivery %s: body exceeds configured limit", deliveryID)
			writeError(w, http.StatusRequestEntityTooLarge, "request body exceeds configured limit")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	err = s.dispatcher.Dispatch(r.Context(), body, r.Header.Get(signatureHeader))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	case errors.Is(err, bridge.ErrBadSignature):
		s.logf("delivery %s: invalid signature", deliveryID)
		writeError(w, http.StatusUnauthorized, "invalid signature")
	case errors.Is(err, bridge.ErrMalformedEnvelope):
		s.logf("delivery %s: %v", deliveryID, err)
		writeError(w, http.StatusBadRequest, "invalid webhook payload")
	default:
		s.logf("delivery %s: %v", deliveryID, err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// deliveryID tags log lines for one request. Todoist does not send a
// correlation header, so one is generated unless a proxy already set it.
func deliveryID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Correlation-Id")); id != "" {
		return id
	}
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"status":  "error",
		"message": message,
	})
}

func (s *Server) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
