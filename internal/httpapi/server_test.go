package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agentworkforce/taskbridge/internal/bridge"
)

const testSecret = "s3cret"

type stubPageWriter struct {
	nextID     int
	failCreate error
}

func (w *stubPageWriter) CreatePage(ctx context.Context, task bridge.TaskSnapshot) (string, error) {
	if w.failCreate != nil {
		return "", w.failCreate
	}
	w.nextID++
	return fmt.Sprintf("page_%d", w.nextID), nil
}

func (w *stubPageWriter) UpdatePage(ctx context.Context, pageID string, task bridge.TaskSnapshot) error {
	return nil
}

func (w *stubPageWriter) SetCompletion(ctx context.Context, pageID string, completed bool) error {
	return nil
}

func (w *stubPageWriter) ArchivePage(ctx context.Context, pageID string) error {
	return nil
}

type serverFixture struct {
	server  *Server
	mapping *bridge.MappingStore
	writer  *stubPageWriter
}

func newServerFixture(opts ServerOptions, writer *stubPageWriter) *serverFixture {
	mapping := bridge.NewMappingStore()
	gateway := bridge.NewGateway(bridge.GatewayOptions{Writer: writer, Mapping: mapping})
	opts.Dispatcher = bridge.NewDispatcher(bridge.DispatcherOptions{
		Verifier: bridge.NewSignatureVerifier(testSecret, nil),
		Gateway:  gateway,
	})
	opts.Mapping = mapping
	opts.Gateway = gateway
	if opts.BackendKind == "" {
		opts.BackendKind = "memory"
	}
	return &serverFixture{server: NewServer(opts), mapping: mapping, writer: writer}
}

func signedRequest(t *testing.T, event string, data map[string]any) *http.Request {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event_name": event,
		"user_id":    12345678,
		"version":    "9",
		"event_data": data,
	})
	if err != nil {
		t.Fatalf("failed to marshal envelope: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/webhook/todoist", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Todoist-Hmac-SHA256", bridge.ComputeSignature(testSecret, body))
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var parsed map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("response is not json: %v (%s)", err, rec.Body.String())
	}
	return parsed
}

func TestHealthEndpoint(t *testing.T) {
	fixture := newServerFixture(ServerOptions{}, &stubPageWriter{})

	rec := httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "ok" {
		t.Fatalf("expected ok status, got %+v", body)
	}
}

func TestVerificationEchoesToken(t *testing.T) {
	fixture := newServerFixture(ServerOptions{}, &stubPageWriter{})

	rec := httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook/todoist?verification_token=abc", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "abc" {
		t.Fatalf("expected bare token echo, got %q", rec.Body.String())
	}
}

func TestVerificationWithoutTokenFails(t *testing.T) {
	fixture := newServerFixture(ServerOptions{}, &stubPageWriter{})

	rec := httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook/todoist", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestWebhookSuccessAndStatus(t *testing.T) {
	fixture := newServerFixture(ServerOptions{}, &stubPageWriter{})

	rec := httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, signedRequest(t, "item:added", map[string]any{
		"id":      "123",
		"content": "Buy milk",
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["status"] != "success" {
		t.Fatalf("expected success body, got %+v", body)
	}

	rec = httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	status := decodeBody(t, rec)
	if status["mappings"] != float64(1) {
		t.Fatalf("expected 1 mapping in status, got %+v", status)
	}
	if status["gatewayReady"] != true {
		t.Fatalf("expected gatewayReady true, got %+v", status)
	}
	if status["backend"] != "memory" {
		t.Fatalf("expected memory backend kind, got %+v", status)
	}
}

func TestWebhookInvalidSignature(t *testing.T) {
	fixture := newServerFixture(ServerOptions{}, &stubPageWriter{})

	req := signedRequest(t, "item:added", map[string]any{"id": "123"})
	req.Header.Set("X-Todoist-Hmac-SHA256", "bogus")
	rec := httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["message"] != "invalid signature" {
		t.Fatalf("unexpected error body: %+v", body)
	}
	if fixture.mapping.Len() != 0 {
		t.Fatalf("expected no mapping from rejected delivery")
	}
}

func TestWebhookMalformedPayload(t *testing.T) {
	fixture := newServerFixture(ServerOptions{}, &stubPageWriter{})

	body := []byte("{not json")
	req := httptest.NewRequest(http.MethodPost, "/webhook/todoist", strings.NewReader(string(body)))
	req.Header.Set("X-Todoist-Hmac-SHA256", bridge.ComputeSignature(testSecret, body))
	rec := httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if responseBody := decodeBody(t, rec); responseBody["message"] != "invalid webhook payload" {
		t.Fatalf("unexpected error body: %+v", responseBody)
	}
}

func TestWebhookRemoteFailure(t *testing.T) {
	fixture := newServerFixture(ServerOptions{}, &stubPageWriter{failCreate: errors.New("notion down")})

	rec := httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, signedRequest(t, "item:added", map[string]any{"id": "123"}))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "error" {
		t.Fatalf("expected error body, got %+v", body)
	}
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	fixture := newServerFixture(ServerOptions{}, &stubPageWriter{})

	rec := httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/webhook/todoist", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	fixture := newServerFixture(ServerOptions{}, &stubPageWriter{})

	rec := httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestWebhookBodyTooLarge(t *testing.T) {
	fixture := newServerFixture(ServerOptions{MaxBodyBytes: 16}, &stubPageWriter{})

	req := signedRequest(t, "item:added", map[string]any{
		"id":      "123",
		"content": strings.Repeat("x", 256),
	})
	rec := httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}
