package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

const testSecret = "s3cret"

func signedEnvelope(t *testing.T, secret, event string, data map[string]any) ([]byte, string) {
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
	return body, ComputeSignature(secret, body)
}

func newTestDispatcher(secret string, writer PageWriter) (*Dispatcher, *MappingStore) {
	mapping := NewMappingStore()
	gateway := NewGateway(GatewayOptions{Writer: writer, Mapping: mapping})
	dispatcher := NewDispatcher(DispatcherOptions{
		Verifier: NewSignatureVerifier(secret, nil),
		Gateway:  gateway,
	})
	return dispatcher, mapping
}

func TestDispatchItemAddedCreatesMapping(t *testing.T) {
	writer := &fakePageWriter{}
	dispatcher, mapping := newTestDispatcher(testSecret, writer)

	body, signature := signedEnvelope(t, testSecret, "item:added", map[string]any{
		"id":      "123",
		"content": "Buy milk",
	})
	if err := dispatcher.Dispatch(context.Background(), body, signature); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if len(writer.created) != 1 || writer.created[0].Content != "Buy milk" {
		t.Fatalf("expected one create with content, got %+v", writer.created)
	}
	if pageID, ok := mapping.RemoteID("123"); !ok || pageID != "page_1" {
		t.Fatalf("expected mapping 123->page_1, got %q (%v)", pageID, ok)
	}
}

func TestDispatchRejectsBadSignature(t *testing.T) {
	writer := &fakePageWriter{}
	dispatcher, _ := newTestDispatcher(testSecret, writer)

	body, _ := signedEnvelope(t, testSecret, "item:added", map[string]any{"id": "123"})
	err := dispatcher.Dispatch(context.Background(), body, ComputeSignature("wrong-secret", body))
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
	if len(writer.created) != 0 {
		t.Fatalf("expected no remote calls on rejected delivery")
	}
}

func TestDispatchRejectsUnparseableBody(t *testing.T) {
	dispatcher, _ := newTestDispatcher(testSecret, &fakePageWriter{})

	body := []byte("{not json")
	err := dispatcher.Dispatch(context.Background(), body, ComputeSignature(testSecret, body))
	if !errors.Is(err, ErrMalformedEnvelope) {
		t.Fatalf("expected ErrMalformedEnvelope, got %v", err)
	}
}

func TestDispatchRejectsIncompleteEnvelope(t *testing.T) {
	dispatcher, _ := newTestDispatcher(testSecret, &fakePageWriter{})

	for _, raw := range []string{
		`{"event_data":{"id":"123"}}`,
		`{"event_name":"item:added"}`,
		`{"event_name":"","event_data":{"id":"123"}}`,
		`{"event_name":"item:added","event_data":"not-an-object"}`,
	} {
		body := []byte(raw)
		err := dispatcher.Dispatch(context.Background(), body, ComputeSignature(testSecret, body))
		if !errors.Is(err, ErrMalformedEnvelope) {
			t.Fatalf("expected ErrMalformedEnvelope for %s, got %v", raw, err)
		}
	}
}

func TestDispatchRejectsMissingTaskID(t *testing.T) {
	writer := &fakePageWriter{}
	dispatcher, _ := newTestDispatcher(testSecret, writer)

	body, signature := signedEnvelope(t, testSecret, "item:added", map[string]any{"content": "no id"})
	err := dispatcher.Dispatch(context.Background(), body, signature)
	if !errors.Is(err, ErrMalformedEnvelope) {
		t.Fatalf("expected ErrMalformedEnvelope for missing task id, got %v", err)
	}
	if len(writer.created) != 0 {
		t.Fatalf("expected no remote calls for missing task id")
	}
}

func TestDispatchIgnoresUnknownEventType(t *testing.T) {
	writer := &fakePageWriter{}
	dispatcher, _ := newTestDispatcher(testSecret, writer)

	body, signature := signedEnvelope(t, testSecret, "note:added", map[string]any{"id": "999"})
	if err := dispatcher.Dispatch(context.Background(), body, signature); err != nil {
		t.Fatalf("expected unknown event type to be accepted, got %v", err)
	}
	if len(writer.created) != 0 {
		t.Fatalf("expected no remote calls for unknown event type")
	}
}

func TestDispatchAcceptsWhenGatewayUnconfigured(t *testing.T) {
	dispatcher, _ := newTestDispatcher(testSecret, nil)

	body, signature := signedEnvelope(t, testSecret, "item:added", map[string]any{"id": "123"})
	if err := dispatcher.Dispatch(context.Background(), body, signature); err != nil {
		t.Fatalf("expected unconfigured gateway to accept delivery, got %v", err)
	}
}

func TestDispatchItemDeletedArchivesMappedPage(t *testing.T) {
	writer := &fakePageWriter{}
	dispatcher, mapping := newTestDispatcher(testSecret, writer)
	mapping.Add("123", "R1")

	body, signature := signedEnvelope(t, testSecret, "item:deleted", map[string]any{"id": "123"})
	if err := dispatcher.Dispatch(context.Background(), body, signature); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if len(writer.archived) != 1 || writer.archived[0] != "R1" {
		t.Fatalf("expected R1 archived, got %+v", writer.archived)
	}
	if mapping.Len() != 0 {
		t.Fatalf("expected mapping removed, got %d entries", mapping.Len())
	}
}

func TestDispatchReportsRemoteFailure(t *testing.T) {
	writer := &fakePageWriter{failCreate: errors.New("notion down")}
	dispatcher, _ := newTestDispatcher(testSecret, writer)

	body, signature := signedEnvelope(t, testSecret, "item:added", map[string]any{"id": "123"})
	err := dispatcher.Dispatch(context.Background(), body, signature)
	if !errors.Is(err, ErrRemoteOperation) {
		t.Fatalf("expected ErrRemoteOperation, got %v", err)
	}
}

type panickingWriter struct {
	fakePageWriter
}

func (w *panickingWriter) CreatePage(ctx context.Context, task TaskSnapshot) (string, error) {
	panic("writer exploded")
}

func TestDispatchRecoversFromGatewayPanic(t *testing.T) {
	dispatcher, _ := newTestDispatcher(testSecret, &panickingWriter{})

	body, signature := signedEnvelope(t, testSecret, "item:added", map[string]any{"id": "123"})
	err := dispatcher.Dispatch(context.Background(), body, signature)
	if !errors.Is(err, ErrRemoteOperation) {
		t.Fatalf("expected panic to surface as ErrRemoteOperation, got %v", err)
	}
}
