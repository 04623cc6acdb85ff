package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrBadSignature      = errors.New("invalid webhook signature")
	ErrMalformedEnvelope = errors.New("malformed webhook envelope")
	ErrRemoteOperation   = errors.New("remote operation failed")
)

type DispatcherOptions struct {
	Verifier SignatureVerifier
	Gateway  *Gateway
	Logger   Logger
}

// Dispatcher runs one webhook delivery through verification, envelope
// parsing, and event routing. Each call is independent; the only shared
// state is the gateway's mapping store.
type Dispatcher struct {
	verifier SignatureVerifier
	gateway  *Gateway
	logger   Logger
}

func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	gateway := opts.Gateway
	if gateway == nil {
		gateway = NewGateway(GatewayOptions{})
	}
	return &Dispatcher{
		verifier: opts.Verifier,
		gateway:  gateway,
		logger:   opts.Logger,
	}
}

// Dispatch processes one raw delivery. A nil return means accepted: handled,
// intentionally ignored, or skipped because the gateway is unconfigured.
// ErrBadSignature and ErrMalformedEnvelope reject the delivery;
// ErrRemoteOperation means the event was routed but the remote call failed.
func (d *Dispatcher) Dispatch(ctx context.Context, rawBody []byte, signature string) error {
	if !d.verifier.Verify(rawBody, signature) {
		d.logf("rejected webhook delivery: signature mismatch")
		return ErrBadSignature
	}
	if err := validateEnvelopeBytes(rawBody); err != nil {
		d.logf("rejected webhook delivery: %v", err)
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	var envelope webhookEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		d.logf("rejected webhook delivery: %v", err)
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	var task TaskSnapshot
	if err := json.Unmarshal(envelope.EventData, &task); err != nil {
		d.logf("rejected %s delivery: bad event_data: %v", envelope.EventName, err)
		return fmt.Errorf("%w: bad event_data: %v", ErrMalformedEnvelope, err)
	}
	d.logf("processing todoist event %s for task %s", envelope.EventName, task.ID)
	return d.route(ctx, envelope.EventName, task)
}

// route dispatches by event type. Unrecognized types are accepted as no-ops
// so future Todoist event types never break deliveries. A panicking gateway
// is caught here and reported as a failed outcome, never propagated.
func (d *Dispatcher) route(ctx context.Context, eventType EventType, task TaskSnapshot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logf("panic handling %s for task %s: %v", eventType, task.ID, r)
			err = fmt.Errorf("%w: %s: panic: %v", ErrRemoteOperation, eventType, r)
		}
	}()

	var opErr error
	switch eventType {
	case EventItemAdded:
		_, opErr = d.gateway.CreateTask(ctx, task)
	case EventItemUpdated:
		opErr = d.gateway.UpdateTask(ctx, task)
	case EventItemCompleted:
		opErr = d.gateway.CompleteTask(ctx, task)
	case EventItemUncompleted:
		opErr = d.gateway.UncompleteTask(ctx, task)
	case EventItemDeleted:
		opErr = d.gateway.DeleteTask(ctx, task)
	default:
		d.logf("ignoring unhandled event type %q", eventType)
		return nil
	}

	switch {
	case opErr == nil:
		return nil
	case errors.Is(opErr, ErrGatewayNotReady):
		// Accepted, not failed: Todoist would otherwise retry a delivery
		// the bridge can never satisfy.
		d.logf("notion gateway not ready, skipping %s for task %s", eventType, task.ID)
		return nil
	case errors.Is(opErr, ErrInvalidInput):
		d.logf("rejected %s delivery: %v", eventType, opErr)
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, opErr)
	default:
		d.logf("%s failed for task %s (%q): %v", eventType, task.ID, task.Content, opErr)
		return fmt.Errorf("%w: %s: %v", ErrRemoteOperation, eventType, opErr)
	}
}

func (d *Dispatcher) logf(format string, args ...any) {
	if d.logger == nil {
		return
	}
	d.logger.Printf(format, args...)
}
