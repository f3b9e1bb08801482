// Package engine implements the bidirectional control protocol spoken with
// the agent CLI over its stdio transport. It multiplexes three traffic
// classes on one line-oriented JSON stream: domain messages delivered to
// the consumer, outbound control requests correlated with their responses,
// and inbound control requests dispatched to host callbacks.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentlink/agentlink/internal/config"
	"github.com/agentlink/agentlink/internal/sdkerr"
	"github.com/agentlink/agentlink/internal/wire"
)

// initTimeoutEnv overrides the initialize handshake timeout, in seconds.
const initTimeoutEnv = "AGENTLINK_INIT_TIMEOUT"

// pending tracks one in-flight outbound control request. The channel has
// capacity 1 so the pump never blocks delivering a response.
type pending struct {
	ch chan *ControlResponse
}

// Engine runs the control protocol over a connected transport. Create one
// with New, call Start exactly once, and Dispose when finished.
type Engine struct {
	log       *slog.Logger
	opts      *config.Options
	transport config.Transport
	dispatch  *dispatcher
	queue     *queue

	mu      sync.Mutex
	pending map[string]*pending
	counter int

	initMu     sync.Mutex
	initDone   bool
	initResult map[string]any

	fatalMu  sync.Mutex
	fatalErr error

	done     chan struct{}
	doneOnce sync.Once
	wg       sync.WaitGroup
}

// New creates an engine on an already-connected transport.
func New(log *slog.Logger, transport config.Transport, opts *config.Options) *Engine {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Engine{
		log:       log.With("component", "engine"),
		opts:      opts,
		transport: transport,
		dispatch:  newDispatcher(log, opts),
		queue:     newQueue(opts.QueueCapacity()),
		pending:   make(map[string]*pending),
		done:      make(chan struct{}),
	}
}

// Start launches the read pump. The pump runs until the transport's stream
// ends, a fatal error occurs, or Dispose is called.
func (e *Engine) Start(ctx context.Context) {
	msgCh, errCh := e.transport.ReadStream(ctx)

	e.wg.Add(1)

	go e.pump(ctx, msgCh, errCh)
}

// pump is the single reader of the transport stream. It classifies each
// document and routes it; when it returns, the delivery queue is closed so
// consumers observe end-of-stream.
func (e *Engine) pump(ctx context.Context, msgCh <-chan map[string]any, errCh <-chan error) {
	defer e.wg.Done()
	defer e.queue.close()
	defer e.failPending()
	// done closes on every exit, fatal or clean EOF, so a Send issued after
	// the stream ended fails fast instead of waiting out its timeout.
	defer e.stop()

	for {
		select {
		case data, ok := <-msgCh:
			if !ok {
				return
			}

			if !e.route(ctx, data) {
				return
			}

		case err, ok := <-errCh:
			if !ok {
				errCh = nil

				continue
			}

			var decodeErr *sdkerr.DecodeError
			if errors.As(err, &decodeErr) {
				e.log.Warn("Skipping malformed output line", "error", err)

				continue
			}

			e.setFatal(err)

			return

		case <-e.done:
			return

		case <-ctx.Done():
			e.setFatal(ctx.Err())

			return
		}
	}
}

// route handles one inbound document. It returns false when the pump
// should stop (delivery was aborted by shutdown).
func (e *Engine) route(ctx context.Context, data map[string]any) bool {
	msgType, _ := data["type"].(string)

	switch msgType {
	case "":
		e.log.Debug("Skipping document without type field")

		return true

	case "control_request":
		e.serveRequest(ctx, data)

		return true

	case "control_response":
		e.resolve(data)

		return true

	case "control_cancel_request":
		// Cancellation of in-flight callbacks is not supported; the
		// eventual response is discarded as spurious on the CLI side.
		return true

	default:
		msg, err := wire.Decode(data)
		if err != nil {
			if errors.Is(err, sdkerr.ErrUnknownMessage) {
				e.log.Debug("Skipping unknown message type", "type", msgType)
			} else {
				e.log.Warn("Skipping unparseable message", "type", msgType, "error", err)
			}

			return true
		}

		return e.queue.put(ctx, e.done, msg)
	}
}

// serveRequest dispatches an inbound control request on its own goroutine
// and writes back exactly one response.
func (e *Engine) serveRequest(ctx context.Context, data map[string]any) {
	raw, err := json.Marshal(data)
	if err != nil {
		e.log.Warn("Re-encode control request failed", "error", err)

		return
	}

	var req ControlRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.RequestID == "" {
		e.log.Warn("Malformed control request", "error", err)

		return
	}

	e.wg.Add(1)

	go func() {
		defer e.wg.Done()

		payload, err := e.dispatch.dispatch(ctx, &req)

		var resp *ControlResponse
		if err != nil {
			resp = errorResponse(req.RequestID, err.Error())
		} else {
			resp = successResponse(req.RequestID, payload)
		}

		if err := e.write(ctx, resp); err != nil {
			e.log.Warn("Write control response failed",
				"request_id", req.RequestID, "error", err)
		}
	}()
}

// resolve delivers a control response to its waiting request. Responses
// with no waiter are discarded; they are late arrivals for requests that
// already timed out.
func (e *Engine) resolve(data map[string]any) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}

	var resp ControlResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		e.log.Warn("Malformed control response", "error", err)

		return
	}

	id := resp.RequestID()

	e.mu.Lock()
	p, ok := e.pending[id]
	if ok {
		delete(e.pending, id)
	}
	e.mu.Unlock()

	if !ok {
		e.log.Debug("Discarding response with no pending request", "request_id", id)

		return
	}

	p.ch <- &resp
}

// Send issues one outbound control request and waits for the matching
// response, up to timeout. A zero timeout uses the configured per-request
// default.
func (e *Engine) Send(ctx context.Context, subtype string, payload map[string]any, timeout time.Duration) (map[string]any, error) {
	select {
	case <-e.done:
		return nil, sdkerr.ErrEngineStopped
	default:
	}

	if timeout <= 0 {
		timeout = e.opts.SendTimeout()
	}

	request := map[string]any{"subtype": subtype}
	for k, v := range payload {
		request[k] = v
	}

	e.mu.Lock()
	e.counter++
	id := fmt.Sprintf("req_%d_%s", e.counter, ulid.Make().String())
	p := &pending{ch: make(chan *ControlResponse, 1)}
	e.pending[id] = p
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.pending, id)
		e.mu.Unlock()
	}()

	envelope := &ControlRequest{
		Type:      "control_request",
		RequestID: id,
		Request:   request,
	}

	if err := e.write(ctx, envelope); err != nil {
		return nil, fmt.Errorf("send control request %q: %w", subtype, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-p.ch:
		if resp == nil {
			return nil, sdkerr.ErrEngineStopped
		}

		if resp.IsError() {
			return nil, fmt.Errorf("control request %q failed: %s", subtype, resp.ErrorMessage())
		}

		return resp.Payload(), nil

	case <-timer.C:
		return nil, fmt.Errorf("%w: request %s (%s) after %s",
			sdkerr.ErrRequestTimeout, id, subtype, timeout)

	case <-e.done:
		return nil, sdkerr.ErrEngineStopped

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Initialize performs the control protocol handshake, registering hook
// callbacks with the agent. Idempotent; later calls return the first
// handshake's result.
func (e *Engine) Initialize(ctx context.Context) (map[string]any, error) {
	e.initMu.Lock()
	defer e.initMu.Unlock()

	if e.initDone {
		return e.initResult, nil
	}

	payload := map[string]any{}
	if len(e.opts.Hooks) > 0 {
		payload["hooks"] = e.dispatch.bindHooks(e.opts.Hooks)
	}

	result, err := e.Send(ctx, "initialize", payload, e.initTimeout())
	if err != nil {
		return nil, fmt.Errorf("initialize handshake: %w", err)
	}

	e.initDone = true
	e.initResult = result

	return result, nil
}

// InitResult returns the handshake response, or nil before Initialize
// succeeds.
func (e *Engine) InitResult() map[string]any {
	e.initMu.Lock()
	defer e.initMu.Unlock()

	return e.initResult
}

func (e *Engine) initTimeout() time.Duration {
	if e.opts.InitializeTimeout > 0 {
		return e.opts.InitializeTimeout
	}

	if raw := os.Getenv(initTimeoutEnv); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}

	return e.opts.SendTimeout()
}

// Messages is the delivery queue's consumer side. The channel closes once
// the stream ends or the engine is disposed; check FatalError afterwards
// to distinguish the two.
func (e *Engine) Messages() <-chan wire.Message {
	return e.queue.out()
}

// WriteTurn sends a domain document (typically a user turn) to the agent.
// Unlike Send it expects no response.
func (e *Engine) WriteTurn(ctx context.Context, doc any) error {
	return e.write(ctx, doc)
}

// write marshals one document and writes it as a single line.
func (e *Engine) write(ctx context.Context, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal outbound document: %w", err)
	}

	return e.transport.Write(ctx, append(raw, '\n'))
}

// Done is closed when the engine has stopped.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// FatalError returns the error that stopped the pump, if any.
func (e *Engine) FatalError() error {
	e.fatalMu.Lock()
	defer e.fatalMu.Unlock()

	return e.fatalErr
}

func (e *Engine) setFatal(err error) {
	e.fatalMu.Lock()
	if e.fatalErr == nil {
		e.fatalErr = err
	}
	e.fatalMu.Unlock()

	e.log.Error("Protocol engine stopped", "error", err)

	e.stop()
}

// stop closes done exactly once.
func (e *Engine) stop() {
	e.doneOnce.Do(func() {
		close(e.done)
	})
}

// failPending wakes every in-flight request by closing its channel, which
// the waiter reports as ErrEngineStopped.
func (e *Engine) failPending() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, p := range e.pending {
		delete(e.pending, id)
		close(p.ch)
	}
}

// Dispose stops the engine, closes the transport, and waits for all
// goroutines to finish. Safe to call multiple times and from multiple
// goroutines.
func (e *Engine) Dispose() error {
	e.stop()

	err := e.transport.Close()

	e.wg.Wait()
	e.queue.close()

	return err
}
