package wsstream

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gitlab.com/lake42/go-websocket-stream/wsstream/wstransports"
)

// Close data which describes how a connection ended. Produced exactly once per connection, from
// the close event reported by the transport.
type CloseInfo struct {
	// Close status code.
	Code wstransports.StatusCode
	// Optional close reason. Can be empty.
	Reason string
}

// Stream which manages the lifecycle of a single websocket connection and exposes it through two
// write-once futures:
//
//   - ready: resolves when the connection reaches the open state, rejects with a
//     WebsocketClosedError if the connection terminates abnormally before ever opening.
//   - closed: resolves with the close data when the closing handshake completes, rejects with a
//     WebsocketClosedError if an established connection terminates abnormally.
//
// A single closure event settles exactly one of the two futures: an abnormal closure before the
// open state rejects ready and leaves closed permanently unsettled; a clean closure which was
// never preceded by an open event resolves closed and leaves ready permanently unsettled. Both
// edge branches are deliberate: callers awaiting an unsettled future suspend forever.
//
// Incoming messages are consumed through independent MessageBridge iterators minted with
// NewMessageBridge. The stream never reconnects: one stream, one connection.
type WebsocketStream struct {
	// Transport used to establish and use the websocket connection.
	transport wstransports.WebsocketTransportInterface
	// Target server URL.
	target *url.URL
	// Configuration options used by the stream.
	opts *WebsocketStreamOptions
	// Future settled when the connection reaches the open state.
	ready *future[struct{}]
	// Future settled when the connection terminates.
	closed *future[CloseInfo]
	// Tracer used to instrument the stream code.
	tracer trace.Tracer
	// Internal mutex which guards hadOpened, bridges and closeRequested.
	mu sync.Mutex
	// Set permanently once the connection has reached the open state at least once. Decides
	// which future an abnormal closure rejects.
	hadOpened bool
	// Bridges currently subscribed to message delivery, by subscription id.
	bridges map[string]*MessageBridge
	// Set once a close request has been accepted by the transport. A failed request does not
	// set the flag: a later request may still fix the close cause.
	closeRequested bool
}

// # Description
//
// Factory - Create a new websocket stream and start connecting to the target server.
//
// The factory returns as soon as its inputs have been validated: the connection is established
// in the background and its outcome is observed through Ready. If the websocket handshake fails,
// Ready rejects with a WebsocketClosedError and Closed remains permanently unsettled.
//
// The provided context doubles as the cancellation signal of the stream: once it is canceled,
// the stream requests transport closure with the NormalClosure status code, exactly as if Close
// had been called.
//
// # Inputs
//
//   - ctx: Context bound to the stream lifetime. Its cancellation triggers a normal closure.
//   - transport: Websocket transport the stream will use to connect to the target server.
//   - target: Target websocket server URL.
//   - opts: Stream configuration options. If nil, default options are used.
//   - tracerProvider: OpenTelemetry tracer provider to use. If nil, the global TracerProvider
//     is used.
//
// # Return
//
// The factory returns a new websocket stream in case of success. If provided inputs are invalid,
// the factory returns nil and an error.
func NewWebsocketStream(
	ctx context.Context,
	transport wstransports.WebsocketTransportInterface,
	target *url.URL,
	opts *WebsocketStreamOptions,
	tracerProvider trace.TracerProvider) (*WebsocketStream, error) {
	// Check provided target URL is not nil
	if target == nil {
		return nil, fmt.Errorf("provided target url is nil")
	}
	// Check provided transport is not nil
	if transport == nil {
		return nil, fmt.Errorf("provided transport is nil")
	}
	// Use default options if not set
	if opts == nil {
		opts = NewWebsocketStreamOptions()
	}
	// Validate options
	err := Validate(opts)
	if err != nil {
		return nil, err
	}
	// Get tracer provider from global tracer provider if not provided
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	// Decorate provided transport if needed
	_, ok := transport.(*wstransports.WebsocketTransportInstrumentationDecorator)
	if !ok {
		transport, err = wstransports.NewWebsocketTransportInstrumentationDecorator(transport, tracerProvider, nil)
		if err != nil {
			return nil, err
		}
	}
	// Build stream with unsettled futures
	stream := &WebsocketStream{
		transport: transport,
		target:    target,
		opts:      opts,
		ready:     newFuture[struct{}](),
		closed:    newFuture[CloseInfo](),
		tracer:    tracerProvider.Tracer(pkgName, trace.WithInstrumentationVersion(pkgVersion)),
		bridges:   map[string]*MessageBridge{},
	}
	// Connect in the background: the outcome surfaces through the ready future
	go stream.connect(ctx)
	// Watch the cancellation signal
	go stream.watchCancellation(ctx)
	// Return the stream
	return stream, nil
}

/*************************************************************************************************/
/* FUTURES                                                                                      */
/*************************************************************************************************/

// # Description
//
// Suspend the caller until the connection reaches the open state or fails before ever opening.
//
// # Return
//
//   - nil once the connection is open.
//   - A WebsocketClosedError if the connection terminated abnormally before ever opening.
//   - The context error if the provided context expired first.
//
// Beware: if the connection closes cleanly without ever reaching the open state, the ready
// future never settles and Ready suspends until the provided context expires.
func (stream *WebsocketStream) Ready(ctx context.Context) error {
	_, err := stream.ready.wait(ctx)
	return err
}

// # Description
//
// Suspend the caller until the connection terminates.
//
// # Return
//
//   - The close data if the closing handshake completed.
//   - A WebsocketClosedError if an established connection terminated abnormally.
//   - The context error if the provided context expired first.
//
// Beware: if the connection terminates abnormally before ever opening, the closed future never
// settles: the failure is reported through Ready only and Closed suspends until the provided
// context expires.
func (stream *WebsocketStream) Closed(ctx context.Context) (CloseInfo, error) {
	return stream.closed.wait(ctx)
}

/*************************************************************************************************/
/* OPERATIONS                                                                                    */
/*************************************************************************************************/

// # Description
//
// Request connection closure with the provided status code and reason and suspend the caller
// until the connection has terminated. The settlement of the closed future is propagated.
//
// Calling Close on an already closed or closing connection is safe: only the first close
// request (whether it came from Close, from Listen or from the cancellation signal) fixes the
// close cause; later calls only wait for the termination and observe the same close data.
//
// # Inputs
//
//   - ctx: Context used for tracing purpose and to abandon the wait.
//   - code: Status code to use in the close message. Use NormalClosure when in doubt.
//   - reason: Optional close reason. Can be empty.
//
// # Return
//
// Same contract as Closed.
func (stream *WebsocketStream) Close(ctx context.Context, code wstransports.StatusCode, reason string) (CloseInfo, error) {
	// Start span
	ctx, span := stream.tracer.Start(ctx, spanStreamClose,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int(attrCloseCode, int(code)),
			attribute.String(attrCloseReason, reason),
		))
	defer span.End()
	// Request closure. A failed request is only recorded: the termination of the connection is
	// always observed through the closed future.
	err := stream.requestClose(ctx, code, reason)
	if err != nil {
		span.RecordError(err)
	}
	// Suspend until the connection has terminated and propagate the settlement
	info, err := stream.closed.wait(ctx)
	if err != nil {
		return info, handleError(err, span, codes.Error, codes.Error.String())
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	return info, nil
}

// # Description
//
// Send a single message with the current binary message type. Fire-and-forget: a nil return
// means the message has been handed to the transport, not that the server received it.
//
// # Inputs
//
//   - ctx: Context used for tracing/timeout purpose.
//   - payload: Message content.
//
// # Return
//
// Nil in case of success, an error in case of connection closure, context timeout/cancellation
// or failure.
func (stream *WebsocketStream) Send(ctx context.Context, payload []byte) error {
	return stream.transport.Send(ctx, stream.transport.BinaryType(), payload)
}

// # Description
//
// Send a single text message. Fire-and-forget, same contract as Send.
func (stream *WebsocketStream) SendText(ctx context.Context, payload string) error {
	return stream.transport.Send(ctx, wstransports.Text, []byte(payload))
}

/*************************************************************************************************/
/* PASS-THROUGH ACCESSORS                                                                        */
/*************************************************************************************************/

// Return the message type Send uses for its payloads.
func (stream *WebsocketStream) BinaryType() wstransports.MessageType {
	return stream.transport.BinaryType()
}

// Set the message type Send uses for its payloads.
func (stream *WebsocketStream) SetBinaryType(msgType wstransports.MessageType) {
	stream.transport.SetBinaryType(msgType)
}

// Return the number of bytes handed to the transport which have not been written out yet.
func (stream *WebsocketStream) BufferedAmount() int64 {
	return stream.transport.BufferedAmount()
}

// Return the extensions negotiated during the websocket handshake.
func (stream *WebsocketStream) Extensions() string {
	return stream.transport.Extensions()
}

// Return the subprotocol negotiated during the websocket handshake.
func (stream *WebsocketStream) Protocol() string {
	return stream.transport.Protocol()
}

// Return the current connection state as reported by the transport.
func (stream *WebsocketStream) State() wstransports.ConnectionState {
	return stream.transport.State()
}

// Return the resolved target URL as reported by the transport.
func (stream *WebsocketStream) Url() *url.URL {
	return stream.transport.Url()
}

/*************************************************************************************************/
/* EVENT HANDLING                                                                                */
/*************************************************************************************************/

// # Description
//
// Open event handler. Records that the connection has been open at least once and resolves the
// ready future. Fired at most once by the transport, always before any message event.
func (stream *WebsocketStream) OnOpen(ctx context.Context) {
	// Record the had-opened flag first so a following abnormal closure is routed to the closed
	// future, then resolve ready.
	stream.mu.Lock()
	stream.hadOpened = true
	stream.mu.Unlock()
	stream.ready.resolve(struct{}{})
	trace.SpanFromContext(ctx).AddEvent(eventStreamOpen)
}

// # Description
//
// Message event handler. Broadcasts the message to every currently subscribed bridge: bridges
// do not compete for messages, each one observes the full stream.
func (stream *WebsocketStream) OnMessage(ctx context.Context, msgType wstransports.MessageType, payload []byte) {
	// Snapshot subscribed bridges so delivery happens outside the stream mutex
	stream.mu.Lock()
	bridges := make([]*MessageBridge, 0, len(stream.bridges))
	for _, bridge := range stream.bridges {
		bridges = append(bridges, bridge)
	}
	stream.mu.Unlock()
	// Deliver to each bridge
	for _, bridge := range bridges {
		bridge.deliver(Message{Type: msgType, Payload: payload})
	}
}

// # Description
//
// Close event handler. Builds the close data and routes it to exactly one of the two futures:
//
//   - Clean closure: closed resolves. If no open event ever fired, ready is left permanently
//     unsettled.
//   - Abnormal closure after the connection had opened: closed rejects.
//   - Abnormal closure before the connection ever opened: ready rejects and closed is left
//     permanently unsettled.
//
// When the closed future settles (either way), every subscribed bridge terminates and discards
// its unconsumed buffer.
//
// Fired exactly once by the transport, as the last event the stream ever observes.
func (stream *WebsocketStream) OnClose(ctx context.Context, code wstransports.StatusCode, reason string, wasClean bool) {
	// Build the close data
	info := CloseInfo{Code: code, Reason: reason}
	// Read the had-opened flag
	stream.mu.Lock()
	hadOpened := stream.hadOpened
	stream.mu.Unlock()
	// Route the closure to exactly one future
	if wasClean {
		stream.closed.resolve(info)
	} else {
		err := WebsocketClosedError{Info: info}
		if hadOpened {
			stream.closed.reject(err)
		} else {
			stream.ready.reject(err)
		}
	}
	trace.SpanFromContext(ctx).AddEvent(eventStreamClosed, trace.WithAttributes(
		attribute.Int(attrCloseCode, int(code)),
		attribute.String(attrCloseReason, reason),
		attribute.Bool(attrWasClean, wasClean),
		attribute.Bool(attrHadOpened, hadOpened),
	))
	// Terminate bridges only when the closed future settled: an abnormal closure before the
	// open state leaves bridges pending forever, like the closed future itself.
	if stream.closed.isSettled() {
		stream.mu.Lock()
		bridges := make([]*MessageBridge, 0, len(stream.bridges))
		for _, bridge := range stream.bridges {
			bridges = append(bridges, bridge)
		}
		stream.bridges = map[string]*MessageBridge{}
		stream.mu.Unlock()
		for _, bridge := range bridges {
			bridge.terminate()
		}
	}
}

/*************************************************************************************************/
/* BACKGROUND TASKS                                                                              */
/*************************************************************************************************/

// # Description
//
// Background task which establishes the connection. The stream registers itself as the single
// listener of the transport: once Connect returns nil, the transport drives the state machine
// through OnOpen/OnMessage/OnClose. If the websocket handshake fails, no close event will ever
// fire and the failure is routed to the ready future as an abnormal pre-open closure.
func (stream *WebsocketStream) connect(ctx context.Context) {
	// Start span
	ctx, span := stream.tracer.Start(ctx, spanStreamConnect,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(attrUrl, stream.target.String()),
		))
	defer span.End()
	// Open the websocket connection
	err := stream.transport.Connect(ctx, *stream.target, stream.opts.Protocols, stream)
	if err != nil {
		// Reject ready: the connection failed before ever opening. The closed future remains
		// permanently unsettled, consistent with an abnormal pre-open closure.
		stream.ready.reject(WebsocketClosedError{
			Info: CloseInfo{
				Code:   wstransports.AbnormalClosure,
				Reason: "websocket handshake failed",
			},
			Err: err,
		})
		handleError(err, span, codes.Error, codes.Error.String())
		return
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
}

// # Description
//
// Background task which maps the cancellation of the stream context to a close request with the
// NormalClosure status code. The request flows through the same close-event path as an explicit
// Close call: no separate cancellation-error path exists.
func (stream *WebsocketStream) watchCancellation(ctx context.Context) {
	select {
	case <-ctx.Done():
		stream.requestCancellationClose()
	case <-stream.closed.Done():
		// Connection already terminated, nothing to do
	case <-stream.ready.Done():
		if _, err := stream.ready.wait(context.Background()); err == nil {
			// Connection opened: keep watching
			select {
			case <-ctx.Done():
				stream.requestCancellationClose()
			case <-stream.closed.Done():
			}
		}
		// Ready rejected: the connection failed before opening and no close request will ever
		// be needed.
	}
}

// Request the cancellation closure. A transport only accepts close requests once a connection
// exists: when the cancellation signal fires while the connection is still being established,
// the request is deferred until the connection opens. A canceled stream context also aborts the
// pending handshake, so the connect outcome always settles one of the two futures.
func (stream *WebsocketStream) requestCancellationClose() {
	select {
	case <-stream.ready.Done():
		if _, err := stream.ready.wait(context.Background()); err == nil {
			// Request a normal closure. Use a fresh context: the triggering one is already done.
			_ = stream.requestClose(context.Background(), wstransports.NormalClosure, stream.opts.CancellationCloseReason)
		}
		// Ready rejected: the connection failed before opening, there is nothing to close.
	case <-stream.closed.Done():
		// Connection already terminated, nothing to do
	}
}

/*************************************************************************************************/
/* UTILS                                                                                         */
/*************************************************************************************************/

// Request transport closure. The first request the transport accepts (from Close, Listen or the
// cancellation signal) fixes the close cause; once a request has been accepted, subsequent
// requests are no-ops. A rejected request (no connection established yet, for instance) does not
// burn the close request: a later attempt may still go through. Concurrent first attempts are
// deduplicated by the transport itself, which honors only its first close request.
func (stream *WebsocketStream) requestClose(ctx context.Context, code wstransports.StatusCode, reason string) error {
	stream.mu.Lock()
	requested := stream.closeRequested
	stream.mu.Unlock()
	if requested {
		return nil
	}
	err := stream.transport.RequestClose(ctx, code, reason)
	if err != nil {
		return err
	}
	stream.mu.Lock()
	stream.closeRequested = true
	stream.mu.Unlock()
	return nil
}

// Remove a bridge from message delivery. No-op if the bridge is not subscribed anymore.
func (stream *WebsocketStream) unsubscribe(id string) {
	stream.mu.Lock()
	defer stream.mu.Unlock()
	delete(stream.bridges, id)
}

// # Description
//
// Mint a new, independent message bridge subscribed to the inbound message stream.
//
// Each bridge observes every message received from its creation on: two concurrently open
// bridges both observe the same messages (one-to-many delivery, not queue-competing consumers).
// A bridge created after the connection terminated is born exhausted: its first Next call
// returns the terminal marker.
//
// # Return
//
// A new message bridge.
func (stream *WebsocketStream) NewMessageBridge() *MessageBridge {
	// Build bridge
	bridge := &MessageBridge{
		id:             uuid.New().String(),
		stream:         stream,
		buffer:         nil,
		waiter:         nil,
		terminated:     false,
		terminatedChan: make(chan struct{}),
	}
	// Subscribe unless the connection already terminated
	stream.mu.Lock()
	if stream.closed.isSettled() {
		bridge.terminated = true
		close(bridge.terminatedChan)
	} else {
		stream.bridges[bridge.id] = bridge
	}
	stream.mu.Unlock()
	return bridge
}
