package wsstream

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gitlab.com/lake42/go-websocket-stream/wsstream/wstransports"
)

// Capability handed to Listen handlers: it mints independent message bridges over the stream
// connection and sends messages, nothing more.
type MessageBridgeSource interface {
	// Mint a new, independent message bridge over the inbound message stream.
	NewMessageBridge() *MessageBridge
	// Send a single message with the current binary message type.
	Send(ctx context.Context, payload []byte) error
	// Send a single text message.
	SendText(ctx context.Context, payload string) error
}

// Compile time check: the stream must satisfy the capability handed to handlers.
var _ MessageBridgeSource = (*WebsocketStream)(nil)

// # Description
//
// Run a handler against an open connection.
//
// Listen suspends until the connection reaches the open state, propagating the rejection of the
// ready future if the connection failed before ever opening. It then invokes the provided
// handler with a capability which can mint message bridges. If the handler returns an error,
// Listen requests connection closure with the ApplicationFailure status code and returns the
// handler error unchanged. Otherwise Listen returns the handler result.
//
// Listen does not close the connection on success: the handler (or its caller) decides when the
// conversation ends.
//
// # Inputs
//
//   - ctx: Context used for tracing purpose and to abandon the waits.
//   - stream: Stream to listen on.
//   - handler: User code run against the open connection.
//
// # Return
//
// The handler result, the ready rejection or the handler error.
func Listen[T any](
	ctx context.Context,
	stream *WebsocketStream,
	handler func(ctx context.Context, source MessageBridgeSource) (T, error)) (T, error) {
	var zero T
	// Start span
	ctx, span := stream.tracer.Start(ctx, spanStreamListen,
		trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	// Suspend until the connection is open, propagating a pre-open failure
	err := stream.Ready(ctx)
	if err != nil {
		return zero, handleError(err, span, codes.Error, codes.Error.String())
	}
	// Run the handler against the open connection
	result, err := handler(ctx, stream)
	if err != nil {
		// Request closure with the reserved application failure code, then re-raise the
		// handler error unchanged.
		closeErr := stream.requestClose(ctx, wstransports.ApplicationFailure, "handler failed")
		if closeErr != nil {
			span.RecordError(closeErr)
		}
		return zero, handleError(err, span, codes.Error, codes.Error.String())
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	return result, nil
}
