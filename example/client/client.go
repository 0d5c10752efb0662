package client

import (
	"context"
	"fmt"

	"gitlab.com/lake42/go-websocket-stream/wsstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Example client which runs a short echo conversation over a websocket stream and uses a logger
// as sink for received messages.
type ExampleClientImpl struct {
	// Logger used by the client implementation to print received messages
	logger *zap.Logger
	// Tracer used by the client implementation to trace the conversation
	tracer trace.Tracer
}

// # Description
//
// Factory which creates a new ExampleClientImpl.
//
// # Inputs
//
//   - logger: Logger used to print received messages and events. Use a Nop logger if nil.
//   - tracerProvider: Tracer provider to use to get a tracer to instrument client. Use global tracer provider if nil.
//
// # Returns
//
// A new ExampleClientImpl.
func NewExampleClientImpl(logger *zap.Logger, tracerProvider trace.TracerProvider) *ExampleClientImpl {
	if logger == nil {
		// Use Nop logger if nil is provided
		logger = zap.NewNop()
	}
	if tracerProvider == nil {
		// Use global tracer provider if nil is provided
		tracerProvider = otel.GetTracerProvider()
	}
	// Build and return client
	return &ExampleClientImpl{
		logger: logger,
		tracer: tracerProvider.Tracer("wsstream.example"),
	}
}

// # Description
//
// Run a short echo conversation over the provided stream: send a handful of messages and pull
// back their echoes through a message bridge. The method suspends until the connection is open
// and returns the number of echoes received.
func (client *ExampleClientImpl) Run(ctx context.Context, stream *wsstream.WebsocketStream) (int, error) {
	return wsstream.Listen(ctx, stream,
		func(ctx context.Context, source wsstream.MessageBridgeSource) (int, error) {
			// Start a new span
			ctx, span := client.tracer.Start(ctx, "wsstream.example.run", trace.WithSpanKind(trace.SpanKindClient))
			defer span.End()
			// Mint a bridge before sending so no echo can slip past the subscription
			bridge := source.NewMessageBridge()
			defer bridge.Stop()
			// Send a handful of messages
			count := 5
			for i := 0; i < count; i = i + 1 {
				err := source.SendText(ctx, fmt.Sprintf("hello %d", i))
				if err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, codes.Error.String())
					return 0, err
				}
			}
			// Pull the echoes back
			received := 0
			for received < count {
				msg, ok, err := bridge.Next(ctx)
				if err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, codes.Error.String())
					return received, err
				}
				if !ok {
					// Connection terminated before all echoes were received
					err = fmt.Errorf("connection terminated after %d echoes", received)
					span.RecordError(err)
					span.SetStatus(codes.Error, codes.Error.String())
					return received, err
				}
				client.logger.Info("echo received",
					zap.Int("message_type", int(msg.Type)),
					zap.String("message", string(msg.Payload)))
				received = received + 1
			}
			span.SetStatus(codes.Ok, codes.Ok.String())
			return received, nil
		})
}
