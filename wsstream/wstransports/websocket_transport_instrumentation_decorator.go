package wstransports

import (
	"context"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// A decorator which can be used to automatically instrument implementations of
// WebsocketTransportInterface.
//
// The decorator creates spans around Connect, Send and RequestClose calls and around listener
// callback deliveries. It also maintains counters for sent/received messages and bytes.
type WebsocketTransportInstrumentationDecorator struct {
	// Decorated WebsocketTransportInterface implementation
	decorated WebsocketTransportInterface
	// Tracer used for instrumentation
	tracer trace.Tracer
	// Counter of sent messages
	sentMessages metric.Int64Counter
	// Counter of sent bytes
	sentBytes metric.Int64Counter
	// Counter of received messages
	receivedMessages metric.Int64Counter
	// Counter of received bytes
	receivedBytes metric.Int64Counter
}

// # Description
//
// Create a new decorator which will automatically instrument the provided implementation of
// WebsocketTransportInterface.
//
// # Inputs
//
//   - decorated: Transport implementation to decorate. Must not be nil.
//   - tracerProvider: Tracer provider to use. If nil, the global TracerProvider is used.
//   - meterProvider: Meter provider to use. If nil, the global MeterProvider is used.
//
// # Returns
//
// The decorator or an error if instruments could not be created.
func NewWebsocketTransportInstrumentationDecorator(
	decorated WebsocketTransportInterface,
	tracerProvider trace.TracerProvider,
	meterProvider metric.MeterProvider,
) (*WebsocketTransportInstrumentationDecorator, error) {
	// Use global providers as defaults
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	if meterProvider == nil {
		meterProvider = otel.GetMeterProvider()
	}
	// Create instruments
	meter := meterProvider.Meter(pkgName, metric.WithInstrumentationVersion(pkgVersion))
	sentMessages, err := meter.Int64Counter(metricSentMessages)
	if err != nil {
		return nil, err
	}
	sentBytes, err := meter.Int64Counter(metricSentBytes)
	if err != nil {
		return nil, err
	}
	receivedMessages, err := meter.Int64Counter(metricReceivedMessages)
	if err != nil {
		return nil, err
	}
	receivedBytes, err := meter.Int64Counter(metricReceivedBytes)
	if err != nil {
		return nil, err
	}
	// Build and return decorator
	return &WebsocketTransportInstrumentationDecorator{
		decorated:        decorated,
		tracer:           tracerProvider.Tracer(pkgName, trace.WithInstrumentationVersion(pkgVersion)),
		sentMessages:     sentMessages,
		sentBytes:        sentBytes,
		receivedMessages: receivedMessages,
		receivedBytes:    receivedBytes,
	}, nil
}

// Decorate and instrument the Connect method of a WebsocketTransportInterface implementation.
// The provided listener is wrapped so callback deliveries are instrumented as well.
func (decorator *WebsocketTransportInstrumentationDecorator) Connect(
	ctx context.Context,
	target url.URL,
	protocols []string,
	listener WebsocketEventListenerInterface) error {
	// Start span
	ctx, span := decorator.tracer.Start(ctx, spanConnect,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(attrUrl, target.String()),
			attribute.String(attrProtocols, strings.Join(protocols, ",")),
		))
	defer span.End()
	// Wrap listener so callbacks are instrumented
	wrapped := &websocketEventListenerInstrumentationDecorator{
		decorated: listener,
		decorator: decorator,
	}
	// Call decorated Connect method
	err := decorator.decorated.Connect(ctx, target, protocols, wrapped)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, codes.Error.String())
	}
	return err
}

// Decorate and instrument the Send method of a WebsocketTransportInterface implementation.
func (decorator *WebsocketTransportInstrumentationDecorator) Send(ctx context.Context, msgType MessageType, payload []byte) error {
	// Start span
	ctx, span := decorator.tracer.Start(ctx, spanSend,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int(attrMessageByteSize, len(payload)),
			attribute.Int(attrMessageType, int(msgType)),
		))
	defer span.End()
	// Call decorated Send method
	err := decorator.decorated.Send(ctx, msgType, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, codes.Error.String())
	} else {
		// Record sent message metrics
		decorator.sentMessages.Add(ctx, 1)
		decorator.sentBytes.Add(ctx, int64(len(payload)))
	}
	return err
}

// Decorate and instrument the RequestClose method of a WebsocketTransportInterface implementation.
func (decorator *WebsocketTransportInstrumentationDecorator) RequestClose(ctx context.Context, code StatusCode, reason string) error {
	// Start span
	ctx, span := decorator.tracer.Start(ctx, spanRequestClose,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int(attrCloseCode, int(code)),
			attribute.String(attrCloseReason, reason),
		))
	defer span.End()
	// Call decorated RequestClose method
	err := decorator.decorated.RequestClose(ctx, code, reason)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, codes.Error.String())
	}
	return err
}

// Simple proxy for non-instrumented getter
func (decorator *WebsocketTransportInstrumentationDecorator) BinaryType() MessageType {
	return decorator.decorated.BinaryType()
}

// Simple proxy for non-instrumented setter
func (decorator *WebsocketTransportInstrumentationDecorator) SetBinaryType(msgType MessageType) {
	decorator.decorated.SetBinaryType(msgType)
}

// Simple proxy for non-instrumented getter
func (decorator *WebsocketTransportInstrumentationDecorator) BufferedAmount() int64 {
	return decorator.decorated.BufferedAmount()
}

// Simple proxy for non-instrumented getter
func (decorator *WebsocketTransportInstrumentationDecorator) Extensions() string {
	return decorator.decorated.Extensions()
}

// Simple proxy for non-instrumented getter
func (decorator *WebsocketTransportInstrumentationDecorator) Protocol() string {
	return decorator.decorated.Protocol()
}

// Simple proxy for non-instrumented getter
func (decorator *WebsocketTransportInstrumentationDecorator) State() ConnectionState {
	return decorator.decorated.State()
}

// Simple proxy for non-instrumented getter
func (decorator *WebsocketTransportInstrumentationDecorator) Url() *url.URL {
	return decorator.decorated.Url()
}

/*************************************************************************************************/
/* LISTENER DECORATOR                                                                            */
/*************************************************************************************************/

// Internal decorator which instruments callback deliveries to the listener provided to Connect.
type websocketEventListenerInstrumentationDecorator struct {
	// Decorated listener
	decorated WebsocketEventListenerInterface
	// Parent transport decorator which owns the tracer and the instruments
	decorator *WebsocketTransportInstrumentationDecorator
}

// Decorate and instrument OnOpen callback delivery.
func (listener *websocketEventListenerInstrumentationDecorator) OnOpen(ctx context.Context) {
	ctx, span := listener.decorator.tracer.Start(ctx, spanOnOpen,
		trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	listener.decorated.OnOpen(ctx)
}

// Decorate and instrument OnMessage callback delivery.
func (listener *websocketEventListenerInstrumentationDecorator) OnMessage(ctx context.Context, msgType MessageType, payload []byte) {
	ctx, span := listener.decorator.tracer.Start(ctx, spanOnMessage,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int(attrMessageByteSize, len(payload)),
			attribute.Int(attrMessageType, int(msgType)),
		))
	defer span.End()
	// Record received message metrics
	listener.decorator.receivedMessages.Add(ctx, 1)
	listener.decorator.receivedBytes.Add(ctx, int64(len(payload)))
	listener.decorated.OnMessage(ctx, msgType, payload)
}

// Decorate and instrument OnClose callback delivery.
func (listener *websocketEventListenerInstrumentationDecorator) OnClose(ctx context.Context, code StatusCode, reason string, wasClean bool) {
	ctx, span := listener.decorator.tracer.Start(ctx, spanOnClose,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int(attrCloseCode, int(code)),
			attribute.String(attrCloseReason, reason),
			attribute.Bool(attrCloseWasClean, wasClean),
		))
	defer span.End()
	listener.decorated.OnClose(ctx, code, reason, wasClean)
}
