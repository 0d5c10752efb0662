package wsstream

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

/*************************************************************************************************/
/* TRACING RELATED CONSTANTS                                                                     */
/*************************************************************************************************/

// Constants used for tracing purpose.
const (
	// Package name used by library tracer
	pkgName = "wsstream"
	// Package version
	pkgVersion = "0.0.0"

	// Namespace used by spans, events and attributes
	namespace = "wsstream"
	// Sub-namespace used by spans related to message bridges
	bridgeNamespace = namespace + ".bridge"

	// Name of span used to trace the background connect task
	spanStreamConnect = namespace + ".connect"
	// Name of span used to trace Close public method
	spanStreamClose = namespace + ".close"
	// Name of span used to trace Listen helper
	spanStreamListen = namespace + ".listen"
	// Name of span used to trace bridge Next method
	spanBridgeNext = bridgeNamespace + ".next"

	// Event used in span to signal the connection reached the open state
	eventStreamOpen = namespace + ".open"
	// Event used in span to signal the connection terminated
	eventStreamClosed = namespace + ".closed"

	// Attribute used to provide a url
	attrUrl = "url.full"
	// Attribute used to indicate a close status code
	attrCloseCode = namespace + ".close_code"
	// Attribute used to indicate a close reason
	attrCloseReason = namespace + ".close_reason"
	// Attribute used to indicate whether the closing handshake completed
	attrWasClean = namespace + ".was_clean"
	// Attribute used to indicate whether the connection had reached the open state
	attrHadOpened = namespace + ".had_opened"
	// Attribute used to store a bridge subscription id
	attrBridgeId = bridgeNamespace + ".id"
	// Attribute used to indicate whether a pulled message is the terminal marker
	attrBridgeTerminal = bridgeNamespace + ".terminal"
)

// # Description
//
// The function records the input error in the provided span using span.RecordError(err) and set
// the span status with the provided code and description. The function returns the provided error.
func handleError(err error, span trace.Span, code codes.Code, description string) error {
	span.RecordError(err)
	span.SetStatus(code, description)
	return err
}
