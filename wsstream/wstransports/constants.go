// The package defines the boundary between the websocket stream and the underlying websocket
// transport implementations.
package wstransports

/*************************************************************************************************/
/* WEBSOCKET RELATED CONSTANTS                                                                   */
/*************************************************************************************************/

// Constants for RFC6455 defined close status codes plus library reserved codes.
//
// RFC: https://www.rfc-editor.org/rfc/rfc6455.html#section-7.4.1
//
// Code names are inspired by: https://www.iana.org/assignments/websocket/websocket.xhtml
type StatusCode int

const (
	// 1000 indicates a normal closure, meaning that the purpose for
	// which the connection was established has been fulfilled.
	NormalClosure StatusCode = iota + 1000
	// 1001 indicates that an endpoint is "going away", such as a server
	// going down or a browser having navigated away from a page.
	GoingAway
	// 1002 indicates that an endpoint is terminating the connection due
	// to a protocol error.
	ProtocolError
	// 1003 indicates that an endpoint is terminating the connection
	// because it has received a type of data it cannot accept.
	UnsupportedData
	// 1005 is a reserved value and MUST NOT be set as a status code in a
	// Close control frame by an endpoint. It is designated for use in
	// applications expecting a status code to indicate that no status
	// code was actually present.
	NoStatusReceived StatusCode = iota + 1000 + 1 // Skip 1004
	// 1006 is a reserved value and MUST NOT be set as a status code in a
	// Close control frame by an endpoint. It is designated for use in
	// applications expecting a status code to indicate that the
	// connection was closed abnormally, e.g., without sending or
	// receiving a Close control frame.
	AbnormalClosure
	// 1007 indicates that an endpoint is terminating the connection
	// because it has received data within a message that was not
	// consistent with the type of the message.
	InvalidFramePayloadData
	// 1008 indicates that an endpoint is terminating the connection
	// because it has received a message that violates its policy.
	PolicyViolation
	// 1009 indicates that an endpoint is terminating the connection
	// because it has received a message that is too big for it to
	// process.
	MessageTooBig
	// 1010 indicates that an endpoint (client) is terminating the
	// connection because it has expected the server to negotiate one or
	// more extension, but the server didn't return them in the response
	// message of the WebSocket handshake.
	MandatoryExtension
	// 1011 indicates that a server is terminating the connection because
	// it encountered an unexpected condition that prevented it from
	// fulfilling the request.
	InternalError
	// 1015 is a reserved value and MUST NOT be set as a status code in a
	// Close control frame by an endpoint. It is designated for use in
	// applications expecting a status code to indicate that the
	// connection was closed due to a failure to perform a TLS handshake.
	TLSHandshake StatusCode = iota + 1000 + 4 // Skip 1012 to 1014
	// 4000 belongs to the private use range defined by RFC6455 section 7.4.2. The library
	// reserves it to close the connection when a user provided handler fails.
	ApplicationFailure StatusCode = 4000
)

// Websocket message types which can be sent or received.
//
// Codes mimic RFC6455 frame opcodes. Control frames like continuation, close, ping & pong are
// excluded: the underlying websocket library is expected to seamlessly handle message
// fragmentation and control frames.
//
// https://datatracker.ietf.org/doc/html/rfc6455#section-5.6
type MessageType int

const (
	// Denotes a text message
	Text MessageType = iota + 1
	// Denotes a binary message
	Binary
)

// Lifecycle states reported by a websocket transport.
//
// States mirror the readyState values defined by the WHATWG WebSocket interface:
// https://websockets.spec.whatwg.org/#interface-definition
type ConnectionState int

const (
	// Connection has not been established yet.
	Connecting ConnectionState = iota
	// Connection is established: messages can be sent and received.
	Open
	// Closing handshake has been initiated and has not completed yet.
	Closing
	// Connection is fully closed or could not be established at all.
	Closed
)

// Provide a text representation of the connection state, mainly for tracing purpose.
func (state ConnectionState) String() string {
	switch state {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	default:
		return "closed"
	}
}
