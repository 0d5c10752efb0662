// The package defines the boundary between the websocket stream and the underlying websocket
// transport implementations.
package wstransports

import (
	"context"
	"net/url"
)

// Interface which describes the callbacks a websocket transport fires to notify its single
// listener about connection lifecycle events and incoming messages.
//
// Callbacks are fired sequentially, from a single transport goroutine: OnOpen is fired at most
// once and always before any OnMessage. OnClose is fired exactly once after a successful Connect
// and is the last event the listener will ever observe.
type WebsocketEventListenerInterface interface {
	// # Description
	//
	// Callback fired once when the connection reaches the open state. No OnMessage callback will
	// be fired before OnOpen.
	//
	// # Inputs
	//
	//	- ctx: Context used for tracing purpose.
	OnOpen(ctx context.Context)
	// # Description
	//
	// Callback fired each time a data message is received. Fired zero or more times, only
	// between OnOpen and OnClose. Delivery order matches the order in which messages were
	// received from the server.
	//
	// # Inputs
	//
	//	- ctx: Context used for tracing purpose.
	//	- msgType: Received message type (Binary | Text).
	//	- payload: Message content.
	OnMessage(ctx context.Context, msgType MessageType, payload []byte)
	// # Description
	//
	// Callback fired exactly once when the connection terminates, whatever the termination
	// cause. No other callback will ever be fired afterwards.
	//
	// # Inputs
	//
	//	- ctx: Context used for tracing purpose.
	//	- code: Close status code reported by the transport. AbnormalClosure (1006) when the
	//	  connection was severed without a close frame.
	//	- reason: Optional close reason. Can be empty.
	//	- wasClean: True when the closing handshake completed, false when the connection was
	//	  terminated without a completed closing handshake.
	OnClose(ctx context.Context, code StatusCode, reason string, wasClean bool)
}

// Interface which describes the methods and behaviour the websocket stream expects from the
// underlying websocket transport implementation.
//
// Transports are assumed to be thread-safe. Thread safety must be ensured either by the
// transport implementation or by the underlying websocket connection library.
type WebsocketTransportInterface interface {
	// # Description
	//
	// Connect opens a connection to the websocket server, performs the websocket handshake and
	// registers the provided listener as the single receiver of connection events.
	//
	// # Expected behaviour
	//
	//	- Connect MUST block until the websocket handshake completes. Handshake and TLS must be
	//	  handled seamlessly either by the transport implementation or by the underlying
	//	  websocket library.
	//
	//	- Once Connect has returned nil, the transport MUST fire OnOpen exactly once before any
	//	  other callback, then OnMessage zero or more times in reception order, then OnClose
	//	  exactly once as the final event.
	//
	//	- Connect MUST return an error in case a connection has already been established.
	//
	//	- If the handshake fails, Connect MUST return an error and MUST NOT fire any callback.
	//
	// # Inputs
	//
	//	- ctx: Context used for tracing/timeout purpose.
	//	- target: Target server URL.
	//	- protocols: Optional list of subprotocols to negotiate. Can be empty.
	//	- listener: Receiver of connection events. Must not be nil.
	//
	// # Returns
	//
	// Nil in case of success, an error otherwise.
	Connect(ctx context.Context, target url.URL, protocols []string, listener WebsocketEventListenerInterface) error
	// # Description
	//
	// Send a single message to the websocket server. Send blocks until the message is handed to
	// the underlying connection or until an error occurs: context timeout, cancellation,
	// connection closed, ...
	//
	// # Expected behaviour
	//
	//	- Send MUST handle seamlessly message fragmentation, compression and TLS encryption. It
	//	  is up to the transport implementation or to the underlying websocket library to handle
	//	  these features.
	//
	//	- Send MUST NOT be used to send control frames like Close, Ping, etc...
	//
	// # Inputs
	//
	//	- ctx: Context used for tracing/timeout purpose.
	//	- msgType: Message type (Binary | Text).
	//	- payload: Message content.
	//
	// # Returns
	//
	// Nil in case of success, an error in case of connection closure, context
	// timeout/cancellation or failure.
	Send(ctx context.Context, msgType MessageType, payload []byte) error
	// # Description
	//
	// Initiate the closing handshake with the provided status code and an optional close reason.
	//
	// # Expected behaviour
	//
	//	- The first RequestClose call fixes the close cause: subsequent calls MUST be no-ops so
	//	  the cause reported by OnClose cannot be changed once a closure has been requested.
	//
	//	- RequestClose MUST NOT prevent the OnClose callback from firing: the termination of the
	//	  connection is always reported through OnClose.
	//
	//	- RequestClose called while no connection is established MUST return an error.
	//
	// # Inputs
	//
	//	- ctx: Context used for tracing purpose.
	//	- code: Status code to use in the close message.
	//	- reason: Optional reason joined in the close message. Can be empty.
	//
	// # Returns
	//
	// Nil in case of success, an error otherwise.
	RequestClose(ctx context.Context, code StatusCode, reason string) error
	// Return the message type used when payloads are sent without an explicit type.
	BinaryType() MessageType
	// Set the message type used when payloads are sent without an explicit type.
	SetBinaryType(msgType MessageType)
	// Return the number of bytes handed to Send which have not been written out to the
	// underlying connection yet.
	BufferedAmount() int64
	// Return the extensions negotiated during the websocket handshake. Empty string when no
	// connection has been established yet.
	Extensions() string
	// Return the subprotocol negotiated during the websocket handshake. Empty string when no
	// subprotocol has been negotiated.
	Protocol() string
	// Return the current connection state as reported by the transport.
	State() ConnectionState
	// Return the resolved target URL. Nil when no connection attempt has been made yet.
	Url() *url.URL
}
