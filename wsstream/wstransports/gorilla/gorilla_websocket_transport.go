// Package which contains a WebsocketTransportInterface implementation for gorilla/websocket
// library (https://github.com/gorilla/websocket).
package wstransportgorilla

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"gitlab.com/lake42/go-websocket-stream/wsstream/wstransports"
)

// Write deadline used when sending the close control message.
const closeWriteTimeout = 60 * time.Second

// Transport implementation for gorilla/websocket library.
//
// The transport converts the pull-based API of the underlying library into the push-based
// contract of WebsocketTransportInterface: one internal goroutine continuously reads the
// connection and fires the listener callbacks sequentially.
type GorillaWebsocketTransport struct {
	// Dialer to use when opening a connection
	dialer *websocket.Dialer
	// Headers to use when opening a connection
	requestHeader http.Header
	// Underlying websocket connection
	conn *websocket.Conn
	// Resolved target URL
	target *url.URL
	// Extensions negotiated during the websocket handshake
	extensions string
	// Subprotocol negotiated during the websocket handshake
	protocol string
	// Message type used when payloads are sent without an explicit type
	binaryType wstransports.MessageType
	// Current connection state
	state wstransports.ConnectionState
	// Set once a close request has been issued. The first request fixes the close cause.
	closeRequested bool
	// Status code of the first close request
	requestedCode wstransports.StatusCode
	// Reason of the first close request
	requestedReason string
	// Number of bytes handed to Send which have not been written out yet
	bufferedAmount atomic.Int64
	// Guards writes to the connection: gorilla supports at most one concurrent writer
	writeMu sync.Mutex
	// Internal mutex
	mu sync.Mutex
}

// # Description
//
// Factory which creates a new GorillaWebsocketTransport.
//
// # Inputs
//
//   - dialer: Optional dialer to use when using Connect method. If nil, the default dialer
//     defined by gorilla library will be used.
//
//   - requestHeader: Headers which will be used during Connect to specify the origin (Origin)
//     and cookies (Cookie). Can be nil.
//
// # Returns
//
// New GorillaWebsocketTransport
func NewGorillaWebsocketTransport(dialer *websocket.Dialer, requestHeader http.Header) *GorillaWebsocketTransport {
	if dialer == nil {
		// Use default dialer if nil
		dialer = websocket.DefaultDialer
	}
	// Build and return transport
	return &GorillaWebsocketTransport{
		dialer:        dialer,
		requestHeader: requestHeader,
		conn:          nil,
		binaryType:    wstransports.Binary,
		state:         wstransports.Connecting,
	}
}

// # Description
//
// Connect opens a connection to the websocket server, performs the websocket handshake and
// starts the internal goroutine which reads the connection and fires the listener callbacks:
// OnOpen once, then OnMessage for each received message, then OnClose once as the final event.
//
// # Inputs
//
//   - ctx: Context used for tracing/timeout purpose. Bound to the handshake only: the
//     established connection outlives it.
//   - target: Target server URL.
//   - protocols: Optional list of subprotocols to negotiate. Can be empty.
//   - listener: Receiver of connection events. Must not be nil.
//
// # Returns
//
// Nil in case of success, an error if the handshake failed or if a connection has already been
// established. No callback is ever fired when an error is returned.
func (transport *GorillaWebsocketTransport) Connect(
	ctx context.Context,
	target url.URL,
	protocols []string,
	listener wstransports.WebsocketEventListenerInterface) error {
	// Check provided listener is not nil
	if listener == nil {
		return fmt.Errorf("provided listener is nil")
	}
	// Lock internal mutex before accessing internal state
	transport.mu.Lock()
	defer transport.mu.Unlock()
	// Check whether there is already a connection set
	if transport.conn != nil {
		return fmt.Errorf("a connection has already been established")
	}
	// Merge requested subprotocols into the dialer
	dialer := *transport.dialer
	if len(protocols) > 0 {
		dialer.Subprotocols = protocols
	}
	// Open websocket connection
	conn, resp, err := dialer.DialContext(ctx, target.String(), transport.requestHeader)
	if err != nil {
		transport.state = wstransports.Closed
		return err
	}
	// Persist connection data internally
	transport.conn = conn
	transport.target = &target
	transport.protocol = conn.Subprotocol()
	if resp != nil {
		transport.extensions = strings.Join(resp.Header.Values("Sec-WebSocket-Extensions"), ", ")
	}
	transport.state = wstransports.Open
	// Start the goroutine which reads the connection and fires callbacks
	go transport.run(conn, listener)
	return nil
}

// # Description
//
// Send a single message to the websocket server.
//
// # Inputs
//
//   - ctx: Context used for tracing purpose.
//   - msgType: Message type (Binary | Text).
//   - payload: Message content.
//
// # Returns
//
// Nil in case of success, an error in case of connection closure or failure.
func (transport *GorillaWebsocketTransport) Send(ctx context.Context, msgType wstransports.MessageType, payload []byte) error {
	// Lock internal mutex and store current conn reference in a local variable to allow other
	// goroutines to perform other operations on the connection.
	transport.mu.Lock()
	conn := transport.conn
	transport.mu.Unlock()
	// Check whether there is a connection set
	if conn == nil {
		return fmt.Errorf("send failed because no connection is established")
	}
	// Account the payload as buffered until it has been written out
	transport.bufferedAmount.Add(int64(len(payload)))
	defer transport.bufferedAmount.Add(-int64(len(payload)))
	// Serialize writes: gorilla supports at most one concurrent writer
	transport.writeMu.Lock()
	defer transport.writeMu.Unlock()
	return conn.WriteMessage(convertToGorillaMsgTypes(msgType), payload)
}

// # Description
//
// Initiate the closing handshake with the provided status code and an optional close reason.
// The first close request fixes the close cause: subsequent requests are no-ops. The
// termination of the connection is reported through the listener OnClose callback.
//
// # Inputs
//
//   - ctx: Context used for tracing purpose.
//   - code: Status code to use in the close message.
//   - reason: Optional reason joined in the close message. Can be empty.
//
// # Returns
//
// Nil in case of success, an error otherwise.
func (transport *GorillaWebsocketTransport) RequestClose(ctx context.Context, code wstransports.StatusCode, reason string) error {
	// Lock internal mutex before accessing internal state
	transport.mu.Lock()
	// Check whether there is a connection set
	if transport.conn == nil {
		transport.mu.Unlock()
		return fmt.Errorf("close request failed because no connection is established")
	}
	// Only the first close request goes through
	if transport.closeRequested {
		transport.mu.Unlock()
		return nil
	}
	transport.closeRequested = true
	transport.requestedCode = code
	transport.requestedReason = reason
	transport.state = wstransports.Closing
	conn := transport.conn
	transport.mu.Unlock()
	// Send the close message. The read goroutine observes the closure and fires OnClose.
	return conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(int(code), reason),
		time.Now().Add(closeWriteTimeout))
}

// Return the message type used when payloads are sent without an explicit type.
func (transport *GorillaWebsocketTransport) BinaryType() wstransports.MessageType {
	transport.mu.Lock()
	defer transport.mu.Unlock()
	return transport.binaryType
}

// Set the message type used when payloads are sent without an explicit type.
func (transport *GorillaWebsocketTransport) SetBinaryType(msgType wstransports.MessageType) {
	transport.mu.Lock()
	defer transport.mu.Unlock()
	transport.binaryType = msgType
}

// Return the number of bytes handed to Send which have not been written out yet.
func (transport *GorillaWebsocketTransport) BufferedAmount() int64 {
	return transport.bufferedAmount.Load()
}

// Return the extensions negotiated during the websocket handshake.
func (transport *GorillaWebsocketTransport) Extensions() string {
	transport.mu.Lock()
	defer transport.mu.Unlock()
	return transport.extensions
}

// Return the subprotocol negotiated during the websocket handshake.
func (transport *GorillaWebsocketTransport) Protocol() string {
	transport.mu.Lock()
	defer transport.mu.Unlock()
	return transport.protocol
}

// Return the current connection state.
func (transport *GorillaWebsocketTransport) State() wstransports.ConnectionState {
	transport.mu.Lock()
	defer transport.mu.Unlock()
	return transport.state
}

// Return the resolved target URL. Nil when no connection attempt has been made yet.
func (transport *GorillaWebsocketTransport) Url() *url.URL {
	transport.mu.Lock()
	defer transport.mu.Unlock()
	return transport.target
}

/*************************************************************************************************/
/* READ GOROUTINE                                                                                */
/*************************************************************************************************/

// Goroutine task which continuously reads the connection and fires the listener callbacks. The
// goroutine exits when the connection terminates, after firing OnClose as the final event.
func (transport *GorillaWebsocketTransport) run(conn *websocket.Conn, listener wstransports.WebsocketEventListenerInterface) {
	// Use a fresh context: the connection lifetime is not bound to the Connect context.
	ctx := context.Background()
	// Fire the open event before any message event
	listener.OnOpen(ctx)
	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			// Build the close cause, drop the connection and fire the final close event
			closeErr := transport.closeCause(err)
			transport.mu.Lock()
			transport.conn = nil
			transport.state = wstransports.Closed
			transport.mu.Unlock()
			// Release the underlying network connection
			conn.Close()
			listener.OnClose(ctx, closeErr.Code, closeErr.Reason, closeErr.WasClean)
			return
		}
		listener.OnMessage(ctx, convertFromGorillaMsgTypes(msgType), payload)
	}
}

// Build the close cause from the error returned by conn.ReadMessage when the connection
// terminates.
//
// A received close frame carries its own status code and reason and means the closing handshake
// completed. When the connection drops without a close frame but a local close request was
// issued, the requested cause is reported as a clean closure: the close message has already
// been sent. Anything else is a 1006 abnormal closure.
func (transport *GorillaWebsocketTransport) closeCause(err error) wstransports.WebsocketCloseError {
	closeErr := &websocket.CloseError{}
	if errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure {
		return wstransports.WebsocketCloseError{
			Code:     wstransports.StatusCode(closeErr.Code),
			Reason:   closeErr.Text,
			WasClean: true,
			Err:      err,
		}
	}
	transport.mu.Lock()
	requested := transport.closeRequested
	code := transport.requestedCode
	reason := transport.requestedReason
	transport.mu.Unlock()
	if requested {
		return wstransports.WebsocketCloseError{
			Code:     code,
			Reason:   reason,
			WasClean: true,
			Err:      err,
		}
	}
	return wstransports.WebsocketCloseError{
		Code:     wstransports.AbnormalClosure,
		Reason:   "websocket connection abnormal closure",
		WasClean: false,
		Err:      err,
	}
}

/*************************************************************************************************/
/* UTILS                                                                                         */
/*************************************************************************************************/

// Convert message types from MessageType to gorilla specific types. Default to binary message
// type if no match.
func convertToGorillaMsgTypes(msgType wstransports.MessageType) int {
	if msgType == wstransports.Text {
		return websocket.TextMessage
	}
	return websocket.BinaryMessage
}

// Convert message types from gorilla specific types to MessageType. Default to binary message
// type if no match.
func convertFromGorillaMsgTypes(msgType int) wstransports.MessageType {
	if msgType == websocket.TextMessage {
		return wstransports.Text
	}
	return wstransports.Binary
}
