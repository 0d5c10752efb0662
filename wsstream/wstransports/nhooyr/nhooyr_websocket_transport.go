// Package which contains a WebsocketTransportInterface implementation for nhooyr/websocket
// library (https://github.com/nhooyr/websocket).
package wstransportnhooyr

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"gitlab.com/lake42/go-websocket-stream/wsstream/wstransports"
	"nhooyr.io/websocket"
)

// Transport implementation for nhooyr/websocket library.
//
// The transport converts the pull-based API of the underlying library into the push-based
// contract of WebsocketTransportInterface: one internal goroutine continuously reads the
// connection and fires the listener callbacks sequentially.
type NhooyrWebsocketTransport struct {
	// Dial options to use when opening a connection
	opts *websocket.DialOptions
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
	// Internal mutex
	mu sync.Mutex
}

// # Description
//
// Factory which creates a new NhooyrWebsocketTransport.
//
// # Inputs
//
//   - opts: Optional dial options to use when calling Connect method. Can be nil.
//
// # Returns
//
// New NhooyrWebsocketTransport
func NewNhooyrWebsocketTransport(opts *websocket.DialOptions) *NhooyrWebsocketTransport {
	return &NhooyrWebsocketTransport{
		opts:       opts,
		conn:       nil,
		binaryType: wstransports.Binary,
		state:      wstransports.Connecting,
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
func (transport *NhooyrWebsocketTransport) Connect(
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
	// Merge requested subprotocols into dial options
	opts := &websocket.DialOptions{}
	if transport.opts != nil {
		optsCopy := *transport.opts
		opts = &optsCopy
	}
	if len(protocols) > 0 {
		opts.Subprotocols = protocols
	}
	// Open websocket connection
	conn, resp, err := websocket.Dial(ctx, target.String(), opts)
	if err != nil {
		transport.state = wstransports.Closed
		return err
	}
	// Persist connection data internally
	transport.conn = conn
	transport.target = &target
	transport.protocol = conn.Subprotocol()
	if resp != nil {
		transport.extensions = resp.Header.Get("Sec-WebSocket-Extensions")
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
//   - ctx: Context used for tracing/timeout purpose.
//   - msgType: Message type (Binary | Text).
//   - payload: Message content.
//
// # Returns
//
// Nil in case of success, an error in case of connection closure, context timeout/cancellation
// or failure.
func (transport *NhooyrWebsocketTransport) Send(ctx context.Context, msgType wstransports.MessageType, payload []byte) error {
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
	// Write the message
	return conn.Write(ctx, convertToNhooyrMsgTypes(msgType), payload)
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
func (transport *NhooyrWebsocketTransport) RequestClose(ctx context.Context, code wstransports.StatusCode, reason string) error {
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
	return conn.Close(convertToNhooyrStatusCodes(code), reason)
}

// Return the message type used when payloads are sent without an explicit type.
func (transport *NhooyrWebsocketTransport) BinaryType() wstransports.MessageType {
	transport.mu.Lock()
	defer transport.mu.Unlock()
	return transport.binaryType
}

// Set the message type used when payloads are sent without an explicit type.
func (transport *NhooyrWebsocketTransport) SetBinaryType(msgType wstransports.MessageType) {
	transport.mu.Lock()
	defer transport.mu.Unlock()
	transport.binaryType = msgType
}

// Return the number of bytes handed to Send which have not been written out yet.
func (transport *NhooyrWebsocketTransport) BufferedAmount() int64 {
	return transport.bufferedAmount.Load()
}

// Return the extensions negotiated during the websocket handshake.
func (transport *NhooyrWebsocketTransport) Extensions() string {
	transport.mu.Lock()
	defer transport.mu.Unlock()
	return transport.extensions
}

// Return the subprotocol negotiated during the websocket handshake.
func (transport *NhooyrWebsocketTransport) Protocol() string {
	transport.mu.Lock()
	defer transport.mu.Unlock()
	return transport.protocol
}

// Return the current connection state.
func (transport *NhooyrWebsocketTransport) State() wstransports.ConnectionState {
	transport.mu.Lock()
	defer transport.mu.Unlock()
	return transport.state
}

// Return the resolved target URL. Nil when no connection attempt has been made yet.
func (transport *NhooyrWebsocketTransport) Url() *url.URL {
	transport.mu.Lock()
	defer transport.mu.Unlock()
	return transport.target
}

/*************************************************************************************************/
/* READ GOROUTINE                                                                                */
/*************************************************************************************************/

// Goroutine task which continuously reads the connection and fires the listener callbacks. The
// goroutine exits when the connection terminates, after firing OnClose as the final event.
func (transport *NhooyrWebsocketTransport) run(conn *websocket.Conn, listener wstransports.WebsocketEventListenerInterface) {
	// Use a fresh context: the connection lifetime is not bound to the Connect context.
	ctx := context.Background()
	// Fire the open event before any message event
	listener.OnOpen(ctx)
	for {
		msgType, payload, err := conn.Read(ctx)
		if err != nil {
			// Build the close cause, drop the connection and fire the final close event
			closeErr := transport.closeCause(err)
			transport.mu.Lock()
			transport.conn = nil
			transport.state = wstransports.Closed
			transport.mu.Unlock()
			listener.OnClose(ctx, closeErr.Code, closeErr.Reason, closeErr.WasClean)
			return
		}
		listener.OnMessage(ctx, convertFromNhooyrMsgTypes(msgType), payload)
	}
}

// Build the close cause from the error returned by conn.Read when the connection terminates.
//
// A received close frame carries its own status code and reason and means the closing handshake
// completed. When the connection drops without a close status but a local close request was
// issued, the requested cause is reported as a clean closure: the underlying library has
// already sent the close frame. Anything else is a 1006 abnormal closure.
func (transport *NhooyrWebsocketTransport) closeCause(err error) wstransports.WebsocketCloseError {
	status := websocket.CloseStatus(err)
	if status != -1 && status != websocket.StatusAbnormalClosure {
		reason := ""
		closeErr := websocket.CloseError{}
		if errors.As(err, &closeErr) {
			reason = closeErr.Reason
		}
		return wstransports.WebsocketCloseError{
			Code:     convertFromNhooyrStatusCodes(status),
			Reason:   reason,
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

// Convert a status code to nhooyr enum. Default to websocket.StatusAbnormalClosure if none is
// corresponding.
func convertToNhooyrStatusCodes(code wstransports.StatusCode) websocket.StatusCode {
	switch code {
	case wstransports.NormalClosure:
		return websocket.StatusNormalClosure
	case wstransports.GoingAway:
		return websocket.StatusGoingAway
	case wstransports.ProtocolError:
		return websocket.StatusProtocolError
	case wstransports.UnsupportedData:
		return websocket.StatusUnsupportedData
	case wstransports.NoStatusReceived:
		return websocket.StatusNoStatusRcvd
	case wstransports.InvalidFramePayloadData:
		return websocket.StatusInvalidFramePayloadData
	case wstransports.PolicyViolation:
		return websocket.StatusPolicyViolation
	case wstransports.MessageTooBig:
		return websocket.StatusMessageTooBig
	case wstransports.MandatoryExtension:
		return websocket.StatusMandatoryExtension
	case wstransports.InternalError:
		return websocket.StatusInternalError
	case wstransports.TLSHandshake:
		return websocket.StatusTLSHandshake
	default:
		// Codes from the private use range (4000-4999) are passed through unchanged
		if code >= 4000 && code <= 4999 {
			return websocket.StatusCode(code)
		}
		return websocket.StatusAbnormalClosure
	}
}

// Convert a status code from nhooyr enum. Default to wstransports.AbnormalClosure if none is
// corresponding.
func convertFromNhooyrStatusCodes(code websocket.StatusCode) wstransports.StatusCode {
	switch code {
	case websocket.StatusNormalClosure:
		return wstransports.NormalClosure
	case websocket.StatusGoingAway:
		return wstransports.GoingAway
	case websocket.StatusProtocolError:
		return wstransports.ProtocolError
	case websocket.StatusUnsupportedData:
		return wstransports.UnsupportedData
	case websocket.StatusNoStatusRcvd:
		return wstransports.NoStatusReceived
	case websocket.StatusInvalidFramePayloadData:
		return wstransports.InvalidFramePayloadData
	case websocket.StatusPolicyViolation:
		return wstransports.PolicyViolation
	case websocket.StatusMessageTooBig:
		return wstransports.MessageTooBig
	case websocket.StatusMandatoryExtension:
		return wstransports.MandatoryExtension
	case websocket.StatusInternalError:
		return wstransports.InternalError
	case websocket.StatusTLSHandshake:
		return wstransports.TLSHandshake
	default:
		if code >= 4000 && code <= 4999 {
			return wstransports.StatusCode(code)
		}
		return wstransports.AbnormalClosure
	}
}

// Convert message types from MessageType to nhooyr specific types. Default to binary message
// type if no match.
func convertToNhooyrMsgTypes(msgType wstransports.MessageType) websocket.MessageType {
	if msgType == wstransports.Text {
		return websocket.MessageText
	}
	return websocket.MessageBinary
}

// Convert message types from nhooyr specific types to MessageType. Default to binary message
// type if no match.
func convertFromNhooyrMsgTypes(msgType websocket.MessageType) wstransports.MessageType {
	if msgType == websocket.MessageText {
		return wstransports.Text
	}
	return wstransports.Binary
}
