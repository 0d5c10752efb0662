package wstransports

import "fmt"

/*************************************************************************************************/
/* WEBSOCKET CLOSE ERROR                                                                         */
/*************************************************************************************************/

// Error used by transport implementations to carry close data extracted from the error returned
// by the underlying websocket library when the connection terminates.
type WebsocketCloseError struct {
	// Status code used or received when connection has been closed. If the connection has been
	// severed without a close message, 1006 must be used.
	//
	// https://www.rfc-editor.org/rfc/rfc6455.html#section-7.1.5
	Code StatusCode
	// Optional close reason used/received when connection has been closed.
	//
	// https://www.rfc-editor.org/rfc/rfc6455.html#section-7.1.6
	Reason string
	// True when the closing handshake completed before the connection was dropped.
	WasClean bool
	// Embedded error if any. Can be the error returned by the underlying websocket library when
	// the connection is closed.
	Err error
}

func (err WebsocketCloseError) Error() string {
	return fmt.Sprintf("connection has been closed: %d - %s", err.Code, err.Reason)
}

func (err WebsocketCloseError) Unwrap() error {
	return err.Err
}
