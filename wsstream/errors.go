package wsstream

import "fmt"

/*************************************************************************************************/
/* WEBSOCKET CLOSED ERROR                                                                        */
/*************************************************************************************************/

// Error used to reject the ready or the closed future when the connection terminates without a
// completed closing handshake.
//
// The error surfaces through Ready when the connection failed before ever reaching the open
// state and through Closed (and Close) when an established connection was interrupted. The
// branch it surfaces on, not the type, tells which of the two failures occurred.
type WebsocketClosedError struct {
	// Close data reported by the transport.
	Info CloseInfo
	// Embedded error if any.
	Err error
}

func (err WebsocketClosedError) Error() string {
	return fmt.Sprintf("websocket connection closed abnormally: %d - %s", err.Info.Code, err.Info.Reason)
}

func (err WebsocketClosedError) Unwrap() error {
	return err.Err
}
