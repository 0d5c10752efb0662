package wsstream

import (
	"github.com/go-playground/validator/v10"
)

// Defines configuration options for a websocket stream.
//
// Use the factory function to get a new instance of the struct with nice defaults and then modify
// settings using With*** methods.
type WebsocketStreamOptions struct {
	// Optional list of subprotocols to negotiate during the websocket handshake.
	//
	// Defaults to none. Provided subprotocols must not be empty strings.
	Protocols []string `validate:"omitempty,dive,min=1"`
	// Reason used when the connection is closed because the provided context has been canceled.
	//
	// Defaults to "context canceled".
	CancellationCloseReason string
}

// # Description
//
// Factory which creates a new WebsocketStreamOptions with default values set.
//
// # Returns
//
// New WebsocketStreamOptions with default values set.
func NewWebsocketStreamOptions() *WebsocketStreamOptions {
	return &WebsocketStreamOptions{
		Protocols:               nil,
		CancellationCloseReason: "context canceled",
	}
}

// # Description
//
// Set opts.Protocols and return the modified object. The method does not validate inputs.
//
// # Protocols
//
// This option defines the subprotocols announced during the websocket handshake. The server
// picks at most one of them; the negotiated subprotocol is available through the Protocol
// accessor of the stream once the connection is open.
//
// # Return
//
// The modified options.
func (opts *WebsocketStreamOptions) WithProtocols(value []string) *WebsocketStreamOptions {
	// Set and return
	opts.Protocols = value
	return opts
}

// # Description
//
// Set opts.CancellationCloseReason and return the modified object. The method does not validate
// inputs.
//
// # Return
//
// The modified options.
func (opts *WebsocketStreamOptions) WithCancellationCloseReason(value string) *WebsocketStreamOptions {
	// Set and return
	opts.CancellationCloseReason = value
	return opts
}

// # Description
//
// Validate provided options.
//
// # Returns
//
// Nil in case of success, an error describing the offending option otherwise.
func Validate(opts *WebsocketStreamOptions) error {
	return validator.New().Struct(opts)
}
