package providers

import (
	"gitlab.com/lake42/go-websocket-stream/wsstream/wstransports"
	wstransportnhooyr "gitlab.com/lake42/go-websocket-stream/wsstream/wstransports/nhooyr"
)

func ProvideWebsocketTransport() wstransports.WebsocketTransportInterface {
	// Return a websocket transport which uses nhooyr websocket library under the hood
	return wstransportnhooyr.NewNhooyrWebsocketTransport(nil)
}
