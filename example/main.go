package main

import (
	"gitlab.com/lake42/go-websocket-stream/example/configuration"
	"gitlab.com/lake42/go-websocket-stream/example/providers"
	"go.uber.org/fx"
)

// Assemble the application dependency graph. The echo server is provided, not invoked: the stream
// provider depends on it, which both makes the server available as a dependency and orders its
// lifecycle hooks before the stream hooks.
func appOptions() fx.Option {
	return fx.Options(
		fx.Provide(providers.ProvideApplicationContext),
		fx.Provide(configuration.LoadConfiguration),
		fx.Provide(providers.ProvideLogger),
		fx.Provide(providers.ProvideTracerProvider),
		fx.Provide(providers.ProvideWebsocketTransport),
		fx.Provide(providers.ProvideEchoServer),
		// Use invoke to force dependencies to be instanciated and hooks to be registered and executed
		fx.Invoke(providers.ProvideWebsocketStream),
	)
}

func main() {
	fx.New(appOptions()).Run()
}
