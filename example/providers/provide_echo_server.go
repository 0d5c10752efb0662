package providers

import (
	"context"

	"gitlab.com/lake42/go-websocket-stream/echowsserver"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Provide the websocket echo server and register start/stop hooks to start/stop the server
func ProvideEchoServer(lc fx.Lifecycle, logger *zap.Logger) *echowsserver.EchoWebsocketServer {
	// Build server - will listen on localhost:8080
	srv := echowsserver.NewEchoWebsocketServer(nil, zap.NewStdLog(logger))
	// Register Start and Stop hooks to Start and Stop the server
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return srv.Start()
		},
		OnStop: func(ctx context.Context) error {
			return srv.Stop()
		},
	})
	// Return the server
	return srv
}
