package providers

import (
	"context"
	"net/url"

	"gitlab.com/lake42/go-websocket-stream/echowsserver"
	"gitlab.com/lake42/go-websocket-stream/example/client"
	"gitlab.com/lake42/go-websocket-stream/example/configuration"
	"gitlab.com/lake42/go-websocket-stream/wsstream"
	"gitlab.com/lake42/go-websocket-stream/wsstream/wstransports"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func ProvideWebsocketStream(
	lc fx.Lifecycle,
	appCtx context.Context,
	config configuration.Configuration,
	transport wstransports.WebsocketTransportInterface,
	srv *echowsserver.EchoWebsocketServer,
	logger *zap.Logger,
	tracerProvider trace.TracerProvider) error {
	// Parse target server url - default to the embedded echo server
	target := config.ServerUrl
	if target == "" {
		target = "ws://localhost:8080"
	}
	u, err := url.Parse(target)
	if err != nil {
		return err
	}
	// Register Start and Stop hooks which open the stream and run the example client
	var stream *wsstream.WebsocketStream
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// Open the stream. The connection is established in the background: the example
			// client suspends on the open state through Listen.
			stream, err = wsstream.NewWebsocketStream(appCtx, transport, u,
				wsstream.NewWebsocketStreamOptions().WithProtocols(echowsserver.SupportedSubprotocols),
				tracerProvider)
			if err != nil {
				return err
			}
			// Run the example client
			received, err := client.NewExampleClientImpl(logger, tracerProvider).Run(ctx, stream)
			if err != nil {
				return err
			}
			logger.Info("example client finished", zap.Int("received", received))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// Close the stream and wait for the connection termination
			info, err := stream.Close(ctx, wstransports.NormalClosure, "example finished")
			if err != nil {
				return err
			}
			logger.Info("stream closed",
				zap.Int("code", int(info.Code)),
				zap.String("reason", info.Reason))
			return nil
		},
	})
	return nil
}
