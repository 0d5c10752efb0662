package configuration

import "os"

type Configuration struct {
	// URL of the target websocket server
	ServerUrl string
	// Indicates whether tracing is enabled or not
	TracingEnabled string
	// URL to the OTLP tracing backend
	OtlpTracingBackendEndpoint string
}

func LoadConfiguration() Configuration {
	return Configuration{
		ServerUrl:                  os.Getenv("WSSEX_SERVER_URL"),
		TracingEnabled:             os.Getenv("WSSEX_TRACING_ENABLED"),
		OtlpTracingBackendEndpoint: os.Getenv("WSSEX_TRACING_OTLP_ENDPOINT"),
	}
}
