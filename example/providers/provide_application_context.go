package providers

import "context"

// Provide the root context used by the application components.
func ProvideApplicationContext() context.Context {
	return context.Background()
}
