package height

import "context"

// Provider defines the interface for querying the monitored head height.
// This abstraction allows for different implementations (Sui, EVM, generic RPC, mock).
//
// Implementations must honor ctx cancellation so a hung endpoint cannot stall
// a monitoring cycle.
type Provider interface {
	// GetCurrentHeight returns the current head height.
	// Returns an error if the height cannot be retrieved (e.g., RPC timeout, remote error).
	GetCurrentHeight(ctx context.Context) (uint64, error)
}

// ProviderFunc adapts a function to Provider
type ProviderFunc func(ctx context.Context) (uint64, error)

// GetCurrentHeight calls f
func (f ProviderFunc) GetCurrentHeight(ctx context.Context) (uint64, error) {
	return f(ctx)
}
