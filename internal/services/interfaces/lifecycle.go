// Package serviceinterfaces defines the contracts the service container relies on.
package serviceinterfaces

import (
	"context"
)

// Lifecycle defines the interface for services that own background work
type Lifecycle interface {
	// Startup is called once after every service is constructed
	Startup(ctx context.Context) error

	// Shutdown is called when the container stops
	Shutdown(ctx context.Context) error
}
