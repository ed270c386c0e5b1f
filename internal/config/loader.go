package config

import (
	"context"
)

// Loader provides configuration loading capabilities. The scheduler calls Load
// at the start of every tick and uses the returned snapshot unchanged until the
// next one.
type Loader interface {
	// Load retrieves, parses and validates the configuration from the
	// underlying source.
	Load(ctx context.Context) (*Config, error)
}
