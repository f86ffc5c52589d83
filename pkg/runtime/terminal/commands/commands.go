package commands

import (
	"context"

	"github.com/de-tools/cost-digest/pkg/runtime/app"
)

// LoadFunc reads configuration and wires the application. The returned
// context carries the configured logger.
type LoadFunc func(ctx context.Context, mode app.Mode) (context.Context, *app.App, error)
