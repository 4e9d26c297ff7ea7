package app

import (
	"context"
	"fmt"
)

// Pinger is the minimal interface of a dependency that can be health-probed.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckFor adapts a Pinger into a readiness check, tolerating nil for
// dependencies a deployment leaves unconfigured.
func CheckFor(name string, p Pinger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if p == nil {
			return fmt.Errorf("%s not configured", name)
		}
		return p.Ping(ctx)
	}
}
