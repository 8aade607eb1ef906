// Package system defines the lifecycle contract shared by all keeper
// services.
package system

import "context"

// Service is a lifecycle-managed keeper component. The runtime starts and
// stops services deterministically; Start and Stop must be idempotent so a
// repeated registration attempt is a no-op.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
