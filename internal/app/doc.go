// Package app holds the keeper's composition layers.
//
// # Package Structure
//
//	internal/app/
//	├── domain/      # Domain models (pure data structures)
//	│   ├── datafeed/    # Feeds, beacons, update parameters
//	│   └── signeddata/  # Signed data points and value bounds
//	├── state/       # Shared process state (feeds, points, URLs, gas)
//	├── services/    # Long-running services
//	│   ├── scheduler/   # Registry polling and update evaluation
//	│   ├── fetcher/     # Signed-data collection
//	│   ├── update/      # Update decision rules and staging
//	│   └── report/      # Periodic state reporting
//	├── system/      # Service lifecycle contract
//	├── metrics/     # Prometheus collectors
//	└── runtime/     # Application wiring and lifecycle
//
// Domain models carry no business logic; decision rules live in
// services/update and are exercised by the scheduler. All services
// communicate through state, never directly with each other.
package app
