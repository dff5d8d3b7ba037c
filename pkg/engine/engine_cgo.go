//go:build cgo_sqlite

// Build with: go build -tags cgo_sqlite
// Requires: CGO_ENABLED=1
package engine

import "github.com/mesh-intelligence/litewrap/pkg/types"

const defaultEngine = types.EngineCGO
